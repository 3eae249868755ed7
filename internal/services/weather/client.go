// Package weather reads current conditions and the daily forecast from WeatherAPI.com.
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/LeonardoBeccarini/agri_dashboard/internal/model"
	"github.com/LeonardoBeccarini/agri_dashboard/internal/model/entities"
	"github.com/LeonardoBeccarini/agri_dashboard/pkg/upstream"
)

const (
	DefaultBaseURL = "https://api.weatherapi.com/v1"
	DefaultDays    = 7
	MaxDays        = 14
)

var (
	ErrMissingAPIKey = errors.New("weather: API key not configured")
	ErrInvalidDays   = fmt.Errorf("weather: days must be between 1 and %d", MaxDays)
)

type Config struct {
	APIKey   string
	BaseURL  string
	Upstream upstream.Config
}

type Client struct {
	up      *upstream.Upstream
	apiKey  string
	baseURL string
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Upstream.Name == "" {
		cfg.Upstream.Name = "weatherapi"
	}
	return &Client{
		up:      upstream.New(cfg.Upstream),
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
	}
}

func (c *Client) Upstream() *upstream.Upstream { return c.up }

type Place struct {
	Name    string `json:"name"`
	Region  string `json:"region"`
	Country string `json:"country"`
}

type Current struct {
	TempC      float64 `json:"temp_c"`
	FeelsLikeC float64 `json:"feelslike_c"`
	Condition  string  `json:"condition"`
	IconURL    string  `json:"icon_url"`
	WindKph    float64 `json:"wind_kph"`
	Humidity   int     `json:"humidity"`
	UV         float64 `json:"uv"`
}

type Day struct {
	Date         string  `json:"date"`
	MaxTempC     float64 `json:"max_temp_c"`
	MinTempC     float64 `json:"min_temp_c"`
	PrecipMM     float64 `json:"precip_mm"`
	ChanceOfRain int     `json:"chance_of_rain"`
	Condition    string  `json:"condition"`
	IconURL      string  `json:"icon_url"`
	Sunrise      string  `json:"sunrise"`
	Sunset       string  `json:"sunset"`
	ET0          float64 `json:"et0_mm"`
}

type Forecast struct {
	Place   Place   `json:"place"`
	Current Current `json:"current"`
	Days    []Day   `json:"days"`
}

type apiCondition struct {
	Text string `json:"text"`
	Icon string `json:"icon"`
}

type apiResponse struct {
	Location Place `json:"location"`
	Current  struct {
		TempC      float64      `json:"temp_c"`
		FeelsLikeC float64      `json:"feelslike_c"`
		Condition  apiCondition `json:"condition"`
		WindKph    float64      `json:"wind_kph"`
		Humidity   int          `json:"humidity"`
		UV         float64      `json:"uv"`
	} `json:"current"`
	Forecast struct {
		ForecastDay []struct {
			Date string `json:"date"`
			Day  struct {
				MaxTempC          float64      `json:"maxtemp_c"`
				MinTempC          float64      `json:"mintemp_c"`
				TotalPrecipMM     float64      `json:"totalprecip_mm"`
				DailyChanceOfRain int          `json:"daily_chance_of_rain"`
				Condition         apiCondition `json:"condition"`
			} `json:"day"`
			Astro struct {
				Sunrise string `json:"sunrise"`
				Sunset  string `json:"sunset"`
			} `json:"astro"`
		} `json:"forecastday"`
	} `json:"forecast"`
}

// Forecast returns current conditions and days of forecast for loc.
// days 0 means DefaultDays.
func (c *Client) Forecast(ctx context.Context, loc entities.Location, days int) (Forecast, error) {
	if c.apiKey == "" {
		return Forecast{}, ErrMissingAPIKey
	}
	if days == 0 {
		days = DefaultDays
	}
	if days < 1 || days > MaxDays {
		return Forecast{}, ErrInvalidDays
	}
	if err := model.Validate(loc); err != nil {
		return Forecast{}, err
	}

	q := url.Values{}
	q.Set("key", c.apiKey)
	q.Set("q", loc.Query())
	q.Set("days", strconv.Itoa(days))
	q.Set("aqi", "no")
	q.Set("alerts", "no")

	var resp apiResponse
	if err := c.up.GetJSON(ctx, c.baseURL+"/forecast.json?"+q.Encode(), &resp, decodeError); err != nil {
		return Forecast{}, err
	}

	out := Forecast{
		Place: resp.Location,
		Current: Current{
			TempC:      resp.Current.TempC,
			FeelsLikeC: resp.Current.FeelsLikeC,
			Condition:  resp.Current.Condition.Text,
			IconURL:    iconURL(resp.Current.Condition.Icon),
			WindKph:    resp.Current.WindKph,
			Humidity:   resp.Current.Humidity,
			UV:         resp.Current.UV,
		},
		Days: make([]Day, 0, len(resp.Forecast.ForecastDay)),
	}
	for _, fd := range resp.Forecast.ForecastDay {
		d := Day{
			Date:         fd.Date,
			MaxTempC:     fd.Day.MaxTempC,
			MinTempC:     fd.Day.MinTempC,
			PrecipMM:     fd.Day.TotalPrecipMM,
			ChanceOfRain: fd.Day.DailyChanceOfRain,
			Condition:    fd.Day.Condition.Text,
			IconURL:      iconURL(fd.Day.Condition.Icon),
			Sunrise:      fd.Astro.Sunrise,
			Sunset:       fd.Astro.Sunset,
		}
		if t, err := time.Parse(time.DateOnly, fd.Date); err == nil {
			ra := ExtraterrestrialRadiation(loc.Latitude, t.YearDay())
			d.ET0 = math.Round(HargreavesET0(d.MinTempC, d.MaxTempC, ra)*100) / 100
		}
		out.Days = append(out.Days, d)
	}
	return out, nil
}

// icons come protocol-relative, e.g. //cdn.weatherapi.com/weather/64x64/day/116.png
func iconURL(s string) string {
	if strings.HasPrefix(s, "//") {
		return "https:" + s
	}
	return s
}

func decodeError(body []byte) string {
	var e struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &e) != nil {
		return ""
	}
	return e.Error.Message
}
