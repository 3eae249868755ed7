// Package soil fetches topsoil properties from SoilGrids and classifies their texture.
package soil

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strconv"
	"time"

	"github.com/LeonardoBeccarini/agri_dashboard/internal/model"
	"github.com/LeonardoBeccarini/agri_dashboard/internal/model/entities"
	"github.com/LeonardoBeccarini/agri_dashboard/pkg/upstream"
)

const (
	DefaultBaseURL = "https://rest.isric.org/soilgrids/v2.0/properties/query"
	DefaultDepth   = "0-5cm"
)

// ErrNoSoilData means SoilGrids has no texture values at the point (sea, ice, urban mask).
var ErrNoSoilData = errors.New("soil: no soil data at location")

var queriedProperties = []string{"clay", "sand", "silt", "phh2o", "soc"}

type ClientConfig struct {
	BaseURL  string
	Depth    string
	Upstream upstream.Config
}

// Client queries the SoilGrids v2 properties endpoint.
type Client struct {
	up      *upstream.Upstream
	baseURL string
	depth   string
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Depth == "" {
		cfg.Depth = DefaultDepth
	}
	if cfg.Upstream.Name == "" {
		cfg.Upstream.Name = "soilgrids"
	}
	if cfg.Upstream.Timeout <= 0 {
		cfg.Upstream.Timeout = 15 * time.Second
	}
	return &Client{
		up:      upstream.New(cfg.Upstream),
		baseURL: cfg.BaseURL,
		depth:   cfg.Depth,
	}
}

// Upstream exposes the guarded HTTP client, for breaker state reporting.
func (c *Client) Upstream() *upstream.Upstream { return c.up }

type sgResponse struct {
	Properties struct {
		Layers []sgLayer `json:"layers"`
	} `json:"properties"`
}

type sgLayer struct {
	Name        string `json:"name"`
	UnitMeasure struct {
		DFactor float64 `json:"d_factor"`
	} `json:"unit_measure"`
	Depths []struct {
		Label  string `json:"label"`
		Values struct {
			Mean *float64 `json:"mean"`
		} `json:"values"`
	} `json:"depths"`
}

// mean returns the layer value at depth in conventional units.
func (l sgLayer) mean(depth string) (float64, bool) {
	for _, d := range l.Depths {
		if d.Label != depth || d.Values.Mean == nil {
			continue
		}
		f := l.UnitMeasure.DFactor
		if f == 0 {
			f = 1
		}
		return *d.Values.Mean / f, true
	}
	return 0, false
}

// Fetch returns the soil properties at loc. Missing texture fractions read as 0
// and are listed in Missing; ErrNoSoilData is returned when all three are missing.
func (c *Client) Fetch(ctx context.Context, loc entities.Location) (entities.SoilProperties, error) {
	if err := model.Validate(loc); err != nil {
		return entities.SoilProperties{}, err
	}

	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(loc.Latitude, 'f', 6, 64))
	q.Set("lon", strconv.FormatFloat(loc.Longitude, 'f', 6, 64))
	for _, p := range queriedProperties {
		q.Add("property", p)
	}
	q.Set("depth", c.depth)
	q.Set("value", "mean")

	var resp sgResponse
	if err := c.up.GetJSON(ctx, c.baseURL+"?"+q.Encode(), &resp, decodeError); err != nil {
		return entities.SoilProperties{}, err
	}

	values := make(map[string]float64, len(queriedProperties))
	for _, l := range resp.Properties.Layers {
		if v, ok := l.mean(c.depth); ok {
			values[l.Name] = v
		}
	}

	props := entities.SoilProperties{Depth: c.depth}
	texture := 0
	for _, name := range queriedProperties {
		v, ok := values[name]
		if !ok {
			props.Missing = append(props.Missing, name)
			continue
		}
		switch name {
		case "sand":
			props.Composition.Sand = v
			texture++
		case "silt":
			props.Composition.Silt = v
			texture++
		case "clay":
			props.Composition.Clay = v
			texture++
		case "phh2o":
			props.PH = &v
		case "soc":
			props.OrganicCarbon = &v
		}
	}
	if texture == 0 {
		return entities.SoilProperties{}, ErrNoSoilData
	}
	return props, nil
}

// SoilGrids reports errors as {"detail": "..."}; validation errors carry a list.
func decodeError(body []byte) string {
	var e struct {
		Detail json.RawMessage `json:"detail"`
	}
	if json.Unmarshal(body, &e) != nil || len(e.Detail) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(e.Detail, &s) == nil {
		return s
	}
	return string(e.Detail)
}
