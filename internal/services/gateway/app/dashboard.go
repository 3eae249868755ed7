package app

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/LeonardoBeccarini/agri_dashboard/internal/services/soil"
	"github.com/LeonardoBeccarini/agri_dashboard/internal/services/weather"
)

const (
	sectionWeather = "weather"
	sectionSoil    = "soil"

	// cached locations; the cache is dropped wholesale when full
	maxLastGood = 1024
)

// HandleDashboard fetches weather and soil in parallel. A failed section is
// replaced by the last good one for the same location when there is one;
// the request fails only when neither section can be served.
func (g *Gateway) HandleDashboard(c *gin.Context) {
	start := time.Now()
	var q locationQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}
	loc := q.location()

	ctx, cancel := g.withTimeout(c)
	defer cancel()

	type res struct {
		key string
		val any
		err error
	}
	ch := make(chan res, 2)

	go func() {
		if g.deps.Weather == nil {
			ch <- res{sectionWeather, nil, errNotConfigured}
			return
		}
		fc, err := g.deps.Weather.Forecast(ctx, loc, g.cfg.ForecastDays)
		g.metrics.observeUpstream("weather", err)
		ch <- res{sectionWeather, fc, err}
	}()
	go func() {
		if g.deps.Soil == nil {
			ch <- res{sectionSoil, nil, errNotConfigured}
			return
		}
		a, err := g.deps.Soil.Analyze(ctx, soil.AnalyzeRequest{Location: loc})
		g.metrics.observeUpstream("soil", err)
		ch <- res{sectionSoil, a, err}
	}()

	fresh := DashboardData{Location: loc}
	data := DashboardData{Location: loc, Errors: map[string]string{}}
	for i := 0; i < 2; i++ {
		rv := <-ch
		if rv.err != nil {
			data.Errors[rv.key] = rv.err.Error()
			continue
		}
		switch v := rv.val.(type) {
		case weather.Forecast:
			fresh.Weather = &v
		case soil.Analysis:
			fresh.Soil = &v
		}
	}

	prev := g.remember(loc.Query(), fresh)
	data.Weather, data.Soil = fresh.Weather, fresh.Soil
	if data.Weather == nil && prev.Weather != nil {
		data.Weather = prev.Weather
		data.Stale = append(data.Stale, sectionWeather)
	}
	if data.Soil == nil && prev.Soil != nil {
		data.Soil = prev.Soil
		data.Stale = append(data.Stale, sectionSoil)
	}
	if len(data.Errors) == 0 {
		data.Errors = nil
	}

	log.Info().
		Str("loc", loc.Query()).
		Dur("took", time.Since(start)).
		Strs("stale", data.Stale).
		Int("errors", len(data.Errors)).
		Msg("gateway: dashboard served")

	if data.Weather == nil && data.Soil == nil {
		abortWithError(c, dashboardError(data.Errors))
		return
	}
	c.JSON(http.StatusOK, data)
}

// remember stores the fresh sections for key and returns what was cached before.
func (g *Gateway) remember(key string, fresh DashboardData) DashboardData {
	g.mu.Lock()
	defer g.mu.Unlock()
	prev := g.lastGood[key]
	next := prev
	if fresh.Weather != nil {
		next.Weather = fresh.Weather
	}
	if fresh.Soil != nil {
		next.Soil = fresh.Soil
	}
	if next.Weather != nil || next.Soil != nil {
		if _, ok := g.lastGood[key]; !ok && len(g.lastGood) >= maxLastGood {
			clear(g.lastGood)
		}
		g.lastGood[key] = next
	}
	return prev
}

func dashboardError(errs map[string]string) error {
	parts := make([]string, 0, len(errs))
	for _, k := range []string{sectionWeather, sectionSoil} {
		if msg, ok := errs[k]; ok {
			parts = append(parts, k+": "+msg)
		}
	}
	if len(parts) == 0 {
		return errors.New("dashboard: no data")
	}
	return fmt.Errorf("dashboard: %s", strings.Join(parts, "; "))
}
