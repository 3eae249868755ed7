// Package storage keeps soil analyses and probe textures in InfluxDB.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/LeonardoBeccarini/agri_dashboard/internal/model/messages"
)

const (
	MeasurementAnalysis = "soil_analysis"
	MeasurementTexture  = "soil_texture"
)

type InfluxConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

type pointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

type fluxQuerier interface {
	Query(ctx context.Context, query string) (*api.QueryTableResult, error)
}

// InfluxStore writes with the blocking API so callers see every error.
type InfluxStore struct {
	client influxdb2.Client
	writer pointWriter
	query  fluxQuerier
	bucket string
}

func NewInfluxStore(cfg InfluxConfig) (*InfluxStore, error) {
	if cfg.URL == "" || cfg.Token == "" || cfg.Org == "" || cfg.Bucket == "" {
		return nil, errors.New("influx config incomplete")
	}
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &InfluxStore{
		client: client,
		writer: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		query:  client.QueryAPI(cfg.Org),
		bucket: cfg.Bucket,
	}, nil
}

func (s *InfluxStore) WriteAnalysis(ctx context.Context, e messages.SoilAnalysisEvent) error {
	fields := map[string]interface{}{
		"analysis_id": e.AnalysisID,
		"latitude":    e.Latitude,
		"longitude":   e.Longitude,
		"rule":        e.Rule,
		"sand":        e.Sand,
		"silt":        e.Silt,
		"clay":        e.Clay,
	}
	if e.PH != nil {
		fields["ph"] = *e.PH
	}
	if e.OrganicCarbon != nil {
		fields["soc"] = *e.OrganicCarbon
	}
	p := influxdb2.NewPoint(MeasurementAnalysis,
		map[string]string{"texture": e.Texture},
		fields, stamp(e.Timestamp))
	if err := s.writer.WritePoint(ctx, p); err != nil {
		return fmt.Errorf("influx write %s: %w", MeasurementAnalysis, err)
	}
	return nil
}

func (s *InfluxStore) WriteTexture(ctx context.Context, e messages.SoilTextureEvent) error {
	p := influxdb2.NewPoint(MeasurementTexture,
		map[string]string{
			"field_id": e.FieldID,
			"probe_id": e.ProbeID,
			"texture":  e.Texture,
		},
		map[string]interface{}{
			"rule":     e.Rule,
			"sand":     e.Sand,
			"silt":     e.Silt,
			"clay":     e.Clay,
			"rescaled": e.Rescaled,
			"samples":  e.Samples,
		}, stamp(e.Timestamp))
	if err := s.writer.WritePoint(ctx, p); err != nil {
		return fmt.Errorf("influx write %s: %w", MeasurementTexture, err)
	}
	return nil
}

func buildAnalysesFlux(bucket string, minutes, limit int) string {
	return fmt.Sprintf(`
from(bucket: %q)
  |> range(start: -%dm)
  |> filter(fn: (r) => r._measurement == %q)
  |> pivot(rowKey: ["_time"], columnKey: ["_field"], valueColumn: "_value")
  |> group()
  |> sort(columns: ["_time"], desc: true)
  |> limit(n: %d)
`, bucket, minutes, MeasurementAnalysis, limit)
}

// RecentAnalyses returns up to limit analyses of the last minutes, newest first.
func (s *InfluxStore) RecentAnalyses(ctx context.Context, minutes, limit int) ([]messages.SoilAnalysisEvent, error) {
	res, err := s.query.Query(ctx, buildAnalysesFlux(s.bucket, minutes, limit))
	if err != nil {
		return nil, fmt.Errorf("influx query: %w", err)
	}
	defer res.Close()

	out := make([]messages.SoilAnalysisEvent, 0, limit)
	for res.Next() {
		rec := res.Record()
		out = append(out, analysisFromRow(rec.Values(), rec.Time()))
	}
	if err := res.Err(); err != nil {
		return out, fmt.Errorf("influx iterate: %w", err)
	}
	return out, nil
}

// Ping reports whether the server answers.
func (s *InfluxStore) Ping(ctx context.Context) error {
	ok, err := s.client.Ping(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("influx ping failed")
	}
	return nil
}

func (s *InfluxStore) Close() {
	if s.client != nil {
		s.client.Close()
	}
}

func analysisFromRow(v map[string]interface{}, t time.Time) messages.SoilAnalysisEvent {
	e := messages.SoilAnalysisEvent{
		AnalysisID: str(v["analysis_id"]),
		Texture:    str(v["texture"]),
		Latitude:   num(v["latitude"]),
		Longitude:  num(v["longitude"]),
		Rule:       int(num(v["rule"])),
		Sand:       num(v["sand"]),
		Silt:       num(v["silt"]),
		Clay:       num(v["clay"]),
		Timestamp:  t.UTC(),
	}
	if x, ok := v["ph"]; ok && x != nil {
		ph := num(x)
		e.PH = &ph
	}
	if x, ok := v["soc"]; ok && x != nil {
		soc := num(x)
		e.OrganicCarbon = &soc
	}
	return e
}

func num(v interface{}) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case int64:
		return float64(x)
	case int:
		return float64(x)
	case uint64:
		return float64(x)
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(x), 64); err == nil {
			return f
		}
	}
	return 0
}

func str(v interface{}) string {
	s, _ := v.(string)
	return s
}

func stamp(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}
