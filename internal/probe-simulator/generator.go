package probe_simulator

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/LeonardoBeccarini/agri_dashboard/internal/model/entities"
	"github.com/LeonardoBeccarini/agri_dashboard/internal/model/messages"
	"github.com/LeonardoBeccarini/agri_dashboard/pkg/soiltexture"
)

// DefaultBase is used when SoilGrids cannot be reached: a plain loam.
var DefaultBase = soiltexture.Composition{Sand: 40, Silt: 40, Clay: 20}

// SoilFetcher looks up the surveyed soil at a point.
type SoilFetcher interface {
	Fetch(ctx context.Context, loc entities.Location) (entities.SoilProperties, error)
}

// Probe is a simulated in-field texture probe.
type Probe struct {
	FieldID string
	ID      string
}

// DataGenerator produces noisy readings around a base composition.
// It does at most one SoilGrids lookup, at startup.
type DataGenerator struct {
	mu       sync.Mutex
	seeded   bool
	base     soiltexture.Composition
	noise    float64 // std dev of each fraction, percentage points
	dropRate float64 // probability that a reading loses one fraction
	rng      *rand.Rand
	now      func() time.Time
}

func NewDataGenerator(noise, dropRate float64, rng *rand.Rand) *DataGenerator {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &DataGenerator{
		base:     DefaultBase,
		noise:    math.Max(0, noise),
		dropRate: math.Min(1, math.Max(0, dropRate)),
		rng:      rng,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SeedFromSoilGrids fetches the surveyed composition once; on any failure
// the loam default is kept.
func (g *DataGenerator) SeedFromSoilGrids(ctx context.Context, fetcher SoilFetcher, loc entities.Location) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.seeded {
		return
	}
	g.seeded = true
	if fetcher == nil {
		return
	}

	props, err := fetcher.Fetch(ctx, loc)
	if err != nil {
		log.Warn().Err(err).Str("loc", loc.Query()).Msg("probe: soilgrids seed failed, using loam default")
		return
	}
	if props.Composition.Total() <= 0 {
		return
	}
	g.base = props.Composition
	log.Info().
		Float64("sand", g.base.Sand).Float64("silt", g.base.Silt).Float64("clay", g.base.Clay).
		Str("expected", soiltexture.ClassifySoilTexture(g.base.Sand, g.base.Silt, g.base.Clay).String()).
		Msg("probe: seeded from soilgrids")
}

func (g *DataGenerator) Base() soiltexture.Composition {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.base
}

// Next returns one reading for probe.
func (g *DataGenerator) Next(p Probe) messages.SoilSampleEvent {
	g.mu.Lock()
	defer g.mu.Unlock()

	fractions := [3]float64{g.base.Sand, g.base.Silt, g.base.Clay}
	for i := range fractions {
		fractions[i] = round1(clamp(fractions[i]+g.rng.NormFloat64()*g.noise, 0, 100))
	}
	// a fouled sensor element reads zero; the classifier rescales the rest
	if g.dropRate > 0 && g.rng.Float64() < g.dropRate {
		fractions[g.rng.IntN(3)] = 0
	}

	return messages.SoilSampleEvent{
		FieldID:   p.FieldID,
		ProbeID:   p.ID,
		Sand:      fractions[0],
		Silt:      fractions[1],
		Clay:      fractions[2],
		Timestamp: g.now(),
	}
}

func clamp(x, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, x))
}

func round1(x float64) float64 { return math.Round(x*10) / 10 }
