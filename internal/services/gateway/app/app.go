package app

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/LeonardoBeccarini/agri_dashboard/internal/model/entities"
	"github.com/LeonardoBeccarini/agri_dashboard/internal/model/messages"
	"github.com/LeonardoBeccarini/agri_dashboard/internal/services/advisor"
	"github.com/LeonardoBeccarini/agri_dashboard/internal/services/soil"
	"github.com/LeonardoBeccarini/agri_dashboard/internal/services/weather"
	"github.com/LeonardoBeccarini/agri_dashboard/pkg/soiltexture"
)

type WeatherService interface {
	Forecast(ctx context.Context, loc entities.Location, days int) (weather.Forecast, error)
}

type SoilAnalyzer interface {
	Analyze(ctx context.Context, req soil.AnalyzeRequest) (soil.Analysis, error)
}

type Advisor interface {
	RecommendCrops(ctx context.Context, loc entities.Location, soilType string) (advisor.CropRecommendations, error)
	DetectPest(ctx context.Context, img advisor.Image) (advisor.PestDetection, error)
}

type HistoryStore interface {
	RecentAnalyses(ctx context.Context, minutes, limit int) ([]messages.SoilAnalysisEvent, error)
}

// Classifier is the remote texture classifier.
type Classifier interface {
	Classify(ctx context.Context, c soiltexture.Composition) (soiltexture.Result, error)
}

// Breaker exposes the circuit state of an upstream.
type Breaker interface {
	Name() string
	State() string
}

// Deps are the collaborators of the gateway. Any of them may be nil: the
// routes that need a missing one answer 503, and a nil Classifier means
// textures are classified in process.
type Deps struct {
	Weather    WeatherService
	Soil       SoilAnalyzer
	Advisor    Advisor
	History    HistoryStore
	Classifier Classifier
	Breakers   []Breaker
	Gatherer   prometheus.Gatherer
}

type Config struct {
	HTTPTimeout    time.Duration
	MaxUploadBytes int64
	ForecastDays   int

	HistoryMinutes    int
	HistoryMaxMinutes int
	HistoryLimit      int
	HistoryMaxLimit   int
}

func (c *Config) defaults() {
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 20 * time.Second
	}
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = 8 << 20
	}
	if c.ForecastDays <= 0 {
		c.ForecastDays = weather.DefaultDays
	}
	if c.HistoryMinutes <= 0 {
		c.HistoryMinutes = 1440
	}
	if c.HistoryMaxMinutes <= 0 {
		c.HistoryMaxMinutes = 43200
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = 50
	}
	if c.HistoryMaxLimit <= 0 {
		c.HistoryMaxLimit = 500
	}
}

type Gateway struct {
	cfg     Config
	deps    Deps
	metrics *Metrics

	// last good dashboard sections per location, served when an upstream fails
	mu       sync.RWMutex
	lastGood map[string]DashboardData
}

func NewGateway(cfg Config, deps Deps, metrics *Metrics) *Gateway {
	cfg.defaults()
	if metrics == nil {
		metrics = NewMetrics(prometheus.NewRegistry())
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	return &Gateway{cfg: cfg, deps: deps, metrics: metrics, lastGood: map[string]DashboardData{}}
}

// Router builds the gin engine with every route of the dashboard API.
func (g *Gateway) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), g.metrics.middleware())
	r.MaxMultipartMemory = g.cfg.MaxUploadBytes

	r.GET("/healthz", g.HandleHealth)
	r.GET("/readyz", g.HandleReady)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(g.deps.Gatherer, promhttp.HandlerOpts{})))

	v1 := r.Group("/api/v1")
	v1.GET("/weather", g.HandleWeather)
	v1.POST("/soil/classify", g.HandleClassify)
	v1.POST("/soil/analyze", g.HandleAnalyze)
	v1.GET("/soil/history", g.HandleHistory)
	v1.POST("/recommendations", g.HandleRecommendations)
	v1.POST("/pests/detect", g.HandleDetectPest)
	v1.GET("/dashboard", g.HandleDashboard)
	return r
}

func (g *Gateway) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// HandleReady reports breaker states; any open breaker makes the gateway not ready.
func (g *Gateway) HandleReady(c *gin.Context) {
	states := make([]BreakerState, 0, len(g.deps.Breakers))
	code := http.StatusOK
	for _, b := range g.deps.Breakers {
		s := b.State()
		if s == "open" {
			code = http.StatusServiceUnavailable
		}
		states = append(states, BreakerState{Name: b.Name(), State: s})
	}
	status := "ok"
	if code != http.StatusOK {
		status = "degraded"
	}
	c.JSON(code, gin.H{"status": status, "upstreams": states})
}

func (g *Gateway) withTimeout(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), g.cfg.HTTPTimeout)
}
