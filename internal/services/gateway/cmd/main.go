package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/LeonardoBeccarini/agri_dashboard/internal/services/advisor"
	"github.com/LeonardoBeccarini/agri_dashboard/internal/services/classifier"
	"github.com/LeonardoBeccarini/agri_dashboard/internal/services/gateway/app"
	"github.com/LeonardoBeccarini/agri_dashboard/internal/services/soil"
	"github.com/LeonardoBeccarini/agri_dashboard/internal/services/weather"
	"github.com/LeonardoBeccarini/agri_dashboard/internal/storage"
	"github.com/LeonardoBeccarini/agri_dashboard/pkg/logging"
	"github.com/LeonardoBeccarini/agri_dashboard/pkg/rabbitmq"
)

func main() {
	cfg := loadConfig()
	logging.Setup("gateway", cfg.LogLevel, cfg.LogPretty)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps := app.Deps{Gatherer: prometheus.DefaultGatherer}

	// ---- Upstreams (one breaker each) ----
	wc := weather.NewClient(weather.Config{APIKey: cfg.WeatherAPIKey, BaseURL: cfg.WeatherBaseURL, Upstream: cfg.Upstream})
	deps.Weather = wc
	if cfg.WeatherAPIKey == "" {
		log.Warn().Msg("WEATHER_API_KEY not set, weather requests will answer 503")
	}
	sc := soil.NewClient(soil.ClientConfig{BaseURL: cfg.SoilBaseURL, Depth: cfg.SoilDepth, Upstream: cfg.Upstream})
	deps.Breakers = []app.Breaker{wc.Upstream(), sc.Upstream()}

	// ---- Advisor (optional) ----
	var recommender soil.Recommender
	if cfg.Gemini.APIKey != "" {
		gen, err := advisor.NewGeminiGenerator(ctx, cfg.Gemini)
		if err != nil {
			log.Fatal().Err(err).Msg("gemini client")
		}
		adv, err := advisor.New(advisor.Config{Timeout: cfg.AdviceTimeout, MaxImageBytes: int(cfg.MaxUploadBytes)}, gen)
		if err != nil {
			log.Fatal().Err(err).Msg("advisor")
		}
		deps.Advisor = adv
		recommender = adv
	} else {
		log.Warn().Msg("GEMINI_API_KEY not set, recommendations and pest detection disabled")
	}

	// ---- Influx (optional) ----
	var store soil.Store
	if cfg.Influx.Token != "" {
		s, err := storage.NewInfluxStore(cfg.Influx)
		if err != nil {
			log.Fatal().Err(err).Msg("influx store")
		}
		defer s.Close()
		store = s
		deps.History = s
	} else {
		log.Warn().Msg("INFLUX_TOKEN not set, analyses will not be stored")
	}

	// ---- MQTT (optional) ----
	var publisher rabbitmq.IPublisher
	if cfg.Rabbit.Host != "" {
		client, err := rabbitmq.NewRabbitMQConn(ctx, &cfg.Rabbit)
		if err != nil {
			log.Fatal().Err(err).Msg("mqtt connect")
		}
		p := rabbitmq.NewPublisher(client)
		defer p.Close()
		publisher = p
	}

	analyzer, err := soil.NewAnalyzer(sc, recommender, store, publisher, cfg.AnalysisTopic)
	if err != nil {
		log.Fatal().Err(err).Msg("soil analyzer")
	}
	deps.Soil = analyzer

	// ---- Remote classifier (optional) ----
	if cfg.ClassifierAddr != "" {
		cc, err := classifier.Dial(cfg.ClassifierAddr)
		if err != nil {
			log.Fatal().Err(err).Msg("classifier dial")
		}
		defer cc.Close()
		deps.Classifier = cc
	}

	gw := app.NewGateway(app.Config{
		HTTPTimeout:    cfg.HTTPTimeout,
		MaxUploadBytes: cfg.MaxUploadBytes,
		ForecastDays:   cfg.ForecastDays,
	}, deps, app.NewMetrics(prometheus.DefaultRegisterer))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           gw.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("gateway listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http serve")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
