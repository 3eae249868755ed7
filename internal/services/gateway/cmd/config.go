package main

import (
	"time"

	"github.com/LeonardoBeccarini/agri_dashboard/internal/services/advisor"
	"github.com/LeonardoBeccarini/agri_dashboard/internal/services/soil"
	"github.com/LeonardoBeccarini/agri_dashboard/internal/storage"
	"github.com/LeonardoBeccarini/agri_dashboard/pkg/env"
	"github.com/LeonardoBeccarini/agri_dashboard/pkg/rabbitmq"
	"github.com/LeonardoBeccarini/agri_dashboard/pkg/upstream"
)

type Config struct {
	LogLevel  string
	LogPretty bool

	Port           string
	HTTPTimeout    time.Duration
	MaxUploadBytes int64
	ForecastDays   int

	WeatherAPIKey  string
	WeatherBaseURL string
	SoilBaseURL    string
	SoilDepth      string
	Upstream       upstream.Config // shared retry and breaker settings

	Gemini        advisor.GeminiConfig
	AdviceTimeout time.Duration

	// CLASSIFIER_ADDR empty classifies in process
	ClassifierAddr string

	AnalysisTopic string
	Rabbit        rabbitmq.RabbitMQConfig

	// INFLUX_TOKEN empty disables history
	Influx storage.InfluxConfig
}

func loadConfig() Config {
	return Config{
		LogLevel:  env.String("LOG_LEVEL", "info"),
		LogPretty: env.Bool("LOG_PRETTY", false),

		Port:           env.String("PORT", "5009"),
		HTTPTimeout:    env.Duration("HTTP_TIMEOUT", 20*time.Second),
		MaxUploadBytes: int64(env.Int("MAX_UPLOAD_BYTES", 8<<20)),
		ForecastDays:   env.Int("FORECAST_DAYS", 7),

		WeatherAPIKey:  env.String("WEATHER_API_KEY", ""),
		WeatherBaseURL: env.String("WEATHER_BASE_URL", ""),
		SoilBaseURL:    env.String("SOILGRIDS_BASE_URL", soil.DefaultBaseURL),
		SoilDepth:      env.String("SOILGRIDS_DEPTH", soil.DefaultDepth),
		Upstream: upstream.Config{
			Timeout:         env.Duration("UPSTREAM_TIMEOUT", 8*time.Second),
			Retries:         env.Int("UPSTREAM_RETRIES", 2),
			RetryInterval:   env.Duration("UPSTREAM_RETRY_INTERVAL", 500*time.Millisecond),
			BreakerFailures: env.Int("CB_FAILS", 5),
			BreakerOpenFor:  env.Duration("CB_OPEN_FOR", 30*time.Second),
			BreakerInterval: env.Duration("CB_INTERVAL", time.Minute),
			UserAgent:       env.String("USER_AGENT", "agri-dashboard/1.0"),
		},

		Gemini: advisor.GeminiConfig{
			APIKey:      env.String("GEMINI_API_KEY", ""),
			Model:       env.String("GEMINI_MODEL", advisor.DefaultModel),
			Temperature: float32(env.Float("GEMINI_TEMPERATURE", 0.2)),
		},
		AdviceTimeout: env.Duration("ADVICE_TIMEOUT", 30*time.Second),

		ClassifierAddr: env.String("CLASSIFIER_ADDR", ""),

		AnalysisTopic: env.String("ANALYSIS_TOPIC_TEMPLATE", soil.DefaultAnalysisTopic),
		Rabbit: rabbitmq.RabbitMQConfig{
			Host:       env.String("RABBITMQ_HOST", ""),
			Port:       env.Int("RABBITMQ_PORT", 1883),
			User:       env.String("RABBITMQ_USER", "guest"),
			Password:   env.String("RABBITMQ_PASSWORD", "guest"),
			ClientID:   env.String("RABBITMQ_CLIENTID", "gateway"),
			MaxRetries: env.Int("RABBITMQ_MAX_RETRIES", 5),
		},

		Influx: storage.InfluxConfig{
			URL:    env.String("INFLUX_URL", "http://localhost:8086"),
			Token:  env.String("INFLUX_TOKEN", ""),
			Org:    env.String("INFLUX_ORG", "agri"),
			Bucket: env.String("INFLUX_BUCKET", "soil"),
		},
	}
}
