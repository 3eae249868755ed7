package main

import (
	"time"

	"github.com/LeonardoBeccarini/agri_dashboard/internal/services/soil"
	"github.com/LeonardoBeccarini/agri_dashboard/pkg/env"
	"github.com/LeonardoBeccarini/agri_dashboard/pkg/rabbitmq"
)

type Config struct {
	LogLevel  string
	LogPretty bool

	FieldID  string
	ProbeIDs []string
	Lat      float64
	Lon      float64

	Interval time.Duration
	Noise    float64
	DropRate float64
	Topic    string

	// SEED_FROM_SOILGRIDS=false skips the startup lookup
	SeedFromSoilGrids bool
	SoilBaseURL       string

	Rabbit rabbitmq.RabbitMQConfig
}

func loadConfig() Config {
	return Config{
		LogLevel:  env.String("LOG_LEVEL", "info"),
		LogPretty: env.Bool("LOG_PRETTY", false),

		FieldID:  env.String("FIELD_ID", "field1"),
		ProbeIDs: env.List("PROBE_IDS", []string{"probe1"}),
		Lat:      env.Float("LAT", 41.51109),
		Lon:      env.Float("LON", 12.37007),

		Interval: env.Duration("INTERVAL", 10*time.Second),
		Noise:    env.Float("NOISE", 2),
		DropRate: env.Float("DROP_RATE", 0.05),
		Topic:    env.String("SAMPLE_TOPIC_TEMPLATE", "soil/sample/{field}/{probe}"),

		SeedFromSoilGrids: env.Bool("SEED_FROM_SOILGRIDS", true),
		SoilBaseURL:       env.String("SOILGRIDS_BASE_URL", soil.DefaultBaseURL),

		Rabbit: rabbitmq.RabbitMQConfig{
			Host:       env.String("RABBITMQ_HOST", "localhost"),
			Port:       env.Int("RABBITMQ_PORT", 1883),
			User:       env.String("RABBITMQ_USER", "guest"),
			Password:   env.String("RABBITMQ_PASSWORD", "guest"),
			ClientID:   env.String("RABBITMQ_CLIENTID", "probe-simulator"),
			MaxRetries: env.Int("RABBITMQ_MAX_RETRIES", 10),
		},
	}
}
