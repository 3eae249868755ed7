package main

import (
	"time"

	"github.com/LeonardoBeccarini/agri_dashboard/internal/storage"
	"github.com/LeonardoBeccarini/agri_dashboard/pkg/env"
	"github.com/LeonardoBeccarini/agri_dashboard/pkg/rabbitmq"
)

type Config struct {
	LogLevel  string
	LogPretty bool

	GRPCPort string
	HTTPPort string

	Rabbit       rabbitmq.RabbitMQConfig
	SampleTopics []string
	TextureTopic string

	Interval   time.Duration
	DedupTTL   time.Duration
	DedupMax   int
	StaleAfter time.Duration

	Influx storage.InfluxConfig
}

func loadConfig() Config {
	interval := env.Duration("AGGREGATION_INTERVAL", time.Minute)
	return Config{
		LogLevel:  env.String("LOG_LEVEL", "info"),
		LogPretty: env.Bool("LOG_PRETTY", false),

		GRPCPort: env.String("GRPC_PORT", "50061"),
		HTTPPort: env.String("HTTP_PORT", "8081"),

		Rabbit: rabbitmq.RabbitMQConfig{
			Host:       env.String("RABBITMQ_HOST", "localhost"),
			Port:       env.Int("RABBITMQ_PORT", 1883),
			User:       env.String("RABBITMQ_USER", "guest"),
			Password:   env.String("RABBITMQ_PASSWORD", "guest"),
			ClientID:   env.String("RABBITMQ_CLIENTID", "texture-classifier"),
			MaxRetries: env.Int("RABBITMQ_MAX_RETRIES", 10),
		},
		SampleTopics: env.List("SAMPLE_TOPICS", []string{"soil/sample/#"}),
		TextureTopic: env.String("TEXTURE_TOPIC_TEMPLATE", "soil/texture/{field}/{probe}"),

		Interval:   interval,
		DedupTTL:   env.Duration("DEDUP_TTL", 10*time.Minute),
		DedupMax:   env.Int("DEDUP_MAX", 10000),
		StaleAfter: env.Duration("READY_STALE_AFTER", 3*interval),

		// INFLUX_TOKEN empty disables persistence
		Influx: storage.InfluxConfig{
			URL:    env.String("INFLUX_URL", "http://localhost:8086"),
			Token:  env.String("INFLUX_TOKEN", ""),
			Org:    env.String("INFLUX_ORG", "agri"),
			Bucket: env.String("INFLUX_BUCKET", "soil"),
		},
	}
}
