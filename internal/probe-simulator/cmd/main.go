package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/LeonardoBeccarini/agri_dashboard/internal/model/entities"
	probeSimulator "github.com/LeonardoBeccarini/agri_dashboard/internal/probe-simulator"
	"github.com/LeonardoBeccarini/agri_dashboard/internal/services/soil"
	"github.com/LeonardoBeccarini/agri_dashboard/pkg/logging"
	"github.com/LeonardoBeccarini/agri_dashboard/pkg/rabbitmq"
)

func main() {
	cfg := loadConfig()
	logging.Setup("probe-simulator", cfg.LogLevel, cfg.LogPretty)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loc := entities.Location{Latitude: cfg.Lat, Longitude: cfg.Lon}
	generator := probeSimulator.NewDataGenerator(cfg.Noise, cfg.DropRate, nil)
	if cfg.SeedFromSoilGrids {
		seedCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		generator.SeedFromSoilGrids(seedCtx, soil.NewClient(soil.ClientConfig{BaseURL: cfg.SoilBaseURL}), loc)
		cancel()
	}

	client, err := rabbitmq.NewRabbitMQConn(ctx, &cfg.Rabbit)
	if err != nil {
		log.Fatal().Err(err).Msg("mqtt connect")
	}

	probes := make([]probeSimulator.Probe, 0, len(cfg.ProbeIDs))
	for _, id := range cfg.ProbeIDs {
		probes = append(probes, probeSimulator.Probe{FieldID: cfg.FieldID, ID: id})
	}
	sim := probeSimulator.NewProbeSimulator(rabbitmq.NewPublisher(client), generator, probes, cfg.Topic)

	log.Info().Str("field", cfg.FieldID).Strs("probes", cfg.ProbeIDs).Dur("interval", cfg.Interval).Msg("probe simulator running")
	sim.Start(ctx, cfg.Interval)
}
