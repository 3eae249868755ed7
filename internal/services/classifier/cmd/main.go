package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"

	"github.com/LeonardoBeccarini/agri_dashboard/internal/services/classifier"
	"github.com/LeonardoBeccarini/agri_dashboard/internal/storage"
	"github.com/LeonardoBeccarini/agri_dashboard/pkg/dedup"
	"github.com/LeonardoBeccarini/agri_dashboard/pkg/logging"
	"github.com/LeonardoBeccarini/agri_dashboard/pkg/rabbitmq"
)

func main() {
	cfg := loadConfig()
	logging.Setup("texture-classifier", cfg.LogLevel, cfg.LogPretty)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := classifier.NewMetrics(prometheus.DefaultRegisterer)

	// ---- MQTT ----
	client, err := rabbitmq.NewRabbitMQConn(ctx, &cfg.Rabbit)
	if err != nil {
		log.Fatal().Err(err).Msg("mqtt connect")
	}
	publisher := rabbitmq.NewPublisher(client)
	defer publisher.Close()
	consumer := rabbitmq.NewConsumer(client, cfg.SampleTopics, nil)

	// ---- Influx (optional) ----
	health := classifier.HealthDeps{MQTT: client, StaleAfter: cfg.StaleAfter, Gatherer: prometheus.DefaultGatherer}
	var store classifier.TextureStore
	if cfg.Influx.Token != "" {
		s, err := storage.NewInfluxStore(cfg.Influx)
		if err != nil {
			log.Fatal().Err(err).Msg("influx store")
		}
		defer s.Close()
		store = s
		health.Influx = s
	} else {
		log.Warn().Msg("INFLUX_TOKEN not set, textures will not be stored")
	}

	worker := classifier.NewWorker(consumer, publisher, store,
		dedup.New(cfg.DedupTTL, cfg.DedupMax), metrics,
		classifier.WorkerConfig{Interval: cfg.Interval, TopicTemplate: cfg.TextureTopic})
	health.Worker = worker

	// ---- gRPC ----
	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		log.Fatal().Err(err).Str("port", cfg.GRPCPort).Msg("grpc listen")
	}
	grpcServer := grpc.NewServer()
	classifier.RegisterTextureClassifierServer(grpcServer, classifier.NewGrpcHandler(metrics))
	go func() {
		log.Info().Str("addr", lis.Addr().String()).Msg("TextureClassifier gRPC listening")
		if err := grpcServer.Serve(lis); err != nil {
			log.Error().Err(err).Msg("grpc serve")
		}
	}()

	// ---- HTTP health/metrics ----
	hs := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           classifier.NewHTTPHandler(health),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info().Str("addr", hs.Addr).Msg("health endpoint listening")
		if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http serve")
		}
	}()

	log.Info().Strs("topics", cfg.SampleTopics).Dur("interval", cfg.Interval).Msg("texture worker running")
	worker.Start(ctx)

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = hs.Shutdown(shutdownCtx)
	grpcServer.GracefulStop()
}
