package rabbitmq

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"
)

// RabbitMQConfig points at the RabbitMQ MQTT plugin.
type RabbitMQConfig struct {
	Host       string
	Port       int
	User       string
	Password   string
	ClientID   string
	MaxRetries int
}

func (c *RabbitMQConfig) BrokerURL() string {
	return fmt.Sprintf("tcp://%s:%d", c.Host, c.Port)
}

// NewRabbitMQConn connects with exponential backoff and disconnects when ctx ends.
func NewRabbitMQConn(ctx context.Context, cfg *RabbitMQConfig) (mqtt.Client, error) {
	connAddr := cfg.BrokerURL()

	opts := mqtt.NewClientOptions()
	opts.AddBroker(connAddr)
	opts.SetUsername(cfg.User)
	opts.SetPassword(cfg.Password)
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Str("broker", connAddr).Msg("mqtt: connection lost")
	})

	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 5
	}
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 10 * time.Second

	var client mqtt.Client
	err := backoff.Retry(func() error {
		client = mqtt.NewClient(opts)
		if token := client.Connect(); token.Wait() && token.Error() != nil {
			log.Warn().Err(token.Error()).Str("broker", connAddr).Msg("mqtt: connect failed")
			return token.Error()
		}
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(maxRetries-1)), ctx))
	if err != nil {
		return nil, fmt.Errorf("could not establish MQTT connection after retries: %w", err)
	}

	log.Info().Str("broker", connAddr).Str("client_id", cfg.ClientID).Msg("mqtt: connected")

	go func() {
		<-ctx.Done()
		CloseRabbitMQConn(client)
	}()

	return client, nil
}

func CloseRabbitMQConn(client mqtt.Client) {
	if client != nil && client.IsConnected() {
		client.Disconnect(250)
		log.Info().Msg("mqtt: connection closed")
	}
}
