package rabbitmq

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"
)

// IPublisher publishes payloads on MQTT topics.
type IPublisher interface {
	// PublishJSON marshals v and publishes it on topic.
	PublishJSON(topic string, qos byte, v any) error
	Close()
}

type Publisher struct {
	client  mqtt.Client
	timeout time.Duration
}

func NewPublisher(client mqtt.Client) *Publisher {
	return &Publisher{client: client, timeout: 5 * time.Second}
}

func (p *Publisher) PublishJSON(topic string, qos byte, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message for %s: %w", topic, err)
	}
	token := p.client.Publish(topic, qos, false, b)
	if !token.WaitTimeout(p.timeout) {
		return fmt.Errorf("publish to %s: timed out after %s", topic, p.timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	log.Debug().Str("topic", topic).Int("qos", int(qos)).Int("bytes", len(b)).Msg("mqtt: published")
	return nil
}

// Close disconnects the shared client.
func (p *Publisher) Close() {
	CloseRabbitMQConn(p.client)
}
