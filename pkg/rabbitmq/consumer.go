package rabbitmq

import (
	"context"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"
)

// Handler processes one message received on a subscription.
type Handler func(topic string, message mqtt.Message) error

// IConsumer subscribes to topics and hands messages to a Handler.
type IConsumer interface {
	ConsumeMessage(ctx context.Context)
	SetHandler(handler Handler)
}

// QoSFor picks the delivery level for a topic filter: samples and
// textures feed state, so they are delivered at least once.
func QoSFor(topic string) byte {
	t := strings.TrimSpace(topic)
	if strings.HasPrefix(t, "soil/sample") || strings.HasPrefix(t, "soil/texture") {
		return 1
	}
	return 0
}

// Consumer subscribes one or more topic filters on a shared client.
type Consumer struct {
	client  mqtt.Client
	topics  []string
	handler Handler
}

func NewConsumer(client mqtt.Client, topics []string, handler Handler) *Consumer {
	return &Consumer{client: client, topics: topics, handler: handler}
}

func (c *Consumer) SetHandler(handler Handler) {
	c.handler = handler
}

// ConsumeMessage subscribes and blocks until ctx is cancelled.
func (c *Consumer) ConsumeMessage(ctx context.Context) {
	for _, topic := range c.topics {
		topic := topic
		token := c.client.Subscribe(topic, QoSFor(topic), func(_ mqtt.Client, msg mqtt.Message) {
			if c.handler == nil {
				log.Warn().Str("topic", topic).Msg("mqtt: no handler set")
				return
			}
			if err := c.handler(topic, msg); err != nil {
				log.Error().Err(err).Str("topic", msg.Topic()).Msg("mqtt: handler failed")
			}
		})
		token.Wait()
		if err := token.Error(); err != nil {
			log.Error().Err(err).Str("topic", topic).Msg("mqtt: subscribe failed")
			continue
		}
		log.Info().Str("topic", topic).Msg("mqtt: subscribed")
	}

	<-ctx.Done()

	if c.client.IsConnected() {
		c.client.Unsubscribe(c.topics...).Wait()
	}
}
