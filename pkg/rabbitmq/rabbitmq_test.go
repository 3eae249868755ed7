package rabbitmq

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeonardoBeccarini/agri_dashboard/pkg/rabbitmq/rabbitmqtest"
)

func TestQoSFor(t *testing.T) {
	assert.Equal(t, byte(1), QoSFor("soil/sample/#"))
	assert.Equal(t, byte(1), QoSFor(" soil/texture/f1/p1"))
	assert.Equal(t, byte(0), QoSFor("soil/analysis/loam"))
}

func TestBrokerURL(t *testing.T) {
	cfg := &RabbitMQConfig{Host: "rabbit", Port: 1883}
	assert.Equal(t, "tcp://rabbit:1883", cfg.BrokerURL())
}

func TestPublisher_PublishJSON(t *testing.T) {
	client := rabbitmqtest.NewClient()
	p := NewPublisher(client)

	require.NoError(t, p.PublishJSON("soil/analysis/loam", 0, map[string]string{"label": "Loam"}))
	pubs := client.Published()
	require.Len(t, pubs, 1)
	assert.Equal(t, "soil/analysis/loam", pubs[0].Topic)
	assert.JSONEq(t, `{"label":"Loam"}`, string(pubs[0].Payload))

	client.PublishErr = errors.New("broker gone")
	assert.Error(t, p.PublishJSON("x", 0, 1))

	p.Close()
	assert.False(t, client.IsConnected())
}

func TestConsumer_DispatchesUntilCancelled(t *testing.T) {
	client := rabbitmqtest.NewClient()
	var got atomic.Int32
	c := NewConsumer(client, []string{"soil/sample/#"}, nil)
	c.SetHandler(func(topic string, m mqtt.Message) error {
		assert.Equal(t, "soil/sample/#", topic)
		got.Add(1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.ConsumeMessage(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(client.Subscriptions()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, client.Deliver("soil/sample/f1/p1", []byte(`{}`)))
	assert.Equal(t, 0, client.Deliver("soil/texture/f1/p1", []byte(`{}`)))
	assert.Equal(t, int32(1), got.Load())

	cancel()
	<-done
	assert.Empty(t, client.Subscriptions())
}
