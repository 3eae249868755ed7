// Package rabbitmqtest provides in-memory stand-ins for the MQTT client.
package rabbitmqtest

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Message implements mqtt.Message.
type Message struct {
	TopicName string
	Body      []byte
	QoS       byte
	Dup       bool
	ID        uint16
}

func NewMessage(topic string, payload []byte) *Message {
	return &Message{TopicName: topic, Body: payload}
}

func (m *Message) Duplicate() bool   { return m.Dup }
func (m *Message) Qos() byte         { return m.QoS }
func (m *Message) Retained() bool    { return false }
func (m *Message) Topic() string     { return m.TopicName }
func (m *Message) MessageID() uint16 { return m.ID }
func (m *Message) Payload() []byte   { return m.Body }
func (m *Message) Ack()              {}

type token struct{ err error }

func (t *token) Wait() bool                     { return true }
func (t *token) WaitTimeout(time.Duration) bool { return true }
func (t *token) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t *token) Error() error { return t.err }

// Published is one recorded Publish call.
type Published struct {
	Topic   string
	QoS     byte
	Payload []byte
}

// Decode unmarshals the recorded payload into v.
func (p Published) Decode(v any) error { return json.Unmarshal(p.Payload, v) }

// Client implements mqtt.Client and records traffic.
type Client struct {
	mu         sync.Mutex
	connected  bool
	subs       map[string]mqtt.MessageHandler
	published  []Published
	PublishErr error
}

func NewClient() *Client {
	return &Client{connected: true, subs: make(map[string]mqtt.MessageHandler)}
}

func (c *Client) IsConnected() bool      { c.mu.Lock(); defer c.mu.Unlock(); return c.connected }
func (c *Client) IsConnectionOpen() bool { return c.IsConnected() }
func (c *Client) Connect() mqtt.Token    { c.mu.Lock(); c.connected = true; c.mu.Unlock(); return &token{} }
func (c *Client) Disconnect(uint)        { c.mu.Lock(); c.connected = false; c.mu.Unlock() }

func (c *Client) Publish(topic string, qos byte, _ bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.PublishErr != nil {
		return &token{err: c.PublishErr}
	}
	var b []byte
	switch p := payload.(type) {
	case []byte:
		b = append([]byte(nil), p...)
	case string:
		b = []byte(p)
	default:
		return &token{err: fmt.Errorf("unsupported payload %T", payload)}
	}
	c.published = append(c.published, Published{Topic: topic, QoS: qos, Payload: b})
	return &token{}
}

func (c *Client) Subscribe(topic string, _ byte, callback mqtt.MessageHandler) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs[topic] = callback
	return &token{}
}

func (c *Client) SubscribeMultiple(filters map[string]byte, callback mqtt.MessageHandler) mqtt.Token {
	for f, q := range filters {
		c.Subscribe(f, q, callback)
	}
	return &token{}
}

func (c *Client) Unsubscribe(topics ...string) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range topics {
		delete(c.subs, t)
	}
	return &token{}
}

func (c *Client) AddRoute(topic string, callback mqtt.MessageHandler) { c.Subscribe(topic, 0, callback) }

func (c *Client) OptionsReader() mqtt.ClientOptionsReader {
	return mqtt.ClientOptionsReader{}
}

// Subscriptions lists the active topic filters.
func (c *Client) Subscriptions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.subs))
	for k := range c.subs {
		out = append(out, k)
	}
	return out
}

// Published returns a copy of everything published so far.
func (c *Client) Published() []Published {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Published(nil), c.published...)
}

// Deliver hands payload to every subscription whose filter matches topic.
// It returns the number of handlers invoked.
func (c *Client) Deliver(topic string, payload []byte) int {
	c.mu.Lock()
	var hs []mqtt.MessageHandler
	for f, h := range c.subs {
		if Match(f, topic) {
			hs = append(hs, h)
		}
	}
	c.mu.Unlock()
	for _, h := range hs {
		h(c, NewMessage(topic, payload))
	}
	return len(hs)
}

// Match implements MQTT topic filter matching for "+" and "#".
func Match(filter, topic string) bool {
	fp := strings.Split(filter, "/")
	tp := strings.Split(topic, "/")
	for i, f := range fp {
		if f == "#" {
			return true
		}
		if i >= len(tp) {
			return false
		}
		if f != "+" && f != tp[i] {
			return false
		}
	}
	return len(fp) == len(tp)
}
