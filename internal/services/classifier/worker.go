package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/LeonardoBeccarini/agri_dashboard/internal/model"
	"github.com/LeonardoBeccarini/agri_dashboard/internal/model/messages"
	"github.com/LeonardoBeccarini/agri_dashboard/pkg/dedup"
	"github.com/LeonardoBeccarini/agri_dashboard/pkg/rabbitmq"
	"github.com/LeonardoBeccarini/agri_dashboard/pkg/soiltexture"
)

const DefaultTextureTopic = "soil/texture/{field}/{probe}"

type TextureStore interface {
	WriteTexture(ctx context.Context, e messages.SoilTextureEvent) error
}

type WorkerConfig struct {
	Interval      time.Duration
	TopicTemplate string
}

type probeKey struct{ field, probe string }

// Worker buffers probe samples and, on every tick, classifies the mean
// composition of each probe.
type Worker struct {
	consumer  rabbitmq.IConsumer
	publisher rabbitmq.IPublisher
	store     TextureStore
	dedup     *dedup.Deduper
	metrics   *Metrics
	interval  time.Duration
	topicTmpl string
	now       func() time.Time

	mu     sync.Mutex
	buffer map[probeKey][]messages.SoilSampleEvent

	lastFlush time.Time
}

// NewWorker wires the worker; store and dedup may be nil.
func NewWorker(consumer rabbitmq.IConsumer, publisher rabbitmq.IPublisher, store TextureStore, d *dedup.Deduper, m *Metrics, cfg WorkerConfig) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if strings.TrimSpace(cfg.TopicTemplate) == "" {
		cfg.TopicTemplate = DefaultTextureTopic
	}
	return &Worker{
		consumer:  consumer,
		publisher: publisher,
		store:     store,
		dedup:     d,
		metrics:   m,
		interval:  cfg.Interval,
		topicTmpl: cfg.TopicTemplate,
		now:       func() time.Time { return time.Now().UTC() },
		buffer:    make(map[probeKey][]messages.SoilSampleEvent),
	}
}

func (w *Worker) handleSample(topic string, msg mqtt.Message) error {
	if w.dedup != nil && !w.dedup.ShouldProcessMessage(msg.Topic(), msg.Payload()) {
		w.countSample("duplicate")
		return nil
	}

	var s messages.SoilSampleEvent
	if err := json.Unmarshal(msg.Payload(), &s); err != nil {
		w.countSample("invalid")
		return fmt.Errorf("classifier: bad sample on %s: %w", msg.Topic(), err)
	}
	// soil/sample/{field}/{probe}
	if parts := strings.Split(msg.Topic(), "/"); len(parts) >= 4 {
		if s.FieldID == "" {
			s.FieldID = parts[2]
		}
		if s.ProbeID == "" {
			s.ProbeID = parts[3]
		}
	}
	if err := model.Validate(s); err != nil {
		w.countSample("invalid")
		return fmt.Errorf("classifier: rejected sample on %s: %w", msg.Topic(), err)
	}

	w.mu.Lock()
	k := probeKey{s.FieldID, s.ProbeID}
	w.buffer[k] = append(w.buffer[k], s)
	w.mu.Unlock()

	w.countSample("accepted")
	if w.metrics != nil {
		w.metrics.Buffered.Inc()
	}
	log.Debug().Str("field", s.FieldID).Str("probe", s.ProbeID).Msg("classifier: sample buffered")
	return nil
}

// Start consumes samples and flushes every interval until ctx is done.
// It returns once the consumer has stopped.
func (w *Worker) Start(ctx context.Context) {
	w.consumer.SetHandler(w.handleSample)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.consumer.ConsumeMessage(ctx)
	}()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case <-ticker.C:
			w.Flush(ctx)
		}
	}
}

// Flush classifies the mean of every buffered probe, publishes and stores
// the textures, and empties the buffer. It returns what was produced.
func (w *Worker) Flush(ctx context.Context) []messages.SoilTextureEvent {
	w.mu.Lock()
	pending := w.buffer
	w.buffer = make(map[probeKey][]messages.SoilSampleEvent, len(pending))
	w.lastFlush = w.now()
	w.mu.Unlock()

	if w.metrics != nil {
		w.metrics.Buffered.Set(0)
	}

	keys := make([]probeKey, 0, len(pending))
	for k := range pending {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].field != keys[j].field {
			return keys[i].field < keys[j].field
		}
		return keys[i].probe < keys[j].probe
	})

	out := make([]messages.SoilTextureEvent, 0, len(keys))
	for _, k := range keys {
		samples := pending[k]
		if len(samples) == 0 {
			continue
		}
		evt := w.texture(k, samples)
		w.deliver(ctx, evt)
		out = append(out, evt)
	}
	if len(out) > 0 {
		log.Info().Int("probes", len(out)).Msg("classifier: aggregation cycle done")
	}
	return out
}

func (w *Worker) texture(k probeKey, samples []messages.SoilSampleEvent) messages.SoilTextureEvent {
	var mean soiltexture.Composition
	for _, s := range samples {
		mean.Sand += s.Sand
		mean.Silt += s.Silt
		mean.Clay += s.Clay
	}
	n := float64(len(samples))
	mean.Sand /= n
	mean.Silt /= n
	mean.Clay /= n

	res := soiltexture.Analyze(mean)
	if w.metrics != nil {
		w.metrics.Classifications.WithLabelValues(string(res.Label), "worker").Inc()
	}
	return messages.SoilTextureEvent{
		FieldID:   k.field,
		ProbeID:   k.probe,
		Texture:   string(res.Label),
		Rule:      res.Rule,
		Sand:      res.Normalized.Sand,
		Silt:      res.Normalized.Silt,
		Clay:      res.Normalized.Clay,
		Rescaled:  res.Rescaled,
		Samples:   len(samples),
		Timestamp: w.now(),
	}
}

func (w *Worker) deliver(ctx context.Context, evt messages.SoilTextureEvent) {
	topic := strings.NewReplacer("{field}", evt.FieldID, "{probe}", evt.ProbeID).Replace(w.topicTmpl)
	if err := w.publisher.PublishJSON(topic, 1, evt); err != nil {
		w.sinkFailed("mqtt")
		log.Error().Err(err).Str("topic", topic).Msg("classifier: texture not published")
	} else if w.metrics != nil {
		w.metrics.Published.Inc()
	}

	if w.store == nil {
		return
	}
	if err := w.store.WriteTexture(ctx, evt); err != nil {
		w.sinkFailed("influx")
		log.Error().Err(err).Str("probe", evt.ProbeID).Msg("classifier: texture not stored")
	}
}

// LastFlush is the time of the last aggregation cycle, zero before the first.
func (w *Worker) LastFlush() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastFlush
}

func (w *Worker) countSample(outcome string) {
	if w.metrics != nil {
		w.metrics.Samples.WithLabelValues(outcome).Inc()
	}
}

func (w *Worker) sinkFailed(sink string) {
	if w.metrics != nil {
		w.metrics.SinkFailures.WithLabelValues(sink).Inc()
	}
}
