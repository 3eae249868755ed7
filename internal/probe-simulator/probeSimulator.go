package probe_simulator

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/LeonardoBeccarini/agri_dashboard/pkg/rabbitmq"
)

const DefaultSampleTopic = "soil/sample/{field}/{probe}"

type ProbeSimulator struct {
	probes    []Probe
	generator *DataGenerator
	publisher rabbitmq.IPublisher
	topicTmpl string
}

func NewProbeSimulator(publisher rabbitmq.IPublisher, gen *DataGenerator, probes []Probe, topicTmpl string) *ProbeSimulator {
	if strings.TrimSpace(topicTmpl) == "" {
		topicTmpl = DefaultSampleTopic
	}
	return &ProbeSimulator{probes: probes, generator: gen, publisher: publisher, topicTmpl: topicTmpl}
}

// Start publishes one reading per probe every interval until ctx is done.
func (s *ProbeSimulator) Start(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			s.publisher.Close()
			return
		case <-t.C:
			s.PublishOnce()
		}
	}
}

// PublishOnce emits one reading per probe at QoS 1 and returns how many were sent.
func (s *ProbeSimulator) PublishOnce() int {
	sent := 0
	for _, p := range s.probes {
		sample := s.generator.Next(p)
		topic := strings.NewReplacer("{field}", p.FieldID, "{probe}", p.ID).Replace(s.topicTmpl)
		if err := s.publisher.PublishJSON(topic, 1, sample); err != nil {
			log.Error().Err(err).Str("topic", topic).Msg("probe: publish failed")
			continue
		}
		sent++
		log.Debug().
			Str("field", p.FieldID).Str("probe", p.ID).
			Float64("sand", sample.Sand).Float64("silt", sample.Silt).Float64("clay", sample.Clay).
			Msg("probe: sample published")
	}
	return sent
}
