package classifier

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics of the texture service. Labels:
//   - classifications: label, source (grpc, worker)
//   - samples: outcome (accepted, duplicate, invalid)
//   - sink failures: sink (mqtt, influx)
type Metrics struct {
	Classifications *prometheus.CounterVec
	Samples         *prometheus.CounterVec
	Published       prometheus.Counter
	SinkFailures    *prometheus.CounterVec
	Buffered        prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Classifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "soil",
			Subsystem: "classifier",
			Name:      "classifications_total",
			Help:      "Texture classifications by label and source",
		}, []string{"label", "source"}),
		Samples: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "soil",
			Subsystem: "worker",
			Name:      "samples_total",
			Help:      "Probe samples received by outcome",
		}, []string{"outcome"}),
		Published: f.NewCounter(prometheus.CounterOpts{
			Namespace: "soil",
			Subsystem: "worker",
			Name:      "textures_published_total",
			Help:      "Probe textures published on MQTT",
		}),
		SinkFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "soil",
			Subsystem: "worker",
			Name:      "sink_failures_total",
			Help:      "Failed texture deliveries by sink",
		}, []string{"sink"}),
		Buffered: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "soil",
			Subsystem: "worker",
			Name:      "buffered_samples",
			Help:      "Samples waiting for the next aggregation tick",
		}),
	}
}
