package classifier

import (
	"context"
	"net/http"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthDeps are probed by /healthz and /readyz. Influx is optional.
type HealthDeps struct {
	MQTT       mqtt.Client
	Influx     Pinger
	Worker     *Worker
	StaleAfter time.Duration
	Gatherer   prometheus.Gatherer
}

type healthStatus struct {
	Status        string `json:"status"`
	MQTTConnected bool   `json:"mqtt_connected"`
	InfluxOK      *bool  `json:"influx_ok,omitempty"`
	LastFlush     string `json:"last_flush,omitempty"`
}

func (d HealthDeps) check(ctx context.Context) (healthStatus, bool) {
	st := healthStatus{MQTTConnected: d.MQTT != nil && d.MQTT.IsConnectionOpen()}
	influxOK := true
	if d.Influx != nil {
		pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		influxOK = d.Influx.Ping(pctx) == nil
		cancel()
		st.InfluxOK = &influxOK
	}

	fresh := true
	if d.Worker != nil {
		if last := d.Worker.LastFlush(); !last.IsZero() {
			st.LastFlush = last.Format(time.RFC3339)
			fresh = d.StaleAfter <= 0 || time.Since(last) < d.StaleAfter
		}
	}

	switch {
	case st.MQTTConnected && influxOK && fresh:
		st.Status = "ok"
	case st.MQTTConnected || influxOK:
		st.Status = "degraded"
	default:
		st.Status = "down"
	}
	return st, st.Status == "ok"
}

// NewHTTPHandler serves /healthz, /readyz and /metrics.
func NewHTTPHandler(d HealthDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		st, _ := d.check(c.Request.Context())
		c.JSON(http.StatusOK, st)
	})
	r.GET("/readyz", func(c *gin.Context) {
		_, ready := d.check(c.Request.Context())
		code := http.StatusOK
		if !ready {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{"ready": ready})
	})

	g := d.Gatherer
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(g, promhttp.HandlerOpts{})))
	return r
}
