package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Registry struct {
	reg *prometheus.Registry

	TransitionsTotal     *prometheus.CounterVec
	EventsPublishedTotal *prometheus.CounterVec
	PublishFailuresTotal prometheus.Counter
	ReconnectAttempts    prometheus.Counter
	Connected            prometheus.Gauge
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()

	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "menuqr_order_transitions_total"}, []string{"to_state"})
	published := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "menuqr_events_published_total"}, []string{"event"})
	publishFailures := prometheus.NewCounter(prometheus.CounterOpts{Name: "menuqr_event_publish_failures_total"})
	reconnects := prometheus.NewCounter(prometheus.CounterOpts{Name: "menuqr_reconnect_attempts_total"})
	connected := prometheus.NewGauge(prometheus.GaugeOpts{Name: "menuqr_live_channel_connected"})

	r.MustRegister(transitions, published, publishFailures, reconnects, connected)
	return &Registry{
		reg:                  r,
		TransitionsTotal:     transitions,
		EventsPublishedTotal: published,
		PublishFailuresTotal: publishFailures,
		ReconnectAttempts:    reconnects,
		Connected:            connected,
	}
}

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }
