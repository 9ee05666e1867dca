// Package metrics exports session and message counters for Prometheus.
package metrics

import (
	"net/http"

	"github.com/douyudm/dmclient/internal/core/event"
	"github.com/douyudm/dmclient/internal/danmaku"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dmclient"

// Collector counts what flows over an event bus.
type Collector struct {
	registry *prometheus.Registry

	messagesTotal   *prometheus.CounterVec
	parseErrors     prometheus.Counter
	giftsTotal      prometheus.Counter
	connected       prometheus.Gauge
	connectsTotal   prometheus.Counter
	disconnectTotal prometheus.Counter
}

// NewCollector registers the metrics on a private registry that also
// carries the Go and process collectors.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		messagesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Decoded room messages by type",
		}, []string{"type"}),
		parseErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parse_errors_total",
			Help:      "Inbound messages dropped because they could not be decoded",
		}),
		giftsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gifts_total",
			Help:      "Gifts received, weighted by count",
		}),
		connected: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected",
			Help:      "1 while a session is live",
		}),
		connectsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connects_total",
			Help:      "Successful connects",
		}),
		disconnectTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unexpected_disconnects_total",
			Help:      "Sessions lost to transport or heartbeat failures",
		}),
	}
}

// Attach subscribes the collector to b. The returned function detaches it.
func (c *Collector) Attach(b *event.Bus) (detach func()) {
	cancels := []func(){
		event.Subscribe(b, c.onConnected),
		event.Subscribe(b, c.onDisconnected),
		event.Subscribe(b, c.onReceived),
		event.Subscribe(b, func(event.ParseFailed) { c.parseErrors.Inc() }),
	}
	return func() {
		for _, cancel := range cancels {
			cancel()
		}
	}
}

// Disconnected marks a caller-initiated disconnect, which the bus does not
// report.
func (c *Collector) Disconnected() {
	c.connected.Set(0)
}

func (c *Collector) onConnected(event.Connected) {
	c.connected.Set(1)
	c.connectsTotal.Inc()
}

func (c *Collector) onDisconnected(event.Disconnected) {
	c.connected.Set(0)
	c.disconnectTotal.Inc()
}

func (c *Collector) onReceived(ev event.Received) {
	c.messagesTotal.WithLabelValues(ev.Event.Type().String()).Inc()
	if g, ok := ev.Event.(*danmaku.GiftSend); ok && g.Count > 0 {
		c.giftsTotal.Add(float64(g.Count))
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
