// Package metrics collects and exposes Pulse's Prometheus metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Push outcomes recorded by the notification dispatcher.
const (
	PushDelivered = "delivered"
	PushAbsent    = "absent"
	PushDropped   = "dropped"
)

// Recorder is the metrics surface used by the realtime, notification and HTTP layers.
type Recorder interface {
	ChannelOpened()
	ChannelClosed()
	ChannelSuperseded()
	NotificationDispatched(notificationType string)
	PushOutcome(outcome string)
	AuthEvent(event, result string)
	RateLimited(scope string)
	HTTPRequest(status int, d time.Duration)
}

// Collector is the Prometheus-backed Recorder.
type Collector struct {
	channelsOpen       prometheus.Gauge
	channelsSuperseded prometheus.Counter
	dispatched         *prometheus.CounterVec
	pushes             *prometheus.CounterVec
	auth               *prometheus.CounterVec
	rateLimited        *prometheus.CounterVec
	httpRequests       *prometheus.CounterVec
	httpLatency        prometheus.Histogram
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		channelsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pulse_channels_open",
			Help: "Live notification channels registered right now.",
		}),
		channelsSuperseded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pulse_channels_superseded_total",
			Help: "Channels replaced by a newer registration for the same user.",
		}),
		dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pulse_notifications_dispatched_total",
			Help: "Notifications persisted by the dispatcher, by type.",
		}, []string{"type"}),
		pushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pulse_notification_pushes_total",
			Help: "Live push attempts after persistence, by outcome.",
		}, []string{"outcome"}),
		auth: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pulse_auth_events_total",
			Help: "Authentication events by kind and result.",
		}, []string{"event", "result"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pulse_rate_limited_total",
			Help: "Requests or frames rejected by a rate limiter, by scope.",
		}, []string{"scope"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pulse_http_requests_total",
			Help: "HTTP responses by status code.",
		}, []string{"status_code"}),
		httpLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pulse_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.channelsOpen,
		c.channelsSuperseded,
		c.dispatched,
		c.pushes,
		c.auth,
		c.rateLimited,
		c.httpRequests,
		c.httpLatency,
	)

	return c
}

func (c *Collector) ChannelOpened()     { c.channelsOpen.Inc() }
func (c *Collector) ChannelClosed()     { c.channelsOpen.Dec() }
func (c *Collector) ChannelSuperseded() { c.channelsSuperseded.Inc() }

func (c *Collector) NotificationDispatched(notificationType string) {
	c.dispatched.WithLabelValues(notificationType).Inc()
}

func (c *Collector) PushOutcome(outcome string) {
	c.pushes.WithLabelValues(outcome).Inc()
}

func (c *Collector) AuthEvent(event, result string) {
	c.auth.WithLabelValues(event, result).Inc()
}

func (c *Collector) RateLimited(scope string) {
	c.rateLimited.WithLabelValues(scope).Inc()
}

func (c *Collector) HTTPRequest(status int, d time.Duration) {
	c.httpRequests.WithLabelValues(strconv.Itoa(status)).Inc()
	c.httpLatency.Observe(d.Seconds())
}

// Handler returns the Prometheus scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop discards every observation.
type Nop struct{}

func (Nop) ChannelOpened()                 {}
func (Nop) ChannelClosed()                 {}
func (Nop) ChannelSuperseded()             {}
func (Nop) NotificationDispatched(string)  {}
func (Nop) PushOutcome(string)             {}
func (Nop) AuthEvent(string, string)       {}
func (Nop) RateLimited(string)             {}
func (Nop) HTTPRequest(int, time.Duration) {}

// OrNop returns r, or Nop when r is nil.
func OrNop(r Recorder) Recorder {
	if r == nil {
		return Nop{}
	}
	return r
}

var (
	_ Recorder = (*Collector)(nil)
	_ Recorder = Nop{}
)
