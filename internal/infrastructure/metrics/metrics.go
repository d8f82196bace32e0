package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hilthontt/bookingsync/internal/apperr"
)

const namespace = "bookingsync"

// Metrics holds the client's Prometheus collectors on a private registry.
// Every method is safe on a nil receiver so components can run without it.
type Metrics struct {
	registry *prometheus.Registry

	connected       prometheus.Gauge
	dials           *prometheus.CounterVec
	framesReceived  *prometheus.CounterVec
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	messagesSent    *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "socket_connected",
			Help:      "1 while the realtime socket is connected.",
		}),
		dials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "socket_dials_total",
			Help:      "Socket dial attempts by outcome.",
		}, []string{"outcome"}),
		framesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "socket_frames_received_total",
			Help:      "Inbound frames by wire type.",
		}, []string{"type"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "socket_requests_total",
			Help:      "Acknowledged socket requests by op and error kind.",
		}, []string{"op", "outcome"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "socket_request_duration_seconds",
			Help:      "Time from socket request to acknowledgment.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		messagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Outbound chat messages by delivery path and outcome.",
		}, []string{"path", "outcome"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_http_requests_total",
			Help:      "Status API requests by method and status code.",
		}, []string{"method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "status_http_request_duration_seconds",
			Help:      "Status API request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.connected,
		m.dials,
		m.framesReceived,
		m.requests,
		m.requestDuration,
		m.messagesSent,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) SetConnected(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.connected.Set(1)
		return
	}
	m.connected.Set(0)
}

func (m *Metrics) ObserveDial(err error) {
	if m == nil {
		return
	}
	m.dials.WithLabelValues(outcome(err)).Inc()
}

func (m *Metrics) ObserveFrame(typ string) {
	if m == nil {
		return
	}
	m.framesReceived.WithLabelValues(typ).Inc()
}

func (m *Metrics) ObserveRequest(op string, took time.Duration, err error) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(op, outcome(err)).Inc()
	m.requestDuration.WithLabelValues(op).Observe(took.Seconds())
}

// ObserveSend counts one outbound message; path is "socket" or "rest".
func (m *Metrics) ObserveSend(path string, err error) {
	if m == nil {
		return
	}
	m.messagesSent.WithLabelValues(path, outcome(err)).Inc()
}

func (m *Metrics) ObserveHTTP(method string, status int, took time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method).Observe(took.Seconds())
}

// outcome labels a result with "ok" or the error's kind.
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return string(apperr.KindOf(err))
}
