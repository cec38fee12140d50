// Package metrics exports conduit server activity to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/RobertWHurst/conduit"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics implements conduit.Metrics on a private Prometheus registry.
type Metrics struct {
	registry *prometheus.Registry

	connOpened   prometheus.Counter
	connClosed   *prometheus.CounterVec
	connActive   prometheus.Gauge
	upgradeRej   prometheus.Counter
	msgReceived  *prometheus.CounterVec
	msgSent      *prometheus.CounterVec
	msgDropped   *prometheus.CounterVec
	msgMalformed prometheus.Counter
	handlerErrs  *prometheus.CounterVec

	httpReqCnt *prometheus.CounterVec
	httpDur    *prometheus.HistogramVec
}

var _ conduit.Metrics = &Metrics{}

// New creates the collectors under namespace and registers them together
// with the Go and process collectors.
func New(namespace string) *Metrics {
	r := prometheus.NewRegistry()
	r.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	r.MustRegister(collectors.NewGoCollector())

	m := &Metrics{
		registry:     r,
		connOpened:   prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "connections_opened_total"}),
		connClosed:   prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "connections_closed_total"}, []string{"status"}),
		connActive:   prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "connections_active"}),
		upgradeRej:   prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "upgrades_rejected_total"}),
		msgReceived:  prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "messages_received_total"}, []string{"method"}),
		msgSent:      prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "messages_sent_total"}, []string{"method"}),
		msgDropped:   prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "messages_dropped_total"}, []string{"method"}),
		msgMalformed: prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "messages_malformed_total"}),
		handlerErrs:  prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "handler_errors_total"}, []string{"method"}),
		httpReqCnt:   prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total"}, []string{"method", "route", "status"}),
		httpDur:      prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: namespace, Name: "http_request_duration_seconds"}, []string{"method", "route", "status"}),
	}
	r.MustRegister(
		m.connOpened, m.connClosed, m.connActive, m.upgradeRej,
		m.msgReceived, m.msgSent, m.msgDropped, m.msgMalformed, m.handlerErrs,
		m.httpReqCnt, m.httpDur,
	)
	return m
}

func (m *Metrics) ConnectionOpened() {
	m.connOpened.Inc()
}

func (m *Metrics) ConnectionClosed(status conduit.Status) {
	m.connClosed.WithLabelValues(strconv.Itoa(int(status))).Inc()
}

func (m *Metrics) SetConnectionCount(count int) {
	m.connActive.Set(float64(count))
}

func (m *Metrics) UpgradeRejected() {
	m.upgradeRej.Inc()
}

// MessageReceived counts an inbound message. The server passes registered
// methods or patterns only, so the label set stays bounded.
func (m *Metrics) MessageReceived(method string) {
	m.msgReceived.WithLabelValues(method).Inc()
}

func (m *Metrics) MessageSent(method string) {
	m.msgSent.WithLabelValues(method).Inc()
}

func (m *Metrics) MessageDropped(method string) {
	m.msgDropped.WithLabelValues(method).Inc()
}

func (m *Metrics) MalformedMessage() {
	m.msgMalformed.Inc()
}

func (m *Metrics) HandlerError(method string) {
	m.handlerErrs.WithLabelValues(method).Inc()
}

// Middleware records plain HTTP requests served next to the socket endpoint.
// Requests that match no gin route share a single route label.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = conduit.UnmatchedMethodLabel
		}
		start := time.Now()
		c.Next()
		status := strconv.Itoa(c.Writer.Status())
		m.httpReqCnt.WithLabelValues(c.Request.Method, route, status).Inc()
		m.httpDur.WithLabelValues(c.Request.Method, route, status).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, for example to register
// application collectors next to the server's.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
