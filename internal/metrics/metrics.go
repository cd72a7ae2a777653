package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Engine metrics
	PassesTotal        *prometheus.CounterVec
	PassDuration       prometheus.Histogram
	RecipientsEnrolled prometheus.Counter
	MessagesTotal      *prometheus.CounterVec
	Conversions        prometheus.Counter
	RevenueAttributed  prometheus.Counter
	OptOuts            *prometheus.CounterVec
	Deliveries         prometheus.Counter
}

// New creates a Metrics instance registered with reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// HTTP metrics
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		// Engine metrics
		PassesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "drip_campaign_passes_total",
				Help: "Total number of campaign passes",
			},
			[]string{"outcome"}, // ok, error, skipped
		),
		PassDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "drip_campaign_pass_duration_seconds",
			Help:    "Duration of one campaign pass in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 300},
		}),
		RecipientsEnrolled: factory.NewCounter(prometheus.CounterOpts{
			Name: "drip_recipients_enrolled_total",
			Help: "Total number of recipients enrolled into campaigns",
		}),
		MessagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "drip_messages_total",
				Help: "Total number of dispatch attempts",
			},
			[]string{"channel", "status"}, // SENT, FAILED
		),
		Conversions: factory.NewCounter(prometheus.CounterOpts{
			Name: "drip_conversions_total",
			Help: "Total number of recipients converted",
		}),
		RevenueAttributed: factory.NewCounter(prometheus.CounterOpts{
			Name: "drip_revenue_attributed_total",
			Help: "Total order value attributed to campaigns",
		}),
		OptOuts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "drip_opt_outs_total",
				Help: "Total number of customer opt-outs processed",
			},
			[]string{"source"},
		),
		Deliveries: factory.NewCounter(prometheus.CounterOpts{
			Name: "drip_deliveries_total",
			Help: "Total number of delivery receipts recorded",
		}),
	}
}

// Middleware creates a chi middleware for Prometheus HTTP metrics
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		// Use the route pattern, not the raw path (e.g. /campaigns/{id}/activate)
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			path = rctx.RoutePattern()
		}

		m.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(ww.Status())).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// RecordPass records the outcome and duration of one campaign pass
func (m *Metrics) RecordPass(outcome string, duration time.Duration) {
	m.PassesTotal.WithLabelValues(outcome).Inc()
	m.PassDuration.Observe(duration.Seconds())
}

// RecordEnrolled adds newly enrolled recipients
func (m *Metrics) RecordEnrolled(n int) {
	m.RecipientsEnrolled.Add(float64(n))
}

// RecordMessage counts one dispatch attempt
func (m *Metrics) RecordMessage(channel, status string) {
	m.MessagesTotal.WithLabelValues(channel, status).Inc()
}

// RecordConversion counts one conversion and its value
func (m *Metrics) RecordConversion(value float64) {
	m.Conversions.Inc()
	if value > 0 {
		m.RevenueAttributed.Add(value)
	}
}

// RecordOptOut counts one processed opt-out
func (m *Metrics) RecordOptOut(source string) {
	m.OptOuts.WithLabelValues(source).Inc()
}

// RecordDelivery counts one delivery receipt
func (m *Metrics) RecordDelivery() {
	m.Deliveries.Inc()
}
