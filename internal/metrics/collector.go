// Package metrics holds the prometheus collectors of the service.
package metrics

import (
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zhouzirui/companion-academy/backend/internal/model/companion"
)

// otherSubject labels companions outside companion.Subjects.
const otherSubject = "other"

// Collector owns a private registry so tests can build as many as they need.
type Collector struct {
	registry *prometheus.Registry

	HTTPRequests      *prometheus.CounterVec
	HTTPDuration      *prometheus.HistogramVec
	QuotaDecisions    *prometheus.CounterVec
	CompanionsCreated *prometheus.CounterVec
	SessionsLaunched  prometheus.Counter
}

// NewCollector creates and registers the collectors under namespace.
func NewCollector(namespace string) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		QuotaDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "quota_decisions_total",
				Help:      "Companion quota decisions by tier and outcome",
			},
			[]string{"tier", "outcome"},
		),
		CompanionsCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "companions_created_total",
				Help:      "Companions created by subject",
			},
			[]string{"subject"},
		),
		SessionsLaunched: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_launched_total",
				Help:      "Companion sessions recorded in the history log",
			},
		),
	}

	c.registry.MustRegister(
		c.HTTPRequests,
		c.HTTPDuration,
		c.QuotaDecisions,
		c.CompanionsCreated,
		c.SessionsLaunched,
		collectors.NewGoCollector(),
	)
	return c
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObserveQuotaDecision counts one quota decision.
func (c *Collector) ObserveQuotaDecision(tier string, allowed bool) {
	outcome := "denied"
	if allowed {
		outcome = "allowed"
	}
	c.QuotaDecisions.WithLabelValues(tier, outcome).Inc()
}

// ObserveCompanionCreated counts one created companion. Subjects outside the
// catalog share the "other" label.
func (c *Collector) ObserveCompanionCreated(subject string) {
	c.CompanionsCreated.WithLabelValues(subjectLabel(subject)).Inc()
}

func subjectLabel(subject string) string {
	subject = strings.ToLower(strings.TrimSpace(subject))
	if slices.Contains(companion.Subjects, subject) {
		return subject
	}
	return otherSubject
}

// ObserveSessionLaunched counts one recorded session launch.
func (c *Collector) ObserveSessionLaunched() {
	c.SessionsLaunched.Inc()
}

// Middleware records request counts and latencies labelled by route pattern.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		c.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		c.HTTPDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
