package observability

import (
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"offerkiosk/core/events"
	"offerkiosk/core/types"
)

type rpcMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

type kioskMetrics struct {
	events *prometheus.CounterVec
	value  *prometheus.CounterVec
}

var (
	rpcMetricsOnce sync.Once
	rpcRegistry    *rpcMetrics

	kioskMetricsOnce sync.Once
	kioskRegistry    *kioskMetrics
)

// RPC returns the lazily-initialised registry used to record JSON-RPC
// activity.
func RPC() *rpcMetrics {
	rpcMetricsOnce.Do(func() {
		rpcRegistry = &rpcMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "kiosk",
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "Total JSON-RPC requests segmented by method and outcome.",
			}, []string{"method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "kiosk",
				Subsystem: "rpc",
				Name:      "errors_total",
				Help:      "Total JSON-RPC errors segmented by method and error code.",
			}, []string{"method", "code"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "kiosk",
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "kiosk",
				Subsystem: "rpc",
				Name:      "throttles_total",
				Help:      "Count of requests rejected by the rate limiter.",
			}, []string{"reason"}),
		}
		prometheus.MustRegister(
			rpcRegistry.requests,
			rpcRegistry.errors,
			rpcRegistry.latency,
			rpcRegistry.throttles,
		)
	})
	return rpcRegistry
}

// Observe records the outcome of a JSON-RPC call. code is the JSON-RPC error
// code, or zero on success.
func (m *rpcMetrics) Observe(method string, code int, duration time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if code != 0 {
		outcome = "error"
		m.errors.WithLabelValues(method, fmt.Sprintf("%d", code)).Inc()
	}
	m.requests.WithLabelValues(method, outcome).Inc()
	m.latency.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter. Reasons should be stable
// strings such as "rate_limit".
func (m *rpcMetrics) RecordThrottle(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(reason).Inc()
}

// Kiosk returns the registry tracking committed kiosk events.
func Kiosk() *kioskMetrics {
	kioskMetricsOnce.Do(func() {
		kioskRegistry = &kioskMetrics{
			events: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "kiosk",
				Subsystem: "engine",
				Name:      "events_total",
				Help:      "Count of committed kiosk events segmented by type.",
			}, []string{"type"}),
			value: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "kiosk",
				Subsystem: "engine",
				Name:      "value_moved_total",
				Help:      "Sum of amounts carried by committed kiosk events segmented by type.",
			}, []string{"type"}),
		}
		prometheus.MustRegister(kioskRegistry.events, kioskRegistry.value)
	})
	return kioskRegistry
}

// Emit implements events.Emitter so the registry can sit in the engine's
// fan-out.
func (m *kioskMetrics) Emit(evt events.Event) {
	if m == nil || evt == nil {
		return
	}
	eventType := strings.TrimSpace(evt.EventType())
	if eventType == "" {
		return
	}
	m.events.WithLabelValues(eventType).Inc()

	carrier, ok := evt.(interface{ Event() *types.Event })
	if !ok || carrier.Event() == nil {
		return
	}
	attrs := carrier.Event().Attributes
	raw := attrs["amount"]
	if raw == "" {
		return
	}
	amount, ok := new(big.Int).SetString(raw, 10)
	if !ok || amount.Sign() <= 0 {
		return
	}
	f, _ := new(big.Float).SetInt(amount).Float64()
	m.value.WithLabelValues(eventType).Add(f)
}
