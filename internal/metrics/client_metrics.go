package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ClientMetrics: метрики исходящих вызовов commerce backend.
type ClientMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	breaker  *prometheus.GaugeVec
}

// NewClientMetrics создаёт метрики клиента в DefaultRegisterer.
func NewClientMetrics() *ClientMetrics {
	return NewClientMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewClientMetricsWithRegisterer создаёт метрики клиента в заданном registry.
func NewClientMetricsWithRegisterer(registerer prometheus.Registerer) *ClientMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &ClientMetrics{
		requests: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "retailops_backend_requests_total",
			Help: "Backend REST calls grouped by operation and result",
		}, []string{"operation", "result"}),
		duration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "retailops_backend_request_duration_seconds",
			Help:    "Latency of backend REST calls",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		breaker: registerGaugeVec(registerer, prometheus.GaugeOpts{
			Name: "retailops_backend_circuit_open",
			Help: "1 when the backend circuit breaker is open",
		}, []string{"client"}),
	}
}

func registerGaugeVec(registerer prometheus.Registerer, opts prometheus.GaugeOpts, labels []string) *prometheus.GaugeVec {
	collector := prometheus.NewGaugeVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing
			}
		}
		panic(err)
	}
	return collector
}

// RecordRequest фиксирует результат вызова: ok, remote_error, transport_error, circuit_open.
func (m *ClientMetrics) RecordRequest(operation, result string, duration time.Duration) {
	m.requests.WithLabelValues(operation, result).Inc()
	m.duration.WithLabelValues(operation).Observe(duration.Seconds())
}

// SetCircuitOpen отражает состояние circuit breaker.
func (m *ClientMetrics) SetCircuitOpen(client string, open bool) {
	value := 0.0
	if open {
		value = 1
	}
	m.breaker.WithLabelValues(client).Set(value)
}
