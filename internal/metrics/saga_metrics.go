package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SagaMetrics содержит метрики саг возврата/обмена.
type SagaMetrics struct {
	// Счётчики исходов
	sagaStarted        *prometheus.CounterVec
	sagaCompleted      *prometheus.CounterVec
	sagaFailed         *prometheus.CounterVec
	sagaReconciliation prometheus.Counter
	sagaResumed        prometheus.Counter

	// Гистограммы времени выполнения
	sagaDuration prometheus.Histogram
	stepDuration *prometheus.HistogramVec

	// Счётчики событий timeline/outbox
	timelineEvents prometheus.Counter
	outboxEvents   prometheus.Counter

	// Исходы по позициям bulk-операций
	bulkItems *prometheus.CounterVec

	// Gauge для активных саг
	activeSagas prometheus.Gauge
}

// NewSagaMetrics создаёт метрики в DefaultRegisterer.
func NewSagaMetrics() *SagaMetrics {
	return NewSagaMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewSagaMetricsWithRegisterer создаёт метрики в заданном registry (тесты используют отдельный).
func NewSagaMetricsWithRegisterer(registerer prometheus.Registerer) *SagaMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &SagaMetrics{
		sagaStarted: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "retailops_saga_started_total",
			Help: "Total number of return/exchange sagas started",
		}, []string{"kind"}),
		sagaCompleted: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "retailops_saga_completed_total",
			Help: "Total number of sagas completed successfully",
		}, []string{"kind"}),
		sagaFailed: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "retailops_saga_failed_total",
			Help: "Total number of sagas halted on a failed stage",
		}, []string{"kind", "stage"}),
		sagaReconciliation: registerCounter(registerer, prometheus.CounterOpts{
			Name: "retailops_saga_reconciliation_total",
			Help: "Total number of sagas flagged for manual reconciliation",
		}),
		sagaResumed: registerCounter(registerer, prometheus.CounterOpts{
			Name: "retailops_saga_resumed_total",
			Help: "Total number of operator-initiated saga resumes",
		}),
		sagaDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "retailops_saga_duration_seconds",
			Help:    "Duration of saga runs in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		stepDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "retailops_saga_step_duration_seconds",
			Help:    "Duration of individual saga stages in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		}, []string{"stage"}),
		timelineEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "retailops_timeline_events_total",
			Help: "Total number of timeline events recorded",
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "retailops_outbox_events_total",
			Help: "Total number of outbox events enqueued",
		}),
		bulkItems: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "retailops_bulk_defect_items_total",
			Help: "Outcomes of bulk defective-item transitions",
		}, []string{"action", "result"}),
		activeSagas: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "retailops_active_sagas",
			Help: "Number of sagas currently running",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	collector := prometheus.NewHistogramVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram vec %q: %v", opts.Name, err))
	}
	return collector
}

// RecordSagaStarted увеличивает счётчик запущенных саг и gauge активных.
func (m *SagaMetrics) RecordSagaStarted(kind string) {
	m.sagaStarted.WithLabelValues(kind).Inc()
	m.activeSagas.Inc()
}

// RecordSagaFinished уменьшает gauge активных саг и пишет длительность.
func (m *SagaMetrics) RecordSagaFinished(duration time.Duration) {
	m.activeSagas.Dec()
	m.sagaDuration.Observe(duration.Seconds())
}

// RecordSagaCompleted увеличивает счётчик успешных саг.
func (m *SagaMetrics) RecordSagaCompleted(kind string) {
	m.sagaCompleted.WithLabelValues(kind).Inc()
}

// RecordSagaFailed увеличивает счётчик саг, остановившихся на шаге stage.
func (m *SagaMetrics) RecordSagaFailed(kind, stage string) {
	m.sagaFailed.WithLabelValues(kind, stage).Inc()
}

// RecordReconciliation фиксирует сагу, требующую ручной сверки.
func (m *SagaMetrics) RecordReconciliation() {
	m.sagaReconciliation.Inc()
}

// RecordSagaResumed фиксирует ручное продолжение саги; продолженная сага снова активна.
func (m *SagaMetrics) RecordSagaResumed() {
	m.sagaResumed.Inc()
	m.activeSagas.Inc()
}

// RecordStepDuration записывает время выполнения шага саги.
func (m *SagaMetrics) RecordStepDuration(stage string, duration time.Duration) {
	m.stepDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordTimelineEvent увеличивает счётчик событий timeline.
func (m *SagaMetrics) RecordTimelineEvent() {
	m.timelineEvents.Inc()
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *SagaMetrics) RecordOutboxEvent() {
	m.outboxEvents.Inc()
}

// RecordBulkItem фиксирует исход перехода одной дефектной позиции.
func (m *SagaMetrics) RecordBulkItem(action string, ok bool) {
	result := "success"
	if !ok {
		result = "error"
	}
	m.bulkItems.WithLabelValues(action, result).Inc()
}
