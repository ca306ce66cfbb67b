package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics. A nil *Metrics is valid and
// records nothing, so services can be built without instrumentation.
type Metrics struct {
	// Outbox related metrics
	OutboxEventsProcessed   prometheus.Counter
	OutboxEventsFailed      prometheus.Counter
	OutboxProcessingLatency prometheus.Histogram
	OutboxRetries           *prometheus.CounterVec

	// Database metrics
	DatabaseOperations *prometheus.CounterVec
	DatabaseLatency    *prometheus.HistogramVec

	// Clinic metrics
	IdentifiersIssued  *prometheus.CounterVec
	StockAdjustments   *prometheus.CounterVec
	InsufficientStock  prometheus.Counter
	InvoicesCreated    prometheus.Counter
	PaymentsRecorded   prometheus.Counter
	PaymentAmountTotal prometheus.Counter
}

// NewMetrics creates all application metrics and registers them with reg.
// Passing nil registers with the default Prometheus registry.
func NewMetrics(namespace, subsystem string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		// Outbox metrics
		OutboxEventsProcessed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "outbox_events_processed_total",
			Help:      "Total number of successfully processed outbox events",
		}),
		OutboxEventsFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "outbox_events_failed_total",
			Help:      "Total number of failed outbox events",
		}),
		OutboxProcessingLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "outbox_processing_duration_seconds",
			Help:      "Time spent processing outbox events",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		OutboxRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "outbox_retry_attempts_total",
			Help:      "Total number of retry attempts for outbox events",
		}, []string{"event_type"}),

		// Database metrics
		DatabaseOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "database_operations_total",
			Help:      "Total number of database operations",
		}, []string{"operation", "status"}),
		DatabaseLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "database_operation_duration_seconds",
			Help:      "Duration of database operations",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"operation"}),

		IdentifiersIssued: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "identifiers_issued_total",
			Help:      "Business identifiers issued, by record kind",
		}, []string{"kind"}),
		StockAdjustments: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "drug_stock_units_total",
			Help:      "Drug units moved by the inventory ledger, by direction",
		}, []string{"direction"}),
		InsufficientStock: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "insufficient_stock_rejections_total",
			Help:      "Prescriptions rejected for insufficient drug stock",
		}),
		InvoicesCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "invoices_created_total",
			Help:      "Invoices created",
		}),
		PaymentsRecorded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "payments_recorded_total",
			Help:      "Payments recorded against invoices",
		}),
		PaymentAmountTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "payment_amount_total",
			Help:      "Sum of recorded payment amounts",
		}),
	}
}

func (m *Metrics) IdentifierIssued(kind string) {
	if m == nil {
		return
	}
	m.IdentifiersIssued.WithLabelValues(kind).Inc()
}

func (m *Metrics) StockDecremented(units int) {
	if m == nil {
		return
	}
	m.StockAdjustments.WithLabelValues("out").Add(float64(units))
}

func (m *Metrics) StockRestored(units int) {
	if m == nil {
		return
	}
	m.StockAdjustments.WithLabelValues("in").Add(float64(units))
}

func (m *Metrics) StockRejected() {
	if m == nil {
		return
	}
	m.InsufficientStock.Inc()
}

func (m *Metrics) InvoiceCreated() {
	if m == nil {
		return
	}
	m.InvoicesCreated.Inc()
}

func (m *Metrics) PaymentRecorded(amount float64) {
	if m == nil {
		return
	}
	m.PaymentsRecorded.Inc()
	m.PaymentAmountTotal.Add(amount)
}

// DBOperation records the outcome of a repository call.
func (m *Metrics) DBOperation(operation string, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.DatabaseOperations.WithLabelValues(operation, status).Inc()
}

// ObserveDB records the outcome and latency of a repository call that
// started at start.
func (m *Metrics) ObserveDB(operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.DBOperation(operation, err)
	m.DatabaseLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
