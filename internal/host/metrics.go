package host

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/simonvc/custody/internal/ledger"
)

// Metrics counts ledger invocations and committed events. A nil *Metrics
// records nothing.
type Metrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	events     *prometheus.CounterVec
}

// NewMetrics registers the custody collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "custody",
			Name:      "operations_total",
			Help:      "Ledger invocations by operation and outcome.",
		}, []string{"op", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "custody",
			Name:      "operation_duration_seconds",
			Help:      "Time spent in ledger invocations, including payout.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "custody",
			Name:      "events_total",
			Help:      "Committed ledger events by kind.",
		}, []string{"kind"}),
	}
	reg.MustRegister(m.operations, m.duration, m.events)
	return m
}

func (m *Metrics) observe(op string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = string(ledger.KindOf(err))
	}
	m.operations.WithLabelValues(op, outcome).Inc()
	m.duration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// observePanic counts an invocation that panicked. Its transaction was
// rolled back before the panic left the host.
func (m *Metrics) observePanic(op string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, "panic").Inc()
	m.duration.WithLabelValues(op).Observe(elapsed.Seconds())
}

func (m *Metrics) event(kind ledger.EventKind) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(string(kind)).Inc()
}
