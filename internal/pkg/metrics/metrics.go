package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects the engine's operational counters. A nil *Metrics is
// safe to call, so library embedders who do not scrape can pass nothing.
type Metrics struct {
	ReservationsTotal  *prometheus.CounterVec
	ConfirmationsTotal prometheus.Counter
	CancellationsTotal prometheus.Counter
	HoldsExpiredTotal  prometheus.Counter
	SweepDuration      prometheus.Histogram
	TxRetriesTotal     prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ReservationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "capacity",
			Name:      "reservations_total",
			Help:      "Reserve attempts by result.",
		}, []string{"result"}),
		ConfirmationsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "capacity",
			Name:      "confirmations_total",
			Help:      "Bookings confirmed.",
		}),
		CancellationsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "capacity",
			Name:      "cancellations_total",
			Help:      "Bookings cancelled.",
		}),
		HoldsExpiredTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "capacity",
			Name:      "holds_expired_total",
			Help:      "Pending holds reclaimed by expiry.",
		}),
		SweepDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "capacity",
			Name:      "sweep_duration_seconds",
			Help:      "Duration of one sweeper pass.",
			Buckets:   prometheus.DefBuckets,
		}),
		TxRetriesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "capacity",
			Name:      "tx_retries_total",
			Help:      "Transaction retries on serialization conflicts.",
		}),
	}
}

func (m *Metrics) ReserveResult(result string) {
	if m == nil {
		return
	}
	m.ReservationsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) Confirmed() {
	if m == nil {
		return
	}
	m.ConfirmationsTotal.Inc()
}

func (m *Metrics) Cancelled() {
	if m == nil {
		return
	}
	m.CancellationsTotal.Inc()
}

func (m *Metrics) HoldsExpired(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.HoldsExpiredTotal.Add(float64(n))
}

func (m *Metrics) ObserveSweep(seconds float64) {
	if m == nil {
		return
	}
	m.SweepDuration.Observe(seconds)
}

func (m *Metrics) TxRetried() {
	if m == nil {
		return
	}
	m.TxRetriesTotal.Inc()
}
