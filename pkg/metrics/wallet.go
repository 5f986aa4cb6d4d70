package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// WalletMetrics records recompute batch outcomes and withdrawal submissions.
type WalletMetrics struct {
	recomputeDuration *prometheus.HistogramVec
	recomputeSuccess  *prometheus.CounterVec
	recomputeFailure  *prometheus.CounterVec
	withdrawals       *prometheus.CounterVec
}

// NewWalletMetrics registers the wallet metrics on the provided registerer.
func NewWalletMetrics(reg prometheus.Registerer) *WalletMetrics {
	if reg == nil {
		return &WalletMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wallet_recompute_duration_seconds",
		Help:    "Duration of balance recompute runs in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"scope"})
	success := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wallet_recompute_success",
		Help: "Successful balance recomputes.",
	}, []string{"scope"})
	failure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wallet_recompute_failure",
		Help: "Failed balance recomputes.",
	}, []string{"scope"})
	withdrawals := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wallet_withdrawal_submissions",
		Help: "Withdrawal requests accepted and forwarded to the payout workflow.",
	}, []string{"method"})
	reg.MustRegister(duration, success, failure, withdrawals)
	return &WalletMetrics{
		recomputeDuration: duration,
		recomputeSuccess:  success,
		recomputeFailure:  failure,
		withdrawals:       withdrawals,
	}
}

// ObserveRecomputeDuration records the duration for the given scope ("one" or "all").
func (w *WalletMetrics) ObserveRecomputeDuration(scope string, duration time.Duration) {
	if w == nil || w.recomputeDuration == nil {
		return
	}
	w.recomputeDuration.WithLabelValues(normalizeLabel(scope)).Observe(duration.Seconds())
}

// IncRecomputeSuccess increments the success counter for the given scope.
func (w *WalletMetrics) IncRecomputeSuccess(scope string) {
	if w == nil || w.recomputeSuccess == nil {
		return
	}
	w.recomputeSuccess.WithLabelValues(normalizeLabel(scope)).Inc()
}

// IncRecomputeFailure increments the failure counter for the given scope.
func (w *WalletMetrics) IncRecomputeFailure(scope string) {
	if w == nil || w.recomputeFailure == nil {
		return
	}
	w.recomputeFailure.WithLabelValues(normalizeLabel(scope)).Inc()
}

// IncWithdrawalSubmission counts an accepted withdrawal by payout method.
func (w *WalletMetrics) IncWithdrawalSubmission(method string) {
	if w == nil || w.withdrawals == nil {
		return
	}
	w.withdrawals.WithLabelValues(normalizeLabel(method)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
