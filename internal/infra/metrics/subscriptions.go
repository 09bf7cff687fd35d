package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/weeasd57/stockroom-wind-sub003/internal/domain/model"
)

func init() {
	register(
		subscriptionTransitionsTotal,
		subscriptionsTotal,
		remoteCancelFailuresTotal,
	)
}

var (
	subscriptionTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscription_transitions_total",
			Help: "Subscription state transitions by target status and source.",
		},
		[]string{"to", "source"},
	)

	subscriptionsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "subscriptions_total",
			Help: "Current number of subscription records by status.",
		},
		[]string{"status"}, // 'active', 'cancelled', 'expired'
	)

	remoteCancelFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "remote_cancel_failures_total",
			Help: "Best-effort remote cancellations that failed and were left for the sync worker.",
		},
	)
)

func IncSubscriptionTransition(to model.SubscriptionStatus, source model.ChangeSource) {
	subscriptionTransitionsTotal.WithLabelValues(string(to), string(source)).Inc()
}

func SetSubscriptionsTotal(counts map[model.SubscriptionStatus]int) {
	statuses := []model.SubscriptionStatus{
		model.SubscriptionStatusActive,
		model.SubscriptionStatusCancelled,
		model.SubscriptionStatusExpired,
	}
	for _, status := range statuses {
		if count, ok := counts[status]; ok {
			subscriptionsTotal.WithLabelValues(string(status)).Set(float64(count))
		}
	}
}

func IncRemoteCancelFailure() { remoteCancelFailuresTotal.Inc() }
