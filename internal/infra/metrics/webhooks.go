package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		webhookEventsTotal,
		webhookEventsPruned,
	)
}

var (
	webhookEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paypal_webhook_events_total",
			Help: "Inbound PayPal webhook deliveries by event type and outcome.",
		},
		[]string{"event_type", "outcome"}, // outcome: 'processed', 'duplicate', 'rejected', 'failed', 'ignored'
	)

	webhookEventsPruned = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "paypal_webhook_events_pruned_total",
			Help: "Webhook event log rows removed past the retention window.",
		},
	)
)

func IncWebhookEvent(eventType, outcome string) {
	webhookEventsTotal.WithLabelValues(eventType, outcome).Inc()
}

func AddWebhookEventsPruned(n int) { webhookEventsPruned.Add(float64(n)) }
