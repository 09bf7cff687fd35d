package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		gatewayRequestsTotal,
		gatewayRequestDuration,
	)
}

var (
	gatewayRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paypal_gateway_requests_total",
			Help: "Outbound PayPal API calls by operation and result.",
		},
		[]string{"op", "result"}, // result: 'ok', 'error', 'indeterminate'
	)

	gatewayRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "paypal_gateway_request_duration_seconds",
			Help:    "Latency of outbound PayPal API calls.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)
)

func ObserveGatewayRequest(op, result string, elapsed time.Duration) {
	gatewayRequestsTotal.WithLabelValues(op, result).Inc()
	gatewayRequestDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}
