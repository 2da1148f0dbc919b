package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		chargesCreatedTotal,
		webhooksReceivedTotal,
		webhookProcessingSeconds,
	)
}

var (
	chargesCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_charges_created_total",
			Help: "Total PIX charges created, by provider.",
		},
		[]string{"provider"},
	)

	webhooksReceivedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_webhooks_received_total",
			Help: "Total payment webhooks received, by outcome.",
		},
		[]string{"outcome"}, // 'processed', 'ignored', 'error'
	)

	webhookProcessingSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "payment_webhook_processing_seconds",
			Help:    "Wall time spent processing a payment webhook.",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func IncChargesCreated(provider string) {
	chargesCreatedTotal.WithLabelValues(provider).Inc()
}

func IncWebhooksReceived(outcome string) {
	webhooksReceivedTotal.WithLabelValues(outcome).Inc()
}

func ObserveWebhookProcessing(seconds float64) {
	webhookProcessingSeconds.Observe(seconds)
}
