package metrics

import "github.com/prometheus/client_golang/prometheus"

// WebhookMetrics counts gateway webhook outcomes per gateway.
type WebhookMetrics struct {
	outcomes *prometheus.CounterVec
}

// Webhook outcome labels.
const (
	OutcomeSettled   = "settled"
	OutcomeDuplicate = "duplicate"
	OutcomeUnmatched = "unmatched"
	OutcomeIgnored   = "ignored"
	OutcomeBadSig    = "bad_signature"
	OutcomeFailed    = "failed"
)

// NewWebhookMetrics registers the webhook counters on the provided registerer.
func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	if reg == nil {
		return &WebhookMetrics{}
	}
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_total",
		Help: "Gateway webhook events by gateway and outcome.",
	}, []string{"gateway", "outcome"})
	reg.MustRegister(outcomes)
	return &WebhookMetrics{outcomes: outcomes}
}

// Inc records one webhook outcome.
func (w *WebhookMetrics) Inc(gateway, outcome string) {
	if w == nil || w.outcomes == nil {
		return
	}
	w.outcomes.WithLabelValues(normalizeLabel(gateway), normalizeLabel(outcome)).Inc()
}
