package metrics

import "github.com/prometheus/client_golang/prometheus"

// ConversationMetrics exposes counters/histograms for the chat pipeline.
type ConversationMetrics struct {
	inboundTotal        *prometheus.CounterVec
	classificationTotal *prometheus.CounterVec
	completionTotal     *prometheus.CounterVec
	replyTotal          *prometheus.CounterVec
	webhookTotal        *prometheus.CounterVec
	latency             *prometheus.HistogramVec
}

func NewConversationMetrics(reg prometheus.Registerer) *ConversationMetrics {
	m := &ConversationMetrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "finchat",
			Subsystem: "conversation",
			Name:      "inbound_messages_total",
			Help:      "Inbound chat messages by conversation phase at arrival",
		}, []string{"phase"}),
		classificationTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "finchat",
			Subsystem: "conversation",
			Name:      "classifications_total",
			Help:      "Intent classifications by intent and outcome",
		}, []string{"intent", "outcome"}),
		completionTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "finchat",
			Subsystem: "conversation",
			Name:      "operations_total",
			Help:      "Finished conversational operations by intent and outcome",
		}, []string{"intent", "outcome"}),
		replyTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "finchat",
			Subsystem: "messaging",
			Name:      "outbound_replies_total",
			Help:      "Replies sent back to Telegram by status",
		}, []string{"status"}),
		webhookTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "finchat",
			Subsystem: "messaging",
			Name:      "inbound_webhook_total",
			Help:      "Inbound Telegram webhooks by status",
		}, []string{"status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "finchat",
			Subsystem: "conversation",
			Name:      "processing_latency_seconds",
			Help:      "Latency of handling one inbound message end to end",
			Buckets:   prometheus.DefBuckets,
		}, []string{"phase"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.inboundTotal, m.classificationTotal, m.completionTotal, m.replyTotal, m.webhookTotal, m.latency)
	return m
}

func (m *ConversationMetrics) ObserveInbound(phase string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(phase).Inc()
}

func (m *ConversationMetrics) ObserveClassification(intent, outcome string) {
	if m == nil {
		return
	}
	m.classificationTotal.WithLabelValues(intent, outcome).Inc()
}

func (m *ConversationMetrics) ObserveCompletion(intent, outcome string) {
	if m == nil {
		return
	}
	m.completionTotal.WithLabelValues(intent, outcome).Inc()
}

func (m *ConversationMetrics) ObserveReply(status string) {
	if m == nil {
		return
	}
	m.replyTotal.WithLabelValues(status).Inc()
}

func (m *ConversationMetrics) ObserveWebhook(status string) {
	if m == nil {
		return
	}
	m.webhookTotal.WithLabelValues(status).Inc()
}

// ObserveLatency records processing time keyed by the phase the reply left the conversation in.
func (m *ConversationMetrics) ObserveLatency(phase string, seconds float64) {
	if m == nil {
		return
	}
	m.latency.WithLabelValues(phase).Observe(seconds)
}
