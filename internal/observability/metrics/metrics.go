package metrics

import "github.com/prometheus/client_golang/prometheus"

// WebhookMetrics exposes counters/histograms for the inbound webhook and
// outbound reply flows.
type WebhookMetrics struct {
	inboundTotal    *prometheus.CounterVec
	outboundTotal   *prometheus.CounterVec
	dedupSuppressed prometheus.Counter
	webhookLatency  *prometheus.HistogramVec
}

func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	m := &WebhookMetrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cami",
			Subsystem: "webhook",
			Name:      "inbound_total",
			Help:      "Total inbound WhatsApp webhook messages",
		}, []string{"kind", "status"}),
		outboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cami",
			Subsystem: "messaging",
			Name:      "outbound_total",
			Help:      "Total outbound WhatsApp sends",
		}, []string{"kind", "status"}),
		dedupSuppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cami",
			Subsystem: "webhook",
			Name:      "dedup_suppressed_total",
			Help:      "Redelivered webhook messages suppressed by the dedup window",
		}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cami",
			Subsystem: "webhook",
			Name:      "ack_latency_seconds",
			Help:      "Latency of inbound webhook acknowledgment",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.inboundTotal, m.outboundTotal, m.dedupSuppressed, m.webhookLatency)
	return m
}

func (m *WebhookMetrics) ObserveInbound(kind, status string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(kind, status).Inc()
}

func (m *WebhookMetrics) ObserveOutbound(kind, status string) {
	if m == nil {
		return
	}
	m.outboundTotal.WithLabelValues(kind, status).Inc()
}

func (m *WebhookMetrics) ObserveSuppressed() {
	if m == nil {
		return
	}
	m.dedupSuppressed.Inc()
}

func (m *WebhookMetrics) ObserveAckLatency(kind string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.WithLabelValues(kind).Observe(seconds)
}
