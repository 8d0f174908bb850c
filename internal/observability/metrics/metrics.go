package metrics

import "github.com/prometheus/client_golang/prometheus"

// EngineMetrics exposes counters/histograms for the conversation engine.
type EngineMetrics struct {
	turnsTotal    *prometheus.CounterVec
	handoffsTotal *prometheus.CounterVec
	intentTotal   *prometheus.CounterVec
	turnLatency   *prometheus.HistogramVec
}

func NewEngineMetrics(reg prometheus.Registerer) *EngineMetrics {
	m := &EngineMetrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sitechat",
			Subsystem: "engine",
			Name:      "turns_total",
			Help:      "Total processed chat turns",
		}, []string{"outcome"}),
		handoffsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sitechat",
			Subsystem: "engine",
			Name:      "handoffs_total",
			Help:      "Total sales handoff deliveries",
		}, []string{"status"}),
		intentTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sitechat",
			Subsystem: "engine",
			Name:      "booking_intent_total",
			Help:      "Total detected booking intents",
		}, []string{"booking_type"}),
		turnLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sitechat",
			Subsystem: "engine",
			Name:      "turn_latency_seconds",
			Help:      "Latency of one engine turn end to end",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.turnsTotal, m.handoffsTotal, m.intentTotal, m.turnLatency)
	return m
}

// ObserveTurn records one completed turn. outcome is scripted, fallback or
// error.
func (m *EngineMetrics) ObserveTurn(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(outcome).Inc()
	m.turnLatency.WithLabelValues(outcome).Observe(seconds)
}

func (m *EngineMetrics) ObserveHandoff(delivered bool) {
	if m == nil {
		return
	}
	status := "failed"
	if delivered {
		status = "delivered"
	}
	m.handoffsTotal.WithLabelValues(status).Inc()
}

func (m *EngineMetrics) ObserveBookingIntent(bookingType string) {
	if m == nil {
		return
	}
	m.intentTotal.WithLabelValues(bookingType).Inc()
}
