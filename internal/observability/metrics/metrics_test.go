package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestEngineMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewEngineMetrics(reg)
	m.ObserveTurn("scripted", 0.05)
	m.ObserveTurn("fallback", 0.2)
	m.ObserveHandoff(true)
	m.ObserveBookingIntent("demo")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}

	counters := map[string]float64{}
	for _, fam := range families {
		if fam.GetType() != dto.MetricType_COUNTER {
			continue
		}
		var total float64
		for _, metric := range fam.GetMetric() {
			total += metric.GetCounter().GetValue()
		}
		counters[fam.GetName()] = total
	}

	if counters["sitechat_engine_turns_total"] != 2 {
		t.Fatalf("expected 2 turns recorded, got %v", counters["sitechat_engine_turns_total"])
	}
	if counters["sitechat_engine_handoffs_total"] != 1 {
		t.Fatalf("expected 1 handoff recorded, got %v", counters["sitechat_engine_handoffs_total"])
	}
	if counters["sitechat_engine_booking_intent_total"] != 1 {
		t.Fatalf("expected 1 intent recorded, got %v", counters["sitechat_engine_booking_intent_total"])
	}
}

func TestEngineMetricsNilSafe(t *testing.T) {
	var m *EngineMetrics
	m.ObserveTurn("scripted", 0.1)
	m.ObserveHandoff(false)
	m.ObserveBookingIntent("call")
}
