package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/westsidetechsolutions/meter/adapters/metrics"
	"github.com/westsidetechsolutions/meter/domain/usage"
)

// counterValue finds a counter sample by metric name and label set.
func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather error: %v", err)
	}
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, m := range f.GetMetric() {
			if matches(m, labels) {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func matches(m *dto.Metric, labels map[string]string) bool {
	if len(m.GetLabel()) != len(labels) {
		return false
	}
	for _, lp := range m.GetLabel() {
		if labels[lp.GetName()] != lp.GetValue() {
			return false
		}
	}
	return true
}

func TestNewWithRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)

	if m.RequestsTotal == nil || m.RequestDuration == nil || m.RequestsInFlight == nil {
		t.Error("request metrics not initialized")
	}
	if m.AdmissionsTotal == nil || m.DenialsTotal == nil || m.StoreErrors == nil {
		t.Error("admission metrics not initialized")
	}
	if m.ConfigReloads == nil {
		t.Error("ConfigReloads is nil")
	}
}

func TestCollector_Admitted(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)

	m.Admitted(usage.FieldAPICalls, "price_pro")
	m.Admitted(usage.FieldAPICalls, "price_pro")
	m.Admitted(usage.FieldStorageMB, "")

	if got := counterValue(t, reg, "meter_admissions_total", map[string]string{"field": "apiCalls", "plan_id": "price_pro"}); got != 2 {
		t.Errorf("apiCalls/price_pro = %v, want 2", got)
	}
	if got := counterValue(t, reg, "meter_admissions_total", map[string]string{"field": "storageMb", "plan_id": "none"}); got != 1 {
		t.Errorf("storageMb/none = %v, want 1", got)
	}
}

func TestCollector_Denied(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)

	m.Denied(usage.FieldItemsCreated, "limit_reached")
	m.Denied(usage.Field("whatever"), "unknown_field")
	m.Denied("", "missing_credential")

	if got := counterValue(t, reg, "meter_denials_total", map[string]string{"field": "itemsCreated", "reason": "limit_reached"}); got != 1 {
		t.Errorf("itemsCreated/limit_reached = %v, want 1", got)
	}
	if got := counterValue(t, reg, "meter_denials_total", map[string]string{"field": "unknown", "reason": "unknown_field"}); got != 1 {
		t.Errorf("unknown/unknown_field = %v, want 1", got)
	}
	if got := counterValue(t, reg, "meter_denials_total", map[string]string{"field": "none", "reason": "missing_credential"}); got != 1 {
		t.Errorf("none/missing_credential = %v, want 1", got)
	}
}

func TestCollector_StoreError(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)

	m.StoreError("increment")

	if got := counterValue(t, reg, "meter_store_errors_total", map[string]string{"op": "increment"}); got != 1 {
		t.Errorf("store errors = %v, want 1", got)
	}
}

func TestNop(t *testing.T) {
	var n metrics.Nop
	n.Admitted(usage.FieldAPICalls, "p")
	n.Denied(usage.FieldAPICalls, "r")
	n.StoreError("op")
}
