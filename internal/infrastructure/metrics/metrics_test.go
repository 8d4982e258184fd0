package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewWithRegistererRegistersMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()

	m := NewWithRegisterer(registry)

	if m.Operations == nil || m.OracleLookups == nil || m.HTTPRequests == nil {
		t.Fatalf("expected key metrics to be initialized: %+v", m)
	}

	m.OracleLookups.WithLabelValues("native", "ok").Inc()
	m.TotalValue.Set(42)

	if got := testutil.ToFloat64(m.OracleLookups.WithLabelValues("native", "ok")); got != 1 {
		t.Fatalf("expected 1 oracle lookup, got %v", got)
	}
	if got := testutil.ToFloat64(m.TotalValue); got != 42 {
		t.Fatalf("expected total value 42, got %v", got)
	}

	metricFamilies, err := registry.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	if len(metricFamilies) == 0 {
		t.Fatalf("expected registered metrics, got none")
	}
}

func TestNewWithRegistererRejectsDuplicateRegistration(t *testing.T) {
	registry := prometheus.NewRegistry()
	NewWithRegisterer(registry)

	defer func() {
		if recover() == nil {
			t.Fatalf("expected duplicate registration to panic")
		}
	}()

	NewWithRegisterer(registry)
}
