package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRegistered(t *testing.T) {
	PairsTotal.WithLabelValues("matched").Inc()
	LLMRequestsTotal.WithLabelValues("openai", "ok").Inc()

	mfs, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	want := map[string]bool{"scan_pairs_total": false, "llm_requests_total": false}
	for _, mf := range mfs {
		if _, ok := want[mf.GetName()]; ok {
			want[mf.GetName()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Fatalf("%s metric not found", name)
		}
	}
}

func TestCounterIncrements(t *testing.T) {
	before := testutil.ToFloat64(ScansTotal.WithLabelValues("api", "ok"))
	ScansTotal.WithLabelValues("api", "ok").Inc()
	after := testutil.ToFloat64(ScansTotal.WithLabelValues("api", "ok"))
	if after-before != 1 {
		t.Fatalf("delta=%v want=1", after-before)
	}
}
