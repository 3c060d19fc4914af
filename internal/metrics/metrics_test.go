package metrics

import (
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterIsIdempotent(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := Register(reg); err != nil {
		t.Fatalf("second register should be tolerated: %v", err)
	}
}

func TestObserveAnalysisNormalisesOutcome(t *testing.T) {
	before := testutil.ToFloat64(analysesTotal.WithLabelValues(OutcomeSuccess))
	ObserveAnalysis(-time.Second, "unexpected")
	after := testutil.ToFloat64(analysesTotal.WithLabelValues(OutcomeSuccess))
	if after-before != 1 {
		t.Fatalf("expected unknown outcome to count as success, delta=%v", after-before)
	}
}

func TestObserveCounters(t *testing.T) {
	hitBefore := testutil.ToFloat64(cacheLookupsTotal.WithLabelValues("hit"))
	ObserveCacheLookup(true)
	if got := testutil.ToFloat64(cacheLookupsTotal.WithLabelValues("hit")) - hitBefore; got != 1 {
		t.Fatalf("expected one cache hit, got %v", got)
	}

	reqBefore := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodPost, "unmatched", "404"))
	ObserveHTTPRequest(http.MethodPost, "", http.StatusNotFound, time.Millisecond)
	if got := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodPost, "unmatched", "404")) - reqBefore; got != 1 {
		t.Fatalf("expected unmatched route to be counted, got %v", got)
	}
}
