package observability

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInit_CustomRegistryExposesGraphMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	Init(reg, true)
	Init(reg, true) // second call must not panic

	ObserveGraphFrames(3, 10, true)
	IncGraphError("GraphQueryError")
	ObserveSchemaFetch("wells", nil)
	ObserveSchemaFetch("wells", errors.New("boom"))

	srv := httptest.NewServer(promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("metrics scrape: %v", err)
	}
	t.Cleanup(func() {
		if cerr := resp.Body.Close(); cerr != nil {
			t.Fatalf("close body: %v", cerr)
		}
	})
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read all: %v", err)
	}
	out := string(b)

	for _, want := range []string{
		`graph_query_frames_total{outcome="error"}`,
		`graph_errors_total{kind="GraphQueryError"}`,
		`schema_fetch_total{outcome="error",service="wells"}`,
		`schema_fetch_total{outcome="ok",service="wells"}`,
		`graph_query_rows_total`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in metrics; got:\n%s", want, out)
		}
	}
}

func TestInit_Disabled(t *testing.T) {
	reg := prometheus.NewRegistry()
	Init(reg, false)
	n, err := testutil.GatherAndCount(reg)
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if n != 0 {
		t.Fatalf("disabled init registered %d series", n)
	}
}

func TestFilterCacheCounter(t *testing.T) {
	before := testutil.ToFloat64(filterCacheTotal.WithLabelValues("hit"))
	IncFilterCache(true)
	if got := testutil.ToFloat64(filterCacheTotal.WithLabelValues("hit")); got != before+1 {
		t.Fatalf("hit counter=%v want %v", got, before+1)
	}
}
