package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveNetworkRequestStatus(t *testing.T) {
	before := testutil.ToFloat64(NetworkRequestTotal.WithLabelValues("myhome", "rsdt", "page", "error"))
	ObserveNetworkRequest("myhome", "rsdt", "page", time.Now(), errors.New("boom"))
	after := testutil.ToFloat64(NetworkRequestTotal.WithLabelValues("myhome", "rsdt", "page", "error"))
	if after-before != 1 {
		t.Fatalf("error counter delta = %v, want 1", after-before)
	}
}

func TestObservePartition(t *testing.T) {
	ObservePartition("myhome", "rsdt", 3, 2, 2, 1)
	if got := testutil.ToFloat64(PartitionIDs.WithLabelValues("myhome", "rsdt", "missing")); got != 1 {
		t.Fatalf("missing gauge = %v, want 1", got)
	}
	if got := testutil.ToFloat64(PartitionIDs.WithLabelValues("myhome", "rsdt", "current")); got != 3 {
		t.Fatalf("current gauge = %v, want 3", got)
	}
}

func TestPush(t *testing.T) {
	var (
		mu   sync.Mutex
		path string
		body string
	)
	r := chi.NewRouter()
	r.Put("/metrics/job/{job}/instance/{instance}", func(w http.ResponseWriter, req *http.Request) {
		data, _ := io.ReadAll(req.Body)
		mu.Lock()
		path = req.URL.Path
		body = string(data)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	reg := prometheus.NewRegistry()
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "test_push_gauge", Help: "test"})
	gauge.Set(7)
	reg.MustRegister(gauge)

	if err := Push(context.Background(), srv.URL, "housing_ingest", "local", reg); err != nil {
		t.Fatalf("Push() error: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if path != "/metrics/job/housing_ingest/instance/local" {
		t.Fatalf("unexpected push path %q", path)
	}
	if !strings.Contains(body, "test_push_gauge") {
		t.Fatalf("pushed body does not contain the gauge")
	}
}
