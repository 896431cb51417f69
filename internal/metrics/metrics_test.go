package metrics

import (
	"strings"
	"sync"
	"testing"
	"time"
)

func TestCounter(t *testing.T) {
	c := NewCounter("test_total", "a test counter", nil)

	c.Inc()
	c.Add(5)
	c.Add(-3) // ignored

	if got := c.Value(); got != 6 {
		t.Errorf("Value() = %d, want 6", got)
	}
}

func TestCounterConcurrent(t *testing.T) {
	c := NewCounter("test_total", "a test counter", nil)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Inc()
			}
		}()
	}
	wg.Wait()

	if got := c.Value(); got != 10000 {
		t.Errorf("Value() = %d, want 10000", got)
	}
}

func TestGauge(t *testing.T) {
	g := NewGauge("test_gauge", "a test gauge", nil)

	g.Set(10)
	g.Inc()
	g.Dec()
	g.Dec()

	if got := g.Value(); got != 9 {
		t.Errorf("Value() = %f, want 9", got)
	}
}

func TestHistogram(t *testing.T) {
	h := NewHistogram("test_ms", "a test histogram", []float64{10, 100, 1000})

	h.Observe(5)
	h.Observe(50)
	h.Observe(500)
	h.Observe(5000)

	if got := h.Count(); got != 4 {
		t.Errorf("Count() = %d, want 4", got)
	}
	if got := h.Sum(); got != 5555 {
		t.Errorf("Sum() = %f, want 5555", got)
	}

	counts := h.BucketCounts()
	// Cumulative: le=10 -> 1, le=100 -> 2, le=1000 -> 3, +Inf -> 4
	want := []int64{1, 2, 3, 4}
	for i, w := range want {
		if counts[i] != w {
			t.Errorf("bucket %d count = %d, want %d", i, counts[i], w)
		}
	}
}

func TestCounterVec(t *testing.T) {
	cv := NewCounterVec("test_vec_total", "a test counter vec", []string{"backend"})

	cv.WithLabels("exact").Inc()
	cv.WithLabels("exact").Inc()
	cv.WithLabels("semantic").Inc()

	if got := cv.WithLabels("exact").Value(); got != 2 {
		t.Errorf("exact counter = %d, want 2", got)
	}
	if got := cv.WithLabels("semantic").Value(); got != 1 {
		t.Errorf("semantic counter = %d, want 1", got)
	}
	if got := len(cv.GetAll()); got != 2 {
		t.Errorf("GetAll() = %d entries, want 2", got)
	}
}

func TestCounterVecPanicsOnLabelMismatch(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic on wrong label count")
		}
	}()

	cv := NewCounterVec("test_total", "test", []string{"a", "b"})
	cv.WithLabels("only-one")
}

func TestPrometheusFormat(t *testing.T) {
	m := New()

	m.QueryRequests.WithLabels("answer", "ok").Inc()
	m.RecordCacheHit("exact")
	m.RecordCacheMiss("semantic")
	m.ObserveCacheLookup("exact", 3*time.Millisecond)
	m.EmbedRequests.Inc()

	out := m.PrometheusFormat()

	wantFragments := []string{
		"# TYPE answergrid_query_requests_total counter",
		`answergrid_query_requests_total{mode="answer",status="ok"} 1`,
		`answergrid_cache_hits_total{backend="exact"} 1`,
		`answergrid_cache_misses_total{backend="semantic"} 1`,
		"# TYPE answergrid_cache_lookup_ms histogram",
		"answergrid_embed_requests_total 1",
		"# TYPE answergrid_goroutines gauge",
	}

	for _, frag := range wantFragments {
		if !strings.Contains(out, frag) {
			t.Errorf("output missing %q", frag)
		}
	}
}

func TestEscapeString(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{`plain`, `plain`},
		{`with"quote`, `with\"quote`},
		{"with\nnewline", `with\nnewline`},
		{`back\slash`, `back\\slash`},
	}

	for _, tt := range tests {
		if got := escapeString(tt.input); got != tt.want {
			t.Errorf("escapeString(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
