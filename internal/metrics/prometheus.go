package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// PrometheusFormat exports all metrics in Prometheus text exposition format.
// See: https://prometheus.io/docs/instrumenting/exposition_formats/
func (m *Metrics) PrometheusFormat() string {
	m.UpdateSystemMetrics()

	var sb strings.Builder

	writeCounterVec(&sb, m.QueryRequests)
	writeHistogram(&sb, m.PipelineLatency)
	writeHistogramVec(&sb, m.StageLatency)

	writeCounterVec(&sb, m.CacheHits)
	writeCounterVec(&sb, m.CacheMisses)
	writeHistogramVec(&sb, m.CacheLookupTime)
	writeCounterVec(&sb, m.CacheWriteErrors)

	writeCounterVec(&sb, m.RateLimitRejections)
	writeCounterVec(&sb, m.ModerationRejections)

	writeCounter(&sb, m.EmbedRequests)
	writeHistogram(&sb, m.EmbedLatency)
	writeCounter(&sb, m.ChatRequests)
	writeHistogram(&sb, m.ChatLatency)

	writeHistogram(&sb, m.RetrievalLatency)
	writeHistogram(&sb, m.RetrievedPassages)

	writeCounter(&sb, m.IngestedDocuments)
	writeCounter(&sb, m.IngestedChunks)

	writeCounterVec(&sb, m.TokensTotal)

	writeCounterVec(&sb, m.BusEventsPublished)
	writeCounterVec(&sb, m.BusErrors)

	writeCounterVec(&sb, m.HTTPRequests)
	writeHistogramVec(&sb, m.HTTPDuration)
	writeGauge(&sb, m.HTTPRequestsInFlight)

	writeGauge(&sb, m.GoroutineCount)
	writeGauge(&sb, m.MemoryUsage)
	writeCounter(&sb, m.Uptime)

	return sb.String()
}

// Handler returns an HTTP handler serving the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(m.PrometheusFormat()))
	})
}

// writeCounter writes a counter in Prometheus format.
func writeCounter(sb *strings.Builder, c *Counter) {
	writeHeader(sb, c.Name(), c.Help(), "counter")
	sb.WriteString(c.Name())
	writeLabels(sb, c.Labels())
	fmt.Fprintf(sb, " %d\n", c.Value())
}

// writeGauge writes a gauge in Prometheus format.
func writeGauge(sb *strings.Builder, g *Gauge) {
	writeHeader(sb, g.Name(), g.Help(), "gauge")
	sb.WriteString(g.Name())
	writeLabels(sb, g.Labels())
	fmt.Fprintf(sb, " %.0f\n", g.Value())
}

// writeHistogram writes a histogram in Prometheus format.
func writeHistogram(sb *strings.Builder, h *Histogram) {
	writeHeader(sb, h.Name(), h.Help(), "histogram")
	writeHistogramSeries(sb, h)
}

// writeHistogramSeries writes the bucket, sum, and count series for one
// histogram, carrying its labels into each series.
func writeHistogramSeries(sb *strings.Builder, h *Histogram) {
	buckets := h.Buckets()
	counts := h.BucketCounts()
	labels := h.Labels()

	for i, bucket := range buckets {
		sb.WriteString(h.Name())
		sb.WriteString("_bucket")
		writeLabelsWith(sb, labels, "le", fmt.Sprintf("%g", bucket))
		fmt.Fprintf(sb, " %d\n", counts[i])
	}

	sb.WriteString(h.Name())
	sb.WriteString("_bucket")
	writeLabelsWith(sb, labels, "le", "+Inf")
	fmt.Fprintf(sb, " %d\n", counts[len(counts)-1])

	sb.WriteString(h.Name())
	sb.WriteString("_sum")
	writeLabels(sb, labels)
	fmt.Fprintf(sb, " %.2f\n", h.Sum())

	sb.WriteString(h.Name())
	sb.WriteString("_count")
	writeLabels(sb, labels)
	fmt.Fprintf(sb, " %d\n", h.Count())
}

// writeCounterVec writes a counter vector in Prometheus format.
func writeCounterVec(sb *strings.Builder, cv *CounterVec) {
	counters := cv.GetAll()
	if len(counters) == 0 {
		return
	}

	writeHeader(sb, cv.Name(), cv.Help(), "counter")
	for _, c := range counters {
		sb.WriteString(c.Name())
		writeLabels(sb, c.Labels())
		fmt.Fprintf(sb, " %d\n", c.Value())
	}
}

// writeHistogramVec writes a histogram vector in Prometheus format.
func writeHistogramVec(sb *strings.Builder, hv *HistogramVec) {
	histograms := hv.GetAll()
	if len(histograms) == 0 {
		return
	}

	writeHeader(sb, hv.Name(), hv.Help(), "histogram")
	for _, h := range histograms {
		writeHistogramSeries(sb, h)
	}
}

// writeHeader writes the HELP and TYPE comment lines.
func writeHeader(sb *strings.Builder, name, help, typ string) {
	sb.WriteString("# HELP ")
	sb.WriteString(name)
	sb.WriteString(" ")
	sb.WriteString(help)
	sb.WriteString("\n# TYPE ")
	sb.WriteString(name)
	sb.WriteString(" ")
	sb.WriteString(typ)
	sb.WriteString("\n")
}

// writeLabels writes labels in Prometheus format {key="value",key2="value2"}.
func writeLabels(sb *strings.Builder, labels map[string]string) {
	if len(labels) == 0 {
		return
	}
	writeLabelsWith(sb, labels, "", "")
}

// writeLabelsWith writes labels plus one extra label (used for "le").
func writeLabelsWith(sb *strings.Builder, labels map[string]string, extraKey, extraValue string) {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sb.WriteString("{")
	written := 0
	for _, k := range keys {
		if written > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(k)
		sb.WriteString("=\"")
		sb.WriteString(escapeString(labels[k]))
		sb.WriteString("\"")
		written++
	}
	if extraKey != "" {
		if written > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(extraKey)
		sb.WriteString("=\"")
		sb.WriteString(extraValue)
		sb.WriteString("\"")
	}
	sb.WriteString("}")
}

// escapeString escapes special characters in label values.
func escapeString(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}
