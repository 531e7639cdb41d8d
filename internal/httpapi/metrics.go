package httpapi

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// metricsStore holds a handful of process-wide counters rendered in the
// Prometheus text format.
type metricsStore struct {
	mu sync.Mutex

	httpRequestsTotal uint64
	httpByPattern     map[reqKey]uint64

	appErrors map[errKey]uint64

	extractionsTotal uint64
	fieldsExtracted  uint64
}

type reqKey struct {
	Pattern string
	Status  int
}

type errKey struct {
	Stage string
	Code  string
}

func newMetricsStore() *metricsStore {
	return &metricsStore{
		httpByPattern: make(map[reqKey]uint64),
		appErrors:     make(map[errKey]uint64),
	}
}

var metrics = newMetricsStore()

func metricsIncRequest(pattern string, status int) {
	if status == 0 {
		status = http.StatusOK
	}
	if pattern == "" {
		pattern = "(unknown)"
	}

	metrics.mu.Lock()
	metrics.httpRequestsTotal++
	metrics.httpByPattern[reqKey{Pattern: pattern, Status: status}]++
	metrics.mu.Unlock()
}

func metricsIncAppError(stage, code string) {
	stage = strings.TrimSpace(stage)
	code = strings.TrimSpace(code)
	if stage == "" {
		stage = "(unknown)"
	}
	if code == "" {
		code = "(unknown)"
	}

	metrics.mu.Lock()
	metrics.appErrors[errKey{Stage: stage, Code: code}]++
	metrics.mu.Unlock()
}

// metricsIncExtraction records one extraction that produced fields names.
func metricsIncExtraction(fields int) {
	metrics.mu.Lock()
	metrics.extractionsTotal++
	metrics.fieldsExtracted += uint64(max(fields, 0))
	metrics.mu.Unlock()
}

type reqMetric struct {
	reqKey
	N uint64
}

type errMetric struct {
	errKey
	N uint64
}

type metricsView struct {
	httpTotal   uint64
	reqs        []reqMetric
	errs        []errMetric
	extractions uint64
	fields      uint64
}

func metricsSnapshot() metricsView {
	metrics.mu.Lock()
	defer metrics.mu.Unlock()

	httpTotal := metrics.httpRequestsTotal

	reqs := make([]reqMetric, 0, len(metrics.httpByPattern))
	for k, n := range metrics.httpByPattern {
		reqs = append(reqs, reqMetric{reqKey: k, N: n})
	}
	errs := make([]errMetric, 0, len(metrics.appErrors))
	for k, n := range metrics.appErrors {
		errs = append(errs, errMetric{errKey: k, N: n})
	}

	sort.Slice(reqs, func(i, j int) bool {
		if reqs[i].Pattern != reqs[j].Pattern {
			return reqs[i].Pattern < reqs[j].Pattern
		}
		return reqs[i].Status < reqs[j].Status
	})
	sort.Slice(errs, func(i, j int) bool {
		if errs[i].Stage != errs[j].Stage {
			return errs[i].Stage < errs[j].Stage
		}
		return errs[i].Code < errs[j].Code
	})
	return metricsView{
		httpTotal:   httpTotal,
		reqs:        reqs,
		errs:        errs,
		extractions: metrics.extractionsTotal,
		fields:      metrics.fieldsExtracted,
	}
}

func handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")

	snap := metricsSnapshot()

	var b strings.Builder

	b.WriteString("# HELP genieacs_gateway_http_requests_total Total HTTP requests.\n")
	b.WriteString("# TYPE genieacs_gateway_http_requests_total counter\n")
	b.WriteString("genieacs_gateway_http_requests_total ")
	b.WriteString(strconv.FormatUint(snap.httpTotal, 10))
	b.WriteByte('\n')

	b.WriteString("# HELP genieacs_gateway_http_requests_by_pattern_total HTTP requests by ServeMux pattern and status.\n")
	b.WriteString("# TYPE genieacs_gateway_http_requests_by_pattern_total counter\n")
	for _, m := range snap.reqs {
		b.WriteString("genieacs_gateway_http_requests_by_pattern_total{pattern=\"")
		b.WriteString(promLabelEscape(m.Pattern))
		b.WriteString("\",status=\"")
		b.WriteString(strconv.Itoa(m.Status))
		b.WriteString("\"} ")
		b.WriteString(strconv.FormatUint(m.N, 10))
		b.WriteByte('\n')
	}

	b.WriteString("# HELP genieacs_gateway_app_errors_total Application errors returned to clients.\n")
	b.WriteString("# TYPE genieacs_gateway_app_errors_total counter\n")
	for _, m := range snap.errs {
		b.WriteString("genieacs_gateway_app_errors_total{stage=\"")
		b.WriteString(promLabelEscape(m.Stage))
		b.WriteString("\",code=\"")
		b.WriteString(promLabelEscape(m.Code))
		b.WriteString("\"} ")
		b.WriteString(strconv.FormatUint(m.N, 10))
		b.WriteByte('\n')
	}

	writeCounter(&b, "genieacs_gateway_extractions_total", "Parameter extractions served.", snap.extractions)
	writeCounter(&b, "genieacs_gateway_extracted_fields_total", "Friendly-name fields produced by extractions.", snap.fields)

	_, _ = fmt.Fprint(w, b.String())
}

func writeCounter(b *strings.Builder, name, help string, n uint64) {
	b.WriteString("# HELP " + name + " " + help + "\n")
	b.WriteString("# TYPE " + name + " counter\n")
	b.WriteString(name + " " + strconv.FormatUint(n, 10) + "\n")
}

func promLabelEscape(s string) string {
	// Prometheus label value escaping: backslash and double quote.
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}
