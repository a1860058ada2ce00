// Package metrics provides a lightweight Prometheus-compatible metrics
// registry for EpochSim without pulling in prometheus/client_golang.
//
// # Counter naming convention
//
// Every counter uses a tab-separated string as its label key so that a single
// sync.Map can hold all label combinations without additional map nesting.
//
//	TicksForward / TicksBackward / ProcessesCreated /
//	ProcessesKilled / SessionsCreated                 →  key = "algorithm"
//	HTTPReqs                                          →  key = "method\troute\tstatus"
//	HTTPDurMs / HTTPDurCnt                            →  key = "method\troute"
//
// # Prometheus text output
//
// Registry.Handler() renders every family in the Prometheus exposition
// format (text/plain; version=0.0.4). Families with no samples are omitted.
package metrics

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
)

// ─── labelCounter ─────────────────────────────────────────────────────────────

// labelCounter is a lock-free, label-keyed counter map backed by sync.Map and
// atomic.Int64 values.
type labelCounter struct {
	vals sync.Map // key string → *atomic.Int64
}

func (lc *labelCounter) get(key string) *atomic.Int64 {
	v, _ := lc.vals.LoadOrStore(key, new(atomic.Int64))
	return v.(*atomic.Int64)
}

// Inc increments the counter for key by 1.
func (lc *labelCounter) Inc(key string) { lc.get(key).Add(1) }

// Add increments the counter for key by n.
func (lc *labelCounter) Add(key string, n int64) { lc.get(key).Add(n) }

// Value returns the current count for key.
func (lc *labelCounter) Value(key string) int64 {
	v, ok := lc.vals.Load(key)
	if !ok {
		return 0
	}
	return v.(*atomic.Int64).Load()
}

// Each calls fn for every key/value pair. The order is non-deterministic.
func (lc *labelCounter) Each(fn func(key string, val int64)) {
	lc.vals.Range(func(k, v any) bool {
		fn(k.(string), v.(*atomic.Int64).Load())
		return true
	})
}

// ─── Registry ─────────────────────────────────────────────────────────────────

// Registry holds all EpochSim application metrics. The zero value is ready
// to use.
type Registry struct {
	// Simulation counters.  key = algorithm name
	TicksForward     labelCounter
	TicksBackward    labelCounter
	ProcessesCreated labelCounter
	ProcessesKilled  labelCounter
	SessionsCreated  labelCounter

	// ActiveSessions is the number of live sessions.
	ActiveSessions atomic.Int64

	// HTTP-level counters.  key = "method\troute\tstatus" (Reqs) or "method\troute" (Dur*)
	HTTPReqs   labelCounter
	HTTPDurMs  labelCounter // sum of request durations in milliseconds
	HTTPDurCnt labelCounter // number of requests (same key as HTTPDurMs, for avg)
}

type family struct {
	name, help, typ string
	counter         *labelCounter
	labels          func(key string) string
}

func byAlgorithm(key string) string { return fmt.Sprintf(`algorithm=%q`, key) }

func byRequest(key string) string {
	method, route, status := splitThree(key)
	return fmt.Sprintf(`method=%q,route=%q,status=%q`, method, route, status)
}

func byRoute(key string) string {
	method, route := splitTwo(key)
	return fmt.Sprintf(`method=%q,route=%q`, method, route)
}

func (r *Registry) families() []family {
	return []family{
		{"epochsim_ticks_forward_total", "Total forward simulation ticks", "counter", &r.TicksForward, byAlgorithm},
		{"epochsim_ticks_backward_total", "Total backward simulation steps", "counter", &r.TicksBackward, byAlgorithm},
		{"epochsim_processes_created_total", "Total processes injected into running sessions", "counter", &r.ProcessesCreated, byAlgorithm},
		{"epochsim_processes_killed_total", "Total processes killed out of band", "counter", &r.ProcessesKilled, byAlgorithm},
		{"epochsim_sessions_created_total", "Total simulation sessions created", "counter", &r.SessionsCreated, byAlgorithm},
		{"epochsim_http_requests_total", "Total HTTP requests by method, route, and status code", "counter", &r.HTTPReqs, byRequest},
		{"epochsim_http_request_duration_milliseconds_sum", "Sum of HTTP request durations in milliseconds", "counter", &r.HTTPDurMs, byRoute},
		{"epochsim_http_request_duration_milliseconds_count", "Count of observed HTTP request durations", "counter", &r.HTTPDurCnt, byRoute},
	}
}

// ─── Prometheus text serialisation ────────────────────────────────────────────

// Handler returns an http.Handler that renders all metrics in the Prometheus
// plain-text exposition format.
func (r *Registry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		w.WriteHeader(http.StatusOK)

		var b strings.Builder
		for _, f := range r.families() {
			writeFamily(&b, f.name, f.help, f.typ, func(fn func(labels, val string)) {
				f.counter.Each(func(key string, val int64) {
					fn(f.labels(key), fmt.Sprintf("%d", val))
				})
			})
		}
		if n := r.ActiveSessions.Load(); n != 0 {
			fmt.Fprintf(&b, "# HELP epochsim_sessions_active Live simulation sessions\n")
			fmt.Fprintf(&b, "# TYPE epochsim_sessions_active gauge\n")
			fmt.Fprintf(&b, "epochsim_sessions_active %d\n", n)
		}
		fmt.Fprint(w, b.String())
	})
}

// ─── helpers ──────────────────────────────────────────────────────────────────

// writeFamily appends one metric family to b. The HELP and TYPE lines are
// skipped when fill produces no samples.
func writeFamily(b *strings.Builder, name, help, typ string, fill func(fn func(labels, val string))) {
	var samples strings.Builder
	fill(func(labels, val string) {
		fmt.Fprintf(&samples, "%s{%s} %s\n", name, labels, val)
	})
	if samples.Len() == 0 {
		return
	}
	fmt.Fprintf(b, "# HELP %s %s\n# TYPE %s %s\n", name, help, name, typ)
	b.WriteString(samples.String())
}

func splitTwo(key string) (string, string) {
	a, b, _ := strings.Cut(key, "\t")
	return a, b
}

func splitThree(key string) (string, string, string) {
	a, rest := splitTwo(key)
	b, c := splitTwo(rest)
	return a, b, c
}

// ─── Convenience key builders ─────────────────────────────────────────────────

// HTTPKey builds the label key used by HTTPReqs.
func HTTPKey(method, route, status string) string {
	return method + "\t" + route + "\t" + status
}

// HTTPDurKey builds the label key used by HTTPDurMs / HTTPDurCnt.
func HTTPDurKey(method, route string) string {
	return method + "\t" + route
}
