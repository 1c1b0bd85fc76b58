package metrics

import (
	"os"
	"sync"
	"time"
)

// Package metrics provides a minimal instrumentation interface with a no-op
// default and optional Prometheus-backed implementation.

// Recorder defines the metrics surface used across the codebase.
type Recorder interface {
	IncDBOpTotal(op string, success bool)
	ObserveDBOpSeconds(op string, success bool, seconds float64)
	IncToolTotal(tool string, success bool)
	ObserveToolSeconds(tool string, success bool, seconds float64)
	ObservePoolStats(inUse, idle int)
	IncStmtCacheHit(kind string)
	IncStmtCacheMiss(kind string)
	AddCorrelationEdges(kind string, n int)
	IncIngestRecords(source string, outcome string, n int)
}

// noopRecorder implements Recorder with no-ops.
type noopRecorder struct{}

func (n *noopRecorder) IncDBOpTotal(string, bool)                {}
func (n *noopRecorder) ObserveDBOpSeconds(string, bool, float64) {}
func (n *noopRecorder) IncToolTotal(string, bool)                {}
func (n *noopRecorder) ObserveToolSeconds(string, bool, float64) {}
func (n *noopRecorder) ObservePoolStats(int, int)                {}
func (n *noopRecorder) IncStmtCacheHit(string)                   {}
func (n *noopRecorder) IncStmtCacheMiss(string)                  {}
func (n *noopRecorder) AddCorrelationEdges(string, int)          {}
func (n *noopRecorder) IncIngestRecords(string, string, int)     {}

var (
	recMu    sync.RWMutex
	recorder Recorder = &noopRecorder{}
)

// Default returns the current recorder.
func Default() Recorder {
	recMu.RLock()
	defer recMu.RUnlock()
	return recorder
}

// SetRecorder swaps the global recorder implementation. A nil recorder restores the no-op.
func SetRecorder(r Recorder) {
	recMu.Lock()
	defer recMu.Unlock()
	if r == nil {
		r = &noopRecorder{}
	}
	recorder = r
}

// TimeOp is a helper to time DB operations.
func TimeOp(op string) func(success bool) {
	start := time.Now()
	return func(success bool) {
		dur := time.Since(start).Seconds()
		Default().IncDBOpTotal(op, success)
		Default().ObserveDBOpSeconds(op, success, dur)
	}
}

// TimeTool is a helper to time tool handler operations.
func TimeTool(tool string) func(success bool) {
	start := time.Now()
	return func(success bool) {
		dur := time.Since(start).Seconds()
		Default().IncToolTotal(tool, success)
		Default().ObserveToolSeconds(tool, success, dur)
	}
}

// Init installs the Prometheus recorder and serves /metrics and /healthz on addr
// (default :9090). It is a no-op when enabled is false.
func Init(enabled bool, addr string) error {
	if !enabled {
		return nil
	}
	if addr == "" {
		addr = ":9090"
	}
	return enablePrometheus(addr)
}

// InitFromEnv enables the Prometheus exporter if METRICS_PROMETHEUS is set,
// listening on METRICS_ADDR.
func InitFromEnv() {
	if os.Getenv("METRICS_PROMETHEUS") == "" {
		return
	}
	// Try to install prometheus recorder; if it fails, keep noop.
	_ = Init(true, os.Getenv("METRICS_ADDR"))
}

// enablePrometheus is provided by build-tagged files.
