//go:build !noprom

package metrics

import (
	"net"
	"net/http"
	"strconv"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "recon_linker"

type promRecorder struct {
	dbTotal       *prom.CounterVec
	dbSeconds     *prom.HistogramVec
	toolTotal     *prom.CounterVec
	toolSeconds   *prom.HistogramVec
	poolInUse     prom.Gauge
	poolIdle      prom.Gauge
	stmtCache     *prom.CounterVec
	edgesCreated  *prom.CounterVec
	ingestRecords *prom.CounterVec
}

func (p *promRecorder) IncDBOpTotal(op string, success bool) {
	p.dbTotal.WithLabelValues(op, strconv.FormatBool(success)).Inc()
}

func (p *promRecorder) ObserveDBOpSeconds(op string, success bool, seconds float64) {
	p.dbSeconds.WithLabelValues(op, strconv.FormatBool(success)).Observe(seconds)
}

func (p *promRecorder) IncToolTotal(tool string, success bool) {
	p.toolTotal.WithLabelValues(tool, strconv.FormatBool(success)).Inc()
}

func (p *promRecorder) ObserveToolSeconds(tool string, success bool, seconds float64) {
	p.toolSeconds.WithLabelValues(tool, strconv.FormatBool(success)).Observe(seconds)
}

func (p *promRecorder) ObservePoolStats(inUse, idle int) {
	p.poolInUse.Set(float64(inUse))
	p.poolIdle.Set(float64(idle))
}

func (p *promRecorder) IncStmtCacheHit(kind string) {
	p.stmtCache.WithLabelValues(kind, "hit").Inc()
}

func (p *promRecorder) IncStmtCacheMiss(kind string) {
	p.stmtCache.WithLabelValues(kind, "miss").Inc()
}

func (p *promRecorder) AddCorrelationEdges(kind string, n int) {
	p.edgesCreated.WithLabelValues(kind).Add(float64(n))
}

func (p *promRecorder) IncIngestRecords(source string, outcome string, n int) {
	p.ingestRecords.WithLabelValues(source, outcome).Add(float64(n))
}

func newPromRecorder(registry *prom.Registry) *promRecorder {
	p := &promRecorder{
		dbTotal: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "db_ops_total",
			Help:      "Total number of DB operations",
		}, []string{"op", "success"}),
		dbSeconds: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "db_op_seconds",
			Help:      "DB operation duration in seconds",
			Buckets:   prom.DefBuckets,
		}, []string{"op", "success"}),
		toolTotal: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Total number of tool handler calls",
		}, []string{"tool", "success"}),
		toolSeconds: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_call_seconds",
			Help:      "Tool handler duration in seconds",
			Buckets:   prom.DefBuckets,
		}, []string{"tool", "success"}),
		poolInUse: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "db_pool_in_use",
			Help:      "Connections currently in use",
		}),
		poolIdle: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "db_pool_idle",
			Help:      "Idle connections in the pool",
		}),
		stmtCache: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "stmt_cache_total",
			Help:      "Prepared statement cache lookups",
		}, []string{"kind", "result"}),
		edgesCreated: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "correlation_edges_created_total",
			Help:      "Relationships created by correlation runs",
		}, []string{"kind"}),
		ingestRecords: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_records_total",
			Help:      "Identifier records processed by ingest",
		}, []string{"source", "outcome"}),
	}
	registry.MustRegister(p.dbTotal, p.dbSeconds, p.toolTotal, p.toolSeconds,
		p.poolInUse, p.poolIdle, p.stmtCache, p.edgesCreated, p.ingestRecords)
	return p
}

func enablePrometheus(addr string) error {
	registry := prom.NewRegistry()
	p := newPromRecorder(registry)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	SetRecorder(p)
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() { _ = srv.Serve(ln) }()
	return nil
}
