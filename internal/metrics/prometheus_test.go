//go:build !noprom

package metrics

import (
	"testing"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestPromRecorderCounters(t *testing.T) {
	p := newPromRecorder(prom.NewRegistry())

	p.AddCorrelationEdges("suspect_association", 2)
	p.AddCorrelationEdges("suspect_association", 1)
	p.IncStmtCacheHit("prepare")
	p.IncStmtCacheMiss("prepare")
	p.IncStmtCacheMiss("prepare")
	p.IncIngestRecords("theHarvester", "inserted", 4)
	p.ObservePoolStats(1, 3)

	assert.Equal(t, 3.0, testutil.ToFloat64(p.edgesCreated.WithLabelValues("suspect_association")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.stmtCache.WithLabelValues("prepare", "hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(p.stmtCache.WithLabelValues("prepare", "miss")))
	assert.Equal(t, 4.0, testutil.ToFloat64(p.ingestRecords.WithLabelValues("theHarvester", "inserted")))
	assert.Equal(t, 3.0, testutil.ToFloat64(p.poolIdle))
}
