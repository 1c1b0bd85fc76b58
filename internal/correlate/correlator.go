// Package correlate infers relationships between stored entities from literal name
// containment, and links manually asserted suspects to an address.
package correlate

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ZanzyTHEbar/recon-linker-go/internal/apptype"
	"github.com/ZanzyTHEbar/recon-linker-go/internal/database"
	"github.com/ZanzyTHEbar/recon-linker-go/internal/metrics"
)

const (
	// DefaultConfidence is the confidence assigned to every heuristic edge.
	DefaultConfidence = 0.8
	// checkEvery is how many outer-loop entities pass between context checks.
	checkEvery = 16
)

// Store is the subset of the database manager the correlator needs.
type Store interface {
	ListEntities(ctx context.Context, projectName string) ([]apptype.Entity, error)
	Batch(ctx context.Context, projectName string, fn func(b *database.Batch) error) error
}

// Correlator runs pairwise scans and manual address linking against a Store.
type Correlator struct {
	store      Store
	log        *zap.Logger
	confidence float64
	sourceTool string
	now        func() time.Time
}

// Option configures a Correlator.
type Option func(*Correlator)

// WithConfidence overrides the confidence written on heuristic edges.
func WithConfidence(c float64) Option {
	return func(co *Correlator) { co.confidence = c }
}

// WithSourceTool overrides the provenance written on heuristic edges.
func WithSourceTool(s string) Option {
	return func(co *Correlator) {
		if s != "" {
			co.sourceTool = s
		}
	}
}

// WithClock replaces time.Now for metadata timestamps.
func WithClock(now func() time.Time) Option {
	return func(co *Correlator) { co.now = now }
}

// New creates a Correlator. A nil logger disables logging.
func New(store Store, logger *zap.Logger, opts ...Option) *Correlator {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Correlator{
		store:      store,
		log:        logger.Named("correlate"),
		confidence: DefaultConfidence,
		sourceTool: apptype.SourceCorrelationEngine,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run scans every unordered pair of the current entity snapshot and stores one edge per
// matching pair. All edges of a run commit together; a cancelled context or storage error
// leaves the relationship table untouched.
func (c *Correlator) Run(ctx context.Context, projectName string, workflow Workflow) (apptype.CorrelationSummary, error) {
	done := metrics.TimeOp("correlate_run")
	success := false
	defer func() { done(success) }()

	rules, err := RulesFor(workflow)
	if err != nil {
		return apptype.CorrelationSummary{}, err
	}
	if workflow == "" {
		workflow = WorkflowGeneral
	}

	entities, err := c.store.ListEntities(ctx, projectName)
	if err != nil {
		return apptype.CorrelationSummary{}, fmt.Errorf("failed to snapshot entities: %w", err)
	}

	runID := uuid.NewString()
	log := c.log.With(zap.String("run_id", runID), zap.String("workflow", string(workflow)), zap.String("project", projectName))
	log.Info("Starting correlation", zap.Int("entities", len(entities)))

	var summary apptype.CorrelationSummary
	err = c.store.Batch(ctx, projectName, func(b *database.Batch) error {
		summary = apptype.CorrelationSummary{
			RunID:           runID,
			Workflow:        string(workflow),
			EntitiesScanned: len(entities),
			ByKind:          make(map[string]int),
		}
		for i := 0; i < len(entities); i++ {
			if i%checkEvery == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			for j := i + 1; j < len(entities); j++ {
				summary.PairsEvaluated++
				e1, e2 := entities[i], entities[j]
				rule, ok := Classify(rules, e1, e2)
				if !ok {
					continue
				}
				summary.Matches++
				_, created, err := b.UpsertRelationship(apptype.Relationship{
					Entity1ID:        e1.ID,
					Entity2ID:        e2.ID,
					RelationshipType: rule.Kind,
					SourceTool:       c.sourceTool,
					Confidence:       c.confidence,
					Metadata:         map[string]any{"run_id": runID, "rule": rule.Name},
				}, apptype.ConflictIgnore)
				if err != nil {
					if database.IsRecordError(err) {
						log.Warn("Skipping pair", zap.String("entity1", e1.Name), zap.String("entity2", e2.Name), zap.Error(err))
						summary.Failed = append(summary.Failed, apptype.RecordFailure{
							Index:  summary.PairsEvaluated - 1,
							Name:   e1.Name + " <-> " + e2.Name,
							Reason: err.Error(),
						})
						continue
					}
					return err
				}
				if created {
					summary.Created++
					summary.ByKind[rule.Kind]++
				} else {
					summary.Existing++
				}
			}
		}
		return nil
	})
	if err != nil {
		log.Error("Correlation aborted; no edges committed", zap.Error(err))
		return apptype.CorrelationSummary{}, fmt.Errorf("correlation run %s failed: %w", runID, err)
	}

	for kind, n := range summary.ByKind {
		metrics.Default().AddCorrelationEdges(kind, n)
	}
	log.Info("Correlation finished",
		zap.Int("pairs", summary.PairsEvaluated),
		zap.Int("matches", summary.Matches),
		zap.Int("created", summary.Created),
		zap.Int("existing", summary.Existing),
		zap.Int("failed", len(summary.Failed)))
	success = true
	return summary, nil
}
