// Package linker is the library entry point: it wires the entity store, the correlator
// and the exporters behind one Service.
package linker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/ZanzyTHEbar/recon-linker-go/internal/apptype"
	"github.com/ZanzyTHEbar/recon-linker-go/internal/caseio"
	"github.com/ZanzyTHEbar/recon-linker-go/internal/correlate"
	"github.com/ZanzyTHEbar/recon-linker-go/internal/database"
	"github.com/ZanzyTHEbar/recon-linker-go/internal/export"
	"github.com/ZanzyTHEbar/recon-linker-go/internal/metrics"
	"github.com/ZanzyTHEbar/recon-linker-go/internal/parsers"
	"github.com/ZanzyTHEbar/recon-linker-go/internal/watch"
)

// Service provides a library-first API for ingest, correlation and export without MCP transport.
type Service struct {
	db   *database.DBManager
	corr *correlate.Correlator
	log  *zap.Logger
	now  func() time.Time
}

// NewService constructs a Service with the provided config. A nil logger disables logging.
func NewService(cfg *Config, logger *zap.Logger) (*Service, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	dm, err := database.NewDBManager(cfg.toInternal(), logger)
	if err != nil {
		return nil, err
	}
	opts := []correlate.Option{correlate.WithSourceTool(cfg.SourceTool)}
	if cfg.Confidence > 0 {
		opts = append(opts, correlate.WithConfidence(cfg.Confidence))
	}
	return &Service{
		db:   dm,
		corr: correlate.New(dm, logger, opts...),
		log:  logger.Named("linker"),
		now:  time.Now,
	}, nil
}

// Close releases resources.
func (s *Service) Close() error { return s.db.Close() }

// Store exposes the underlying database manager.
func (s *Service) Store() *database.DBManager { return s.db }

// Ingest stores identifier records, skipping invalid ones.
func (s *Service) Ingest(ctx context.Context, project string, records []apptype.IdentifierRecord) (apptype.IngestSummary, error) {
	summary, err := s.db.UpsertEntities(ctx, project, records)
	if err != nil {
		return summary, err
	}
	recordIngest("records", summary)
	return summary, nil
}

// IngestFile parses a tool output file (chosen by file name) and stores its records.
func (s *Service) IngestFile(ctx context.Context, project string, path string) (apptype.IngestSummary, error) {
	_, tool, err := parsers.Detect(path)
	if err != nil {
		return apptype.IngestSummary{}, err
	}
	records, err := parsers.ForFile(path)
	if err != nil {
		return apptype.IngestSummary{}, err
	}
	summary, err := s.db.UpsertEntities(ctx, project, records)
	if err != nil {
		return summary, fmt.Errorf("failed to store records from %s: %w", filepath.Base(path), err)
	}
	recordIngest(tool, summary)
	s.log.Info("Ingested tool output",
		zap.String("file", filepath.Base(path)),
		zap.String("tool", tool),
		zap.Int("inserted", summary.Inserted),
		zap.Int("duplicates", summary.Duplicates),
		zap.Int("skipped", len(summary.Skipped)))
	return summary, nil
}

func recordIngest(source string, summary apptype.IngestSummary) {
	m := metrics.Default()
	m.IncIngestRecords(source, "inserted", summary.Inserted)
	m.IncIngestRecords(source, "duplicate", summary.Duplicates)
	m.IncIngestRecords(source, "skipped", len(summary.Skipped))
}

// AddSuspects stores user-supplied suspect names.
func (s *Service) AddSuspects(ctx context.Context, project string, names []string) (apptype.IngestSummary, error) {
	return s.corr.AddSuspects(ctx, project, names)
}

// Correlate runs one correlation scan with the named workflow (empty means general).
func (s *Service) Correlate(ctx context.Context, project string, workflow string) (apptype.CorrelationSummary, error) {
	w, err := correlate.ParseWorkflow(workflow)
	if err != nil {
		return apptype.CorrelationSummary{}, err
	}
	return s.corr.Run(ctx, project, w)
}

// LinkAddress links asserted suspects to an address.
func (s *Service) LinkAddress(ctx context.Context, project string, address string, suspects []apptype.SuspectAssertion) (apptype.LinkSummary, error) {
	return s.corr.LinkSuspectsToAddress(ctx, project, address, suspects)
}

// LinkCaseFile loads a YAML case file and links its suspects to its address.
func (s *Service) LinkCaseFile(ctx context.Context, project string, path string) (apptype.LinkSummary, error) {
	cf, err := caseio.Load(path)
	if err != nil {
		return apptype.LinkSummary{}, err
	}
	return s.corr.LinkSuspectsToAddress(ctx, project, cf.Address, cf.Suspects)
}

// RankedEntities returns entities ordered by relationship count, then confidence.
func (s *Service) RankedEntities(ctx context.Context, project string) ([]apptype.RankedEntity, error) {
	return s.db.RankedEntities(ctx, project)
}

// EntitiesLinkedTo returns the neighbours of name, optionally filtered by type.
func (s *Service) EntitiesLinkedTo(ctx context.Context, project, name, filterType string) ([]apptype.LinkedEntity, error) {
	return s.db.EntitiesLinkedTo(ctx, project, name, filterType)
}

// GetEntity fetches one entity by name.
func (s *Service) GetEntity(ctx context.Context, project, name string) (*apptype.Entity, error) {
	return s.db.GetEntityByName(ctx, project, name)
}

// SearchEntities finds entities whose name contains query.
func (s *Service) SearchEntities(ctx context.Context, project, query, entityType string, limit int) ([]apptype.Entity, error) {
	return s.db.SearchEntities(ctx, project, query, entityType, limit)
}

// ListRelationships returns stored edges, optionally of one kind.
func (s *Service) ListRelationships(ctx context.Context, project, kind string) ([]apptype.Relationship, error) {
	return s.db.ListRelationships(ctx, project, kind)
}

// Reset drops and recreates the project's tables.
func (s *Service) Reset(ctx context.Context, project string) error {
	return s.db.ResetSchema(ctx, project)
}

// ExportMaltego writes every entity, most connected first, as Maltego import XML.
func (s *Service) ExportMaltego(ctx context.Context, project string, w io.Writer) error {
	ranked, err := s.db.RankedEntities(ctx, project)
	if err != nil {
		return err
	}
	return export.WriteMaltego(w, export.RankedToEntities(ranked))
}

// WriteReport writes the ranked plain-text correlation report.
func (s *Service) WriteReport(ctx context.Context, project string, w io.Writer) error {
	ranked, err := s.db.RankedEntities(ctx, project)
	if err != nil {
		return err
	}
	return export.WriteReport(w, ranked, s.now())
}

// WriteAddressReport writes the suspects linked to address.
func (s *Service) WriteAddressReport(ctx context.Context, project, address string, w io.Writer) error {
	addr, err := s.db.GetEntityByName(ctx, project, address)
	if err != nil {
		return err
	}
	linked, err := s.db.EntitiesLinkedTo(ctx, project, address, apptype.TypeSuspect)
	if err != nil {
		return err
	}
	return export.WriteAddressReport(w, *addr, linked, s.now())
}

// WatchHandler returns a watch.Handler that ingests each file into project and, when
// correlateAfter is set, runs a general correlation scan afterwards.
func (s *Service) WatchHandler(project string, correlateAfter bool) watch.Handler {
	return func(ctx context.Context, path string) error {
		if _, err := s.IngestFile(ctx, project, path); err != nil {
			return err
		}
		if !correlateAfter {
			return nil
		}
		_, err := s.corr.Run(ctx, project, correlate.WorkflowGeneral)
		return err
	}
}

// AnalyzeInput describes one end-to-end pipeline run.
type AnalyzeInput struct {
	Files     []string
	Suspects  []string
	Workflow  string
	OutputDir string
	// MaltegoFile and ReportFile are names inside OutputDir.
	MaltegoFile string
	ReportFile  string
}

// AnalyzeResult collects what a pipeline run did.
type AnalyzeResult struct {
	Ingest      map[string]apptype.IngestSummary `json:"ingest"`
	Suspects    apptype.IngestSummary            `json:"suspects"`
	Correlation apptype.CorrelationSummary       `json:"correlation"`
	MaltegoPath string                           `json:"maltego_path,omitempty"`
	ReportPath  string                           `json:"report_path,omitempty"`
	FileErrors  map[string]string                `json:"file_errors,omitempty"`
}

// Analyze ingests files and suspects, correlates, then writes the Maltego export and text
// report. A file that fails to parse is recorded and the run continues; the outputs are
// produced from whatever was stored.
func (s *Service) Analyze(ctx context.Context, project string, in AnalyzeInput) (*AnalyzeResult, error) {
	res := &AnalyzeResult{Ingest: map[string]apptype.IngestSummary{}, FileErrors: map[string]string{}}

	for _, f := range in.Files {
		summary, err := s.IngestFile(ctx, project, f)
		if err != nil {
			var se *database.StorageError
			if errors.As(err, &se) {
				return nil, err
			}
			s.log.Warn("Skipping input file", zap.String("file", f), zap.Error(err))
			res.FileErrors[f] = err.Error()
			continue
		}
		res.Ingest[f] = summary
	}

	if len(in.Suspects) > 0 {
		summary, err := s.corr.AddSuspects(ctx, project, in.Suspects)
		if err != nil {
			return nil, err
		}
		res.Suspects = summary
	}

	corr, err := s.Correlate(ctx, project, in.Workflow)
	if err != nil {
		return nil, err
	}
	res.Correlation = corr

	if in.OutputDir == "" {
		return res, nil
	}
	if err := os.MkdirAll(in.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	maltego := in.MaltegoFile
	if maltego == "" {
		maltego = "maltego_import.xml"
	}
	report := in.ReportFile
	if report == "" {
		report = "correlation_report.txt"
	}
	res.MaltegoPath = filepath.Join(in.OutputDir, maltego)
	if err := writeFile(res.MaltegoPath, func(w io.Writer) error { return s.ExportMaltego(ctx, project, w) }); err != nil {
		return nil, err
	}
	res.ReportPath = filepath.Join(in.OutputDir, report)
	if err := writeFile(res.ReportPath, func(w io.Writer) error { return s.WriteReport(ctx, project, w) }); err != nil {
		return nil, err
	}
	return res, nil
}

// writeFile writes through a temp file and renames it into place.
func writeFile(path string, fill func(w io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())
	if err := fill(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// WriteFile writes the output of fill to path atomically.
func WriteFile(path string, fill func(w io.Writer) error) error { return writeFile(path, fill) }
