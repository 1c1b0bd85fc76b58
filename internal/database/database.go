package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/ZanzyTHEbar/recon-linker-go/internal/metrics"
)

const defaultProject = "default"

// DBManager handles all database operations
type DBManager struct {
	config *Config
	log    *zap.Logger
	dbs    map[string]*sql.DB
	mu     sync.RWMutex

	stmtMu    sync.RWMutex
	stmtCache map[string]map[string]*sql.Stmt
}

// Config returns the configuration the manager was built with.
func (dm *DBManager) Config() Config { return *dm.config }

// PoolStats sums open connection stats across all project handles.
func (dm *DBManager) PoolStats() (inUse, idle int) {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	for _, db := range dm.dbs {
		s := db.Stats()
		inUse += s.InUse
		idle += s.Idle
	}
	return inUse, idle
}

// ResetSchema drops and recreates both tables for a project. This is an administrative
// operation; every entity and relationship in the project is lost.
func (dm *DBManager) ResetSchema(ctx context.Context, projectName string) error {
	done := metrics.TimeOp("db_reset_schema")
	success := false
	defer func() { done(success) }()
	db, err := dm.getDB(projectName)
	if err != nil {
		return err
	}

	// cached statements point at the dropped tables
	dm.dropStmtCache(projectName)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin reset transaction", err)
	}
	defer tx.Rollback()

	for _, statement := range append(append([]string{}, dropSchema...), schema...) {
		if _, err := tx.ExecContext(ctx, statement); err != nil {
			return storageErr("execute reset statement", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return storageErr("commit reset", err)
	}
	dm.log.Warn("Schema reset", zap.String("project", projectName))
	success = true
	return nil
}

// Close closes all database connections
func (dm *DBManager) Close() error {
	dm.stmtMu.Lock()
	for _, cache := range dm.stmtCache {
		for _, stmt := range cache {
			_ = stmt.Close()
		}
	}
	dm.stmtCache = make(map[string]map[string]*sql.Stmt)
	dm.stmtMu.Unlock()

	dm.mu.Lock()
	defer dm.mu.Unlock()

	var errs []string
	for name, db := range dm.dbs {
		if err := db.Close(); err != nil {
			errs = append(errs, fmt.Sprintf("failed to close database for project %s: %v", name, err))
		}
	}
	dm.dbs = make(map[string]*sql.DB)

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// encodeMetadata serializes optional metadata into a nullable TEXT column.
func encodeMetadata(md map[string]any) (sql.NullString, error) {
	if len(md) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(md)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode metadata: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func decodeMetadata(raw sql.NullString) (map[string]any, error) {
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	var md map[string]any
	if err := json.Unmarshal([]byte(raw.String), &md); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	return md, nil
}
