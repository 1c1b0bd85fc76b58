package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"
	"go.uber.org/zap"

	"github.com/ZanzyTHEbar/recon-linker-go/internal/metrics"
)

// NewDBManager creates a new database manager
func NewDBManager(config *Config, logger *zap.Logger) (*DBManager, error) {
	if config == nil {
		config = NewConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	manager := &DBManager{
		config:    config,
		log:       logger.Named("database"),
		dbs:       make(map[string]*sql.DB),
		stmtCache: make(map[string]map[string]*sql.Stmt),
	}

	// If not in multi-project mode, initialize the default database immediately
	if !config.MultiProjectMode {
		if _, err := manager.getDB(defaultProject); err != nil {
			return nil, fmt.Errorf("failed to initialize default database: %w", err)
		}
	}

	return manager, nil
}

// getDB retrieves a database connection for a given project, creating it if necessary
func (dm *DBManager) getDB(projectName string) (*sql.DB, error) {
	projectName = dm.resolveProject(projectName)

	dm.mu.RLock()
	db, ok := dm.dbs[projectName]
	dm.mu.RUnlock()
	if ok {
		return db, nil
	}

	dm.mu.Lock()
	defer dm.mu.Unlock()

	// Double-check if another goroutine created the DB while we were waiting for the lock
	if db, ok = dm.dbs[projectName]; ok {
		return db, nil
	}

	dbURL, err := dm.projectURL(projectName)
	if err != nil {
		return nil, err
	}

	newDb, err := sql.Open("libsql", dbURL)
	if err != nil {
		return nil, &StorageError{Op: "open database for project " + projectName, Err: err}
	}

	if err := dm.initialize(newDb); err != nil {
		newDb.Close()
		return nil, fmt.Errorf("failed to initialize database for project %s: %w", projectName, err)
	}

	if dm.config.MaxOpenConns > 0 {
		newDb.SetMaxOpenConns(dm.config.MaxOpenConns)
	}
	if dm.config.MaxIdleConns > 0 {
		newDb.SetMaxIdleConns(dm.config.MaxIdleConns)
	}
	if dm.config.ConnMaxIdleSec > 0 {
		newDb.SetConnMaxIdleTime(time.Duration(dm.config.ConnMaxIdleSec) * time.Second)
	}
	if dm.config.ConnMaxLifeSec > 0 {
		newDb.SetConnMaxLifetime(time.Duration(dm.config.ConnMaxLifeSec) * time.Second)
	}

	dm.dbs[projectName] = newDb
	stats := newDb.Stats()
	metrics.Default().ObservePoolStats(stats.InUse, stats.Idle)
	dm.log.Debug("Opened project database", zap.String("project", projectName))
	return newDb, nil
}

// resolveProject maps an empty name, or any name in single-project mode, to the default project.
func (dm *DBManager) resolveProject(projectName string) string {
	if projectName == "" || !dm.config.MultiProjectMode {
		return defaultProject
	}
	return projectName
}

// projectURL resolves the libSQL URL for a project, appending the auth token for remote URLs.
func (dm *DBManager) projectURL(projectName string) (string, error) {
	if dm.config.MultiProjectMode {
		if strings.ContainsAny(projectName, `/\`) || projectName == "." || projectName == ".." {
			return "", fmt.Errorf("invalid project name %q", projectName)
		}
		dbPath := filepath.Join(dm.config.ProjectsDir, projectName, "libsql.db")
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return "", fmt.Errorf("failed to create project directory for %s: %w", projectName, err)
		}
		return "file:" + dbPath, nil
	}

	dbURL := dm.config.URL
	if strings.HasPrefix(dbURL, "file:") || dm.config.AuthToken == "" {
		return dbURL, nil
	}
	u, err := url.Parse(dbURL)
	if err != nil {
		if strings.Contains(dbURL, "?") {
			return dbURL + "&authToken=" + url.QueryEscape(dm.config.AuthToken), nil
		}
		return dbURL + "?authToken=" + url.QueryEscape(dm.config.AuthToken), nil
	}
	q := u.Query()
	q.Set("authToken", dm.config.AuthToken)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// initialize creates tables and indexes if they don't exist
func (dm *DBManager) initialize(db *sql.DB) error {
	done := metrics.TimeOp("db_initialize")
	success := false
	defer func() { done(success) }()
	tx, err := db.BeginTx(context.Background(), nil)
	if err != nil {
		return storageErr("begin transaction for initialization", err)
	}
	defer tx.Rollback()

	for _, statement := range schema {
		if _, err := tx.Exec(statement); err != nil {
			return storageErr("execute schema statement", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return storageErr("commit schema", err)
	}
	success = true
	return nil
}
