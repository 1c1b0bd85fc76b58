package database

import (
	"context"
	"database/sql"

	"github.com/ZanzyTHEbar/recon-linker-go/internal/metrics"
)

// getPreparedStmt returns or prepares and caches a statement for the given project DB
func (dm *DBManager) getPreparedStmt(ctx context.Context, projectName string, db *sql.DB, sqlText string) (*sql.Stmt, error) {
	projectName = dm.resolveProject(projectName)
	// fast path read
	dm.stmtMu.RLock()
	if projCache, ok := dm.stmtCache[projectName]; ok {
		if stmt, ok2 := projCache[sqlText]; ok2 {
			dm.stmtMu.RUnlock()
			metrics.Default().IncStmtCacheHit("prepare")
			return stmt, nil
		}
	}
	dm.stmtMu.RUnlock()
	metrics.Default().IncStmtCacheMiss("prepare")

	stmt, err := db.PrepareContext(ctx, sqlText)
	if err != nil {
		return nil, storageErr("prepare statement", err)
	}
	dm.stmtMu.Lock()
	defer dm.stmtMu.Unlock()
	if _, ok := dm.stmtCache[projectName]; !ok {
		dm.stmtCache[projectName] = make(map[string]*sql.Stmt)
	}
	if existing, ok := dm.stmtCache[projectName][sqlText]; ok {
		// lost the race to another goroutine
		_ = stmt.Close()
		return existing, nil
	}
	dm.stmtCache[projectName][sqlText] = stmt
	return stmt, nil
}

func (dm *DBManager) dropStmtCache(projectName string) {
	projectName = dm.resolveProject(projectName)
	dm.stmtMu.Lock()
	defer dm.stmtMu.Unlock()
	for _, stmt := range dm.stmtCache[projectName] {
		_ = stmt.Close()
	}
	delete(dm.stmtCache, projectName)
}
