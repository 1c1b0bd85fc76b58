package database

import (
	"context"
	"strings"

	"github.com/ZanzyTHEbar/recon-linker-go/internal/apptype"
	"github.com/ZanzyTHEbar/recon-linker-go/internal/metrics"
)

const defaultSearchLimit = 50

// escapeLike escapes LIKE wildcards so the query is matched literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// SearchEntities finds entities whose name contains query. entityType, when non-empty,
// restricts the match to that type. A non-positive limit uses the default of 50.
func (dm *DBManager) SearchEntities(ctx context.Context, projectName string, query string, entityType string, limit int) ([]apptype.Entity, error) {
	done := metrics.TimeOp("db_search_entities")
	success := false
	defer func() { done(success) }()

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, &ValidationError{Field: "query", Reason: "must be a non-empty string"}
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	db, err := dm.getDB(projectName)
	if err != nil {
		return nil, err
	}

	sqlText := selectEntityColumns + ` WHERE name LIKE ? ESCAPE '\'`
	args := []any{"%" + escapeLike(query) + "%"}
	if entityType != "" {
		sqlText += " AND type = ?"
		args = append(args, entityType)
	}
	sqlText += " ORDER BY id LIMIT ?"
	args = append(args, limit)

	stmt, err := dm.getPreparedStmt(ctx, projectName, db, sqlText)
	if err != nil {
		return nil, err
	}
	rows, err := stmt.QueryContext(ctx, args...)
	if err != nil {
		return nil, storageErr("search entities", err)
	}
	defer rows.Close()

	results := make([]apptype.Entity, 0)
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate search results", err)
	}
	success = true
	return results, nil
}
