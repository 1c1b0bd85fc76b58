package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ZanzyTHEbar/recon-linker-go/internal/apptype"
	"github.com/ZanzyTHEbar/recon-linker-go/internal/metrics"
)

const selectRelationshipColumns = "SELECT id, entity1_id, entity2_id, relationship_type, source_tool, confidence, metadata, created_at FROM relationships"

func scanRelationship(row rowScanner) (*apptype.Relationship, error) {
	var r apptype.Relationship
	var md, created sql.NullString
	if err := row.Scan(&r.ID, &r.Entity1ID, &r.Entity2ID, &r.RelationshipType, &r.SourceTool, &r.Confidence, &md, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, storageErr("scan relationship", err)
	}
	meta, err := decodeMetadata(md)
	if err != nil {
		return nil, err
	}
	r.Metadata = meta
	r.CreatedAt = parseTimestamp(created)
	return &r, nil
}

// normalizePair orders the endpoints so an unordered pair has exactly one stored form.
func normalizePair(a, b int64) (int64, int64) {
	if a > b {
		return b, a
	}
	return a, b
}

func validateRelationship(r apptype.Relationship) error {
	if r.Entity1ID == r.Entity2ID {
		return ErrSelfRelationship
	}
	if strings.TrimSpace(r.RelationshipType) == "" {
		return &ValidationError{Field: "relationship_type", Reason: "must be a non-empty string"}
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return &ValidationError{Field: "confidence", Reason: fmt.Sprintf("must be within [0,1], got %v", r.Confidence)}
	}
	return nil
}

// checkEndpoints returns a ReferentialError for the first id that has no entity row.
func checkEndpoints(ctx context.Context, q querier, ids ...int64) error {
	for _, id := range ids {
		var one int
		err := q.QueryRowContext(ctx, "SELECT 1 FROM entities WHERE id = ?", id).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return &ReferentialError{EntityID: id}
		}
		if err != nil {
			return storageErr("check relationship endpoint", err)
		}
	}
	return nil
}

func relationshipID(ctx context.Context, q querier, e1, e2 int64, kind string) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx,
		"SELECT id FROM relationships WHERE entity1_id = ? AND entity2_id = ? AND relationship_type = ?",
		e1, e2, kind).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, storageErr("lookup relationship", err)
	}
	return id, nil
}

// upsertRelationship is the single place where relationship rows are written.
func upsertRelationship(ctx context.Context, q querier, log *zap.Logger, r apptype.Relationship, policy apptype.ConflictPolicy) (int64, bool, error) {
	if err := validateRelationship(r); err != nil {
		return 0, false, err
	}
	e1, e2 := normalizePair(r.Entity1ID, r.Entity2ID)
	if err := checkEndpoints(ctx, q, e1, e2); err != nil {
		return 0, false, err
	}
	md, err := encodeMetadata(r.Metadata)
	if err != nil {
		return 0, false, &ValidationError{Field: "metadata", Reason: err.Error()}
	}

	if policy == apptype.ConflictReplace {
		id, err := relationshipID(ctx, q, e1, e2, r.RelationshipType)
		switch {
		case err == nil:
			if _, err := q.ExecContext(ctx,
				"UPDATE relationships SET source_tool = ?, confidence = ?, metadata = ? WHERE id = ?",
				r.SourceTool, r.Confidence, md, id); err != nil {
				return 0, false, storageErr("update relationship", err)
			}
			log.Debug("Relationship replaced", zap.Int64("id", id), zap.String("type", r.RelationshipType))
			return id, false, nil
		case !errors.Is(err, ErrNotFound):
			return 0, false, err
		}
		if _, err := q.ExecContext(ctx, `
			INSERT INTO relationships (entity1_id, entity2_id, relationship_type, source_tool, confidence, metadata)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(entity1_id, entity2_id, relationship_type) DO UPDATE SET
				source_tool = excluded.source_tool, confidence = excluded.confidence, metadata = excluded.metadata`,
			e1, e2, r.RelationshipType, r.SourceTool, r.Confidence, md); err != nil {
			return 0, false, storageErr("insert relationship", err)
		}
		id, err = relationshipID(ctx, q, e1, e2, r.RelationshipType)
		return id, err == nil, err
	}

	result, err := q.ExecContext(ctx, `
		INSERT INTO relationships (entity1_id, entity2_id, relationship_type, source_tool, confidence, metadata)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(entity1_id, entity2_id, relationship_type) DO NOTHING`,
		e1, e2, r.RelationshipType, r.SourceTool, r.Confidence, md)
	if err != nil {
		return 0, false, storageErr("insert relationship", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, false, storageErr("get rows affected for relationship insert", err)
	}
	id, err := relationshipID(ctx, q, e1, e2, r.RelationshipType)
	if err != nil {
		return 0, false, err
	}
	if affected == 0 {
		log.Debug("Duplicate relationship ignored",
			zap.Int64("entity1_id", e1), zap.Int64("entity2_id", e2), zap.String("type", r.RelationshipType))
	}
	return id, affected > 0, nil
}

// UpsertRelationship stores an undirected edge between two existing entities. The pair is
// normalized so (a,b) and (b,a) address the same row.
func (dm *DBManager) UpsertRelationship(ctx context.Context, projectName string, r apptype.Relationship, policy apptype.ConflictPolicy) (id int64, created bool, err error) {
	done := metrics.TimeOp("db_upsert_relationship")
	defer func() { done(err == nil) }()
	err = dm.Batch(ctx, projectName, func(b *Batch) error {
		var uErr error
		id, created, uErr = b.UpsertRelationship(r, policy)
		return uErr
	})
	return id, created, err
}

// ListRelationships returns every stored relationship ordered by id. An empty kind
// returns all kinds.
func (dm *DBManager) ListRelationships(ctx context.Context, projectName string, kind string) ([]apptype.Relationship, error) {
	done := metrics.TimeOp("db_list_relationships")
	success := false
	defer func() { done(success) }()
	db, err := dm.getDB(projectName)
	if err != nil {
		return nil, err
	}
	query := selectRelationshipColumns
	args := []any{}
	if kind != "" {
		query += " WHERE relationship_type = ?"
		args = append(args, kind)
	}
	rows, err := db.QueryContext(ctx, query+" ORDER BY id", args...)
	if err != nil {
		return nil, storageErr("query relationships", err)
	}
	defer rows.Close()

	rels := make([]apptype.Relationship, 0)
	for rows.Next() {
		r, err := scanRelationship(rows)
		if err != nil {
			return nil, err
		}
		rels = append(rels, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate relationships", err)
	}
	success = true
	return rels, nil
}

// CountFor returns how many relationships touch the entity on either side.
func (dm *DBManager) CountFor(ctx context.Context, projectName string, entityID int64) (int, error) {
	db, err := dm.getDB(projectName)
	if err != nil {
		return 0, err
	}
	stmt, err := dm.getPreparedStmt(ctx, projectName, db,
		"SELECT COUNT(*) FROM relationships WHERE entity1_id = ? OR entity2_id = ?")
	if err != nil {
		return 0, err
	}
	var n int
	if err := stmt.QueryRowContext(ctx, entityID, entityID).Scan(&n); err != nil {
		return 0, storageErr("count relationships", err)
	}
	return n, nil
}
