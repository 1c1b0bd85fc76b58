package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ZanzyTHEbar/recon-linker-go/internal/apptype"
	"github.com/ZanzyTHEbar/recon-linker-go/internal/metrics"
)

const rankedEntitiesQuery = `
	SELECT e.id, e.name, e.type, e.source_tool, e.confidence, e.metadata, e.created_at, COUNT(r.id) AS rel_count
	FROM entities e
	LEFT JOIN relationships r ON r.entity1_id = e.id OR r.entity2_id = e.id
	GROUP BY e.id
	ORDER BY rel_count DESC, e.confidence DESC, e.id ASC`

// RankedEntities lists every entity with the number of relationships touching it, most
// connected first. Ties break on confidence and then on id.
func (dm *DBManager) RankedEntities(ctx context.Context, projectName string) ([]apptype.RankedEntity, error) {
	done := metrics.TimeOp("db_ranked_entities")
	success := false
	defer func() { done(success) }()
	db, err := dm.getDB(projectName)
	if err != nil {
		return nil, err
	}
	stmt, err := dm.getPreparedStmt(ctx, projectName, db, rankedEntitiesQuery)
	if err != nil {
		return nil, err
	}
	rows, err := stmt.QueryContext(ctx)
	if err != nil {
		return nil, storageErr("query ranked entities", err)
	}
	defer rows.Close()

	ranked := make([]apptype.RankedEntity, 0)
	for rows.Next() {
		var e apptype.Entity
		var md, created sql.NullString
		var count int
		if err := rows.Scan(&e.ID, &e.Name, &e.Type, &e.SourceTool, &e.Confidence, &md, &created, &count); err != nil {
			return nil, storageErr("scan ranked entity", err)
		}
		if e.Metadata, err = decodeMetadata(md); err != nil {
			return nil, err
		}
		e.CreatedAt = parseTimestamp(created)
		ranked = append(ranked, apptype.RankedEntity{Entity: e, RelationshipCount: count})
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate ranked entities", err)
	}
	success = true
	return ranked, nil
}

const linkedEntitiesQuery = `
	SELECT o.id, o.name, o.type, o.source_tool, o.confidence, o.metadata, o.created_at,
		r.relationship_type, r.confidence, r.metadata, r.source_tool
	FROM relationships r
	JOIN entities o ON o.id = CASE WHEN r.entity1_id = ? THEN r.entity2_id ELSE r.entity1_id END
	WHERE (r.entity1_id = ? OR r.entity2_id = ?)`

// EntitiesLinkedTo returns the neighbours of the named entity together with the linking edge.
// filterType, when non-empty, keeps only neighbours of that type. Results are ordered by edge
// confidence (highest first) and then by neighbour id.
func (dm *DBManager) EntitiesLinkedTo(ctx context.Context, projectName string, name string, filterType string) ([]apptype.LinkedEntity, error) {
	done := metrics.TimeOp("db_entities_linked_to")
	success := false
	defer func() { done(success) }()

	anchor, err := dm.GetEntityByName(ctx, projectName, name)
	if err != nil {
		return nil, err
	}
	db, err := dm.getDB(projectName)
	if err != nil {
		return nil, err
	}

	query := linkedEntitiesQuery
	args := []any{anchor.ID, anchor.ID, anchor.ID}
	if filterType != "" {
		query += " AND o.type = ?"
		args = append(args, filterType)
	}
	query += " ORDER BY r.confidence DESC, o.id ASC"

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr(fmt.Sprintf("query entities linked to %q", name), err)
	}
	defer rows.Close()

	linked := make([]apptype.LinkedEntity, 0)
	for rows.Next() {
		var le apptype.LinkedEntity
		var md, created, relMD sql.NullString
		e := &le.Entity
		if err := rows.Scan(&e.ID, &e.Name, &e.Type, &e.SourceTool, &e.Confidence, &md, &created,
			&le.RelationshipType, &le.Confidence, &relMD, &le.RelationshipSourceTool); err != nil {
			return nil, storageErr("scan linked entity", err)
		}
		if e.Metadata, err = decodeMetadata(md); err != nil {
			return nil, err
		}
		if le.RelationshipMetadata, err = decodeMetadata(relMD); err != nil {
			return nil, err
		}
		e.CreatedAt = parseTimestamp(created)
		linked = append(linked, le)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate linked entities", err)
	}
	success = true
	return linked, nil
}
