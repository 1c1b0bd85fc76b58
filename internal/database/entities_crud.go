package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ZanzyTHEbar/recon-linker-go/internal/apptype"
	"github.com/ZanzyTHEbar/recon-linker-go/internal/metrics"
)

const selectEntityColumns = "SELECT id, name, type, source_tool, confidence, metadata, created_at FROM entities"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntity(row rowScanner) (*apptype.Entity, error) {
	var e apptype.Entity
	var md, created sql.NullString
	if err := row.Scan(&e.ID, &e.Name, &e.Type, &e.SourceTool, &e.Confidence, &md, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, storageErr("scan entity", err)
	}
	meta, err := decodeMetadata(md)
	if err != nil {
		return nil, err
	}
	e.Metadata = meta
	e.CreatedAt = parseTimestamp(created)
	return &e, nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z",
}

func parseTimestamp(raw sql.NullString) time.Time {
	if !raw.Valid {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw.String); err == nil {
			return t
		}
	}
	return time.Time{}
}

// upsertEntity is the single place where entity rows are written.
func upsertEntity(ctx context.Context, q querier, log *zap.Logger, e apptype.Entity, policy apptype.ConflictPolicy) (int64, bool, error) {
	if err := ValidateEntity(e); err != nil {
		return 0, false, err
	}
	md, err := encodeMetadata(e.Metadata)
	if err != nil {
		return 0, false, &ValidationError{Field: "metadata", Reason: err.Error()}
	}

	if policy == apptype.ConflictReplace {
		var id int64
		err := q.QueryRowContext(ctx, "SELECT id FROM entities WHERE name = ?", e.Name).Scan(&id)
		switch {
		case err == nil:
			if _, err := q.ExecContext(ctx,
				"UPDATE entities SET type = ?, source_tool = ?, confidence = ?, metadata = ? WHERE id = ?",
				e.Type, e.SourceTool, e.Confidence, md, id); err != nil {
				return 0, false, storageErr(fmt.Sprintf("update entity %q", e.Name), err)
			}
			log.Debug("Entity replaced", zap.String("name", e.Name), zap.Int64("id", id))
			return id, false, nil
		case !errors.Is(err, sql.ErrNoRows):
			return 0, false, storageErr(fmt.Sprintf("lookup entity %q", e.Name), err)
		}
		if _, err := q.ExecContext(ctx, `
			INSERT INTO entities (name, type, source_tool, confidence, metadata) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(name) DO UPDATE SET type = excluded.type, source_tool = excluded.source_tool,
				confidence = excluded.confidence, metadata = excluded.metadata`,
			e.Name, e.Type, e.SourceTool, e.Confidence, md); err != nil {
			return 0, false, storageErr(fmt.Sprintf("insert entity %q", e.Name), err)
		}
		id, err = entityIDByName(ctx, q, e.Name)
		return id, err == nil, err
	}

	result, err := q.ExecContext(ctx,
		"INSERT INTO entities (name, type, source_tool, confidence, metadata) VALUES (?, ?, ?, ?, ?) ON CONFLICT(name) DO NOTHING",
		e.Name, e.Type, e.SourceTool, e.Confidence, md)
	if err != nil {
		return 0, false, storageErr(fmt.Sprintf("insert entity %q", e.Name), err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, false, storageErr("get rows affected for entity insert", err)
	}
	id, err := entityIDByName(ctx, q, e.Name)
	if err != nil {
		return 0, false, err
	}
	if affected == 0 {
		log.Debug("Duplicate entity ignored", zap.String("name", e.Name), zap.String("source_tool", e.SourceTool))
	}
	return id, affected > 0, nil
}

func entityIDByName(ctx context.Context, q querier, name string) (int64, error) {
	var id int64
	if err := q.QueryRowContext(ctx, "SELECT id FROM entities WHERE name = ?", name).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, storageErr(fmt.Sprintf("lookup entity %q", name), err)
	}
	return id, nil
}

// UpsertEntity inserts a new entity or resolves to the existing one keyed by name.
// created is false when the name was already present.
func (dm *DBManager) UpsertEntity(ctx context.Context, projectName string, e apptype.Entity, policy apptype.ConflictPolicy) (id int64, created bool, err error) {
	done := metrics.TimeOp("db_upsert_entity")
	defer func() { done(err == nil) }()
	err = dm.Batch(ctx, projectName, func(b *Batch) error {
		var uErr error
		id, created, uErr = b.UpsertEntity(e, policy)
		return uErr
	})
	return id, created, err
}

// UpsertEntities stores a batch of identifier records with first-write-wins semantics.
// Invalid records are skipped and reported; a storage failure rolls back the whole batch.
func (dm *DBManager) UpsertEntities(ctx context.Context, projectName string, records []apptype.IdentifierRecord) (apptype.IngestSummary, error) {
	done := metrics.TimeOp("db_upsert_entities")
	success := false
	defer func() { done(success) }()

	summary := apptype.IngestSummary{Received: len(records)}
	if len(records) == 0 {
		success = true
		return summary, nil
	}

	err := dm.Batch(ctx, projectName, func(b *Batch) error {
		for i, rec := range records {
			if err := ctx.Err(); err != nil {
				return err
			}
			_, created, err := b.UpsertEntity(rec.Entity(), apptype.ConflictIgnore)
			if err != nil {
				if IsRecordError(err) {
					summary.Skipped = append(summary.Skipped, apptype.RecordFailure{Index: i, Name: rec.Name, Reason: err.Error()})
					continue
				}
				return err
			}
			if created {
				summary.Inserted++
			} else {
				summary.Duplicates++
			}
		}
		return nil
	})
	if err != nil {
		return apptype.IngestSummary{Received: len(records)}, err
	}
	if len(summary.Skipped) > 0 {
		dm.log.Warn("Skipped invalid identifier records", zap.Int("skipped", len(summary.Skipped)), zap.Int("received", summary.Received))
	}
	success = true
	return summary, nil
}

// ListEntities returns every entity of the project ordered by id.
func (dm *DBManager) ListEntities(ctx context.Context, projectName string) ([]apptype.Entity, error) {
	done := metrics.TimeOp("db_list_entities")
	success := false
	defer func() { done(success) }()
	db, err := dm.getDB(projectName)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, selectEntityColumns+" ORDER BY id")
	if err != nil {
		return nil, storageErr("query entities", err)
	}
	defer rows.Close()

	entities := make([]apptype.Entity, 0)
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		entities = append(entities, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate entities", err)
	}
	success = true
	return entities, nil
}

// GetEntityByName retrieves a single entity by name, or ErrNotFound.
func (dm *DBManager) GetEntityByName(ctx context.Context, projectName string, name string) (*apptype.Entity, error) {
	db, err := dm.getDB(projectName)
	if err != nil {
		return nil, err
	}
	stmt, err := dm.getPreparedStmt(ctx, projectName, db, selectEntityColumns+" WHERE name = ?")
	if err != nil {
		return nil, err
	}
	e, err := scanEntity(stmt.QueryRowContext(ctx, name))
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return e, err
}

// CountEntities returns the number of stored entities.
func (dm *DBManager) CountEntities(ctx context.Context, projectName string) (int, error) {
	db, err := dm.getDB(projectName)
	if err != nil {
		return 0, err
	}
	var n int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM entities").Scan(&n); err != nil {
		return 0, storageErr("count entities", err)
	}
	return n, nil
}
