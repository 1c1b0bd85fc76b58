package database

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"github.com/ZanzyTHEbar/recon-linker-go/internal/apptype"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Batch groups entity and relationship upserts into one transaction. It is only valid
// inside the callback passed to DBManager.Batch.
type Batch struct {
	ctx context.Context
	tx  *sql.Tx
	log *zap.Logger
}

// Batch runs fn inside a single transaction. The transaction commits only if fn returns nil
// and ctx is still live; otherwise every write made through b is rolled back.
func (dm *DBManager) Batch(ctx context.Context, projectName string, fn func(b *Batch) error) error {
	db, err := dm.getDB(projectName)
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin transaction", err)
	}
	defer tx.Rollback()

	if err := fn(&Batch{ctx: ctx, tx: tx, log: dm.log}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return storageErr("commit transaction", err)
	}
	return nil
}

// UpsertEntity inserts the entity or resolves it to the existing row with the same name.
func (b *Batch) UpsertEntity(e apptype.Entity, policy apptype.ConflictPolicy) (int64, bool, error) {
	return upsertEntity(b.ctx, b.tx, b.log, e, policy)
}

// UpsertRelationship inserts the edge or resolves it to the existing (pair, type) row.
func (b *Batch) UpsertRelationship(r apptype.Relationship, policy apptype.ConflictPolicy) (int64, bool, error) {
	return upsertRelationship(b.ctx, b.tx, b.log, r, policy)
}

// EntityByName looks an entity up inside the batch transaction.
func (b *Batch) EntityByName(name string) (*apptype.Entity, error) {
	row := b.tx.QueryRowContext(b.ctx, selectEntityColumns+" WHERE name = ?", name)
	return scanEntity(row)
}
