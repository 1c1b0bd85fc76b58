package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/recon-linker-go/internal/apptype"
)

func link(t *testing.T, db *DBManager, a, b int64, kind string, conf float64) {
	t.Helper()
	_, _, err := db.UpsertRelationship(context.Background(), testProject, apptype.Relationship{
		Entity1ID: a, Entity2ID: b, RelationshipType: kind, SourceTool: "test", Confidence: conf,
	}, apptype.ConflictIgnore)
	require.NoError(t, err)
}

func TestRankedEntities_Order(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	ctxEntity := func(name, typ string, conf float64) int64 {
		id, _, err := db.UpsertEntity(ctx, testProject, apptype.Entity{Name: name, Type: typ, Confidence: conf}, apptype.ConflictIgnore)
		require.NoError(t, err)
		return id
	}
	hub := ctxEntity("example.com", "domain", 0.8)
	low := ctxEntity("a.example.com", "host", 0.5)
	high := ctxEntity("b.example.com", "host", 0.9)
	lonely := ctxEntity("unrelated.org", "domain", 1.0)

	link(t, db, hub, low, apptype.KindDomainAssociation, 0.8)
	link(t, db, hub, high, apptype.KindDomainAssociation, 0.8)

	ranked, err := db.RankedEntities(ctx, testProject)
	require.NoError(t, err)
	require.Len(t, ranked, 4)

	assert.Equal(t, hub, ranked[0].Entity.ID)
	assert.Equal(t, 2, ranked[0].RelationshipCount)
	// equal counts break on confidence
	assert.Equal(t, high, ranked[1].Entity.ID)
	assert.Equal(t, low, ranked[2].Entity.ID)
	assert.Equal(t, lonely, ranked[3].Entity.ID)
	assert.Equal(t, 0, ranked[3].RelationshipCount)
}

func TestEntitiesLinkedTo(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	addr := mustUpsert(t, db, "1 Main St", "address")
	john := mustUpsert(t, db, "John Doe", "suspect")
	jane := mustUpsert(t, db, "Jane Roe", "suspect")
	host := mustUpsert(t, db, "mail.example.com", "host")

	link(t, db, john, addr, apptype.KindAddressAssociation, 0.6)
	link(t, db, addr, jane, apptype.KindAddressAssociation, 0.95)
	link(t, db, host, addr, apptype.KindLocationAssociation, 0.8)

	all, err := db.EntitiesLinkedTo(ctx, testProject, "1 Main St", "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "Jane Roe", all[0].Entity.Name)

	suspects, err := db.EntitiesLinkedTo(ctx, testProject, "1 Main St", "suspect")
	require.NoError(t, err)
	require.Len(t, suspects, 2)
	assert.Equal(t, "Jane Roe", suspects[0].Entity.Name)
	assert.InDelta(t, 0.95, suspects[0].Confidence, 1e-9)
	assert.Equal(t, apptype.KindAddressAssociation, suspects[0].RelationshipType)
	assert.Equal(t, "John Doe", suspects[1].Entity.Name)

	// the neighbour is the other side regardless of stored order
	fromJohn, err := db.EntitiesLinkedTo(ctx, testProject, "John Doe", "")
	require.NoError(t, err)
	require.Len(t, fromJohn, 1)
	assert.Equal(t, "1 Main St", fromJohn[0].Entity.Name)

	_, err = db.EntitiesLinkedTo(ctx, testProject, "nobody", "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSearchEntities(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	mustUpsert(t, db, "alice@example.com", "email")
	mustUpsert(t, db, "example.com", "domain")
	mustUpsert(t, db, "mail.example.com", "host")
	mustUpsert(t, db, "100%_real.org", "domain")

	got, err := db.SearchEntities(ctx, testProject, "example", "", 0)
	require.NoError(t, err)
	assert.Len(t, got, 3)

	hosts, err := db.SearchEntities(ctx, testProject, "example", "host", 10)
	require.NoError(t, err)
	require.Len(t, hosts, 1)
	assert.Equal(t, "mail.example.com", hosts[0].Name)

	limited, err := db.SearchEntities(ctx, testProject, "example", "", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	literal, err := db.SearchEntities(ctx, testProject, "%_", "", 0)
	require.NoError(t, err)
	require.Len(t, literal, 1)
	assert.Equal(t, "100%_real.org", literal[0].Name)

	_, err = db.SearchEntities(ctx, testProject, "  ", "", 0)
	var ve *ValidationError
	assert.ErrorAs(t, err, &ve)
}
