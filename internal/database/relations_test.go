package database

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/recon-linker-go/internal/apptype"
)

func TestUpsertRelationship_SymmetricDedup(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	a := mustUpsert(t, db, "alice@example.com", "email")
	b := mustUpsert(t, db, "example.com", "domain")

	id1, created, err := db.UpsertRelationship(ctx, testProject, apptype.Relationship{
		Entity1ID: b, Entity2ID: a, RelationshipType: apptype.KindDomainAssociation,
		SourceTool: apptype.SourceCorrelationEngine, Confidence: 0.8,
	}, apptype.ConflictIgnore)
	require.NoError(t, err)
	assert.True(t, created)

	id2, created, err := db.UpsertRelationship(ctx, testProject, apptype.Relationship{
		Entity1ID: a, Entity2ID: b, RelationshipType: apptype.KindDomainAssociation,
		SourceTool: "other", Confidence: 0.1,
	}, apptype.ConflictIgnore)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, id1, id2)

	rels, err := db.ListRelationships(ctx, testProject, "")
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Less(t, rels[0].Entity1ID, rels[0].Entity2ID)
	assert.Equal(t, apptype.SourceCorrelationEngine, rels[0].SourceTool)

	// a different kind on the same pair is a distinct edge
	_, created, err = db.UpsertRelationship(ctx, testProject, apptype.Relationship{
		Entity1ID: a, Entity2ID: b, RelationshipType: apptype.KindSuspectAssociation, Confidence: 0.8,
	}, apptype.ConflictIgnore)
	require.NoError(t, err)
	assert.True(t, created)

	count, err := db.CountFor(ctx, testProject, a)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	onlyDomain, err := db.ListRelationships(ctx, testProject, apptype.KindDomainAssociation)
	require.NoError(t, err)
	assert.Len(t, onlyDomain, 1)
}

func TestUpsertRelationship_ReplaceUpdatesInPlace(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	addr := mustUpsert(t, db, "1 Main St", "address")
	sus := mustUpsert(t, db, "John Doe", "suspect")

	id1, created, err := db.UpsertRelationship(ctx, testProject, apptype.Relationship{
		Entity1ID: sus, Entity2ID: addr, RelationshipType: apptype.KindAddressAssociation,
		SourceTool: apptype.SourceManualCorrelation, Confidence: 0.5,
	}, apptype.ConflictReplace)
	require.NoError(t, err)
	assert.True(t, created)

	id2, created, err := db.UpsertRelationship(ctx, testProject, apptype.Relationship{
		Entity1ID: addr, Entity2ID: sus, RelationshipType: apptype.KindAddressAssociation,
		SourceTool: apptype.SourceManualCorrelation, Confidence: 0.95,
		Metadata: map[string]any{"verified": true},
	}, apptype.ConflictReplace)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, id1, id2)

	rels, err := db.ListRelationships(ctx, testProject, "")
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.InDelta(t, 0.95, rels[0].Confidence, 1e-9)
	assert.Equal(t, true, rels[0].Metadata["verified"])
}

func TestUpsertRelationship_Errors(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	a := mustUpsert(t, db, "a.example.com", "host")

	_, _, err := db.UpsertRelationship(ctx, testProject, apptype.Relationship{
		Entity1ID: a, Entity2ID: a, RelationshipType: "x", Confidence: 0.5,
	}, apptype.ConflictIgnore)
	assert.ErrorIs(t, err, ErrSelfRelationship)

	_, _, err = db.UpsertRelationship(ctx, testProject, apptype.Relationship{
		Entity1ID: a, Entity2ID: a + 100, RelationshipType: "x", Confidence: 0.5,
	}, apptype.ConflictIgnore)
	var re *ReferentialError
	require.True(t, errors.As(err, &re), "expected ReferentialError, got %v", err)
	assert.Equal(t, a+100, re.EntityID)
	assert.True(t, IsRecordError(err))

	b := mustUpsert(t, db, "b.example.com", "host")
	_, _, err = db.UpsertRelationship(ctx, testProject, apptype.Relationship{
		Entity1ID: a, Entity2ID: b, RelationshipType: "", Confidence: 0.5,
	}, apptype.ConflictIgnore)
	var ve *ValidationError
	assert.True(t, errors.As(err, &ve))

	rels, err := db.ListRelationships(ctx, testProject, "")
	require.NoError(t, err)
	assert.Empty(t, rels)
}

func TestBatch_RollsBackOnError(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	boom := errors.New("boom")
	err := db.Batch(ctx, testProject, func(b *Batch) error {
		x, _, err := b.UpsertEntity(apptype.Entity{Name: "x.example.com", Type: "host", Confidence: 0.5}, apptype.ConflictIgnore)
		require.NoError(t, err)
		y, _, err := b.UpsertEntity(apptype.Entity{Name: "example.com", Type: "domain", Confidence: 0.5}, apptype.ConflictIgnore)
		require.NoError(t, err)
		_, _, err = b.UpsertRelationship(apptype.Relationship{Entity1ID: x, Entity2ID: y, RelationshipType: "r", Confidence: 0.8}, apptype.ConflictIgnore)
		require.NoError(t, err)

		got, err := b.EntityByName("example.com")
		require.NoError(t, err)
		assert.Equal(t, y, got.ID)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	n, err := db.CountEntities(ctx, testProject)
	require.NoError(t, err)
	assert.Zero(t, n)
	rels, err := db.ListRelationships(ctx, testProject, "")
	require.NoError(t, err)
	assert.Empty(t, rels)
}
