package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanosuguru/go-dbcontext/internal/domain/audit"
)

func TestAuditRepository_RecordAndList(t *testing.T) {
	_, tm := setupTestDB(t)
	repo := NewAuditRepository(tm)
	ctx := context.Background()

	first := audit.NewEntry(1, audit.KindCreated, "Taro Yamada")
	require.NoError(t, repo.Record(ctx, nil, first))
	assert.NotZero(t, first.ID)
	require.NoError(t, repo.Record(ctx, nil, audit.NewEntry(1, audit.KindRenamed, "Taro Suzuki")))
	require.NoError(t, repo.Record(ctx, nil, audit.NewEntry(2, audit.KindCreated, "Hanako Sato")))

	entries, err := repo.ListByUserID(ctx, nil, 1)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, audit.KindCreated, entries[0].Kind)
	assert.Equal(t, audit.KindRenamed, entries[1].Kind)
	assert.Equal(t, "Taro Suzuki", entries[1].Detail)

	entries, err = repo.ListByUserID(ctx, nil, 3)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestAuditRepository_DeleteBefore(t *testing.T) {
	_, tm := setupTestDB(t)
	repo := NewAuditRepository(tm)
	ctx := context.Background()

	old := audit.NewEntry(1, audit.KindCreated, "old")
	old.CreatedAt = time.Now().UTC().Add(-48 * time.Hour)
	require.NoError(t, repo.Record(ctx, nil, old))
	require.NoError(t, repo.Record(ctx, nil, audit.NewEntry(1, audit.KindRenamed, "new")))

	n, err := repo.DeleteBefore(ctx, nil, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	entries, err := repo.ListByUserID(ctx, nil, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "new", entries[0].Detail)

	n, err = repo.DeleteBefore(ctx, nil, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
