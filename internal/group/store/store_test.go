package store_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/splitledger/internal/database"
	"github.com/MrJamesThe3rd/splitledger/internal/group"
	"github.com/MrJamesThe3rd/splitledger/internal/group/store"
)

func newTestService(t *testing.T) *group.Service {
	t.Helper()

	db, err := database.New(database.DriverSQLite, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, database.Migrate(context.Background(), db))

	return group.NewService(store.New(db))
}

func TestGroups_EnsureMembersAndLookup(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	_, err := svc.Get(ctx, "trip")
	require.ErrorIs(t, err, group.ErrNotFound)

	g, err := svc.EnsureMembers(ctx, "trip", "Goa trip", []string{"A", "B"})
	require.NoError(t, err)
	assert.Len(t, g.Members, 2)

	_, err = svc.EnsureMembers(ctx, "trip", "Goa trip", []string{"B", "C"})
	require.NoError(t, err)

	got, err := svc.Get(ctx, "trip")
	require.NoError(t, err)
	assert.Equal(t, "Goa trip", got.Name)
	assert.Equal(t, []group.Member{
		{UserID: "A", DisplayName: "A"},
		{UserID: "B", DisplayName: "B"},
		{UserID: "C", DisplayName: "C"},
	}, got.Members)

	ok, err := svc.IsMember(ctx, "trip", "A", "C")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.IsMember(ctx, "trip", "A", "Z")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGroups_ListForUser(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	_, err := svc.EnsureMembers(ctx, "flat", "Flat", []string{"A", "B"})
	require.NoError(t, err)
	_, err = svc.EnsureMembers(ctx, "trip", "Trip", []string{"B", "C"})
	require.NoError(t, err)

	groups, err := svc.ListForUser(ctx, "A")
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "flat", groups[0].ID)

	all, err := svc.ListForUser(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
