package inventory

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "inventory.db"), true, 5*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStore_UpsertAndGet(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	host := &Host{
		Name:      "db-prod-01",
		IPAddress: "10.0.0.5",
		SSHPort:   2222,
		SSHUser:   "ops",
		KeyPath:   "/keys/db-prod-01",
		Tags:      map[string]string{"env": "prod"},
	}
	require.NoError(t, store.Upsert(ctx, host))

	got, err := store.GetByName(ctx, "db-prod-01")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "10.0.0.5", got.IPAddress)
	assert.Equal(t, 2222, got.SSHPort)
	assert.Equal(t, "ops", got.SSHUser)
	assert.Equal(t, map[string]string{"env": "prod"}, got.Tags)
}

func TestSQLiteStore_GetByName_Missing(t *testing.T) {
	store := openTestStore(t)

	got, err := store.GetByName(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLiteStore_GetByIP(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, &Host{Name: "db-prod-01", IPAddress: "10.0.0.5"}))

	got, err := store.GetByIP(ctx, "10.0.0.5")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "db-prod-01", got.Name)

	missing, err := store.GetByIP(ctx, "10.9.9.9")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSQLiteStore_UpsertReplaces(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, &Host{Name: "web-01", IPAddress: "10.0.0.1"}))
	require.NoError(t, store.Upsert(ctx, &Host{Name: "web-01", IPAddress: "10.0.0.2", SSHUser: "deploy"}))

	got, err := store.GetByName(ctx, "web-01")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "10.0.0.2", got.IPAddress)
	assert.Equal(t, "deploy", got.SSHUser)

	hosts, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, hosts, 1)
}

func TestSQLiteStore_List_Ordered(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"charlie", "alpha", "bravo"} {
		require.NoError(t, store.Upsert(ctx, &Host{Name: name}))
	}

	hosts, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, hosts, 3)
	assert.Equal(t, "alpha", hosts[0].Name)
	assert.Equal(t, "bravo", hosts[1].Name)
	assert.Equal(t, "charlie", hosts[2].Name)
}

func TestSQLiteStore_Delete(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, &Host{Name: "web-01"}))
	require.NoError(t, store.Delete(ctx, "web-01"))
	require.NoError(t, store.Delete(ctx, "web-01")) // missing is a no-op

	got, err := store.GetByName(ctx, "web-01")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLiteStore_Upsert_Invalid(t *testing.T) {
	store := openTestStore(t)

	err := store.Upsert(context.Background(), &Host{Name: "   "})
	require.Error(t, err)
}

func TestHost_Port(t *testing.T) {
	assert.Equal(t, 22, (&Host{}).Port())
	assert.Equal(t, 2200, (&Host{SSHPort: 2200}).Port())
}
