package credential

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_SaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	store := NewFileStore(path)
	ctx := context.Background()

	rec := &Record{
		AccessToken:  "access-abc",
		RefreshToken: "refresh-xyz",
		TokenType:    "Bearer",
		Expiry:       time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC),
		Scopes:       []string{"calendar.readonly", "calendar.events"},
		ObtainedAt:   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.Save(ctx, rec))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, rec.AccessToken, loaded.AccessToken)
	assert.Equal(t, rec.RefreshToken, loaded.RefreshToken)
	assert.Equal(t, rec.TokenType, loaded.TokenType)
	assert.True(t, rec.Expiry.Equal(loaded.Expiry))
	assert.Equal(t, rec.Scopes, loaded.Scopes)
	assert.True(t, rec.ObtainedAt.Equal(loaded.ObtainedAt))
}

func TestFileStore_LoadMissing(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "credentials.json"))

	_, err := store.Load(context.Background())
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestFileStore_OwnerOnlyPermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	store := NewFileStore(path)
	require.NoError(t, store.Save(context.Background(), &Record{AccessToken: "secret"}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm(),
		"credential file must not be readable by group or others")
}

func TestFileStore_CreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deeper", "credentials.json")
	store := NewFileStore(path)

	require.NoError(t, store.Save(context.Background(), &Record{AccessToken: "x"}))
	_, err := os.Stat(path)
	assert.NoError(t, err)
}

func TestFileStore_ToleratesUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	payload := `{
  "access_token": "from-old-version",
  "refresh_token": "r",
  "expiry": "2025-06-01T13:00:00Z",
  "device_id": "legacy-field",
  "api_version": 3
}`
	require.NoError(t, os.WriteFile(path, []byte(payload), 0o600))

	store := NewFileStore(path)
	rec, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "from-old-version", rec.AccessToken)
	assert.Equal(t, "r", rec.RefreshToken)
	assert.Equal(t, time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC), rec.Expiry.UTC())
}

func TestFileStore_LoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	store := NewFileStore(path)
	_, err := store.Load(context.Background())
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrRecordNotFound)
}

func TestFileStore_SaveReplacesAtomically(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "credentials.json")
	store := NewFileStore(path)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, &Record{AccessToken: "first"}))
	require.NoError(t, store.Save(ctx, &Record{AccessToken: "second"}))

	rec, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "second", rec.AccessToken)

	// No temp files may be left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "credentials.json", entries[0].Name())
}

func TestFileStore_Delete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	store := NewFileStore(path)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, &Record{AccessToken: "x"}))
	require.NoError(t, store.Delete(ctx))
	_, err := store.Load(ctx)
	assert.ErrorIs(t, err, ErrRecordNotFound)

	// Deleting an absent record is not an error.
	assert.NoError(t, store.Delete(ctx))
}

func TestInmemStore_RoundTrip(t *testing.T) {
	store := NewInmemStore()
	ctx := context.Background()

	_, err := store.Load(ctx)
	assert.ErrorIs(t, err, ErrRecordNotFound)

	rec := &Record{AccessToken: "a", Scopes: []string{"s"}}
	require.NoError(t, store.Save(ctx, rec))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", loaded.AccessToken)

	require.NoError(t, store.Delete(ctx))
	_, err = store.Load(ctx)
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestInmemStore_IsolatesCallers(t *testing.T) {
	store := NewInmemStore()
	ctx := context.Background()

	original := &Record{AccessToken: "a", Scopes: []string{"s1"}}
	require.NoError(t, store.Save(ctx, original))

	// Mutating what we saved or loaded must not reach the store.
	original.AccessToken = "mutated"
	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", loaded.AccessToken)

	loaded.Scopes[0] = "mutated-scope"
	again, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "s1", again.Scopes[0])
}
