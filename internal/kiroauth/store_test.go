package kiroauth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenBlob_Expired_EmptyExpiresAt(t *testing.T) {
	blob := TokenBlob{}
	assert.True(t, blob.Expired(time.Now()))
}

func TestTokenBlob_Expired_UnparsableExpiresAt(t *testing.T) {
	blob := TokenBlob{ExpiresAt: "not-a-time"}
	assert.True(t, blob.Expired(time.Now()))
}

func TestTokenBlob_Expired_WithinMargin(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	blob := TokenBlob{ExpiresAt: now.Add(2 * time.Minute).Format(time.RFC3339)}
	assert.True(t, blob.Expired(now), "expiry inside the 5-minute margin counts as expired")
}

func TestTokenBlob_Expired_WellInFuture(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	blob := TokenBlob{ExpiresAt: now.Add(time.Hour).Format(time.RFC3339)}
	assert.False(t, blob.Expired(now))
}

func TestStore_SaveReadRoundTrip(t *testing.T) {
	store := NewStore(t.TempDir())

	blob := TokenBlob{AccessToken: "at", RefreshToken: "rt", ExpiresAt: "2026-01-01T00:00:00Z"}
	require.NoError(t, store.Save("acct", blob))

	got, err := store.Read("acct")
	require.NoError(t, err)
	assert.Equal(t, blob, got)
}

func TestStore_ReadMissingIsError(t *testing.T) {
	store := NewStore(t.TempDir())
	_, err := store.Read("nope")
	assert.Error(t, err)
}

func TestStore_DeleteThenReadFails(t *testing.T) {
	store := NewStore(t.TempDir())
	require.NoError(t, store.Save("acct", TokenBlob{AccessToken: "at"}))

	require.NoError(t, store.Delete("acct"))

	_, err := store.Read("acct")
	assert.Error(t, err, "deleted account must leave no readable token blob behind")
}

func TestStore_DeleteMissingIsNotAnError(t *testing.T) {
	store := NewStore(t.TempDir())
	assert.NoError(t, store.Delete("never-existed"))
}

func TestStore_SaveOverwritesExistingAtomically(t *testing.T) {
	store := NewStore(t.TempDir())
	require.NoError(t, store.Save("acct", TokenBlob{AccessToken: "first"}))
	require.NoError(t, store.Save("acct", TokenBlob{AccessToken: "second"}))

	got, err := store.Read("acct")
	require.NoError(t, err)
	assert.Equal(t, "second", got.AccessToken)
}
