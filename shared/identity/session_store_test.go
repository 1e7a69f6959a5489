package identity

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSessionStore(t *testing.T) (*SessionStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewSessionStore(client), mr
}

func TestSessionStore_CreateAndGet(t *testing.T) {
	store, mr := newTestSessionStore(t)
	ctx := context.Background()

	created, err := store.Create(ctx, "token-abc", Identity{Subject: "sub-1", Email: "a@acme.edu"}, time.Hour)
	require.NoError(t, err)

	got, err := store.Get(ctx, "token-abc")
	require.NoError(t, err)
	assert.Equal(t, created.SessionID, got.SessionID)
	assert.Equal(t, "a@acme.edu", got.Email)

	// the raw token never appears in a key
	for _, key := range mr.Keys() {
		assert.NotContains(t, key, "token-abc")
		assert.Contains(t, key, sessionKeyPrefix)
	}
	assert.Equal(t, time.Hour, mr.TTL(sessionKey("token-abc")))
}

func TestSessionStore_Missing(t *testing.T) {
	store, _ := newTestSessionStore(t)

	_, err := store.Get(context.Background(), "unknown")

	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionStore_ExpiresWithRedisTTL(t *testing.T) {
	store, mr := newTestSessionStore(t)
	ctx := context.Background()
	_, err := store.Create(ctx, "token", Identity{Subject: "s", Email: "e@x.io"}, time.Minute)
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	_, err = store.Get(ctx, "token")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionStore_ExpiredPayloadIsDeleted(t *testing.T) {
	store, mr := newTestSessionStore(t)
	ctx := context.Background()
	_, err := store.Create(ctx, "token", Identity{Subject: "s", Email: "e@x.io"}, time.Minute)
	require.NoError(t, err)

	store.now = func() time.Time { return time.Now().Add(time.Hour) }

	_, err = store.Get(ctx, "token")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.False(t, mr.Exists(sessionKey("token")))
}

func TestSessionStore_Revoke(t *testing.T) {
	store, _ := newTestSessionStore(t)
	ctx := context.Background()
	_, err := store.Create(ctx, "token", Identity{Subject: "s", Email: "e@x.io"}, time.Minute)
	require.NoError(t, err)

	require.NoError(t, store.Revoke(ctx, "token"))
	require.NoError(t, store.Revoke(ctx, "token"))

	_, err = store.Get(ctx, "token")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	revoked, err := store.IsRevoked(ctx, "token")
	require.NoError(t, err)
	assert.True(t, revoked)
}

func TestSessionStore_RevocationLastsUntilTokenExpiry(t *testing.T) {
	store, mr := newTestSessionStore(t)
	ctx := context.Background()
	now := time.Now()
	store.now = func() time.Time { return now }

	id := Identity{Subject: "s", Email: "e@x.io", ExpiresAt: now.Add(2 * time.Hour)}
	_, err := store.Create(ctx, "token", id, time.Hour)
	require.NoError(t, err)

	require.NoError(t, store.Revoke(ctx, "token"))
	assert.Equal(t, 2*time.Hour, mr.TTL(revokedKey("token")))

	mr.FastForward(2*time.Hour + time.Second)

	revoked, err := store.IsRevoked(ctx, "token")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestSessionStore_RevokeWithoutSession(t *testing.T) {
	store, mr := newTestSessionStore(t)
	ctx := context.Background()

	require.NoError(t, store.Revoke(ctx, "never-exchanged"))

	assert.Equal(t, maxRevocationTTL, mr.TTL(revokedKey("never-exchanged")))
	revoked, err := store.IsRevoked(ctx, "never-exchanged")
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, err = store.IsRevoked(ctx, "other")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestSessionStore_RejectsNonPositiveTTL(t *testing.T) {
	store, _ := newTestSessionStore(t)

	_, err := store.Create(context.Background(), "token", Identity{Subject: "s"}, 0)

	assert.Error(t, err)
}
