package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bimatrack/bimatrack-backend/pkg/errors"
	"github.com/bimatrack/bimatrack-backend/pkg/session"
)

func newTestStore(t *testing.T) (*session.Store, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return session.NewStore(rdb, time.Hour), mr
}

func TestStoreCreateAndGet(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	created, err := store.Create(ctx, session.Session{
		UserID:   "u1",
		Email:    "admin@acme.test",
		Role:     "admin",
		TenantID: "t1",
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	got, err := store.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, "admin@acme.test", got.Email)
	assert.Equal(t, "t1", got.TenantID)
}

func TestStoreRotatesOnLogin(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	first, err := store.Create(ctx, session.Session{UserID: "u1", Email: "a@b.test", Role: "agent"})
	require.NoError(t, err)

	second, err := store.Create(ctx, session.Session{UserID: "u1", Email: "a@b.test", Role: "agent"})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	// The first session is revoked by the second login.
	_, err = store.Get(ctx, first.ID)
	assert.True(t, errors.Is(err, errors.ErrUnauthorized))

	_, err = store.Get(ctx, second.ID)
	assert.NoError(t, err)
}

func TestStoreGetUnknownSession(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.Get(context.Background(), "no-such-session")
	assert.True(t, errors.Is(err, errors.ErrUnauthorized))
}

func TestStoreGetExpiredSession(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	created, err := store.Create(ctx, session.Session{UserID: "u1", Email: "a@b.test", Role: "agent"})
	require.NoError(t, err)

	mr.FastForward(2 * time.Hour)

	_, err = store.Get(ctx, created.ID)
	assert.True(t, errors.Is(err, errors.ErrUnauthorized))
}

func TestStoreRevoke(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	created, err := store.Create(ctx, session.Session{UserID: "u1", Email: "a@b.test", Role: "agent"})
	require.NoError(t, err)

	require.NoError(t, store.Revoke(ctx, created.ID))
	_, err = store.Get(ctx, created.ID)
	assert.True(t, errors.Is(err, errors.ErrUnauthorized))

	// Revoking again is a no-op.
	assert.NoError(t, store.Revoke(ctx, created.ID))
}

func TestStoreRevokeAllForUser(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	sess, err := store.Create(ctx, session.Session{UserID: "u1", Email: "a@b.test", Role: "agent"})
	require.NoError(t, err)
	other, err := store.Create(ctx, session.Session{UserID: "u2", Email: "c@d.test", Role: "agent"})
	require.NoError(t, err)

	require.NoError(t, store.RevokeAllForUser(ctx, "u1"))

	_, err = store.Get(ctx, sess.ID)
	assert.True(t, errors.Is(err, errors.ErrUnauthorized))

	// Other users keep their sessions.
	_, err = store.Get(ctx, other.ID)
	assert.NoError(t, err)

	// No sessions at all is fine.
	assert.NoError(t, store.RevokeAllForUser(ctx, "nobody"))
}
