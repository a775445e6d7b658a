package conversation

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreExpiresIdleSessions(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	m := NewMemoryStore(time.Minute)
	m.now = func() time.Time { return now }

	require.NoError(t, m.Set(ctx, &Session{ID: "a", Stage: StageName}))
	require.NoError(t, m.Set(ctx, &Session{ID: "b", Stage: StagePreview}))

	now = now.Add(30 * time.Second)
	got, err := m.Get(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, StageName, got.Stage)
	require.NoError(t, m.Set(ctx, got))

	now = now.Add(45 * time.Second)
	assert.Equal(t, 1, m.Sweep())
	assert.Equal(t, 1, m.Len())

	got, err = m.Get(ctx, "b")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore(0)
	s := &Session{ID: "a", Profile: Profile{LifeAreas: []string{"x"}}}
	require.NoError(t, m.Set(ctx, s))
	s.Profile.LifeAreas[0] = "mutated"

	got, err := m.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, got.Profile.LifeAreas)

	require.NoError(t, m.Delete(ctx, "a"))
	got, err = m.Get(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisStoreRoundTripAndTTL(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store := NewRedisStore(rdb, 10*time.Minute)
	in := &Session{
		ID:        "sess-1",
		Template:  "Home Manager",
		Stage:     StageLifeAreas,
		Profile:   Profile{Name: "Ava", LifeAreas: []string{"Chess"}},
		ChatbotID: 7,
	}
	require.NoError(t, store.Set(ctx, in))
	assert.Equal(t, 10*time.Minute, mr.TTL("botsmith:wizard:sess-1"))

	got, err := store.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, in, got)

	missing, err := store.Get(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	mr.FastForward(11 * time.Minute)
	expired, err := store.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Nil(t, expired)
}
