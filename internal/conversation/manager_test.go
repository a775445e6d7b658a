package conversation

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"botsmith/internal/storage"
)

type fakeChatbots struct {
	created []storage.ChatbotInput
	updated map[int64]storage.ChatbotPatch
	fail    error
}

func (f *fakeChatbots) CreateChatbot(_ context.Context, in storage.ChatbotInput) (storage.Chatbot, error) {
	if f.fail != nil {
		return storage.Chatbot{}, f.fail
	}
	f.created = append(f.created, in)
	return storage.Chatbot{ID: int64(len(f.created)), Name: in.Name}, nil
}

func (f *fakeChatbots) UpdateChatbot(_ context.Context, id int64, p storage.ChatbotPatch) (storage.Chatbot, error) {
	if f.fail != nil {
		return storage.Chatbot{}, f.fail
	}
	if f.updated == nil {
		f.updated = map[int64]storage.ChatbotPatch{}
	}
	f.updated[id] = p
	return storage.Chatbot{ID: id}, nil
}

func newTestManager(bots *fakeChatbots) (*Manager, *MemoryStore) {
	store := NewMemoryStore(0)
	m := NewManager(store, bots, ManagerConfig{DefaultModel: "ollama:llama3.2", DefaultOwnerID: 1}, zerolog.Nop())
	return m, store
}

func seedOwnerPhone(t *testing.T, store *MemoryStore, chatbotID int64) {
	t.Helper()
	require.NoError(t, store.Set(context.Background(), &Session{
		ID:        "s1",
		Template:  "Financial Advisor",
		Stage:     StageOwnerPhone,
		ChatbotID: chatbotID,
		Profile: Profile{
			Profession: "Financial Advisor",
			Name:       "Penny",
			JobTitle:   "Budget Whisperer",
			OwnerName:  "Dana",
			OwnerEmail: "dana@example.com",
		},
	}))
}

func TestManagerCreatesChatbotOnPreview(t *testing.T) {
	ctx := context.Background()
	bots := &fakeChatbots{}
	m, store := newTestManager(bots)
	seedOwnerPhone(t, store, 0)

	reply, err := m.HandleMessage(ctx, "s1", "555-0100")
	require.NoError(t, err)
	assert.Equal(t, StagePreview, reply.Stage)
	assert.True(t, reply.ShowPreview)
	assert.Equal(t, int64(1), reply.CreatedChatbotID)

	require.Len(t, bots.created, 1)
	in := bots.created[0]
	assert.Equal(t, "Penny", in.Name)
	assert.Equal(t, "Financial Advisor", in.Industry)
	assert.Equal(t, "ollama:llama3.2", in.AIModel)
	assert.Equal(t, int64(1), in.OwnerID)
	assert.Contains(t, in.Personality, "You are Penny, a Budget Whisperer.")
	require.NotNil(t, in.Owner)
	assert.Equal(t, "555-0100", in.Owner.Phone)

	sess, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), sess.ChatbotID)
}

func TestManagerUpdatesChatbotAfterAdjustments(t *testing.T) {
	ctx := context.Background()
	bots := &fakeChatbots{}
	m, store := newTestManager(bots)
	seedOwnerPhone(t, store, 9)

	reply, err := m.HandleMessage(ctx, "s1", "555-0100")
	require.NoError(t, err)
	assert.Equal(t, int64(9), reply.CreatedChatbotID)
	assert.Empty(t, bots.created)
	require.Contains(t, bots.updated, int64(9))
	assert.Equal(t, "Penny", *bots.updated[9].Name)
}

func TestManagerKeepsSessionWhenPersistenceFails(t *testing.T) {
	ctx := context.Background()
	bots := &fakeChatbots{fail: errors.New("db down")}
	m, store := newTestManager(bots)
	seedOwnerPhone(t, store, 0)

	_, err := m.HandleMessage(ctx, "s1", "555-0100")
	require.Error(t, err)

	sess, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, StageOwnerPhone, sess.Stage)
	assert.Empty(t, sess.Profile.OwnerPhone)
}

func TestManagerSnapshotAndReset(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(&fakeChatbots{})

	snap, err := m.Snapshot(ctx, "fresh")
	require.NoError(t, err)
	assert.False(t, snap.Exists)

	_, err = m.HandleMessage(ctx, "fresh", "Creative Partner")
	require.NoError(t, err)
	_, err = m.HandleMessage(ctx, "fresh", "Muse")
	require.NoError(t, err)

	snap, err = m.Snapshot(ctx, "fresh")
	require.NoError(t, err)
	require.True(t, snap.Exists)
	assert.Equal(t, StagePersonality, *snap.Stage)
	assert.Equal(t, "Muse", snap.Summary.Name)
	assert.Equal(t, "Creative Partner", snap.Profile.Profession)

	require.NoError(t, m.Reset(ctx, "fresh"))
	snap, err = m.Snapshot(ctx, "fresh")
	require.NoError(t, err)
	assert.False(t, snap.Exists)
}

func TestManagerRequiresSessionID(t *testing.T) {
	m, _ := newTestManager(&fakeChatbots{})
	_, err := m.HandleMessage(context.Background(), " ", "hi")
	assert.ErrorIs(t, err, ErrMissingSession)
}

func openSQLiteStore(t *testing.T) *storage.Store {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "wizard.db") + "?_pragma=busy_timeout(5000)"
	store, err := storage.Open(context.Background(), storage.Options{
		Driver:      "sqlite",
		DSN:         dsn,
		AutoMigrate: true,
		PublicURL:   "https://bots.example.com",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestManagerCreatesChatbotWithMultiByteNames(t *testing.T) {
	cases := map[string]string{
		"cjk fits":         strings.Repeat("鈴", 50),
		"emoji fits":       strings.Repeat("🤖", 100),
		"accented clipped": strings.Repeat("é", 150),
	}
	for label, name := range cases {
		t.Run(label, func(t *testing.T) {
			ctx := context.Background()
			db := openSQLiteStore(t)
			sessions := NewMemoryStore(0)
			m := NewManager(sessions, db, ManagerConfig{DefaultModel: "ollama:llama3.2", DefaultOwnerID: 1}, zerolog.Nop())
			require.NoError(t, sessions.Set(ctx, &Session{
				ID:    "s1",
				Stage: StageOwnerPhone,
				Profile: Profile{
					Profession: strings.Repeat("歯", 60),
					Name:       name,
					OwnerName:  "Dana",
				},
			}))

			reply, err := m.HandleMessage(ctx, "s1", "555-0100")
			require.NoError(t, err)
			assert.Equal(t, StagePreview, reply.Stage)
			require.NotZero(t, reply.CreatedChatbotID)

			c, err := db.GetChatbot(ctx, reply.CreatedChatbotID)
			require.NoError(t, err)
			assert.LessOrEqual(t, len([]rune(c.Name)), 100)
			assert.True(t, strings.HasPrefix(name, c.Name))
			assert.Equal(t, strings.Repeat("歯", 60), c.Industry)
		})
	}
}

type blockingChatbots struct {
	fakeChatbots
	mu      sync.Mutex
	entered chan string
	release chan struct{}
}

func (b *blockingChatbots) CreateChatbot(ctx context.Context, in storage.ChatbotInput) (storage.Chatbot, error) {
	b.entered <- in.Name
	<-b.release
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fakeChatbots.CreateChatbot(ctx, in)
}

func TestManagerRunsDifferentSessionsConcurrently(t *testing.T) {
	ctx := context.Background()
	bots := &blockingChatbots{entered: make(chan string, 2), release: make(chan struct{})}
	sessions := NewMemoryStore(0)
	m := NewManager(sessions, bots, ManagerConfig{DefaultModel: "ollama:llama3.2", DefaultOwnerID: 1}, zerolog.Nop())
	for i := 1; i <= 2; i++ {
		require.NoError(t, sessions.Set(ctx, &Session{
			ID:      fmt.Sprintf("s%d", i),
			Stage:   StageOwnerPhone,
			Profile: Profile{Profession: "Dentist", Name: fmt.Sprintf("Bot%d", i)},
		}))
	}

	errs := make(chan error, 2)
	for i := 1; i <= 2; i++ {
		go func(id string) {
			_, err := m.HandleMessage(ctx, id, "555-0100")
			errs <- err
		}(fmt.Sprintf("s%d", i))
	}

	// both sessions reach the chatbot write while neither has finished
	for i := 0; i < 2; i++ {
		select {
		case <-bots.entered:
		case <-time.After(2 * time.Second):
			t.Fatal("second session was blocked by the first")
		}
	}
	close(bots.release)
	for i := 0; i < 2; i++ {
		require.NoError(t, <-errs)
	}
	assert.Len(t, bots.created, 2)
	assert.Empty(t, m.locks.inUse)
}
