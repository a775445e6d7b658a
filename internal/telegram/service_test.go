package telegram

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"botsmith/internal/queue"
	"botsmith/internal/ratelimit"
	"botsmith/internal/storage"
)

type fakeChatbots map[int64]storage.Chatbot

func (f fakeChatbots) GetChatbot(_ context.Context, id int64) (storage.Chatbot, error) {
	c, ok := f[id]
	if !ok {
		return storage.Chatbot{}, storage.ErrNotFound
	}
	return c, nil
}

func (f fakeChatbots) ListChatbots(_ context.Context, ownerID int64) ([]storage.Chatbot, error) {
	var out []storage.Chatbot
	for _, c := range f {
		if c.OwnerID == ownerID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

type fixture struct {
	svc   *Service
	queue *queue.StreamQueue
	mr    *miniredis.Miniredis
}

func newFixture(t *testing.T, limit int64) fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	q := queue.NewStreamQueue(rdb, "botsmith:telegram:relay", "relay", "test", 10*time.Millisecond)
	require.NoError(t, q.EnsureGroup(context.Background()))

	var limiter *ratelimit.Limiter
	if limit > 0 {
		limiter = ratelimit.New(rdb, limit)
	}
	svc := NewService(Config{
		Chatbots: fakeChatbots{
			1: {ID: 1, OwnerID: 1, Name: "Ava", Industry: "Dentist", AIModel: "ollama:llama3.2", IsActive: true},
			2: {ID: 2, OwnerID: 1, Name: "Sleepy", Industry: "Retail", IsActive: false},
			3: {ID: 3, OwnerID: 7, Name: "Other", IsActive: true},
		},
		Queue:          q,
		RateLimiter:    limiter,
		Redis:          rdb,
		Logger:         zerolog.Nop(),
		BotUsername:    "botsmith_bot",
		DefaultOwnerID: 1,
	})
	return fixture{svc: svc, queue: q, mr: mr}
}

func TestBindAndEnqueue(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	notice, err := f.svc.enqueue(ctx, 42, 7, 100, "hello")
	assert.ErrorIs(t, err, errNoBinding)
	assert.Contains(t, notice, "/bots")

	text, err := f.svc.bind(ctx, 42, " 1 ")
	require.NoError(t, err)
	assert.Equal(t, "You're now talking to Ava. Say hi!", text)
	assert.True(t, f.mr.Exists("botsmith:telegram:bind:42"))

	notice, err = f.svc.enqueue(ctx, 42, 7, 100, "  hello there ")
	require.NoError(t, err)
	assert.Empty(t, notice)

	msgs, err := f.queue.Read(ctx, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	job := msgs[0].Job
	assert.Equal(t, int64(42), job.ChatID)
	assert.Equal(t, int64(100), job.MessageID)
	assert.Equal(t, int64(1), job.ChatbotID)
	assert.Equal(t, "telegram:42:1", job.SessionID)
	assert.Equal(t, "hello there", job.Text)
}

func TestBindRejectsBadTargets(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	_, err := f.svc.bind(ctx, 1, "abc")
	assert.Error(t, err)

	text, err := f.svc.bind(ctx, 1, "99")
	assert.True(t, errors.Is(err, storage.ErrNotFound))
	assert.Equal(t, "Chatbot not found.", text)

	text, err = f.svc.bind(ctx, 1, "2")
	assert.ErrorIs(t, err, errInactive)
	assert.Contains(t, text, "Sleepy")
	assert.False(t, f.mr.Exists("botsmith:telegram:bind:1"))
}

func TestEnqueueRateLimited(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	_, err := f.svc.bind(ctx, 5, "1")
	require.NoError(t, err)

	notice, err := f.svc.enqueue(ctx, 5, 9, 1, "one")
	require.NoError(t, err)
	assert.Empty(t, notice)

	notice, err = f.svc.enqueue(ctx, 5, 9, 2, "two")
	require.NoError(t, err)
	assert.Contains(t, notice, "Rate limit exceeded")

	msgs, err := f.queue.Read(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestStatusAndUnbind(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	assert.Contains(t, f.svc.statusText(ctx, 3), "not talking to any chatbot")

	_, err := f.svc.bind(ctx, 3, "1")
	require.NoError(t, err)
	status := f.svc.statusText(ctx, 3)
	assert.Contains(t, status, "Talking to: Ava (#1)")
	assert.Contains(t, status, "Session: telegram:3:1")

	assert.Contains(t, f.svc.unbind(ctx, 3), "/bots")
	assert.False(t, f.mr.Exists("botsmith:telegram:bind:3"))
}

func TestBotsListSkipsInactiveAndOtherOwners(t *testing.T) {
	f := newFixture(t, 0)
	text, markup, err := f.svc.botsList(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Pick a chatbot to talk to:", text)
	require.NotNil(t, markup)
	require.Len(t, markup.InlineKeyboard, 1)
	btn := markup.InlineKeyboard[0][0]
	assert.Equal(t, "Ava · Dentist", btn.Text)
	assert.Equal(t, "bs:bind:1", btn.CallbackData)
}

func TestDeepLinkAndSessionID(t *testing.T) {
	f := newFixture(t, 0)
	assert.Equal(t, "https://t.me/botsmith_bot?start=12", f.svc.DeepLink(nil, 12))
	assert.Equal(t, "telegram:-100:5", SessionID(-100, 5))
}

func TestCommandParsing(t *testing.T) {
	assert.Equal(t, "12 extra", commandRemainder("/bot 12 extra"))
	assert.Equal(t, "", commandRemainder("/bot"))
	first, rest := splitFirstWord(" 12  extra words ")
	assert.Equal(t, "12", first)
	assert.Equal(t, "extra words", rest)
}
