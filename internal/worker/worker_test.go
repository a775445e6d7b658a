package worker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"botsmith/internal/queue"
	"botsmith/internal/relay"
	"botsmith/internal/storage"
)

type sent struct {
	chatID  int64
	text    string
	replyTo int64
}

type fakeSender struct {
	mu    sync.Mutex
	fails int
	out   []sent
}

func (f *fakeSender) SendMessageWithContext(_ context.Context, chatID int64, text string, opts *gotgbot.SendMessageOpts) (*gotgbot.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fails > 0 {
		f.fails--
		return nil, errors.New("telegram down")
	}
	var replyTo int64
	if opts != nil && opts.ReplyParameters != nil {
		replyTo = opts.ReplyParameters.MessageId
	}
	f.out = append(f.out, sent{chatID: chatID, text: text, replyTo: replyTo})
	return &gotgbot.Message{}, nil
}

func (f *fakeSender) messages() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sent(nil), f.out...)
}

type fakeReplier struct {
	mu    sync.Mutex
	calls int
	reply string
	err   error
}

func (f *fakeReplier) HandleUserMessage(_ context.Context, sessionID string, chatbotID int64, content string) (storage.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return storage.ChatMessage{}, f.err
	}
	return storage.ChatMessage{Type: storage.MessageTypeBot, Content: f.reply + ":" + content}, nil
}

func newQueue(t *testing.T) (*queue.StreamQueue, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	q := queue.NewStreamQueue(rdb, "botsmith:telegram:relay", "relay", "w1", 10*time.Millisecond)
	if err := q.EnsureGroup(context.Background()); err != nil {
		t.Fatalf("ensure group: %v", err)
	}
	return q, rdb
}

func drain(t *testing.T, w *Worker, q *queue.StreamQueue) int {
	t.Helper()
	ctx := context.Background()
	handled := 0
	for i := 0; i < 10; i++ {
		msgs, err := q.Read(ctx, 1)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if len(msgs) == 0 {
			return handled
		}
		for _, m := range msgs {
			w.handle(ctx, zerolog.Nop(), m)
			handled++
		}
	}
	return handled
}

func TestWorkerRelaysAndReplies(t *testing.T) {
	q, rdb := newQueue(t)
	sender := &fakeSender{}
	replier := &fakeReplier{reply: "bot"}
	w := New(Config{Sender: sender, Replier: replier, Queue: q, MaxJobRetries: 2, Logger: zerolog.Nop()})

	ctx := context.Background()
	if _, err := q.Enqueue(ctx, queue.RelayJob{ChatID: 7, MessageID: 70, ChatbotID: 1, SessionID: "telegram:7:1", Text: "hi"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if n := drain(t, w, q); n != 1 {
		t.Fatalf("expected one delivery, got %d", n)
	}

	out := sender.messages()
	if len(out) != 1 || out[0].text != "bot:hi" || out[0].chatID != 7 || out[0].replyTo != 70 {
		t.Fatalf("unexpected sends %+v", out)
	}
	if l := rdb.XLen(ctx, "botsmith:telegram:relay").Val(); l != 0 {
		t.Fatalf("expected stream to be empty, len %d", l)
	}
}

func TestWorkerRetriesSendWithoutRelayingAgain(t *testing.T) {
	q, _ := newQueue(t)
	sender := &fakeSender{fails: 1}
	replier := &fakeReplier{reply: "bot"}
	w := New(Config{Sender: sender, Replier: replier, Queue: q, MaxJobRetries: 2, Logger: zerolog.Nop()})

	if _, err := q.Enqueue(context.Background(), queue.RelayJob{ChatID: 7, ChatbotID: 1, SessionID: "s", Text: "again"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if n := drain(t, w, q); n != 2 {
		t.Fatalf("expected a retry delivery, got %d deliveries", n)
	}
	if replier.calls != 1 {
		t.Fatalf("expected the relay to run once, ran %d times", replier.calls)
	}
	out := sender.messages()
	if len(out) != 1 || out[0].text != "bot:again" {
		t.Fatalf("unexpected sends %+v", out)
	}
}

func TestWorkerGivesUpAfterRetries(t *testing.T) {
	q, _ := newQueue(t)
	sender := &fakeSender{fails: 2}
	w := New(Config{Sender: sender, Replier: &fakeReplier{reply: "bot"}, Queue: q, MaxJobRetries: 1, Logger: zerolog.Nop()})

	if _, err := q.Enqueue(context.Background(), queue.RelayJob{ChatID: 3, ChatbotID: 1, SessionID: "s", Text: "x"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if n := drain(t, w, q); n != 2 {
		t.Fatalf("expected two deliveries, got %d", n)
	}
	out := sender.messages()
	if len(out) != 1 || out[0].text != relay.ApologyMessage {
		t.Fatalf("expected final apology, got %+v", out)
	}
}

func TestWorkerUnknownChatbot(t *testing.T) {
	q, _ := newQueue(t)
	sender := &fakeSender{}
	w := New(Config{Sender: sender, Replier: &fakeReplier{err: relay.ErrChatbotNotFound}, Queue: q, Logger: zerolog.Nop()})

	if _, err := q.Enqueue(context.Background(), queue.RelayJob{ChatID: 3, ChatbotID: 99, SessionID: "s", Text: "x"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if n := drain(t, w, q); n != 1 {
		t.Fatalf("expected no retry, got %d deliveries", n)
	}
	out := sender.messages()
	if len(out) != 1 || !strings.Contains(out[0].text, "no longer exists") {
		t.Fatalf("unexpected sends %+v", out)
	}
}

func TestWorkerTruncatesLongReplies(t *testing.T) {
	q, _ := newQueue(t)
	sender := &fakeSender{}
	w := New(Config{Sender: sender, Replier: &fakeReplier{reply: strings.Repeat("é", 5000)}, Queue: q, Logger: zerolog.Nop()})

	if _, err := q.Enqueue(context.Background(), queue.RelayJob{ChatID: 1, ChatbotID: 1, SessionID: "s", Text: "x"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	drain(t, w, q)
	out := sender.messages()
	if len(out) != 1 || len([]rune(out[0].text)) != maxMessageRunes {
		t.Fatalf("expected a %d rune message, got %d sends", maxMessageRunes, len(out))
	}
}

func TestStartStopsOnCancel(t *testing.T) {
	q, _ := newQueue(t)
	sender := &fakeSender{}
	w := New(Config{Sender: sender, Replier: &fakeReplier{reply: "bot"}, Queue: q, Logger: zerolog.Nop()})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx, 2) }()

	if _, err := q.Enqueue(context.Background(), queue.RelayJob{ChatID: 1, ChatbotID: 1, SessionID: "s", Text: "ping"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for len(sender.messages()) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("start: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
	if len(sender.messages()) != 1 {
		t.Fatalf("expected the queued job to be handled, got %+v", sender.messages())
	}
}
