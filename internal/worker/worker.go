package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/rs/zerolog"

	"botsmith/internal/metrics"
	"botsmith/internal/queue"
	"botsmith/internal/relay"
	"botsmith/internal/storage"
)

// telegram rejects longer messages
const maxMessageRunes = 4000

type Replier interface {
	HandleUserMessage(ctx context.Context, sessionID string, chatbotID int64, content string) (storage.ChatMessage, error)
}

// Sender is the slice of *gotgbot.Bot the worker uses.
type Sender interface {
	SendMessageWithContext(ctx context.Context, chatID int64, text string, opts *gotgbot.SendMessageOpts) (*gotgbot.Message, error)
}

type Queue interface {
	EnsureGroup(ctx context.Context) error
	Enqueue(ctx context.Context, job queue.RelayJob) (string, error)
	Read(ctx context.Context, count int64) ([]queue.Message, error)
	Ack(ctx context.Context, messageID string) error
}

type Worker struct {
	sender        Sender
	replier       Replier
	queue         Queue
	maxJobRetries int
	logger        zerolog.Logger
	metrics       *metrics.Metrics
}

type Config struct {
	Sender        Sender
	Replier       Replier
	Queue         Queue
	MaxJobRetries int
	Logger        zerolog.Logger
	Metrics       *metrics.Metrics
}

func New(cfg Config) *Worker {
	m := cfg.Metrics
	if m == nil {
		m = metrics.Global()
	}
	if cfg.MaxJobRetries < 0 {
		cfg.MaxJobRetries = 0
	}
	return &Worker{
		sender:        cfg.Sender,
		replier:       cfg.Replier,
		queue:         cfg.Queue,
		maxJobRetries: cfg.MaxJobRetries,
		logger:        cfg.Logger.With().Str("component", "relay-worker").Logger(),
		metrics:       m,
	}
}

// Start runs concurrency consumers until ctx is done.
func (w *Worker) Start(ctx context.Context, concurrency int) error {
	if err := w.queue.EnsureGroup(ctx); err != nil {
		return err
	}
	if concurrency < 1 {
		concurrency = 1
	}

	wg := sync.WaitGroup{}
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			w.consumeLoop(ctx, slot)
		}(i)
	}

	<-ctx.Done()
	wg.Wait()
	return nil
}

func (w *Worker) consumeLoop(ctx context.Context, slot int) {
	log := w.logger.With().Int("slot", slot).Logger()
	for {
		if err := ctx.Err(); err != nil {
			return
		}

		messages, err := w.queue.Read(ctx, 1)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Msg("failed to read queue")
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		for _, msg := range messages {
			w.handle(ctx, log, msg)
		}
	}
}

// handle processes one delivery and always leaves it acked: a failed job is
// either re-enqueued with one more attempt or answered with an error.
func (w *Worker) handle(ctx context.Context, log zerolog.Logger, msg queue.Message) {
	err := w.processJob(ctx, &msg.Job)
	if err == nil {
		w.metrics.ProcessedJobs.Inc()
		if ackErr := w.queue.Ack(ctx, msg.ID); ackErr != nil {
			log.Error().Err(ackErr).Str("msg_id", msg.ID).Msg("failed to ack message")
		}
		return
	}

	w.metrics.FailedJobs.Inc()
	log.Error().Err(err).Str("job_id", msg.Job.JobID).Int("attempt", msg.Job.Attempts).Msg("job failed")

	if msg.Job.Attempts < w.maxJobRetries {
		msg.Job.Attempts++
		if _, enqueueErr := w.queue.Enqueue(ctx, msg.Job); enqueueErr != nil {
			log.Error().Err(enqueueErr).Str("job_id", msg.Job.JobID).Msg("failed to re-enqueue failed job")
			return
		}
		if ackErr := w.queue.Ack(ctx, msg.ID); ackErr != nil {
			log.Error().Err(ackErr).Str("msg_id", msg.ID).Msg("failed to ack after re-enqueue")
		}
		return
	}

	_ = w.send(ctx, msg.Job.ChatID, msg.Job.MessageID, relay.ApologyMessage)
	if ackErr := w.queue.Ack(ctx, msg.ID); ackErr != nil {
		log.Error().Err(ackErr).Str("msg_id", msg.ID).Msg("failed to ack terminal failed message")
	}
}

// processJob relays the text once; the reply is kept on the job so a retry
// only repeats the telegram send.
func (w *Worker) processJob(ctx context.Context, job *queue.RelayJob) error {
	if job.Reply == "" {
		reply, err := w.replier.HandleUserMessage(ctx, job.SessionID, job.ChatbotID, job.Text)
		switch {
		case errors.Is(err, relay.ErrChatbotNotFound):
			_ = w.send(ctx, job.ChatID, job.MessageID, "This chatbot no longer exists. Use /bots to pick another one.")
			return nil
		case errors.Is(err, relay.ErrMalformed):
			w.logger.Warn().Str("job_id", job.JobID).Msg("dropping malformed relay job")
			return nil
		case err != nil:
			return fmt.Errorf("relay message: %w", err)
		}

		text := strings.TrimSpace(reply.Content)
		if text == "" {
			text = relay.ApologyMessage
		}
		if r := []rune(text); len(r) > maxMessageRunes {
			text = string(r[:maxMessageRunes])
		}
		job.Reply = text
	}

	if err := w.send(ctx, job.ChatID, job.MessageID, job.Reply); err != nil {
		return fmt.Errorf("send telegram response: %w", err)
	}
	return nil
}

func (w *Worker) send(ctx context.Context, chatID, replyTo int64, text string) error {
	opts := &gotgbot.SendMessageOpts{}
	if replyTo > 0 {
		opts.ReplyParameters = &gotgbot.ReplyParameters{MessageId: replyTo}
	}
	_, err := w.sender.SendMessageWithContext(ctx, chatID, text, opts)
	return err
}
