package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"

	"botsmith/internal/queue"
	"botsmith/internal/storage"
)

var (
	errNoBinding = errors.New("chat is not bound to a chatbot")
	errInactive  = errors.New("chatbot is inactive")
)

func (s *Service) help(b *gotgbot.Bot, ctx *ext.Context) error {
	return s.replyWithMarkup(ctx, b, s.helpText(), s.backToBotsKeyboard())
}

// start handles both the plain /start and the deep link /start <chatbot id>.
func (s *Service) start(b *gotgbot.Bot, ctx *ext.Context) error {
	if ctx.EffectiveChat == nil {
		return nil
	}
	args := ctx.Args()
	if len(args) > 1 {
		return s.bindAndReply(b, ctx, args[1])
	}
	return s.help(b, ctx)
}

func (s *Service) bot(b *gotgbot.Bot, ctx *ext.Context) error {
	msg := ctx.EffectiveMessage
	if msg == nil || ctx.EffectiveChat == nil {
		return nil
	}
	arg, _ := splitFirstWord(commandRemainder(msg.GetText()))
	if arg == "" {
		return s.reply(ctx, b, "Usage: /bot <chatbot id>")
	}
	return s.bindAndReply(b, ctx, arg)
}

func (s *Service) bots(b *gotgbot.Bot, ctx *ext.Context) error {
	text, markup, err := s.botsList(context.Background())
	if err != nil {
		s.logger.Error().Err(err).Msg("list chatbots failed")
		return s.reply(ctx, b, "Failed to load chatbots.")
	}
	return s.replyWithMarkup(ctx, b, text, markup)
}

func (s *Service) status(b *gotgbot.Bot, ctx *ext.Context) error {
	if ctx.EffectiveChat == nil {
		return nil
	}
	return s.replyWithMarkup(ctx, b, s.statusText(context.Background(), ctx.EffectiveChat.Id), s.boundKeyboard())
}

func (s *Service) reset(b *gotgbot.Bot, ctx *ext.Context) error {
	if ctx.EffectiveChat == nil {
		return nil
	}
	return s.replyWithMarkup(ctx, b, s.unbind(context.Background(), ctx.EffectiveChat.Id), s.backToBotsKeyboard())
}

func (s *Service) privateText(b *gotgbot.Bot, ctx *ext.Context) error {
	msg := ctx.EffectiveMessage
	if msg == nil || ctx.EffectiveChat == nil {
		return nil
	}
	notice, err := s.enqueue(context.Background(), ctx.EffectiveChat.Id, userID(ctx), msg.MessageId, msg.GetText())
	if notice != "" {
		return s.reply(ctx, b, notice)
	}
	if err == nil {
		_, _ = b.SendChatAction(ctx.EffectiveChat.Id, "typing", nil)
	}
	return nil
}

func (s *Service) bindAndReply(b *gotgbot.Bot, ctx *ext.Context, arg string) error {
	text, err := s.bind(context.Background(), ctx.EffectiveChat.Id, arg)
	if err != nil {
		return s.replyWithMarkup(ctx, b, text, s.backToBotsKeyboard())
	}
	return s.replyWithMarkup(ctx, b, text, s.boundKeyboard())
}

// bind points chatID at the chatbot named by arg. The returned text is shown to
// the user whether or not binding succeeded.
func (s *Service) bind(ctx context.Context, chatID int64, arg string) (string, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil || id <= 0 {
		return "That doesn't look like a chatbot id.", fmt.Errorf("parse chatbot id %q: %w", arg, strconv.ErrSyntax)
	}
	bot, err := s.chatbots.GetChatbot(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return "Chatbot not found.", err
	}
	if err != nil {
		s.logger.Error().Err(err).Int64("chatbot_id", id).Msg("load chatbot failed")
		return "Failed to load that chatbot.", err
	}
	if !bot.IsActive {
		return fmt.Sprintf("%s is not active right now.", bot.Name), errInactive
	}
	if err := s.bindings.Set(ctx, chatID, bot.ID); err != nil {
		s.logger.Error().Err(err).Int64("chat_id", chatID).Msg("save binding failed")
		return "Failed to connect you right now.", err
	}
	s.logger.Info().Int64("chat_id", chatID).Int64("chatbot_id", bot.ID).Msg("chat bound")
	return fmt.Sprintf("You're now talking to %s. Say hi!", bot.Name), nil
}

func (s *Service) unbind(ctx context.Context, chatID int64) string {
	if err := s.bindings.Clear(ctx, chatID); err != nil {
		s.logger.Error().Err(err).Int64("chat_id", chatID).Msg("clear binding failed")
		return "Failed to reset right now."
	}
	return "Done. Use /bots to pick another chatbot."
}

// enqueue hands a chat message to the relay workers. A non-empty notice means
// the message was not queued and the user should be told why.
func (s *Service) enqueue(ctx context.Context, chatID, uid, messageID int64, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", nil
	}
	chatbotID, err := s.bindings.Get(ctx, chatID)
	if err != nil {
		s.logger.Error().Err(err).Int64("chat_id", chatID).Msg("read binding failed")
		return "Something went wrong. Please try again.", err
	}
	if chatbotID == 0 {
		return "Pick a chatbot first with /bots or /bot <id>.", errNoBinding
	}

	if notice, ok := s.allowRate(ctx, uid); !ok {
		return notice, nil
	}

	job := queue.RelayJob{
		ChatID:    chatID,
		MessageID: messageID,
		ChatbotID: chatbotID,
		SessionID: SessionID(chatID, chatbotID),
		Text:      text,
	}
	if _, err := s.queue.Enqueue(ctx, job); err != nil {
		s.logger.Error().Err(err).Int64("chat_id", chatID).Msg("failed to enqueue relay job")
		return "Queue is unavailable right now.", err
	}
	s.metrics.EnqueuedJobs.Inc()
	return "", nil
}

func (s *Service) allowRate(ctx context.Context, uid int64) (string, bool) {
	if uid == 0 || s.rateLimiter == nil {
		return "", true
	}
	ok, _, resetAt, err := s.rateLimiter.Allow(ctx, "telegram:"+strconv.FormatInt(uid, 10), s.now())
	if err != nil {
		s.logger.Error().Err(err).Msg("rate limiter failed")
		return "", true
	}
	if ok {
		return "", true
	}
	return "Rate limit exceeded. Try again after " + resetAt.Format("15:04 UTC"), false
}

func (s *Service) reply(ctx *ext.Context, b *gotgbot.Bot, text string) error {
	if ctx.EffectiveChat == nil {
		return nil
	}
	_, err := b.SendMessage(ctx.EffectiveChat.Id, text, nil)
	return err
}

func commandRemainder(text string) string {
	parts := strings.SplitN(strings.TrimSpace(text), " ", 2)
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}

func splitFirstWord(s string) (first string, rest string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ""
	}
	idx := strings.IndexByte(s, ' ')
	if idx < 0 {
		return s, ""
	}
	return s[:idx], strings.TrimSpace(s[idx+1:])
}

func userID(ctx *ext.Context) int64 {
	if ctx.EffectiveUser == nil {
		return 0
	}
	return ctx.EffectiveUser.Id
}
