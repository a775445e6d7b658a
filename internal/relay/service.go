package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"botsmith/internal/metrics"
	"botsmith/internal/providers"
	"botsmith/internal/storage"
)

// ContextWindow is how many trailing transcript messages are sent upstream,
// the new user message included.
const ContextWindow = 10

const ApologyMessage = "I apologize, but I'm experiencing technical difficulties. Please try again."

var (
	ErrChatbotNotFound = errors.New("chatbot not found")
	ErrMalformed       = errors.New("malformed message")
)

// Store is the transcript and chatbot storage the relay needs.
type Store interface {
	GetChatbot(ctx context.Context, id int64) (storage.Chatbot, error)
	EnsureConversation(ctx context.Context, chatbotID int64, sessionID string) (storage.Conversation, error)
	AppendMessages(ctx context.Context, conversationID int64, msgs ...storage.ChatMessage) error
	RecentMessages(ctx context.Context, conversationID int64, limit int) ([]storage.ChatMessage, error)
}

type Generator interface {
	GenerateResponse(ctx context.Context, messages []providers.Message, providerName, model, systemPrompt string) (string, error)
}

type ServiceConfig struct {
	// Base is the server lifetime context; upstream calls derive from it
	// rather than from the caller's context.
	Base         context.Context
	LLMTimeout   time.Duration
	DefaultModel string
}

type ChatService struct {
	store Store
	gen   Generator
	cfg   ServiceConfig
	log   zerolog.Logger
	now   func() time.Time
	newID func() string
}

func NewChatService(store Store, gen Generator, cfg ServiceConfig, log zerolog.Logger) *ChatService {
	if cfg.Base == nil {
		cfg.Base = context.Background()
	}
	if cfg.LLMTimeout <= 0 {
		cfg.LLMTimeout = 60 * time.Second
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "ollama:llama3.2"
	}
	return &ChatService{
		store: store,
		gen:   gen,
		cfg:   cfg,
		log:   log.With().Str("component", "relay").Logger(),
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// HandleUserMessage records content in the session transcript, asks the
// chatbot's model for a reply and records that too. Upstream and storage
// failures are answered with ApologyMessage instead of an error.
func (s *ChatService) HandleUserMessage(ctx context.Context, sessionID string, chatbotID int64, content string) (storage.ChatMessage, error) {
	content = strings.TrimSpace(content)
	if strings.TrimSpace(sessionID) == "" || chatbotID <= 0 || content == "" {
		return storage.ChatMessage{}, ErrMalformed
	}
	log := s.log.With().Str("session_id", sessionID).Int64("chatbot_id", chatbotID).Logger()
	metrics.Global().RelayMessages.Inc()

	bot, err := s.store.GetChatbot(ctx, chatbotID)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.ChatMessage{}, ErrChatbotNotFound
	}
	if err != nil {
		log.Error().Err(err).Msg("load chatbot")
		return s.apology(ctx, log, 0), nil
	}

	conv, err := s.store.EnsureConversation(ctx, bot.ID, sessionID)
	if err != nil {
		log.Error().Err(err).Msg("ensure conversation")
		return s.apology(ctx, log, 0), nil
	}

	userMsg := storage.ChatMessage{
		ID:        s.newID(),
		Type:      storage.MessageTypeUser,
		Content:   content,
		Timestamp: s.now().UTC(),
	}
	if err := s.store.AppendMessages(ctx, conv.ID, userMsg); err != nil {
		log.Error().Err(err).Msg("append user message")
		return s.apology(ctx, log, 0), nil
	}

	history, err := s.store.RecentMessages(ctx, conv.ID, ContextWindow)
	if err != nil {
		log.Error().Err(err).Msg("load context window")
		return s.apology(ctx, log, conv.ID), nil
	}

	text, err := s.generate(bot, history)
	if err != nil {
		log.Warn().Err(err).Str("model", bot.AIModel).Msg("generate reply")
		return s.apology(ctx, log, conv.ID), nil
	}

	reply := storage.ChatMessage{
		ID:        s.newID(),
		Type:      storage.MessageTypeBot,
		Content:   text,
		Timestamp: s.now().UTC(),
	}
	if err := s.store.AppendMessages(ctx, conv.ID, reply); err != nil {
		log.Error().Err(err).Msg("append bot message")
		return s.apology(ctx, log, 0), nil
	}
	return reply, nil
}

func (s *ChatService) generate(bot storage.Chatbot, history []storage.ChatMessage) (string, error) {
	model := strings.TrimSpace(bot.AIModel)
	if model == "" {
		model = s.cfg.DefaultModel
	}
	ref := providers.ParseModelString(model)

	ctx, cancel := context.WithTimeout(s.cfg.Base, s.cfg.LLMTimeout)
	defer cancel()
	return s.gen.GenerateResponse(ctx, toProviderMessages(history), ref.Provider, ref.Model, SystemPrompt(bot))
}

// apology builds the fallback reply and stores it when conversationID is known.
func (s *ChatService) apology(ctx context.Context, log zerolog.Logger, conversationID int64) storage.ChatMessage {
	metrics.Global().RelayApologies.Inc()
	msg := storage.ChatMessage{
		ID:        s.newID(),
		Type:      storage.MessageTypeBot,
		Content:   ApologyMessage,
		Timestamp: s.now().UTC(),
	}
	if conversationID > 0 {
		if err := s.store.AppendMessages(ctx, conversationID, msg); err != nil {
			log.Error().Err(err).Msg("append apology")
		}
	}
	return msg
}

func SystemPrompt(bot storage.Chatbot) string {
	return fmt.Sprintf("You are %s, a BotSmith assistant for a %s business. %s. Keep responses helpful and concise.",
		bot.Name, bot.Industry, strings.TrimRight(strings.TrimSpace(bot.Personality), "."))
}

func toProviderMessages(history []storage.ChatMessage) []providers.Message {
	out := make([]providers.Message, 0, len(history))
	for _, m := range history {
		role := providers.RoleUser
		if m.Type == storage.MessageTypeBot {
			role = providers.RoleAssistant
		}
		out = append(out, providers.Message{Role: role, Content: m.Content})
	}
	return out
}
