package telegram

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"
	"github.com/PaulSonOfLars/gotgbot/v2/ext/handlers"
	"github.com/PaulSonOfLars/gotgbot/v2/ext/handlers/filters/callbackquery"
	"github.com/PaulSonOfLars/gotgbot/v2/ext/handlers/filters/message"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"botsmith/internal/metrics"
	"botsmith/internal/queue"
	"botsmith/internal/ratelimit"
	"botsmith/internal/storage"
)

// Chatbots is the read side of chatbot storage used to bind chats.
type Chatbots interface {
	GetChatbot(ctx context.Context, id int64) (storage.Chatbot, error)
	ListChatbots(ctx context.Context, ownerID int64) ([]storage.Chatbot, error)
}

type Service struct {
	chatbots       Chatbots
	queue          *queue.StreamQueue
	rateLimiter    *ratelimit.Limiter
	bindings       *bindingStore
	logger         zerolog.Logger
	metrics        *metrics.Metrics
	botUsername    string
	defaultOwnerID int64
	now            func() time.Time
}

type Config struct {
	Chatbots       Chatbots
	Queue          *queue.StreamQueue
	RateLimiter    *ratelimit.Limiter
	Redis          *redis.Client
	Logger         zerolog.Logger
	Metrics        *metrics.Metrics
	BindingTTL     time.Duration
	BotUsername    string
	DefaultOwnerID int64
}

func NewService(cfg Config) *Service {
	m := cfg.Metrics
	if m == nil {
		m = metrics.Global()
	}
	if cfg.BindingTTL <= 0 {
		cfg.BindingTTL = 30 * 24 * time.Hour
	}
	if cfg.DefaultOwnerID <= 0 {
		cfg.DefaultOwnerID = 1
	}
	return &Service{
		chatbots:       cfg.Chatbots,
		queue:          cfg.Queue,
		rateLimiter:    cfg.RateLimiter,
		bindings:       newBindingStore(cfg.Redis, cfg.BindingTTL),
		logger:         cfg.Logger.With().Str("component", "telegram").Logger(),
		metrics:        m,
		botUsername:    cfg.BotUsername,
		defaultOwnerID: cfg.DefaultOwnerID,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) Register(d *ext.Dispatcher) {
	d.AddHandler(handlers.NewCommand("help", s.help))
	d.AddHandler(handlers.NewCommand("start", s.start))
	d.AddHandler(handlers.NewCommand("bot", s.bot))
	d.AddHandler(handlers.NewCommand("bots", s.bots))
	d.AddHandler(handlers.NewCommand("status", s.status))
	d.AddHandler(handlers.NewCommand("reset", s.reset))
	d.AddHandler(handlers.NewCallback(callbackquery.Prefix(cbPrefix), s.onCallback))
	d.AddHandler(handlers.NewMessage(func(msg *gotgbot.Message) bool {
		return message.Private(msg) && message.Text(msg) && !strings.HasPrefix(msg.Text, "/")
	}, s.privateText))
}

// DeepLink is the t.me link that opens a private chat already bound to
// chatbotID.
func (s *Service) DeepLink(bot *gotgbot.Bot, chatbotID int64) string {
	username := s.botUsername
	if username == "" && bot != nil {
		username = bot.User.Username
	}
	if strings.TrimSpace(username) == "" {
		return ""
	}
	return "https://t.me/" + username + "?start=" + url.QueryEscape(strconv.FormatInt(chatbotID, 10))
}

// SessionID is the transcript session used for a chat talking to a chatbot.
func SessionID(chatID, chatbotID int64) string {
	return "telegram:" + strconv.FormatInt(chatID, 10) + ":" + strconv.FormatInt(chatbotID, 10)
}
