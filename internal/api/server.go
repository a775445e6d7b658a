// Package api exposes the BotSmith HTTP surface: the wizard, chatbot CRUD,
// transcripts, the embeddable widget and the live chat websocket.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"botsmith/internal/conversation"
	"botsmith/internal/providers"
	"botsmith/internal/storage"
)

type Wizard interface {
	HandleMessage(ctx context.Context, sessionID, input string) (conversation.Reply, error)
	Reset(ctx context.Context, sessionID string) error
	Snapshot(ctx context.Context, sessionID string) (conversation.SessionSnapshot, error)
	Templates() []conversation.Template
}

type Store interface {
	CreateChatbot(ctx context.Context, in storage.ChatbotInput) (storage.Chatbot, error)
	GetChatbot(ctx context.Context, id int64) (storage.Chatbot, error)
	ListChatbots(ctx context.Context, ownerID int64) ([]storage.Chatbot, error)
	UpdateChatbot(ctx context.Context, id int64, p storage.ChatbotPatch) (storage.Chatbot, error)
	DeleteChatbot(ctx context.Context, id int64) error
	GetConversationBySessionID(ctx context.Context, sessionID string) (storage.Conversation, error)
	Stats(ctx context.Context) (storage.Stats, error)
	Ping(ctx context.Context) error
}

type ProviderLister interface {
	ListProviders() []providers.Status
}

type Config struct {
	PublicURL      string
	AllowedOrigins []string
	HealthPath     string
	MetricsPath    string
	DefaultOwnerID int64
}

type Deps struct {
	Wizard    Wizard
	Store     Store
	Providers ProviderLister
	// WS serves GET /ws.
	WS http.Handler
	// Telegram, when set, is mounted at TelegramPath for webhook delivery.
	Telegram     http.Handler
	TelegramPath string
}

type Server struct {
	deps Deps
	cfg  Config
	log  zerolog.Logger
}

func NewServer(deps Deps, cfg Config, log zerolog.Logger) *Server {
	if cfg.HealthPath == "" {
		cfg.HealthPath = "/healthz"
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	if cfg.DefaultOwnerID <= 0 {
		cfg.DefaultOwnerID = 1
	}
	return &Server{deps: deps, cfg: cfg, log: log.With().Str("component", "http").Logger()}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(requestLogger(s.log))
	r.Use(chiMiddleware.Recoverer)
	r.Use(cors(s.cfg.AllowedOrigins))

	r.Get(s.cfg.HealthPath, s.health)
	r.Handle(s.cfg.MetricsPath, promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(chiMiddleware.Timeout(30 * time.Second))

		r.Route("/conversation", func(r chi.Router) {
			r.Post("/message", s.wizardMessage)
			r.Post("/reset", s.wizardReset)
			r.Get("/session/{sessionId}", s.wizardSession)
			r.Get("/templates", s.wizardTemplates)
		})

		r.Get("/llm-providers", s.listProviders)

		r.Route("/chatbots", func(r chi.Router) {
			r.Get("/", s.listChatbots)
			r.Post("/", s.createChatbot)
			r.Get("/{id}", s.getChatbot)
			r.Put("/{id}", s.updateChatbot)
			r.Delete("/{id}", s.deleteChatbot)
		})

		r.Get("/conversations/{sessionId}", s.getTranscript)
		r.Get("/dashboard/stats", s.dashboardStats)
	})

	r.Get("/widget.js", s.widget)
	if s.deps.WS != nil {
		r.Handle("/ws", s.deps.WS)
	}
	if s.deps.Telegram != nil && s.deps.TelegramPath != "" {
		r.Post("/"+s.deps.TelegramPath, s.deps.Telegram.ServeHTTP)
	}
	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.deps.Store.Ping(ctx); err != nil {
		Error(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
