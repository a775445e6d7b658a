package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"botsmith/internal/metrics"
	"botsmith/internal/storage"
)

const (
	msgTypeUser = "user_message"
	msgTypeBot  = "bot_message"

	errProcess     = "Failed to process message"
	errNotFound    = "Chatbot not found"
	errRateLimited = "rate limit exceeded"
)

// Replier produces the bot reply for one user message.
type Replier interface {
	HandleUserMessage(ctx context.Context, sessionID string, chatbotID int64, content string) (storage.ChatMessage, error)
}

// Limiter caps how many messages one session may send.
type Limiter interface {
	Allow(ctx context.Context, subject string, now time.Time) (allowed bool, used int64, resetAt time.Time, err error)
}

type HandlerConfig struct {
	Base           context.Context
	AllowedOrigins []string
	WriteTimeout   time.Duration
	ReadLimit      int64
	// Limiter is optional.
	Limiter Limiter
}

type inbound struct {
	Type      string          `json:"type"`
	Content   string          `json:"content"`
	ChatbotID json.RawMessage `json:"chatbotId"`
}

type botFrame struct {
	Type    string              `json:"type"`
	Message storage.ChatMessage `json:"message"`
}

type errorFrame struct {
	Error string `json:"error"`
}

// Handler serves the live chat websocket endpoint.
type Handler struct {
	svc Replier
	hub Registry
	cfg HandlerConfig
	log zerolog.Logger
}

func NewHandler(svc Replier, hub Registry, cfg HandlerConfig, log zerolog.Logger) *Handler {
	if cfg.Base == nil {
		cfg.Base = context.Background()
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = 64 << 10
	}
	return &Handler{svc: svc, hub: hub, cfg: cfg, log: log.With().Str("component", "ws").Logger()}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("sessionId"))
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	log := h.log.With().Str("session_id", sessionID).Logger()

	ws, err := websocket.Accept(w, r, h.acceptOptions())
	if err != nil {
		log.Warn().Err(err).Msg("websocket accept failed")
		return
	}
	ws.SetReadLimit(h.cfg.ReadLimit)

	conn := &wsConn{ws: ws, timeout: h.cfg.WriteTimeout}
	h.hub.Register(sessionID, conn)
	metrics.Global().WSConnections.Inc()
	defer func() {
		h.hub.Unregister(sessionID, conn)
		metrics.Global().WSConnections.Dec()
		_ = ws.Close(websocket.StatusNormalClosure, "session ended")
	}()
	log.Info().Str("remote", r.RemoteAddr).Msg("chat session connected")

	ctx := r.Context()
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if status := websocket.CloseStatus(err); status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && ctx.Err() == nil {
				log.Debug().Err(err).Msg("websocket read ended")
			}
			return
		}
		h.handleFrame(sessionID, conn, data, log)
	}
}

// handleFrame processes one inbound frame. Errors are reported on the
// connection and never close it.
func (h *Handler) handleFrame(sessionID string, conn Conn, data []byte, log zerolog.Logger) {
	var msg inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Debug().Err(err).Msg("invalid frame")
		h.sendError(conn, errProcess)
		return
	}
	if msg.Type != msgTypeUser {
		return
	}
	chatbotID, ok := parseChatbotID(msg.ChatbotID)
	if !ok {
		h.sendError(conn, errProcess)
		return
	}

	if h.cfg.Limiter != nil {
		allowed, _, _, err := h.cfg.Limiter.Allow(h.cfg.Base, sessionID, time.Now())
		if err != nil {
			log.Error().Err(err).Msg("rate limit check failed")
		} else if !allowed {
			h.sendError(conn, errRateLimited)
			return
		}
	}

	reply, err := h.svc.HandleUserMessage(h.cfg.Base, sessionID, chatbotID, msg.Content)
	switch {
	case errors.Is(err, ErrChatbotNotFound):
		h.sendError(conn, errNotFound)
		return
	case err != nil:
		h.sendError(conn, errProcess)
		return
	}

	// the session may have closed or reconnected while the reply was generated
	target, ok := h.hub.Lookup(sessionID)
	if !ok {
		log.Debug().Msg("session gone, reply dropped")
		return
	}
	if err := target.Send(h.cfg.Base, botFrame{Type: msgTypeBot, Message: reply}); err != nil {
		log.Debug().Err(err).Msg("send reply")
	}
}

func (h *Handler) sendError(conn Conn, text string) {
	if err := conn.Send(h.cfg.Base, errorFrame{Error: text}); err != nil {
		h.log.Debug().Err(err).Msg("send error frame")
	}
}

func (h *Handler) acceptOptions() *websocket.AcceptOptions {
	var patterns []string
	for _, o := range h.cfg.AllowedOrigins {
		o = strings.TrimSpace(o)
		if o == "" {
			continue
		}
		if o == "*" {
			return &websocket.AcceptOptions{InsecureSkipVerify: true}
		}
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			o = u.Host
		}
		patterns = append(patterns, o)
	}
	return &websocket.AcceptOptions{OriginPatterns: patterns}
}

// parseChatbotID accepts a JSON number or a numeric string.
func parseChatbotID(raw json.RawMessage) (int64, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var n int64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, n > 0
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false
	}
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

type wsConn struct {
	ws      *websocket.Conn
	timeout time.Duration
}

func (c *wsConn) Send(ctx context.Context, v any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return wsjson.Write(ctx, c.ws, v)
}

func (c *wsConn) Close(reason string) error {
	return c.ws.Close(websocket.StatusNormalClosure, reason)
}
