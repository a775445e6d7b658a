package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"botsmith/internal/metrics"
	"botsmith/internal/storage"
)

var ErrMissingSession = errors.New("session id is required")

// ChatbotWriter persists the chatbot built from a finished profile.
type ChatbotWriter interface {
	CreateChatbot(ctx context.Context, in storage.ChatbotInput) (storage.Chatbot, error)
	UpdateChatbot(ctx context.Context, id int64, p storage.ChatbotPatch) (storage.Chatbot, error)
}

type ManagerConfig struct {
	DefaultModel   string
	DefaultOwnerID int64
	Catalog        Catalog
}

// Reply is what one wizard turn sends back to the client.
type Reply struct {
	Messages         []Message `json:"messages"`
	ShowPreview      bool      `json:"showPreview"`
	Profile          Profile   `json:"agentProfile"`
	Stage            Stage     `json:"currentStage"`
	CreatedChatbotID int64     `json:"createdChatbotId,omitempty"`
}

type SessionSnapshot struct {
	Exists  bool     `json:"exists"`
	Stage   *Stage   `json:"currentStage,omitempty"`
	Profile *Profile `json:"agentProfile,omitempty"`
	Summary *Summary `json:"summary,omitempty"`
}

type Manager struct {
	sessions SessionStore
	chatbots ChatbotWriter
	cfg      ManagerConfig
	log      zerolog.Logger

	locks sessionLocks
}

func NewManager(sessions SessionStore, chatbots ChatbotWriter, cfg ManagerConfig, log zerolog.Logger) *Manager {
	if cfg.Catalog == nil {
		cfg.Catalog = DefaultCatalog
	}
	return &Manager{
		sessions: sessions,
		chatbots: chatbots,
		cfg:      cfg,
		log:      log.With().Str("component", "wizard").Logger(),
	}
}

func (m *Manager) Templates() []Template {
	return m.cfg.Catalog
}

// HandleMessage runs one wizard turn. When persisting the chatbot fails the
// session is left as it was so the client can resend the same answer.
func (m *Manager) HandleMessage(ctx context.Context, sessionID, input string) (Reply, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return Reply{}, ErrMissingSession
	}

	unlock := m.locks.lock(sessionID)
	defer unlock()

	sess, err := m.sessions.Get(ctx, sessionID)
	if err != nil {
		return Reply{}, fmt.Errorf("load session: %w", err)
	}
	if sess == nil {
		sess = &Session{ID: sessionID, Stage: StageTemplate}
	}

	res := Advance(input, sess.Template, sess.Profile, sess.Stage, m.cfg.Catalog)
	from := sess.Stage
	if res.NewTemplate != nil {
		sess.Template = *res.NewTemplate
	}
	if res.NewProfile != nil {
		sess.Profile = *res.NewProfile
	}
	if res.NewStage != nil {
		sess.Stage = *res.NewStage
	}
	if res.NewStage != nil && *res.NewStage == StageTemplate && res.NewProfile != nil {
		sess.ChatbotID = 0
	}

	var created int64
	if from == StageOwnerPhone && sess.Stage == StagePreview {
		id, err := m.materialize(ctx, sess)
		if err != nil {
			return Reply{}, err
		}
		sess.ChatbotID = id
		created = id
	}

	sess.UpdatedAt = time.Now().UnixMilli()
	if err := m.sessions.Set(ctx, sess); err != nil {
		return Reply{}, fmt.Errorf("save session: %w", err)
	}
	metrics.Global().WizardMessages.Inc()

	m.log.Debug().
		Str("session_id", sessionID).
		Int("from", int(from)).
		Int("to", int(sess.Stage)).
		Msg("wizard turn")

	return Reply{
		Messages:         res.Messages,
		ShowPreview:      res.ShowPreview,
		Profile:          sess.Profile,
		Stage:            sess.Stage,
		CreatedChatbotID: created,
	}, nil
}

func (m *Manager) Reset(ctx context.Context, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return ErrMissingSession
	}
	return m.sessions.Delete(ctx, sessionID)
}

func (m *Manager) Snapshot(ctx context.Context, sessionID string) (SessionSnapshot, error) {
	sess, err := m.sessions.Get(ctx, sessionID)
	if err != nil {
		return SessionSnapshot{}, fmt.Errorf("load session: %w", err)
	}
	if sess == nil {
		return SessionSnapshot{}, nil
	}
	summary := BuildSummary(sess.Profile)
	return SessionSnapshot{
		Exists:  true,
		Stage:   &sess.Stage,
		Profile: &sess.Profile,
		Summary: &summary,
	}, nil
}

// materialize writes the chatbot for a finished profile. A session that already
// produced one (after Make Adjustments) updates it in place.
func (m *Manager) materialize(ctx context.Context, sess *Session) (int64, error) {
	p := sess.Profile
	name := clip(or(strings.TrimSpace(p.Name), "Unnamed Agent"), 100)
	industry := clip(or(strings.TrimSpace(p.Profession), "General"), 100)
	personality := PersonalityPrompt(p)
	var owner *storage.OwnerContact
	if p.OwnerName != "" || p.OwnerEmail != "" || p.OwnerPhone != "" {
		owner = &storage.OwnerContact{Name: p.OwnerName, Email: p.OwnerEmail, Phone: p.OwnerPhone}
	}

	if sess.ChatbotID > 0 {
		c, err := m.chatbots.UpdateChatbot(ctx, sess.ChatbotID, storage.ChatbotPatch{
			Name:        &name,
			Industry:    &industry,
			Personality: &personality,
			Owner:       owner,
		})
		if err == nil {
			m.log.Info().Int64("chatbot_id", c.ID).Str("session_id", sess.ID).Msg("chatbot updated from wizard")
			return c.ID, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return 0, fmt.Errorf("update chatbot: %w", err)
		}
	}

	c, err := m.chatbots.CreateChatbot(ctx, storage.ChatbotInput{
		OwnerID:     m.cfg.DefaultOwnerID,
		Name:        name,
		Industry:    industry,
		AIModel:     m.cfg.DefaultModel,
		Personality: personality,
		Owner:       owner,
	})
	if err != nil {
		return 0, fmt.Errorf("create chatbot: %w", err)
	}
	metrics.Global().ChatbotsCreated.Inc()
	m.log.Info().Int64("chatbot_id", c.ID).Str("session_id", sess.ID).Msg("chatbot created from wizard")
	return c.ID, nil
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n]))
}

// sessionLocks serializes turns per session id; different sessions run
// concurrently.
type sessionLocks struct {
	mu    sync.Mutex
	inUse map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func (l *sessionLocks) lock(id string) (unlock func()) {
	l.mu.Lock()
	if l.inUse == nil {
		l.inUse = make(map[string]*sessionLock)
	}
	sl, ok := l.inUse[id]
	if !ok {
		sl = &sessionLock{}
		l.inUse[id] = sl
	}
	sl.refs++
	l.mu.Unlock()

	sl.mu.Lock()
	return func() {
		sl.mu.Unlock()
		l.mu.Lock()
		sl.refs--
		if sl.refs == 0 {
			delete(l.inUse, id)
		}
		l.mu.Unlock()
	}
}
