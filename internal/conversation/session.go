package conversation

import (
	"context"
	"sync"
	"time"
)

// Session is the wizard state for one browser session.
type Session struct {
	ID        string  `json:"id"`
	Template  string  `json:"template,omitempty"`
	Profile   Profile `json:"profile"`
	Stage     Stage   `json:"stage"`
	ChatbotID int64   `json:"chatbotId,omitempty"`
	UpdatedAt int64   `json:"updatedAt"`
}

// SessionStore persists wizard sessions by id. Get returns nil, nil for an
// unknown or expired id.
type SessionStore interface {
	Get(ctx context.Context, id string) (*Session, error)
	Set(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
}

type memoryEntry struct {
	session  Session
	lastSeen time.Time
}

// MemoryStore keeps sessions in process memory and drops those idle for longer
// than ttl. A zero ttl disables expiry.
type MemoryStore struct {
	mu   sync.Mutex
	ttl  time.Duration
	data map[string]memoryEntry
	now  func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{ttl: ttl, data: map[string]memoryEntry{}, now: time.Now}
}

var _ SessionStore = (*MemoryStore)(nil)

func (m *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.data[id]
	if !ok {
		return nil, nil
	}
	if m.expired(e) {
		delete(m.data, id)
		return nil, nil
	}
	s := e.session
	s.Profile = s.Profile.Clone()
	return &s, nil
}

func (m *MemoryStore) Set(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	cp.Profile = s.Profile.Clone()
	m.data[s.ID] = memoryEntry{session: cp, lastSeen: m.now()}
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, id)
	return nil
}

func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}

// Sweep removes expired sessions and returns how many were dropped.
func (m *MemoryStore) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, e := range m.data {
		if m.expired(e) {
			delete(m.data, id)
			n++
		}
	}
	return n
}

// Run sweeps on every tick until ctx is done.
func (m *MemoryStore) Run(ctx context.Context, interval time.Duration) {
	if m.ttl <= 0 || interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.Sweep()
		}
	}
}

func (m *MemoryStore) expired(e memoryEntry) bool {
	return m.ttl > 0 && m.now().Sub(e.lastSeen) > m.ttl
}
