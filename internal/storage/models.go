package storage

import (
	"sort"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	MessageTypeUser = "user"
	MessageTypeBot  = "bot"
)

// OwnerContact is stored sealed; it only appears decrypted on reads.
type OwnerContact struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

func (o *OwnerContact) empty() bool {
	return o == nil || (o.Name == "" && o.Email == "" && o.Phone == "")
}

type Chatbot struct {
	ID            int64         `json:"id"`
	OwnerID       int64         `json:"userId"`
	Name          string        `json:"name"`
	Industry      string        `json:"industry"`
	AIModel       string        `json:"aiModel"`
	Personality   string        `json:"personality"`
	VoiceEnabled  bool          `json:"voiceEnabled"`
	AutoResponses bool          `json:"autoResponses"`
	IsActive      bool          `json:"isActive"`
	EmbedCode     string        `json:"embedCode"`
	Owner         *OwnerContact `json:"owner,omitempty"`
	CreatedAt     time.Time     `json:"createdAt"`
}

type ChatbotInput struct {
	OwnerID       int64         `json:"userId"`
	Name          string        `json:"name"`
	Industry      string        `json:"industry"`
	AIModel       string        `json:"aiModel"`
	Personality   string        `json:"personality"`
	VoiceEnabled  bool          `json:"voiceEnabled"`
	AutoResponses bool          `json:"autoResponses"`
	IsActive      *bool         `json:"isActive,omitempty"`
	Owner         *OwnerContact `json:"owner,omitempty"`
}

// ChatbotPatch carries a partial update; nil fields are left untouched.
type ChatbotPatch struct {
	Name          *string       `json:"name,omitempty"`
	Industry      *string       `json:"industry,omitempty"`
	AIModel       *string       `json:"aiModel,omitempty"`
	Personality   *string       `json:"personality,omitempty"`
	VoiceEnabled  *bool         `json:"voiceEnabled,omitempty"`
	AutoResponses *bool         `json:"autoResponses,omitempty"`
	IsActive      *bool         `json:"isActive,omitempty"`
	Owner         *OwnerContact `json:"owner,omitempty"`
}

type ChatMessage struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	IsVoice   bool      `json:"isVoice,omitempty"`
}

type Conversation struct {
	ID        int64         `json:"id"`
	ChatbotID int64         `json:"chatbotId"`
	SessionID string        `json:"sessionId"`
	Messages  []ChatMessage `json:"messages"`
	CreatedAt time.Time     `json:"createdAt"`
}

type Stats struct {
	ActiveChatbots int64 `json:"activeChatbots"`
	Conversations  int64 `json:"conversations"`
	Messages       int64 `json:"messages"`
}

type AuditEntry struct {
	ChatbotID int64
	Action    string
	MetaJSON  string
}

// ValidationError lists the rejected fields of a chatbot write.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "invalid chatbot: " + strings.Join(parts, "; ")
}

const maxNameLen = 100

func (in ChatbotInput) validate() error {
	fields := map[string]string{}
	if in.OwnerID <= 0 {
		fields["userId"] = "must be positive"
	}
	checkText(fields, "name", in.Name, maxNameLen)
	checkText(fields, "industry", in.Industry, maxNameLen)
	checkModel(fields, in.AIModel)
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func (p ChatbotPatch) validate() error {
	fields := map[string]string{}
	if p.Name != nil {
		checkText(fields, "name", *p.Name, maxNameLen)
	}
	if p.Industry != nil {
		checkText(fields, "industry", *p.Industry, maxNameLen)
	}
	if p.AIModel != nil {
		checkModel(fields, *p.AIModel)
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func checkText(fields map[string]string, key, v string, max int) {
	switch {
	case strings.TrimSpace(v) == "":
		fields[key] = "is required"
	case utf8.RuneCountInString(v) > max:
		fields[key] = "is too long"
	}
}

func checkModel(fields map[string]string, v string) {
	v = strings.TrimSpace(v)
	if v == "" || strings.HasPrefix(v, ":") || strings.HasSuffix(v, ":") {
		fields["aiModel"] = `must look like "provider:model"`
	}
}
