package providers

import (
	"context"
	"strings"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatRequest struct {
	Model       string
	Messages    []Message
	MaxTokens   int
	Temperature float64
}

type ChatResponse struct {
	Text string
}

// Info is the static description of a provider variant.
type Info struct {
	ID           string
	Name         string
	DefaultModel string
	Models       []string
}

type Provider interface {
	Info() Info
	// Available reports whether credentials are configured. It never touches the network.
	Available() bool
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
}

// SplitSystem pulls system messages out of a transcript for back-ends that take
// the system prompt as a separate field.
func SplitSystem(msgs []Message) (string, []Message) {
	var system []string
	rest := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == RoleSystem {
			if strings.TrimSpace(m.Content) != "" {
				system = append(system, m.Content)
			}
			continue
		}
		rest = append(rest, m)
	}
	return strings.Join(system, "\n\n"), rest
}
