package providers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"botsmith/internal/metrics"
)

const (
	DefaultProvider  = "ollama"
	FallbackResponse = "I apologize, but I was unable to generate a response."
)

// ModelRef is a parsed "provider:model" string.
type ModelRef struct {
	Provider string
	Model    string
}

func (m ModelRef) String() string {
	return m.Provider + ":" + m.Model
}

// ParseModelString splits on the first colon. A string without a colon names an
// ollama model, so "llama3.2" and "ollama:llama3.2" are equivalent.
func ParseModelString(s string) ModelRef {
	s = strings.TrimSpace(s)
	provider, model, ok := strings.Cut(s, ":")
	if !ok {
		return ModelRef{Provider: DefaultProvider, Model: s}
	}
	return ModelRef{Provider: provider, Model: model}
}

type Status struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Models    []string `json:"models"`
	Available bool     `json:"available"`
}

type GatewayConfig struct {
	MaxTokens   int
	Temperature float64
}

// Gateway fans a uniform chat call out to the registered back-ends. It holds no
// per-request state and is safe for concurrent use once built.
type Gateway struct {
	cfg   GatewayConfig
	log   zerolog.Logger
	order []string
	byID  map[string]Provider
}

func NewGateway(cfg GatewayConfig, log zerolog.Logger) *Gateway {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	return &Gateway{
		cfg:  cfg,
		log:  log.With().Str("component", "gateway").Logger(),
		byID: map[string]Provider{},
	}
}

// Register adds a variant. Registering the same id twice replaces the first one
// but keeps its position in ListProviders.
func (g *Gateway) Register(p Provider) {
	id := strings.ToLower(p.Info().ID)
	if _, exists := g.byID[id]; !exists {
		g.order = append(g.order, id)
	}
	g.byID[id] = p
}

func (g *Gateway) Lookup(name string) (Provider, bool) {
	p, ok := g.byID[strings.ToLower(strings.TrimSpace(name))]
	return p, ok
}

func (g *Gateway) ListProviders() []Status {
	out := make([]Status, 0, len(g.order))
	for _, id := range g.order {
		p := g.byID[id]
		info := p.Info()
		models := make([]string, len(info.Models))
		copy(models, info.Models)
		out = append(out, Status{
			ID:        info.ID,
			Name:      info.Name,
			Models:    models,
			Available: p.Available(),
		})
	}
	return out
}

// GenerateResponse sends messages to the named provider with the system prompt
// prepended. A well-formed but empty answer yields FallbackResponse.
func (g *Gateway) GenerateResponse(ctx context.Context, messages []Message, providerName, model, systemPrompt string) (string, error) {
	p, ok := g.Lookup(providerName)
	if !ok {
		return "", ErrProviderNotFound
	}
	info := p.Info()
	if !p.Available() {
		return "", ErrProviderUnavailable
	}
	if strings.TrimSpace(model) == "" {
		model = info.DefaultModel
	}

	msgs := make([]Message, 0, len(messages)+1)
	if strings.TrimSpace(systemPrompt) != "" {
		msgs = append(msgs, Message{Role: RoleSystem, Content: systemPrompt})
	}
	msgs = append(msgs, messages...)

	started := time.Now()
	resp, err := p.Chat(ctx, ChatRequest{
		Model:       model,
		Messages:    msgs,
		MaxTokens:   g.cfg.MaxTokens,
		Temperature: g.cfg.Temperature,
	})
	elapsed := time.Since(started)
	if err != nil {
		if errors.Is(err, ErrEmptyResponse) {
			metrics.Global().ProviderRequests.WithLabelValues(info.ID, "empty").Inc()
			return FallbackResponse, nil
		}
		metrics.Global().ProviderRequests.WithLabelValues(info.ID, "error").Inc()
		var upstream *UpstreamError
		if !errors.As(err, &upstream) {
			upstream = &UpstreamError{Provider: info.ID, Err: err}
		}
		g.log.Warn().Err(upstream).Str("provider", info.ID).Str("model", model).Dur("elapsed", elapsed).Msg("provider call failed")
		return "", upstream
	}

	if strings.TrimSpace(resp.Text) == "" {
		metrics.Global().ProviderRequests.WithLabelValues(info.ID, "empty").Inc()
		return FallbackResponse, nil
	}
	metrics.Global().ProviderRequests.WithLabelValues(info.ID, "ok").Inc()
	g.log.Debug().Str("provider", info.ID).Str("model", model).Dur("elapsed", elapsed).Int("chars", len(resp.Text)).Msg("provider call done")
	return resp.Text, nil
}
