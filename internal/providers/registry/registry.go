package registry

import (
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"botsmith/internal/config"
	"botsmith/internal/providers"
	"botsmith/internal/providers/anthropic"
	"botsmith/internal/providers/custom"
	"botsmith/internal/providers/google"
	"botsmith/internal/providers/huggingface"
	"botsmith/internal/providers/ollama"
	"botsmith/internal/providers/openai"
)

// Kinds lists the variants in the order they are reported to clients.
var Kinds = []string{ollama.ID, openai.ID, anthropic.ID, google.ID, huggingface.ID, custom.ID}

type BuildOptions struct {
	LLM        config.LLMConfig
	HTTPClient *http.Client
}

// Build constructs a single variant by kind.
func Build(kind string, opts BuildOptions) (providers.Provider, error) {
	llm := opts.LLM
	switch kind {
	case ollama.ID:
		return ollama.New(ollama.Config{BaseURL: llm.OllamaBaseURL, HTTPClient: opts.HTTPClient}), nil

	case openai.ID:
		return openai.New(openai.Config{APIKey: llm.OpenAIAPIKey, BaseURL: llm.OpenAIBaseURL, HTTPClient: opts.HTTPClient}), nil

	case anthropic.ID:
		return anthropic.New(anthropic.Config{APIKey: llm.AnthropicAPIKey, BaseURL: llm.AnthropicBaseURL, HTTPClient: opts.HTTPClient}), nil

	case google.ID:
		return google.New(google.Config{APIKey: llm.GoogleAPIKey, HTTPClient: opts.HTTPClient}), nil

	case huggingface.ID:
		return huggingface.New(huggingface.Config{BaseURL: llm.HuggingFaceURL, APIKey: llm.HuggingFaceAPIKey, HTTPClient: opts.HTTPClient}), nil

	case custom.ID:
		return custom.New(custom.Config{
			URL:          llm.CustomURL,
			APIKey:       llm.CustomAPIKey,
			Models:       llm.CustomModels,
			BodyTemplate: llm.CustomBodyTemplate,
			ResponsePath: llm.CustomResponsePath,
			HTTPClient:   opts.HTTPClient,
		})

	default:
		return nil, fmt.Errorf("unsupported provider kind %q", kind)
	}
}

// NewGateway registers every known variant. Variants without credentials are
// still registered so they show up as unavailable.
func NewGateway(opts BuildOptions, log zerolog.Logger) (*providers.Gateway, error) {
	gw := providers.NewGateway(providers.GatewayConfig{
		MaxTokens:   opts.LLM.MaxTokens,
		Temperature: opts.LLM.Temperature,
	}, log)
	for _, kind := range Kinds {
		p, err := Build(kind, opts)
		if err != nil {
			return nil, fmt.Errorf("build provider %s: %w", kind, err)
		}
		gw.Register(p)
	}
	return gw, nil
}
