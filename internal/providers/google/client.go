package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"google.golang.org/genai"

	"botsmith/internal/providers"
)

const ID = "google"

var Models = []string{"gemini-pro", "gemini-pro-vision", "gemini-1.5-pro", "gemini-1.5-flash"}

type Config struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

// Client is created lazily because the SDK constructor needs a context and
// can fail; the first Chat call pays for it.
type Client struct {
	cfg Config

	mu     sync.Mutex
	client *genai.Client
}

func New(cfg Config) *Client {
	return &Client{cfg: cfg}
}

var _ providers.Provider = (*Client)(nil)

func (c *Client) Info() providers.Info {
	return providers.Info{ID: ID, Name: "Google Gemini", DefaultModel: Models[0], Models: Models}
}

func (c *Client) Available() bool {
	return strings.TrimSpace(c.cfg.APIKey) != ""
}

func (c *Client) sdk(ctx context.Context) (*genai.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		return c.client, nil
	}
	cc := &genai.ClientConfig{
		APIKey:     c.cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: c.cfg.HTTPClient,
	}
	if c.cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: c.cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	c.client = client
	return client, nil
}

func (c *Client) Chat(ctx context.Context, req providers.ChatRequest) (providers.ChatResponse, error) {
	client, err := c.sdk(ctx)
	if err != nil {
		return providers.ChatResponse{}, &providers.UpstreamError{Provider: ID, Err: err}
	}

	system, rest := providers.SplitSystem(req.Messages)
	config := &genai.GenerateContentConfig{}
	if system != "" {
		config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if req.Temperature > 0 {
		t := float32(req.Temperature)
		config.Temperature = &t
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}

	result, err := client.Models.GenerateContent(ctx, req.Model, convertMessages(rest), config)
	if err != nil {
		return providers.ChatResponse{}, wrapError(err)
	}

	text := collectText(result)
	if strings.TrimSpace(text) == "" {
		return providers.ChatResponse{}, providers.ErrEmptyResponse
	}
	return providers.ChatResponse{Text: text}, nil
}

// convertMessages maps the assistant role to Gemini's "model" role.
func convertMessages(msgs []providers.Message) []*genai.Content {
	out := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		role := string(genai.RoleUser)
		if m.Role == providers.RoleAssistant {
			role = string(genai.RoleModel)
		}
		out = append(out, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: m.Content}},
		})
	}
	return out
}

func collectText(result *genai.GenerateContentResponse) string {
	if result == nil {
		return ""
	}
	var sb strings.Builder
	for _, candidate := range result.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil || part.Thought || part.Text == "" {
				continue
			}
			sb.WriteString(part.Text)
		}
	}
	return sb.String()
}

func wrapError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &providers.UpstreamError{Provider: ID, StatusCode: apiErr.Code, Err: err}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return &providers.UpstreamError{Provider: ID, StatusCode: apiErrPtr.Code, Err: err}
	}
	return &providers.UpstreamError{Provider: ID, Err: err}
}
