package anthropic

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"botsmith/internal/providers"
)

const ID = "anthropic"

var Models = []string{
	"claude-3-7-sonnet-20250219",
	"claude-3-sonnet-20240229",
	"claude-3-haiku-20240307",
	"claude-3-opus-20240229",
}

type Config struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

type Client struct {
	apiKey string
	client anthropic.Client
}

func New(cfg Config) *Client {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	return &Client{apiKey: cfg.APIKey, client: anthropic.NewClient(opts...)}
}

var _ providers.Provider = (*Client)(nil)

func (c *Client) Info() providers.Info {
	return providers.Info{ID: ID, Name: "Anthropic", DefaultModel: Models[0], Models: Models}
}

func (c *Client) Available() bool {
	return strings.TrimSpace(c.apiKey) != ""
}

// Chat sends the transcript through the Messages API. System messages travel in
// the dedicated system field instead of the message list.
func (c *Client) Chat(ctx context.Context, req providers.ChatRequest) (providers.ChatResponse, error) {
	system, rest := providers.SplitSystem(req.Messages)

	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: maxTokens,
		Messages:  convertMessages(rest),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}

	message, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return providers.ChatResponse{}, wrapError(err)
	}

	var sb strings.Builder
	for _, block := range message.Content {
		sb.WriteString(block.Text)
	}
	if strings.TrimSpace(sb.String()) == "" {
		return providers.ChatResponse{}, providers.ErrEmptyResponse
	}
	return providers.ChatResponse{Text: sb.String()}, nil
}

func convertMessages(msgs []providers.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == providers.RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
			continue
		}
		out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
	}
	return out
}

func wrapError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return &providers.UpstreamError{Provider: ID, StatusCode: apiErr.StatusCode, Err: err}
	}
	return &providers.UpstreamError{Provider: ID, Err: err}
}
