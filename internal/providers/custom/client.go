package custom

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"text/template"
	"time"

	"botsmith/internal/providers"
)

const ID = "custom"

type Config struct {
	URL          string
	APIKey       string
	Models       []string
	Headers      map[string]string
	BodyTemplate string
	// ResponsePath is a dotted path into the JSON answer, e.g. "data.0.text".
	// When empty a list of well known fields is tried.
	ResponsePath string
	HTTPClient   *http.Client
}

// Client posts to an operator-configured endpoint. The request body is either a
// plain JSON object or the rendering of BodyTemplate.
type Client struct {
	cfg Config
	tpl *template.Template
}

func New(cfg Config) (*Client, error) {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	if len(cfg.Models) == 0 {
		cfg.Models = []string{"default"}
	}
	c := &Client{cfg: cfg}
	if strings.TrimSpace(cfg.BodyTemplate) != "" {
		tpl, err := template.New("custom_body").Funcs(template.FuncMap{"json": toJSON}).Option("missingkey=zero").Parse(cfg.BodyTemplate)
		if err != nil {
			return nil, fmt.Errorf("parse body template: %w", err)
		}
		c.tpl = tpl
	}
	return c, nil
}

var _ providers.Provider = (*Client)(nil)

func (c *Client) Info() providers.Info {
	return providers.Info{ID: ID, Name: "Custom HTTP", DefaultModel: c.cfg.Models[0], Models: c.cfg.Models}
}

func (c *Client) Available() bool {
	return strings.TrimSpace(c.cfg.URL) != ""
}

func (c *Client) Chat(ctx context.Context, req providers.ChatRequest) (providers.ChatResponse, error) {
	body, err := c.renderBody(req)
	if err != nil {
		return providers.ChatResponse{}, err
	}
	text, err := c.callOnce(ctx, body)
	if err != nil {
		return providers.ChatResponse{}, err
	}
	return providers.ChatResponse{Text: text}, nil
}

func (c *Client) renderBody(req providers.ChatRequest) ([]byte, error) {
	system, rest := providers.SplitSystem(req.Messages)
	prompt := ""
	if len(rest) > 0 {
		prompt = rest[len(rest)-1].Content
	}

	if c.tpl == nil {
		payload := map[string]any{
			"model":         req.Model,
			"system_prompt": system,
			"prompt":        prompt,
			"messages":      req.Messages,
			"max_tokens":    req.MaxTokens,
			"temperature":   req.Temperature,
		}
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal custom payload: %w", err)
		}
		return b, nil
	}

	var buf bytes.Buffer
	if err := c.tpl.Execute(&buf, map[string]any{
		"Model":        req.Model,
		"SystemPrompt": system,
		"Prompt":       prompt,
		"Messages":     req.Messages,
		"MaxTokens":    req.MaxTokens,
		"Temperature":  req.Temperature,
		"APIKey":       c.cfg.APIKey,
	}); err != nil {
		return nil, fmt.Errorf("execute body template: %w", err)
	}
	return buf.Bytes(), nil
}

func (c *Client) callOnce(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build custom request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	for k, v := range c.cfg.Headers {
		req.Header.Set(k, strings.ReplaceAll(v, "{{api_key}}", c.cfg.APIKey))
	}

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return "", &providers.UpstreamError{Provider: ID, Err: fmt.Errorf("custom request failed: %w", err)}
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", &providers.UpstreamError{Provider: ID, Err: fmt.Errorf("read custom response: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", providers.StatusError(ID, resp.StatusCode, b)
	}

	if c.cfg.ResponsePath != "" {
		return extractPath(b, c.cfg.ResponsePath)
	}
	return extractText(b)
}

func extractPath(body []byte, path string) (string, error) {
	var cur any
	if err := json.Unmarshal(body, &cur); err != nil {
		return "", &providers.UpstreamError{Provider: ID, Err: fmt.Errorf("decode custom response: %w", err)}
	}
	for _, seg := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			cur = node[seg]
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(node) {
				return "", providers.ErrEmptyResponse
			}
			cur = node[i]
		default:
			return "", providers.ErrEmptyResponse
		}
	}
	s, ok := cur.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", providers.ErrEmptyResponse
	}
	return s, nil
}

func extractText(body []byte) (string, error) {
	var simple map[string]any
	if err := json.Unmarshal(body, &simple); err != nil {
		trimmed := strings.TrimSpace(string(body))
		if trimmed != "" {
			return trimmed, nil
		}
		return "", providers.ErrEmptyResponse
	}

	for _, key := range []string{"text", "response", "answer", "output_text", "generated_text"} {
		if v, ok := simple[key].(string); ok && strings.TrimSpace(v) != "" {
			return v, nil
		}
	}

	if msg, ok := simple["message"].(map[string]any); ok {
		if content, ok := msg["content"].(string); ok && strings.TrimSpace(content) != "" {
			return content, nil
		}
	}

	if choices, ok := simple["choices"].([]any); ok && len(choices) > 0 {
		if c0, ok := choices[0].(map[string]any); ok {
			if msg, ok := c0["message"].(map[string]any); ok {
				if content, ok := msg["content"].(string); ok && strings.TrimSpace(content) != "" {
					return content, nil
				}
			}
			if text, ok := c0["text"].(string); ok && strings.TrimSpace(text) != "" {
				return text, nil
			}
		}
	}

	return "", providers.ErrEmptyResponse
}

func toJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
