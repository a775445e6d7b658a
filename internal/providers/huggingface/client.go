package huggingface

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"botsmith/internal/providers"
)

const ID = "huggingface"

var Models = []string{
	"microsoft/DialoGPT-medium",
	"microsoft/DialoGPT-large",
	"facebook/blenderbot-400M-distill",
	"microsoft/GODEL-v1_1-base-seq2seq",
	"google/flan-t5-base",
	"EleutherAI/gpt-neo-2.7B",
}

type Config struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// Client calls the hosted Inference API. The transcript is flattened into
// "role: content" lines since most hosted models take a single text input.
type Client struct {
	cfg Config
}

func New(cfg Config) *Client {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://api-inference.huggingface.co/models"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{cfg: cfg}
}

var _ providers.Provider = (*Client)(nil)

func (c *Client) Info() providers.Info {
	return providers.Info{ID: ID, Name: "Hugging Face", DefaultModel: Models[0], Models: Models}
}

func (c *Client) Available() bool {
	return strings.TrimSpace(c.cfg.APIKey) != ""
}

func (c *Client) Chat(ctx context.Context, req providers.ChatRequest) (providers.ChatResponse, error) {
	body, err := buildPayload(req)
	if err != nil {
		return providers.ChatResponse{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/"+req.Model, bytes.NewReader(body))
	if err != nil {
		return providers.ChatResponse{}, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.cfg.HTTPClient.Do(httpReq)
	if err != nil {
		return providers.ChatResponse{}, &providers.UpstreamError{Provider: ID, Err: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return providers.ChatResponse{}, &providers.UpstreamError{Provider: ID, Err: fmt.Errorf("read response body: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return providers.ChatResponse{}, providers.StatusError(ID, resp.StatusCode, respBody)
	}

	text, err := extractGenerated(respBody)
	if err != nil {
		return providers.ChatResponse{}, err
	}
	return providers.ChatResponse{Text: text}, nil
}

func buildPayload(req providers.ChatRequest) ([]byte, error) {
	lines := make([]string, 0, len(req.Messages))
	for _, m := range req.Messages {
		lines = append(lines, m.Role+": "+m.Content)
	}
	temperature := req.Temperature
	if temperature <= 0 {
		temperature = 0.7
	}
	maxLength := req.MaxTokens
	if maxLength <= 0 {
		maxLength = 512
	}
	payload := map[string]any{
		"inputs": strings.Join(lines, "\n"),
		"parameters": map[string]any{
			"max_length":  maxLength,
			"temperature": temperature,
			"do_sample":   true,
		},
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal inference payload: %w", err)
	}
	return b, nil
}

// extractGenerated accepts both the list form [{"generated_text": ...}] and the
// bare object form some pipelines return.
func extractGenerated(body []byte) (string, error) {
	var list []struct {
		GeneratedText string `json:"generated_text"`
	}
	if err := json.Unmarshal(body, &list); err == nil {
		if len(list) > 0 && strings.TrimSpace(list[0].GeneratedText) != "" {
			return list[0].GeneratedText, nil
		}
		return "", providers.ErrEmptyResponse
	}

	var single struct {
		GeneratedText string `json:"generated_text"`
		Error         string `json:"error"`
	}
	if err := json.Unmarshal(body, &single); err != nil {
		return "", &providers.UpstreamError{Provider: ID, Err: fmt.Errorf("decode inference response: %w", err)}
	}
	if single.Error != "" {
		return "", &providers.UpstreamError{Provider: ID, Err: fmt.Errorf("inference: %s", single.Error)}
	}
	if strings.TrimSpace(single.GeneratedText) == "" {
		return "", providers.ErrEmptyResponse
	}
	return single.GeneratedText, nil
}
