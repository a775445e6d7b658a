package huggingface

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"botsmith/internal/providers"
)

func TestChatFlattensTranscript(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/microsoft/DialoGPT-medium", r.URL.Path)
		assert.Equal(t, "Bearer hf_x", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`[{"generated_text":"sure thing"}]`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, APIKey: "hf_x"})
	resp, err := c.Chat(context.Background(), providers.ChatRequest{
		Model: "microsoft/DialoGPT-medium",
		Messages: []providers.Message{
			{Role: providers.RoleSystem, Content: "be kind"},
			{Role: providers.RoleUser, Content: "hello"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "sure thing", resp.Text)
	assert.Equal(t, "system: be kind\nuser: hello", got["inputs"])

	params, ok := got["parameters"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(512), params["max_length"])
	assert.Equal(t, true, params["do_sample"])
}

func TestChatUsesRequestedMaxTokens(t *testing.T) {
	var got struct {
		Parameters map[string]any `json:"parameters"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`[{"generated_text":"ok"}]`))
	}))
	defer srv.Close()

	_, err := New(Config{BaseURL: srv.URL, APIKey: "k"}).Chat(context.Background(), providers.ChatRequest{
		Model:     "m",
		MaxTokens: 1024,
		Messages:  []providers.Message{{Role: providers.RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, float64(1024), got.Parameters["max_length"])
}

func TestExtractGeneratedForms(t *testing.T) {
	text, err := extractGenerated([]byte(`{"generated_text":"object form"}`))
	require.NoError(t, err)
	assert.Equal(t, "object form", text)

	_, err = extractGenerated([]byte(`[]`))
	assert.True(t, errors.Is(err, providers.ErrEmptyResponse))

	_, err = extractGenerated([]byte(`{"error":"Model is currently loading"}`))
	var upstream *providers.UpstreamError
	assert.ErrorAs(t, err, &upstream)
}

func TestAvailability(t *testing.T) {
	assert.False(t, New(Config{}).Available())
	assert.True(t, New(Config{APIKey: "hf"}).Available())
}

func TestStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := New(Config{BaseURL: srv.URL, APIKey: "k"}).Chat(context.Background(), providers.ChatRequest{Model: "m"})
	var upstream *providers.UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, http.StatusServiceUnavailable, upstream.StatusCode)
	assert.True(t, upstream.Temporary())
}
