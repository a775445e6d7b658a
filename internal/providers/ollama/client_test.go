package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"botsmith/internal/providers"
)

func TestBuildPayload(t *testing.T) {
	c := New(Config{BaseURL: "http://ollama:11434/"})

	body, endpoint, err := c.buildPayload(providers.ChatRequest{
		Model: "llama3.2",
		Messages: []providers.Message{
			{Role: providers.RoleSystem, Content: "You are concise"},
			{Role: providers.RoleUser, Content: "hello"},
		},
		MaxTokens:   123,
		Temperature: 0.4,
	})
	if err != nil {
		t.Fatalf("build payload: %v", err)
	}
	if endpoint != "http://ollama:11434/api/chat" {
		t.Fatalf("unexpected endpoint %q", endpoint)
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload["model"] != "llama3.2" {
		t.Fatalf("expected model llama3.2, got %#v", payload["model"])
	}
	if payload["stream"] != false {
		t.Fatalf("expected stream=false, got %#v", payload["stream"])
	}
	msgs, ok := payload["messages"].([]any)
	if !ok || len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %#v", payload["messages"])
	}
}

func TestChatRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"model":"llama3.2","message":{"role":"assistant","content":"hi there"},"done":true}`))
	}))
	defer srv.Close()

	resp, err := New(Config{BaseURL: srv.URL}).Chat(context.Background(), providers.ChatRequest{Model: "llama3.2"})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if resp.Text != "hi there" {
		t.Fatalf("unexpected text %q", resp.Text)
	}
}

func TestChatStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := New(Config{BaseURL: srv.URL}).Chat(context.Background(), providers.ChatRequest{Model: "nope"})
	var upstream *providers.UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}
	if upstream.StatusCode != http.StatusNotFound || upstream.Temporary() {
		t.Fatalf("unexpected upstream error %+v", upstream)
	}
}

func TestChatEmptyContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":""}}`))
	}))
	defer srv.Close()

	_, err := New(Config{BaseURL: srv.URL}).Chat(context.Background(), providers.ChatRequest{Model: "llama3.2"})
	if !errors.Is(err, providers.ErrEmptyResponse) {
		t.Fatalf("expected ErrEmptyResponse, got %v", err)
	}
}

func TestAlwaysAvailable(t *testing.T) {
	c := New(Config{})
	if !c.Available() {
		t.Fatalf("ollama must always be available")
	}
	if c.Info().DefaultModel != "llama3.2" {
		t.Fatalf("unexpected default model %q", c.Info().DefaultModel)
	}
}
