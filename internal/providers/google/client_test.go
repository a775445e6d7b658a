package google

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"botsmith/internal/providers"
)

func TestConvertMessagesUsesModelRole(t *testing.T) {
	contents := convertMessages([]providers.Message{
		{Role: providers.RoleUser, Content: "hi"},
		{Role: providers.RoleAssistant, Content: "hello"},
	})
	require.Len(t, contents, 2)
	assert.Equal(t, "user", contents[0].Role)
	assert.Equal(t, "model", contents[1].Role)
	assert.Equal(t, "hello", contents[1].Parts[0].Text)
}

func TestCollectTextSkipsThoughts(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Parts: []*genai.Part{
				{Text: "thinking...", Thought: true},
				{Text: "Answer"},
				{Text: " here"},
			}}},
			{Content: nil},
		},
	}
	assert.Equal(t, "Answer here", collectText(resp))
	assert.Equal(t, "", collectText(nil))
}

func TestAvailability(t *testing.T) {
	assert.False(t, New(Config{}).Available())
	assert.True(t, New(Config{APIKey: "g"}).Available())
	assert.Equal(t, "gemini-pro", New(Config{}).Info().DefaultModel)
}
