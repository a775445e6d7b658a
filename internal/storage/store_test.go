package storage

import (
	"context"
	"encoding/base64"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"botsmith/internal/crypto"
)

func testKey(t *testing.T, b64 string) []byte {
	t.Helper()
	k, err := base64.StdEncoding.DecodeString(b64)
	require.NoError(t, err)
	return k
}

func openTestStore(t *testing.T, m *crypto.Manager) *Store {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "test.db") + "?_pragma=busy_timeout(5000)"
	s, err := Open(context.Background(), Options{
		Driver:      "sqlite",
		DSN:         dsn,
		AutoMigrate: true,
		PublicURL:   "https://bots.example.com/",
		Crypto:      m,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newManager(t *testing.T, current string, keys map[string]string) *crypto.Manager {
	t.Helper()
	ring := map[string][]byte{}
	for id, b64 := range keys {
		ring[id] = testKey(t, b64)
	}
	m, err := crypto.NewManager(current, ring)
	require.NoError(t, err)
	return m
}

const (
	keyA = "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA="
	keyB = "AQEBAQEBAQEBAQEBAQEBAQEBAQEBAQEBAQEBAQEBAQE="
)

func sampleInput() ChatbotInput {
	return ChatbotInput{
		OwnerID:     1,
		Name:        "Ava",
		Industry:    "Dentist",
		AIModel:     "ollama:llama3.2",
		Personality: "You are Ava, a Dentist.",
		Owner:       &OwnerContact{Name: "Dana", Email: "dana@example.com"},
	}
}

func TestCreateChatbotAssignsEmbedCode(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, newManager(t, "a", map[string]string{"a": keyA}))

	c, err := s.CreateChatbot(ctx, sampleInput())
	require.NoError(t, err)
	assert.Positive(t, c.ID)
	assert.True(t, c.IsActive)
	assert.Equal(t, `<script src="https://bots.example.com/widget.js" data-chatbot-id="`+itoa(c.ID)+`"></script>`, c.EmbedCode)
	require.NotNil(t, c.Owner)
	assert.Equal(t, "dana@example.com", c.Owner.Email)

	var raw string
	require.NoError(t, s.db.QueryRowContext(ctx, "SELECT enc_owner_contact FROM chatbots WHERE id = ?", c.ID).Scan(&raw))
	assert.NotContains(t, raw, "dana@example.com")
}

func TestCreateChatbotValidation(t *testing.T) {
	s := openTestStore(t, nil)
	in := sampleInput()
	in.Name = "  "
	in.AIModel = "openai:"

	_, err := s.CreateChatbot(context.Background(), in)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "name")
	assert.Contains(t, verr.Fields, "aiModel")
	assert.NotContains(t, verr.Fields, "industry")
}

func TestChatbotNameLengthCountsCharacters(t *testing.T) {
	s := openTestStore(t, nil)
	ctx := context.Background()

	in := sampleInput()
	in.Name = strings.Repeat("鈴", 100)
	c, err := s.CreateChatbot(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, in.Name, c.Name)

	in.Name = strings.Repeat("鈴", 101)
	_, err = s.CreateChatbot(ctx, in)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "is too long", verr.Fields["name"])
}

func TestUpdateAndDeleteChatbot(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, nil)

	c, err := s.CreateChatbot(ctx, sampleInput())
	require.NoError(t, err)
	assert.Nil(t, c.Owner)

	name := "Bea"
	inactive := false
	got, err := s.UpdateChatbot(ctx, c.ID, ChatbotPatch{Name: &name, IsActive: &inactive})
	require.NoError(t, err)
	assert.Equal(t, "Bea", got.Name)
	assert.False(t, got.IsActive)
	assert.Equal(t, "Dentist", got.Industry)

	_, err = s.UpdateChatbot(ctx, c.ID+100, ChatbotPatch{Name: &name})
	assert.ErrorIs(t, err, ErrNotFound)

	conv, err := s.EnsureConversation(ctx, c.ID, "sess-1")
	require.NoError(t, err)
	require.NoError(t, s.AppendMessages(ctx, conv.ID, ChatMessage{ID: "m1", Type: MessageTypeUser, Content: "hi"}))

	require.NoError(t, s.DeleteChatbot(ctx, c.ID))
	_, err = s.GetChatbot(ctx, c.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetConversationBySessionID(ctx, "sess-1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.DeleteChatbot(ctx, c.ID), ErrNotFound)
}

func TestListChatbotsFiltersByOwner(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, nil)

	first := sampleInput()
	_, err := s.CreateChatbot(ctx, first)
	require.NoError(t, err)
	second := sampleInput()
	second.OwnerID = 2
	second.Name = "Other"
	_, err = s.CreateChatbot(ctx, second)
	require.NoError(t, err)

	all, err := s.ListChatbots(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Other", all[0].Name)

	mine, err := s.ListChatbots(ctx, 1)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "Ava", mine[0].Name)
}

func TestTranscriptOrderingAndWindow(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, nil)
	base := time.UnixMilli(1_700_000_000_000)
	s.now = func() time.Time { return base }

	c, err := s.CreateChatbot(ctx, sampleInput())
	require.NoError(t, err)

	conv, err := s.EnsureConversation(ctx, c.ID, "sess-a")
	require.NoError(t, err)
	again, err := s.EnsureConversation(ctx, c.ID, "sess-a")
	require.NoError(t, err)
	assert.Equal(t, conv.ID, again.ID)

	for i := 0; i < 12; i++ {
		typ := MessageTypeUser
		if i%2 == 1 {
			typ = MessageTypeBot
		}
		require.NoError(t, s.AppendMessages(ctx, conv.ID, ChatMessage{
			ID:      "m" + itoa(int64(i)),
			Type:    typ,
			Content: "msg " + itoa(int64(i)),
		}))
	}

	recent, err := s.RecentMessages(ctx, conv.ID, 10)
	require.NoError(t, err)
	require.Len(t, recent, 10)
	assert.Equal(t, "msg 2", recent[0].Content)
	assert.Equal(t, "msg 11", recent[9].Content)
	assert.True(t, recent[0].Timestamp.Equal(base))

	full, err := s.GetConversationBySessionID(ctx, "sess-a")
	require.NoError(t, err)
	assert.Len(t, full.Messages, 12)

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{ActiveChatbots: 1, Conversations: 1, Messages: 12}, st)
}

func TestRotateOwnerContacts(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, newManager(t, "a", map[string]string{"a": keyA}))

	c, err := s.CreateChatbot(ctx, sampleInput())
	require.NoError(t, err)

	s.crypto = newManager(t, "b", map[string]string{"a": keyA, "b": keyB})
	n, err := s.RotateOwnerContacts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var raw string
	require.NoError(t, s.db.QueryRowContext(ctx, "SELECT enc_owner_contact FROM chatbots WHERE id = ?", c.ID).Scan(&raw))
	assert.True(t, strings.Contains(raw, `"key_id":"b"`))

	n, err = s.RotateOwnerContacts(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := s.GetChatbot(ctx, c.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Owner)
	assert.Equal(t, "Dana", got.Owner.Name)
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
