package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// EnsureConversation returns the conversation bound to sessionID, creating it
// on first use. A session keeps the chatbot it was first opened for.
func (s *Store) EnsureConversation(ctx context.Context, chatbotID int64, sessionID string) (Conversation, error) {
	q := s.sql.Insert("conversations").
		Columns("chatbot_id", "session_id", "created_at").
		Values(chatbotID, sessionID, s.now().UnixMilli()).
		Suffix("ON CONFLICT (session_id) DO NOTHING")
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return Conversation{}, fmt.Errorf("build ensure conversation query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return Conversation{}, fmt.Errorf("ensure conversation: %w", err)
	}
	return s.conversationBySession(ctx, sessionID)
}

// GetConversationBySessionID loads a conversation with its full transcript.
func (s *Store) GetConversationBySessionID(ctx context.Context, sessionID string) (Conversation, error) {
	c, err := s.conversationBySession(ctx, sessionID)
	if err != nil {
		return Conversation{}, err
	}
	c.Messages, err = s.messages(ctx, c.ID, 0)
	if err != nil {
		return Conversation{}, err
	}
	return c, nil
}

// AppendMessages stores msgs in order at the end of the transcript.
func (s *Store) AppendMessages(ctx context.Context, conversationID int64, msgs ...ChatMessage) error {
	if len(msgs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append messages: %w", err)
	}
	defer tx.Rollback()

	for _, m := range msgs {
		ts := m.Timestamp
		if ts.IsZero() {
			ts = s.now()
		}
		q := s.sql.Insert("chat_messages").
			Columns("id", "conversation_id", "type", "content", "is_voice", "created_at").
			Values(m.ID, conversationID, m.Type, m.Content, m.IsVoice, ts.UnixMilli())
		sqlStr, args, err := q.ToSql()
		if err != nil {
			return fmt.Errorf("build append message query: %w", err)
		}
		if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
			return fmt.Errorf("append message %s: %w", m.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append messages: %w", err)
	}
	return nil
}

// RecentMessages returns at most limit trailing messages, oldest first.
func (s *Store) RecentMessages(ctx context.Context, conversationID int64, limit int) ([]ChatMessage, error) {
	return s.messages(ctx, conversationID, limit)
}

func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	counts := []struct {
		q   sq.SelectBuilder
		dst *int64
	}{
		{s.sql.Select("COUNT(*)").From("chatbots").Where(sq.Eq{"is_active": true}), &st.ActiveChatbots},
		{s.sql.Select("COUNT(*)").From("conversations"), &st.Conversations},
		{s.sql.Select("COUNT(*)").From("chat_messages"), &st.Messages},
	}
	for _, c := range counts {
		sqlStr, args, err := c.q.ToSql()
		if err != nil {
			return Stats{}, fmt.Errorf("build stats query: %w", err)
		}
		if err := s.db.QueryRowContext(ctx, sqlStr, args...).Scan(c.dst); err != nil {
			return Stats{}, fmt.Errorf("stats: %w", err)
		}
	}
	return st, nil
}

func (s *Store) conversationBySession(ctx context.Context, sessionID string) (Conversation, error) {
	q := s.sql.Select("id", "chatbot_id", "session_id", "created_at").
		From("conversations").
		Where(sq.Eq{"session_id": sessionID})
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return Conversation{}, fmt.Errorf("build conversation query: %w", err)
	}
	var c Conversation
	var createdAt int64
	if err := s.db.QueryRowContext(ctx, sqlStr, args...).Scan(&c.ID, &c.ChatbotID, &c.SessionID, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Conversation{}, ErrNotFound
		}
		return Conversation{}, fmt.Errorf("get conversation: %w", err)
	}
	c.CreatedAt = time.UnixMilli(createdAt).UTC()
	c.Messages = []ChatMessage{}
	return c, nil
}

func (s *Store) messages(ctx context.Context, conversationID int64, limit int) ([]ChatMessage, error) {
	q := s.sql.Select("id", "type", "content", "is_voice", "created_at").
		From("chat_messages").
		Where(sq.Eq{"conversation_id": conversationID}).
		OrderBy("seq DESC")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build messages query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	out := make([]ChatMessage, 0)
	for rows.Next() {
		var m ChatMessage
		var createdAt int64
		if err := rows.Scan(&m.ID, &m.Type, &m.Content, &m.IsVoice, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		m.Timestamp = time.UnixMilli(createdAt).UTC()
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate message rows: %w", err)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
