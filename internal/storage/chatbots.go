package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
)

var ErrNotFound = errors.New("not found")

var chatbotColumns = []string{
	"id", "owner_id", "name", "industry", "ai_model", "personality",
	"voice_enabled", "auto_responses", "is_active", "embed_code", "enc_owner_contact", "created_at",
}

// EmbedCode is the snippet a site owner pastes to load the chat widget.
func (s *Store) EmbedCode(id int64) string {
	return fmt.Sprintf(`<script src="%s/widget.js" data-chatbot-id="%d"></script>`, html.EscapeString(s.publicURL), id)
}

func (s *Store) CreateChatbot(ctx context.Context, in ChatbotInput) (Chatbot, error) {
	if err := in.validate(); err != nil {
		return Chatbot{}, err
	}
	encOwner, err := s.sealOwner(in.Owner)
	if err != nil {
		return Chatbot{}, err
	}
	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Chatbot{}, fmt.Errorf("begin create chatbot: %w", err)
	}
	defer tx.Rollback()

	q := s.sql.Insert("chatbots").
		Columns("owner_id", "name", "industry", "ai_model", "personality", "voice_enabled", "auto_responses", "is_active", "enc_owner_contact", "created_at").
		Values(in.OwnerID, strings.TrimSpace(in.Name), strings.TrimSpace(in.Industry), strings.TrimSpace(in.AIModel), in.Personality,
			in.VoiceEnabled, in.AutoResponses, active, encOwner, s.now().UnixMilli()).
		Suffix("RETURNING id")
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return Chatbot{}, fmt.Errorf("build create chatbot query: %w", err)
	}
	var id int64
	if err := tx.QueryRowContext(ctx, sqlStr, args...).Scan(&id); err != nil {
		return Chatbot{}, fmt.Errorf("insert chatbot: %w", err)
	}

	upd := s.sql.Update("chatbots").Set("embed_code", s.EmbedCode(id)).Where(sq.Eq{"id": id})
	sqlStr, args, err = upd.ToSql()
	if err != nil {
		return Chatbot{}, fmt.Errorf("build embed code query: %w", err)
	}
	if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
		return Chatbot{}, fmt.Errorf("set embed code: %w", err)
	}
	if err := s.logAction(ctx, tx, AuditEntry{ChatbotID: id, Action: "chatbot.create", MetaJSON: auditMeta("name", in.Name, "aiModel", in.AIModel)}); err != nil {
		return Chatbot{}, err
	}
	if err := tx.Commit(); err != nil {
		return Chatbot{}, fmt.Errorf("commit create chatbot: %w", err)
	}
	return s.GetChatbot(ctx, id)
}

func (s *Store) GetChatbot(ctx context.Context, id int64) (Chatbot, error) {
	q := s.sql.Select(chatbotColumns...).From("chatbots").Where(sq.Eq{"id": id})
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return Chatbot{}, fmt.Errorf("build get chatbot query: %w", err)
	}
	c, err := s.scanChatbot(s.db.QueryRowContext(ctx, sqlStr, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Chatbot{}, ErrNotFound
		}
		return Chatbot{}, fmt.Errorf("get chatbot: %w", err)
	}
	return c, nil
}

// ListChatbots returns chatbots newest first. ownerID 0 lists every owner.
func (s *Store) ListChatbots(ctx context.Context, ownerID int64) ([]Chatbot, error) {
	q := s.sql.Select(chatbotColumns...).From("chatbots").OrderBy("id DESC")
	if ownerID > 0 {
		q = q.Where(sq.Eq{"owner_id": ownerID})
	}
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list chatbots query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("list chatbots: %w", err)
	}
	defer rows.Close()

	out := make([]Chatbot, 0)
	for rows.Next() {
		c, err := s.scanChatbot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chatbot row: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chatbot rows: %w", err)
	}
	return out, nil
}

func (s *Store) UpdateChatbot(ctx context.Context, id int64, p ChatbotPatch) (Chatbot, error) {
	if err := p.validate(); err != nil {
		return Chatbot{}, err
	}
	set := map[string]any{}
	if p.Name != nil {
		set["name"] = strings.TrimSpace(*p.Name)
	}
	if p.Industry != nil {
		set["industry"] = strings.TrimSpace(*p.Industry)
	}
	if p.AIModel != nil {
		set["ai_model"] = strings.TrimSpace(*p.AIModel)
	}
	if p.Personality != nil {
		set["personality"] = *p.Personality
	}
	if p.VoiceEnabled != nil {
		set["voice_enabled"] = *p.VoiceEnabled
	}
	if p.AutoResponses != nil {
		set["auto_responses"] = *p.AutoResponses
	}
	if p.IsActive != nil {
		set["is_active"] = *p.IsActive
	}
	if p.Owner != nil {
		enc, err := s.sealOwner(p.Owner)
		if err != nil {
			return Chatbot{}, err
		}
		set["enc_owner_contact"] = enc
	}
	if len(set) == 0 {
		return s.GetChatbot(ctx, id)
	}

	sqlStr, args, err := s.sql.Update("chatbots").SetMap(set).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return Chatbot{}, fmt.Errorf("build update chatbot query: %w", err)
	}
	res, err := s.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return Chatbot{}, fmt.Errorf("update chatbot: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Chatbot{}, ErrNotFound
	}
	changed := make([]string, 0, len(set))
	for k := range set {
		changed = append(changed, k)
	}
	if err := s.logAction(ctx, s.db, AuditEntry{ChatbotID: id, Action: "chatbot.update", MetaJSON: auditMeta("fields", strings.Join(changed, ","))}); err != nil {
		return Chatbot{}, err
	}
	return s.GetChatbot(ctx, id)
}

// DeleteChatbot removes the chatbot together with its transcripts.
func (s *Store) DeleteChatbot(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete chatbot: %w", err)
	}
	defer tx.Rollback()

	convIDs := s.sql.Select("id").From("conversations").Where(sq.Eq{"chatbot_id": id})
	steps := []sq.Sqlizer{
		s.sql.Delete("chat_messages").Where(sq.Expr("conversation_id IN (?)", convIDs)),
		s.sql.Delete("conversations").Where(sq.Eq{"chatbot_id": id}),
	}
	for _, step := range steps {
		sqlStr, args, err := step.ToSql()
		if err != nil {
			return fmt.Errorf("build delete transcripts query: %w", err)
		}
		if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
			return fmt.Errorf("delete transcripts: %w", err)
		}
	}

	sqlStr, args, err := s.sql.Delete("chatbots").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete chatbot query: %w", err)
	}
	res, err := tx.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("delete chatbot: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if err := s.logAction(ctx, tx, AuditEntry{ChatbotID: id, Action: "chatbot.delete"}); err != nil {
		return err
	}
	return tx.Commit()
}

// RotateOwnerContacts re-seals owner contacts that were written under an older
// master key and returns how many rows changed.
func (s *Store) RotateOwnerContacts(ctx context.Context) (int, error) {
	if s.crypto == nil {
		return 0, nil
	}
	sqlStr, args, err := s.sql.Select("id", "enc_owner_contact").From("chatbots").Where(sq.NotEq{"enc_owner_contact": nil}).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build rotate query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return 0, fmt.Errorf("list sealed contacts: %w", err)
	}
	stale := map[int64]string{}
	for rows.Next() {
		var id int64
		var raw string
		if err := rows.Scan(&id, &raw); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan sealed contact: %w", err)
		}
		if old, err := s.crypto.NeedsRotation(raw); err == nil && old {
			stale[id] = raw
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate sealed contacts: %w", err)
	}

	n := 0
	for id, raw := range stale {
		fresh, err := s.crypto.Reseal(raw)
		if err != nil {
			return n, fmt.Errorf("reseal chatbot %d: %w", id, err)
		}
		sqlStr, args, err := s.sql.Update("chatbots").Set("enc_owner_contact", fresh).Where(sq.Eq{"id": id}).ToSql()
		if err != nil {
			return n, fmt.Errorf("build reseal query: %w", err)
		}
		if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
			return n, fmt.Errorf("store resealed contact: %w", err)
		}
		n++
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanChatbot(row rowScanner) (Chatbot, error) {
	var c Chatbot
	var encOwner sql.NullString
	var createdAt int64
	if err := row.Scan(
		&c.ID,
		&c.OwnerID,
		&c.Name,
		&c.Industry,
		&c.AIModel,
		&c.Personality,
		&c.VoiceEnabled,
		&c.AutoResponses,
		&c.IsActive,
		&c.EmbedCode,
		&encOwner,
		&createdAt,
	); err != nil {
		return Chatbot{}, err
	}
	c.CreatedAt = time.UnixMilli(createdAt).UTC()
	if encOwner.Valid && s.crypto != nil {
		var owner OwnerContact
		if err := s.crypto.Open(encOwner.String, &owner); err != nil {
			return Chatbot{}, fmt.Errorf("open owner contact of chatbot %d: %w", c.ID, err)
		}
		c.Owner = &owner
	}
	return c, nil
}

// sealOwner returns nil for an empty contact so no ciphertext is stored.
func (s *Store) sealOwner(o *OwnerContact) (*string, error) {
	if o.empty() || s.crypto == nil {
		return nil, nil
	}
	raw, err := s.crypto.Seal(o)
	if err != nil {
		return nil, fmt.Errorf("seal owner contact: %w", err)
	}
	return &raw, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) logAction(ctx context.Context, db execer, e AuditEntry) error {
	if strings.TrimSpace(e.MetaJSON) == "" || !json.Valid([]byte(e.MetaJSON)) {
		e.MetaJSON = "{}"
	}
	q := s.sql.Insert("audit_log").
		Columns("chatbot_id", "action", "meta_json", "created_at").
		Values(e.ChatbotID, e.Action, e.MetaJSON, s.now().UnixMilli())
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build audit insert query: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func auditMeta(kv ...string) string {
	m := make(map[string]string, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		m[kv[i]] = kv[i+1]
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(b)
}
