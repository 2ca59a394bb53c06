package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/DasMonkey/mindly-core/internal/ai"
	"github.com/DasMonkey/mindly-core/internal/logging"
)

// ChatArchive mirrors chat sessions and turns into SQLite. It implements
// ai.SessionArchive: failures are logged and swallowed so persistence
// problems never break a live conversation.
type ChatArchive struct {
	db  *DB
	log *logging.Logger
}

// NewChatArchive creates an archive over db.
func NewChatArchive(db *DB, log *logging.Logger) *ChatArchive {
	return &ChatArchive{db: db, log: log.Sub("archive")}
}

var _ ai.SessionArchive = (*ChatArchive)(nil)

func (a *ChatArchive) SessionCreated(provider, id, fingerprint string, created time.Time) {
	_, err := a.db.sql.Exec(
		"INSERT OR IGNORE INTO chat_sessions (id, provider, fingerprint, created_at) VALUES (?, ?, ?, ?)",
		id, provider, fingerprint, created.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		a.log.Warn().Err(err).Str("session", id).Msg("failed to archive session creation")
	}
}

func (a *ChatArchive) TurnAppended(id string, t ai.Turn) {
	mimes := make([]string, 0, len(t.Media))
	for _, m := range t.Media {
		mimes = append(mimes, m.MIME)
	}
	ts := t.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := a.db.sql.Exec(
		"INSERT INTO chat_turns (session_id, role, content, media_mime, timestamp) VALUES (?, ?, ?, ?, ?)",
		id, t.Role, t.Content, strings.Join(mimes, ","), ts.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		a.log.Warn().Err(err).Str("session", id).Msg("failed to archive turn")
	}
}

func (a *ChatArchive) SessionDestroyed(id string) {
	_, err := a.db.sql.Exec(
		"UPDATE chat_sessions SET destroyed_at = datetime('now') WHERE id = ?", id,
	)
	if err != nil {
		a.log.Warn().Err(err).Str("session", id).Msg("failed to archive session destruction")
	}
}

// ArchivedTurn is one row of a session's stored transcript.
type ArchivedTurn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	MediaMIME string    `json:"mediaMime,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Transcript returns the archived turns of a session in append order.
func (a *ChatArchive) Transcript(sessionID string) ([]ArchivedTurn, error) {
	rows, err := a.db.sql.Query(
		"SELECT role, content, media_mime, timestamp FROM chat_turns WHERE session_id = ? ORDER BY id",
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying transcript: %w", err)
	}
	defer rows.Close()

	var out []ArchivedTurn
	for rows.Next() {
		var t ArchivedTurn
		var ts string
		if err := rows.Scan(&t.Role, &t.Content, &t.MediaMIME, &ts); err != nil {
			return nil, fmt.Errorf("scanning turn: %w", err)
		}
		t.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		out = append(out, t)
	}
	return out, rows.Err()
}
