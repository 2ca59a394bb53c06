package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DasMonkey/mindly-core/internal/ai"
	"github.com/DasMonkey/mindly-core/internal/logging"
	"github.com/DasMonkey/mindly-core/internal/settings"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(":memory:", logging.Silent())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMigrationsIdempotent(t *testing.T) {
	db := openTestDB(t)
	// A second run must skip everything already applied.
	require.NoError(t, db.migrate())

	var count int
	require.NoError(t, db.sql.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count))
	assert.Equal(t, len(migrations), count)
}

func TestSettingsStoreRoundTrip(t *testing.T) {
	db := openTestDB(t)
	s := NewSettingsStore(db)

	_, found, err := s.LoadSettings()
	require.NoError(t, err)
	assert.False(t, found)

	doc := settings.Settings{
		PreferredProvider: "cloud",
		AutoFallback:      false,
		CloudAPIKey:       "k",
		LastUpdated:       time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, s.SaveSettings(doc))

	got, found, err := s.LoadSettings()
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, doc.PreferredProvider, got.PreferredProvider)
	assert.Equal(t, doc.AutoFallback, got.AutoFallback)
	assert.Equal(t, doc.CloudAPIKey, got.CloudAPIKey)

	// Saving again overwrites the single row.
	doc.PreferredProvider = "builtin"
	require.NoError(t, s.SaveSettings(doc))
	got, _, err = s.LoadSettings()
	require.NoError(t, err)
	assert.Equal(t, "builtin", got.PreferredProvider)
}

func TestChatArchive(t *testing.T) {
	db := openTestDB(t)
	a := NewChatArchive(db, logging.Silent())

	a.SessionCreated("builtin", "sess-1", "fp", time.Now())
	a.TurnAppended("sess-1", ai.Turn{Role: ai.RoleUser, Content: "hi", Timestamp: time.Now()})
	a.TurnAppended("sess-1", ai.Turn{
		Role:  ai.RoleUser,
		Media: []ai.MediaPart{{Kind: ai.MediaImage, MIME: "image/png", Data: []byte{1}}},
	})
	a.TurnAppended("sess-1", ai.Turn{Role: ai.RoleAssistant, Content: "hello", Timestamp: time.Now()})

	turns, err := a.Transcript("sess-1")
	require.NoError(t, err)
	require.Len(t, turns, 3)
	assert.Equal(t, "hi", turns[0].Content)
	assert.Equal(t, "image/png", turns[1].MediaMIME)
	assert.Equal(t, ai.RoleAssistant, turns[2].Role)

	a.SessionDestroyed("sess-1")
	var destroyed *string
	require.NoError(t, db.sql.QueryRow("SELECT destroyed_at FROM chat_sessions WHERE id = 'sess-1'").Scan(&destroyed))
	assert.NotNil(t, destroyed)
}

func TestArchiveSurvivesMissingSession(t *testing.T) {
	db := openTestDB(t)
	a := NewChatArchive(db, logging.Silent())

	// Foreign key violation: logged, not propagated.
	a.TurnAppended("never-created", ai.Turn{Role: ai.RoleUser, Content: "hi"})

	turns, err := a.Transcript("never-created")
	require.NoError(t, err)
	assert.Empty(t, turns)
}
