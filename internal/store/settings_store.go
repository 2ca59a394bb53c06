package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/DasMonkey/mindly-core/internal/settings"
)

// SettingsStore persists the settings document as a single JSON row.
type SettingsStore struct {
	db *DB
}

// NewSettingsStore creates a settings store over db.
func NewSettingsStore(db *DB) *SettingsStore {
	return &SettingsStore{db: db}
}

var _ settings.Store = (*SettingsStore)(nil)

// LoadSettings returns the persisted document, found=false when none exists.
func (s *SettingsStore) LoadSettings() (settings.Settings, bool, error) {
	var doc string
	err := s.db.sql.QueryRow("SELECT document FROM settings WHERE id = 1").Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return settings.Settings{}, false, nil
	}
	if err != nil {
		return settings.Settings{}, false, fmt.Errorf("loading settings: %w", err)
	}

	var out settings.Settings
	if err := json.Unmarshal([]byte(doc), &out); err != nil {
		return settings.Settings{}, false, fmt.Errorf("decoding settings document: %w", err)
	}
	return out, true, nil
}

// SaveSettings upserts the whole document.
func (s *SettingsStore) SaveSettings(v settings.Settings) error {
	doc, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding settings document: %w", err)
	}
	_, err = s.db.sql.Exec(`
		INSERT INTO settings (id, document, updated_at) VALUES (1, ?, datetime('now'))
		ON CONFLICT(id) DO UPDATE SET document = excluded.document, updated_at = excluded.updated_at
	`, string(doc))
	if err != nil {
		return fmt.Errorf("saving settings: %w", err)
	}
	return nil
}
