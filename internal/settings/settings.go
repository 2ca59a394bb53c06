// Package settings holds the user-scoped runtime settings: provider
// preference, fallback policy, and the cloud credential. Settings persist
// across restarts through a pluggable store; persistence failures degrade to
// in-memory operation rather than failing the caller.
package settings

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"dario.cat/mergo"

	"github.com/DasMonkey/mindly-core/internal/logging"
)

// Settings is the full persisted settings document.
type Settings struct {
	PreferredProvider string    `json:"preferredProvider"`
	AutoFallback      bool      `json:"autoFallback"`
	CloudAPIKey       string    `json:"cloudApiKey,omitempty"`
	LastUpdated       time.Time `json:"lastUpdated"`
}

// Defaults returns the settings used when nothing has been persisted yet.
func Defaults() Settings {
	return Settings{
		PreferredProvider: "builtin",
		AutoFallback:      true,
	}
}

// Store persists the settings document.
type Store interface {
	// LoadSettings returns the persisted settings; found is false when
	// nothing has been saved yet.
	LoadSettings() (s Settings, found bool, err error)
	SaveSettings(Settings) error
}

// Manager is the single authority over the settings document. All reads and
// partial updates go through it.
type Manager struct {
	store Store
	log   *logging.Logger

	mu      sync.RWMutex
	current Settings
}

// NewManager loads persisted settings, falling back to defaults when the
// store is empty or unreadable.
func NewManager(store Store, log *logging.Logger) *Manager {
	m := &Manager{store: store, log: log.Sub("settings"), current: Defaults()}

	if store != nil {
		s, found, err := store.LoadSettings()
		switch {
		case err != nil:
			m.log.Warn().Err(err).Msg("failed to load settings, using defaults")
		case found:
			if err := validate(s); err != nil {
				m.log.Warn().Err(err).Msg("persisted settings invalid, using defaults")
			} else {
				m.current = s
			}
		}
	}
	return m
}

// Get returns a copy of the current settings.
func (m *Manager) Get() Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// CloudAPIKey returns the current cloud credential.
func (m *Manager) CloudAPIKey() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.CloudAPIKey
}

// Update applies a partial update: only keys present in partial change, all
// other fields keep their current values. The merged document is validated
// before it replaces the current one, then persisted. A persistence failure
// keeps the in-memory update and logs.
func (m *Manager) Update(partial map[string]any) (Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Merge map-wise so a false boolean or empty string in partial still
	// overrides: a struct-wise merge cannot tell false from absent. Only keys
	// present in partial are touched.
	base, err := toMap(m.current)
	if err != nil {
		return Settings{}, fmt.Errorf("encoding current settings: %w", err)
	}
	if err := mergo.Map(&base, partial, mergo.WithOverride, mergo.WithOverwriteWithEmptyValue); err != nil {
		return Settings{}, fmt.Errorf("merging settings: %w", err)
	}

	merged, err := fromMap(base)
	if err != nil {
		return Settings{}, fmt.Errorf("invalid settings update: %w", err)
	}
	if err := validate(merged); err != nil {
		return Settings{}, err
	}
	merged.LastUpdated = time.Now()

	m.current = merged
	if m.store != nil {
		if err := m.store.SaveSettings(merged); err != nil {
			m.log.Warn().Err(err).Msg("failed to persist settings, continuing in memory")
		}
	}
	m.log.Info().Str("preferredProvider", merged.PreferredProvider).Bool("autoFallback", merged.AutoFallback).Msg("settings updated")
	return merged, nil
}

func validate(s Settings) error {
	switch s.PreferredProvider {
	case "builtin", "cloud":
		return nil
	default:
		return fmt.Errorf("unknown provider %q: must be \"builtin\" or \"cloud\"", s.PreferredProvider)
	}
}

func toMap(s Settings) (map[string]any, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func fromMap(m map[string]any) (Settings, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return Settings{}, err
	}
	var out Settings
	if err := json.Unmarshal(raw, &out); err != nil {
		return Settings{}, err
	}
	return out, nil
}

// MemoryStore is an in-memory Store for tests and ephemeral runs.
type MemoryStore struct {
	mu    sync.Mutex
	saved *Settings

	// FailSave, when set, makes SaveSettings return this error.
	FailSave error
}

func (s *MemoryStore) LoadSettings() (Settings, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saved == nil {
		return Settings{}, false, nil
	}
	return *s.saved, true, nil
}

func (s *MemoryStore) SaveSettings(v Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailSave != nil {
		return s.FailSave
	}
	s.saved = &v
	return nil
}
