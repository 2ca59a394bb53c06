package settings

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DasMonkey/mindly-core/internal/logging"
)

func TestManagerDefaults(t *testing.T) {
	m := NewManager(&MemoryStore{}, logging.Silent())

	s := m.Get()
	assert.Equal(t, "builtin", s.PreferredProvider)
	assert.True(t, s.AutoFallback)
	assert.Empty(t, s.CloudAPIKey)
}

func TestManagerLoadsPersisted(t *testing.T) {
	store := &MemoryStore{}
	require.NoError(t, store.SaveSettings(Settings{PreferredProvider: "cloud", AutoFallback: false, CloudAPIKey: "k"}))

	m := NewManager(store, logging.Silent())
	s := m.Get()
	assert.Equal(t, "cloud", s.PreferredProvider)
	assert.False(t, s.AutoFallback)
	assert.Equal(t, "k", s.CloudAPIKey)
}

func TestManagerIgnoresCorruptPersisted(t *testing.T) {
	store := &MemoryStore{}
	require.NoError(t, store.SaveSettings(Settings{PreferredProvider: "something-else"}))

	m := NewManager(store, logging.Silent())
	assert.Equal(t, "builtin", m.Get().PreferredProvider)
}

func TestUpdatePartial(t *testing.T) {
	m := NewManager(&MemoryStore{}, logging.Silent())

	s, err := m.Update(map[string]any{"preferredProvider": "cloud"})
	require.NoError(t, err)
	assert.Equal(t, "cloud", s.PreferredProvider)
	// Untouched fields keep their values.
	assert.True(t, s.AutoFallback)
	assert.False(t, s.LastUpdated.IsZero())

	// An explicit false must override, not be ignored as a zero value.
	s, err = m.Update(map[string]any{"autoFallback": false})
	require.NoError(t, err)
	assert.False(t, s.AutoFallback)
	assert.Equal(t, "cloud", s.PreferredProvider)

	// An explicit empty string clears the credential.
	_, err = m.Update(map[string]any{"cloudApiKey": "secret"})
	require.NoError(t, err)
	s, err = m.Update(map[string]any{"cloudApiKey": ""})
	require.NoError(t, err)
	assert.Empty(t, s.CloudAPIKey)
}

func TestUpdateRejectsUnknownProvider(t *testing.T) {
	m := NewManager(&MemoryStore{}, logging.Silent())

	_, err := m.Update(map[string]any{"preferredProvider": "gpt"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown provider "gpt"`)

	// The rejected update must not partially apply.
	assert.Equal(t, "builtin", m.Get().PreferredProvider)
}

func TestUpdatePersists(t *testing.T) {
	store := &MemoryStore{}
	m := NewManager(store, logging.Silent())

	_, err := m.Update(map[string]any{"preferredProvider": "cloud"})
	require.NoError(t, err)

	saved, found, err := store.LoadSettings()
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "cloud", saved.PreferredProvider)
}

func TestUpdateSurvivesPersistenceFailure(t *testing.T) {
	store := &MemoryStore{FailSave: errors.New("disk full")}
	m := NewManager(store, logging.Silent())

	s, err := m.Update(map[string]any{"preferredProvider": "cloud"})
	require.NoError(t, err)
	assert.Equal(t, "cloud", s.PreferredProvider)
	assert.Equal(t, "cloud", m.Get().PreferredProvider)
}
