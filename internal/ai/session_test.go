package ai

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DasMonkey/mindly-core/internal/logging"
)

func TestSessionReuseByFingerprint(t *testing.T) {
	m := NewSessionManager(ProviderBuiltin, logging.Silent())

	created := 0
	create := func() (any, error) {
		created++
		return "handle", nil
	}

	fp := Fingerprint(RuntimeSessionConfig{Capability: CapTranslator, SourceLanguage: "en", TargetLanguage: "es"})

	first, reused, err := m.GetOrCreate(fp, create)
	require.NoError(t, err)
	assert.False(t, reused)

	second, reused, err := m.GetOrCreate(fp, create)
	require.NoError(t, err)
	assert.True(t, reused)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, created)

	// A different configuration gets its own session.
	other := Fingerprint(RuntimeSessionConfig{Capability: CapTranslator, SourceLanguage: "en", TargetLanguage: "fr"})
	third, reused, err := m.GetOrCreate(other, create)
	require.NoError(t, err)
	assert.False(t, reused)
	assert.NotEqual(t, first.ID, third.ID)
	assert.Equal(t, 2, created)
}

func TestSessionCreateFailureNotCached(t *testing.T) {
	m := NewSessionManager(ProviderBuiltin, logging.Silent())

	attempts := 0
	_, _, err := m.GetOrCreate("fp", func() (any, error) {
		attempts++
		return nil, errors.New("model load failed")
	})
	require.Error(t, err)
	assert.Equal(t, 0, m.Len())

	// A failed construction must not poison the fingerprint slot.
	_, reused, err := m.GetOrCreate("fp", func() (any, error) {
		attempts++
		return "handle", nil
	})
	require.NoError(t, err)
	assert.False(t, reused)
	assert.Equal(t, 2, attempts)
}

func TestSessionDestroyInvalidatesID(t *testing.T) {
	m := NewSessionManager(ProviderCloud, logging.Silent())

	sess, _, err := m.GetOrCreate("fp", func() (any, error) { return "handle", nil })
	require.NoError(t, err)

	released := false
	require.NoError(t, m.Destroy(sess.ID, func(handle any) {
		released = true
		assert.Equal(t, "handle", handle)
	}))
	assert.True(t, released)

	_, err = m.Get(sess.ID)
	require.Error(t, err)
	assert.Equal(t, KindInvalidSession, KindOf(err))

	// Destroying twice is itself an invalid-session error.
	err = m.Destroy(sess.ID, nil)
	assert.Equal(t, KindInvalidSession, KindOf(err))
}

func TestSessionAppendPreservesOrder(t *testing.T) {
	m := NewSessionManager(ProviderBuiltin, logging.Silent())
	sess, _, err := m.GetOrCreate("fp", func() (any, error) { return nil, nil })
	require.NoError(t, err)

	m.Append(sess, Turn{Role: RoleUser, Content: "first"})
	m.Append(sess, Turn{Role: RoleAssistant, Content: "second"})
	m.Append(sess, Turn{Role: RoleUser, Content: "third"})

	require.Len(t, sess.History, 3)
	assert.Equal(t, "first", sess.History[0].Content)
	assert.Equal(t, "second", sess.History[1].Content)
	assert.Equal(t, "third", sess.History[2].Content)
	assert.False(t, sess.History[0].Timestamp.IsZero())
}

type recordingArchive struct {
	created   []string
	turns     []Turn
	destroyed []string
}

func (a *recordingArchive) SessionCreated(provider, id, fingerprint string, created time.Time) {
	a.created = append(a.created, id)
}
func (a *recordingArchive) TurnAppended(id string, t Turn) { a.turns = append(a.turns, t) }
func (a *recordingArchive) SessionDestroyed(id string)     { a.destroyed = append(a.destroyed, id) }

func TestSessionArchiveMirroring(t *testing.T) {
	m := NewSessionManager(ProviderBuiltin, logging.Silent())
	archive := &recordingArchive{}
	m.SetArchive(archive)

	sess, _, err := m.GetOrCreate("fp", func() (any, error) { return nil, nil })
	require.NoError(t, err)
	m.Append(sess, Turn{Role: RoleUser, Content: "hi"})
	require.NoError(t, m.Destroy(sess.ID, nil))

	assert.Equal(t, []string{sess.ID}, archive.created)
	require.Len(t, archive.turns, 1)
	assert.Equal(t, "hi", archive.turns[0].Content)
	assert.Equal(t, []string{sess.ID}, archive.destroyed)
}

func TestSessionDestroyAll(t *testing.T) {
	m := NewSessionManager(ProviderBuiltin, logging.Silent())
	for i := 0; i < 3; i++ {
		_, _, err := m.GetOrCreate(Fingerprint(i), func() (any, error) { return i, nil })
		require.NoError(t, err)
	}
	require.Equal(t, 3, m.Len())

	released := 0
	m.DestroyAll(func(any) { released++ })
	assert.Equal(t, 3, released)
	assert.Equal(t, 0, m.Len())
	assert.Empty(t, m.List())
}
