package ai

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/DasMonkey/mindly-core/internal/logging"
)

// Session is a stateful handle to a configured operation context. Sessions
// are keyed by a fingerprint of their effective configuration so identical
// configurations reuse the existing session instead of constructing a new
// one (construction may trigger multi-hundred-MB model downloads).
type Session struct {
	ID          string
	Fingerprint string
	Handle      any
	Created     time.Time
	LastUsed    time.Time
	UsageCount  int
	History     []Turn

	// Serializes calls against one session id; the underlying capability
	// handle is not guaranteed safe for concurrent invocation.
	mu sync.Mutex
}

// ReleaseFunc releases the underlying capability handle of a session.
type ReleaseFunc func(handle any)

// SessionArchive mirrors session lifecycle events to durable storage.
// Implementations must not fail the caller; they log and continue.
type SessionArchive interface {
	SessionCreated(provider, id, fingerprint string, created time.Time)
	TurnAppended(id string, t Turn)
	SessionDestroyed(id string)
}

// SessionManager owns a provider's session table. Each provider instance
// holds exactly one; no external collaborator mutates it directly.
type SessionManager struct {
	provider string
	log      *logging.Logger

	mu            sync.RWMutex
	sessions      map[string]*Session
	byFingerprint map[string]string
	archive       SessionArchive
}

// NewSessionManager creates an empty session table for the named provider.
func NewSessionManager(provider string, log *logging.Logger) *SessionManager {
	return &SessionManager{
		provider:      provider,
		log:           log.Sub(provider + ".sessions"),
		sessions:      make(map[string]*Session),
		byFingerprint: make(map[string]string),
	}
}

// SetArchive attaches a durable mirror for session history.
func (m *SessionManager) SetArchive(a SessionArchive) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.archive = a
}

// GetOrCreate returns the session for fingerprint, creating one with the
// given constructor if none exists. The second return value reports reuse.
func (m *SessionManager) GetOrCreate(fingerprint string, create func() (any, error)) (*Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.byFingerprint[fingerprint]; ok {
		if sess, ok := m.sessions[id]; ok {
			return sess, true, nil
		}
	}

	handle, err := create()
	if err != nil {
		return nil, false, err
	}

	sess := &Session{
		ID:          uuid.New().String(),
		Fingerprint: fingerprint,
		Handle:      handle,
		Created:     time.Now(),
		LastUsed:    time.Now(),
	}
	m.sessions[sess.ID] = sess
	m.byFingerprint[fingerprint] = sess.ID

	m.log.Debug().Str("session", sess.ID).Msg("session created")
	if m.archive != nil {
		m.archive.SessionCreated(m.provider, sess.ID, fingerprint, sess.Created)
	}
	return sess, false, nil
}

// Get returns the session for id. A destroyed or unknown id yields an
// invalid_session error; destroyed ids are never reused.
func (m *SessionManager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if sess, ok := m.sessions[id]; ok {
		return sess, nil
	}
	return nil, NewError(KindInvalidSession, m.provider, "invalid or expired session: "+id)
}

// Touch records a use of the session. Call with the session lock held.
func (m *SessionManager) Touch(s *Session) {
	s.LastUsed = time.Now()
	s.UsageCount++
}

// Append adds a turn to the session history, in strict call order, and
// mirrors it to the archive. Call with the session lock held.
func (m *SessionManager) Append(s *Session, t Turn) {
	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now()
	}
	s.History = append(s.History, t)

	m.mu.RLock()
	archive := m.archive
	m.mu.RUnlock()
	if archive != nil {
		archive.TurnAppended(s.ID, t)
	}
}

// Destroy releases the session's handle and removes it from the table.
func (m *SessionManager) Destroy(id string, release ReleaseFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[id]
	if !ok {
		return NewError(KindInvalidSession, m.provider, "invalid or expired session: "+id)
	}
	delete(m.sessions, id)
	delete(m.byFingerprint, sess.Fingerprint)

	if release != nil {
		release(sess.Handle)
	}
	m.log.Debug().Str("session", id).Msg("session destroyed")
	if m.archive != nil {
		m.archive.SessionDestroyed(id)
	}
	return nil
}

// DestroyAll releases every session. Used by provider cleanup.
func (m *SessionManager) DestroyAll(release ReleaseFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, sess := range m.sessions {
		if release != nil {
			release(sess.Handle)
		}
		if m.archive != nil {
			m.archive.SessionDestroyed(id)
		}
		delete(m.sessions, id)
	}
	m.byFingerprint = make(map[string]string)
}

// List returns all live session ids.
func (m *SessionManager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Len returns the number of live sessions.
func (m *SessionManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
