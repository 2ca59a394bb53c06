// Package router owns provider selection: it routes every operation to the
// active provider, fails over to the other one when a retryable failure
// occurs, and wraps outcomes in a uniform result envelope.
package router

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/DasMonkey/mindly-core/internal/ai"
	"github.com/DasMonkey/mindly-core/internal/logging"
	"github.com/DasMonkey/mindly-core/internal/settings"
)

// Metadata annotates every result envelope.
type Metadata struct {
	ProcessingMS int64 `json:"processingTimeMs"`
	Cached       bool  `json:"cached"`
	Fallback     bool  `json:"usedFallback"`
}

// Result is the uniform envelope for every routed operation. Data holds the
// operation-specific payload; Error is set iff Success is false.
type Result struct {
	Success  bool      `json:"success"`
	Provider string    `json:"provider"`
	Data     any       `json:"data,omitempty"`
	Error    *ai.Error `json:"error,omitempty"`
	Metadata Metadata  `json:"metadata"`
}

// ProviderStatus is one row of the status report.
type ProviderStatus struct {
	Name      string      `json:"name"`
	Available bool        `json:"available"`
	Active    bool        `json:"active"`
	Features  ai.Features `json:"features"`
}

// Manager routes operations across the registered providers. Registration is
// add-only; providers are never swapped or removed at runtime.
type Manager struct {
	settings *settings.Manager
	log      *logging.Logger

	mu        sync.Mutex
	providers map[string]ai.Provider
	order     []string
	active    string
	cache     *ai.ResultCache

	// sessionOwner pins each session id to the provider that created it, so
	// session calls never migrate mid-conversation.
	sessionOwner map[string]string
}

// New creates a manager with no providers registered.
func New(s *settings.Manager, log *logging.Logger) *Manager {
	return &Manager{
		settings:     s,
		log:          log.Sub("router"),
		providers:    make(map[string]ai.Provider),
		cache:        ai.NewResultCache(ai.CacheTTL),
		sessionOwner: make(map[string]string),
	}
}

// Register adds a provider. Registering a duplicate name is a registration
// error; the existing provider stays in place.
func (m *Manager) Register(p ai.Provider) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := p.Name()
	if _, ok := m.providers[name]; ok {
		return ai.NewError(ai.KindRegistration, name, "provider already registered")
	}
	m.providers[name] = p
	m.order = append(m.order, name)
	m.log.Info().Str("provider", name).Msg("provider registered")
	return nil
}

// activeProvider resolves the provider to route to, selecting one first if
// none is active yet: the preferred provider is probed and then chosen
// regardless of what the probe said; only an unregistered preference falls
// through to the other.
func (m *Manager) activeProvider(ctx context.Context) (ai.Provider, error) {
	m.mu.Lock()
	if m.active != "" {
		p := m.providers[m.active]
		m.mu.Unlock()
		return p, nil
	}
	if len(m.order) == 0 {
		m.mu.Unlock()
		return nil, ai.NewError(ai.KindRegistration, "", "no providers registered")
	}

	preferred := m.settings.Get().PreferredProvider
	if _, ok := m.providers[preferred]; !ok {
		preferred = m.order[0]
	}
	p := m.providers[preferred]
	m.active = preferred
	m.mu.Unlock()

	// The probe outcome does not change the selection, but it primes the
	// provider's capability state before the first operation runs.
	p.IsAvailable(ctx)
	m.log.Info().Str("provider", preferred).Msg("provider selected")
	return p, nil
}

// Active returns the currently selected provider name ("" before first use).
func (m *Manager) Active() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// otherProvider returns the fallback candidate for name, if any.
func (m *Manager) otherProvider(name string) (ai.Provider, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.order {
		if n != name {
			return m.providers[n], true
		}
	}
	return nil, false
}

// fallbackEligible reports whether a failure may trigger failover. Misuse
// (bad registration, dead session id), deliberate cancellation, and failures
// after streamed output already reached the caller must not silently switch
// providers.
func fallbackEligible(err error) bool {
	var mid *midStreamError
	if errors.As(err, &mid) {
		return false
	}
	switch ai.KindOf(err) {
	case ai.KindRegistration, ai.KindInvalidSession, ai.KindCancelled:
		return false
	}
	return true
}

// do routes one operation with the failover protocol: on a retryable failure
// with auto-fallback enabled, the other provider is tried once and, on
// success, stays active for subsequent calls. When both fail the error of
// the originally selected provider is returned.
func (m *Manager) do(ctx context.Context, op string, cacheArgs []any, call func(p ai.Provider) (any, error)) (Result, error) {
	start := time.Now()

	p, err := m.activeProvider(ctx)
	if err != nil {
		return m.failure(p, err, start, false), err
	}

	if cacheArgs != nil {
		key := ai.CacheKey(p.Name(), op, cacheArgs...)
		if v, ok := m.cache.Get(key); ok {
			r := m.success(p.Name(), v, start, false)
			r.Metadata.Cached = true
			return r, nil
		}
	}

	out, err := call(p)
	if err == nil {
		m.remember(p.Name(), op, cacheArgs, out)
		return m.success(p.Name(), out, start, false), nil
	}

	if !fallbackEligible(err) || !m.settings.Get().AutoFallback {
		err = unwrapMidStream(err)
		return m.failure(p, err, start, false), err
	}
	alt, ok := m.otherProvider(p.Name())
	if !ok {
		return m.failure(p, err, start, false), err
	}

	m.log.Warn().Err(err).Str("from", p.Name()).Str("to", alt.Name()).Str("op", op).Msg("provider failed, attempting fallback")

	out, altErr := call(alt)
	if altErr != nil {
		// Report the originally selected provider's failure, not the
		// fallback's.
		m.log.Error().Err(altErr).Str("provider", alt.Name()).Str("op", op).Msg("fallback also failed")
		return m.failure(p, err, start, true), err
	}

	// Sticky: the fallback provider stays active until changed explicitly.
	m.mu.Lock()
	m.active = alt.Name()
	m.mu.Unlock()
	m.log.Info().Str("provider", alt.Name()).Msg("failover complete, provider switched")

	m.remember(alt.Name(), op, cacheArgs, out)
	r := m.success(alt.Name(), out, start, true)
	return r, nil
}

func (m *Manager) remember(provider, op string, cacheArgs []any, out any) {
	if cacheArgs != nil {
		m.cache.Put(ai.CacheKey(provider, op, cacheArgs...), out)
	}
}

func (m *Manager) success(provider string, data any, start time.Time, fallback bool) Result {
	return Result{
		Success:  true,
		Provider: provider,
		Data:     data,
		Metadata: Metadata{ProcessingMS: time.Since(start).Milliseconds(), Fallback: fallback},
	}
}

func (m *Manager) failure(p ai.Provider, err error, start time.Time, fallbackTried bool) Result {
	name := ""
	if p != nil {
		name = p.Name()
	}
	var e *ai.Error
	if !errors.As(err, &e) {
		e = ai.WrapError(ai.KindPromptFailed, name, err.Error(), err)
	}
	return Result{
		Provider: name,
		Error:    e,
		Metadata: Metadata{ProcessingMS: time.Since(start).Milliseconds(), Fallback: fallbackTried},
	}
}

func (m *Manager) CheckGrammar(ctx context.Context, input ai.GrammarInput) (Result, error) {
	return m.do(ctx, "checkGrammar", []any{input}, func(p ai.Provider) (any, error) {
		return p.CheckGrammar(ctx, input)
	})
}

func (m *Manager) Translate(ctx context.Context, text, sourceLang, targetLang string) (Result, error) {
	return m.do(ctx, "translateText", []any{text, sourceLang, targetLang}, func(p ai.Provider) (any, error) {
		return p.Translate(ctx, text, sourceLang, targetLang)
	})
}

func (m *Manager) Summarize(ctx context.Context, content string, opts ai.SummarizeOptions) (Result, error) {
	return m.do(ctx, "summarizeContent", []any{content, opts}, func(p ai.Provider) (any, error) {
		return p.Summarize(ctx, content, opts)
	})
}

func (m *Manager) Rewrite(ctx context.Context, text string, opts ai.RewriteOptions) (Result, error) {
	return m.do(ctx, "rewriteText", []any{text, opts}, func(p ai.Provider) (any, error) {
		return p.Rewrite(ctx, text, opts)
	})
}

func (m *Manager) Generate(ctx context.Context, prompt string, opts ai.GenerateOptions) (Result, error) {
	return m.do(ctx, "generateContent", []any{prompt, opts}, func(p ai.Provider) (any, error) {
		return p.Generate(ctx, prompt, opts)
	})
}

// stream drains a provider stream, forwarding chunks, and reports whether
// any chunk was delivered. Failover is only attempted when the stream
// produced nothing: once chunks reached the caller the conversation cannot
// restart on another provider.
func (m *Manager) stream(onChunk ai.ChunkFunc, open func(p ai.Provider) (<-chan ai.StreamEvent, error)) func(p ai.Provider) (any, error) {
	return func(p ai.Provider) (any, error) {
		ch, err := open(p)
		if err != nil {
			return nil, err
		}
		delivered := false
		out, err := ai.Collect(ch, func(accumulated string) {
			delivered = true
			if onChunk != nil {
				onChunk(accumulated)
			}
		})
		if err != nil && delivered {
			return nil, &midStreamError{err}
		}
		return out, err
	}
}

// midStreamError marks a failure that happened after output reached the
// caller; it is never fallback-eligible.
type midStreamError struct{ err error }

func (e *midStreamError) Error() string { return e.err.Error() }
func (e *midStreamError) Unwrap() error { return e.err }

func unwrapMidStream(err error) error {
	var mid *midStreamError
	if errors.As(err, &mid) {
		return mid.err
	}
	return err
}

// doStream routes a streaming operation. Streaming variants share cache keys
// with their non-streaming twins; a cache hit never opens a provider stream,
// so the stored text is replayed through onChunk before the envelope returns.
func (m *Manager) doStream(ctx context.Context, op string, cacheArgs []any, onChunk ai.ChunkFunc, open func(p ai.Provider) (<-chan ai.StreamEvent, error)) (Result, error) {
	r, err := m.do(ctx, op, cacheArgs, m.stream(onChunk, open))
	if err == nil && r.Metadata.Cached && onChunk != nil {
		if text, ok := r.Data.(string); ok {
			onChunk(text)
		}
	}
	return r, err
}

func (m *Manager) SummarizeStream(ctx context.Context, content string, opts ai.SummarizeOptions, onChunk ai.ChunkFunc) (Result, error) {
	return m.doStream(ctx, "summarizeContent", []any{content, opts}, onChunk, func(p ai.Provider) (<-chan ai.StreamEvent, error) {
		return p.SummarizeStream(ctx, content, opts)
	})
}

func (m *Manager) RewriteStream(ctx context.Context, text string, opts ai.RewriteOptions, onChunk ai.ChunkFunc) (Result, error) {
	return m.doStream(ctx, "rewriteText", []any{text, opts}, onChunk, func(p ai.Provider) (<-chan ai.StreamEvent, error) {
		return p.RewriteStream(ctx, text, opts)
	})
}

func (m *Manager) GenerateStream(ctx context.Context, prompt string, opts ai.GenerateOptions, onChunk ai.ChunkFunc) (Result, error) {
	return m.doStream(ctx, "generateContent", []any{prompt, opts}, onChunk, func(p ai.Provider) (<-chan ai.StreamEvent, error) {
		return p.GenerateStream(ctx, prompt, opts)
	})
}

// CreateChatSession opens a session on the active provider (with failover)
// and pins the returned id to whichever provider created it.
func (m *Manager) CreateChatSession(ctx context.Context, opts ai.ChatOptions) (Result, error) {
	r, err := m.do(ctx, "createSession", nil, func(p ai.Provider) (any, error) {
		return p.CreateChatSession(ctx, opts)
	})
	if err == nil {
		m.mu.Lock()
		m.sessionOwner[r.Data.(string)] = r.Provider
		m.mu.Unlock()
	}
	return r, err
}

// sessionProvider resolves the provider that owns a session id. Session
// calls never fail over: the conversation state lives on one provider.
func (m *Manager) sessionProvider(sessionID string) (ai.Provider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if name, ok := m.sessionOwner[sessionID]; ok {
		return m.providers[name], nil
	}
	return nil, ai.NewError(ai.KindInvalidSession, "", "invalid or expired session: "+sessionID)
}

func (m *Manager) sessionDo(sessionID string, call func(p ai.Provider) (any, error)) (Result, error) {
	start := time.Now()
	p, err := m.sessionProvider(sessionID)
	if err != nil {
		return m.failure(nil, err, start, false), err
	}
	out, err := call(p)
	if err != nil {
		err = unwrapMidStream(err)
		return m.failure(p, err, start, false), err
	}
	return m.success(p.Name(), out, start, false), nil
}

func (m *Manager) Prompt(ctx context.Context, sessionID, input string) (Result, error) {
	return m.sessionDo(sessionID, func(p ai.Provider) (any, error) {
		return p.Prompt(ctx, sessionID, input)
	})
}

func (m *Manager) PromptStream(ctx context.Context, sessionID, input string, onChunk ai.ChunkFunc) (Result, error) {
	return m.sessionDo(sessionID, m.stream(onChunk, func(p ai.Provider) (<-chan ai.StreamEvent, error) {
		return p.PromptStream(ctx, sessionID, input)
	}))
}

func (m *Manager) PromptWithMedia(ctx context.Context, sessionID string, media ai.MediaInput, followUp string) (Result, error) {
	return m.sessionDo(sessionID, func(p ai.Provider) (any, error) {
		return p.PromptWithMedia(ctx, sessionID, media, followUp)
	})
}

func (m *Manager) PromptWithMediaStream(ctx context.Context, sessionID string, media ai.MediaInput, followUp string, onChunk ai.ChunkFunc) (Result, error) {
	return m.sessionDo(sessionID, m.stream(onChunk, func(p ai.Provider) (<-chan ai.StreamEvent, error) {
		return p.PromptWithMediaStream(ctx, sessionID, media, followUp)
	}))
}

func (m *Manager) DestroySession(sessionID string) error {
	p, err := m.sessionProvider(sessionID)
	if err != nil {
		return err
	}
	if err := p.DestroySession(sessionID); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.sessionOwner, sessionID)
	m.mu.Unlock()
	return nil
}

func (m *Manager) SessionHistory(sessionID string) ([]ai.Turn, error) {
	p, err := m.sessionProvider(sessionID)
	if err != nil {
		return nil, err
	}
	return p.SessionHistory(sessionID)
}

// Status reports every registered provider's availability and features.
func (m *Manager) Status(ctx context.Context) []ProviderStatus {
	m.mu.Lock()
	order := append([]string(nil), m.order...)
	active := m.active
	providers := make(map[string]ai.Provider, len(m.providers))
	for k, v := range m.providers {
		providers[k] = v
	}
	m.mu.Unlock()

	out := make([]ProviderStatus, 0, len(order))
	for _, name := range order {
		p := providers[name]
		out = append(out, ProviderStatus{
			Name:      name,
			Available: p.IsAvailable(ctx),
			Active:    name == active,
			Features:  p.Features(),
		})
	}
	return out
}

// SetProvider switches the active provider explicitly. If the chosen
// provider is unavailable the call fails when auto-fallback is disabled;
// with auto-fallback enabled the other provider is activated instead and
// usedFallback reports that. The preference is persisted only on success and
// always records the user's choice, not the fallback.
func (m *Manager) SetProvider(ctx context.Context, name string) (active string, usedFallback bool, err error) {
	m.mu.Lock()
	p, ok := m.providers[name]
	m.mu.Unlock()
	if !ok {
		return "", false, ai.NewError(ai.KindRegistration, name, "unknown provider")
	}

	target := name
	if !p.IsAvailable(ctx) {
		if !m.settings.Get().AutoFallback {
			return "", false, ai.NewError(ai.KindUnavailable, name, "provider unavailable and auto-fallback is disabled")
		}
		if alt, ok := m.otherProvider(name); ok && alt.IsAvailable(ctx) {
			m.log.Warn().Str("requested", name).Str("using", alt.Name()).Msg("requested provider unavailable, falling back")
			target = alt.Name()
			usedFallback = true
		}
	}

	if _, err := m.settings.Update(map[string]any{"preferredProvider": name}); err != nil {
		return "", false, err
	}

	m.mu.Lock()
	m.active = target
	m.mu.Unlock()
	m.log.Info().Str("provider", target).Msg("active provider set")
	return target, usedFallback, nil
}

// UpdateSettings applies a partial settings update and re-runs provider
// selection when the preference changed.
func (m *Manager) UpdateSettings(ctx context.Context, partial map[string]any) (settings.Settings, error) {
	before := m.settings.Get().PreferredProvider
	updated, err := m.settings.Update(partial)
	if err != nil {
		return settings.Settings{}, err
	}
	if updated.PreferredProvider != before {
		if _, _, err := m.SetProvider(ctx, updated.PreferredProvider); err != nil {
			return settings.Settings{}, err
		}
	}
	return updated, nil
}

// Settings returns the current settings document.
func (m *Manager) Settings() settings.Settings {
	return m.settings.Get()
}

// ClearCaches drops the router cache and every provider's internal cache.
func (m *Manager) ClearCaches() {
	m.cache.Clear()
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.providers {
		p.ClearCache()
	}
}

// Cleanup releases every provider's resources.
func (m *Manager) Cleanup() {
	m.mu.Lock()
	providers := make([]ai.Provider, 0, len(m.providers))
	for _, p := range m.providers {
		providers = append(providers, p)
	}
	m.sessionOwner = make(map[string]string)
	m.mu.Unlock()

	for _, p := range providers {
		p.Cleanup()
	}
	m.cache.Clear()
}
