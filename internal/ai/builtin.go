package ai

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/DasMonkey/mindly-core/internal/logging"
)

// BuiltinProvider serves every operation through the local on-device runtime.
// Each capability has its own availability and download lifecycle; the
// provider is usable overall if any capability is available or downloadable.
type BuiltinProvider struct {
	runtime  Runtime
	client   *http.Client
	log      *logging.Logger
	cache    *ResultCache
	sessions *SessionManager

	mu       sync.Mutex
	probed   bool
	status   map[string]CapabilityStatus
	progress map[string]float64
}

// NewBuiltinProvider wraps the given runtime.
func NewBuiltinProvider(rt Runtime, log *logging.Logger) *BuiltinProvider {
	return &BuiltinProvider{
		runtime:  rt,
		client:   &http.Client{Timeout: 60 * time.Second},
		log:      log.Sub("builtin"),
		cache:    NewResultCache(CacheTTL),
		sessions: NewSessionManager(ProviderBuiltin, log),
		status:   make(map[string]CapabilityStatus),
		progress: make(map[string]float64),
	}
}

// SetArchive attaches a durable mirror for chat history.
func (p *BuiltinProvider) SetArchive(a SessionArchive) { p.sessions.SetArchive(a) }

func (p *BuiltinProvider) Name() string { return ProviderBuiltin }

// Probe checks every capability and caches the result until the next
// explicit probe. It is never re-run on a timer.
func (p *BuiltinProvider) Probe(ctx context.Context) map[string]CapabilityStatus {
	statuses := make(map[string]CapabilityStatus, len(allCapabilities))
	for _, cap := range allCapabilities {
		st := CapabilityStatus{Supported: true, LastChecked: time.Now()}
		avail, err := p.runtime.CapabilityAvailability(ctx, cap)
		if err != nil {
			st.Supported = false
			st.Availability = Unavailable
			st.Error = err.Error()
		} else {
			st.Availability = avail
		}
		statuses[cap] = st
	}

	p.mu.Lock()
	p.probed = true
	p.status = statuses
	p.mu.Unlock()

	out := make(map[string]CapabilityStatus, len(statuses))
	for k, v := range statuses {
		out[k] = v
	}
	return out
}

// IsAvailable reports whether any capability is available or downloadable,
// probing first if no probe has run yet.
func (p *BuiltinProvider) IsAvailable(ctx context.Context) bool {
	p.mu.Lock()
	probed := p.probed
	p.mu.Unlock()
	if !probed {
		p.Probe(ctx)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, st := range p.status {
		if st.Availability == Available || st.Availability == Downloadable {
			return true
		}
	}
	return false
}

// Features derives operation support from the last probe. Before any probe
// has run the provider optimistically advertises everything.
func (p *BuiltinProvider) Features() Features {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.probed {
		return Features{Grammar: true, Translation: true, Summarization: true, Rewriting: true, Generation: true, Chat: true}
	}
	usable := func(cap string) bool {
		st := p.status[cap]
		return st.Availability == Available || st.Availability == Downloadable || st.Availability == Downloading
	}
	return Features{
		Grammar:       usable(CapProofreader) || usable(CapPrompt),
		Translation:   usable(CapTranslator),
		Summarization: usable(CapSummarizer),
		Rewriting:     usable(CapRewriter),
		Generation:    usable(CapWriter),
		Chat:          usable(CapPrompt),
	}
}

// DownloadProgress returns the latest reported fractional progress (0..1)
// for a capability's model download.
func (p *BuiltinProvider) DownloadProgress(capability string) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.progress[capability]
}

func (p *BuiltinProvider) recordProgress(capability string, fraction float64) {
	p.mu.Lock()
	p.progress[capability] = fraction
	if st, ok := p.status[capability]; ok {
		if fraction < 1 {
			st.Availability = Downloading
		} else {
			st.Availability = Available
		}
		p.status[capability] = st
	}
	p.mu.Unlock()
}

// capabilitySession resolves the pooled session for an effective
// configuration, creating (and possibly downloading) on first use.
func (p *BuiltinProvider) capabilitySession(ctx context.Context, cfg RuntimeSessionConfig) (*Session, error) {
	return p.fingerprintSession(ctx, Fingerprint(cfg), cfg)
}

func (p *BuiltinProvider) fingerprintSession(ctx context.Context, fp string, cfg RuntimeSessionConfig) (*Session, error) {
	sess, reused, err := p.sessions.GetOrCreate(fp, func() (any, error) {
		rs, err := p.runtime.CreateSession(ctx, cfg, p.recordProgress)
		if err != nil {
			if errors.Is(err, ErrDownloadFailed) {
				return nil, classify(KindDownloadFailed, ProviderBuiltin, "capability download failed", err)
			}
			return nil, classify(KindSessionCreation, ProviderBuiltin, "failed to create "+cfg.Capability+" session", err)
		}
		return rs, nil
	})
	if err != nil {
		return nil, err
	}
	if reused {
		p.log.Debug().Str("capability", cfg.Capability).Str("session", sess.ID).Msg("reusing pooled session")
	}
	return sess, nil
}

// invokeOnce runs a single-turn invocation against a pooled capability
// session, serialized per session.
func (p *BuiltinProvider) invokeOnce(ctx context.Context, cfg RuntimeSessionConfig, text string) (string, error) {
	sess, err := p.capabilitySession(ctx, cfg)
	if err != nil {
		return "", err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	p.sessions.Touch(sess)

	rs := sess.Handle.(RuntimeSession)
	out, err := rs.Invoke(ctx, []Turn{{Role: RoleUser, Content: text, Timestamp: time.Now()}})
	if err != nil {
		return "", classify(KindPromptFailed, ProviderBuiltin, cfg.Capability+" invocation failed", err)
	}
	return out, nil
}

func (p *BuiltinProvider) streamOnce(ctx context.Context, cfg RuntimeSessionConfig, text string) (<-chan StreamEvent, error) {
	sess, err := p.capabilitySession(ctx, cfg)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	p.sessions.Touch(sess)
	rs := sess.Handle.(RuntimeSession)

	in, err := rs.InvokeStream(ctx, []Turn{{Role: RoleUser, Content: text, Timestamp: time.Now()}})
	if err != nil {
		sess.mu.Unlock()
		return nil, classify(KindStreaming, ProviderBuiltin, cfg.Capability+" stream failed", err)
	}

	out := make(chan StreamEvent)
	go func() {
		defer sess.mu.Unlock()
		defer close(out)
		for ev := range in {
			out <- ev
		}
	}()
	return out, nil
}

// CheckGrammar proofreads raw text through the proofreading capability. A
// prepared instructional prompt is routed to the open-ended prompting
// capability instead.
func (p *BuiltinProvider) CheckGrammar(ctx context.Context, input GrammarInput) ([]GrammarCorrection, error) {
	key := CacheKey(ProviderBuiltin, "checkGrammar", input)
	if v, ok := p.cache.Get(key); ok {
		return v.([]GrammarCorrection), nil
	}

	cfg := RuntimeSessionConfig{Capability: CapProofreader}
	if input.Prepared {
		cfg = RuntimeSessionConfig{Capability: CapPrompt}
	}

	out, err := p.invokeOnce(ctx, cfg, input.Text)
	if err != nil {
		return nil, err
	}

	corrections := ParseCorrections(out)
	p.cache.Put(key, corrections)
	return corrections, nil
}

func (p *BuiltinProvider) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	key := CacheKey(ProviderBuiltin, "translateText", text, sourceLang, targetLang)
	if v, ok := p.cache.Get(key); ok {
		return v.(string), nil
	}

	cfg := RuntimeSessionConfig{
		Capability:     CapTranslator,
		SourceLanguage: sourceLang,
		TargetLanguage: targetLang,
	}
	out, err := p.invokeOnce(ctx, cfg, text)
	if err != nil {
		return "", err
	}
	p.cache.Put(key, out)
	return out, nil
}

func summarizerConfig(opts SummarizeOptions) RuntimeSessionConfig {
	return RuntimeSessionConfig{
		Capability: CapSummarizer,
		Options: map[string]string{
			"type":          defaultString(opts.Type, "key-points"),
			"format":        defaultString(opts.Format, "markdown"),
			"length":        defaultString(opts.Length, "medium"),
			"sharedContext": opts.SharedContext,
		},
	}
}

func (p *BuiltinProvider) Summarize(ctx context.Context, content string, opts SummarizeOptions) (string, error) {
	key := CacheKey(ProviderBuiltin, "summarizeContent", content, opts)
	if v, ok := p.cache.Get(key); ok {
		return v.(string), nil
	}
	out, err := p.invokeOnce(ctx, summarizerConfig(opts), content)
	if err != nil {
		return "", err
	}
	p.cache.Put(key, out)
	return out, nil
}

func (p *BuiltinProvider) SummarizeStream(ctx context.Context, content string, opts SummarizeOptions) (<-chan StreamEvent, error) {
	return p.streamOnce(ctx, summarizerConfig(opts), content)
}

func rewriterConfig(opts RewriteOptions) RuntimeSessionConfig {
	return RuntimeSessionConfig{
		Capability: CapRewriter,
		Options: map[string]string{
			"tone":          defaultString(opts.Tone, "as-is"),
			"length":        defaultString(opts.Length, "as-is"),
			"sharedContext": opts.SharedContext,
		},
	}
}

func (p *BuiltinProvider) Rewrite(ctx context.Context, text string, opts RewriteOptions) (string, error) {
	key := CacheKey(ProviderBuiltin, "rewriteText", text, opts)
	if v, ok := p.cache.Get(key); ok {
		return v.(string), nil
	}
	out, err := p.invokeOnce(ctx, rewriterConfig(opts), text)
	if err != nil {
		return "", err
	}
	p.cache.Put(key, out)
	return out, nil
}

func (p *BuiltinProvider) RewriteStream(ctx context.Context, text string, opts RewriteOptions) (<-chan StreamEvent, error) {
	return p.streamOnce(ctx, rewriterConfig(opts), text)
}

func writerConfig(opts GenerateOptions) RuntimeSessionConfig {
	return RuntimeSessionConfig{
		Capability: CapWriter,
		Options: map[string]string{
			"tone":   defaultString(opts.Tone, "neutral"),
			"format": defaultString(opts.Format, "markdown"),
			"length": defaultString(opts.Length, "medium"),
		},
	}
}

func (p *BuiltinProvider) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	key := CacheKey(ProviderBuiltin, "generateContent", prompt, opts)
	if v, ok := p.cache.Get(key); ok {
		return v.(string), nil
	}
	out, err := p.invokeOnce(ctx, writerConfig(opts), prompt)
	if err != nil {
		return "", err
	}
	p.cache.Put(key, out)
	return out, nil
}

func (p *BuiltinProvider) GenerateStream(ctx context.Context, prompt string, opts GenerateOptions) (<-chan StreamEvent, error) {
	return p.streamOnce(ctx, writerConfig(opts), prompt)
}

// CreateChatSession creates a fresh multi-turn prompt session. Sampling
// parameters are clamped to the runtime's reported maxima; out-of-range
// values never reach the runtime.
func (p *BuiltinProvider) CreateChatSession(ctx context.Context, opts ChatOptions) (string, error) {
	params, err := p.runtime.Params(ctx)
	if err != nil {
		p.log.Debug().Err(err).Msg("params query failed, using defaults")
		params = DefaultRuntimeParams
	}

	temperature := params.DefaultTemperature
	if opts.Temperature != nil {
		temperature = clampFloat(*opts.Temperature, 0, params.MaxTemperature)
	}
	topK := params.DefaultTopK
	if opts.TopK != nil {
		topK = clampInt(*opts.TopK, 0, params.MaxTopK)
	}

	cfg := RuntimeSessionConfig{
		Capability:  CapPrompt,
		System:      opts.System,
		Temperature: temperature,
		TopK:        topK,
	}

	// Chat sessions carry conversation state, so identical configurations
	// must still get distinct sessions. A nonce keeps the fingerprint unique.
	fp := Fingerprint(cfg, uuid.New().String())
	sess, err := p.fingerprintSession(ctx, fp, cfg)
	if err != nil {
		return "", err
	}
	return sess.ID, nil
}

func (p *BuiltinProvider) Prompt(ctx context.Context, sessionID, input string) (string, error) {
	sess, err := p.sessions.Get(sessionID)
	if err != nil {
		return "", err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	p.sessions.Touch(sess)
	p.sessions.Append(sess, Turn{Role: RoleUser, Content: input})

	rs := sess.Handle.(RuntimeSession)
	out, err := rs.Invoke(ctx, sess.History)
	if err != nil {
		return "", classify(KindPromptFailed, ProviderBuiltin, "prompt execution failed", err)
	}
	p.sessions.Append(sess, Turn{Role: RoleAssistant, Content: out})
	return out, nil
}

func (p *BuiltinProvider) PromptStream(ctx context.Context, sessionID, input string) (<-chan StreamEvent, error) {
	sess, err := p.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	return p.streamSession(ctx, sess, Turn{Role: RoleUser, Content: input})
}

// streamSession appends the user turns and streams the reply while holding
// the session lock. On cancellation the partial reply is recorded iff at
// least one chunk was received, so history never holds an inconsistent turn.
func (p *BuiltinProvider) streamSession(ctx context.Context, sess *Session, turns ...Turn) (<-chan StreamEvent, error) {
	sess.mu.Lock()
	p.sessions.Touch(sess)
	for _, t := range turns {
		p.sessions.Append(sess, t)
	}

	rs := sess.Handle.(RuntimeSession)
	in, err := rs.InvokeStream(ctx, sess.History)
	if err != nil {
		sess.mu.Unlock()
		return nil, classify(KindStreaming, ProviderBuiltin, "prompt stream failed", err)
	}

	out := make(chan StreamEvent)
	go func() {
		defer sess.mu.Unlock()
		defer close(out)

		var accumulated string
		for ev := range in {
			switch ev.Type {
			case EventDelta:
				accumulated = ev.Accumulated
			case EventDone:
				p.sessions.Append(sess, Turn{Role: RoleAssistant, Content: ev.Result})
			case EventCancelled:
				if accumulated != "" {
					p.sessions.Append(sess, Turn{Role: RoleAssistant, Content: accumulated})
				}
			}
			out <- ev
		}
	}()
	return out, nil
}

// PromptWithMedia follows the three-step multimodal protocol: normalize the
// input, append a structured media turn, then issue a follow-up prompt to
// retrieve the reply.
func (p *BuiltinProvider) PromptWithMedia(ctx context.Context, sessionID string, media MediaInput, followUp string) (string, error) {
	sess, err := p.sessions.Get(sessionID)
	if err != nil {
		return "", err
	}

	part, err := normalizeMedia(ctx, p.client, media)
	if err != nil {
		return "", classify(KindPromptFailed, ProviderBuiltin, "media normalization failed", err)
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	p.sessions.Touch(sess)
	p.sessions.Append(sess, Turn{Role: RoleUser, Media: []MediaPart{part}})
	p.sessions.Append(sess, Turn{Role: RoleUser, Content: followUp})

	rs := sess.Handle.(RuntimeSession)
	out, err := rs.Invoke(ctx, sess.History)
	if err != nil {
		return "", classify(KindPromptFailed, ProviderBuiltin, "prompt execution failed", err)
	}
	p.sessions.Append(sess, Turn{Role: RoleAssistant, Content: out})
	return out, nil
}

func (p *BuiltinProvider) PromptWithMediaStream(ctx context.Context, sessionID string, media MediaInput, followUp string) (<-chan StreamEvent, error) {
	sess, err := p.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}

	part, err := normalizeMedia(ctx, p.client, media)
	if err != nil {
		return nil, classify(KindStreaming, ProviderBuiltin, "media normalization failed", err)
	}

	return p.streamSession(ctx, sess,
		Turn{Role: RoleUser, Media: []MediaPart{part}},
		Turn{Role: RoleUser, Content: followUp},
	)
}

func (p *BuiltinProvider) DestroySession(sessionID string) error {
	return p.sessions.Destroy(sessionID, func(handle any) {
		if rs, ok := handle.(RuntimeSession); ok {
			rs.Destroy()
		}
	})
}

func (p *BuiltinProvider) SessionHistory(sessionID string) ([]Turn, error) {
	sess, err := p.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	out := make([]Turn, len(sess.History))
	copy(out, sess.History)
	return out, nil
}

func (p *BuiltinProvider) ClearCache() { p.cache.Clear() }

// Cleanup releases every session and handle.
func (p *BuiltinProvider) Cleanup() {
	p.sessions.DestroyAll(func(handle any) {
		if rs, ok := handle.(RuntimeSession); ok {
			rs.Destroy()
		}
	})
	p.cache.Clear()

	p.mu.Lock()
	p.progress = make(map[string]float64)
	p.mu.Unlock()
}

func defaultString(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func clampFloat(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
