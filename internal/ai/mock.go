package ai

import (
	"context"
	"sync"
)

// MockProvider implements Provider with overridable function fields. Any
// unset field returns a zero value, so tests only stub what they exercise.
type MockProvider struct {
	NameValue string

	IsAvailableFunc       func(ctx context.Context) bool
	FeaturesFunc          func() Features
	CheckGrammarFunc      func(ctx context.Context, input GrammarInput) ([]GrammarCorrection, error)
	TranslateFunc         func(ctx context.Context, text, sourceLang, targetLang string) (string, error)
	SummarizeFunc         func(ctx context.Context, content string, opts SummarizeOptions) (string, error)
	RewriteFunc           func(ctx context.Context, text string, opts RewriteOptions) (string, error)
	GenerateFunc          func(ctx context.Context, prompt string, opts GenerateOptions) (string, error)
	CreateChatSessionFunc func(ctx context.Context, opts ChatOptions) (string, error)
	PromptFunc            func(ctx context.Context, sessionID, input string) (string, error)
	PromptWithMediaFunc   func(ctx context.Context, sessionID string, media MediaInput, followUp string) (string, error)
	DestroySessionFunc    func(sessionID string) error
	SessionHistoryFunc    func(sessionID string) ([]Turn, error)

	mu    sync.Mutex
	calls map[string]int
}

func (m *MockProvider) record(op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = map[string]int{}
	}
	m.calls[op]++
}

// Calls returns how many times the named operation was invoked.
func (m *MockProvider) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

func (m *MockProvider) Name() string {
	if m.NameValue != "" {
		return m.NameValue
	}
	return "mock"
}

func (m *MockProvider) IsAvailable(ctx context.Context) bool {
	m.record("isAvailable")
	if m.IsAvailableFunc != nil {
		return m.IsAvailableFunc(ctx)
	}
	return true
}

func (m *MockProvider) Features() Features {
	if m.FeaturesFunc != nil {
		return m.FeaturesFunc()
	}
	return Features{Grammar: true, Translation: true, Summarization: true, Rewriting: true, Generation: true, Chat: true}
}

func (m *MockProvider) CheckGrammar(ctx context.Context, input GrammarInput) ([]GrammarCorrection, error) {
	m.record("checkGrammar")
	if m.CheckGrammarFunc != nil {
		return m.CheckGrammarFunc(ctx, input)
	}
	return nil, nil
}

func (m *MockProvider) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	m.record("translateText")
	if m.TranslateFunc != nil {
		return m.TranslateFunc(ctx, text, sourceLang, targetLang)
	}
	return "", nil
}

func (m *MockProvider) Summarize(ctx context.Context, content string, opts SummarizeOptions) (string, error) {
	m.record("summarizeContent")
	if m.SummarizeFunc != nil {
		return m.SummarizeFunc(ctx, content, opts)
	}
	return "", nil
}

func (m *MockProvider) SummarizeStream(ctx context.Context, content string, opts SummarizeOptions) (<-chan StreamEvent, error) {
	out, err := m.Summarize(ctx, content, opts)
	if err != nil {
		return nil, err
	}
	return singleEventStream(StreamEvent{Type: EventDone, Result: out}), nil
}

func (m *MockProvider) Rewrite(ctx context.Context, text string, opts RewriteOptions) (string, error) {
	m.record("rewriteText")
	if m.RewriteFunc != nil {
		return m.RewriteFunc(ctx, text, opts)
	}
	return "", nil
}

func (m *MockProvider) RewriteStream(ctx context.Context, text string, opts RewriteOptions) (<-chan StreamEvent, error) {
	out, err := m.Rewrite(ctx, text, opts)
	if err != nil {
		return nil, err
	}
	return singleEventStream(StreamEvent{Type: EventDone, Result: out}), nil
}

func (m *MockProvider) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	m.record("generateContent")
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, prompt, opts)
	}
	return "", nil
}

func (m *MockProvider) GenerateStream(ctx context.Context, prompt string, opts GenerateOptions) (<-chan StreamEvent, error) {
	out, err := m.Generate(ctx, prompt, opts)
	if err != nil {
		return nil, err
	}
	return singleEventStream(StreamEvent{Type: EventDone, Result: out}), nil
}

func (m *MockProvider) CreateChatSession(ctx context.Context, opts ChatOptions) (string, error) {
	m.record("createSession")
	if m.CreateChatSessionFunc != nil {
		return m.CreateChatSessionFunc(ctx, opts)
	}
	return "mock-session", nil
}

func (m *MockProvider) Prompt(ctx context.Context, sessionID, input string) (string, error) {
	m.record("prompt")
	if m.PromptFunc != nil {
		return m.PromptFunc(ctx, sessionID, input)
	}
	return "", nil
}

func (m *MockProvider) PromptStream(ctx context.Context, sessionID, input string) (<-chan StreamEvent, error) {
	out, err := m.Prompt(ctx, sessionID, input)
	if err != nil {
		return nil, err
	}
	return singleEventStream(StreamEvent{Type: EventDone, Result: out}), nil
}

func (m *MockProvider) PromptWithMedia(ctx context.Context, sessionID string, media MediaInput, followUp string) (string, error) {
	m.record("promptWithMedia")
	if m.PromptWithMediaFunc != nil {
		return m.PromptWithMediaFunc(ctx, sessionID, media, followUp)
	}
	return "", nil
}

func (m *MockProvider) PromptWithMediaStream(ctx context.Context, sessionID string, media MediaInput, followUp string) (<-chan StreamEvent, error) {
	out, err := m.PromptWithMedia(ctx, sessionID, media, followUp)
	if err != nil {
		return nil, err
	}
	return singleEventStream(StreamEvent{Type: EventDone, Result: out}), nil
}

func (m *MockProvider) DestroySession(sessionID string) error {
	m.record("destroySession")
	if m.DestroySessionFunc != nil {
		return m.DestroySessionFunc(sessionID)
	}
	return nil
}

func (m *MockProvider) SessionHistory(sessionID string) ([]Turn, error) {
	if m.SessionHistoryFunc != nil {
		return m.SessionHistoryFunc(sessionID)
	}
	return nil, nil
}

func (m *MockProvider) ClearCache() {}

func (m *MockProvider) Cleanup() {}

// MockRuntime implements Runtime with overridable function fields.
type MockRuntime struct {
	AvailabilityFunc  func(ctx context.Context, capability string) (Availability, error)
	ParamsFunc        func(ctx context.Context) (RuntimeParams, error)
	CreateSessionFunc func(ctx context.Context, cfg RuntimeSessionConfig, progress ProgressFunc) (RuntimeSession, error)

	mu       sync.Mutex
	created  int
	lastCfgs []RuntimeSessionConfig
}

func (m *MockRuntime) CapabilityAvailability(ctx context.Context, capability string) (Availability, error) {
	if m.AvailabilityFunc != nil {
		return m.AvailabilityFunc(ctx, capability)
	}
	return Available, nil
}

func (m *MockRuntime) Params(ctx context.Context) (RuntimeParams, error) {
	if m.ParamsFunc != nil {
		return m.ParamsFunc(ctx)
	}
	return DefaultRuntimeParams, nil
}

func (m *MockRuntime) CreateSession(ctx context.Context, cfg RuntimeSessionConfig, progress ProgressFunc) (RuntimeSession, error) {
	m.mu.Lock()
	m.created++
	m.lastCfgs = append(m.lastCfgs, cfg)
	m.mu.Unlock()
	if m.CreateSessionFunc != nil {
		return m.CreateSessionFunc(ctx, cfg, progress)
	}
	return &MockRuntimeSession{}, nil
}

// SessionsCreated reports how many runtime sessions have been opened.
func (m *MockRuntime) SessionsCreated() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.created
}

// SessionConfigs returns the configs passed to CreateSession, in order.
func (m *MockRuntime) SessionConfigs() []RuntimeSessionConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RuntimeSessionConfig, len(m.lastCfgs))
	copy(out, m.lastCfgs)
	return out
}

// MockRuntimeSession implements RuntimeSession with overridable fields.
type MockRuntimeSession struct {
	InvokeFunc       func(ctx context.Context, turns []Turn) (string, error)
	InvokeStreamFunc func(ctx context.Context, turns []Turn) (<-chan StreamEvent, error)
	DestroyFunc      func()
}

func (m *MockRuntimeSession) Invoke(ctx context.Context, turns []Turn) (string, error) {
	if m.InvokeFunc != nil {
		return m.InvokeFunc(ctx, turns)
	}
	return "ok", nil
}

func (m *MockRuntimeSession) InvokeStream(ctx context.Context, turns []Turn) (<-chan StreamEvent, error) {
	if m.InvokeStreamFunc != nil {
		return m.InvokeStreamFunc(ctx, turns)
	}
	out, err := m.Invoke(ctx, turns)
	if err != nil {
		return nil, err
	}
	return singleEventStream(StreamEvent{Type: EventDone, Result: out}), nil
}

func (m *MockRuntimeSession) Destroy() {
	if m.DestroyFunc != nil {
		m.DestroyFunc()
	}
}
