package ai

import "context"

// Provider is the uniform operation surface both backends implement.
// Streaming variants return a channel that terminates with exactly one
// done, error, or cancelled event.
type Provider interface {
	// Name returns the logical provider name ("builtin" or "cloud").
	Name() string

	// IsAvailable probes whether the provider can currently serve calls.
	IsAvailable(ctx context.Context) bool

	// Features reports which operations this provider supports.
	Features() Features

	CheckGrammar(ctx context.Context, input GrammarInput) ([]GrammarCorrection, error)
	Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error)

	Summarize(ctx context.Context, content string, opts SummarizeOptions) (string, error)
	SummarizeStream(ctx context.Context, content string, opts SummarizeOptions) (<-chan StreamEvent, error)

	Rewrite(ctx context.Context, text string, opts RewriteOptions) (string, error)
	RewriteStream(ctx context.Context, text string, opts RewriteOptions) (<-chan StreamEvent, error)

	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)
	GenerateStream(ctx context.Context, prompt string, opts GenerateOptions) (<-chan StreamEvent, error)

	// CreateChatSession returns an opaque session id for multi-turn prompting.
	CreateChatSession(ctx context.Context, opts ChatOptions) (string, error)
	Prompt(ctx context.Context, sessionID, input string) (string, error)
	PromptStream(ctx context.Context, sessionID, input string) (<-chan StreamEvent, error)
	PromptWithMedia(ctx context.Context, sessionID string, media MediaInput, followUp string) (string, error)
	PromptWithMediaStream(ctx context.Context, sessionID string, media MediaInput, followUp string) (<-chan StreamEvent, error)
	DestroySession(sessionID string) error

	// SessionHistory returns a copy of the session's turns.
	SessionHistory(sessionID string) ([]Turn, error)

	// ClearCache drops all memoized operation results.
	ClearCache()

	// Cleanup releases all sessions and handles.
	Cleanup()
}
