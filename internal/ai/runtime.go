package ai

import (
	"context"
	"errors"
)

// ErrDownloadFailed marks a session-creation failure caused by a model
// download, so it can be classified apart from other creation failures.
var ErrDownloadFailed = errors.New("model download failed")

// RuntimeParams are the sampling limits reported by the local runtime.
type RuntimeParams struct {
	MaxTemperature     float64
	DefaultTemperature float64
	MaxTopK            int
	DefaultTopK        int
}

// DefaultRuntimeParams are used when the runtime's own params query fails.
var DefaultRuntimeParams = RuntimeParams{
	MaxTemperature:     2.0,
	DefaultTemperature: 1.0,
	MaxTopK:            128,
	DefaultTopK:        3,
}

// ProgressFunc receives fractional download progress (0..1) per capability.
type ProgressFunc func(capability string, fraction float64)

// RuntimeSessionConfig is the effective configuration of a runtime session:
// merged caller options plus capability defaults. Its canonical serialization
// is the session-reuse fingerprint.
type RuntimeSessionConfig struct {
	Capability     string            `json:"capability"`
	SourceLanguage string            `json:"sourceLanguage,omitempty"`
	TargetLanguage string            `json:"targetLanguage,omitempty"`
	Options        map[string]string `json:"options,omitempty"`
	System         string            `json:"system,omitempty"`
	Temperature    float64           `json:"temperature,omitempty"`
	TopK           int               `json:"topK,omitempty"`
}

// RuntimeSession is a configured handle into the local runtime.
type RuntimeSession interface {
	// Invoke runs the session over the given turns and returns the reply.
	Invoke(ctx context.Context, turns []Turn) (string, error)

	// InvokeStream runs the session and streams the reply incrementally.
	InvokeStream(ctx context.Context, turns []Turn) (<-chan StreamEvent, error)

	// Destroy releases the handle.
	Destroy()
}

// Runtime is the black-box on-device capability backend the builtin provider
// wraps. Session creation may trigger model downloads reported through the
// progress callback.
type Runtime interface {
	// CapabilityAvailability probes the download-lifecycle state of one
	// named capability.
	CapabilityAvailability(ctx context.Context, capability string) (Availability, error)

	// Params reports the runtime's sampling limits.
	Params(ctx context.Context) (RuntimeParams, error)

	// CreateSession constructs a configured session, downloading the backing
	// model first if necessary.
	CreateSession(ctx context.Context, cfg RuntimeSessionConfig, progress ProgressFunc) (RuntimeSession, error)
}

// allCapabilities is the fixed probe set of the builtin provider.
var allCapabilities = []string{
	CapProofreader, CapTranslator, CapSummarizer, CapRewriter, CapWriter, CapPrompt,
}
