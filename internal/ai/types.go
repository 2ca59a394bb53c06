// Package ai defines the uniform AI operation surface and its two capability
// providers: a local on-device model runtime and a cloud generative-text API.
//
// Both providers implement the same Provider interface with different backing
// mechanics (capability negotiation and session pooling for the local runtime,
// HTTP request construction and response parsing for the cloud one). The
// router in internal/router sits above them and owns selection and failover.
package ai

import "time"

// Role constants for conversation turns.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Logical provider names. The registration mapping is closed over this set.
const (
	ProviderBuiltin = "builtin"
	ProviderCloud   = "cloud"
)

// Capability names exposed by the local runtime. Each has its own
// availability and download lifecycle.
const (
	CapProofreader = "proofreader"
	CapTranslator  = "translator"
	CapSummarizer  = "summarizer"
	CapRewriter    = "rewriter"
	CapWriter      = "writer"
	CapPrompt      = "languageModel"
)

// Availability is the download-lifecycle state of a single capability.
type Availability string

const (
	Available    Availability = "available"
	Downloadable Availability = "downloadable"
	Downloading  Availability = "downloading"
	Unavailable  Availability = "unavailable"
)

// CapabilityStatus is a per-capability probe record. Mutated only by the
// owning provider's probe routine.
type CapabilityStatus struct {
	Supported    bool         `json:"supported"`
	Availability Availability `json:"availability"`
	LastChecked  time.Time    `json:"lastChecked"`
	Error        string       `json:"error,omitempty"`
}

// Features advertises which operations a provider actually supports.
type Features struct {
	Grammar       bool `json:"grammar"`
	Translation   bool `json:"translation"`
	Summarization bool `json:"summarization"`
	Rewriting     bool `json:"rewriting"`
	Generation    bool `json:"generation"`
	Chat          bool `json:"chat"`
}

// GrammarCorrection is one entry in a grammar-check result.
// Type is "grammar" or "spelling".
type GrammarCorrection struct {
	Error      string `json:"error"`
	Correction string `json:"correction"`
	Type       string `json:"type"`
	Message    string `json:"message"`
}

// SummarizeOptions configure a summarization call.
type SummarizeOptions struct {
	Type          string `json:"type,omitempty"`   // key-points | tldr | teaser | headline
	Format        string `json:"format,omitempty"` // markdown | plain-text
	Length        string `json:"length,omitempty"` // short | medium | long
	SharedContext string `json:"sharedContext,omitempty"`
}

// RewriteOptions configure a rewrite call.
type RewriteOptions struct {
	Tone          string `json:"tone,omitempty"`   // as-is | more-formal | more-casual
	Length        string `json:"length,omitempty"` // as-is | shorter | longer
	SharedContext string `json:"sharedContext,omitempty"`
}

// GenerateOptions configure an open-ended writing call.
type GenerateOptions struct {
	Tone   string `json:"tone,omitempty"`   // formal | neutral | casual
	Format string `json:"format,omitempty"` // markdown | plain-text
	Length string `json:"length,omitempty"` // short | medium | long
}

// ChatOptions configure a new prompt session. Temperature and TopK are
// clamped by the provider to the runtime's reported maxima.
type ChatOptions struct {
	System      string   `json:"system,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	TopK        *int     `json:"topK,omitempty"`
}

// Turn is one role-tagged entry in a session's history.
type Turn struct {
	Role      string      `json:"role"`
	Content   string      `json:"content"`
	Media     []MediaPart `json:"media,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// MediaPart is a normalized binary payload attached to a turn.
type MediaPart struct {
	Kind string `json:"kind"` // "image" | "audio"
	MIME string `json:"mime"`
	Data []byte `json:"data"`
}

// ChunkFunc receives the accumulated-so-far text after each streamed delta.
type ChunkFunc func(accumulated string)
