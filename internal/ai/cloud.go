package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/DasMonkey/mindly-core/internal/logging"
)

const (
	defaultCloudBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultCloudModel   = "gemini-2.0-flash"
)

// CloudProvider implements the operation surface against a generative-text
// HTTP endpoint. It has no capability-download lifecycle: it is available
// iff a credential is configured. The endpoint is stateless per call, so
// chat sessions keep their history client-side and replay it each request.
type CloudProvider struct {
	key      func() string
	model    string
	baseURL  string
	client   *http.Client
	log      *logging.Logger
	cache    *ResultCache
	sessions *SessionManager
}

// NewCloudProvider creates a cloud provider. key is consulted on every call
// so credential updates take effect without reconstruction.
func NewCloudProvider(key func() string, model, baseURL string, log *logging.Logger) *CloudProvider {
	if model == "" {
		model = defaultCloudModel
	}
	if baseURL == "" {
		baseURL = defaultCloudBaseURL
	}
	return &CloudProvider{
		key:      key,
		model:    model,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		client:   &http.Client{Timeout: 120 * time.Second},
		log:      log.Sub("cloud"),
		cache:    NewResultCache(CacheTTL),
		sessions: NewSessionManager(ProviderCloud, log),
	}
}

// SetArchive attaches a durable mirror for chat history.
func (c *CloudProvider) SetArchive(a SessionArchive) { c.sessions.SetArchive(a) }

func (c *CloudProvider) Name() string { return ProviderCloud }

// IsAvailable is a pure synchronous check: credential present and non-empty.
func (c *CloudProvider) IsAvailable(ctx context.Context) bool {
	return strings.TrimSpace(c.key()) != ""
}

func (c *CloudProvider) Features() Features {
	ok := strings.TrimSpace(c.key()) != ""
	return Features{Grammar: ok, Translation: ok, Summarization: ok, Rewriting: ok, Generation: ok, Chat: ok}
}

// Wire types for the generative-text endpoint.

type cloudInlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type cloudPart struct {
	Text       string           `json:"text,omitempty"`
	InlineData *cloudInlineData `json:"inlineData,omitempty"`
}

type cloudContent struct {
	Role  string      `json:"role,omitempty"`
	Parts []cloudPart `json:"parts"`
}

type cloudGenerationConfig struct {
	Temperature *float64 `json:"temperature,omitempty"`
	TopK        *int     `json:"topK,omitempty"`
}

type cloudRequest struct {
	Contents          []cloudContent         `json:"contents"`
	SystemInstruction *cloudContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *cloudGenerationConfig `json:"generationConfig,omitempty"`
}

type cloudCandidate struct {
	Content      *cloudContent `json:"content"`
	FinishReason string        `json:"finishReason"`
}

type cloudResponse struct {
	Candidates     []cloudCandidate `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
}

// unwrap extracts the reply text through the fixed candidate→content→
// parts[0]→text path. Each unwrapping step has a distinct failure signal so
// callers can tell a safety block from a malformed response from a
// generation that genuinely produced nothing.
func (c *CloudProvider) unwrap(resp *cloudResponse) (string, error) {
	if len(resp.Candidates) == 0 {
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return "", NewError(KindBlocked, ProviderCloud,
				"prompt blocked by content policy: "+resp.PromptFeedback.BlockReason)
		}
		return "", NewError(KindMalformedResponse, ProviderCloud, "response has no candidates")
	}

	cand := resp.Candidates[0]
	if cand.FinishReason == "SAFETY" {
		return "", NewError(KindBlocked, ProviderCloud, "response blocked by content policy")
	}
	if cand.Content == nil {
		return "", NewError(KindMalformedResponse, ProviderCloud, "candidate has no content")
	}
	if cand.Content.Parts == nil {
		return "", NewError(KindMalformedResponse, ProviderCloud, "content has no parts")
	}
	if len(cand.Content.Parts) == 0 {
		return "", NewError(KindMalformedResponse, ProviderCloud, "content parts array is empty")
	}
	if cand.Content.Parts[0].Text == "" {
		return "", NewError(KindPromptFailed, ProviderCloud, "generation produced no text")
	}
	return cand.Content.Parts[0].Text, nil
}

func (c *CloudProvider) endpoint(method string) string {
	return fmt.Sprintf("%s/models/%s:%s?key=%s", c.baseURL, c.model, method, url.QueryEscape(c.key()))
}

// generate issues a non-streaming call and unwraps the reply.
func (c *CloudProvider) generate(ctx context.Context, req cloudRequest) (string, error) {
	if !c.IsAvailable(ctx) {
		return "", NewError(KindAPIUnavailable, ProviderCloud, "no API key configured")
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return "", WrapError(KindPromptFailed, ProviderCloud, "marshaling request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("generateContent"), bytes.NewReader(payload))
	if err != nil {
		return "", WrapError(KindPromptFailed, ProviderCloud, "creating request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", classify(KindAPIUnavailable, ProviderCloud, "request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", classify(KindPromptFailed, ProviderCloud, "reading response", err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", NewError(KindAPIUnavailable, ProviderCloud,
			fmt.Sprintf("credential rejected (%d)", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		return "", NewError(KindPromptFailed, ProviderCloud,
			fmt.Sprintf("API error (%d): %s", resp.StatusCode, truncate(string(respBody), 300)))
	}

	var result cloudResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", WrapError(KindMalformedResponse, ProviderCloud, "unparseable response body", err)
	}
	return c.unwrap(&result)
}

// generateStream issues a streaming call; deltas are forwarded with the
// accumulated text, terminating with done, error, or cancelled.
func (c *CloudProvider) generateStream(ctx context.Context, req cloudRequest) (<-chan StreamEvent, error) {
	if !c.IsAvailable(ctx) {
		return nil, NewError(KindAPIUnavailable, ProviderCloud, "no API key configured")
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, WrapError(KindStreaming, ProviderCloud, "marshaling request", err)
	}

	ch := make(chan StreamEvent)
	go c.streamRequest(ctx, ch, payload)
	return ch, nil
}

func (c *CloudProvider) streamRequest(ctx context.Context, ch chan StreamEvent, payload []byte) {
	defer close(ch)

	fail := func(msg string, err error) {
		e := classify(KindStreaming, ProviderCloud, msg, err)
		typ := EventError
		if e.Kind == KindCancelled {
			typ = EventCancelled
		}
		ch <- StreamEvent{Type: typ, Err: e}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("streamGenerateContent"), bytes.NewReader(payload))
	if err != nil {
		fail("creating request", err)
		return
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		fail("request failed", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		fail(fmt.Sprintf("API error (%d): %s", resp.StatusCode, truncate(string(body), 300)), nil)
		return
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	var accumulated strings.Builder

	for scanner.Scan() {
		if ctx.Err() != nil {
			fail("stream interrupted", ctx.Err())
			return
		}
		line := strings.TrimSpace(scanner.Text())
		line = strings.TrimPrefix(line, "data: ")
		if line == "" || line == "[" || line == "]" || line == "," {
			continue
		}
		line = strings.TrimSuffix(line, ",")

		var ev cloudResponse
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			continue
		}
		for _, cand := range ev.Candidates {
			if cand.Content == nil {
				continue
			}
			for _, part := range cand.Content.Parts {
				if part.Text == "" {
					continue
				}
				accumulated.WriteString(part.Text)
				ch <- StreamEvent{
					Type:        EventDelta,
					Delta:       part.Text,
					Accumulated: accumulated.String(),
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		fail("stream read failed", err)
		return
	}

	ch <- StreamEvent{Type: EventDone, Result: accumulated.String()}
}

func userContent(text string) []cloudContent {
	return []cloudContent{{Role: "user", Parts: []cloudPart{{Text: text}}}}
}

// CheckGrammar wraps raw text in the JSON-array-producing instruction
// template. A prepared instructional prompt is sent as-is, never re-wrapped.
func (c *CloudProvider) CheckGrammar(ctx context.Context, input GrammarInput) ([]GrammarCorrection, error) {
	key := CacheKey(ProviderCloud, "checkGrammar", input)
	if v, ok := c.cache.Get(key); ok {
		return v.([]GrammarCorrection), nil
	}

	prompt := input.Text
	if !input.Prepared {
		prompt = buildGrammarPrompt(input.Text)
	}

	out, err := c.generate(ctx, cloudRequest{Contents: userContent(prompt)})
	if err != nil {
		return nil, err
	}

	corrections := ParseCorrections(out)
	c.cache.Put(key, corrections)
	return corrections, nil
}

func (c *CloudProvider) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	key := CacheKey(ProviderCloud, "translateText", text, sourceLang, targetLang)
	if v, ok := c.cache.Get(key); ok {
		return v.(string), nil
	}

	out, err := c.generate(ctx, cloudRequest{Contents: userContent(buildTranslatePrompt(text, sourceLang, targetLang))})
	if err != nil {
		return "", err
	}
	c.cache.Put(key, out)
	return out, nil
}

func (c *CloudProvider) Summarize(ctx context.Context, content string, opts SummarizeOptions) (string, error) {
	key := CacheKey(ProviderCloud, "summarizeContent", content, opts)
	if v, ok := c.cache.Get(key); ok {
		return v.(string), nil
	}

	out, err := c.generate(ctx, cloudRequest{Contents: userContent(buildSummarizePrompt(content, opts))})
	if err != nil {
		return "", err
	}
	c.cache.Put(key, out)
	return out, nil
}

func (c *CloudProvider) SummarizeStream(ctx context.Context, content string, opts SummarizeOptions) (<-chan StreamEvent, error) {
	return c.generateStream(ctx, cloudRequest{Contents: userContent(buildSummarizePrompt(content, opts))})
}

func (c *CloudProvider) Rewrite(ctx context.Context, text string, opts RewriteOptions) (string, error) {
	key := CacheKey(ProviderCloud, "rewriteText", text, opts)
	if v, ok := c.cache.Get(key); ok {
		return v.(string), nil
	}

	out, err := c.generate(ctx, cloudRequest{Contents: userContent(buildRewritePrompt(text, opts))})
	if err != nil {
		return "", err
	}
	c.cache.Put(key, out)
	return out, nil
}

func (c *CloudProvider) RewriteStream(ctx context.Context, text string, opts RewriteOptions) (<-chan StreamEvent, error) {
	return c.generateStream(ctx, cloudRequest{Contents: userContent(buildRewritePrompt(text, opts))})
}

func (c *CloudProvider) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	key := CacheKey(ProviderCloud, "generateContent", prompt, opts)
	if v, ok := c.cache.Get(key); ok {
		return v.(string), nil
	}

	out, err := c.generate(ctx, cloudRequest{Contents: userContent(buildGeneratePrompt(prompt, opts))})
	if err != nil {
		return "", err
	}
	c.cache.Put(key, out)
	return out, nil
}

func (c *CloudProvider) GenerateStream(ctx context.Context, prompt string, opts GenerateOptions) (<-chan StreamEvent, error) {
	return c.generateStream(ctx, cloudRequest{Contents: userContent(buildGeneratePrompt(prompt, opts))})
}

// chatConfig is the client-side handle of a cloud chat session.
type chatConfig struct {
	System      string   `json:"system,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	TopK        *int     `json:"topK,omitempty"`
}

func (c *CloudProvider) CreateChatSession(ctx context.Context, opts ChatOptions) (string, error) {
	if !c.IsAvailable(ctx) {
		return "", NewError(KindAPIUnavailable, ProviderCloud, "no API key configured")
	}

	cfg := chatConfig{System: opts.System, Temperature: opts.Temperature, TopK: opts.TopK}
	// Conversation state is per-session; a nonce keeps fingerprints unique.
	fp := Fingerprint(cfg, uuid.New().String())
	sess, _, err := c.sessions.GetOrCreate(fp, func() (any, error) { return cfg, nil })
	if err != nil {
		return "", err
	}
	return sess.ID, nil
}

// chatRequest rebuilds the full request from the session's history, since
// the endpoint holds no state between calls.
func (c *CloudProvider) chatRequest(sess *Session) cloudRequest {
	cfg, _ := sess.Handle.(chatConfig)

	req := cloudRequest{Contents: turnsToContents(sess.History)}
	if cfg.System != "" {
		req.SystemInstruction = &cloudContent{Parts: []cloudPart{{Text: cfg.System}}}
	}
	if cfg.Temperature != nil || cfg.TopK != nil {
		req.GenerationConfig = &cloudGenerationConfig{Temperature: cfg.Temperature, TopK: cfg.TopK}
	}
	return req
}

func turnsToContents(turns []Turn) []cloudContent {
	contents := make([]cloudContent, 0, len(turns))
	for _, t := range turns {
		role := "user"
		if t.Role == RoleAssistant {
			role = "model"
		}
		var parts []cloudPart
		if t.Content != "" || len(t.Media) == 0 {
			parts = append(parts, cloudPart{Text: t.Content})
		}
		for _, m := range t.Media {
			parts = append(parts, cloudPart{InlineData: &cloudInlineData{
				MIMEType: m.MIME,
				Data:     base64.StdEncoding.EncodeToString(m.Data),
			}})
		}
		contents = append(contents, cloudContent{Role: role, Parts: parts})
	}
	return contents
}

func (c *CloudProvider) Prompt(ctx context.Context, sessionID, input string) (string, error) {
	sess, err := c.sessions.Get(sessionID)
	if err != nil {
		return "", err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	c.sessions.Touch(sess)
	c.sessions.Append(sess, Turn{Role: RoleUser, Content: input})

	out, err := c.generate(ctx, c.chatRequest(sess))
	if err != nil {
		return "", err
	}
	c.sessions.Append(sess, Turn{Role: RoleAssistant, Content: out})
	return out, nil
}

func (c *CloudProvider) PromptStream(ctx context.Context, sessionID, input string) (<-chan StreamEvent, error) {
	sess, err := c.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	return c.streamSession(ctx, sess, Turn{Role: RoleUser, Content: input})
}

func (c *CloudProvider) streamSession(ctx context.Context, sess *Session, turns ...Turn) (<-chan StreamEvent, error) {
	sess.mu.Lock()
	c.sessions.Touch(sess)
	for _, t := range turns {
		c.sessions.Append(sess, t)
	}

	in, err := c.generateStream(ctx, c.chatRequest(sess))
	if err != nil {
		sess.mu.Unlock()
		return nil, err
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
				c.sessions.Append(sess, Turn{Role: RoleAssistant, Content: ev.Result})
			case EventCancelled:
				if accumulated != "" {
					c.sessions.Append(sess, Turn{Role: RoleAssistant, Content: accumulated})
				}
			}
			out <- ev
		}
	}()
	return out, nil
}

// PromptWithMedia normalizes the input to an inline base64 payload, appends
// a structured media turn, then issues a follow-up prompt for the reply.
func (c *CloudProvider) PromptWithMedia(ctx context.Context, sessionID string, media MediaInput, followUp string) (string, error) {
	sess, err := c.sessions.Get(sessionID)
	if err != nil {
		return "", err
	}

	part, err := normalizeMedia(ctx, c.client, media)
	if err != nil {
		return "", classify(KindPromptFailed, ProviderCloud, "media normalization failed", err)
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	c.sessions.Touch(sess)
	c.sessions.Append(sess, Turn{Role: RoleUser, Media: []MediaPart{part}})
	c.sessions.Append(sess, Turn{Role: RoleUser, Content: followUp})

	out, err := c.generate(ctx, c.chatRequest(sess))
	if err != nil {
		return "", err
	}
	c.sessions.Append(sess, Turn{Role: RoleAssistant, Content: out})
	return out, nil
}

func (c *CloudProvider) PromptWithMediaStream(ctx context.Context, sessionID string, media MediaInput, followUp string) (<-chan StreamEvent, error) {
	sess, err := c.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}

	part, err := normalizeMedia(ctx, c.client, media)
	if err != nil {
		return nil, classify(KindStreaming, ProviderCloud, "media normalization failed", err)
	}

	return c.streamSession(ctx, sess,
		Turn{Role: RoleUser, Media: []MediaPart{part}},
		Turn{Role: RoleUser, Content: followUp},
	)
}

func (c *CloudProvider) DestroySession(sessionID string) error {
	return c.sessions.Destroy(sessionID, nil)
}

func (c *CloudProvider) SessionHistory(sessionID string) ([]Turn, error) {
	sess, err := c.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	out := make([]Turn, len(sess.History))
	copy(out, sess.History)
	return out, nil
}

func (c *CloudProvider) ClearCache() { c.cache.Clear() }

func (c *CloudProvider) Cleanup() {
	c.sessions.DestroyAll(nil)
	c.cache.Clear()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
