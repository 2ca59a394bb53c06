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
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/DasMonkey/mindly-core/internal/logging"
)

// OllamaRuntime adapts an Ollama-compatible local model server to the
// Runtime interface. Every capability is served by one configured model;
// the capability lifecycle maps onto the model's pull state.
type OllamaRuntime struct {
	baseURL string
	model   string
	client  *http.Client
	log     *logging.Logger

	mu      sync.Mutex
	pulling bool
}

// NewOllamaRuntime creates a runtime client. baseURL defaults to
// http://localhost:11434.
func NewOllamaRuntime(baseURL, model string, log *logging.Logger) *OllamaRuntime {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	baseURL = strings.TrimSuffix(baseURL, "/")
	return &OllamaRuntime{
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{Timeout: 300 * time.Second},
		log:     log.Sub("ollama"),
	}
}

// CapabilityAvailability reports available when the model is already pulled,
// downloading while a pull is in flight, downloadable when the server is
// reachable but the model absent, and unavailable when the server is not.
func (o *OllamaRuntime) CapabilityAvailability(ctx context.Context, capability string) (Availability, error) {
	o.mu.Lock()
	pulling := o.pulling
	o.mu.Unlock()
	if pulling {
		return Downloading, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/api/tags", nil)
	if err != nil {
		return Unavailable, err
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return Unavailable, fmt.Errorf("runtime unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Unavailable, fmt.Errorf("runtime status %d", resp.StatusCode)
	}

	var tags struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return Unavailable, fmt.Errorf("parsing tags: %w", err)
	}

	for _, m := range tags.Models {
		if m.Name == o.model || strings.TrimSuffix(m.Name, ":latest") == o.model {
			return Available, nil
		}
	}
	return Downloadable, nil
}

// Params queries the model's configured sampling parameters, overlaying any
// reported defaults onto the standard limits.
func (o *OllamaRuntime) Params(ctx context.Context) (RuntimeParams, error) {
	payload, _ := json.Marshal(map[string]string{"model": o.model})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/show", bytes.NewReader(payload))
	if err != nil {
		return RuntimeParams{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return RuntimeParams{}, fmt.Errorf("params query failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return RuntimeParams{}, fmt.Errorf("params query status %d", resp.StatusCode)
	}

	var show struct {
		Parameters string `json:"parameters"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&show); err != nil {
		return RuntimeParams{}, fmt.Errorf("parsing show response: %w", err)
	}

	params := DefaultRuntimeParams
	for _, line := range strings.Split(show.Parameters, "\n") {
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		switch fields[0] {
		case "temperature":
			if v, err := strconv.ParseFloat(fields[1], 64); err == nil {
				params.DefaultTemperature = v
			}
		case "top_k":
			if v, err := strconv.Atoi(fields[1]); err == nil {
				params.DefaultTopK = v
			}
		}
	}
	return params, nil
}

// CreateSession ensures the backing model is present (pulling it with
// progress reporting if needed) and returns a configured session.
func (o *OllamaRuntime) CreateSession(ctx context.Context, cfg RuntimeSessionConfig, progress ProgressFunc) (RuntimeSession, error) {
	avail, err := o.CapabilityAvailability(ctx, cfg.Capability)
	if err != nil {
		return nil, err
	}
	if avail == Downloadable {
		if err := o.pull(ctx, cfg.Capability, progress); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDownloadFailed, err)
		}
	}

	return &ollamaSession{rt: o, cfg: cfg, system: buildRuntimeSystem(cfg)}, nil
}

// pull downloads the model, streaming fractional progress to the callback.
func (o *OllamaRuntime) pull(ctx context.Context, capability string, progress ProgressFunc) error {
	o.mu.Lock()
	o.pulling = true
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.pulling = false
		o.mu.Unlock()
	}()

	o.log.Info().Str("model", o.model).Msg("pulling model")

	payload, _ := json.Marshal(map[string]any{"model": o.model, "stream": true})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/pull", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("pull status %d: %s", resp.StatusCode, string(body))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		var ev struct {
			Status    string `json:"status"`
			Total     int64  `json:"total"`
			Completed int64  `json:"completed"`
			Error     string `json:"error"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			continue
		}
		if ev.Error != "" {
			return fmt.Errorf("pull failed: %s", ev.Error)
		}
		if ev.Total > 0 && progress != nil {
			progress(capability, float64(ev.Completed)/float64(ev.Total))
		}
		if ev.Status == "success" && progress != nil {
			progress(capability, 1)
		}
	}
	return scanner.Err()
}

// ollamaSession is a configured chat context against one model.
type ollamaSession struct {
	rt     *OllamaRuntime
	cfg    RuntimeSessionConfig
	system string
}

func (s *ollamaSession) Destroy() {}

func (s *ollamaSession) options() map[string]any {
	opts := map[string]any{}
	if s.cfg.Temperature != 0 {
		opts["temperature"] = s.cfg.Temperature
	}
	if s.cfg.TopK != 0 {
		opts["top_k"] = s.cfg.TopK
	}
	return opts
}

func (s *ollamaSession) messages(turns []Turn) ([]map[string]any, error) {
	msgs := make([]map[string]any, 0, len(turns)+1)
	if s.system != "" {
		msgs = append(msgs, map[string]any{"role": "system", "content": s.system})
	}
	for _, t := range turns {
		msg := map[string]any{"role": t.Role, "content": t.Content}
		var images []string
		for _, m := range t.Media {
			if m.Kind == MediaAudio {
				return nil, fmt.Errorf("audio input not supported by the local runtime model")
			}
			images = append(images, base64.StdEncoding.EncodeToString(m.Data))
		}
		if len(images) > 0 {
			msg["images"] = images
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

func (s *ollamaSession) Invoke(ctx context.Context, turns []Turn) (string, error) {
	msgs, err := s.messages(turns)
	if err != nil {
		return "", err
	}
	body := map[string]any{
		"model":    s.rt.model,
		"messages": msgs,
		"stream":   false,
		"options":  s.options(),
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.rt.baseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.rt.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("runtime error (%d): %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("parsing response: %w", err)
	}
	return result.Message.Content, nil
}

func (s *ollamaSession) InvokeStream(ctx context.Context, turns []Turn) (<-chan StreamEvent, error) {
	msgs, err := s.messages(turns)
	if err != nil {
		return nil, err
	}
	body := map[string]any{
		"model":    s.rt.model,
		"messages": msgs,
		"stream":   true,
		"options":  s.options(),
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	ch := make(chan StreamEvent)
	go s.streamRequest(ctx, ch, payload)
	return ch, nil
}

func (s *ollamaSession) streamRequest(ctx context.Context, ch chan StreamEvent, payload []byte) {
	defer close(ch)

	fail := func(msg string, err error) {
		e := classify(KindStreaming, ProviderBuiltin, msg, err)
		typ := EventError
		if e.Kind == KindCancelled {
			typ = EventCancelled
		}
		ch <- StreamEvent{Type: typ, Err: e}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.rt.baseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		fail("creating request", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.rt.client.Do(req)
	if err != nil {
		fail("request failed", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		fail(fmt.Sprintf("runtime error (%d): %s", resp.StatusCode, string(body)), nil)
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
		var ev struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
			Done bool `json:"done"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			continue
		}
		if ev.Message.Content != "" {
			accumulated.WriteString(ev.Message.Content)
			ch <- StreamEvent{
				Type:        EventDelta,
				Delta:       ev.Message.Content,
				Accumulated: accumulated.String(),
			}
		}
		if ev.Done {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		fail("stream read failed", err)
		return
	}

	ch <- StreamEvent{Type: EventDone, Result: accumulated.String()}
}

// buildRuntimeSystem derives the session's system instruction from its
// effective configuration.
func buildRuntimeSystem(cfg RuntimeSessionConfig) string {
	switch cfg.Capability {
	case CapProofreader:
		return `You are a proofreader. Find grammar and spelling errors in the user's text. ` +
			`Respond with only a JSON array of corrections, each {"error", "correction", "type", "message"} ` +
			`where type is "grammar" or "spelling". Respond with [] if there are no errors.`
	case CapTranslator:
		src := cfg.SourceLanguage
		if src == "" || src == "auto" {
			src = "the detected language"
		}
		return fmt.Sprintf("Translate the user's text from %s to %s. Respond with only the translation.",
			src, cfg.TargetLanguage)
	case CapSummarizer:
		return fmt.Sprintf("Summarize the user's text as %s in %s format, %s length. %s",
			cfg.Options["type"], cfg.Options["format"], cfg.Options["length"], cfg.Options["sharedContext"])
	case CapRewriter:
		return fmt.Sprintf("Rewrite the user's text (tone: %s, length: %s). Respond with only the rewritten text. %s",
			cfg.Options["tone"], cfg.Options["length"], cfg.Options["sharedContext"])
	case CapWriter:
		return fmt.Sprintf("Write content for the user's request (tone: %s, format: %s, length: %s).",
			cfg.Options["tone"], cfg.Options["format"], cfg.Options["length"])
	default:
		return cfg.System
	}
}
