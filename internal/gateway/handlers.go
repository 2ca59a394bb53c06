package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/DasMonkey/mindly-core/internal/ai"
	"github.com/DasMonkey/mindly-core/internal/router"
)

// routes builds the REST + WebSocket mux.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /v1/status", s.handleStatus)
	mux.HandleFunc("GET /v1/settings", s.handleGetSettings)
	mux.HandleFunc("PATCH /v1/settings", s.handlePatchSettings)
	mux.HandleFunc("POST /v1/provider", s.handleSetProvider)

	mux.HandleFunc("POST /v1/grammar", s.handleGrammar)
	mux.HandleFunc("POST /v1/translate", s.handleTranslate)
	mux.HandleFunc("POST /v1/summarize", s.handleSummarize)
	mux.HandleFunc("POST /v1/rewrite", s.handleRewrite)
	mux.HandleFunc("POST /v1/generate", s.handleGenerate)

	mux.HandleFunc("POST /v1/sessions", s.handleCreateSession)
	mux.HandleFunc("POST /v1/sessions/{id}/prompt", s.handlePrompt)
	mux.HandleFunc("POST /v1/sessions/{id}/media", s.handlePromptWithMedia)
	mux.HandleFunc("GET /v1/sessions/{id}/history", s.handleHistory)
	mux.HandleFunc("DELETE /v1/sessions/{id}", s.handleDestroySession)

	mux.HandleFunc("GET /ws", s.handleWebSocket)

	return mux
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// writeResult maps an operation outcome to an HTTP response. The envelope is
// returned either way; errors additionally pick a status from their kind.
func writeResult(w http.ResponseWriter, res router.Result, err error) {
	if err == nil {
		writeJSON(w, http.StatusOK, res)
		return
	}
	writeJSON(w, errStatus(err), res)
}

func errStatus(err error) int {
	switch ai.KindOf(err) {
	case ai.KindInvalidSession:
		return http.StatusNotFound
	case ai.KindRegistration:
		return http.StatusBadRequest
	case ai.KindCancelled:
		return 499 // client closed request
	case ai.KindUnavailable, ai.KindAPIUnavailable, ai.KindDownloadFailed:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"active":    s.router.Active(),
		"providers": s.router.Status(r.Context()),
	})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	v := s.router.Settings()
	// The credential never leaves the process; clients only learn whether
	// one is set.
	writeJSON(w, http.StatusOK, map[string]any{
		"preferredProvider": v.PreferredProvider,
		"autoFallback":      v.AutoFallback,
		"cloudApiKeySet":    v.CloudAPIKey != "",
		"lastUpdated":       v.LastUpdated,
	})
}

func (s *Server) handlePatchSettings(w http.ResponseWriter, r *http.Request) {
	var partial map[string]any
	if !decodeBody(w, r, &partial) {
		return
	}
	updated, err := s.router.UpdateSettings(r.Context(), partial)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"preferredProvider": updated.PreferredProvider,
		"autoFallback":      updated.AutoFallback,
		"cloudApiKeySet":    updated.CloudAPIKey != "",
		"lastUpdated":       updated.LastUpdated,
	})
}

func (s *Server) handleSetProvider(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Provider string `json:"provider"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	active, usedFallback, err := s.router.SetProvider(r.Context(), body.Provider)
	if err != nil {
		writeError(w, errStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"active": active, "usedFallback": usedFallback})
}

func (s *Server) handleGrammar(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Text     string `json:"text"`
		Prepared *bool  `json:"prepared,omitempty"`
	}
	if !decodeBody(w, r, &body) {
		return
	}

	// Callers that know what they are sending tag it; bare text goes through
	// the detection heuristic.
	var input ai.GrammarInput
	if body.Prepared != nil {
		input = ai.GrammarInput{Text: body.Text, Prepared: *body.Prepared}
	} else {
		input = ai.DetectGrammarInput(body.Text)
	}

	res, err := s.router.CheckGrammar(r.Context(), input)
	writeResult(w, res, err)
}

func (s *Server) handleTranslate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Text           string `json:"text"`
		SourceLanguage string `json:"sourceLanguage"`
		TargetLanguage string `json:"targetLanguage"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	res, err := s.router.Translate(r.Context(), body.Text, body.SourceLanguage, body.TargetLanguage)
	writeResult(w, res, err)
}

func (s *Server) handleSummarize(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Content string              `json:"content"`
		Options ai.SummarizeOptions `json:"options"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	res, err := s.router.Summarize(r.Context(), body.Content, body.Options)
	writeResult(w, res, err)
}

func (s *Server) handleRewrite(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Text    string            `json:"text"`
		Options ai.RewriteOptions `json:"options"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	res, err := s.router.Rewrite(r.Context(), body.Text, body.Options)
	writeResult(w, res, err)
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Prompt  string             `json:"prompt"`
		Options ai.GenerateOptions `json:"options"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	res, err := s.router.Generate(r.Context(), body.Prompt, body.Options)
	writeResult(w, res, err)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var opts ai.ChatOptions
	if !decodeBody(w, r, &opts) {
		return
	}
	res, err := s.router.CreateChatSession(r.Context(), opts)
	writeResult(w, res, err)
}

func (s *Server) handlePrompt(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Input string `json:"input"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	res, err := s.router.Prompt(r.Context(), r.PathValue("id"), body.Input)
	writeResult(w, res, err)
}

func (s *Server) handlePromptWithMedia(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Media    ai.MediaInput `json:"media"`
		FollowUp string        `json:"followUp"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	res, err := s.router.PromptWithMedia(r.Context(), r.PathValue("id"), body.Media, body.FollowUp)
	writeResult(w, res, err)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	turns, err := s.router.SessionHistory(r.PathValue("id"))
	if err != nil {
		writeError(w, errStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"turns": turns})
}

func (s *Server) handleDestroySession(w http.ResponseWriter, r *http.Request) {
	if err := s.router.DestroySession(r.PathValue("id")); err != nil {
		writeError(w, errStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"destroyed": true})
}
