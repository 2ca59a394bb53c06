package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/DasMonkey/mindly-core/internal/ai"
	"github.com/DasMonkey/mindly-core/internal/router"
)

// wsRequest is one streaming operation request. Params are op-specific.
type wsRequest struct {
	ID     string          `json:"id"`
	Op     string          `json:"op"`
	Params json.RawMessage `json:"params"`
}

// wsEvent is a server-to-client frame. type is "chunk" while streaming,
// then exactly one of "result" or "error".
type wsEvent struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	Accumulated string         `json:"accumulated,omitempty"`
	Result      *router.Result `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// handleWebSocket runs the streaming protocol: each incoming frame starts
// one operation; chunk frames fan back tagged with the request id. One
// operation runs at a time per connection, matching per-session
// serialization underneath.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	s.log.Debug().Str("remote", r.RemoteAddr).Msg("websocket client connected")

	var writeMu sync.Mutex
	send := func(ev wsEvent) {
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := conn.WriteJSON(ev); err != nil {
			s.log.Debug().Err(err).Msg("websocket write failed")
		}
	}

	ctx := r.Context()
	for {
		var req wsRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug().Err(err).Msg("websocket read failed")
			}
			return
		}
		s.dispatchStream(ctx, req, send)
	}
}

func (s *Server) dispatchStream(ctx context.Context, req wsRequest, send func(wsEvent)) {
	onChunk := func(accumulated string) {
		send(wsEvent{ID: req.ID, Type: "chunk", Accumulated: accumulated})
	}

	var res router.Result
	var err error

	switch req.Op {
	case "summarizeStream":
		var p struct {
			Content string              `json:"content"`
			Options ai.SummarizeOptions `json:"options"`
		}
		if err = json.Unmarshal(req.Params, &p); err == nil {
			res, err = s.router.SummarizeStream(ctx, p.Content, p.Options, onChunk)
		}
	case "rewriteStream":
		var p struct {
			Text    string            `json:"text"`
			Options ai.RewriteOptions `json:"options"`
		}
		if err = json.Unmarshal(req.Params, &p); err == nil {
			res, err = s.router.RewriteStream(ctx, p.Text, p.Options, onChunk)
		}
	case "generateStream":
		var p struct {
			Prompt  string             `json:"prompt"`
			Options ai.GenerateOptions `json:"options"`
		}
		if err = json.Unmarshal(req.Params, &p); err == nil {
			res, err = s.router.GenerateStream(ctx, p.Prompt, p.Options, onChunk)
		}
	case "promptStream":
		var p struct {
			SessionID string `json:"sessionId"`
			Input     string `json:"input"`
		}
		if err = json.Unmarshal(req.Params, &p); err == nil {
			res, err = s.router.PromptStream(ctx, p.SessionID, p.Input, onChunk)
		}
	case "promptWithMediaStream":
		var p struct {
			SessionID string        `json:"sessionId"`
			Media     ai.MediaInput `json:"media"`
			FollowUp  string        `json:"followUp"`
		}
		if err = json.Unmarshal(req.Params, &p); err == nil {
			res, err = s.router.PromptWithMediaStream(ctx, p.SessionID, p.Media, p.FollowUp, onChunk)
		}
	default:
		send(wsEvent{ID: req.ID, Type: "error", Error: "unknown operation: " + req.Op})
		return
	}

	if err != nil {
		send(wsEvent{ID: req.ID, Type: "error", Error: err.Error(), Result: &res})
		return
	}
	send(wsEvent{ID: req.ID, Type: "result", Result: &res})
}
