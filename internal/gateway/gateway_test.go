package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DasMonkey/mindly-core/internal/ai"
	"github.com/DasMonkey/mindly-core/internal/config"
	"github.com/DasMonkey/mindly-core/internal/logging"
	"github.com/DasMonkey/mindly-core/internal/router"
	"github.com/DasMonkey/mindly-core/internal/settings"
)

func newTestGateway(t *testing.T, token string) (*httptest.Server, *ai.MockProvider, *ai.MockProvider) {
	t.Helper()

	store := &settings.MemoryStore{}
	rt := router.New(settings.NewManager(store, logging.Silent()), logging.Silent())

	builtin := &ai.MockProvider{NameValue: ai.ProviderBuiltin}
	cloud := &ai.MockProvider{NameValue: ai.ProviderCloud}
	require.NoError(t, rt.Register(builtin))
	require.NoError(t, rt.Register(cloud))

	s := New(config.GatewayConfig{Auth: config.GatewayAuth{Token: token}}, rt, logging.Silent())
	srv := httptest.NewServer(withMiddleware(s.withAuth(s.routes()), s.log))
	t.Cleanup(srv.Close)
	return srv, builtin, cloud
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeResult(t *testing.T, resp *http.Response) router.Result {
	t.Helper()
	var res router.Result
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	return res
}

func TestHealthBypassesAuth(t *testing.T) {
	srv, _, _ := newTestGateway(t, "secret")

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuthRequired(t *testing.T) {
	srv, _, _ := newTestGateway(t, "secret")

	resp, err := http.Get(srv.URL + "/v1/status")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/v1/status", nil)
	req.Header.Set("Authorization", "Bearer secret")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestTranslateEndpoint(t *testing.T) {
	srv, builtin, _ := newTestGateway(t, "")
	builtin.TranslateFunc = func(ctx context.Context, text, s, d string) (string, error) {
		return "hola", nil
	}

	resp := postJSON(t, srv.URL+"/v1/translate", map[string]string{
		"text": "hello", "sourceLanguage": "en", "targetLanguage": "es",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	res := decodeResult(t, resp)
	assert.True(t, res.Success)
	assert.Equal(t, ai.ProviderBuiltin, res.Provider)
	assert.Equal(t, "hola", res.Data)
}

func TestGrammarEndpointDetectsPreparedInput(t *testing.T) {
	srv, builtin, _ := newTestGateway(t, "")

	var got ai.GrammarInput
	builtin.CheckGrammarFunc = func(ctx context.Context, input ai.GrammarInput) ([]ai.GrammarCorrection, error) {
		got = input
		return []ai.GrammarCorrection{}, nil
	}

	resp := postJSON(t, srv.URL+"/v1/grammar", map[string]any{
		"text": "Respond only with the corrected text.",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, got.Prepared)

	// An explicit tag overrides detection.
	prepared := false
	resp = postJSON(t, srv.URL+"/v1/grammar", map[string]any{
		"text": "Respond only with the corrected text.", "prepared": prepared,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, got.Prepared)
}

func TestErrorEnvelopeAndStatus(t *testing.T) {
	srv, builtin, cloud := newTestGateway(t, "")

	builtin.GenerateFunc = func(ctx context.Context, prompt string, opts ai.GenerateOptions) (string, error) {
		return "", ai.NewError(ai.KindUnavailable, ai.ProviderBuiltin, "model not loaded")
	}
	cloud.GenerateFunc = func(ctx context.Context, prompt string, opts ai.GenerateOptions) (string, error) {
		return "", ai.NewError(ai.KindAPIUnavailable, ai.ProviderCloud, "no API key configured")
	}

	resp := postJSON(t, srv.URL+"/v1/generate", map[string]any{"prompt": "write"})
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	res := decodeResult(t, resp)
	assert.False(t, res.Success)
	require.NotNil(t, res.Error)
	assert.Equal(t, ai.KindUnavailable, res.Error.Kind)
}

func TestSessionLifecycleEndpoints(t *testing.T) {
	srv, builtin, _ := newTestGateway(t, "")

	builtin.CreateChatSessionFunc = func(ctx context.Context, opts ai.ChatOptions) (string, error) {
		return "sess-9", nil
	}
	builtin.PromptFunc = func(ctx context.Context, sessionID, input string) (string, error) {
		return "reply to " + input, nil
	}
	builtin.SessionHistoryFunc = func(sessionID string) ([]ai.Turn, error) {
		return []ai.Turn{{Role: ai.RoleUser, Content: "hi"}}, nil
	}

	resp := postJSON(t, srv.URL+"/v1/sessions", map[string]any{"system": "be brief"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	res := decodeResult(t, resp)
	assert.Equal(t, "sess-9", res.Data)

	resp = postJSON(t, srv.URL+"/v1/sessions/sess-9/prompt", map[string]string{"input": "hi"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	res = decodeResult(t, resp)
	assert.Equal(t, "reply to hi", res.Data)

	histResp, err := http.Get(srv.URL + "/v1/sessions/sess-9/history")
	require.NoError(t, err)
	defer histResp.Body.Close()
	assert.Equal(t, http.StatusOK, histResp.StatusCode)

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/v1/sessions/sess-9", nil)
	delResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	delResp.Body.Close()
	assert.Equal(t, http.StatusOK, delResp.StatusCode)

	// Unknown session ids map to 404.
	resp = postJSON(t, srv.URL+"/v1/sessions/nope/prompt", map[string]string{"input": "hi"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSettingsEndpointsNeverLeakKey(t *testing.T) {
	srv, _, _ := newTestGateway(t, "")

	raw, _ := json.Marshal(map[string]any{"cloudApiKey": "super-secret"})
	req, _ := http.NewRequest(http.MethodPatch, srv.URL+"/v1/settings", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, true, body["cloudApiKeySet"])
	_, leaked := body["cloudApiKey"]
	assert.False(t, leaked)
}

func TestWebSocketStreaming(t *testing.T) {
	srv, builtin, _ := newTestGateway(t, "")
	builtin.GenerateFunc = func(ctx context.Context, prompt string, opts ai.GenerateOptions) (string, error) {
		return "generated text", nil
	}

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	params, _ := json.Marshal(map[string]any{"prompt": "write"})
	require.NoError(t, conn.WriteJSON(wsRequest{ID: "r1", Op: "generateStream", Params: params}))

	var ev wsEvent
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "r1", ev.ID)
	assert.Equal(t, "result", ev.Type)
	require.NotNil(t, ev.Result)
	assert.Equal(t, "generated text", ev.Result.Data)
}

func TestWebSocketUnknownOp(t *testing.T) {
	srv, _, _ := newTestGateway(t, "")

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(wsRequest{ID: "r1", Op: "teleport", Params: json.RawMessage("{}")}))

	var ev wsEvent
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "error", ev.Type)
	assert.Contains(t, ev.Error, "unknown operation")
}
