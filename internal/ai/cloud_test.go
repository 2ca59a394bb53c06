package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DasMonkey/mindly-core/internal/logging"
)

func textResponse(text string) string {
	body, _ := json.Marshal(cloudResponse{
		Candidates: []cloudCandidate{{
			Content: &cloudContent{Role: "model", Parts: []cloudPart{{Text: text}}},
		}},
	})
	return string(body)
}

// cloudFixture spins up a fake endpoint that records request bodies and
// replies with whatever the respond callback returns.
func cloudFixture(t *testing.T, respond func(req cloudRequest) (int, string)) (*CloudProvider, *[]cloudRequest) {
	t.Helper()
	var requests []cloudRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req cloudRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		requests = append(requests, req)

		status, body := respond(req)
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)

	p := NewCloudProvider(func() string { return "test-key" }, "test-model", srv.URL, logging.Silent())
	return p, &requests
}

func TestCloudAvailabilityTracksKey(t *testing.T) {
	key := ""
	p := NewCloudProvider(func() string { return key }, "", "", logging.Silent())
	ctx := context.Background()

	assert.False(t, p.IsAvailable(ctx))
	assert.False(t, p.Features().Chat)

	key = "abc123"
	assert.True(t, p.IsAvailable(ctx))
	assert.True(t, p.Features().Chat)

	key = "   "
	assert.False(t, p.IsAvailable(ctx))
}

func TestCloudNoKeyFailsFast(t *testing.T) {
	p := NewCloudProvider(func() string { return "" }, "", "", logging.Silent())
	_, err := p.Translate(context.Background(), "hello", "en", "es")
	require.Error(t, err)
	assert.Equal(t, KindAPIUnavailable, KindOf(err))
}

func TestCloudTranslateEmbedsLanguageNames(t *testing.T) {
	p, requests := cloudFixture(t, func(cloudRequest) (int, string) {
		return 200, textResponse("hola")
	})

	out, err := p.Translate(context.Background(), "hello", "en", "es")
	require.NoError(t, err)
	assert.Equal(t, "hola", out)

	require.Len(t, *requests, 1)
	prompt := (*requests)[0].Contents[0].Parts[0].Text
	assert.Contains(t, prompt, "English")
	assert.Contains(t, prompt, "Spanish")
	assert.Contains(t, prompt, "hello")
}

func TestCloudRewritePromptConstruction(t *testing.T) {
	p, requests := cloudFixture(t, func(cloudRequest) (int, string) {
		return 200, textResponse("Dear colleague,")
	})

	_, err := p.Rewrite(context.Background(), "hey there", RewriteOptions{Tone: "more-formal"})
	require.NoError(t, err)

	prompt := (*requests)[0].Contents[0].Parts[0].Text
	assert.Contains(t, prompt, "in a more formal and professional tone")
	assert.Contains(t, prompt, "hey there")

	_, err = p.Rewrite(context.Background(), "hey there", RewriteOptions{Tone: "more-casual", Length: "shorter"})
	require.NoError(t, err)

	prompt = (*requests)[1].Contents[0].Parts[0].Text
	assert.Contains(t, prompt, "in a more casual and friendly tone")
	assert.Contains(t, prompt, "making it more concise")
}

func TestCloudGrammarWrapsRawTextOnly(t *testing.T) {
	p, requests := cloudFixture(t, func(cloudRequest) (int, string) {
		return 200, textResponse(`[{"error":"teh","correction":"the","type":"spelling","message":"typo"}]`)
	})
	ctx := context.Background()

	out, err := p.CheckGrammar(ctx, RawText("teh cat"))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "the", out[0].Correction)

	wrapped := (*requests)[0].Contents[0].Parts[0].Text
	assert.Contains(t, wrapped, "JSON array")
	assert.Contains(t, wrapped, "teh cat")
	// The correction contract only knows two types.
	assert.Contains(t, wrapped, `"grammar" or "spelling"`)
	assert.NotContains(t, wrapped, `"punctuation"`)

	// A prepared prompt goes through verbatim.
	prepared := "You are a proofreader. Respond only with a JSON array. Text: teh cat"
	_, err = p.CheckGrammar(ctx, PreparedPrompt(prepared))
	require.NoError(t, err)
	assert.Equal(t, prepared, (*requests)[1].Contents[0].Parts[0].Text)
}

func TestCloudResultsCached(t *testing.T) {
	p, requests := cloudFixture(t, func(cloudRequest) (int, string) {
		return 200, textResponse("a summary")
	})
	ctx := context.Background()

	_, err := p.Summarize(ctx, "long article", SummarizeOptions{})
	require.NoError(t, err)
	_, err = p.Summarize(ctx, "long article", SummarizeOptions{})
	require.NoError(t, err)
	assert.Len(t, *requests, 1)

	p.ClearCache()
	_, err = p.Summarize(ctx, "long article", SummarizeOptions{})
	require.NoError(t, err)
	assert.Len(t, *requests, 2)
}

func TestCloudUnwrapFailures(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		kind    ErrorKind
		message string
	}{
		{
			name:    "prompt blocked",
			body:    `{"candidates":[],"promptFeedback":{"blockReason":"SAFETY"}}`,
			kind:    KindBlocked,
			message: "blocked by content policy",
		},
		{
			name:    "no candidates",
			body:    `{"candidates":[]}`,
			kind:    KindMalformedResponse,
			message: "no candidates",
		},
		{
			name:    "safety finish",
			body:    `{"candidates":[{"finishReason":"SAFETY"}]}`,
			kind:    KindBlocked,
			message: "blocked by content policy",
		},
		{
			name:    "nil content",
			body:    `{"candidates":[{"finishReason":"STOP"}]}`,
			kind:    KindMalformedResponse,
			message: "no content",
		},
		{
			name:    "nil parts",
			body:    `{"candidates":[{"content":{"role":"model"}}]}`,
			kind:    KindMalformedResponse,
			message: "no parts",
		},
		{
			name:    "empty parts",
			body:    `{"candidates":[{"content":{"role":"model","parts":[]}}]}`,
			kind:    KindMalformedResponse,
			message: "parts array is empty",
		},
		{
			name:    "empty text",
			body:    `{"candidates":[{"content":{"role":"model","parts":[{"text":""}]}}]}`,
			kind:    KindPromptFailed,
			message: "generation produced no text",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _ := cloudFixture(t, func(cloudRequest) (int, string) {
				return 200, tt.body
			})
			_, err := p.Generate(context.Background(), "write something", GenerateOptions{})
			require.Error(t, err)
			assert.Equal(t, tt.kind, KindOf(err))
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestCloudCredentialRejection(t *testing.T) {
	p, _ := cloudFixture(t, func(cloudRequest) (int, string) {
		return 403, `{"error":{"message":"API key not valid"}}`
	})
	_, err := p.Generate(context.Background(), "write something", GenerateOptions{})
	require.Error(t, err)
	assert.Equal(t, KindAPIUnavailable, KindOf(err))
}

func TestCloudChatReplaysHistory(t *testing.T) {
	n := 0
	p, requests := cloudFixture(t, func(cloudRequest) (int, string) {
		n++
		return 200, textResponse(fmt.Sprintf("reply %d", n))
	})
	ctx := context.Background()

	id, err := p.CreateChatSession(ctx, ChatOptions{System: "be brief"})
	require.NoError(t, err)

	_, err = p.Prompt(ctx, id, "first question")
	require.NoError(t, err)
	_, err = p.Prompt(ctx, id, "second question")
	require.NoError(t, err)

	// Second request replays the whole conversation with mapped roles.
	second := (*requests)[1]
	require.Len(t, second.Contents, 3)
	assert.Equal(t, "user", second.Contents[0].Role)
	assert.Equal(t, "first question", second.Contents[0].Parts[0].Text)
	assert.Equal(t, "model", second.Contents[1].Role)
	assert.Equal(t, "reply 1", second.Contents[1].Parts[0].Text)
	assert.Equal(t, "second question", second.Contents[2].Parts[0].Text)

	require.NotNil(t, second.SystemInstruction)
	assert.Equal(t, "be brief", second.SystemInstruction.Parts[0].Text)
}

func TestCloudChatSessionsAreDistinct(t *testing.T) {
	p := NewCloudProvider(func() string { return "key" }, "", "", logging.Silent())
	ctx := context.Background()

	a, err := p.CreateChatSession(ctx, ChatOptions{})
	require.NoError(t, err)
	b, err := p.CreateChatSession(ctx, ChatOptions{})
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestCloudPromptWithMediaSendsInlineData(t *testing.T) {
	p, requests := cloudFixture(t, func(cloudRequest) (int, string) {
		return 200, textResponse("a red square")
	})
	ctx := context.Background()

	id, err := p.CreateChatSession(ctx, ChatOptions{})
	require.NoError(t, err)

	out, err := p.PromptWithMedia(ctx, id, MediaInput{
		Kind: MediaImage,
		Data: []byte{0x89, 'P', 'N', 'G'},
		MIME: "image/png",
	}, "what is in this image?")
	require.NoError(t, err)
	assert.Equal(t, "a red square", out)

	req := (*requests)[0]
	require.Len(t, req.Contents, 2)
	require.Len(t, req.Contents[0].Parts, 1)
	require.NotNil(t, req.Contents[0].Parts[0].InlineData)
	assert.Equal(t, "image/png", req.Contents[0].Parts[0].InlineData.MIMEType)
	assert.NotEmpty(t, req.Contents[0].Parts[0].InlineData.Data)
	assert.Equal(t, "what is in this image?", req.Contents[1].Parts[0].Text)

	history, err := p.SessionHistory(id)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, MediaImage, history[0].Media[0].Kind)
}

func TestCloudGenerateStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.Contains(r.URL.Path, "streamGenerateContent"))
		fmt.Fprintln(w, `[`)
		fmt.Fprintln(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"Once "}]}}]},`)
		fmt.Fprintln(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"upon a time"}]}}]}`)
		fmt.Fprintln(w, `]`)
	}))
	defer srv.Close()

	p := NewCloudProvider(func() string { return "key" }, "m", srv.URL, logging.Silent())

	ch, err := p.GenerateStream(context.Background(), "tell a story", GenerateOptions{})
	require.NoError(t, err)

	var chunks []string
	out, err := Collect(ch, func(accumulated string) { chunks = append(chunks, accumulated) })
	require.NoError(t, err)
	assert.Equal(t, "Once upon a time", out)
	assert.Equal(t, []string{"Once ", "Once upon a time"}, chunks)
}
