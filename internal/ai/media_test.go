package ai

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

func TestNormalizeMediaRawBytes(t *testing.T) {
	part, err := normalizeMedia(context.Background(), http.DefaultClient, MediaInput{
		Kind: MediaAudio,
		Data: []byte{1, 2, 3},
		MIME: "audio/wav",
	})
	require.NoError(t, err)
	assert.Equal(t, MediaAudio, part.Kind)
	assert.Equal(t, "audio/wav", part.MIME)
	assert.Equal(t, []byte{1, 2, 3}, part.Data)
}

func TestNormalizeMediaFetchesURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg; charset=binary")
		w.Write([]byte("jpeg bytes"))
	}))
	defer srv.Close()

	part, err := normalizeMedia(context.Background(), srv.Client(), MediaInput{URL: srv.URL + "/photo"})
	require.NoError(t, err)
	assert.Equal(t, MediaImage, part.Kind)
	assert.Equal(t, "image/jpeg", part.MIME)
	assert.Equal(t, []byte("jpeg bytes"), part.Data)
}

func TestNormalizeMediaFetchFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := normalizeMedia(context.Background(), srv.Client(), MediaInput{URL: srv.URL + "/missing"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}

func TestNormalizeMediaRequiresSource(t *testing.T) {
	_, err := normalizeMedia(context.Background(), http.DefaultClient, MediaInput{Kind: MediaImage})
	require.Error(t, err)
}

func TestResolveMIMEPrecedence(t *testing.T) {
	// Explicit MIME wins over everything.
	assert.Equal(t, "image/webp",
		resolveMIME(MediaInput{MIME: "image/webp"}, "image/jpeg", pngHeader))

	// Then the transport header, unless it is the generic octet-stream.
	assert.Equal(t, "image/jpeg",
		resolveMIME(MediaInput{}, "image/jpeg", nil))

	// Then content sniffing.
	assert.Equal(t, "image/png",
		resolveMIME(MediaInput{}, "application/octet-stream", pngHeader))

	// Then the filename extension.
	assert.Equal(t, "audio/mpeg",
		resolveMIME(MediaInput{Filename: "song.MP3"}, "", nil))

	// image/png is the fallback of last resort.
	assert.Equal(t, "image/png",
		resolveMIME(MediaInput{Filename: "mystery.bin"}, "", nil))
}
