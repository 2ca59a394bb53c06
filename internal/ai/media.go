package ai

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Media input kinds.
const (
	MediaImage = "image"
	MediaAudio = "audio"
)

// maxMediaBytes caps fetched media payloads.
const maxMediaBytes = 32 << 20

// MediaInput is a caller-supplied image or audio input, either a URL to
// fetch or raw bytes to pass through.
type MediaInput struct {
	Kind     string `json:"kind"` // MediaImage | MediaAudio
	URL      string `json:"url,omitempty"`
	Data     []byte `json:"data,omitempty"`
	MIME     string `json:"mime,omitempty"`
	Filename string `json:"filename,omitempty"`
}

// extensionMIME maps file extensions used as a MIME hint of last resort
// before the image/png fallback.
var extensionMIME = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
	".bmp":  "image/bmp",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".ogg":  "audio/ogg",
	".m4a":  "audio/mp4",
	".flac": "audio/flac",
}

// normalizeMedia resolves a MediaInput to a binary MediaPart: URLs are
// fetched, raw bytes pass through, and the MIME type is inferred from the
// response content-type, content sniffing, or file extension, falling back
// to image/png.
func normalizeMedia(ctx context.Context, client *http.Client, in MediaInput) (MediaPart, error) {
	kind := in.Kind
	if kind == "" {
		kind = MediaImage
	}

	data := in.Data
	headerMIME := ""
	if len(data) == 0 {
		if in.URL == "" {
			return MediaPart{}, fmt.Errorf("media input has neither url nor data")
		}
		var err error
		data, headerMIME, err = fetchMedia(ctx, client, in.URL)
		if err != nil {
			return MediaPart{}, err
		}
	}

	return MediaPart{
		Kind: kind,
		MIME: resolveMIME(in, headerMIME, data),
		Data: data,
	}, nil
}

func fetchMedia(ctx context.Context, client *http.Client, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("creating media request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetching media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("fetching media: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxMediaBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("reading media body: %w", err)
	}
	if len(data) > maxMediaBytes {
		return nil, "", fmt.Errorf("media payload exceeds %d bytes", maxMediaBytes)
	}

	ct := resp.Header.Get("Content-Type")
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return data, strings.TrimSpace(ct), nil
}

func resolveMIME(in MediaInput, headerMIME string, data []byte) string {
	if in.MIME != "" {
		return in.MIME
	}
	if headerMIME != "" && headerMIME != "application/octet-stream" {
		return headerMIME
	}
	if len(data) > 0 {
		if mt := mimetype.Detect(data); mt.String() != "application/octet-stream" {
			return mt.String()
		}
	}
	name := in.Filename
	if name == "" {
		name = in.URL
	}
	if ext := strings.ToLower(path.Ext(name)); ext != "" {
		if m, ok := extensionMIME[ext]; ok {
			return m
		}
	}
	return "image/png"
}
