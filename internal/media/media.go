// Package media is the shared download utility used by all drivers when
// sending attachments to a target platform. It enforces a uniform size cap
// so no driver ever buffers more than its platform limit allows.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/nextbridge/nextbridge/internal/message"
	"github.com/nextbridge/nextbridge/internal/pkg/logs"
)

const (
	// DefaultMaxBytes is the fallback attachment cap (10 MB).
	DefaultMaxBytes int64 = 10 * 1024 * 1024

	headTimeout = 10 * time.Second
	getTimeout  = 60 * time.Second

	readChunkSize = 64 * 1024
)

// ErrTooLarge is returned when a download exceeds the configured cap.
var ErrTooLarge = errors.New("media exceeds size limit")

var httpClient = &http.Client{}

// Fetch downloads url, reading at most maxBytes. A HEAD pre-flight skips
// obviously oversized files without committing to a full download; servers
// that reject HEAD fall through to the streaming GET. Returns the body and
// the response content type.
func Fetch(ctx context.Context, url string, maxBytes int64) ([]byte, string, error) {
	if url == "" {
		return nil, "", errors.New("empty url")
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}

	if length, ok := contentLength(ctx, url); ok && length > maxBytes {
		return nil, "", fmt.Errorf("%w: Content-Length %d > %d", ErrTooLarge, length, maxBytes)
	}

	getCtx, cancel := context.WithTimeout(ctx, getTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(getCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build request: %w", err)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("get: HTTP %d", resp.StatusCode)
	}

	data, err := readCapped(resp.Body, maxBytes)
	if err != nil {
		return nil, "", err
	}

	return data, responseMime(resp), nil
}

// FetchAttachment resolves an Attachment to (bytes, mime). Pre-fetched Data
// short-circuits network I/O entirely; the size cap still applies.
func FetchAttachment(ctx context.Context, att *message.Attachment, maxBytes int64) ([]byte, string, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}

	if len(att.Data) > 0 {
		if int64(len(att.Data)) > maxBytes {
			return nil, "", fmt.Errorf("%w: pre-fetched %d > %d", ErrTooLarge, len(att.Data), maxBytes)
		}
		return att.Data, mimeFromName(att.Name), nil
	}

	if att.URL == "" {
		return nil, "", errors.New("attachment has neither url nor data")
	}

	data, contentType, err := Fetch(ctx, att.URL, maxBytes)
	if err != nil {
		logs.CtxError(ctx, "[media] fetch %q failed: %v", att.URL, err)
		return nil, "", err
	}
	return data, contentType, nil
}

// contentLength issues a HEAD request and reports the advertised length.
// Any failure is treated as "unknown" so the GET path still runs.
func contentLength(ctx context.Context, url string) (int64, bool) {
	headCtx, cancel := context.WithTimeout(ctx, headTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(headCtx, http.MethodHead, url, nil)
	if err != nil {
		return 0, false
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return 0, false
	}
	defer resp.Body.Close()

	cl := resp.Header.Get("Content-Length")
	if cl == "" {
		return 0, false
	}
	length, err := strconv.ParseInt(cl, 10, 64)
	if err != nil {
		return 0, false
	}
	return length, true
}

// readCapped streams r into memory, aborting as soon as more than maxBytes
// have been read.
func readCapped(r io.Reader, maxBytes int64) ([]byte, error) {
	buf := make([]byte, 0, readChunkSize)
	chunk := make([]byte, readChunkSize)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			if int64(len(buf)+n) > maxBytes {
				return nil, fmt.Errorf("%w: body exceeds %d bytes", ErrTooLarge, maxBytes)
			}
			buf = append(buf, chunk[:n]...)
		}
		if err == io.EOF {
			return buf, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
	}
}

func responseMime(resp *http.Response) string {
	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		return "application/octet-stream"
	}
	parsed, _, err := mime.ParseMediaType(ct)
	if err != nil || parsed == "" {
		return "application/octet-stream"
	}
	return parsed
}

func mimeFromName(name string) string {
	if name == "" {
		return "application/octet-stream"
	}
	mt := mime.TypeByExtension(filepath.Ext(name))
	if mt == "" {
		return "application/octet-stream"
	}
	parsed, _, err := mime.ParseMediaType(mt)
	if err != nil {
		return "application/octet-stream"
	}
	return parsed
}

var mimeExt = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/gif":  "gif",
	"image/webp": "webp",
	"video/mp4":  "mp4",
	"video/webm": "webm",
	"audio/ogg":  "ogg",
	"audio/mpeg": "mp3",
	"audio/aac":  "aac",
	"audio/amr":  "amr",
}

var mimeFallbackName = map[string]string{
	"image/jpeg": "photo.jpg",
	"image/png":  "photo.png",
	"image/gif":  "image.gif",
	"image/webp": "image.webp",
	"video/mp4":  "video.mp4",
	"video/webm": "video.webm",
	"audio/ogg":  "voice.ogg",
	"audio/mpeg": "audio.mp3",
	"audio/aac":  "audio.aac",
	"audio/amr":  "voice.amr",
}

// FilenameFor returns a sane filename given an optional hint and a MIME type.
// Some CDNs (Yunhu) serve every image with a .tmp extension; that suffix is
// rewritten from the actual MIME type so receiving platforms render the file
// correctly.
func FilenameFor(name, contentType string) string {
	if name != "" {
		if strings.HasSuffix(name, ".tmp") {
			if ext, ok := mimeExt[contentType]; ok {
				return strings.TrimSuffix(name, ".tmp") + "." + ext
			}
		}
		return name
	}
	if fallback, ok := mimeFallbackName[contentType]; ok {
		return fallback
	}
	return "attachment.bin"
}

// MimeToAttType maps a MIME type onto the bridge attachment taxonomy.
func MimeToAttType(contentType string) message.AttachmentType {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return message.AttachmentImage
	case strings.HasPrefix(contentType, "video/"):
		return message.AttachmentVideo
	case strings.HasPrefix(contentType, "audio/"):
		return message.AttachmentVoice
	default:
		return message.AttachmentFile
	}
}
