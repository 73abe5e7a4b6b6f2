package media

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/nextbridge/nextbridge/internal/message"
)

func TestFetch_WithinLimit(t *testing.T) {
	body := bytes.Repeat([]byte("x"), 1024)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(body)
	}))
	defer srv.Close()

	data, mime, err := Fetch(context.Background(), srv.URL, 4096)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !bytes.Equal(data, body) {
		t.Errorf("body mismatch: got %d bytes", len(data))
	}
	if mime != "image/png" {
		t.Errorf("expected image/png, got %s", mime)
	}
}

func TestFetch_OversizeBodyAborts(t *testing.T) {
	// 12 MB body against an 8 MB cap; no Content-Length so the HEAD
	// pre-flight cannot reject it and the streaming cap must kick in.
	const limit = 8 * 1024 * 1024
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusOK)
			return
		}
		chunk := bytes.Repeat([]byte("y"), 64*1024)
		for i := 0; i < 192; i++ { // 12 MB total
			if _, err := w.Write(chunk); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	data, _, err := Fetch(context.Background(), srv.URL, limit)
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got data=%d err=%v", len(data), err)
	}
	if data != nil {
		t.Errorf("expected nil data on oversize, got %d bytes", len(data))
	}
}

func TestFetch_HeadRejectsEarly(t *testing.T) {
	gets := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodHead:
			w.Header().Set("Content-Length", strconv.Itoa(1<<20))
			w.WriteHeader(http.StatusOK)
		case http.MethodGet:
			gets++
		}
	}))
	defer srv.Close()

	_, _, err := Fetch(context.Background(), srv.URL, 1024)
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
	if gets != 0 {
		t.Errorf("expected no GET after HEAD rejection, got %d", gets)
	}
}

func TestFetchAttachment_PrefetchedSkipsNetwork(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no network request expected for pre-fetched data")
	}))
	defer srv.Close()

	att := &message.Attachment{
		Type: message.AttachmentImage,
		URL:  srv.URL,
		Name: "face.gif",
		Data: []byte("GIF89a"),
	}
	data, mime, err := FetchAttachment(context.Background(), att, 1024)
	if err != nil {
		t.Fatalf("FetchAttachment: %v", err)
	}
	if string(data) != "GIF89a" {
		t.Errorf("unexpected data: %q", data)
	}
	if mime != "image/gif" {
		t.Errorf("expected image/gif, got %s", mime)
	}
}

func TestFetchAttachment_PrefetchedOversize(t *testing.T) {
	att := &message.Attachment{
		Type: message.AttachmentFile,
		Name: "big.bin",
		Data: bytes.Repeat([]byte("z"), 2048),
	}
	if _, _, err := FetchAttachment(context.Background(), att, 1024); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
}

func TestFetchAttachment_EmptyAttachment(t *testing.T) {
	att := &message.Attachment{Type: message.AttachmentImage}
	if _, _, err := FetchAttachment(context.Background(), att, 1024); err == nil {
		t.Fatal("expected error for attachment with neither url nor data")
	}
}

func TestFilenameFor(t *testing.T) {
	cases := []struct {
		name string
		mime string
		want string
	}{
		{"photo.tmp", "image/jpeg", "photo.jpg"},
		{"photo.jpg", "image/png", "photo.jpg"},
		{"clip.tmp", "video/mp4", "clip.mp4"},
		{"note.tmp", "application/x-unknown", "note.tmp"},
		{"", "image/jpeg", "photo.jpg"},
		{"", "audio/ogg", "voice.ogg"},
		{"", "application/zip", "attachment.bin"},
	}
	for _, c := range cases {
		if got := FilenameFor(c.name, c.mime); got != c.want {
			t.Errorf("FilenameFor(%q, %q) = %q, want %q", c.name, c.mime, got, c.want)
		}
	}
}

func TestMimeToAttType(t *testing.T) {
	cases := map[string]message.AttachmentType{
		"image/jpeg":      message.AttachmentImage,
		"video/webm":      message.AttachmentVideo,
		"audio/ogg":       message.AttachmentVoice,
		"application/pdf": message.AttachmentFile,
		"":                message.AttachmentFile,
	}
	for mime, want := range cases {
		if got := MimeToAttType(mime); got != want {
			t.Errorf("MimeToAttType(%q) = %s, want %s", mime, got, want)
		}
	}
}
