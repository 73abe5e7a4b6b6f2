package webhook

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextbridge/nextbridge/internal/message"
)

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig(map[string]any{
		"url":    "https://hooks.example/x",
		"method": "PUT",
		"headers": map[string]any{
			"Authorization": "Bearer abc",
		},
	})
	require.NoError(t, err)
	wh := cfg.(*Config)
	assert.Equal(t, "PUT", wh.Method)
	assert.Equal(t, "Bearer abc", wh.Headers["Authorization"])

	// Default method.
	cfg, err = ParseConfig(map[string]any{"url": "https://hooks.example/x"})
	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, cfg.(*Config).Method)

	// Neither direction configured.
	_, err = ParseConfig(map[string]any{})
	assert.Error(t, err)

	// Bad method.
	_, err = ParseConfig(map[string]any{"url": "x", "method": "DELETE"})
	assert.Error(t, err)

	// Unknown field.
	_, err = ParseConfig(map[string]any{"url": "x", "uri": "typo"})
	assert.Error(t, err)
}

func TestSend_PostsPayload(t *testing.T) {
	var gotBody map[string]any
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		_ = sonic.Unmarshal(body, &gotBody)
		rw.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	w := &Webhook{
		instanceID: "wh_test",
		config: Config{
			URL:     srv.URL,
			Method:  http.MethodPost,
			Headers: map[string]string{"Authorization": "Bearer abc"},
		},
		client: &http.Client{Timeout: 5 * time.Second},
	}

	_, err := w.Send(context.Background(),
		message.Channel{"team": "ops"},
		"deploy done",
		[]*message.Attachment{{Type: message.AttachmentImage, URL: "https://cdn/x.png", Name: "x.png", Size: 10}},
		map[string]any{"priority": "high"})
	require.NoError(t, err)

	assert.Equal(t, "Bearer abc", gotAuth)
	assert.Equal(t, "deploy done", gotBody["text"])
	assert.Equal(t, "high", gotBody["priority"])
	channel := gotBody["channel"].(map[string]any)
	assert.Equal(t, "ops", channel["team"])
	atts := gotBody["attachments"].([]any)
	require.Len(t, atts, 1)
	assert.Equal(t, "x.png", atts[0].(map[string]any)["name"])
}

func TestSend_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, _ *http.Request) {
		http.Error(rw, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	w := &Webhook{
		instanceID: "wh_test",
		config:     Config{URL: srv.URL, Method: http.MethodPost},
		client:     &http.Client{Timeout: 5 * time.Second},
	}

	_, err := w.Send(context.Background(), message.Channel{}, "hi", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestSend_ReceiveOnlyDrops(t *testing.T) {
	w := &Webhook{
		instanceID: "wh_in",
		config:     Config{ListenAddr: "127.0.0.1:0"},
		client:     &http.Client{},
	}
	id, err := w.Send(context.Background(), message.Channel{}, "hi", nil, nil)
	assert.NoError(t, err)
	assert.Empty(t, id)
}
