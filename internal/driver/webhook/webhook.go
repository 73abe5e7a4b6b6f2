package webhook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/hertz/pkg/app"
	hzServer "github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"github.com/nextbridge/nextbridge/internal/bridge"
	"github.com/nextbridge/nextbridge/internal/driver"
	"github.com/nextbridge/nextbridge/internal/message"
	"github.com/nextbridge/nextbridge/internal/pkg/logs"
	"github.com/nextbridge/nextbridge/internal/store"
)

const Platform = "webhook"

var _ driver.Driver = (*Webhook)(nil)

func init() {
	driver.MustRegister(driver.Entry{
		Platform:    Platform,
		ParseConfig: ParseConfig,
		New:         New,
	})
}

// Webhook is the generic HTTP driver. Outbound, every routed message is
// serialized as JSON and posted to the configured URL. Inbound, an optional
// listener accepts the same payload shape from external systems and feeds
// it into the bridge.
type Webhook struct {
	instanceID string
	config     Config
	router     *bridge.Router
	store      *store.Store
	client     *http.Client
	server     *hzServer.Hertz
}

func New(instanceID string, cfg driver.Config, deps driver.Deps) (driver.Driver, error) {
	whCfg, ok := cfg.(*Config)
	if !ok {
		return nil, fmt.Errorf("webhook: unexpected config type %T", cfg)
	}

	w := &Webhook{
		instanceID: instanceID,
		config:     *whCfg,
		router:     deps.Router,
		store:      deps.Store,
		client:     &http.Client{Timeout: 30 * time.Second},
	}

	if whCfg.ListenAddr != "" {
		w.server = hzServer.Default(
			hzServer.WithHostPorts(whCfg.ListenAddr),
			hzServer.WithExitWaitTime(5*time.Second),
		)
		w.server.GET("/health", func(ctx context.Context, c *app.RequestContext) {
			c.JSON(consts.StatusOK, utils.H{"status": "ok"})
		})
		w.server.POST("/message", w.handleInbound)
	}

	deps.Router.RegisterSender(instanceID, w.Send)
	return w, nil
}

func (w *Webhook) Platform() string   { return Platform }
func (w *Webhook) InstanceID() string { return w.instanceID }

func (w *Webhook) Start(ctx context.Context) error {
	if w.server == nil {
		if w.config.URL != "" {
			logs.CtxInfo(ctx, "[webhook:%s] send-only, targeting %s", w.instanceID, w.config.URL)
		}
		<-ctx.Done()
		return nil
	}

	logs.CtxInfo(ctx, "[webhook:%s] listening on %s", w.instanceID, w.config.ListenAddr)
	go w.server.Spin()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return w.server.Shutdown(shutdownCtx)
}

// inboundPayload is the JSON body accepted on POST /message. Channel is
// echoed into the normalized message so rules can match on caller-defined
// keys.
type inboundPayload struct {
	Channel    map[string]any `json:"channel"`
	User       string         `json:"user"`
	UserID     string         `json:"user_id"`
	UserAvatar string         `json:"user_avatar"`
	Text       string         `json:"text"`

	Attachments []struct {
		Type string `json:"type"`
		URL  string `json:"url"`
		Name string `json:"name"`
		Size int64  `json:"size"`
	} `json:"attachments"`
}

func (w *Webhook) handleInbound(ctx context.Context, c *app.RequestContext) {
	var payload inboundPayload
	if err := sonic.Unmarshal(c.Request.Body(), &payload); err != nil {
		c.JSON(consts.StatusBadRequest, utils.H{"error": "invalid JSON body"})
		return
	}
	if payload.Text == "" && len(payload.Attachments) == 0 {
		c.JSON(consts.StatusBadRequest, utils.H{"error": "empty message"})
		return
	}

	var attachments []*message.Attachment
	for _, att := range payload.Attachments {
		attachments = append(attachments, &message.Attachment{
			Type: message.AttachmentType(att.Type),
			URL:  att.URL,
			Name: att.Name,
			Size: att.Size,
		})
	}

	normalized := &message.NormalizedMessage{
		Platform:    Platform,
		InstanceID:  w.instanceID,
		Channel:     message.Channel(payload.Channel),
		User:        payload.User,
		UserID:      payload.UserID,
		UserAvatar:  payload.UserAvatar,
		Text:        payload.Text,
		Attachments: attachments,
	}
	if w.store != nil {
		normalized.BridgeID = store.NewBridgeID()
	}

	w.router.OnMessage(ctx, normalized)
	c.JSON(consts.StatusOK, utils.H{"status": "ok"})
}

// outboundPayload is what gets posted for each routed message. The rule's
// channel map and any extra msg config keys pass through untouched so the
// receiver can do its own routing.
type outboundPayload map[string]any

// Send posts one routed message to the configured URL.
func (w *Webhook) Send(ctx context.Context, target message.Channel, text string, attachments []*message.Attachment, extra map[string]any) (string, error) {
	if w.config.URL == "" {
		logs.CtxWarn(ctx, "[webhook:%s] receive-only instance targeted by a rule, message dropped", w.instanceID)
		return "", nil
	}

	atts := make([]map[string]any, 0, len(attachments))
	for _, att := range attachments {
		atts = append(atts, map[string]any{
			"type": string(att.Type),
			"url":  att.URL,
			"name": att.Name,
			"size": att.Size,
		})
	}

	payload := outboundPayload{
		"text":        text,
		"channel":     map[string]any(target),
		"attachments": atts,
	}
	for k, v := range extra {
		payload[k] = v
	}

	body, err := sonic.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, w.config.Method, w.config.URL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("webhook send: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusAccepted, http.StatusNoContent:
		return "", nil
	default:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return "", fmt.Errorf("webhook send: HTTP %d: %s", resp.StatusCode, snippet)
	}
}
