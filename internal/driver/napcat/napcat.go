package napcat

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nextbridge/nextbridge/internal/bridge"
	"github.com/nextbridge/nextbridge/internal/driver"
	"github.com/nextbridge/nextbridge/internal/message"
	"github.com/nextbridge/nextbridge/internal/pkg/logs"
	"github.com/nextbridge/nextbridge/internal/store"
)

const Platform = "napcat"

const reconnectDelay = 5 * time.Second

var _ driver.Driver = (*NapCat)(nil)

func init() {
	driver.MustRegister(driver.Entry{
		Platform:    Platform,
		ParseConfig: ParseConfig,
		New:         New,
	})
}

// NapCat bridges QQ groups through a NapCat instance speaking the OneBot 11
// WebSocket protocol. NapCat pushes events and accepts actions over the
// same connection.
type NapCat struct {
	instanceID string
	config     Config
	router     *bridge.Router
	store      *store.Store

	mu   sync.Mutex // guards conn and serializes writes
	conn *websocket.Conn
}

func New(instanceID string, cfg driver.Config, deps driver.Deps) (driver.Driver, error) {
	ncCfg, ok := cfg.(*Config)
	if !ok {
		return nil, fmt.Errorf("napcat: unexpected config type %T", cfg)
	}

	n := &NapCat{
		instanceID: instanceID,
		config:     *ncCfg,
		router:     deps.Router,
		store:      deps.Store,
	}
	deps.Router.RegisterSender(instanceID, n.Send)
	return n, nil
}

func (n *NapCat) Platform() string   { return Platform }
func (n *NapCat) InstanceID() string { return n.instanceID }

// Start runs the connect/listen/reconnect loop until the context is
// canceled. While disconnected, outbound messages are dropped with a
// warning rather than queued.
func (n *NapCat) Start(ctx context.Context) error {
	wsURL := n.config.WsURL
	if n.config.WsToken != "" {
		sep := "?"
		if strings.Contains(wsURL, "?") {
			sep = "&"
		}
		wsURL += sep + "access_token=" + n.config.WsToken
	}

	for {
		logs.CtxInfo(ctx, "[napcat:%s] connecting to %s", n.instanceID, n.config.WsURL)

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
		if err != nil {
			logs.CtxError(ctx, "[napcat:%s] connect: %v", n.instanceID, err)
		} else {
			n.setConn(conn)
			logs.CtxInfo(ctx, "[napcat:%s] connected", n.instanceID)
			n.listen(ctx, conn)
			n.setConn(nil)
			conn.Close()
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(reconnectDelay):
		}
		logs.CtxInfo(ctx, "[napcat:%s] reconnecting", n.instanceID)
	}
}

func (n *NapCat) setConn(conn *websocket.Conn) {
	n.mu.Lock()
	n.conn = conn
	n.mu.Unlock()
}

func (n *NapCat) listen(ctx context.Context, conn *websocket.Conn) {
	// Unblock ReadMessage when the context ends.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				logs.CtxError(ctx, "[napcat:%s] read: %v", n.instanceID, err)
			}
			return
		}
		n.handleEvent(ctx, raw)
	}
}

type inboundSender struct {
	Card     string `json:"card"`
	Nickname string `json:"nickname"`
}

type inboundEvent struct {
	PostType    string `json:"post_type"`
	MessageType string `json:"message_type"`
	SelfID      int64  `json:"self_id"`
	UserID      int64  `json:"user_id"`
	GroupID     int64  `json:"group_id"`
	MessageID   int64  `json:"message_id"`
	RawMessage  string `json:"raw_message"`

	Sender  inboundSender `json:"sender"`
	Message any           `json:"message"`
}

func (n *NapCat) handleEvent(ctx context.Context, raw []byte) {
	var event inboundEvent
	if err := sonic.Unmarshal(raw, &event); err != nil {
		logs.CtxWarn(ctx, "[napcat:%s] invalid event JSON: %v", n.instanceID, err)
		return
	}

	// Action responses carry no post_type; only group messages are bridged.
	if event.PostType != "message" || event.MessageType != "group" {
		return
	}
	// NapCat echoes the bot's own sent messages back as real events.
	if event.UserID == event.SelfID {
		return
	}

	text, attachments, replyID := parseSegments(event.Message, event.RawMessage)
	if strings.TrimSpace(text) == "" && len(attachments) == 0 {
		return
	}

	userID := fmt.Sprintf("%d", event.UserID)
	nickname := event.Sender.Card
	if nickname == "" {
		nickname = event.Sender.Nickname
	}
	if nickname == "" {
		nickname = userID
	}

	normalized := &message.NormalizedMessage{
		Platform:   Platform,
		InstanceID: n.instanceID,
		Channel:    message.Channel{"group_id": fmt.Sprintf("%d", event.GroupID)},
		User:       nickname,
		UserID:     userID,
		// Public QQ avatar endpoint, no auth required.
		UserAvatar:  fmt.Sprintf("https://q.qlogo.cn/headimg_dl?dst_uin=%s&spec=640", userID),
		Text:        text,
		MessageID:   fmt.Sprintf("%d", event.MessageID),
		Attachments: attachments,
	}

	n.recordInbound(ctx, normalized, replyID)
	n.router.OnMessage(ctx, normalized)
}

func (n *NapCat) recordInbound(ctx context.Context, normalized *message.NormalizedMessage, replyID string) {
	if n.store == nil {
		return
	}

	bridgeID := store.NewBridgeID()
	if err := n.store.SaveMapping(ctx, bridgeID, n.instanceID, normalized.Channel.Str("group_id"), normalized.MessageID); err != nil {
		logs.CtxWarn(ctx, "[napcat:%s] save mapping: %v", n.instanceID, err)
	}
	normalized.BridgeID = bridgeID

	if replyID != "" {
		parent, err := n.store.BridgeID(ctx, n.instanceID, replyID)
		if err != nil {
			logs.CtxWarn(ctx, "[napcat:%s] resolve reply parent: %v", n.instanceID, err)
		} else {
			normalized.ReplyParent = parent
		}
	}
}

// Send delivers one bridged message into a QQ group via a send_group_msg
// action. Media is fetched through the bridge and embedded as base64 so
// NapCat never needs to reach foreign CDNs itself.
func (n *NapCat) Send(ctx context.Context, target message.Channel, text string, attachments []*message.Attachment, extra map[string]any) (string, error) {
	groupID := target.Str("group_id")
	if groupID == "" {
		return "", fmt.Errorf("napcat: target missing group_id")
	}

	n.mu.Lock()
	connected := n.conn != nil
	n.mu.Unlock()
	if !connected {
		logs.CtxWarn(ctx, "[napcat:%s] not connected, message dropped", n.instanceID)
		return "", nil
	}

	segments := n.buildSegments(ctx, groupID, text, attachments, extra)
	if len(segments) == 0 {
		return "", nil
	}

	payload := map[string]any{
		"action": "send_group_msg",
		"params": map[string]any{
			"group_id": groupID,
			"message":  segments,
		},
		"echo": uuid.NewString(),
	}
	if err := n.writeJSON(payload); err != nil {
		return "", fmt.Errorf("napcat send: %w", err)
	}
	// Action responses arrive asynchronously; the sent message ID is not
	// tracked, so replies cannot thread onto QQ copies.
	return "", nil
}

func (n *NapCat) buildSegments(ctx context.Context, groupID, text string, attachments []*message.Attachment, extra map[string]any) []segment {
	var segments []segment

	if parent := n.replyTarget(ctx, extra); parent != "" {
		segments = append(segments, segment{Type: "reply", Data: map[string]any{"id": parent}})
	}
	if text != "" {
		segments = append(segments, segment{Type: "text", Data: map[string]any{"text": text}})
	}

	for _, att := range attachments {
		if !att.Usable() {
			continue
		}
		if att.Type == message.AttachmentFile {
			n.uploadGroupFile(ctx, groupID, att)
			continue
		}
		segments = append(segments, n.mediaSegment(ctx, att))
	}
	return segments
}

func (n *NapCat) replyTarget(ctx context.Context, extra map[string]any) string {
	if n.store == nil {
		return ""
	}
	parent, _ := extra["reply_parent"].(string)
	if parent == "" {
		return ""
	}
	localID, err := n.store.PlatformMsgID(ctx, parent, n.instanceID)
	if err != nil {
		return ""
	}
	return localID
}

func (n *NapCat) writeJSON(payload any) error {
	body, err := sonic.Marshal(payload)
	if err != nil {
		return err
	}

	// gorilla/websocket allows one concurrent writer.
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.conn == nil {
		return fmt.Errorf("connection lost")
	}
	return n.conn.WriteMessage(websocket.TextMessage, body)
}
