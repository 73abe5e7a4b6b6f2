package feishu

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/bytedance/sonic"
	lark "github.com/larksuite/oapi-sdk-go/v3"
	"github.com/larksuite/oapi-sdk-go/v3/event/dispatcher"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	larkws "github.com/larksuite/oapi-sdk-go/v3/ws"

	"github.com/nextbridge/nextbridge/internal/bridge"
	"github.com/nextbridge/nextbridge/internal/driver"
	"github.com/nextbridge/nextbridge/internal/media"
	"github.com/nextbridge/nextbridge/internal/message"
	"github.com/nextbridge/nextbridge/internal/pkg/logs"
	"github.com/nextbridge/nextbridge/internal/store"
)

const Platform = "feishu"

var _ driver.Driver = (*Feishu)(nil)

func init() {
	driver.MustRegister(driver.Entry{
		Platform:    Platform,
		ParseConfig: ParseConfig,
		New:         New,
	})
}

// Feishu bridges Lark/Feishu chats over the SDK's long connection, so no
// public endpoint or event subscription URL is needed.
type Feishu struct {
	instanceID string
	config     Config
	router     *bridge.Router
	store      *store.Store
	client     *lark.Client
	wsClient   *larkws.Client
}

func New(instanceID string, cfg driver.Config, deps driver.Deps) (driver.Driver, error) {
	fsCfg, ok := cfg.(*Config)
	if !ok {
		return nil, fmt.Errorf("feishu: unexpected config type %T", cfg)
	}

	f := &Feishu{
		instanceID: instanceID,
		config:     *fsCfg,
		router:     deps.Router,
		store:      deps.Store,
		client:     lark.NewClient(fsCfg.AppID, fsCfg.AppSecret),
	}

	eventDispatcher := dispatcher.NewEventDispatcher("", "")
	eventDispatcher.OnP2MessageReceiveV1(f.onMessageReceive)
	f.wsClient = larkws.NewClient(fsCfg.AppID, fsCfg.AppSecret,
		larkws.WithEventHandler(eventDispatcher),
	)

	deps.Router.RegisterSender(instanceID, f.Send)
	return f, nil
}

func (f *Feishu) Platform() string   { return Platform }
func (f *Feishu) InstanceID() string { return f.instanceID }

func (f *Feishu) Start(ctx context.Context) error {
	logs.CtxInfo(ctx, "[feishu:%s] starting long connection", f.instanceID)

	errCh := make(chan error, 1)
	go func() {
		errCh <- f.wsClient.Start(ctx)
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return nil
	}
}

// onMessageReceive is the SDK callback for im.message.receive_v1.
func (f *Feishu) onMessageReceive(ctx context.Context, event *larkim.P2MessageReceiveV1) error {
	msg := event.Event.Message
	if msg == nil || msg.MessageId == nil {
		return nil
	}

	msgType := deref(msg.MessageType)

	var content string
	var attachments []*message.Attachment

	switch msgType {
	case "text":
		text, err := extractText(msg.Content)
		if err != nil {
			logs.CtxWarn(ctx, "[feishu:%s] extract text: %v", f.instanceID, err)
			return nil
		}
		content = text

	case "image":
		key, err := extractKey(msg.Content, "image_key")
		if err != nil {
			logs.CtxWarn(ctx, "[feishu:%s] extract image_key: %v", f.instanceID, err)
			return nil
		}
		att, err := f.downloadResource(ctx, *msg.MessageId, key, "image", message.AttachmentImage)
		if err != nil {
			logs.CtxWarn(ctx, "[feishu:%s] download image: %v", f.instanceID, err)
		} else if att != nil {
			attachments = append(attachments, att)
		}

	case "audio":
		key, err := extractKey(msg.Content, "file_key")
		if err != nil {
			logs.CtxWarn(ctx, "[feishu:%s] extract file_key: %v", f.instanceID, err)
			return nil
		}
		att, err := f.downloadResource(ctx, *msg.MessageId, key, "file", message.AttachmentVoice)
		if err != nil {
			logs.CtxWarn(ctx, "[feishu:%s] download audio: %v", f.instanceID, err)
		} else if att != nil {
			attachments = append(attachments, att)
		}

	case "file":
		key, err := extractKey(msg.Content, "file_key")
		if err != nil {
			logs.CtxWarn(ctx, "[feishu:%s] extract file_key: %v", f.instanceID, err)
			return nil
		}
		att, err := f.downloadResource(ctx, *msg.MessageId, key, "file", message.AttachmentFile)
		if err != nil {
			logs.CtxWarn(ctx, "[feishu:%s] download file: %v", f.instanceID, err)
		} else if att != nil {
			attachments = append(attachments, att)
		}

	default:
		logs.CtxDebug(ctx, "[feishu:%s] ignoring message type %s", f.instanceID, msgType)
		return nil
	}

	if content == "" && len(attachments) == 0 {
		return nil
	}

	var userID string
	if s := event.Event.Sender; s != nil && s.SenderId != nil {
		userID = deref(s.SenderId.OpenId)
	}

	normalized := &message.NormalizedMessage{
		Platform:    Platform,
		InstanceID:  f.instanceID,
		Channel:     message.Channel{"chat_id": deref(msg.ChatId)},
		User:        userID,
		UserID:      userID,
		Text:        content,
		MessageID:   *msg.MessageId,
		Attachments: attachments,
	}

	f.recordInbound(ctx, normalized, msg)
	f.router.OnMessage(ctx, normalized)
	return nil
}

func (f *Feishu) recordInbound(ctx context.Context, normalized *message.NormalizedMessage, msg *larkim.EventMessage) {
	if f.store == nil {
		return
	}

	bridgeID := store.NewBridgeID()
	if err := f.store.SaveMapping(ctx, bridgeID, f.instanceID, normalized.Channel.Str("chat_id"), normalized.MessageID); err != nil {
		logs.CtxWarn(ctx, "[feishu:%s] save mapping: %v", f.instanceID, err)
	}
	normalized.BridgeID = bridgeID

	if parentID := deref(msg.ParentId); parentID != "" {
		parent, err := f.store.BridgeID(ctx, f.instanceID, parentID)
		if err != nil {
			logs.CtxWarn(ctx, "[feishu:%s] resolve reply parent: %v", f.instanceID, err)
		} else {
			normalized.ReplyParent = parent
		}
	}
}

// downloadResource pulls a message-scoped image or file from Lark.
// Oversized resources are skipped, not errors.
func (f *Feishu) downloadResource(ctx context.Context, messageID, fileKey, resType string, attType message.AttachmentType) (*message.Attachment, error) {
	resp, err := f.client.Im.MessageResource.Get(ctx,
		larkim.NewGetMessageResourceReqBuilder().
			MessageId(messageID).
			FileKey(fileKey).
			Type(resType).
			Build())
	if err != nil {
		return nil, fmt.Errorf("get resource: %w", err)
	}
	if !resp.Success() {
		return nil, fmt.Errorf("get resource failed: code=%d msg=%s", resp.Code, resp.Msg)
	}

	data, err := io.ReadAll(io.LimitReader(resp.File, f.config.MaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("read resource body: %w", err)
	}
	if int64(len(data)) > f.config.MaxFileSize {
		logs.CtxDebug(ctx, "[feishu:%s] resource %s too large, skipping", f.instanceID, fileKey)
		return nil, nil
	}

	return &message.Attachment{
		Type: attType,
		Name: resp.FileName,
		Size: int64(len(data)),
		Data: data,
	}, nil
}

// Send delivers one bridged message into a Feishu chat. Text goes out as a
// text message; each attachment is uploaded and sent separately.
func (f *Feishu) Send(ctx context.Context, target message.Channel, text string, attachments []*message.Attachment, extra map[string]any) (string, error) {
	chatID := target.Str("chat_id")
	if chatID == "" {
		return "", fmt.Errorf("feishu: target missing chat_id")
	}

	var firstID string
	if text != "" {
		body, err := sonic.MarshalString(map[string]string{"text": text})
		if err != nil {
			return "", fmt.Errorf("feishu text payload: %w", err)
		}
		id, err := f.createMessage(ctx, chatID, larkim.MsgTypeText, body, extra)
		if err != nil {
			return "", err
		}
		firstID = id
	}

	for _, att := range attachments {
		if !att.Usable() {
			continue
		}
		id, err := f.sendAttachment(ctx, chatID, att, extra)
		if err != nil {
			logs.CtxWarn(ctx, "[feishu:%s] send attachment: %v", f.instanceID, err)
			continue
		}
		if firstID == "" {
			firstID = id
		}
	}

	f.recordOutbound(ctx, chatID, firstID, extra)
	return firstID, nil
}

func (f *Feishu) sendAttachment(ctx context.Context, chatID string, att *message.Attachment, extra map[string]any) (string, error) {
	data, mimeType, err := media.FetchAttachment(ctx, att, f.config.MaxFileSize)
	if err != nil {
		return "", err
	}

	if att.Type == message.AttachmentImage {
		imgResp, err := f.client.Im.Image.Create(ctx,
			larkim.NewCreateImageReqBuilder().
				Body(larkim.NewCreateImageReqBodyBuilder().
					ImageType(larkim.ImageTypeMessage).
					Image(bytes.NewReader(data)).
					Build()).
				Build())
		if err != nil {
			return "", fmt.Errorf("upload image: %w", err)
		}
		if !imgResp.Success() {
			return "", fmt.Errorf("upload image failed: code=%d msg=%s", imgResp.Code, imgResp.Msg)
		}
		body, err := sonic.MarshalString(map[string]string{"image_key": deref(imgResp.Data.ImageKey)})
		if err != nil {
			return "", err
		}
		return f.createMessage(ctx, chatID, larkim.MsgTypeImage, body, extra)
	}

	fileResp, err := f.client.Im.File.Create(ctx,
		larkim.NewCreateFileReqBuilder().
			Body(larkim.NewCreateFileReqBodyBuilder().
				FileType("stream").
				FileName(media.FilenameFor(att.Name, mimeType)).
				File(bytes.NewReader(data)).
				Build()).
			Build())
	if err != nil {
		return "", fmt.Errorf("upload file: %w", err)
	}
	if !fileResp.Success() {
		return "", fmt.Errorf("upload file failed: code=%d msg=%s", fileResp.Code, fileResp.Msg)
	}
	body, err := sonic.MarshalString(map[string]string{"file_key": deref(fileResp.Data.FileKey)})
	if err != nil {
		return "", err
	}
	return f.createMessage(ctx, chatID, larkim.MsgTypeFile, body, extra)
}

// createMessage sends one message, threading it as a reply when the bridge
// knows a local parent copy.
func (f *Feishu) createMessage(ctx context.Context, chatID, msgType, body string, extra map[string]any) (string, error) {
	if parentID := f.replyTarget(ctx, extra); parentID != "" {
		resp, err := f.client.Im.Message.Reply(ctx,
			larkim.NewReplyMessageReqBuilder().
				MessageId(parentID).
				Body(larkim.NewReplyMessageReqBodyBuilder().
					MsgType(msgType).
					Content(body).
					Build()).
				Build())
		if err != nil {
			return "", fmt.Errorf("feishu reply: %w", err)
		}
		if !resp.Success() {
			return "", fmt.Errorf("feishu reply failed: code=%d msg=%s", resp.Code, resp.Msg)
		}
		return deref(resp.Data.MessageId), nil
	}

	resp, err := f.client.Im.Message.Create(ctx,
		larkim.NewCreateMessageReqBuilder().
			ReceiveIdType(larkim.ReceiveIdTypeChatId).
			Body(larkim.NewCreateMessageReqBodyBuilder().
				MsgType(msgType).
				ReceiveId(chatID).
				Content(body).
				Build()).
			Build())
	if err != nil {
		return "", fmt.Errorf("feishu send: %w", err)
	}
	if !resp.Success() {
		return "", fmt.Errorf("feishu send failed: code=%d msg=%s", resp.Code, resp.Msg)
	}
	return deref(resp.Data.MessageId), nil
}

func (f *Feishu) replyTarget(ctx context.Context, extra map[string]any) string {
	if f.store == nil {
		return ""
	}
	parent, _ := extra["reply_parent"].(string)
	if parent == "" {
		return ""
	}
	localID, err := f.store.PlatformMsgID(ctx, parent, f.instanceID)
	if err != nil {
		return ""
	}
	return localID
}

func (f *Feishu) recordOutbound(ctx context.Context, chatID, msgID string, extra map[string]any) {
	if f.store == nil || msgID == "" {
		return
	}
	if bridgeID, _ := extra["bridge_id"].(string); bridgeID != "" {
		if err := f.store.SaveMapping(ctx, bridgeID, f.instanceID, chatID, msgID); err != nil {
			logs.CtxWarn(ctx, "[feishu:%s] save outbound mapping: %v", f.instanceID, err)
		}
	}
}

// extractText parses the JSON content of a text message: {"text":"..."}.
func extractText(content *string) (string, error) {
	if content == nil || *content == "" {
		return "", nil
	}
	var parsed struct {
		Text string `json:"text"`
	}
	if err := sonic.UnmarshalString(*content, &parsed); err != nil {
		return "", fmt.Errorf("unmarshal message content: %w", err)
	}
	return parsed.Text, nil
}

// extractKey parses a named key from the JSON content field:
// {"image_key":"..."} for images, {"file_key":"..."} for audio and files.
func extractKey(content *string, key string) (string, error) {
	if content == nil || *content == "" {
		return "", fmt.Errorf("content is empty")
	}
	var parsed map[string]string
	if err := sonic.UnmarshalString(*content, &parsed); err != nil {
		return "", fmt.Errorf("unmarshal content: %w", err)
	}
	val, ok := parsed[key]
	if !ok || val == "" {
		return "", fmt.Errorf("key %q not found in content", key)
	}
	return val, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
