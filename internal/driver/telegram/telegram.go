package telegram

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/nextbridge/nextbridge/internal/bridge"
	"github.com/nextbridge/nextbridge/internal/driver"
	"github.com/nextbridge/nextbridge/internal/media"
	"github.com/nextbridge/nextbridge/internal/message"
	"github.com/nextbridge/nextbridge/internal/pkg/logs"
	"github.com/nextbridge/nextbridge/internal/store"
)

const Platform = "telegram"

var _ driver.Driver = (*Telegram)(nil)

func init() {
	driver.MustRegister(driver.Entry{
		Platform:    Platform,
		ParseConfig: ParseConfig,
		New:         New,
	})
}

type Telegram struct {
	instanceID string
	config     Config
	router     *bridge.Router
	store      *store.Store
	bot        *bot.Bot
}

func New(instanceID string, cfg driver.Config, deps driver.Deps) (driver.Driver, error) {
	tgCfg, ok := cfg.(*Config)
	if !ok {
		return nil, fmt.Errorf("telegram: unexpected config type %T", cfg)
	}

	tg := &Telegram{
		instanceID: instanceID,
		config:     *tgCfg,
		router:     deps.Router,
		store:      deps.Store,
	}

	tgBot, err := bot.New(tgCfg.BotToken, bot.WithDefaultHandler(tg.handleUpdate))
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	tg.bot = tgBot

	deps.Router.RegisterSender(instanceID, tg.Send)
	return tg, nil
}

func (t *Telegram) Platform() string   { return Platform }
func (t *Telegram) InstanceID() string { return t.instanceID }

// Start runs the long-polling loop. bot.Start blocks until ctx is canceled
// and handles Telegram API outages with its own retry, so one call is the
// whole lifecycle.
func (t *Telegram) Start(ctx context.Context) error {
	me, err := t.bot.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("telegram getMe: %w", err)
	}
	logs.CtxInfo(ctx, "[telegram:%s] connected as @%s", t.instanceID, me.Username)

	t.bot.Start(ctx)
	return nil
}

// handleUpdate normalizes one inbound Telegram update and hands it to the
// router.
func (t *Telegram) handleUpdate(ctx context.Context, b *bot.Bot, update *models.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil || msg.From.IsBot {
		return
	}

	content := msg.Text
	if content == "" {
		content = msg.Caption
	}

	attachments := t.extractAttachments(ctx, msg)
	if content == "" && len(attachments) == 0 {
		return
	}

	normalized := &message.NormalizedMessage{
		Platform:   Platform,
		InstanceID: t.instanceID,
		Channel:    message.Channel{"chat_id": strconv.FormatInt(msg.Chat.ID, 10)},
		User:       displayName(msg.From),
		UserID:     strconv.FormatInt(msg.From.ID, 10),
		Text:       content,
		MessageID:  strconv.Itoa(msg.ID),

		Attachments: attachments,
	}

	t.recordInbound(ctx, normalized, msg)
	t.router.OnMessage(ctx, normalized)
}

// recordInbound mints a bridge ID for the new message and resolves the
// reply parent when this message answers one the bridge has seen.
func (t *Telegram) recordInbound(ctx context.Context, normalized *message.NormalizedMessage, msg *models.Message) {
	if t.store == nil {
		return
	}

	bridgeID := store.NewBridgeID()
	if err := t.store.SaveMapping(ctx, bridgeID, t.instanceID, normalized.Channel.Str("chat_id"), normalized.MessageID); err != nil {
		logs.CtxWarn(ctx, "[telegram:%s] save mapping: %v", t.instanceID, err)
	}
	normalized.BridgeID = bridgeID

	if msg.ReplyToMessage != nil {
		parent, err := t.store.BridgeID(ctx, t.instanceID, strconv.Itoa(msg.ReplyToMessage.ID))
		if err != nil {
			logs.CtxWarn(ctx, "[telegram:%s] resolve reply parent: %v", t.instanceID, err)
		} else {
			normalized.ReplyParent = parent
		}
	}
}

func (t *Telegram) extractAttachments(ctx context.Context, msg *models.Message) []*message.Attachment {
	var out []*message.Attachment

	add := func(att *message.Attachment, err error) {
		if err != nil {
			logs.CtxWarn(ctx, "[telegram:%s] attachment: %v", t.instanceID, err)
			return
		}
		if att != nil {
			out = append(out, att)
		}
	}

	if len(msg.Photo) > 0 {
		// Telegram sends multiple sizes; the last one is the largest.
		best := msg.Photo[len(msg.Photo)-1]
		add(t.download(ctx, best.FileID, int64(best.FileSize), message.AttachmentImage, ""))
	}
	if msg.Document != nil {
		add(t.download(ctx, msg.Document.FileID, msg.Document.FileSize, message.AttachmentFile, msg.Document.FileName))
	}
	if msg.Video != nil {
		add(t.download(ctx, msg.Video.FileID, msg.Video.FileSize, message.AttachmentVideo, msg.Video.FileName))
	}
	if msg.Voice != nil {
		add(t.download(ctx, msg.Voice.FileID, msg.Voice.FileSize, message.AttachmentVoice, ""))
	}
	return out
}

// download fetches a Telegram file into memory, honoring the configured
// size cap. Oversized files are skipped with a debug line, not an error.
func (t *Telegram) download(ctx context.Context, fileID string, size int64, typ message.AttachmentType, name string) (*message.Attachment, error) {
	if size > t.config.MaxFileSize {
		logs.CtxDebug(ctx, "[telegram:%s] file %s too large (%d bytes), skipping", t.instanceID, fileID, size)
		return nil, nil
	}

	file, err := t.bot.GetFile(ctx, &bot.GetFileParams{FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("get file: %w", err)
	}
	link := t.bot.FileDownloadLink(file)

	resp, err := http.Get(link) //nolint:gosec // URL comes from the Telegram API
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download file: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, t.config.MaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("read file body: %w", err)
	}
	if int64(len(data)) > t.config.MaxFileSize {
		logs.CtxDebug(ctx, "[telegram:%s] file %s exceeded cap mid-download, skipping", t.instanceID, fileID)
		return nil, nil
	}

	if name == "" {
		name = file.FilePath
	}
	return &message.Attachment{
		Type: typ,
		Name: media.FilenameFor(name, resp.Header.Get("Content-Type")),
		Size: int64(len(data)),
		Data: data,
	}, nil
}

// Send delivers one bridged message into a Telegram chat. Text goes as the
// caption of the first attachment when attachments are present.
func (t *Telegram) Send(ctx context.Context, target message.Channel, text string, attachments []*message.Attachment, extra map[string]any) (string, error) {
	chatID, err := strconv.ParseInt(target.Str("chat_id"), 10, 64)
	if err != nil {
		return "", fmt.Errorf("telegram: invalid chat_id %q", target.Str("chat_id"))
	}

	reply := t.replyParams(ctx, chatID, extra)

	if len(attachments) == 0 {
		sent, err := t.bot.SendMessage(ctx, &bot.SendMessageParams{
			ChatID:          chatID,
			Text:            text,
			ReplyParameters: reply,
		})
		if err != nil {
			return "", fmt.Errorf("telegram send: %w", err)
		}
		return t.recordOutbound(ctx, chatID, sent.ID, extra), nil
	}

	var firstID int
	caption := text
	for _, att := range attachments {
		if !att.Usable() {
			continue
		}
		id, err := t.sendAttachment(ctx, chatID, att, caption, reply)
		if err != nil {
			return "", err
		}
		if firstID == 0 {
			firstID = id
		}
		caption, reply = "", nil
	}
	if firstID == 0 && text != "" {
		sent, err := t.bot.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: text, ReplyParameters: reply})
		if err != nil {
			return "", fmt.Errorf("telegram send: %w", err)
		}
		firstID = sent.ID
	}
	return t.recordOutbound(ctx, chatID, firstID, extra), nil
}

func (t *Telegram) sendAttachment(ctx context.Context, chatID int64, att *message.Attachment, caption string, reply *models.ReplyParameters) (int, error) {
	var input models.InputFile
	if len(att.Data) > 0 {
		name := att.Name
		if name == "" {
			name = "attachment"
		}
		input = &models.InputFileUpload{Filename: name, Data: bytes.NewReader(att.Data)}
	} else {
		input = &models.InputFileString{Data: att.URL}
	}

	switch att.Type {
	case message.AttachmentImage:
		sent, err := t.bot.SendPhoto(ctx, &bot.SendPhotoParams{
			ChatID: chatID, Photo: input, Caption: caption, ReplyParameters: reply,
		})
		if err != nil {
			return 0, fmt.Errorf("telegram send photo: %w", err)
		}
		return sent.ID, nil
	case message.AttachmentVideo:
		sent, err := t.bot.SendVideo(ctx, &bot.SendVideoParams{
			ChatID: chatID, Video: input, Caption: caption, ReplyParameters: reply,
		})
		if err != nil {
			return 0, fmt.Errorf("telegram send video: %w", err)
		}
		return sent.ID, nil
	case message.AttachmentVoice:
		sent, err := t.bot.SendVoice(ctx, &bot.SendVoiceParams{
			ChatID: chatID, Voice: input, Caption: caption, ReplyParameters: reply,
		})
		if err != nil {
			return 0, fmt.Errorf("telegram send voice: %w", err)
		}
		return sent.ID, nil
	default:
		sent, err := t.bot.SendDocument(ctx, &bot.SendDocumentParams{
			ChatID: chatID, Document: input, Caption: caption, ReplyParameters: reply,
		})
		if err != nil {
			return 0, fmt.Errorf("telegram send document: %w", err)
		}
		return sent.ID, nil
	}
}

// replyParams threads the outgoing message onto the local copy of its
// bridge-wide reply parent, when one exists in this chat.
func (t *Telegram) replyParams(ctx context.Context, chatID int64, extra map[string]any) *models.ReplyParameters {
	if t.store == nil {
		return nil
	}
	parent, _ := extra["reply_parent"].(string)
	if parent == "" {
		return nil
	}
	localID, err := t.store.PlatformMsgID(ctx, parent, t.instanceID)
	if err != nil || localID == "" {
		return nil
	}
	msgID, err := strconv.Atoi(localID)
	if err != nil {
		return nil
	}
	return &models.ReplyParameters{ChatID: chatID, MessageID: msgID}
}

// recordOutbound maps the message we just sent to its bridge ID so later
// replies to it can be threaded.
func (t *Telegram) recordOutbound(ctx context.Context, chatID int64, msgID int, extra map[string]any) string {
	if msgID == 0 {
		return ""
	}
	platformID := strconv.Itoa(msgID)
	if t.store != nil {
		if bridgeID, _ := extra["bridge_id"].(string); bridgeID != "" {
			if err := t.store.SaveMapping(ctx, bridgeID, t.instanceID, strconv.FormatInt(chatID, 10), platformID); err != nil {
				logs.CtxWarn(ctx, "[telegram:%s] save outbound mapping: %v", t.instanceID, err)
			}
		}
	}
	return platformID
}

func displayName(u *models.User) string {
	name := u.FirstName
	if u.LastName != "" {
		name += " " + u.LastName
	}
	if name == "" {
		name = u.Username
	}
	return name
}
