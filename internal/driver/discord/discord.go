package discord

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/bwmarrin/discordgo"
	"github.com/bytedance/sonic"

	"github.com/nextbridge/nextbridge/internal/bridge"
	"github.com/nextbridge/nextbridge/internal/driver"
	"github.com/nextbridge/nextbridge/internal/media"
	"github.com/nextbridge/nextbridge/internal/message"
	"github.com/nextbridge/nextbridge/internal/pkg/logs"
	"github.com/nextbridge/nextbridge/internal/store"
)

const Platform = "discord"

// Discord caps a single message at 2000 characters.
const maxMessageLen = 2000

var _ driver.Driver = (*Discord)(nil)

func init() {
	driver.MustRegister(driver.Entry{
		Platform:    Platform,
		ParseConfig: ParseConfig,
		New:         New,
	})
}

type Discord struct {
	instanceID string
	config     Config
	router     *bridge.Router
	store      *store.Store
	session    *discordgo.Session
	botUserID  string
}

func New(instanceID string, cfg driver.Config, deps driver.Deps) (driver.Driver, error) {
	dcCfg, ok := cfg.(*Config)
	if !ok {
		return nil, fmt.Errorf("discord: unexpected config type %T", cfg)
	}

	session, err := discordgo.New("Bot " + dcCfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	d := &Discord{
		instanceID: instanceID,
		config:     *dcCfg,
		router:     deps.Router,
		store:      deps.Store,
		session:    session,
	}
	deps.Router.RegisterSender(instanceID, d.Send)
	return d, nil
}

func (d *Discord) Platform() string   { return Platform }
func (d *Discord) InstanceID() string { return d.instanceID }

// Start opens the gateway connection and blocks until the context is
// canceled. discordgo reconnects the gateway internally.
func (d *Discord) Start(ctx context.Context) error {
	// Handler goroutines read botUserID as soon as the gateway is live,
	// so resolve the identity before Open.
	me, err := d.session.User("@me")
	if err != nil {
		return fmt.Errorf("fetch discord bot identity: %w", err)
	}
	d.botUserID = me.ID

	d.session.AddHandler(d.handleMessage)
	if err := d.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}
	defer d.session.Close()
	logs.CtxInfo(ctx, "[discord:%s] connected as %s (id=%s)", d.instanceID, me.Username, me.ID)

	<-ctx.Done()
	return nil
}

func (d *Discord) handleMessage(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.Author.ID == d.botUserID {
		return
	}
	// Webhook-mode copies carry no Bot flag; filter by webhook ID instead.
	if m.WebhookID != "" {
		return
	}
	if m.Content == "" && len(m.Attachments) == 0 {
		return
	}

	ctx := context.Background()

	normalized := &message.NormalizedMessage{
		Platform:   Platform,
		InstanceID: d.instanceID,
		Channel: message.Channel{
			"server_id":  m.GuildID,
			"channel_id": m.ChannelID,
		},
		User:        m.Author.Username,
		UserID:      m.Author.ID,
		UserAvatar:  m.Author.AvatarURL(""),
		Text:        m.Content,
		MessageID:   m.ID,
		Attachments: d.extractAttachments(m),
	}

	d.recordInbound(ctx, normalized, m)
	d.router.OnMessage(ctx, normalized)
}

// extractAttachments converts Discord CDN attachments to bridge ones.
// Discord hands out plain URLs, so no eager download is needed; targets
// fetch lazily through the media package.
func (d *Discord) extractAttachments(m *discordgo.MessageCreate) []*message.Attachment {
	if len(m.Attachments) == 0 {
		return nil
	}
	out := make([]*message.Attachment, 0, len(m.Attachments))
	for _, att := range m.Attachments {
		out = append(out, &message.Attachment{
			Type: media.MimeToAttType(att.ContentType),
			URL:  att.URL,
			Name: att.Filename,
			Size: int64(att.Size),
		})
	}
	return out
}

func (d *Discord) recordInbound(ctx context.Context, normalized *message.NormalizedMessage, m *discordgo.MessageCreate) {
	if d.store == nil {
		return
	}

	bridgeID := store.NewBridgeID()
	if err := d.store.SaveMapping(ctx, bridgeID, d.instanceID, m.ChannelID, m.ID); err != nil {
		logs.CtxWarn(ctx, "[discord:%s] save mapping: %v", d.instanceID, err)
	}
	normalized.BridgeID = bridgeID

	if ref := m.MessageReference; ref != nil && ref.MessageID != "" {
		parent, err := d.store.BridgeID(ctx, d.instanceID, ref.MessageID)
		if err != nil {
			logs.CtxWarn(ctx, "[discord:%s] resolve reply parent: %v", d.instanceID, err)
		} else {
			normalized.ReplyParent = parent
		}
	}
}

// Send delivers one bridged message into a Discord channel.
func (d *Discord) Send(ctx context.Context, target message.Channel, text string, attachments []*message.Attachment, extra map[string]any) (string, error) {
	channelID := target.Str("channel_id")
	if channelID == "" {
		return "", fmt.Errorf("discord: target missing channel_id")
	}

	if d.config.SendMethod == SendMethodWebhook {
		return d.sendWebhook(ctx, text, attachments, extra)
	}
	return d.sendBot(ctx, channelID, target.Str("server_id"), text, attachments, extra)
}

func (d *Discord) sendBot(ctx context.Context, channelID, guildID, text string, attachments []*message.Attachment, extra map[string]any) (string, error) {
	files, err := d.buildFiles(ctx, attachments)
	if err != nil {
		logs.CtxWarn(ctx, "[discord:%s] attachment fetch: %v, sending text only", d.instanceID, err)
	}

	chunks := chunkText(text)
	if len(chunks) == 0 && len(files) == 0 {
		return "", nil
	}
	if len(chunks) == 0 {
		chunks = []string{""}
	}

	var firstID string
	for i, chunk := range chunks {
		msg := &discordgo.MessageSend{Content: chunk}
		if i == 0 {
			msg.Files = files
			if ref := d.replyReference(ctx, channelID, guildID, extra); ref != nil {
				msg.Reference = ref
			}
		}
		sent, err := d.session.ChannelMessageSendComplex(channelID, msg)
		if err != nil {
			return "", fmt.Errorf("discord send: %w", err)
		}
		if firstID == "" {
			firstID = sent.ID
		}
	}

	d.recordOutbound(ctx, channelID, firstID, extra)
	return firstID, nil
}

// buildFiles fetches attachment bytes for multipart upload.
func (d *Discord) buildFiles(ctx context.Context, attachments []*message.Attachment) ([]*discordgo.File, error) {
	var files []*discordgo.File
	for _, att := range attachments {
		if !att.Usable() {
			continue
		}
		data, mimeType, err := media.FetchAttachment(ctx, att, d.config.MaxFileSize)
		if err != nil {
			return files, err
		}
		files = append(files, &discordgo.File{
			Name:        media.FilenameFor(att.Name, mimeType),
			ContentType: mimeType,
			Reader:      bytes.NewReader(data),
		})
	}
	return files, nil
}

// webhookPayload is the Discord "execute webhook" body. Webhook mode lets
// the bridge impersonate the original sender with their name and avatar.
type webhookPayload struct {
	Content   string `json:"content"`
	Username  string `json:"username,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

func (d *Discord) sendWebhook(ctx context.Context, text string, attachments []*message.Attachment, extra map[string]any) (string, error) {
	content := text
	// Webhooks cannot multipart-upload through this path; link attachments.
	for _, att := range attachments {
		if att.URL != "" {
			content += "\n" + att.URL
		}
	}
	content = truncateRunes(content, maxMessageLen)

	payload := webhookPayload{Content: content}
	if v, ok := extra["username"].(string); ok {
		payload.Username = v
	}
	if v, ok := extra["avatar_url"].(string); ok {
		payload.AvatarURL = v
	}

	body, err := sonic.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("discord webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.config.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("discord webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("discord webhook post: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("discord webhook post: HTTP %d", resp.StatusCode)
	}
	// The plain execute endpoint returns 204 with no message ID.
	return "", nil
}

func (d *Discord) replyReference(ctx context.Context, channelID, guildID string, extra map[string]any) *discordgo.MessageReference {
	if d.store == nil {
		return nil
	}
	parent, _ := extra["reply_parent"].(string)
	if parent == "" {
		return nil
	}
	localID, err := d.store.PlatformMsgID(ctx, parent, d.instanceID)
	if err != nil || localID == "" {
		return nil
	}
	return &discordgo.MessageReference{
		MessageID: localID,
		ChannelID: channelID,
		GuildID:   guildID,
	}
}

func (d *Discord) recordOutbound(ctx context.Context, channelID, msgID string, extra map[string]any) {
	if d.store == nil || msgID == "" {
		return
	}
	if bridgeID, _ := extra["bridge_id"].(string); bridgeID != "" {
		if err := d.store.SaveMapping(ctx, bridgeID, d.instanceID, channelID, msgID); err != nil {
			logs.CtxWarn(ctx, "[discord:%s] save outbound mapping: %v", d.instanceID, err)
		}
	}
}

// chunkText splits content at the 2000-character limit, preferring
// newline boundaries. Discord counts characters, not bytes, so the cut
// points walk runes and never land inside a multi-byte sequence.
func chunkText(content string) []string {
	var chunks []string
	for content != "" {
		cut := cutPoint(content)
		chunks = append(chunks, content[:cut])
		content = content[cut:]
	}
	return chunks
}

// cutPoint returns the byte offset ending the next chunk: the whole
// string when it fits, otherwise the last newline past the halfway mark
// of the window, otherwise the 2000-rune boundary.
func cutPoint(content string) int {
	runes := 0
	newlineAt, newlineRune := -1, -1
	for i, r := range content {
		if runes == maxMessageLen {
			if newlineRune > maxMessageLen/2 {
				return newlineAt + 1
			}
			return i
		}
		if r == '\n' {
			newlineAt, newlineRune = i, runes
		}
		runes++
	}
	return len(content)
}

// truncateRunes cuts s to at most n characters without splitting a rune.
func truncateRunes(s string, n int) string {
	for i := range s {
		if n == 0 {
			return s[:i]
		}
		n--
	}
	return s
}
