package napcat

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"github.com/nextbridge/nextbridge/internal/media"
	"github.com/nextbridge/nextbridge/internal/message"
	"github.com/nextbridge/nextbridge/internal/pkg/logs"
)

// segment is one element of an OneBot 11 message array.
type segment struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// parseSegments flattens an OneBot 11 message into text plus attachments.
// The structured segment array is authoritative; the CQ-code raw_message
// string is only a last-resort text fallback. Also returns the quoted
// message ID when the message is a reply.
func parseSegments(raw any, rawMessage string) (string, []*message.Attachment, string) {
	// NapCat may send a plain CQ string instead of an array.
	if s, ok := raw.(string); ok {
		return s, nil, ""
	}
	list, ok := raw.([]any)
	if !ok {
		return rawMessage, nil, ""
	}

	var (
		parts       []string
		attachments []*message.Attachment
		replyID     string
	)

	for _, item := range list {
		seg, ok := item.(map[string]any)
		if !ok {
			continue
		}
		t, _ := seg["type"].(string)
		d, _ := seg["data"].(map[string]any)

		switch t {
		case "text":
			parts = append(parts, message.Str(d["text"]))

		case "at":
			name := message.Str(d["name"])
			if name == "" {
				name = message.Str(d["qq"])
			}
			parts = append(parts, "@"+name)

		case "image":
			attachments = append(attachments, segmentAttachment(d, message.AttachmentImage, "image.jpg"))

		case "record":
			attachments = append(attachments, segmentAttachment(d, message.AttachmentVoice, "voice.amr"))

		case "video":
			attachments = append(attachments, segmentAttachment(d, message.AttachmentVideo, "video.mp4"))

		case "file":
			url := message.Str(d["url"])
			if url == "" {
				url = message.Str(d["path"])
			}
			name := message.Str(d["name"])
			if name == "" {
				name = "file"
			}
			size := int64(-1)
			if v := message.Str(d["size"]); v != "" {
				fmt.Sscanf(v, "%d", &size)
			}
			attachments = append(attachments, &message.Attachment{
				Type: message.AttachmentFile, URL: url, Name: name, Size: size,
			})

		case "face":
			if id := message.Str(d["id"]); id != "" {
				parts = append(parts, ":cqface"+id+":")
			}

		case "mface":
			// Market sticker; the summary is the only portable rendering.
			if summary := strings.TrimSpace(message.Str(d["summary"])); summary != "" {
				parts = append(parts, summary)
			}

		case "reply":
			replyID = message.Str(d["id"])

		case "forward":
			parts = append(parts, "[Forwarded messages]")

		case "json":
			parts = append(parts, appMessageSummary(message.Str(d["data"])))

		case "share":
			title := strings.TrimSpace(message.Str(d["title"]))
			url := strings.TrimSpace(message.Str(d["url"]))
			switch {
			case title != "" && url != "":
				parts = append(parts, fmt.Sprintf("[Share: %s] %s", title, url))
			case url != "":
				parts = append(parts, "[Share] "+url)
			}

		case "location":
			name := strings.TrimSpace(message.Str(d["name"]))
			address := strings.TrimSpace(message.Str(d["address"]))
			label := strings.TrimSpace(strings.Join(nonEmpty(name, address), ", "))
			if label != "" {
				parts = append(parts, "[Location: "+label+"]")
			} else {
				parts = append(parts, "[Location]")
			}

			// poke, dice, rps and friends carry nothing bridgeable.
		}
	}

	text := strings.Join(parts, "")
	if text == "" && len(attachments) == 0 {
		text = rawMessage
	}
	return text, attachments, replyID
}

func segmentAttachment(d map[string]any, typ message.AttachmentType, fallbackName string) *message.Attachment {
	url := message.Str(d["url"])
	if url == "" {
		url = message.Str(d["file"])
	}
	name := message.Str(d["file"])
	if name == "" {
		name = fallbackName
	}
	return &message.Attachment{Type: typ, URL: url, Name: name, Size: -1}
}

// appMessageSummary renders a rich JSON message (contact card, news,
// mini-app) as a short bracketed label. The prompt field is a
// human-readable summary the QQ client always provides.
func appMessageSummary(rawJSON string) string {
	var obj map[string]any
	if err := sonic.UnmarshalString(rawJSON, &obj); err != nil {
		return "[App message]"
	}
	if prompt := strings.TrimSpace(message.Str(obj["prompt"])); prompt != "" {
		return "[" + prompt + "]"
	}

	meta, _ := obj["meta"].(map[string]any)
	for _, key := range []string{"news", "music", "contact", "detail_1"} {
		sub, ok := meta[key].(map[string]any)
		if !ok {
			continue
		}
		title := message.Str(sub["title"])
		if title == "" {
			title = message.Str(sub["nickname"])
		}
		desc := message.Str(sub["desc"])
		if desc == "" {
			desc = message.Str(sub["tag"])
		}
		if label := strings.Join(nonEmpty(title, desc), ": "); label != "" {
			return "[" + label + "]"
		}
	}
	return "[App message]"
}

func nonEmpty(vals ...string) []string {
	out := vals[:0:0]
	for _, v := range vals {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// mediaSegment embeds a fetched attachment as a base64 OneBot segment.
// When the fetch fails (offline CDN, over the size cap) the attachment
// degrades to a text link so the message is not silently thinner.
func (n *NapCat) mediaSegment(ctx context.Context, att *message.Attachment) segment {
	segType := map[message.AttachmentType]string{
		message.AttachmentImage: "image",
		message.AttachmentVoice: "record",
		message.AttachmentVideo: "video",
	}[att.Type]

	data, _, err := media.FetchAttachment(ctx, att, n.config.MaxFileSize)
	if err != nil {
		logs.CtxWarn(ctx, "[napcat:%s] fetch %s attachment: %v", n.instanceID, segType, err)
		label := att.URL
		if label == "" {
			label = att.Name
		}
		return segment{Type: "text", Data: map[string]any{"text": fmt.Sprintf("\n[%s] %s", segType, label)}}
	}

	b64 := base64.StdEncoding.EncodeToString(data)
	return segment{Type: segType, Data: map[string]any{"file": "base64://" + b64}}
}

// uploadGroupFile pushes a generic file through NapCat's upload_group_file
// action, which unlike send_group_msg accepts base64 file bodies.
func (n *NapCat) uploadGroupFile(ctx context.Context, groupID string, att *message.Attachment) {
	data, _, err := media.FetchAttachment(ctx, att, n.config.MaxFileSize)
	if err != nil {
		logs.CtxWarn(ctx, "[napcat:%s] fetch file attachment: %v", n.instanceID, err)
		return
	}

	name := att.Name
	if name == "" {
		name = "file"
	}
	payload := map[string]any{
		"action": "upload_group_file",
		"params": map[string]any{
			"group_id": groupID,
			"file":     "base64://" + base64.StdEncoding.EncodeToString(data),
			"name":     name,
		},
		"echo": uuid.NewString(),
	}
	if err := n.writeJSON(payload); err != nil {
		logs.CtxError(ctx, "[napcat:%s] file upload failed: %v", n.instanceID, err)
	}
}
