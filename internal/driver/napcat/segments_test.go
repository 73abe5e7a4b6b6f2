package napcat

import (
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextbridge/nextbridge/internal/message"
)

func decodeEvent(t *testing.T, raw string) inboundEvent {
	t.Helper()
	var event inboundEvent
	require.NoError(t, sonic.UnmarshalString(raw, &event))
	return event
}

func TestParseSegments_TextAndAt(t *testing.T) {
	event := decodeEvent(t, `{
		"message": [
			{"type": "text", "data": {"text": "hello "}},
			{"type": "at", "data": {"qq": "10001", "name": "bob"}},
			{"type": "text", "data": {"text": " world"}}
		]
	}`)

	text, atts, replyID := parseSegments(event.Message, "")
	assert.Equal(t, "hello @bob world", text)
	assert.Empty(t, atts)
	assert.Empty(t, replyID)
}

func TestParseSegments_Media(t *testing.T) {
	event := decodeEvent(t, `{
		"message": [
			{"type": "image", "data": {"url": "https://cdn.example/a.jpg", "file": "a.jpg"}},
			{"type": "record", "data": {"file": "voice123.amr"}},
			{"type": "file", "data": {"url": "https://cdn.example/doc.pdf", "name": "doc.pdf", "size": 2048}}
		]
	}`)

	_, atts, _ := parseSegments(event.Message, "")
	require.Len(t, atts, 3)

	assert.Equal(t, message.AttachmentImage, atts[0].Type)
	assert.Equal(t, "https://cdn.example/a.jpg", atts[0].URL)

	// No url field: file doubles as the reference.
	assert.Equal(t, message.AttachmentVoice, atts[1].Type)
	assert.Equal(t, "voice123.amr", atts[1].URL)

	assert.Equal(t, message.AttachmentFile, atts[2].Type)
	assert.Equal(t, "doc.pdf", atts[2].Name)
	assert.Equal(t, int64(2048), atts[2].Size)
}

func TestParseSegments_Reply(t *testing.T) {
	event := decodeEvent(t, `{
		"message": [
			{"type": "reply", "data": {"id": "445566"}},
			{"type": "text", "data": {"text": "agreed"}}
		]
	}`)

	text, _, replyID := parseSegments(event.Message, "")
	assert.Equal(t, "agreed", text)
	assert.Equal(t, "445566", replyID)
}

func TestParseSegments_AppMessage(t *testing.T) {
	event := decodeEvent(t, `{
		"message": [
			{"type": "json", "data": {"data": "{\"prompt\": \"[QQ小程序]哔哩哔哩\"}"}}
		]
	}`)

	text, _, _ := parseSegments(event.Message, "")
	assert.Equal(t, "[[QQ小程序]哔哩哔哩]", text)
}

func TestParseSegments_RawFallback(t *testing.T) {
	// A plain CQ string instead of a segment array.
	text, atts, _ := parseSegments("plain cq text", "")
	assert.Equal(t, "plain cq text", text)
	assert.Empty(t, atts)

	// Empty segment list falls back to raw_message.
	event := decodeEvent(t, `{"message": []}`)
	text, _, _ = parseSegments(event.Message, "[CQ:poke,qq=10001]")
	assert.Equal(t, "[CQ:poke,qq=10001]", text)
}

func TestAppMessageSummary_MetaFallback(t *testing.T) {
	got := appMessageSummary(`{"meta": {"news": {"title": "Headline", "desc": "details"}}}`)
	assert.Equal(t, "[Headline: details]", got)

	assert.Equal(t, "[App message]", appMessageSummary("not json"))
	assert.Equal(t, "[App message]", appMessageSummary(`{"meta": {}}`))
}
