package discord

import (
	"context"
	"sync"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextbridge/nextbridge/internal/bridge"
	"github.com/nextbridge/nextbridge/internal/message"
)

// The bot identity is resolved before the gateway opens, so the handler
// can rely on botUserID to drop the bot's own gateway echoes.
func TestHandleMessage_IgnoresOwnMessages(t *testing.T) {
	router := bridge.NewRouter([]bridge.Rule{{
		Type: bridge.RuleForward,
		From: map[string]message.Channel{"dc_main": {"channel_id": "c1"}},
		To:   map[string]message.Channel{"other": {"chat_id": "9"}},
	}})

	var mu sync.Mutex
	var texts []string
	router.RegisterSender("other", func(_ context.Context, _ message.Channel, text string, _ []*message.Attachment, _ map[string]any) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		texts = append(texts, text)
		return "", nil
	})

	d := &Discord{instanceID: "dc_main", router: router, botUserID: "bot-1"}

	mk := func(authorID string, isBot bool) *discordgo.MessageCreate {
		return &discordgo.MessageCreate{Message: &discordgo.Message{
			ID:        "m1",
			ChannelID: "c1",
			Content:   "hello",
			Author:    &discordgo.User{ID: authorID, Username: "u", Bot: isBot},
		}}
	}

	d.handleMessage(nil, mk("bot-1", false)) // own echo
	d.handleMessage(nil, mk("bot-2", true))  // another bot
	d.handleMessage(nil, mk("user-1", false))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, texts, 1)
	assert.Equal(t, "hello", texts[0])
}
