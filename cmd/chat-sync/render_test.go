package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"

	"github.com/2389/chat-sync/internal/config"
	"github.com/2389/chat-sync/internal/conversation"
	"github.com/2389/chat-sync/internal/model"
)

func init() {
	color.NoColor = true
}

func TestFormatMessage(t *testing.T) {
	created := time.Date(2026, 3, 4, 9, 30, 0, 0, time.Local)
	edited := created.Add(time.Minute)

	t.Run("plain", func(t *testing.T) {
		m := model.Message{ID: 7, Author: model.User{ID: 2, DisplayName: "Ada"}, Content: "**hi**", CreatedAt: created}
		assert.Equal(t, "09:30 Ada #7: hi", formatMessage(m, 1))
	})

	t.Run("edited with reactions and attachment", func(t *testing.T) {
		m := model.Message{
			ID:          8,
			Author:      model.User{ID: 1, Username: "me"},
			Content:     "look",
			CreatedAt:   created,
			EditedAt:    &edited,
			Attachments: []model.Attachment{{ID: "a1", OriginalName: "cat.png", Size: 2048}},
			Reactions:   []model.Reaction{{Emoji: "👍", Count: 2}},
		}
		assert.Equal(t, "09:30 me #8: look [cat.png, 2.0 kB] (edited)  👍 2", formatMessage(m, 1))
	})

	t.Run("deleted", func(t *testing.T) {
		m := model.Message{ID: 9, Author: model.User{ID: 3}, Content: "", CreatedAt: created, DeletedAt: &edited}
		assert.Equal(t, "09:30 user 3 #9: message deleted", formatMessage(m, 1))
	})
}

func TestFormatRow(t *testing.T) {
	d := conversation.Display{Title: "launch", Subtitle: "3 members", Unread: 120}
	assert.Equal(t, "▶    4 launch 3 members (99+)", formatRow(4, d, true))

	d.Unread = 0
	assert.Equal(t, "     4 launch 3 members", formatRow(4, d, false))
}

func TestTypingLine(t *testing.T) {
	ada := model.User{DisplayName: "Ada"}
	bob := model.User{Username: "bob"}
	cy := model.User{Username: "cy"}

	assert.Empty(t, typingLine(nil))
	assert.Equal(t, "Ada is typing…", typingLine([]model.User{ada}))
	assert.Equal(t, "Ada and bob are typing…", typingLine([]model.User{ada, bob}))
	assert.Equal(t, "Ada and 2 others are typing…", typingLine([]model.User{ada, bob, cy}))
}

func TestSetupLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := setupLogger(config.LoggingConfig{Level: "warn"}, &buf)

	logger.Info("hidden")
	logger.With("component", "engine").Warn("shown", "conversation_id", 4)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "WRN shown component=engine conversation_id=4")
	assert.Equal(t, 1, strings.Count(out, "\n"))
}

func TestSetupLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := setupLogger(config.LoggingConfig{Level: "debug", Format: "json"}, &buf)

	logger.Debug("hello", "k", "v")

	assert.Contains(t, buf.String(), `"msg":"hello"`)
	assert.Contains(t, buf.String(), `"level":"DEBUG"`)
}
