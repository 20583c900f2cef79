// ABOUTME: Read-receipt emission on focus and foreground changes
// ABOUTME: Unread counts are read from server data only and never incremented locally

package readstate

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/2389/chat-sync/internal/model"
	"github.com/2389/chat-sync/internal/push"
)

// badgeCap is the largest count a badge shows verbatim.
const badgeCap = 99

// Emitter sends a fire-and-forget push event. *push.Client satisfies it.
type Emitter interface {
	Emit(event string, payload any) error
}

// Tracker decides when to send conversation:read. It is not safe for
// concurrent use; the engine loop owns it.
type Tracker struct {
	emitter    Emitter
	foreground bool
	logger     *slog.Logger
}

// NewTracker creates a tracker. The application starts in the foreground.
// Pass nil logger for default.
func NewTracker(emitter Emitter, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		emitter:    emitter,
		foreground: true,
		logger:     logger.With("component", "readstate"),
	}
}

// OnFocus emits a read receipt for a newly focused conversation.
func (t *Tracker) OnFocus(conversationID int64) error {
	return t.emit(conversationID)
}

// SetForeground records whether the application is in the foreground.
// Regaining the foreground with a focused conversation emits a receipt for
// it. Reports whether a receipt was attempted.
func (t *Tracker) SetForeground(foreground bool, focusedID int64, hasFocus bool) (bool, error) {
	regained := foreground && !t.foreground
	t.foreground = foreground
	if !regained || !hasFocus {
		return false, nil
	}
	return true, t.emit(focusedID)
}

// Foreground reports whether the application is in the foreground.
func (t *Tracker) Foreground() bool {
	return t.foreground
}

func (t *Tracker) emit(conversationID int64) error {
	if conversationID == 0 {
		return nil
	}
	err := t.emitter.Emit(push.EventConversationRead, push.ConversationRef{ConversationID: conversationID})
	if err != nil {
		t.logger.Debug("read receipt not sent", "conversation_id", conversationID, "error", err)
		return fmt.Errorf("sending read receipt for %d: %w", conversationID, err)
	}
	return nil
}

// Total sums the server-provided unread counts.
func Total(conversations []model.Conversation) int {
	n := 0
	for _, c := range conversations {
		n += c.Unread()
	}
	return n
}

// Badge renders an unread count for a list row: empty for zero, "99+" above
// the cap.
func Badge(n int) string {
	switch {
	case n <= 0:
		return ""
	case n > badgeCap:
		return strconv.Itoa(badgeCap) + "+"
	default:
		return strconv.Itoa(n)
	}
}
