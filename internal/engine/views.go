// ABOUTME: Read-only snapshots of engine state for presentation layers
// ABOUTME: Every accessor copies state out of the loop; nothing returned aliases loop memory

package engine

import (
	"context"

	"github.com/2389/chat-sync/internal/conversation"
	"github.com/2389/chat-sync/internal/model"
	"github.com/2389/chat-sync/internal/readstate"
	"github.com/2389/chat-sync/internal/timeline"
)

// Viewer returns the signed-in user.
func (e *Engine) Viewer(ctx context.Context) (model.User, error) {
	var u model.User
	err := e.do(ctx, func() { u = e.viewer })
	return u, err
}

// Connected reports whether the push channel is up.
func (e *Engine) Connected(ctx context.Context) (bool, error) {
	var c bool
	err := e.do(ctx, func() { c = e.connected })
	return c, err
}

// Conversations returns the conversation list in display order, filtered
// by query when it is not empty.
func (e *Engine) Conversations(ctx context.Context, query string) ([]model.Conversation, error) {
	var out []model.Conversation
	err := e.do(ctx, func() {
		out = e.registry.Filter(query, e.viewer.ID, e.signals.PresenceText)
	})
	return out, err
}

// Conversation returns one conversation with its cached members.
func (e *Engine) Conversation(ctx context.Context, conversationID int64) (model.Conversation, bool, error) {
	var (
		c  model.Conversation
		ok bool
	)
	err := e.do(ctx, func() {
		c, ok = e.registry.Get(conversationID)
		if ok && e.registry.HasMembers(conversationID) {
			c.Members = e.registry.Members(conversationID)
		}
	})
	return c, ok, err
}

// Display returns list-row and header text for a conversation.
func (e *Engine) Display(ctx context.Context, conversationID int64) (conversation.Display, bool, error) {
	var (
		d  conversation.Display
		ok bool
	)
	err := e.do(ctx, func() {
		d, ok = e.registry.Display(conversationID, e.viewer.ID, e.signals.PresenceText)
	})
	return d, ok, err
}

// Focused returns the focused conversation id.
func (e *Engine) Focused(ctx context.Context) (int64, bool, error) {
	var (
		id int64
		ok bool
	)
	err := e.do(ctx, func() { id, ok = e.registry.Focused() })
	return id, ok, err
}

// Messages returns the loaded window of a conversation and whether older
// history remains.
func (e *Engine) Messages(ctx context.Context, conversationID int64) ([]model.Message, bool, error) {
	var (
		msgs    []model.Message
		hasMore bool
	)
	err := e.do(ctx, func() {
		msgs = e.timeline.Messages(conversationID)
		hasMore = e.timeline.HasMore(conversationID)
	})
	return msgs, hasMore, err
}

// Composer returns the composer state of a conversation.
func (e *Engine) Composer(ctx context.Context, conversationID int64) (timeline.Composer, error) {
	var c timeline.Composer
	err := e.do(ctx, func() { c = e.timeline.Composer(conversationID) })
	return c, err
}

// Typing returns the users typing in a conversation, first typist first.
// Users not among the cached members are skipped.
func (e *Engine) Typing(ctx context.Context, conversationID int64) ([]model.User, error) {
	var out []model.User
	err := e.do(ctx, func() {
		members := e.registry.Members(conversationID)
		for _, id := range e.signals.Typists(conversationID) {
			for _, m := range members {
				if m.ID == id {
					out = append(out, m.User)
					break
				}
			}
		}
	})
	return out, err
}

// PresenceText renders a user's presence line.
func (e *Engine) PresenceText(ctx context.Context, u model.User) (string, error) {
	var s string
	err := e.do(ctx, func() { s = e.signals.PresenceText(u) })
	return s, err
}

// Unread returns the server-provided unread count of a conversation and
// the total over all conversations.
func (e *Engine) Unread(ctx context.Context, conversationID int64) (count, total int, err error) {
	err = e.do(ctx, func() {
		if c, ok := e.registry.Get(conversationID); ok {
			count = c.Unread()
		}
		total = readstate.Total(e.registry.Ordered())
	})
	return count, total, err
}
