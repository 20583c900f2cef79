// ABOUTME: Push event handlers applied on the engine loop in arrival order
// ABOUTME: Each handler decodes one event, mutates loop-owned state and publishes notifications

package engine

import (
	"context"
	"errors"
	"strings"

	"github.com/2389/chat-sync/internal/model"
	"github.com/2389/chat-sync/internal/notify"
	"github.com/2389/chat-sync/internal/push"
)

// handle dispatches one inbound event. Loop only.
func (e *Engine) handle(ev push.Event) {
	var err error
	switch ev.Name {
	case push.EventConnected:
		e.setConnected(true)
	case push.EventDisconnected:
		e.setConnected(false)
	case push.EventConversationList:
		err = e.onConversationList(ev)
	case push.EventConversationCreated:
		err = e.onConversationCreated(ev)
	case push.EventMemberAdded:
		err = e.onMemberAdded(ev)
	case push.EventMemberRemoved:
		err = e.onMemberRemoved(ev)
	case push.EventMessageCreated, push.EventMessageUpdated:
		err = e.onMessage(ev)
	case push.EventMessageDeleted:
		err = e.onMessageDeleted(ev)
	case push.EventTypingUpdate:
		err = e.onTypingUpdate(ev)
	case push.EventPresenceUpdate:
		err = e.onPresenceUpdate(ev)
	case push.EventProfileUpdate:
		err = e.onProfileUpdate(ev)
	default:
		e.logger.Debug("ignoring push event", "event", ev.Name)
		return
	}
	if err != nil {
		e.logger.Warn("dropping undecodable push event", "event", ev.Name, "error", err)
		e.metrics.Failure(string(model.KindValidation))
		return
	}
	e.metrics.EventApplied(ev.Name)
}

func (e *Engine) setConnected(connected bool) {
	if e.connected == connected {
		return
	}
	e.connected = connected
	e.publish(notify.Notification{Kind: notify.ConnectionChanged, Connected: connected})
}

// onConversationList merges the server's list. A reconnect resends the full
// list; it is merged like any other update so local state survives.
func (e *Engine) onConversationList(ev push.Event) error {
	var list []model.Conversation
	if err := ev.Decode(&list); err != nil {
		return err
	}
	e.upsert(list...)
	return nil
}

func (e *Engine) onConversationCreated(ev push.Event) error {
	var payload push.ConversationCreated
	if err := ev.Decode(&payload); err != nil {
		return err
	}
	if payload.Conversation == nil {
		return nil
	}
	e.upsert(*payload.Conversation)
	return nil
}

// upsert merges conversations into the registry and notifies. Loop only.
func (e *Engine) upsert(conversations ...model.Conversation) {
	res := e.registry.Upsert(conversations...)
	if res.Skipped > 0 || res.Stale > 0 {
		e.logger.Debug("conversation updates not applied", "skipped", res.Skipped, "stale", res.Stale)
	}
	if len(res.Changed) == 0 {
		return
	}
	e.publish(notify.Notification{Kind: notify.ConversationsChanged})
	for _, c := range conversations {
		if c.Members != nil && c.ID != 0 {
			e.publish(notify.Notification{Kind: notify.MembersChanged, ConversationID: c.ID})
		}
	}
}

func (e *Engine) onMemberAdded(ev push.Event) error {
	var payload push.MembersChanged
	if err := ev.Decode(&payload); err != nil {
		return err
	}
	if payload.ConversationID == 0 || payload.Members == nil {
		return nil
	}
	e.registry.SetMembers(payload.ConversationID, payload.Members)
	e.publish(notify.Notification{Kind: notify.MembersChanged, ConversationID: payload.ConversationID})
	e.publish(notify.Notification{Kind: notify.ConversationsChanged})
	return nil
}

func (e *Engine) onMemberRemoved(ev push.Event) error {
	var payload push.MemberRemoved
	if err := ev.Decode(&payload); err != nil {
		return err
	}
	if payload.ConversationID == 0 {
		return nil
	}
	if e.removeMembership(payload.ConversationID, payload.UserID) {
		go e.refreshProfile(e.runCtx)
	}
	return nil
}

// removeMembership purges every trace of conversationID. It reports whether
// the removal concerns the viewer (a zero userID means the viewer), in which
// case the caller refreshes the profile. Loop only.
func (e *Engine) removeMembership(conversationID, userID int64) (viewerRemoved bool) {
	viewerRemoved = userID == 0 || userID == e.viewer.ID
	wasFocused := e.registry.Remove(conversationID)
	e.timeline.Purge(conversationID)
	e.signals.PurgeConversation(conversationID)
	e.publish(notify.Notification{Kind: notify.ConversationsChanged})
	if wasFocused {
		notice := "the conversation is no longer available"
		if viewerRemoved {
			notice = "you were removed from the conversation"
		}
		e.publish(notify.Notification{Kind: notify.FocusChanged})
		e.publish(notify.Notification{
			Kind:    notify.NoticeRaised,
			Level:   notify.LevelInfo,
			Message: notice,
		})
	}
	e.logger.Info("conversation removed",
		"conversation_id", conversationID,
		"user_id", userID,
		"was_focused", wasFocused)
	return viewerRemoved
}

// refreshProfile reloads the snapshot after the viewer lost a membership.
// Runs off the loop and ends when the engine stops.
func (e *Engine) refreshProfile(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, persistTimeout*2)
	defer cancel()
	if err := e.Refresh(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, ErrStopped) {
		e.logger.Warn("profile refresh failed", "error", err)
	}
}

func (e *Engine) onMessage(ev push.Event) error {
	var m model.Message
	if err := ev.Decode(&m); err != nil {
		return err
	}
	if m.ID == 0 || m.ConversationID == 0 {
		return nil
	}
	e.applyMessage(m, ev.Name == push.EventMessageCreated)
	return nil
}

// applyMessage upserts m into its ledger. Messages for conversations the
// registry does not know are dropped. A newly created message ends its
// author's typing signal. Loop only.
func (e *Engine) applyMessage(m model.Message, created bool) {
	if !e.registry.Has(m.ConversationID) {
		e.logger.Debug("dropping message for unknown conversation",
			"conversation_id", m.ConversationID,
			"message_id", m.ID)
		return
	}
	fromViewer := e.viewer.ID != 0 && m.Author.ID == e.viewer.ID
	out := e.timeline.ApplyCreateOrUpdate(m, fromViewer)

	if created && e.signals.Stop(m.ConversationID, m.Author.ID) {
		e.publish(notify.Notification{Kind: notify.TypingChanged, ConversationID: m.ConversationID})
	}
	if e.focusedIs(m.ConversationID) {
		inserted := 0
		if out.Inserted {
			inserted = 1
		}
		e.publish(notify.Notification{
			Kind:           notify.TimelineChanged,
			ConversationID: m.ConversationID,
			Inserted:       inserted,
			AutoAdvance:    out.AutoAdvance,
		})
	}
}

func (e *Engine) onMessageDeleted(ev push.Event) error {
	var m model.Message
	if err := ev.Decode(&m); err != nil {
		return err
	}
	if !e.registry.Has(m.ConversationID) || !e.timeline.ApplyDelete(m) {
		return nil
	}
	if e.focusedIs(m.ConversationID) {
		e.publish(notify.Notification{Kind: notify.TimelineChanged, ConversationID: m.ConversationID})
	}
	return nil
}

func (e *Engine) onTypingUpdate(ev push.Event) error {
	var payload push.TypingUpdate
	if err := ev.Decode(&payload); err != nil {
		return err
	}
	if payload.ConversationID == 0 || payload.UserID == 0 || payload.UserID == e.viewer.ID {
		return nil
	}
	var changed bool
	if payload.IsTyping {
		changed = e.signals.Start(payload.ConversationID, payload.UserID)
	} else {
		changed = e.signals.Stop(payload.ConversationID, payload.UserID)
	}
	if changed {
		e.publish(notify.Notification{Kind: notify.TypingChanged, ConversationID: payload.ConversationID})
	}
	return nil
}

func (e *Engine) onPresenceUpdate(ev push.Event) error {
	var p model.Presence
	if err := ev.Decode(&p); err != nil {
		return err
	}
	if p.UserID == 0 {
		return nil
	}
	p.Status = model.PresenceStatus(strings.ToLower(string(p.Status)))
	e.signals.ApplyPresence(p)
	e.publish(notify.Notification{Kind: notify.PresenceChanged, UserID: p.UserID})
	return nil
}

// onProfileUpdate replaces the viewer and saves the session.
func (e *Engine) onProfileUpdate(ev push.Event) error {
	var u model.User
	if err := ev.Decode(&u); err != nil {
		return err
	}
	if u.ID == 0 {
		return nil
	}
	e.viewer = u
	e.publish(notify.Notification{Kind: notify.ProfileChanged, UserID: u.ID})
	e.saveSession(context.Background())
	return nil
}
