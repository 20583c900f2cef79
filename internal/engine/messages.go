// ABOUTME: History paging, composer editing, sends, uploads and message actions
// ABOUTME: Sends are single-flight per composer and wait a bounded time for the ack

package engine

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/2389/chat-sync/internal/model"
	"github.com/2389/chat-sync/internal/notify"
	"github.com/2389/chat-sync/internal/push"
)

// loadInitial fetches the newest history page and merges it. The result is
// kept even when the conversation lost focus meanwhile.
func (e *Engine) loadInitial(ctx context.Context, conversationID int64) error {
	var (
		limit int
		ok    bool
	)
	if err := e.do(ctx, func() { limit, ok = e.timeline.BeginInitial(conversationID) }); err != nil {
		return err
	}
	if !ok {
		return nil
	}

	page, fetchErr := e.api.Messages(ctx, conversationID, 0, limit)
	// Merging must happen even if the caller gave up waiting.
	var gone bool
	err := e.do(context.WithoutCancel(ctx), func() {
		if gone = e.dropIfRemoved(conversationID); gone {
			return
		}
		if fetchErr != nil {
			e.timeline.FailInitial(conversationID)
			return
		}
		e.timeline.CompleteInitial(conversationID, page)
		e.metrics.PageLoaded("initial")
		if e.focusedIs(conversationID) {
			e.publish(notify.Notification{
				Kind:           notify.TimelineChanged,
				ConversationID: conversationID,
				Inserted:       len(page),
				AutoAdvance:    true,
			})
		}
	})
	if gone {
		return err
	}
	if fetchErr != nil {
		return e.fail(ctx, "load messages", fmt.Errorf("loading history of %d: %w", conversationID, fetchErr))
	}
	return err
}

// LoadOlder fetches the page before the oldest loaded message. It returns
// how many messages were prepended so the view can keep its position. A
// call while a page is already loading, or with nothing older, returns 0.
func (e *Engine) LoadOlder(ctx context.Context, conversationID int64) (int, error) {
	var (
		cursor int64
		limit  int
		ok     bool
	)
	if err := e.do(ctx, func() { cursor, limit, ok = e.timeline.BeginOlder(conversationID) }); err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}

	page, fetchErr := e.api.Messages(ctx, conversationID, cursor, limit)
	inserted := 0
	var gone bool
	err := e.do(context.WithoutCancel(ctx), func() {
		if gone = e.dropIfRemoved(conversationID); gone {
			return
		}
		if fetchErr != nil {
			e.timeline.FailOlder(conversationID)
			return
		}
		inserted = e.timeline.CompleteOlder(conversationID, page)
		e.metrics.PageLoaded("older")
		if inserted > 0 && e.focusedIs(conversationID) {
			e.publish(notify.Notification{
				Kind:           notify.TimelineChanged,
				ConversationID: conversationID,
				Inserted:       inserted,
			})
		}
	})
	if gone {
		return 0, err
	}
	if fetchErr != nil {
		return 0, e.fail(ctx, "load older messages", fmt.Errorf("paging history of %d: %w", conversationID, fetchErr))
	}
	return inserted, err
}

// dropIfRemoved discards a page that finished loading after its
// conversation was removed, along with the ledger its Begin step created.
// Loop only.
func (e *Engine) dropIfRemoved(conversationID int64) bool {
	if e.registry.Has(conversationID) {
		return false
	}
	e.timeline.Purge(conversationID)
	e.logger.Debug("dropping history page for removed conversation", "conversation_id", conversationID)
	return true
}

// SetPinned records whether the view shows the newest message.
func (e *Engine) SetPinned(ctx context.Context, conversationID int64, pinned bool) error {
	return e.do(ctx, func() { e.timeline.SetPinned(conversationID, pinned) })
}

// SetDraft updates the composer text. Non-empty input counts as a
// keystroke and starts local typing.
func (e *Engine) SetDraft(ctx context.Context, conversationID int64, draft string) error {
	return e.do(ctx, func() {
		e.timeline.SetDraft(conversationID, draft)
		if draft != "" {
			if s, ok := e.signals.Keystroke(conversationID); ok {
				e.emitSignal(s)
			}
		}
		e.publish(notify.Notification{Kind: notify.ComposerChanged, ConversationID: conversationID})
	})
}

// Blur ends local typing immediately, as when the composer loses focus.
func (e *Engine) Blur(ctx context.Context, conversationID int64) error {
	return e.do(ctx, func() {
		if s, ok := e.signals.Blur(conversationID); ok {
			e.emitSignal(s)
		}
	})
}

// Send submits the composer of conversationID. It fails locally with
// model.ErrSendPending while a send is outstanding and with
// model.ErrEmptyMessage when there is nothing to send. The composer is
// cleared only on a positive acknowledgement; a negative ack, a disconnect
// or no ack within the configured timeout leaves it intact.
func (e *Engine) Send(ctx context.Context, conversationID int64) error {
	var (
		payload push.MessageCreate
		vErr    error
	)
	err := e.do(ctx, func() {
		c := e.timeline.Composer(conversationID)
		in, err := e.timeline.BeginSend(conversationID, c.Draft, c.Attachments)
		if err != nil {
			vErr = err
			return
		}
		payload = push.MessageCreate{
			ConversationID: in.ConversationID,
			Content:        in.Content,
			Attachments:    in.AttachmentIDs(),
		}
		if s, ok := e.signals.Blur(conversationID); ok {
			e.emitSignal(s)
		}
		e.publish(notify.Notification{Kind: notify.ComposerChanged, ConversationID: conversationID})
	})
	if err != nil {
		return err
	}
	if vErr != nil {
		e.metrics.SendSettled("rejected")
		return e.fail(ctx, "send", fmt.Errorf("sending to %d: %w", conversationID, vErr))
	}

	ackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.opts.SendAckTimeout)
	ack, sendErr := e.push.EmitWithAck(ackCtx, push.EventMessageCreate, payload)
	cancel()
	if sendErr == nil && !ack.OK {
		msg := ack.Error
		if msg == "" {
			msg = "message rejected"
		}
		sendErr = fmt.Errorf("%s: %w", msg, model.ErrTransient)
	}

	outcome := "ok"
	switch {
	case sendErr == nil:
	case errors.Is(sendErr, context.DeadlineExceeded):
		outcome = "timeout"
	default:
		outcome = "failed"
	}
	e.metrics.SendSettled(outcome)

	if err := e.do(context.WithoutCancel(ctx), func() {
		e.timeline.CompleteSend(conversationID, sendErr)
		if sendErr == nil && ack.Message != nil && ack.Message.ID != 0 {
			m := *ack.Message
			if m.ConversationID == 0 {
				m.ConversationID = conversationID
			}
			e.applyMessage(m, true)
		}
		e.publish(notify.Notification{Kind: notify.ComposerChanged, ConversationID: conversationID})
	}); err != nil {
		return err
	}
	if sendErr != nil {
		return e.fail(ctx, "send", fmt.Errorf("sending to %d: %w", conversationID, sendErr))
	}
	return nil
}

// File is one upload candidate.
type File struct {
	Name   string
	Reader io.Reader
}

// Attach uploads up to the configured number of files into the composer of
// conversationID. Uploads run in order and stop at the first failure;
// attachments that already succeeded stay in the composer.
func (e *Engine) Attach(ctx context.Context, conversationID int64, files []File) (int, error) {
	if len(files) > e.opts.MaxUploads {
		e.logger.Info("ignoring extra files", "given", len(files), "max", e.opts.MaxUploads)
		files = files[:e.opts.MaxUploads]
	}
	attached := 0
	for _, f := range files {
		a, err := e.api.Upload(ctx, f.Name, f.Reader)
		if err != nil {
			return attached, e.fail(ctx, "upload", fmt.Errorf("uploading %s: %w", f.Name, err))
		}
		if err := e.do(ctx, func() {
			e.timeline.AddAttachment(conversationID, a)
			e.publish(notify.Notification{Kind: notify.ComposerChanged, ConversationID: conversationID})
		}); err != nil {
			return attached, err
		}
		attached++
	}
	return attached, nil
}

// Detach removes a pending attachment from the composer.
func (e *Engine) Detach(ctx context.Context, conversationID int64, attachmentID string) error {
	return e.do(ctx, func() {
		e.timeline.RemoveAttachment(conversationID, attachmentID)
		e.publish(notify.Notification{Kind: notify.ComposerChanged, ConversationID: conversationID})
	})
}

// Edit replaces a message's content. The change arrives back as
// message:updated; local state is not touched here.
func (e *Engine) Edit(ctx context.Context, messageID int64, content string) error {
	content = model.TrimContent(content)
	if content == "" {
		return e.fail(ctx, "edit", fmt.Errorf("editing %d: %w", messageID, model.ErrEmptyMessage))
	}
	if err := e.api.EditMessage(ctx, messageID, content); err != nil {
		return e.fail(ctx, "edit", fmt.Errorf("editing %d: %w", messageID, err))
	}
	return nil
}

// Delete deletes a message. The tombstone arrives as message:deleted.
func (e *Engine) Delete(ctx context.Context, messageID int64) error {
	if err := e.api.DeleteMessage(ctx, messageID); err != nil {
		return e.fail(ctx, "delete", fmt.Errorf("deleting %d: %w", messageID, err))
	}
	return nil
}

// React toggles the viewer's emoji reaction on a loaded message, then tells
// the push channel so other clients refresh.
func (e *Engine) React(ctx context.Context, messageID int64, emoji string) error {
	var (
		msg   model.Message
		found bool
	)
	if err := e.do(ctx, func() { msg, found = e.timeline.Find(messageID) }); err != nil {
		return err
	}
	if !found {
		return e.fail(ctx, "react", fmt.Errorf("message %d is not loaded: %w", messageID, model.ErrConflict))
	}

	action := push.ReactionAdd
	if msg.ReactedWith(emoji) {
		action = push.ReactionRemove
	}
	if err := e.api.React(ctx, messageID, emoji, string(action)); err != nil {
		return e.fail(ctx, "react", fmt.Errorf("reacting to %d: %w", messageID, err))
	}
	if err := e.push.Emit(push.EventMessageReaction, push.MessageReaction{
		MessageID: messageID,
		Emoji:     emoji,
		Action:    action,
	}); err != nil {
		e.logger.Debug("reaction broadcast not sent", "error", err)
	}
	return nil
}
