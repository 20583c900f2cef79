// ABOUTME: Focus switching, membership fetches and conversation creation
// ABOUTME: Membership fetches are collapsed per conversation with singleflight

package engine

import (
	"context"
	"fmt"
	"strconv"

	"github.com/2389/chat-sync/internal/api"
	"github.com/2389/chat-sync/internal/model"
	"github.com/2389/chat-sync/internal/notify"
)

// Select focuses conversationID. Selecting the focused conversation again
// does nothing. Otherwise the previous conversation's local typing ends,
// membership is fetched if not cached, the newest history page is loaded
// and a read receipt is sent.
func (e *Engine) Select(ctx context.Context, conversationID int64) error {
	var known, changed, needMembers bool
	err := e.do(ctx, func() {
		if known = e.registry.Has(conversationID); !known {
			return
		}
		prev, hadFocus := e.registry.Focused()
		if changed = e.registry.Focus(conversationID); !changed {
			return
		}
		if hadFocus {
			if s, ok := e.signals.Blur(prev); ok {
				e.emitSignal(s)
			}
		}
		needMembers = !e.registry.HasMembers(conversationID)
		e.publish(notify.Notification{Kind: notify.FocusChanged, ConversationID: conversationID})
	})
	if err != nil {
		return err
	}
	if !known {
		return e.fail(ctx, "open conversation", fmt.Errorf("conversation %d: %w", conversationID, model.ErrConflict))
	}
	if !changed {
		return nil
	}

	var firstErr error
	if needMembers {
		firstErr = e.EnsureMembers(ctx, conversationID)
	}
	if err := e.loadInitial(ctx, conversationID); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := e.do(ctx, func() {
		if !e.focusedIs(conversationID) {
			return
		}
		if err := e.reads.OnFocus(conversationID); err != nil {
			e.logger.Debug("read receipt deferred", "error", err)
		}
	}); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// EnsureMembers fetches the member list of conversationID unless cached.
// Concurrent callers share one request.
func (e *Engine) EnsureMembers(ctx context.Context, conversationID int64) error {
	var cached bool
	if err := e.do(ctx, func() { cached = e.registry.HasMembers(conversationID) }); err != nil {
		return err
	}
	if cached {
		return nil
	}

	key := strconv.FormatInt(conversationID, 10)
	ch := e.membership.DoChan(key, func() (any, error) {
		// Shared by every waiter, so one caller's cancellation must not end it.
		fetchCtx := context.WithoutCancel(ctx)
		c, err := e.api.Conversation(fetchCtx, conversationID)
		if err != nil {
			return nil, err
		}
		if c.Members == nil {
			c.Members = []model.Member{}
		}
		err = e.do(fetchCtx, func() {
			// The viewer may have left while the request was out.
			if e.registry.Has(conversationID) {
				e.upsert(c)
			}
		})
		return nil, err
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return e.fail(ctx, "load members", fmt.Errorf("fetching members of %d: %w", conversationID, res.Err))
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CreateGroup creates a group and opens it.
func (e *Engine) CreateGroup(ctx context.Context, req api.CreateGroupRequest) (model.Conversation, error) {
	if model.TrimContent(req.Title) == "" {
		return model.Conversation{}, e.fail(ctx, "create group", fmt.Errorf("group title is empty: %w", model.ErrValidation))
	}
	c, err := e.api.CreateGroup(ctx, req)
	if err != nil {
		return model.Conversation{}, e.fail(ctx, "create group", fmt.Errorf("creating group: %w", err))
	}
	return c, e.adopt(ctx, c)
}

// CreateDirect opens (creating if needed) a direct conversation.
func (e *Engine) CreateDirect(ctx context.Context, username string) (model.Conversation, error) {
	if model.TrimContent(username) == "" {
		return model.Conversation{}, e.fail(ctx, "start chat", fmt.Errorf("username is empty: %w", model.ErrValidation))
	}
	c, err := e.api.CreateDirect(ctx, username)
	if err != nil {
		return model.Conversation{}, e.fail(ctx, "start chat", fmt.Errorf("creating direct chat: %w", err))
	}
	return c, e.adopt(ctx, c)
}

// adopt merges a conversation returned by the server and focuses it.
func (e *Engine) adopt(ctx context.Context, c model.Conversation) error {
	if err := e.do(ctx, func() { e.upsert(c) }); err != nil {
		return err
	}
	return e.Select(ctx, c.ID)
}

// AddMember invites username and refreshes the member list.
func (e *Engine) AddMember(ctx context.Context, conversationID int64, username string) error {
	if model.TrimContent(username) == "" {
		return e.fail(ctx, "add member", fmt.Errorf("username is empty: %w", model.ErrValidation))
	}
	if err := e.api.AddMember(ctx, conversationID, username); err != nil {
		return e.fail(ctx, "add member", fmt.Errorf("adding %s to %d: %w", username, conversationID, err))
	}
	c, err := e.api.Conversation(ctx, conversationID)
	if err != nil {
		return e.fail(ctx, "add member", fmt.Errorf("reloading %d: %w", conversationID, err))
	}
	if c.Members == nil {
		c.Members = []model.Member{}
	}
	return e.do(ctx, func() { e.upsert(c) })
}

// Foreground records an application focus change. Regaining the
// foreground sends a read receipt for the focused conversation.
func (e *Engine) Foreground(ctx context.Context, foreground bool) error {
	return e.do(ctx, func() {
		id, ok := e.registry.Focused()
		if _, err := e.reads.SetForeground(foreground, id, ok); err != nil {
			e.logger.Debug("read receipt deferred", "error", err)
		}
	})
}

// OnMembershipRemoved applies a membership removal as if it arrived on the
// push channel. A zero userID means the viewer.
func (e *Engine) OnMembershipRemoved(ctx context.Context, conversationID, userID int64) error {
	var viewerRemoved bool
	if err := e.do(ctx, func() { viewerRemoved = e.removeMembership(conversationID, userID) }); err != nil {
		return err
	}
	if viewerRemoved {
		return e.Refresh(ctx)
	}
	return nil
}
