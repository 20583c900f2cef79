// ABOUTME: Session lifecycle: bootstrap from cache and snapshot, refresh, teardown
// ABOUTME: Expired credentials anywhere end the session and wipe local state

package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/2389/chat-sync/internal/auth"
	"github.com/2389/chat-sync/internal/model"
	"github.com/2389/chat-sync/internal/notify"
	"github.com/2389/chat-sync/internal/store"
)

// Bootstrap starts the session. A cached session paints the last known
// conversation list right away; then the REST snapshot is loaded and merged.
// A missing or locally expired token fails with model.ErrAuthExpired.
func (e *Engine) Bootstrap(ctx context.Context) error {
	cached, err := e.store.LoadSession(ctx)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		e.logger.Warn("failed to read session cache", "error", err)
	}
	hasCache := err == nil

	if e.tokens.Token() == "" && hasCache {
		e.tokens.Set(cached.Token)
	}
	if err := auth.CheckExpiry(e.tokens.Token(), e.clock.Now()); err != nil {
		return e.fail(ctx, "bootstrap", fmt.Errorf("checking token: %w", err))
	}

	if hasCache && cached.Token == e.tokens.Token() && cached.User.ID != 0 {
		convs, err := e.store.LoadConversations(ctx, cached.User.ID)
		if err != nil {
			e.logger.Warn("failed to read cached conversations", "error", err)
		}
		if err := e.do(ctx, func() {
			e.viewer = cached.User
			e.publish(notify.Notification{Kind: notify.ProfileChanged, UserID: cached.User.ID})
			e.upsert(convs...)
		}); err != nil {
			return err
		}
		e.logger.Info("restored cached session", "user_id", cached.User.ID, "conversations", len(convs))
	}

	return e.Refresh(ctx)
}

// Refresh loads the REST snapshot, merges it and saves the session.
func (e *Engine) Refresh(ctx context.Context) error {
	snap, err := e.api.Profile(ctx)
	if err != nil {
		return e.fail(ctx, "load profile", fmt.Errorf("loading profile: %w", err))
	}
	if snap.User.ID == 0 {
		return e.fail(ctx, "load profile", fmt.Errorf("profile has no user: %w", model.ErrTransient))
	}

	return e.do(ctx, func() {
		e.viewer = snap.User
		e.publish(notify.Notification{Kind: notify.ProfileChanged, UserID: snap.User.ID})
		e.upsert(snap.Conversations...)
		e.saveSession(ctx)
		e.persistConversations(ctx)
	})
}

// saveSession persists the token and viewer. Loop only.
func (e *Engine) saveSession(ctx context.Context) {
	token := e.tokens.Token()
	if token == "" || e.viewer.ID == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()
	err := e.store.SaveSession(ctx, store.Session{Token: token, User: e.viewer, SavedAt: e.clock.Now()})
	if err != nil {
		e.logger.Warn("failed to save session", "error", err)
	}
}

// Teardown ends the session: all state is dropped, the credentials and the
// cache are cleared and SessionEnded is published. Callers stop the push
// channel when they see SessionEnded.
func (e *Engine) Teardown(ctx context.Context) error {
	err := e.do(ctx, func() {
		e.viewer = model.User{}
		e.connected = false
		e.registry.Reset()
		e.timeline.Reset()
		e.signals.Reset()
	})
	if err != nil && !errors.Is(err, ErrStopped) {
		return err
	}

	e.tokens.Clear()
	if cerr := e.store.ClearSession(ctx); cerr != nil {
		e.logger.Warn("failed to clear session cache", "error", cerr)
	}
	// Publishing does not need the loop.
	e.bus.Publish(notify.Notification{Kind: notify.SessionEnded})
	e.logger.Info("session ended")
	return nil
}
