// ABOUTME: Local session cache interface and data types
// ABOUTME: Holds the bearer token, the viewer profile, and a warm-start conversation snapshot

package store

import (
	"context"
	"errors"
	"time"

	"github.com/2389/chat-sync/internal/model"
)

// ErrNotFound is returned when no session has been saved
var ErrNotFound = errors.New("not found")

// Session is the persisted login: the bearer token and the viewer it
// belongs to.
type Session struct {
	Token   string
	User    model.User
	SavedAt time.Time
}

// Store persists the client's session between runs. Conversations are
// cached per viewer, in display order, with their members embedded.
type Store interface {
	SaveSession(ctx context.Context, session Session) error
	LoadSession(ctx context.Context) (Session, error)
	// ClearSession forgets the session and every cached conversation.
	ClearSession(ctx context.Context) error

	// SaveConversations replaces the viewer's cached conversation list.
	SaveConversations(ctx context.Context, viewerID int64, conversations []model.Conversation) error
	LoadConversations(ctx context.Context, viewerID int64) ([]model.Conversation, error)

	Close() error
}
