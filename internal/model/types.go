// ABOUTME: Wire and state types for users, conversations, members and messages
// ABOUTME: Includes the shallow merge rule used to fold push patches into the registry

package model

import (
	"strings"
	"time"
)

// ConversationType distinguishes one-to-one chats from groups.
type ConversationType string

const (
	ConversationDirect ConversationType = "direct"
	ConversationGroup  ConversationType = "group"
)

// Role is a member's role within a conversation.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// User is a chat participant as the server describes it.
type User struct {
	ID            int64      `json:"id"`
	Username      string     `json:"username,omitempty"`
	DisplayName   string     `json:"displayName,omitempty"`
	AvatarColor   string     `json:"avatarColor,omitempty"`
	StatusMessage string     `json:"statusMessage,omitempty"`
	LastSeen      *time.Time `json:"lastSeen,omitempty"`
}

// Name returns the display name, falling back to the username.
func (u User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Username
}

// Member is a user's membership in one conversation.
type Member struct {
	User
	Role       Role       `json:"role,omitempty"`
	LastReadAt *time.Time `json:"lastReadAt,omitempty"`
}

// MessageSummary is the last-message preview carried on a conversation.
type MessageSummary struct {
	ID          int64        `json:"id"`
	Content     string       `json:"content,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Author      User         `json:"user"`
	CreatedAt   time.Time    `json:"createdAt"`
}

// Conversation is a direct chat or group. Pointer fields are optional on the
// wire; nil means the field was absent from the payload.
type Conversation struct {
	ID          int64            `json:"id"`
	Type        ConversationType `json:"type,omitempty"`
	Title       string           `json:"title,omitempty"`
	Description *string          `json:"description,omitempty"`
	IsPrivate   *bool            `json:"isPrivate,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   *time.Time       `json:"updatedAt,omitempty"`
	LastMessage *MessageSummary  `json:"lastMessage,omitempty"`
	UnreadCount *int             `json:"unreadCount,omitempty"`
	Seq         uint64           `json:"seq,omitempty"`
	Members     []Member         `json:"members,omitempty"`
}

// SortKey is the timestamp conversations are ordered by: updatedAt when the
// server sent one, createdAt otherwise.
func (c Conversation) SortKey() time.Time {
	if c.UpdatedAt != nil {
		return *c.UpdatedAt
	}
	return c.CreatedAt
}

// Unread returns the server-provided unread count, or zero.
func (c Conversation) Unread() int {
	if c.UnreadCount == nil {
		return 0
	}
	return *c.UnreadCount
}

// Merge overlays the fields present in patch onto c and returns the result.
// Empty strings, nil pointers and zero times in patch leave c untouched.
// Members are not merged; the registry owns membership separately.
func (c Conversation) Merge(patch Conversation) Conversation {
	out := c
	out.Members = nil
	if patch.Type != "" {
		out.Type = patch.Type
	}
	if patch.Title != "" {
		out.Title = patch.Title
	}
	if patch.Description != nil {
		out.Description = patch.Description
	}
	if patch.IsPrivate != nil {
		out.IsPrivate = patch.IsPrivate
	}
	if !patch.CreatedAt.IsZero() {
		out.CreatedAt = patch.CreatedAt
	}
	if patch.UpdatedAt != nil {
		out.UpdatedAt = patch.UpdatedAt
	}
	if patch.LastMessage != nil {
		out.LastMessage = patch.LastMessage
	}
	if patch.UnreadCount != nil {
		out.UnreadCount = patch.UnreadCount
	}
	if patch.Seq != 0 {
		out.Seq = patch.Seq
	}
	return out
}

// Attachment is an uploaded file referenced by a message.
type Attachment struct {
	ID           string `json:"id"`
	URL          string `json:"url,omitempty"`
	OriginalName string `json:"originalName,omitempty"`
	MimeType     string `json:"mimeType,omitempty"`
	Size         int64  `json:"size,omitempty"`
}

// Reaction aggregates one emoji on one message.
type Reaction struct {
	Emoji   string `json:"emoji"`
	Count   int    `json:"count"`
	Reacted bool   `json:"reacted,omitempty"`
}

// Message is one entry in a conversation timeline.
type Message struct {
	ID             int64        `json:"id"`
	ConversationID int64        `json:"conversationId"`
	Author         User         `json:"user"`
	Content        string       `json:"content,omitempty"`
	Attachments    []Attachment `json:"attachments,omitempty"`
	ParentID       *int64       `json:"parentId,omitempty"`
	EditedAt       *time.Time   `json:"editedAt,omitempty"`
	DeletedAt      *time.Time   `json:"deletedAt,omitempty"`
	CreatedAt      time.Time    `json:"createdAt"`
	Reactions      []Reaction   `json:"reactions,omitempty"`
}

// Deleted reports whether the message is a tombstone.
func (m Message) Deleted() bool {
	return m.DeletedAt != nil
}

// Summary builds the last-message preview for m.
func (m Message) Summary() MessageSummary {
	return MessageSummary{
		ID:          m.ID,
		Content:     m.Content,
		Attachments: m.Attachments,
		Author:      m.Author,
		CreatedAt:   m.CreatedAt,
	}
}

// ReactedWith reports whether the viewer has reacted to m with emoji.
func (m Message) ReactedWith(emoji string) bool {
	for _, r := range m.Reactions {
		if r.Emoji == emoji && r.Reacted {
			return true
		}
	}
	return false
}

// PresenceStatus is a user's connection state.
type PresenceStatus string

const (
	PresenceOnline  PresenceStatus = "online"
	PresenceOffline PresenceStatus = "offline"
)

// Presence is the last known presence of a user.
type Presence struct {
	UserID   int64          `json:"userId"`
	Status   PresenceStatus `json:"status"`
	LastSeen *time.Time     `json:"lastSeen,omitempty"`
}

// TrimContent normalizes composer input before submission.
func TrimContent(s string) string {
	return strings.TrimSpace(s)
}
