// ABOUTME: Push channel event names, frame envelope and typed payloads
// ABOUTME: Shared by the WebSocket client and the engine's event handlers

package push

import (
	"bytes"
	"encoding/json"

	"github.com/2389/chat-sync/internal/model"
)

// Server to client events.
const (
	EventConversationList    = "conversation:list"
	EventConversationCreated = "conversation:created"
	EventMemberAdded         = "conversation:member-added"
	EventMemberRemoved       = "conversation:member-removed"
	EventMessageCreated      = "message:created"
	EventMessageUpdated      = "message:updated"
	EventMessageDeleted      = "message:deleted"
	EventTypingUpdate        = "typing:update"
	EventPresenceUpdate      = "presence:update"
	EventProfileUpdate       = "profile:update"
)

// Client to server events.
const (
	EventConversationRead = "conversation:read"
	EventTypingStart      = "typing:start"
	EventTypingStop       = "typing:stop"
	EventMessageCreate    = "message:create"
	EventMessageReaction  = "message:reaction"
)

// Events synthesized locally by the client.
const (
	EventAck          = "ack"
	EventConnected    = "connect"
	EventDisconnected = "disconnect"
)

// Frame is the JSON envelope of every WebSocket text message. Ack carries the
// correlation id of an acknowledged emit in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	Ack   string          `json:"ack,omitempty"`
}

// Event is one inbound frame handed to the engine, in arrival order.
type Event struct {
	Name string
	Data json.RawMessage
}

// Decode unmarshals the event payload into v.
func (e Event) Decode(v any) error {
	if len(e.Data) == 0 {
		return nil
	}
	return json.Unmarshal(e.Data, v)
}

// Ack is the server's response to an acknowledged emit. A rejection may
// carry its reason in either error or message.
type Ack struct {
	OK      bool           `json:"ok"`
	Message *model.Message `json:"message,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// UnmarshalJSON accepts message as the created record on success and as the
// rejection reason string on failure.
func (a *Ack) UnmarshalJSON(data []byte) error {
	var raw struct {
		OK      bool            `json:"ok"`
		Message json.RawMessage `json:"message"`
		Error   string          `json:"error"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*a = Ack{OK: raw.OK, Error: raw.Error}

	msg := bytes.TrimSpace(raw.Message)
	if len(msg) == 0 || bytes.Equal(msg, []byte("null")) {
		return nil
	}
	if msg[0] == '"' {
		var reason string
		if err := json.Unmarshal(msg, &reason); err != nil {
			return err
		}
		if !a.OK && a.Error == "" {
			a.Error = reason
		}
		return nil
	}
	if !a.OK {
		return nil
	}
	var m model.Message
	if err := json.Unmarshal(msg, &m); err != nil {
		return err
	}
	a.Message = &m
	return nil
}

// ConversationCreated is the payload of conversation:created.
type ConversationCreated struct {
	Conversation *model.Conversation `json:"conversation"`
}

// MembersChanged is the payload of conversation:member-added.
type MembersChanged struct {
	ConversationID int64          `json:"conversationId"`
	Members        []model.Member `json:"members,omitempty"`
}

// MemberRemoved is the payload of conversation:member-removed. UserID is zero
// when the server does not say who left, which means the viewer.
type MemberRemoved struct {
	ConversationID int64 `json:"conversationId"`
	UserID         int64 `json:"userId,omitempty"`
}

// TypingUpdate is the payload of typing:update.
type TypingUpdate struct {
	ConversationID int64 `json:"conversationId"`
	UserID         int64 `json:"userId"`
	IsTyping       bool  `json:"isTyping"`
}

// ConversationRef carries a conversation id. Used by conversation:read and
// the typing intents.
type ConversationRef struct {
	ConversationID int64 `json:"conversationId"`
}

// MessageCreate is the payload of message:create.
type MessageCreate struct {
	ConversationID int64    `json:"conversationId"`
	Content        string   `json:"content"`
	Attachments    []string `json:"attachments"`
}

// ReactionAction is the direction of a reaction toggle.
type ReactionAction string

const (
	ReactionAdd    ReactionAction = "add"
	ReactionRemove ReactionAction = "remove"
)

// MessageReaction is the payload of message:reaction.
type MessageReaction struct {
	MessageID int64          `json:"messageId"`
	Emoji     string         `json:"emoji"`
	Action    ReactionAction `json:"action"`
}
