// ABOUTME: Change notification kinds published by the sync engine
// ABOUTME: Notifications say what changed; subscribers read current state from the engine

package notify

import "strconv"

// Kind identifies what changed.
type Kind string

const (
	ConversationsChanged Kind = "conversations"
	FocusChanged         Kind = "focus"
	TimelineChanged      Kind = "timeline"
	TypingChanged        Kind = "typing"
	PresenceChanged      Kind = "presence"
	ComposerChanged      Kind = "composer"
	MembersChanged       Kind = "members"
	ProfileChanged       Kind = "profile"
	ConnectionChanged    Kind = "connection"
	NoticeRaised         Kind = "notice"
	SessionEnded         Kind = "session-ended"
)

// Level is the severity of a notice.
type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

// Topics.
const (
	// TopicAll receives every notification.
	TopicAll = "*"
	// TopicSession receives notifications that are not tied to a conversation.
	TopicSession = "session"
)

// ConversationTopic is the topic of notifications about one conversation.
func ConversationTopic(conversationID int64) string {
	return "conversation:" + strconv.FormatInt(conversationID, 10)
}

// Notification describes one state change.
type Notification struct {
	Kind           Kind
	ConversationID int64
	UserID         int64

	// Timeline changes.
	Inserted    int
	AutoAdvance bool

	// Connection changes.
	Connected bool

	// Notices.
	Level   Level
	Message string
	Err     error
}

// Topic returns the conversation topic when ConversationID is set, else
// TopicSession.
func (n Notification) Topic() string {
	if n.ConversationID != 0 {
		return ConversationTopic(n.ConversationID)
	}
	return TopicSession
}
