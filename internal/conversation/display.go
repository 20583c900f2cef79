// ABOUTME: Derived display fields for conversation list rows and headers
// ABOUTME: Direct chats show the other member; groups show their title and size

package conversation

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/2389/chat-sync/internal/model"
)

const (
	previewRunes       = 60
	defaultAvatarColor = "#ff7aa9"
)

// PresenceFunc renders a user's presence line.
type PresenceFunc func(model.User) string

// Display is what a list row or header shows for a conversation.
type Display struct {
	Title       string
	Subtitle    string
	Header      string
	AvatarColor string
	AvatarText  string
	Unread      int
}

// Display derives the list row and header text for id. The subtitle is the
// last message preview when there is one; the header is the presence line
// for direct chats and the member count for groups.
func (r *Registry) Display(id, viewerID int64, presence PresenceFunc) (Display, bool) {
	c, ok := r.conversations[id]
	if !ok {
		return Display{}, false
	}
	members := r.members[id]

	d := Display{
		Title:       c.Title,
		AvatarColor: defaultAvatarColor,
		Unread:      c.Unread(),
	}

	if c.Type == model.ConversationDirect {
		for _, m := range members {
			if m.ID == viewerID {
				continue
			}
			d.Title = m.Name()
			if presence != nil {
				d.Subtitle = presence(m.User)
			}
			if m.AvatarColor != "" {
				d.AvatarColor = m.AvatarColor
			}
			break
		}
		d.Header = d.Subtitle
	} else {
		d.Subtitle = memberCount(len(members))
		d.Header = d.Subtitle
	}

	if lm := c.LastMessage; lm != nil {
		author := lm.Author.Name()
		if author == "" {
			author = "?"
		}
		d.Subtitle = author + ": " + Preview(lm.Content, len(lm.Attachments) > 0)
	}

	d.AvatarText = Initials(d.Title)
	return d, true
}

func memberCount(n int) string {
	if n == 1 {
		return "1 member"
	}
	return fmt.Sprintf("%d members", n)
}

// Preview shortens message content for a list row. Empty content reads
// "[attachment]" when the message carries files.
func Preview(content string, hasAttachments bool) string {
	content = strings.Join(strings.Fields(content), " ")
	if content == "" {
		if hasAttachments {
			return "[attachment]"
		}
		return ""
	}
	if utf8.RuneCountInString(content) <= previewRunes {
		return content
	}
	runes := []rune(content)
	return string(runes[:previewRunes]) + "…"
}

// Initials returns up to two uppercase initials of text, or "?".
func Initials(text string) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return "?"
	}
	var b strings.Builder
	for _, word := range words[:min(2, len(words))] {
		r, _ := utf8.DecodeRuneInString(word)
		b.WriteRune(r)
	}
	return strings.ToUpper(b.String())
}

// Filter returns the conversations, in display order, whose title or
// subtitle contains query case-insensitively. An empty query matches all.
func (r *Registry) Filter(query string, viewerID int64, presence PresenceFunc) []model.Conversation {
	query = strings.ToLower(strings.TrimSpace(query))
	var out []model.Conversation
	for _, id := range r.order {
		if query != "" {
			d, _ := r.Display(id, viewerID, presence)
			haystack := strings.ToLower(d.Title + " " + d.Subtitle)
			if !strings.Contains(haystack, query) {
				continue
			}
		}
		out = append(out, r.conversations[id])
	}
	return out
}
