// ABOUTME: Terminal rendering of conversations, messages and engine notifications
// ABOUTME: The renderer reads current state from the engine whenever a notification arrives

package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/2389/chat-sync/internal/conversation"
	"github.com/2389/chat-sync/internal/engine"
	"github.com/2389/chat-sync/internal/model"
	"github.com/2389/chat-sync/internal/notify"
	"github.com/2389/chat-sync/internal/readstate"
)

var (
	dim    = color.New(color.FgHiBlack)
	bold   = color.New(color.Bold)
	cyan   = color.New(color.FgCyan)
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed)
)

// formatMessage renders one timeline entry.
func formatMessage(m model.Message, viewerID int64) string {
	var b strings.Builder
	b.WriteString(dim.Sprint(m.CreatedAt.Local().Format("15:04") + " "))

	author := m.Author.Name()
	if author == "" {
		author = fmt.Sprintf("user %d", m.Author.ID)
	}
	if m.Author.ID == viewerID {
		b.WriteString(green.Sprint(author))
	} else {
		b.WriteString(cyan.Sprint(author))
	}
	b.WriteString(dim.Sprintf(" #%d", m.ID))
	b.WriteString(": ")

	if m.Deleted() {
		b.WriteString(dim.Sprint("message deleted"))
		return b.String()
	}

	body := plainText(m.Content)
	b.WriteString(strings.ReplaceAll(body, "\n", "\n      "))
	for _, a := range m.Attachments {
		name := a.OriginalName
		if name == "" {
			name = a.ID
		}
		b.WriteString(yellow.Sprintf(" [%s, %s]", name, humanize.Bytes(uint64(max(a.Size, 0)))))
	}
	if m.EditedAt != nil {
		b.WriteString(dim.Sprint(" (edited)"))
	}
	if len(m.Reactions) > 0 {
		parts := make([]string, 0, len(m.Reactions))
		for _, r := range m.Reactions {
			parts = append(parts, fmt.Sprintf("%s %d", r.Emoji, r.Count))
		}
		b.WriteString("  " + strings.Join(parts, " "))
	}
	return b.String()
}

// formatRow renders one conversation list row.
func formatRow(id int64, d conversation.Display, focused bool) string {
	marker := "  "
	if focused {
		marker = "▶ "
	}
	row := fmt.Sprintf("%s%s %s %s", marker, dim.Sprintf("%4d", id), bold.Sprint(d.Title), dim.Sprint(d.Subtitle))
	if badge := readstate.Badge(d.Unread); badge != "" {
		row += " " + red.Sprintf("(%s)", badge)
	}
	return row
}

// typingLine renders who is typing, or "" when nobody is.
func typingLine(users []model.User) string {
	names := make([]string, 0, len(users))
	for _, u := range users {
		names = append(names, u.Name())
	}
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0] + " is typing…"
	case 2:
		return names[0] + " and " + names[1] + " are typing…"
	default:
		return fmt.Sprintf("%s and %d others are typing…", names[0], len(names)-1)
	}
}

// renderer prints engine changes as they happen.
type renderer struct {
	engine *engine.Engine
	out    io.Writer
	// newest printed message per conversation
	shown map[int64]int64
}

func newRenderer(e *engine.Engine, out io.Writer) *renderer {
	return &renderer{engine: e, out: out, shown: make(map[int64]int64)}
}

func (r *renderer) printf(format string, args ...any) {
	fmt.Fprintf(r.out, format, args...)
}

// run consumes notifications until ctx ends.
func (r *renderer) run(ctx context.Context) {
	notes, _ := r.engine.Bus().Subscribe(ctx, notify.TopicAll)
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-notes:
			if !ok {
				return
			}
			if err := r.handle(ctx, n); err != nil && ctx.Err() == nil {
				r.printf("%s\n", red.Sprintf("render: %v", err))
			}
		}
	}
}

func (r *renderer) handle(ctx context.Context, n notify.Notification) error {
	switch n.Kind {
	case notify.FocusChanged:
		if n.ConversationID == 0 {
			return nil
		}
		d, ok, err := r.engine.Display(ctx, n.ConversationID)
		if err != nil || !ok {
			return err
		}
		r.printf("\n%s %s\n", bold.Sprint(d.Title), dim.Sprint(d.Header))
		delete(r.shown, n.ConversationID)
	case notify.TimelineChanged:
		return r.timeline(ctx, n)
	case notify.TypingChanged:
		id, focused, err := r.engine.Focused(ctx)
		if err != nil || !focused || id != n.ConversationID {
			return err
		}
		users, err := r.engine.Typing(ctx, id)
		if err != nil {
			return err
		}
		if line := typingLine(users); line != "" {
			r.printf("%s\n", dim.Sprint(line))
		}
	case notify.ConnectionChanged:
		if n.Connected {
			r.printf("%s\n", green.Sprint("● connected"))
		} else {
			r.printf("%s\n", yellow.Sprint("○ reconnecting…"))
		}
	case notify.NoticeRaised:
		msg := n.Message
		if n.Err != nil {
			msg += ": " + n.Err.Error()
		}
		if n.Level == notify.LevelError {
			r.printf("%s\n", red.Sprint("! "+msg))
		} else {
			r.printf("%s\n", yellow.Sprint("· "+msg))
		}
	case notify.SessionEnded:
		r.printf("%s\n", yellow.Sprint("session ended"))
	}
	return nil
}

// timeline prints what is new in the focused conversation. An older page
// is announced rather than scrolled back into view.
func (r *renderer) timeline(ctx context.Context, n notify.Notification) error {
	id, focused, err := r.engine.Focused(ctx)
	if err != nil || !focused || id != n.ConversationID {
		return err
	}
	viewer, err := r.engine.Viewer(ctx)
	if err != nil {
		return err
	}
	msgs, hasMore, err := r.engine.Messages(ctx, id)
	if err != nil {
		return err
	}

	last, seen := r.shown[id]
	if seen && n.Inserted > 0 && !n.AutoAdvance && len(msgs) > 0 && msgs[len(msgs)-1].ID == last {
		more := ""
		if hasMore {
			more = ", more with /older"
		}
		r.printf("%s\n", dim.Sprintf("── %d older messages loaded%s ──", n.Inserted, more))
		for _, m := range msgs[:min(n.Inserted, len(msgs))] {
			r.printf("%s\n", formatMessage(m, viewer.ID))
		}
		return nil
	}

	for _, m := range msgs {
		if seen && m.ID <= last {
			continue
		}
		r.printf("%s\n", formatMessage(m, viewer.ID))
		last = m.ID
	}
	r.shown[id] = last
	return nil
}

// printConversations writes the conversation list.
func printConversations(ctx context.Context, w io.Writer, e *engine.Engine, query string) error {
	convs, err := e.Conversations(ctx, query)
	if err != nil {
		return err
	}
	focusedID, focused, err := e.Focused(ctx)
	if err != nil {
		return err
	}
	if len(convs) == 0 {
		fmt.Fprintln(w, dim.Sprint("no conversations"))
		return nil
	}
	for _, c := range convs {
		d, ok, err := e.Display(ctx, c.ID)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		fmt.Fprintln(w, formatRow(c.ID, d, focused && focusedID == c.ID))
	}
	_, total, err := e.Unread(ctx, 0)
	if err != nil {
		return err
	}
	if badge := readstate.Badge(total); badge != "" {
		fmt.Fprintln(w, dim.Sprintf("%s unread", badge))
	}
	return nil
}
