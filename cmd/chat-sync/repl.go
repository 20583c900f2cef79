// ABOUTME: Line-oriented interactive loop for the run command
// ABOUTME: Slash commands drive the engine; any other line is sent to the focused conversation

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/2389/chat-sync/internal/api"
	"github.com/2389/chat-sync/internal/engine"
)

const helpText = `commands:
  /list [query]          list conversations
  /open <id>             focus a conversation
  /older                 load older messages
  /attach <path>...      upload files into the composer
  /detach <id>           drop an uploaded attachment
  /send                  send the composer as it is
  /react <msg> <emoji>   toggle a reaction
  /edit <msg> <text>     edit a message
  /delete <msg>          delete a message
  /group <title>         create a group
  /dm <username>         open a direct chat
  /invite <username>     add a member to the focused group
  /away, /back           leave or return to the foreground
  /quit                  exit
anything else is sent to the focused conversation`

var errQuit = errors.New("quit")

type repl struct {
	engine *engine.Engine
	in     io.Reader
	out    io.Writer
}

func newREPL(e *engine.Engine, in io.Reader, out io.Writer) *repl {
	return &repl{engine: e, in: in, out: out}
}

// run reads lines until EOF, /quit or ctx ends.
func (r *repl) run(ctx context.Context) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			err := r.exec(ctx, strings.TrimSpace(line))
			if errors.Is(err, errQuit) {
				return nil
			}
			// Engine failures were already raised as notices.
			if err != nil && ctx.Err() == nil {
				var usage usageError
				if errors.As(err, &usage) {
					fmt.Fprintln(r.out, yellow.Sprint(usage.Error()))
				}
			}
		}
	}
}

type usageError string

func (u usageError) Error() string { return "usage: " + string(u) }

func (r *repl) focused(ctx context.Context) (int64, error) {
	id, ok, err := r.engine.Focused(ctx)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, usageError("/open <id> first")
	}
	return id, nil
}

func parseID(s string) (int64, bool) {
	id, err := strconv.ParseInt(s, 10, 64)
	return id, err == nil && id > 0
}

func (r *repl) exec(ctx context.Context, line string) error {
	if line == "" {
		return nil
	}
	if !strings.HasPrefix(line, "/") {
		id, err := r.focused(ctx)
		if err != nil {
			return err
		}
		if err := r.engine.SetDraft(ctx, id, line); err != nil {
			return err
		}
		return r.engine.Send(ctx, id)
	}

	cmd, rest, _ := strings.Cut(line[1:], " ")
	rest = strings.TrimSpace(rest)
	args := strings.Fields(rest)

	switch cmd {
	case "help":
		fmt.Fprintln(r.out, helpText)
		return nil
	case "quit", "exit":
		return errQuit
	case "list":
		return printConversations(ctx, r.out, r.engine, rest)
	case "open":
		id, ok := parseID(rest)
		if !ok {
			return usageError("/open <id>")
		}
		return r.engine.Select(ctx, id)
	case "older":
		id, err := r.focused(ctx)
		if err != nil {
			return err
		}
		n, err := r.engine.LoadOlder(ctx, id)
		if err == nil && n == 0 {
			fmt.Fprintln(r.out, dim.Sprint("no older messages"))
		}
		return err
	case "attach":
		id, err := r.focused(ctx)
		if err != nil {
			return err
		}
		if len(args) == 0 {
			return usageError("/attach <path>...")
		}
		return r.attach(ctx, id, args)
	case "send":
		id, err := r.focused(ctx)
		if err != nil {
			return err
		}
		return r.engine.Send(ctx, id)
	case "detach":
		id, err := r.focused(ctx)
		if err != nil {
			return err
		}
		if rest == "" {
			return usageError("/detach <attachment-id>")
		}
		return r.engine.Detach(ctx, id, rest)
	case "react":
		if len(args) != 2 {
			return usageError("/react <message-id> <emoji>")
		}
		msgID, ok := parseID(args[0])
		if !ok {
			return usageError("/react <message-id> <emoji>")
		}
		return r.engine.React(ctx, msgID, args[1])
	case "edit":
		idText, content, _ := strings.Cut(rest, " ")
		msgID, ok := parseID(idText)
		if !ok {
			return usageError("/edit <message-id> <text>")
		}
		return r.engine.Edit(ctx, msgID, content)
	case "delete":
		msgID, ok := parseID(rest)
		if !ok {
			return usageError("/delete <message-id>")
		}
		return r.engine.Delete(ctx, msgID)
	case "group":
		_, err := r.engine.CreateGroup(ctx, api.CreateGroupRequest{Title: rest})
		return err
	case "dm":
		_, err := r.engine.CreateDirect(ctx, rest)
		return err
	case "invite":
		id, err := r.focused(ctx)
		if err != nil {
			return err
		}
		return r.engine.AddMember(ctx, id, rest)
	case "away":
		return r.engine.Foreground(ctx, false)
	case "back":
		return r.engine.Foreground(ctx, true)
	default:
		return usageError("/help")
	}
}

func (r *repl) attach(ctx context.Context, conversationID int64, paths []string) error {
	files := make([]engine.File, 0, len(paths))
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			fmt.Fprintln(r.out, yellow.Sprintf("skipping %s: %v", p, err))
			continue
		}
		defer f.Close()
		files = append(files, engine.File{Name: filepath.Base(p), Reader: f})
	}
	if len(files) == 0 {
		return nil
	}
	n, err := r.engine.Attach(ctx, conversationID, files)
	if n > 0 {
		fmt.Fprintln(r.out, dim.Sprintf("%d attached; type a caption or /send to post", n))
	}
	return err
}
