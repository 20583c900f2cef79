// ABOUTME: Test doubles for the engine's REST and push collaborators
// ABOUTME: Fakes record calls and can be gated to hold requests in flight

package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/2389/chat-sync/internal/api"
	"github.com/2389/chat-sync/internal/auth"
	"github.com/2389/chat-sync/internal/clock"
	"github.com/2389/chat-sync/internal/model"
	"github.com/2389/chat-sync/internal/notify"
	"github.com/2389/chat-sync/internal/push"
	"github.com/2389/chat-sync/internal/store"
)

var t0 = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeAPI struct {
	mu sync.Mutex

	profile      api.Snapshot
	profileErr   error
	profileCalls int

	// profileHold makes Profile wait for its context to end.
	profileHold      bool
	profileCancelled int

	conversations map[int64]model.Conversation
	convErr       error
	convCalls     int
	convGate      chan struct{}

	messagesFn    func(conversationID, before int64, limit int) ([]model.Message, error)
	messagesCalls int

	uploadFailAt int // 1-based; zero never fails
	uploads      int

	reactions []string
	edits     []string
	deletes   []int64
	created   []string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{conversations: make(map[int64]model.Conversation)}
}

func (f *fakeAPI) Profile(ctx context.Context) (api.Snapshot, error) {
	f.mu.Lock()
	f.profileCalls++
	hold := f.profileHold
	f.mu.Unlock()
	if hold {
		<-ctx.Done()
		f.mu.Lock()
		f.profileCancelled++
		f.mu.Unlock()
		return api.Snapshot{}, ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.profile, f.profileErr
}

func (f *fakeAPI) cancelledProfiles() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.profileCancelled
}

func (f *fakeAPI) profileCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.profileCalls
}

func (f *fakeAPI) Conversation(ctx context.Context, id int64) (model.Conversation, error) {
	f.mu.Lock()
	f.convCalls++
	gate := f.convGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.convErr != nil {
		return model.Conversation{}, f.convErr
	}
	c, ok := f.conversations[id]
	if !ok {
		return model.Conversation{}, fmt.Errorf("conversation %d: %w", id, model.ErrConflict)
	}
	return c, nil
}

func (f *fakeAPI) convCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.convCalls
}

func (f *fakeAPI) Messages(ctx context.Context, id, before int64, limit int) ([]model.Message, error) {
	f.mu.Lock()
	f.messagesCalls++
	fn := f.messagesFn
	f.mu.Unlock()
	if fn == nil {
		return nil, nil
	}
	return fn(id, before, limit)
}

func (f *fakeAPI) messagesCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.messagesCalls
}

func (f *fakeAPI) CreateGroup(ctx context.Context, req api.CreateGroupRequest) (model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, "group:"+req.Title)
	c := model.Conversation{ID: 900, Type: model.ConversationGroup, Title: req.Title, CreatedAt: t0,
		Members: []model.Member{{User: model.User{ID: 1, Username: "me"}, Role: model.RoleOwner}}}
	f.conversations[c.ID] = c
	return c, nil
}

func (f *fakeAPI) CreateDirect(ctx context.Context, username string) (model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, "direct:"+username)
	c := model.Conversation{ID: 901, Type: model.ConversationDirect, CreatedAt: t0,
		Members: []model.Member{{User: model.User{ID: 1, Username: "me"}}, {User: model.User{ID: 2, Username: username}}}}
	f.conversations[c.ID] = c
	return c, nil
}

func (f *fakeAPI) AddMember(ctx context.Context, id int64, username string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.conversations[id]
	c.Members = append(c.Members, model.Member{User: model.User{ID: int64(100 + len(c.Members)), Username: username}})
	f.conversations[id] = c
	return nil
}

func (f *fakeAPI) EditMessage(ctx context.Context, id int64, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, content)
	return nil
}

func (f *fakeAPI) DeleteMessage(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, id)
	return nil
}

func (f *fakeAPI) React(ctx context.Context, id int64, emoji, action string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reactions = append(f.reactions, fmt.Sprintf("%d:%s:%s", id, emoji, action))
	return nil
}

func (f *fakeAPI) Upload(ctx context.Context, filename string, r io.Reader) (model.Attachment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads++
	if f.uploadFailAt == f.uploads {
		return model.Attachment{}, fmt.Errorf("upload %s: %w", filename, model.ErrTransient)
	}
	data, _ := io.ReadAll(r)
	return model.Attachment{ID: "att-" + filename, OriginalName: filename, Size: int64(len(data))}, nil
}

type emitted struct {
	event   string
	payload any
}

type fakePush struct {
	mu          sync.Mutex
	sent        []emitted
	ackFn       func(ctx context.Context, payload any) (push.Ack, error)
	emitErr     error
	panicOnEmit bool
}

func (f *fakePush) Emit(event string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panicOnEmit {
		panic("emit exploded")
	}
	if f.emitErr != nil {
		return f.emitErr
	}
	f.sent = append(f.sent, emitted{event, payload})
	return nil
}

func (f *fakePush) EmitWithAck(ctx context.Context, event string, payload any) (push.Ack, error) {
	f.mu.Lock()
	f.sent = append(f.sent, emitted{event, payload})
	fn := f.ackFn
	f.mu.Unlock()
	if fn == nil {
		return push.Ack{OK: true}, nil
	}
	return fn(ctx, payload)
}

func (f *fakePush) events(name string) []emitted {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []emitted
	for _, e := range f.sent {
		if e.event == name {
			out = append(out, e)
		}
	}
	return out
}

type harness struct {
	t      *testing.T
	ctx    context.Context
	engine *Engine
	api    *fakeAPI
	push   *fakePush
	events chan push.Event
	store  *store.MockStore
	tokens *auth.Source
	clock  *clock.Fake
	notes  <-chan notify.Notification

	// stop cancels the engine's run context.
	stop context.CancelFunc
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	h := &harness{
		t:      t,
		api:    newFakeAPI(),
		push:   &fakePush{},
		events: make(chan push.Event),
		store:  store.NewMockStore(),
		tokens: auth.NewSource("opaque-token"),
		clock:  clock.NewFake(t0),
	}
	if opts.SweepInterval == 0 {
		// Tests drive sweeps by hand.
		opts.SweepInterval = time.Hour
	}
	h.engine = New(Deps{
		API:    h.api,
		Push:   h.push,
		Events: h.events,
		Store:  h.store,
		Tokens: h.tokens,
		Clock:  h.clock,
	}, opts)

	ctx, cancel := context.WithCancel(context.Background())
	h.ctx = ctx
	h.stop = cancel
	h.notes, _ = h.engine.Bus().Subscribe(ctx, notify.TopicAll)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = h.engine.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return h
}

// deliver hands an event to the loop and waits until it was applied.
func (h *harness) deliver(name string, payload any) {
	h.t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(h.t, err)
	h.deliverRaw(name, data)
}

func (h *harness) deliverRaw(name string, data []byte) {
	h.t.Helper()
	select {
	case h.events <- push.Event{Name: name, Data: data}:
	case <-time.After(time.Second):
		h.t.Fatal("engine did not take the event")
	}
	h.sync()
}

// sync waits for everything queued before it to finish.
func (h *harness) sync() {
	h.t.Helper()
	require.NoError(h.t, h.engine.do(h.ctx, func() {}))
}

// loop runs fn on the engine goroutine.
func (h *harness) loop(fn func()) {
	h.t.Helper()
	require.NoError(h.t, h.engine.do(h.ctx, fn))
}

// waitFor consumes notifications until one matches.
func (h *harness) waitFor(match func(notify.Notification) bool) notify.Notification {
	h.t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case n := <-h.notes:
			if match(n) {
				return n
			}
		case <-deadline:
			h.t.Fatal("notification not published")
			return notify.Notification{}
		}
	}
}

func kind(k notify.Kind) func(notify.Notification) bool {
	return func(n notify.Notification) bool { return n.Kind == k }
}

// bootstrap signs in as viewer 1 with the given conversations.
func (h *harness) bootstrap(convs ...model.Conversation) {
	h.t.Helper()
	h.api.profile = api.Snapshot{User: model.User{ID: 1, Username: "me"}, Conversations: convs}
	for _, c := range convs {
		if _, ok := h.api.conversations[c.ID]; !ok {
			h.api.conversations[c.ID] = c
		}
	}
	require.NoError(h.t, h.engine.Bootstrap(h.ctx))
}

func ts(minutes int) *time.Time {
	t := t0.Add(time.Duration(minutes) * time.Minute)
	return &t
}

func group(id int64, updated int, memberIDs ...int64) model.Conversation {
	c := model.Conversation{ID: id, Type: model.ConversationGroup, Title: fmt.Sprintf("group %d", id), CreatedAt: t0, UpdatedAt: ts(updated)}
	for _, m := range memberIDs {
		c.Members = append(c.Members, model.Member{User: model.User{ID: m, Username: fmt.Sprintf("user%d", m)}})
	}
	return c
}

func msg(conversationID, id int64, authorID int64) model.Message {
	return model.Message{
		ID:             id,
		ConversationID: conversationID,
		Author:         model.User{ID: authorID},
		Content:        fmt.Sprintf("message %d", id),
		CreatedAt:      t0.Add(time.Duration(id) * time.Second),
	}
}

func messageRange(conversationID, from, to int64) []model.Message {
	var out []model.Message
	for id := from; id <= to; id++ {
		out = append(out, msg(conversationID, id, 2))
	}
	return out
}

func ids(msgs []model.Message) []int64 {
	out := make([]int64, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func idRange(from, to int64) []int64 {
	var out []int64
	for id := from; id <= to; id++ {
		out = append(out, id)
	}
	return out
}
