// ABOUTME: Reconciliation engine owning all client state on a single loop goroutine
// ABOUTME: Public methods submit closures to the loop; network I/O runs between loop steps

package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/2389/chat-sync/internal/api"
	"github.com/2389/chat-sync/internal/auth"
	"github.com/2389/chat-sync/internal/clock"
	"github.com/2389/chat-sync/internal/conversation"
	"github.com/2389/chat-sync/internal/ephemeral"
	"github.com/2389/chat-sync/internal/metrics"
	"github.com/2389/chat-sync/internal/model"
	"github.com/2389/chat-sync/internal/notify"
	"github.com/2389/chat-sync/internal/push"
	"github.com/2389/chat-sync/internal/readstate"
	"github.com/2389/chat-sync/internal/store"
	"github.com/2389/chat-sync/internal/timeline"
)

const (
	defaultSendAckTimeout = 10 * time.Second
	defaultSweepInterval  = 500 * time.Millisecond
	defaultMaxUploads     = 3
	taskBuffer            = 16
	persistTimeout        = 5 * time.Second
)

// ErrStopped is returned by calls made after Run has returned.
var ErrStopped = errors.New("engine stopped")

// API is the REST surface the engine consumes. *api.Client satisfies it.
type API interface {
	Profile(ctx context.Context) (api.Snapshot, error)
	Conversation(ctx context.Context, conversationID int64) (model.Conversation, error)
	Messages(ctx context.Context, conversationID, before int64, limit int) ([]model.Message, error)
	CreateGroup(ctx context.Context, req api.CreateGroupRequest) (model.Conversation, error)
	CreateDirect(ctx context.Context, username string) (model.Conversation, error)
	AddMember(ctx context.Context, conversationID int64, username string) error
	EditMessage(ctx context.Context, messageID int64, content string) error
	DeleteMessage(ctx context.Context, messageID int64) error
	React(ctx context.Context, messageID int64, emoji, action string) error
	Upload(ctx context.Context, filename string, r io.Reader) (model.Attachment, error)
}

// Push is the outbound side of the push channel. *push.Client satisfies it.
type Push interface {
	Emit(event string, payload any) error
	EmitWithAck(ctx context.Context, event string, payload any) (push.Ack, error)
}

// Options configures an Engine. Zero values select defaults.
type Options struct {
	InitialPageSize int
	OlderPageSize   int
	TypingTTL       time.Duration
	TypingStopDelay time.Duration
	SweepInterval   time.Duration
	SendAckTimeout  time.Duration
	MaxUploads      int
	// SequenceGuard drops conversation updates carrying a lower seq than the
	// stored record.
	SequenceGuard bool
}

// Deps are the engine's collaborators. API, Push and Events are required.
type Deps struct {
	API    API
	Push   Push
	Events <-chan push.Event
	Store  store.Store
	Tokens *auth.Source
	Bus    *notify.Broadcaster
	// Metrics may be nil.
	Metrics *metrics.Metrics
	Clock   clock.Clock
	Logger  *slog.Logger
}

type task struct {
	fn   func()
	done chan struct{}
}

// Engine is one signed-in client session. All state below the loop marker
// is owned by the Run goroutine.
type Engine struct {
	api     API
	push    Push
	events  <-chan push.Event
	store   store.Store
	tokens  *auth.Source
	bus     *notify.Broadcaster
	metrics *metrics.Metrics
	clock   clock.Clock
	logger  *slog.Logger
	opts    Options

	tasks      chan task
	stopped    chan struct{}
	membership singleflight.Group

	// loop-owned
	runCtx    context.Context
	viewer    model.User
	connected bool
	registry  *conversation.Registry
	timeline  *timeline.Timeline
	signals   *ephemeral.Tracker
	reads     *readstate.Tracker
}

// New creates an engine. Call Run to start processing.
func New(deps Deps, opts Options) *Engine {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	if deps.Store == nil {
		deps.Store = store.NewMockStore()
	}
	if deps.Tokens == nil {
		deps.Tokens = auth.NewSource("")
	}
	if deps.Bus == nil {
		deps.Bus = notify.NewBroadcaster(deps.Logger)
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = defaultSweepInterval
	}
	if opts.SendAckTimeout <= 0 {
		opts.SendAckTimeout = defaultSendAckTimeout
	}
	if opts.MaxUploads <= 0 {
		opts.MaxUploads = defaultMaxUploads
	}

	logger := deps.Logger.With("component", "engine")
	return &Engine{
		api:      deps.API,
		push:     deps.Push,
		events:   deps.Events,
		store:    deps.Store,
		tokens:   deps.Tokens,
		bus:      deps.Bus,
		metrics:  deps.Metrics,
		clock:    deps.Clock,
		logger:   logger,
		opts:     opts,
		runCtx:   context.Background(),
		tasks:    make(chan task, taskBuffer),
		stopped:  make(chan struct{}),
		registry: conversation.NewRegistry(conversation.Options{SequenceGuard: opts.SequenceGuard}),
		timeline: timeline.New(deps.Clock, timeline.Options{
			InitialPageSize: opts.InitialPageSize,
			OlderPageSize:   opts.OlderPageSize,
		}),
		signals: ephemeral.NewTracker(deps.Clock, ephemeral.Options{
			TypingTTL: opts.TypingTTL,
			StopDelay: opts.TypingStopDelay,
		}),
		reads: readstate.NewTracker(deps.Push, deps.Logger),
	}
}

// Bus returns the notification broadcaster presentation layers subscribe to.
func (e *Engine) Bus() *notify.Broadcaster {
	return e.bus
}

// Run drains tasks, push events and the sweep ticker until ctx is done. The
// cached conversation list is saved on the way out.
func (e *Engine) Run(ctx context.Context) error {
	defer close(e.stopped)
	e.runCtx = ctx

	ticker := time.NewTicker(e.opts.SweepInterval)
	defer ticker.Stop()

	events := e.events
	e.logger.Info("engine started")
	for {
		select {
		case <-ctx.Done():
			e.persistConversations(context.WithoutCancel(ctx))
			e.logger.Info("engine stopped")
			return nil
		case t := <-e.tasks:
			e.runTask(t)
		case ev, ok := <-events:
			if !ok {
				// The push client has stopped; keep serving local calls.
				events = nil
				continue
			}
			e.safely(ev.Name, func() { e.handle(ev) })
		case <-ticker.C:
			e.safely("sweep", e.sweep)
		}
		e.metrics.QueueDepth(len(events) + len(e.tasks))
	}
}

func (e *Engine) runTask(t task) {
	defer close(t.done)
	e.safely("task", t.fn)
}

// safely runs fn and turns a panic into a logged error so the loop keeps
// going.
func (e *Engine) safely(what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			e.metrics.Panic()
			e.logger.Error("recovered from panic in engine loop",
				"source", what,
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()
	fn()
}

// do runs fn on the loop goroutine and waits for it to finish.
func (e *Engine) do(ctx context.Context, fn func()) error {
	t := task{fn: fn, done: make(chan struct{})}
	select {
	case e.tasks <- t:
	case <-e.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-t.done:
		return nil
	case <-e.stopped:
		// Run may have exited between accepting and running the task.
		select {
		case <-t.done:
			return nil
		default:
			return ErrStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// publish sends a notification. Loop only.
func (e *Engine) publish(n notify.Notification) {
	e.bus.Publish(n)
}

func (e *Engine) focusedIs(conversationID int64) bool {
	id, ok := e.registry.Focused()
	return ok && id == conversationID
}

// fail classifies err, records it and surfaces a notice. Expired
// credentials end the session. Returns err so callers can write
// `return e.fail(ctx, "x", err)`.
func (e *Engine) fail(ctx context.Context, op string, err error) error {
	if err == nil || errors.Is(err, context.Canceled) {
		return err
	}
	kind := model.Classify(err)
	e.metrics.Failure(string(kind))
	e.logger.Warn("operation failed", "op", op, "kind", kind, "error", err)

	if kind == model.KindAuthExpired {
		if terr := e.Teardown(context.WithoutCancel(ctx)); terr != nil {
			e.logger.Error("session teardown failed", "error", terr)
		}
		return err
	}

	level := notify.LevelError
	if kind == model.KindValidation {
		level = notify.LevelInfo
	}
	_ = e.do(ctx, func() {
		e.publish(notify.Notification{
			Kind:    notify.NoticeRaised,
			Level:   level,
			Message: fmt.Sprintf("%s failed", op),
			Err:     err,
		})
	})
	return err
}

// emitSignal sends a local typing transition. Loop only; Emit never blocks.
func (e *Engine) emitSignal(s ephemeral.Signal) {
	event := push.EventTypingStop
	if s.Typing {
		event = push.EventTypingStart
	}
	if err := e.push.Emit(event, push.ConversationRef{ConversationID: s.ConversationID}); err != nil {
		e.logger.Debug("typing signal not sent", "event", event, "error", err)
	}
}

// sweep expires typing signals and emits due local stops. Loop only.
func (e *Engine) sweep() {
	res := e.signals.Sweep()
	for _, id := range res.Expired {
		e.publish(notify.Notification{Kind: notify.TypingChanged, ConversationID: id})
	}
	for _, s := range res.Stops {
		e.emitSignal(s)
	}
	if id, ok := e.registry.Focused(); ok {
		e.metrics.Typists(len(e.signals.Typists(id)))
	}
}

// persistConversations writes the registry to the session cache.
func (e *Engine) persistConversations(ctx context.Context) {
	if e.viewer.ID == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()

	list := e.registry.Ordered()
	for i := range list {
		if e.registry.HasMembers(list[i].ID) {
			list[i].Members = e.registry.Members(list[i].ID)
		}
	}
	if err := e.store.SaveConversations(ctx, e.viewer.ID, list); err != nil {
		e.logger.Warn("failed to cache conversations", "error", err)
	}
}
