// ABOUTME: WebSocket push channel client with acknowledged emits and reconnection
// ABOUTME: Inbound frames are delivered on one FIFO channel; pending acks fail on disconnect

package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/2389/chat-sync/internal/dedupe"
	"github.com/2389/chat-sync/internal/model"
)

const (
	defaultEventBuffer       = 256
	defaultSendBuffer        = 64
	defaultReconnectInterval = 2 * time.Second
	defaultPingInterval      = 25 * time.Second
	writeWait                = 10 * time.Second
	maxFrameSize             = 1 << 20
)

// ErrNotConnected is returned by emits while no connection is established.
var ErrNotConnected = fmt.Errorf("push channel not connected: %w", model.ErrTransient)

// Observer receives connection lifecycle and duplicate-drop notifications.
// *metrics.Metrics satisfies it.
type Observer interface {
	Connected()
	Disconnected()
	Duplicate(event string)
}

type nopObserver struct{}

func (nopObserver) Connected()       {}
func (nopObserver) Disconnected()    {}
func (nopObserver) Duplicate(string) {}

// Config configures a Client.
type Config struct {
	URL               string
	Token             string
	ReconnectInterval time.Duration
	PingInterval      time.Duration
	EventBuffer       int
	SendBuffer        int
	// Dedupe, when set, drops repeated message and conversation:created frames.
	Dedupe   *dedupe.Cache
	Observer Observer
	Dialer   *websocket.Dialer
}

// session is one live connection.
type session struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
}

// Client maintains the push channel. Run owns the connection; Emit and
// EmitWithAck may be called from any goroutine.
type Client struct {
	cfg      Config
	dialer   *websocket.Dialer
	limiter  *rate.Limiter
	observer Observer
	logger   *slog.Logger

	events chan Event

	mu      sync.Mutex
	session *session
	pending map[string]chan Ack
}

// NewClient creates a client. Pass nil logger for default.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = defaultReconnectInterval
	}
	if cfg.PingInterval < 0 {
		cfg.PingInterval = 0
	} else if cfg.PingInterval == 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = defaultEventBuffer
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = defaultSendBuffer
	}
	observer := cfg.Observer
	if observer == nil {
		observer = nopObserver{}
	}
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	return &Client{
		cfg:      cfg,
		dialer:   dialer,
		limiter:  rate.NewLimiter(rate.Every(cfg.ReconnectInterval), 1),
		observer: observer,
		logger:   logger.With("component", "push"),
		events:   make(chan Event, cfg.EventBuffer),
		pending:  make(map[string]chan Ack),
	}
}

// Events returns the inbound event stream. It is closed when Run returns.
func (c *Client) Events() <-chan Event {
	return c.events
}

// Connected reports whether a connection is currently established.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session != nil
}

// Run connects and reconnects until ctx is cancelled or the server rejects
// the credentials, in which case the returned error wraps
// model.ErrAuthExpired.
func (c *Client) Run(ctx context.Context) error {
	defer close(c.events)

	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil
		}
		err := c.connectAndServe(ctx)
		if errors.Is(err, model.ErrAuthExpired) {
			c.logger.Warn("push channel rejected credentials")
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
		c.logger.Warn("push channel disconnected", "error", err)
	}
}

func (c *Client) connectAndServe(ctx context.Context) error {
	header := http.Header{}
	if c.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	conn, resp, err := c.dialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return fmt.Errorf("dialing push channel: %w", model.ErrAuthExpired)
		}
		return fmt.Errorf("dialing push channel: %w", err)
	}

	s := &session{
		conn: conn,
		send: make(chan []byte, c.cfg.SendBuffer),
		done: make(chan struct{}),
	}
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()

	c.logger.Info("push channel connected", "url", c.cfg.URL)
	c.observer.Connected()
	if !c.deliver(ctx, Event{Name: EventConnected}) {
		c.teardown(s)
		return ctx.Err()
	}

	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-s.done:
		}
	}()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.writePump(s)
	}()

	err = c.readPump(ctx, s)
	c.teardown(s)
	wg.Wait()

	c.observer.Disconnected()
	// Delivered with a fresh context so the engine always learns about the
	// disconnect, unless it has stopped draining.
	select {
	case c.events <- Event{Name: EventDisconnected}:
	default:
	}
	return err
}

// teardown closes the session and fails every pending acknowledgement.
func (c *Client) teardown(s *session) {
	c.mu.Lock()
	if c.session == s {
		c.session = nil
	}
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.mu.Unlock()

	select {
	case <-s.done:
	default:
		close(s.done)
	}
	_ = s.conn.Close()
}

func (c *Client) readPump(ctx context.Context, s *session) error {
	s.conn.SetReadLimit(maxFrameSize)
	if c.cfg.PingInterval > 0 {
		pongWait := 2 * c.cfg.PingInterval
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
		s.conn.SetPongHandler(func(string) error {
			return s.conn.SetReadDeadline(time.Now().Add(pongWait))
		})
	}

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("reading push frame: %w", err)
		}
		if c.cfg.PingInterval > 0 {
			_ = s.conn.SetReadDeadline(time.Now().Add(2 * c.cfg.PingInterval))
		}

		var f Frame
		if err := json.Unmarshal(data, &f); err != nil || f.Event == "" {
			c.logger.Warn("dropping malformed push frame", "error", err)
			continue
		}
		if f.Event == EventAck {
			c.resolve(f)
			continue
		}
		if c.duplicate(f) {
			c.observer.Duplicate(f.Event)
			c.logger.Debug("dropping duplicate push frame", "event", f.Event)
			continue
		}
		if !c.deliver(ctx, Event{Name: f.Event, Data: f.Data}) {
			return ctx.Err()
		}
	}
}

func (c *Client) writePump(s *session) {
	var ping <-chan time.Time
	if c.cfg.PingInterval > 0 {
		ticker := time.NewTicker(c.cfg.PingInterval)
		defer ticker.Stop()
		ping = ticker.C
	}

	for {
		select {
		case data := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Warn("writing push frame", "error", err)
				_ = s.conn.Close()
				return
			}
		case <-ping:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				_ = s.conn.Close()
				return
			}
		case <-s.done:
			return
		}
	}
}

// duplicate reports whether f repeats a recently delivered message or
// conversation:created frame.
func (c *Client) duplicate(f Frame) bool {
	if c.cfg.Dedupe == nil {
		return false
	}
	if !strings.HasPrefix(f.Event, "message:") && f.Event != EventConversationCreated {
		return false
	}
	return c.cfg.Dedupe.Seen(f.Event, f.Data)
}

func (c *Client) deliver(ctx context.Context, ev Event) bool {
	select {
	case c.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *Client) resolve(f Frame) {
	var ack Ack
	if err := json.Unmarshal(f.Data, &ack); err != nil {
		ack = Ack{Error: "malformed acknowledgement"}
	}

	c.mu.Lock()
	ch, ok := c.pending[f.Ack]
	if ok {
		delete(c.pending, f.Ack)
	}
	c.mu.Unlock()

	if !ok {
		c.logger.Debug("acknowledgement for unknown emit", "ack", f.Ack)
		return
	}
	ch <- ack
}

// Emit sends a fire-and-forget event. It never blocks; a full send buffer or
// a missing connection is reported as a transient error.
func (c *Client) Emit(event string, payload any) error {
	return c.emit(event, payload, "")
}

// EmitWithAck sends event and waits for the server's acknowledgement until
// ctx is done. A disconnect or deadline yields an error wrapping
// model.ErrTransient.
func (c *Client) EmitWithAck(ctx context.Context, event string, payload any) (Ack, error) {
	id := uuid.NewString()
	ch := make(chan Ack, 1)

	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.emit(event, payload, id); err != nil {
		return Ack{}, err
	}

	select {
	case ack, ok := <-ch:
		if !ok {
			return Ack{}, fmt.Errorf("waiting for %s ack: %w", event, ErrNotConnected)
		}
		return ack, nil
	case <-ctx.Done():
		return Ack{}, fmt.Errorf("waiting for %s ack: %w: %w", event, model.ErrTransient, ctx.Err())
	}
}

func (c *Client) emit(event string, payload any, ackID string) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding %s payload: %w", event, err)
	}
	frame, err := json.Marshal(Frame{Event: event, Data: data, Ack: ackID})
	if err != nil {
		return fmt.Errorf("encoding %s frame: %w", event, err)
	}

	c.mu.Lock()
	s := c.session
	c.mu.Unlock()
	if s == nil {
		return fmt.Errorf("emitting %s: %w", event, ErrNotConnected)
	}

	select {
	case s.send <- frame:
		return nil
	case <-s.done:
		return fmt.Errorf("emitting %s: %w", event, ErrNotConnected)
	default:
		return fmt.Errorf("emitting %s: send buffer full: %w", event, model.ErrTransient)
	}
}
