// ABOUTME: Typing and presence signals with deadline-based expiry
// ABOUTME: Remote typists decay after a TTL; local typing emits throttled start/stop signals

package ephemeral

import (
	"cmp"
	"slices"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/2389/chat-sync/internal/clock"
	"github.com/2389/chat-sync/internal/model"
)

const (
	// DefaultTypingTTL bounds how long a remote typing signal stays active
	// without a refresh.
	DefaultTypingTTL = 3000 * time.Millisecond

	// DefaultStopDelay is how long after the last local keystroke a stop
	// signal is emitted.
	DefaultStopDelay = 2500 * time.Millisecond
)

type typingKey struct {
	conversationID int64
	userID         int64
}

type typingEntry struct {
	expiresAt time.Time
	arrival   uint64
}

// localEntry tracks the viewer's own typing in one conversation.
type localEntry struct {
	lastKeystroke time.Time
}

// Signal is a local typing transition the caller must send on the push channel.
type Signal struct {
	ConversationID int64
	Typing         bool
}

// SweepResult lists what changed during a Sweep.
type SweepResult struct {
	// Expired holds conversations whose typist set shrank.
	Expired []int64
	// Stops holds local stop signals that came due.
	Stops []Signal
}

// Tracker holds typing and presence state. It is not safe for concurrent
// use; the engine loop owns it.
type Tracker struct {
	clock     clock.Clock
	ttl       time.Duration
	stopDelay time.Duration

	typing   map[typingKey]typingEntry
	arrivals uint64
	local    map[int64]localEntry
	presence map[int64]model.Presence
}

// Options configures a Tracker. Zero values select the defaults.
type Options struct {
	TypingTTL time.Duration
	StopDelay time.Duration
}

// NewTracker creates a tracker reading time from c.
func NewTracker(c clock.Clock, opts Options) *Tracker {
	if c == nil {
		c = clock.Real{}
	}
	if opts.TypingTTL <= 0 {
		opts.TypingTTL = DefaultTypingTTL
	}
	if opts.StopDelay <= 0 {
		opts.StopDelay = DefaultStopDelay
	}
	return &Tracker{
		clock:     c,
		ttl:       opts.TypingTTL,
		stopDelay: opts.StopDelay,
		typing:    make(map[typingKey]typingEntry),
		local:     make(map[int64]localEntry),
		presence:  make(map[int64]model.Presence),
	}
}

// Start records an inbound typing start for (conversationID, userID). A
// refresh replaces the previous deadline but keeps the original arrival
// position. Returns true if the user was not already active.
func (t *Tracker) Start(conversationID, userID int64) bool {
	k := typingKey{conversationID, userID}
	now := t.clock.Now()
	prev, ok := t.typing[k]
	if ok && now.Before(prev.expiresAt) {
		prev.expiresAt = now.Add(t.ttl)
		t.typing[k] = prev
		return false
	}
	t.arrivals++
	t.typing[k] = typingEntry{expiresAt: now.Add(t.ttl), arrival: t.arrivals}
	return true
}

// Stop clears the typing signal for (conversationID, userID). Returns true if
// an active signal was removed.
func (t *Tracker) Stop(conversationID, userID int64) bool {
	k := typingKey{conversationID, userID}
	e, ok := t.typing[k]
	if !ok {
		return false
	}
	delete(t.typing, k)
	return t.clock.Now().Before(e.expiresAt)
}

// Typists returns the active typists in conversationID in arrival order.
// Expired entries are never returned, even before a Sweep removes them.
func (t *Tracker) Typists(conversationID int64) []int64 {
	now := t.clock.Now()
	type active struct {
		userID  int64
		arrival uint64
	}
	var found []active
	for k, e := range t.typing {
		if k.conversationID != conversationID || !now.Before(e.expiresAt) {
			continue
		}
		found = append(found, active{k.userID, e.arrival})
	}
	slices.SortFunc(found, func(a, b active) int { return cmp.Compare(a.arrival, b.arrival) })
	out := make([]int64, len(found))
	for i, f := range found {
		out[i] = f.userID
	}
	return out
}

// Sweep drops expired typing entries and collects local stop signals that
// came due.
func (t *Tracker) Sweep() SweepResult {
	now := t.clock.Now()
	var res SweepResult
	for k, e := range t.typing {
		if now.Before(e.expiresAt) {
			continue
		}
		delete(t.typing, k)
		if !slices.Contains(res.Expired, k.conversationID) {
			res.Expired = append(res.Expired, k.conversationID)
		}
	}
	for conversationID, l := range t.local {
		if now.Sub(l.lastKeystroke) >= t.stopDelay {
			delete(t.local, conversationID)
			res.Stops = append(res.Stops, Signal{ConversationID: conversationID})
		}
	}
	slices.Sort(res.Expired)
	slices.SortFunc(res.Stops, func(a, b Signal) int { return cmp.Compare(a.ConversationID, b.ConversationID) })
	return res
}

// Keystroke records local typing in conversationID. A start signal is
// returned only on the idle to active transition.
func (t *Tracker) Keystroke(conversationID int64) (Signal, bool) {
	_, active := t.local[conversationID]
	t.local[conversationID] = localEntry{lastKeystroke: t.clock.Now()}
	if active {
		return Signal{}, false
	}
	return Signal{ConversationID: conversationID, Typing: true}, true
}

// Blur ends local typing in conversationID immediately. Used on composer blur
// and on submit.
func (t *Tracker) Blur(conversationID int64) (Signal, bool) {
	if _, active := t.local[conversationID]; !active {
		return Signal{}, false
	}
	delete(t.local, conversationID)
	return Signal{ConversationID: conversationID}, true
}

// LocallyTyping reports whether the viewer is typing in conversationID.
func (t *Tracker) LocallyTyping(conversationID int64) bool {
	_, ok := t.local[conversationID]
	return ok
}

// ApplyPresence stores p, replacing whatever was known for the user.
func (t *Tracker) ApplyPresence(p model.Presence) {
	t.presence[p.UserID] = p
}

// Presence returns the last known presence for userID.
func (t *Tracker) Presence(userID int64) (model.Presence, bool) {
	p, ok := t.presence[userID]
	return p, ok
}

// PresenceText renders the presence line for u: "online now" when online,
// then the last-seen time, then the status message, then "offline".
func (t *Tracker) PresenceText(u model.User) string {
	p, ok := t.presence[u.ID]
	if ok && p.Status == model.PresenceOnline {
		return "online now"
	}
	lastSeen := u.LastSeen
	if ok && p.LastSeen != nil {
		lastSeen = p.LastSeen
	}
	if lastSeen != nil {
		return "last seen " + humanize.RelTime(*lastSeen, t.clock.Now(), "ago", "from now")
	}
	if u.StatusMessage != "" {
		return u.StatusMessage
	}
	return "offline"
}

// PurgeConversation drops all typing state for conversationID.
func (t *Tracker) PurgeConversation(conversationID int64) {
	for k := range t.typing {
		if k.conversationID == conversationID {
			delete(t.typing, k)
		}
	}
	delete(t.local, conversationID)
}

// Reset drops all state.
func (t *Tracker) Reset() {
	clear(t.typing)
	clear(t.local)
	clear(t.presence)
	t.arrivals = 0
}
