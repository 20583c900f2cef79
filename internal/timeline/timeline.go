// ABOUTME: Per-conversation message ledgers with cursor pagination and tombstones
// ABOUTME: Owned by the engine loop; network I/O happens between Begin and Complete calls

package timeline

import (
	"cmp"
	"slices"

	"github.com/2389/chat-sync/internal/clock"
	"github.com/2389/chat-sync/internal/model"
)

const (
	// DefaultInitialPageSize is the number of messages requested when a
	// conversation is first opened.
	DefaultInitialPageSize = 30

	// DefaultOlderPageSize is the number of messages requested per backward page.
	DefaultOlderPageSize = 50
)

// ledger is the loaded window of one conversation.
type ledger struct {
	messages       []model.Message
	hasMore        bool
	loaded         bool
	loadingInitial bool
	loadingOlder   bool
	pinned         bool
}

// Outcome describes the effect of applying a pushed message.
type Outcome struct {
	Inserted bool
	// AutoAdvance is set when the view should move to the newest content:
	// the message came from the viewer, or the viewport was already pinned.
	AutoAdvance bool
}

// Options configures a Timeline. Zero values select the defaults.
type Options struct {
	InitialPageSize int
	OlderPageSize   int
}

// Timeline holds every conversation's ledger and composer. It is not safe for
// concurrent use.
type Timeline struct {
	clock        clock.Clock
	initialLimit int
	olderLimit   int
	ledgers      map[int64]*ledger
	composers    map[int64]*composer
}

// New creates an empty Timeline.
func New(c clock.Clock, opts Options) *Timeline {
	if c == nil {
		c = clock.Real{}
	}
	if opts.InitialPageSize <= 0 {
		opts.InitialPageSize = DefaultInitialPageSize
	}
	if opts.OlderPageSize <= 0 {
		opts.OlderPageSize = DefaultOlderPageSize
	}
	return &Timeline{
		clock:        c,
		initialLimit: opts.InitialPageSize,
		olderLimit:   opts.OlderPageSize,
		ledgers:      make(map[int64]*ledger),
		composers:    make(map[int64]*composer),
	}
}

func (t *Timeline) ledger(conversationID int64) *ledger {
	l, ok := t.ledgers[conversationID]
	if !ok {
		l = &ledger{}
		t.ledgers[conversationID] = l
	}
	return l
}

// BeginInitial marks the newest page of conversationID as loading and returns
// the page size to request. ok is false if an initial load is already running.
func (t *Timeline) BeginInitial(conversationID int64) (limit int, ok bool) {
	l := t.ledger(conversationID)
	if l.loadingInitial {
		return 0, false
	}
	l.loadingInitial = true
	return t.initialLimit, true
}

// CompleteInitial merges the newest page into the ledger. Messages pushed
// while the request was in flight are kept.
func (t *Timeline) CompleteInitial(conversationID int64, page []model.Message) {
	l := t.ledger(conversationID)
	l.loadingInitial = false
	for _, m := range page {
		l.upsert(m)
	}
	if !l.loaded {
		l.hasMore = len(page) == t.initialLimit
		l.loaded = true
		l.pinned = true
	}
}

// FailInitial clears the loading guard after a failed initial load.
func (t *Timeline) FailInitial(conversationID int64) {
	if l, ok := t.ledgers[conversationID]; ok {
		l.loadingInitial = false
	}
}

// BeginOlder starts a backward page load. The cursor is the id of the oldest
// loaded message. ok is false when a load is already outstanding, when there
// is nothing older, or when nothing has been loaded yet.
func (t *Timeline) BeginOlder(conversationID int64) (cursor int64, limit int, ok bool) {
	l, exists := t.ledgers[conversationID]
	if !exists || l.loadingOlder || !l.loaded || !l.hasMore || len(l.messages) == 0 {
		return 0, 0, false
	}
	l.loadingOlder = true
	return l.messages[0].ID, t.olderLimit, true
}

// CompleteOlder merges an older page, recomputes hasMore and returns how many
// messages were newly inserted.
func (t *Timeline) CompleteOlder(conversationID int64, page []model.Message) int {
	l := t.ledger(conversationID)
	l.loadingOlder = false
	inserted := 0
	for _, m := range page {
		if l.upsert(m) {
			inserted++
		}
	}
	l.hasMore = len(page) == t.olderLimit
	return inserted
}

// FailOlder clears the pagination guard after a failed page load.
func (t *Timeline) FailOlder(conversationID int64) {
	if l, ok := t.ledgers[conversationID]; ok {
		l.loadingOlder = false
	}
}

// ApplyCreateOrUpdate upserts m into its conversation's ledger. Applying the
// same message twice leaves the ledger unchanged.
func (t *Timeline) ApplyCreateOrUpdate(m model.Message, fromViewer bool) Outcome {
	l := t.ledger(m.ConversationID)
	wasPinned := l.pinned
	out := Outcome{
		Inserted:    l.upsert(m),
		AutoAdvance: fromViewer || wasPinned,
	}
	if out.AutoAdvance {
		l.pinned = true
	}
	return out
}

// ApplyDelete tombstones the slot holding m.ID. Returns false when the id is
// not loaded; absent slots are never synthesized.
func (t *Timeline) ApplyDelete(m model.Message) bool {
	l, ok := t.ledgers[m.ConversationID]
	if !ok {
		return false
	}
	i := l.index(m.ID)
	if i < 0 {
		return false
	}
	tomb := l.messages[i]
	tomb.Content = ""
	tomb.Attachments = nil
	tomb.DeletedAt = m.DeletedAt
	if tomb.DeletedAt == nil {
		now := t.clock.Now()
		tomb.DeletedAt = &now
	}
	l.messages[i] = tomb
	return true
}

// ApplyReactions replaces the reactions on a loaded message.
func (t *Timeline) ApplyReactions(conversationID, messageID int64, reactions []model.Reaction) bool {
	l, ok := t.ledgers[conversationID]
	if !ok {
		return false
	}
	i := l.index(messageID)
	if i < 0 {
		return false
	}
	l.messages[i].Reactions = slices.Clone(reactions)
	return true
}

// Find looks up a loaded message by id across all ledgers.
func (t *Timeline) Find(messageID int64) (model.Message, bool) {
	for _, l := range t.ledgers {
		if i := l.index(messageID); i >= 0 {
			return l.messages[i], true
		}
	}
	return model.Message{}, false
}

// Messages returns a copy of the loaded window for conversationID.
func (t *Timeline) Messages(conversationID int64) []model.Message {
	l, ok := t.ledgers[conversationID]
	if !ok {
		return nil
	}
	return slices.Clone(l.messages)
}

// HasMore reports whether older history may exist beyond the loaded window.
func (t *Timeline) HasMore(conversationID int64) bool {
	l, ok := t.ledgers[conversationID]
	return ok && l.hasMore
}

// Loaded reports whether the initial page has been merged.
func (t *Timeline) Loaded(conversationID int64) bool {
	l, ok := t.ledgers[conversationID]
	return ok && l.loaded
}

// LoadingOlder reports whether a backward page is outstanding.
func (t *Timeline) LoadingOlder(conversationID int64) bool {
	l, ok := t.ledgers[conversationID]
	return ok && l.loadingOlder
}

// SetPinned records whether the viewport shows the newest content.
func (t *Timeline) SetPinned(conversationID int64, pinned bool) {
	t.ledger(conversationID).pinned = pinned
}

// Pinned reports whether the viewport shows the newest content.
func (t *Timeline) Pinned(conversationID int64) bool {
	l, ok := t.ledgers[conversationID]
	return ok && l.pinned
}

// Purge drops the ledger and composer for conversationID.
func (t *Timeline) Purge(conversationID int64) {
	delete(t.ledgers, conversationID)
	delete(t.composers, conversationID)
}

// Reset drops everything.
func (t *Timeline) Reset() {
	clear(t.ledgers)
	clear(t.composers)
}

func (l *ledger) index(messageID int64) int {
	return slices.IndexFunc(l.messages, func(m model.Message) bool { return m.ID == messageID })
}

// upsert inserts m in (createdAt, id) order or replaces it in place. Returns
// true when m was not already present.
func (l *ledger) upsert(m model.Message) bool {
	if i := l.index(m.ID); i >= 0 {
		moved := !l.messages[i].CreatedAt.Equal(m.CreatedAt)
		l.messages[i] = m
		if moved {
			slices.SortStableFunc(l.messages, compareMessages)
		}
		return false
	}
	i, _ := slices.BinarySearchFunc(l.messages, m, compareMessages)
	l.messages = slices.Insert(l.messages, i, m)
	return true
}

func compareMessages(a, b model.Message) int {
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}
