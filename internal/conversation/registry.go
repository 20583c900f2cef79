// ABOUTME: Canonical per-viewer conversation registry with membership and focus
// ABOUTME: Merges snapshot and push data by id and keeps the list stable-sorted by recency

package conversation

import (
	"slices"

	"github.com/2389/chat-sync/internal/model"
)

// UpsertResult reports what an Upsert changed.
type UpsertResult struct {
	// Changed lists ids whose stored record was written.
	Changed []int64
	// Added lists ids that were not in the registry before.
	Added []int64
	// Reordered is set when the display order changed.
	Reordered bool
	// Skipped counts entries without an id.
	Skipped int
	// Stale counts entries dropped by the sequence guard.
	Stale int
}

// Options configures a Registry.
type Options struct {
	// SequenceGuard drops updates whose Seq is lower than the stored one.
	// Off by default: updates apply in arrival order.
	SequenceGuard bool
}

// Registry holds the viewer's conversations, their members and the focused
// conversation. It is not safe for concurrent use; the engine loop owns it.
type Registry struct {
	opts          Options
	conversations map[int64]model.Conversation
	order         []int64
	members       map[int64][]model.Member
	focused       int64
}

// NewRegistry creates an empty registry.
func NewRegistry(opts Options) *Registry {
	return &Registry{
		opts:          opts,
		conversations: make(map[int64]model.Conversation),
		members:       make(map[int64][]model.Member),
	}
}

// Upsert merges conversations by id. Present fields overwrite stored ones.
// Entries without an id are skipped. The list is re-sorted only when an
// entry is new or its sort key moved, and equal keys keep their relative
// order.
func (r *Registry) Upsert(conversations ...model.Conversation) UpsertResult {
	var res UpsertResult
	resort := false

	for _, c := range conversations {
		if c.ID == 0 {
			res.Skipped++
			continue
		}
		existing, ok := r.conversations[c.ID]
		if ok && r.opts.SequenceGuard && c.Seq != 0 && c.Seq < existing.Seq {
			res.Stale++
			continue
		}

		merged := existing.Merge(c)
		r.conversations[c.ID] = merged
		if c.Members != nil {
			r.members[c.ID] = slices.Clone(c.Members)
		}
		res.Changed = append(res.Changed, c.ID)

		if !ok {
			r.order = append(r.order, c.ID)
			res.Added = append(res.Added, c.ID)
			resort = true
		} else if !merged.SortKey().Equal(existing.SortKey()) {
			resort = true
		}
	}

	if resort {
		before := slices.Clone(r.order)
		slices.SortStableFunc(r.order, func(a, b int64) int {
			// Descending by recency.
			return r.conversations[b].SortKey().Compare(r.conversations[a].SortKey())
		})
		res.Reordered = !slices.Equal(before, r.order)
	}
	return res
}

// Get returns a conversation by id.
func (r *Registry) Get(id int64) (model.Conversation, bool) {
	c, ok := r.conversations[id]
	return c, ok
}

// Has reports whether id is registered.
func (r *Registry) Has(id int64) bool {
	_, ok := r.conversations[id]
	return ok
}

// Ordered returns every conversation, most recent first.
func (r *Registry) Ordered() []model.Conversation {
	out := make([]model.Conversation, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.conversations[id])
	}
	return out
}

// IDs returns the conversation ids in display order.
func (r *Registry) IDs() []int64 {
	return slices.Clone(r.order)
}

// Len returns the number of conversations.
func (r *Registry) Len() int {
	return len(r.order)
}

// SetMembers replaces a conversation's member list.
func (r *Registry) SetMembers(id int64, members []model.Member) {
	if members == nil {
		members = []model.Member{}
	}
	r.members[id] = slices.Clone(members)
}

// Members returns the cached members of a conversation.
func (r *Registry) Members(id int64) []model.Member {
	return slices.Clone(r.members[id])
}

// HasMembers reports whether membership for id has been fetched.
func (r *Registry) HasMembers(id int64) bool {
	_, ok := r.members[id]
	return ok
}

// Focus makes id the focused conversation. Returns false if it already was.
func (r *Registry) Focus(id int64) bool {
	if r.focused == id {
		return false
	}
	r.focused = id
	return true
}

// Focused returns the focused conversation id.
func (r *Registry) Focused() (int64, bool) {
	return r.focused, r.focused != 0
}

// ClearFocus drops the focus.
func (r *Registry) ClearFocus() {
	r.focused = 0
}

// Remove purges a conversation and its members. Returns whether it was the
// focused conversation, in which case focus is cleared.
func (r *Registry) Remove(id int64) (wasFocused bool) {
	delete(r.conversations, id)
	delete(r.members, id)
	r.order = slices.DeleteFunc(r.order, func(v int64) bool { return v == id })
	if r.focused == id {
		r.focused = 0
		return true
	}
	return false
}

// Reset empties the registry.
func (r *Registry) Reset() {
	clear(r.conversations)
	clear(r.members)
	r.order = nil
	r.focused = 0
}
