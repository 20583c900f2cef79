// Package conversation holds the viewer's canonical conversation registry.
//
// # Overview
//
// The Registry merges conversations arriving from the REST snapshot and from
// push events into one map keyed by id, and maintains the display order:
// descending by updatedAt, falling back to createdAt. Sorting is stable, so
// conversations with equal timestamps keep the order in which they were
// first seen, and a merge that leaves the timestamp alone never moves an
// entry.
//
// # Merging
//
// Upsert overlays the fields present in an update onto the stored record.
// Absent fields are kept, and entries without an id are ignored. Updates
// apply in arrival order: an older updatedAt delivered after a newer one
// wins. With Options.SequenceGuard set, an update carrying a lower seq than
// the stored record is dropped instead.
//
// # Membership and Focus
//
// Members are stored beside the conversation rather than inside it, so a
// conversation:list push (which carries no members) does not erase a roster
// fetched earlier. HasMembers tells the engine whether a fetch is needed.
//
// Conversations leave the registry only through Remove, which the engine
// calls on a membership-removal event.
package conversation
