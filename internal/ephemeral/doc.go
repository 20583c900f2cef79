// Package ephemeral tracks short-lived signals: who is typing where, and the
// last known presence of each user.
//
// # Overview
//
// Remote typing signals are deadline entries keyed by (conversation, user),
// checked against an injectable clock. A refresh overwrites the single entry
// for its key, so a key can never hold two live deadlines. Readers filter
// expired entries on access and a periodic Sweep reclaims them.
//
// Local typing is throttled: Keystroke yields a start signal only on the
// idle to active transition, and Sweep yields the stop signal once the stop
// delay has passed without a keystroke. Blur yields it immediately.
//
// Presence is last-write-wins per user.
package ephemeral
