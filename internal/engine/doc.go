// Package engine is the live-sync core of a chat client session.
//
// # Overview
//
// An Engine owns every piece of client state: the conversation registry,
// message ledgers and composers, typing and presence signals, and read
// state. One goroutine, Run, mutates that state. It drains three sources
// in a single select:
//
//   - tasks submitted by public methods, which block until their task ran
//   - push events, in the order the connection delivered them
//   - a sweep ticker that expires typing signals and sends due typing:stop
//
// Methods that talk to the server split into steps: a loop task that
// checks and marks state (for example "page loading"), the network call in
// the caller's goroutine, and a loop task that merges the result. The loop
// never waits on the network, so push events keep flowing while a history
// page or an upload is in flight.
//
// # Notifications
//
// State changes are announced on a notify.Broadcaster. Subscribers read the
// new state back through the accessor methods (Conversations, Messages,
// Composer, Typing and the rest), each of which returns copies.
//
// # Errors
//
// Failures are classified with model.Classify. Transient and conflict
// errors raise a notice and are returned; validation errors are returned
// before anything reaches the network; an expired credential tears the
// session down and publishes SessionEnded. Push handlers run under a
// recover guard so a malformed event cannot stop the loop.
//
// # Lifecycle
//
// Start Run before calling any other method. Bootstrap then restores the
// cached session and loads the snapshot. Teardown ends the session; the
// owner of the push client should stop it on SessionEnded.
package engine
