// Package timeline keeps the ordered message window of every conversation
// and the composer attached to it.
//
// # Overview
//
// Each conversation has a ledger sorted ascending by (createdAt, id) with no
// duplicate ids. Pages from the history API and messages from the push
// channel are merged into the same ledger, so neither path can overwrite
// what the other delivered. Deleted messages stay in place as tombstones.
//
// Loads are split into Begin and Complete calls. Begin runs on the engine
// loop and hands back what to request; the caller performs the request off
// the loop and calls Complete (or Fail) with the result. The older-page load
// is not reentrant per conversation.
//
// # Composer
//
// BeginSend and CompleteSend implement the single-flight send. A composer
// never loses its draft before the server acknowledges the message.
package timeline
