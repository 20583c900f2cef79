// Package push implements the client side of the chat server's push channel:
// a WebSocket carrying JSON frames of the form
//
//	{"event": "message:created", "data": {...}}
//
// # Overview
//
// Client.Run dials, serves, and redials with a rate-limited backoff until its
// context ends. Inbound frames are decoded into Events and delivered on a
// single channel in arrival order, so the engine processes each connection's
// events strictly FIFO. Synthetic connect and disconnect events mark the
// connection boundaries; after each connect the server resends the full
// conversation list.
//
// # Acknowledgements
//
// EmitWithAck tags the outgoing frame with a fresh UUID and waits for an
// "ack" frame carrying the same id. Acks that never arrive are bounded by the
// caller's context. A disconnect fails every pending ack with ErrNotConnected.
//
// # Duplicates
//
// When configured with a dedupe.Cache, repeated message:* and
// conversation:created frames inside the cache window are dropped before
// delivery. Typing, presence and list frames always pass.
package push
