// Package auth holds the client's bearer token.
//
// Tokens come from configuration, the CHAT_SYNC_TOKEN environment variable,
// a token file or the cached session, in that order. Source keeps the
// current token for the REST client and is cleared when the session ends.
//
// JWTs are inspected without verifying their signature: the server stays
// authoritative, and CheckExpiry only lets the client skip requests with a
// token it already knows has lapsed. Opaque tokens always pass.
package auth
