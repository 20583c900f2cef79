// Package dedupe suppresses push frames that arrive more than once within a
// short window, such as a message event replayed by the server right after a
// reconnect.
package dedupe
