// Package readstate emits read receipts when the viewer looks at a
// conversation: on focus, and when the application returns to the
// foreground with a conversation already open.
//
// Unread counts are not tracked here. They arrive on conversation records
// from the REST snapshot and push events, and this package only formats
// them.
package readstate
