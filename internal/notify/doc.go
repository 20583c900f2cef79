// Package notify fans out change notifications from the sync engine to any
// number of UI subscribers.
//
// Notifications are small descriptors (a Kind plus the affected
// conversation or user); subscribers read the current state back from the
// engine. A subscriber whose buffer is full misses notifications rather
// than blocking the engine loop, so renderers should treat every
// notification as "refresh this part" and never count them.
package notify
