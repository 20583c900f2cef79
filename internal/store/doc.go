// Package store persists the client's login session in a local SQLite
// database so the next run can reconnect without asking for credentials.
//
// # Tables
//
//   - session: a single row holding the bearer token and the viewer profile
//   - conversations: the viewer's last known conversation list in display
//     order, used to paint the list before the profile snapshot arrives
//
// The cache is advisory. Whatever the server returns on bootstrap replaces
// the cached conversation list, and ClearSession wipes both tables when the
// credentials stop working.
//
// MockStore implements Store in memory for tests.
package store
