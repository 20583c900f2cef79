// Package model defines the data shapes shared by the sync engine and its
// transports, along with the error taxonomy every component reports through.
//
// # Overview
//
// The types mirror the JSON the chat server emits on both the REST snapshot
// API and the push channel. Optional server fields are pointers so that a
// partial push payload can be told apart from an explicit zero value when it
// is merged into the registry.
//
// # Error Taxonomy
//
// All failures surfaced by the engine wrap one of four sentinels:
//
//   - ErrTransient: network or timeout failures; the action may be retried
//   - ErrValidation: rejected locally before any network call
//   - ErrAuthExpired: the session is no longer valid and must be torn down
//   - ErrConflict: the target no longer exists or the viewer lost access
//
// Use errors.Is to classify an error; use Classify to map an arbitrary error
// onto the taxonomy for logging and metrics.
package model
