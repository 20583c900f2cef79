// Package api is the client for the chat server's REST surface: the profile
// snapshot, conversation management, message history, message edits and
// reactions, and file uploads.
//
// Every non-2xx response becomes an *Error that wraps one of the taxonomy
// sentinels in package model, so callers classify failures with errors.Is:
//
//	401, 403           model.ErrAuthExpired
//	404, 409, 410      model.ErrConflict
//	400, 413, 422      model.ErrValidation
//	anything else      model.ErrTransient
//
// Transport failures also wrap model.ErrTransient.
package api
