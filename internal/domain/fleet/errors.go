package fleet

import "errors"

var (
	// ErrBadRequest classifies malformed or incomplete caller input.
	// Callers must never auto-retry it.
	ErrBadRequest = errors.New("bad request")

	// ErrUnauthorized classifies every credential failure. Responses built
	// from it never reveal which part of the credentials was wrong.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotFound classifies unknown routes, clients, and objects.
	ErrNotFound = errors.New("not found")

	// ErrConflict classifies an attempt to re-register an existing version
	// with a different checksum. Republishing identical bytes is allowed.
	ErrConflict = errors.New("conflict")
)
