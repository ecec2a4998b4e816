// Package fleet contains the core domain types shared by the coordinator,
// publisher, and agent: registered clients, published artifacts, and the
// state-exchange payloads that bind them.
//
// It also defines the failure taxonomy (ErrBadRequest, ErrUnauthorized,
// ErrNotFound, ErrConflict) that the HTTP layer maps onto statuses, and the
// token hashing helpers used for device authentication.
package fleet
