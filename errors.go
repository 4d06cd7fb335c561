package pikav

import "errors"

// Error taxonomy, by kind rather than by concrete type (spec §7). HTTP glue
// maps these to status codes at the boundary; internal code never
// constructs an HTTP status directly.
var (
	// ErrSessionNotFound is returned by Subscribe/Unsubscribe when the
	// client id does not name a live session.
	ErrSessionNotFound = errors.New("pikav: session not found")

	// ErrUnauthorized is returned by the HTTP glue when a request carries
	// no or an invalid JWT.
	ErrUnauthorized = errors.New("pikav: unauthorized")

	// ErrInternal is returned by Publisher.CreateSession when a new
	// session's bootstrap frame cannot be enqueued. JSON serialization, RPC
	// transport, and JWKS fetch failures are returned as their own errors
	// and are not wrapped with it.
	ErrInternal = errors.New("pikav: internal error")
)
