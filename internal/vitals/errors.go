package vitals

import "errors"

// Sentinel errors shared by the store, orchestrator, and API layers.
// The API maps these onto HTTP status codes; everything else becomes a
// generic 500 with the detail logged server-side.
var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidInput = errors.New("invalid input")
)

// ErrQueueClosed signals that a queue provider has shut down and will never
// deliver again. Workers stop instead of retrying when they see it.
var ErrQueueClosed = errors.New("queue closed")
