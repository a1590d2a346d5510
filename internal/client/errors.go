package client

import "errors"

// Gateway error taxonomy. The state machine maps these onto provision error
// codes; the gateway itself never retries.
var (
	// ErrAuthFailed means the panel rejected our credentials. Fatal for
	// this server until an operator fixes them.
	ErrAuthFailed = errors.New("panel authentication failed")

	// ErrDuplicateEmail means the panel already has a client with this
	// email. Not retryable: it indicates an idempotency bug or a manual
	// duplicate.
	ErrDuplicateEmail = errors.New("duplicate client email on panel")

	// ErrInboundFull means the target inbound refused another client.
	// Retryable after reselecting a different inbound.
	ErrInboundFull = errors.New("inbound at capacity")

	// ErrRemoteUnavailable covers network errors, timeouts and 5xx
	// replies. Transient, retryable.
	ErrRemoteUnavailable = errors.New("panel unavailable")

	// ErrRemoteRejected covers 4xx replies other than duplicates. The
	// request was malformed; surfaced, not auto-retried.
	ErrRemoteRejected = errors.New("panel rejected request")

	// ErrNotFound is returned by lookups when the panel has no such
	// client.
	ErrNotFound = errors.New("client not found on panel")
)
