package models

import "time"

// Provision status constants
const (
	ProvisionStatusPending      = "pending"
	ProvisionStatusProvisioning = "provisioning"
	ProvisionStatusCompleted    = "completed"
	ProvisionStatusFailed       = "failed"
)

// Error codes recorded on a failed provision so operator tooling can tell
// "will retry" from "needs a human" without parsing messages.
const (
	ErrCodeRemoteUnavailable = "remote_unavailable" // retryable
	ErrCodeInboundFull       = "inbound_full"       // retryable after reselect
	ErrCodeNoCapacity        = "no_capacity"        // needs new inbound capacity
	ErrCodeDuplicateEmail    = "duplicate_email"    // idempotency bug or manual duplicate
	ErrCodeRemoteRejected    = "remote_rejected"    // malformed request
	ErrCodeAuthFailed        = "auth_failed"        // panel credentials broken
	ErrCodeInternal          = "internal"
)

// RetryableErrorCode reports whether a code may be retried by an operator
// without fixing anything first.
func RetryableErrorCode(code string) bool {
	return code == ErrCodeRemoteUnavailable || code == ErrCodeInboundFull
}

// ProvisionRecord is the lifecycle object the state machine owns. It is
// never deleted; a manual retry-as-new supersedes it with a fresh record.
type ProvisionRecord struct {
	ID          string
	OrderLineID string
	UserID      string
	SeqIndex    int

	// Plan is the purchase-time snapshot, persisted with the record so an
	// explicit retry does not depend on the order service being reachable.
	Plan *PlanDescriptor

	Status       string
	AttemptCount int
	MaxAttempts  int

	// Remote account identity once created
	InboundID   *string
	RemoteUUID  *string
	RemoteEmail string

	StartedAt   *time.Time
	CompletedAt *time.Time
	ElapsedMS   int64

	LastError *string
	ErrorCode *string

	// QA sub-state, advisory only: nil = unset
	QAPassed *bool
	QAAt     *time.Time
	QANotes  string

	Superseded bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// CanRetry reports whether an explicit retry is still allowed.
func (p *ProvisionRecord) CanRetry() bool {
	return p.Status == ProvisionStatusFailed && p.AttemptCount < p.MaxAttempts && !p.Superseded
}

// ProvisionLogEntry is one append-only audit entry for a provision attempt.
type ProvisionLogEntry struct {
	ID          string
	ProvisionID string
	Action      string
	Status      string
	Message     string
	Metadata    map[string]interface{}
	CreatedAt   time.Time
}
