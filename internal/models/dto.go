package models

// ==================== Internal API DTOs ====================

// ProvisionOrderRequest is sent by the order service once payment for an
// order line is confirmed.
type ProvisionOrderRequest struct {
	OrderLineID string `json:"order_line_id" binding:"required"`
	// UserID is the purchasing customer; everything the user API serves for
	// this order line is scoped to it.
	UserID        string `json:"user_id" binding:"required"`
	Quantity      int    `json:"quantity" binding:"required,min=1"`
	CustomerEmail string `json:"customer_email"`

	// Plan snapshot taken at purchase time
	Protocol           string `json:"protocol" binding:"required"`
	TrafficLimit       int64  `json:"traffic_limit"`
	LimitIP            int    `json:"limit_ip"`
	DurationDays       int    `json:"duration_days" binding:"required"`
	ServerHost         string `json:"server_host" binding:"required"`
	ServerPort         int    `json:"server_port" binding:"required"`
	SNI                string `json:"sni"`
	HeaderType         string `json:"header_type"`
	Security           string `json:"security"`
	Flow               string `json:"flow"`
	SSMethod           string `json:"ss_method"`
	PreferredInboundID string `json:"preferred_inbound_id"`

	// Async makes the call return as soon as records exist; the order
	// service polls for outcomes.
	Async bool `json:"async"`
}

// ProvisionOrderResponse summarizes the per-unit outcome of one order line.
type ProvisionOrderResponse struct {
	OrderLineID string             `json:"order_line_id"`
	Units       []*ProvisionStatus `json:"units"`
}

// ProvisionStatus is the detailed state of one provision record.
type ProvisionStatus struct {
	ProvisionID  string  `json:"provision_id"`
	OrderLineID  string  `json:"order_line_id"`
	SeqIndex     int     `json:"seq_index"`
	Status       string  `json:"status"`
	AttemptCount int     `json:"attempt_count"`
	MaxAttempts  int     `json:"max_attempts"`
	RemoteUUID   *string `json:"remote_uuid,omitempty"`
	RemoteEmail  string  `json:"remote_email,omitempty"`
	ErrorCode    *string `json:"error_code,omitempty"`
	LastError    *string `json:"last_error,omitempty"`
	Retryable    bool    `json:"retryable"`
	QAPassed     *bool   `json:"qa_passed,omitempty"`
	ElapsedMS    int64   `json:"elapsed_ms,omitempty"`
	CreatedAt    string  `json:"created_at"`
}

// RetryRequest triggers one explicit retry of a failed provision.
type RetryRequest struct {
	Actor string `json:"actor"`
}

// QARequest records a manual or automated post-provisioning check.
type QARequest struct {
	Passed bool   `json:"passed"`
	Notes  string `json:"notes"`
	Actor  string `json:"actor"`
}

// DeprovisionRequest tears down a completed provision.
type DeprovisionRequest struct {
	ProvisionID string `json:"provision_id" binding:"required"`
	Reason      string `json:"reason"`
	Actor       string `json:"actor"`
}

// ==================== User API DTOs ====================

// AccountSummary is what the purchasing customer sees: processing / ready /
// failed only, never internal error codes or attempt logs.
type AccountSummary struct {
	AccountID string `json:"account_id,omitempty"`
	SeqIndex  int    `json:"seq_index"`
	State     string `json:"state"` // processing, ready, failed
	Message   string `json:"message,omitempty"`
	Protocol  string `json:"protocol,omitempty"`
	ExpireAt  string `json:"expire_at,omitempty"`
}

// ConfigArtifactResponse carries one rendered connection artifact. The share
// link doubles as the QR payload.
type ConfigArtifactResponse struct {
	AccountID string `json:"account_id"`
	Format    string `json:"format"`
	Artifact  string `json:"artifact"`
}
