package models

import "time"

// Inbound status constants
const (
	InboundStatusActive   = "active"
	InboundStatusDisabled = "disabled"
)

// InboundDescriptor mirrors a remote listener's identity and capacity.
// current_clients is only ever moved by the guarded claim/release queries in
// the repository, so reads here may be slightly stale but never oversubscribed.
type InboundDescriptor struct {
	ID       string
	RemoteID int // inbound id on the panel
	Protocol Protocol
	Port     int
	Remark   string

	CurrentClients int
	Capacity       int // 0 = unlimited

	Enabled             bool
	ProvisioningEnabled bool
	Status              string
	IsDefault           bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasHeadroom reports whether the descriptor could accept one more client.
// The authoritative check is the atomic claim in the repository; this only
// pre-filters candidates.
func (i *InboundDescriptor) HasHeadroom() bool {
	return i.Capacity == 0 || i.CurrentClients < i.Capacity
}

// Provisionable reports whether the selector may place new clients here.
func (i *InboundDescriptor) Provisionable() bool {
	return i.Enabled && i.ProvisioningEnabled && i.Status == InboundStatusActive && i.HasHeadroom()
}
