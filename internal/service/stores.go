package service

import (
	"context"
	"time"

	"github.com/wenwu/saas-platform/provisioning-service/internal/client"
	"github.com/wenwu/saas-platform/provisioning-service/internal/models"
)

// The service depends on narrow store interfaces rather than the concrete
// pgx repositories so the state machine can be exercised against in-memory
// fakes. The repository types satisfy them as-is.

// ProvisionStore persists provision lifecycle records.
type ProvisionStore interface {
	Create(ctx context.Context, p *models.ProvisionRecord) error
	GetByID(ctx context.Context, id string) (*models.ProvisionRecord, error)
	GetByOrderLineAndSeq(ctx context.Context, orderLineID string, seqIndex int) (*models.ProvisionRecord, error)
	ListByOrderLine(ctx context.Context, orderLineID string) ([]*models.ProvisionRecord, error)
	ClaimForProvisioning(ctx context.Context, id string, startedAt time.Time) (bool, error)
	MarkCompleted(ctx context.Context, id string, inboundID, remoteUUID string, completedAt time.Time, elapsedMS int64) error
	MarkCompletedIdempotent(ctx context.Context, id string, completedAt time.Time) error
	MarkFailed(ctx context.Context, id, errMsg, errCode string) error
	SetQAOutcome(ctx context.Context, id string, passed bool, notes string, at time.Time) error
	Supersede(ctx context.Context, id string) error
}

// AccountStore persists local mirrors of remote panel accounts.
type AccountStore interface {
	Create(ctx context.Context, a *models.ClientAccountMirror) error
	GetByID(ctx context.Context, id string) (*models.ClientAccountMirror, error)
	GetActiveByOrderLineAndSeq(ctx context.Context, orderLineID string, seqIndex int) (*models.ClientAccountMirror, error)
	ListActiveByOrderLine(ctx context.Context, orderLineID string) ([]*models.ClientAccountMirror, error)
	GetByProvisionID(ctx context.Context, provisionID string) (*models.ClientAccountMirror, error)
	UpdateTraffic(ctx context.Context, id string, up, down, total int64) error
	Deactivate(ctx context.Context, id string) error
}

// InboundStore persists inbound descriptors and their capacity counters.
type InboundStore interface {
	GetByID(ctx context.Context, id string) (*models.InboundDescriptor, error)
	ListProvisionable(ctx context.Context, protocol models.Protocol) ([]*models.InboundDescriptor, error)
	ClaimSlot(ctx context.Context, id string) (bool, error)
	ReleaseSlot(ctx context.Context, id string) error
	UpsertFromRemote(ctx context.Context, remote *models.InboundDescriptor) error
}

// AttemptLog records the append-only audit trail of provision attempts.
type AttemptLog interface {
	LogAction(ctx context.Context, provisionID, action, status, message string) error
	LogActionWithMetadata(ctx context.Context, provisionID, action, status, message string, metadata map[string]interface{}) error
	ListByProvision(ctx context.Context, provisionID string, limit int) ([]*models.ProvisionLogEntry, error)
}

// PanelGateway is the remote panel surface the state machine uses.
type PanelGateway interface {
	CreateClient(ctx context.Context, inboundID int, spec *client.ClientSpec) (string, error)
	DeleteClient(ctx context.Context, inboundID int, uuid string) error
	GetClientByEmail(ctx context.Context, email string) (*client.RemoteAccountSnapshot, error)
	ListInbounds(ctx context.Context) ([]*client.RemoteInbound, error)
}
