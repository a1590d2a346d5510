package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wenwu/saas-platform/provisioning-service/internal/models"
)

type InboundRepository struct {
	pool *pgxpool.Pool
}

func NewInboundRepository(pool *pgxpool.Pool) *InboundRepository {
	return &InboundRepository{pool: pool}
}

const inboundColumns = `id, remote_id, protocol, port, remark,
	current_clients, capacity, enabled, provisioning_enabled, status, is_default,
	created_at, updated_at`

func (r *InboundRepository) GetByID(ctx context.Context, id string) (*models.InboundDescriptor, error) {
	query := fmt.Sprintf(`SELECT %s FROM inbounds WHERE id = $1`, inboundColumns)
	return r.scanOne(r.pool.QueryRow(ctx, query, id))
}

// ListProvisionable returns enabled inbounds for one protocol that either
// have no capacity cap or still have headroom, default inbound first, then
// most headroom. Remote id breaks ties so selection is deterministic.
func (r *InboundRepository) ListProvisionable(ctx context.Context, protocol models.Protocol) ([]*models.InboundDescriptor, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM inbounds
		WHERE protocol = $1
		  AND enabled = TRUE
		  AND provisioning_enabled = TRUE
		  AND status = 'active'
		  AND (capacity = 0 OR current_clients < capacity)
		ORDER BY is_default DESC, current_clients ASC, remote_id ASC
	`, inboundColumns)
	rows, err := r.pool.Query(ctx, query, protocol)
	if err != nil {
		return nil, fmt.Errorf("list provisionable inbounds: %w", err)
	}
	defer rows.Close()
	return r.scanMany(rows)
}

// ClaimSlot reserves one client slot with a single guarded UPDATE, so
// concurrent provisions racing for the last slot cannot oversubscribe the
// inbound. Returns false when the inbound is full or not provisionable.
func (r *InboundRepository) ClaimSlot(ctx context.Context, id string) (bool, error) {
	query := `
		UPDATE inbounds SET
			current_clients = current_clients + 1,
			updated_at = NOW()
		WHERE id = $1
		  AND enabled = TRUE
		  AND provisioning_enabled = TRUE
		  AND status = 'active'
		  AND (capacity = 0 OR current_clients < capacity)
	`
	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("claim inbound slot: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ReleaseSlot gives a claimed slot back after a failed create or a
// deprovision. Floored at zero.
func (r *InboundRepository) ReleaseSlot(ctx context.Context, id string) error {
	query := `
		UPDATE inbounds SET
			current_clients = GREATEST(current_clients - 1, 0),
			updated_at = NOW()
		WHERE id = $1
	`
	_, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("release inbound slot: %w", err)
	}
	return nil
}

// UpsertFromRemote refreshes the local mirror of one panel inbound. Capacity
// policy fields (capacity, provisioning_enabled, is_default) are operator
// owned and left untouched on update.
func (r *InboundRepository) UpsertFromRemote(ctx context.Context, remote *models.InboundDescriptor) error {
	if remote.ID == "" {
		remote.ID = uuid.New().String()
	}
	query := `
		INSERT INTO inbounds (
			id, remote_id, protocol, port, remark, enabled, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (remote_id) DO UPDATE SET
			protocol = EXCLUDED.protocol,
			port = EXCLUDED.port,
			remark = EXCLUDED.remark,
			enabled = EXCLUDED.enabled,
			status = EXCLUDED.status,
			updated_at = NOW()
	`
	_, err := r.pool.Exec(ctx, query,
		remote.ID, remote.RemoteID, remote.Protocol, remote.Port, remote.Remark,
		remote.Enabled, remote.Status,
	)
	if err != nil {
		return fmt.Errorf("upsert inbound: %w", err)
	}
	return nil
}

func (r *InboundRepository) scanOne(row pgx.Row) (*models.InboundDescriptor, error) {
	i := &models.InboundDescriptor{}
	err := row.Scan(
		&i.ID, &i.RemoteID, &i.Protocol, &i.Port, &i.Remark,
		&i.CurrentClients, &i.Capacity, &i.Enabled, &i.ProvisioningEnabled, &i.Status, &i.IsDefault,
		&i.CreatedAt, &i.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan inbound: %w", err)
	}
	return i, nil
}

func (r *InboundRepository) scanMany(rows pgx.Rows) ([]*models.InboundDescriptor, error) {
	var results []*models.InboundDescriptor
	for rows.Next() {
		i := &models.InboundDescriptor{}
		err := rows.Scan(
			&i.ID, &i.RemoteID, &i.Protocol, &i.Port, &i.Remark,
			&i.CurrentClients, &i.Capacity, &i.Enabled, &i.ProvisioningEnabled, &i.Status, &i.IsDefault,
			&i.CreatedAt, &i.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan inbound row: %w", err)
		}
		results = append(results, i)
	}
	return results, rows.Err()
}
