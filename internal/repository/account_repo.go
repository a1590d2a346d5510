package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wenwu/saas-platform/provisioning-service/internal/models"
)

type AccountRepository struct {
	pool *pgxpool.Pool
}

func NewAccountRepository(pool *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{pool: pool}
}

const accountColumns = `id, provision_id, order_line_id, user_id, seq_index,
	protocol, server_host, server_port, security, sni, header_type, flow,
	secret, method, email, traffic_up, traffic_down, traffic_total,
	expire_at, enabled, active, created_at, updated_at`

// Create inserts one mirror row. A partial unique index on
// (order_line_id, seq_index) WHERE active enforces the §3 invariant that an
// order line never carries more active accounts than its purchased quantity.
func (r *AccountRepository) Create(ctx context.Context, a *models.ClientAccountMirror) error {
	query := `
		INSERT INTO client_accounts (
			id, provision_id, order_line_id, user_id, seq_index,
			protocol, server_host, server_port, security, sni, header_type, flow,
			secret, method, email, expire_at, enabled, active
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10, $11, $12,
			$13, $14, $15, $16, $17, $18
		)
	`
	_, err := r.pool.Exec(ctx, query,
		a.ID, a.ProvisionID, a.OrderLineID, a.UserID, a.SeqIndex,
		a.Protocol, a.ServerHost, a.ServerPort, a.Security, a.SNI, a.HeaderType, a.Flow,
		a.Secret, a.Method, a.Email, a.ExpireAt, a.Enabled, a.Active,
	)
	if err != nil {
		return fmt.Errorf("insert client account: %w", err)
	}
	return nil
}

func (r *AccountRepository) GetByID(ctx context.Context, id string) (*models.ClientAccountMirror, error) {
	query := fmt.Sprintf(`SELECT %s FROM client_accounts WHERE id = $1`, accountColumns)
	return r.scanOne(r.pool.QueryRow(ctx, query, id))
}

// GetActiveByOrderLineAndSeq is the idempotency probe: an existing active
// mirror for this unit means the remote account was already created.
func (r *AccountRepository) GetActiveByOrderLineAndSeq(ctx context.Context, orderLineID string, seqIndex int) (*models.ClientAccountMirror, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM client_accounts
		WHERE order_line_id = $1 AND seq_index = $2 AND active = TRUE
		LIMIT 1
	`, accountColumns)
	return r.scanOne(r.pool.QueryRow(ctx, query, orderLineID, seqIndex))
}

func (r *AccountRepository) ListActiveByOrderLine(ctx context.Context, orderLineID string) ([]*models.ClientAccountMirror, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM client_accounts
		WHERE order_line_id = $1 AND active = TRUE
		ORDER BY seq_index ASC
	`, accountColumns)
	rows, err := r.pool.Query(ctx, query, orderLineID)
	if err != nil {
		return nil, fmt.Errorf("list client accounts: %w", err)
	}
	defer rows.Close()
	return r.scanMany(rows)
}

// UpdateTraffic overwrites the counters only; the sync job owns nothing else.
func (r *AccountRepository) UpdateTraffic(ctx context.Context, id string, up, down, total int64) error {
	query := `
		UPDATE client_accounts SET
			traffic_up = $2, traffic_down = $3, traffic_total = $4, updated_at = NOW()
		WHERE id = $1
	`
	_, err := r.pool.Exec(ctx, query, id, up, down, total)
	if err != nil {
		return fmt.Errorf("update account traffic: %w", err)
	}
	return nil
}

// Deactivate clears the active flag on deprovision; the row stays for history.
func (r *AccountRepository) Deactivate(ctx context.Context, id string) error {
	query := `
		UPDATE client_accounts SET
			active = FALSE, enabled = FALSE, updated_at = NOW()
		WHERE id = $1
	`
	_, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("deactivate client account: %w", err)
	}
	return nil
}

func (r *AccountRepository) GetByProvisionID(ctx context.Context, provisionID string) (*models.ClientAccountMirror, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM client_accounts
		WHERE provision_id = $1
		LIMIT 1
	`, accountColumns)
	return r.scanOne(r.pool.QueryRow(ctx, query, provisionID))
}

func (r *AccountRepository) scanOne(row pgx.Row) (*models.ClientAccountMirror, error) {
	a := &models.ClientAccountMirror{}
	err := row.Scan(
		&a.ID, &a.ProvisionID, &a.OrderLineID, &a.UserID, &a.SeqIndex,
		&a.Protocol, &a.ServerHost, &a.ServerPort, &a.Security, &a.SNI, &a.HeaderType, &a.Flow,
		&a.Secret, &a.Method, &a.Email, &a.TrafficUp, &a.TrafficDown, &a.TrafficTotal,
		&a.ExpireAt, &a.Enabled, &a.Active, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan client account: %w", err)
	}
	return a, nil
}

func (r *AccountRepository) scanMany(rows pgx.Rows) ([]*models.ClientAccountMirror, error) {
	var results []*models.ClientAccountMirror
	for rows.Next() {
		a := &models.ClientAccountMirror{}
		err := rows.Scan(
			&a.ID, &a.ProvisionID, &a.OrderLineID, &a.UserID, &a.SeqIndex,
			&a.Protocol, &a.ServerHost, &a.ServerPort, &a.Security, &a.SNI, &a.HeaderType, &a.Flow,
			&a.Secret, &a.Method, &a.Email, &a.TrafficUp, &a.TrafficDown, &a.TrafficTotal,
			&a.ExpireAt, &a.Enabled, &a.Active, &a.CreatedAt, &a.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan client account row: %w", err)
		}
		results = append(results, a)
	}
	return results, rows.Err()
}
