package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wenwu/saas-platform/provisioning-service/internal/models"
)

var ErrNotFound = errors.New("not found")

type ProvisionRepository struct {
	pool *pgxpool.Pool
}

func NewProvisionRepository(pool *pgxpool.Pool) *ProvisionRepository {
	return &ProvisionRepository{pool: pool}
}

const provisionColumns = `id, order_line_id, user_id, seq_index, plan, status,
	attempt_count, max_attempts, inbound_id, remote_uuid, remote_email,
	started_at, completed_at, elapsed_ms, last_error, error_code,
	qa_passed, qa_at, qa_notes, superseded,
	created_at, updated_at`

func (r *ProvisionRepository) Create(ctx context.Context, p *models.ProvisionRecord) error {
	query := `
		INSERT INTO provisions (
			id, order_line_id, user_id, seq_index, plan, status,
			attempt_count, max_attempts, remote_email
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.pool.Exec(ctx, query,
		p.ID, p.OrderLineID, p.UserID, p.SeqIndex, p.Plan, p.Status,
		p.AttemptCount, p.MaxAttempts, p.RemoteEmail,
	)
	if err != nil {
		return fmt.Errorf("insert provision: %w", err)
	}
	return nil
}

func (r *ProvisionRepository) GetByID(ctx context.Context, id string) (*models.ProvisionRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM provisions WHERE id = $1`, provisionColumns)
	return r.scanOne(r.pool.QueryRow(ctx, query, id))
}

// GetByOrderLineAndSeq returns the current (non-superseded) record for one
// unit of an order line.
func (r *ProvisionRepository) GetByOrderLineAndSeq(ctx context.Context, orderLineID string, seqIndex int) (*models.ProvisionRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM provisions
		WHERE order_line_id = $1 AND seq_index = $2 AND superseded = FALSE
		ORDER BY created_at DESC
		LIMIT 1
	`, provisionColumns)
	return r.scanOne(r.pool.QueryRow(ctx, query, orderLineID, seqIndex))
}

func (r *ProvisionRepository) ListByOrderLine(ctx context.Context, orderLineID string) ([]*models.ProvisionRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM provisions
		WHERE order_line_id = $1 AND superseded = FALSE
		ORDER BY seq_index ASC
	`, provisionColumns)
	rows, err := r.pool.Query(ctx, query, orderLineID)
	if err != nil {
		return nil, fmt.Errorf("list provisions: %w", err)
	}
	defer rows.Close()
	return r.scanMany(rows)
}

// ClaimForProvisioning is the exclusivity gate for one unit: the transition
// pending/failed -> provisioning happens as a single compare-and-swap UPDATE,
// so a duplicate-delivered job loses the race instead of double-provisioning.
// Returns false when the record is not claimable (wrong state, attempts
// exhausted, superseded, or claimed by a concurrent worker).
func (r *ProvisionRepository) ClaimForProvisioning(ctx context.Context, id string, startedAt time.Time) (bool, error) {
	query := `
		UPDATE provisions SET
			status = 'provisioning',
			attempt_count = attempt_count + 1,
			started_at = $2,
			updated_at = NOW()
		WHERE id = $1
		  AND status IN ('pending', 'failed')
		  AND attempt_count < max_attempts
		  AND superseded = FALSE
	`
	tag, err := r.pool.Exec(ctx, query, id, startedAt)
	if err != nil {
		return false, fmt.Errorf("claim provision: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkCompleted finalizes a successful attempt and clears any prior error.
// Guarded on status so a completed record can never be re-completed from
// another state by a stale worker.
func (r *ProvisionRepository) MarkCompleted(ctx context.Context, id string, inboundID, remoteUUID string, completedAt time.Time, elapsedMS int64) error {
	query := `
		UPDATE provisions SET
			status = 'completed',
			inbound_id = $2,
			remote_uuid = $3,
			completed_at = $4,
			elapsed_ms = $5,
			last_error = NULL,
			error_code = NULL,
			updated_at = NOW()
		WHERE id = $1 AND status = 'provisioning'
	`
	tag, err := r.pool.Exec(ctx, query, id, inboundID, remoteUUID, completedAt, elapsedMS)
	if err != nil {
		return fmt.Errorf("complete provision: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("complete provision %s: record not in provisioning state", id)
	}
	return nil
}

func (r *ProvisionRepository) MarkFailed(ctx context.Context, id, errMsg, errCode string) error {
	query := `
		UPDATE provisions SET
			status = 'failed',
			last_error = $2,
			error_code = $3,
			updated_at = NOW()
		WHERE id = $1 AND status = 'provisioning'
	`
	tag, err := r.pool.Exec(ctx, query, id, errMsg, errCode)
	if err != nil {
		return fmt.Errorf("fail provision: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("fail provision %s: record not in provisioning state", id)
	}
	return nil
}

// MarkCompletedIdempotent flips a claimed record straight to completed when
// the mirror row already exists (re-delivered job).
func (r *ProvisionRepository) MarkCompletedIdempotent(ctx context.Context, id string, completedAt time.Time) error {
	query := `
		UPDATE provisions SET
			status = 'completed',
			completed_at = COALESCE(completed_at, $2),
			last_error = NULL,
			error_code = NULL,
			updated_at = NOW()
		WHERE id = $1 AND status = 'provisioning'
	`
	_, err := r.pool.Exec(ctx, query, id, completedAt)
	if err != nil {
		return fmt.Errorf("complete provision (idempotent): %w", err)
	}
	return nil
}

func (r *ProvisionRepository) SetQAOutcome(ctx context.Context, id string, passed bool, notes string, at time.Time) error {
	query := `
		UPDATE provisions SET
			qa_passed = $2, qa_at = $3, qa_notes = $4, updated_at = NOW()
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query, id, passed, at, notes)
	if err != nil {
		return fmt.Errorf("set qa outcome: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return ErrNotFound
	}
	return nil
}

// Supersede retires a record (deprovision or retry-as-new). Records are never
// deleted.
func (r *ProvisionRepository) Supersede(ctx context.Context, id string) error {
	query := `UPDATE provisions SET superseded = TRUE, updated_at = NOW() WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("supersede provision: %w", err)
	}
	return nil
}

func (r *ProvisionRepository) scanOne(row pgx.Row) (*models.ProvisionRecord, error) {
	p := &models.ProvisionRecord{}
	err := row.Scan(
		&p.ID, &p.OrderLineID, &p.UserID, &p.SeqIndex, &p.Plan, &p.Status,
		&p.AttemptCount, &p.MaxAttempts, &p.InboundID, &p.RemoteUUID, &p.RemoteEmail,
		&p.StartedAt, &p.CompletedAt, &p.ElapsedMS, &p.LastError, &p.ErrorCode,
		&p.QAPassed, &p.QAAt, &p.QANotes, &p.Superseded,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan provision: %w", err)
	}
	return p, nil
}

func (r *ProvisionRepository) scanMany(rows pgx.Rows) ([]*models.ProvisionRecord, error) {
	var results []*models.ProvisionRecord
	for rows.Next() {
		p := &models.ProvisionRecord{}
		err := rows.Scan(
			&p.ID, &p.OrderLineID, &p.UserID, &p.SeqIndex, &p.Plan, &p.Status,
			&p.AttemptCount, &p.MaxAttempts, &p.InboundID, &p.RemoteUUID, &p.RemoteEmail,
			&p.StartedAt, &p.CompletedAt, &p.ElapsedMS, &p.LastError, &p.ErrorCode,
			&p.QAPassed, &p.QAAt, &p.QANotes, &p.Superseded,
			&p.CreatedAt, &p.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan provision row: %w", err)
		}
		results = append(results, p)
	}
	return results, rows.Err()
}
