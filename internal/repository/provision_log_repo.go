package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wenwu/saas-platform/provisioning-service/internal/models"
)

// ProvisionLogRepository stores the append-only attempt log. Entries are
// never updated or deleted.
type ProvisionLogRepository struct {
	pool *pgxpool.Pool
}

func NewProvisionLogRepository(pool *pgxpool.Pool) *ProvisionLogRepository {
	return &ProvisionLogRepository{pool: pool}
}

// Append writes one log entry.
func (r *ProvisionLogRepository) Append(ctx context.Context, entry *models.ProvisionLogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	query := `
		INSERT INTO provision_logs (id, provision_id, action, status, message, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.pool.Exec(ctx, query,
		entry.ID, entry.ProvisionID, entry.Action, entry.Status, entry.Message, entry.Metadata,
	)
	if err != nil {
		return fmt.Errorf("insert provision log: %w", err)
	}

	return nil
}

// ListByProvision retrieves the attempt log in chronological order.
func (r *ProvisionLogRepository) ListByProvision(ctx context.Context, provisionID string, limit int) ([]*models.ProvisionLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, provision_id, action, status, message, metadata, created_at
		FROM provision_logs
		WHERE provision_id = $1
		ORDER BY created_at ASC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, provisionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query provision logs: %w", err)
	}
	defer rows.Close()

	var entries []*models.ProvisionLogEntry
	for rows.Next() {
		entry := &models.ProvisionLogEntry{}
		err := rows.Scan(
			&entry.ID, &entry.ProvisionID, &entry.Action, &entry.Status,
			&entry.Message, &entry.Metadata, &entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan provision log: %w", err)
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

// LogAction is a helper to append a plain entry.
func (r *ProvisionLogRepository) LogAction(ctx context.Context, provisionID, action, status, message string) error {
	return r.Append(ctx, &models.ProvisionLogEntry{
		ProvisionID: provisionID,
		Action:      action,
		Status:      status,
		Message:     message,
	})
}

// LogActionWithMetadata is a helper to append an entry with structured data.
func (r *ProvisionLogRepository) LogActionWithMetadata(ctx context.Context, provisionID, action, status, message string, metadata map[string]interface{}) error {
	return r.Append(ctx, &models.ProvisionLogEntry{
		ProvisionID: provisionID,
		Action:      action,
		Status:      status,
		Message:     message,
		Metadata:    metadata,
	})
}
