package service

import (
	"context"
	"fmt"
	"time"

	"github.com/wenwu/saas-platform/provisioning-service/internal/models"
	"github.com/wenwu/saas-platform/provisioning-service/internal/repository"
	"github.com/wenwu/saas-platform/provisioning-service/internal/sharelink"
)

// AccountService is the customer-facing read surface. Customers see three
// states (processing, ready, failed) and rendered connection artifacts;
// attempt counts, error codes and panel details stay internal. Every lookup
// is scoped to the authenticated user: another customer's ids read as not
// found, never as forbidden.
type AccountService struct {
	provisions ProvisionStore
	accounts   AccountStore
}

// NewAccountService creates a new account service.
func NewAccountService(provisions ProvisionStore, accounts AccountStore) *AccountService {
	return &AccountService{provisions: provisions, accounts: accounts}
}

// ListOrderLineAccounts summarizes every unit of one order line for the
// purchasing customer.
func (s *AccountService) ListOrderLineAccounts(ctx context.Context, userID, orderLineID string) ([]*models.AccountSummary, error) {
	records, err := s.provisions.ListByOrderLine(ctx, orderLineID)
	if err != nil {
		return nil, err
	}

	mirrors, err := s.accounts.ListActiveByOrderLine(ctx, orderLineID)
	if err != nil {
		return nil, err
	}
	bySeq := make(map[int]*models.ClientAccountMirror, len(mirrors))
	for _, m := range mirrors {
		bySeq[m.SeqIndex] = m
	}

	summaries := make([]*models.AccountSummary, 0, len(records))
	for _, rec := range records {
		if rec.UserID != userID {
			// Someone else's order line: pretend it does not exist.
			return nil, repository.ErrNotFound
		}
		if rec.Superseded {
			continue
		}
		summaries = append(summaries, s.summarize(rec, bySeq[rec.SeqIndex]))
	}
	return summaries, nil
}

func (s *AccountService) summarize(rec *models.ProvisionRecord, mirror *models.ClientAccountMirror) *models.AccountSummary {
	summary := &models.AccountSummary{SeqIndex: rec.SeqIndex}

	switch rec.Status {
	case models.ProvisionStatusCompleted:
		summary.State = "ready"
		if mirror != nil {
			summary.AccountID = mirror.ID
			summary.Protocol = string(mirror.Protocol)
			if mirror.ExpireAt != nil {
				summary.ExpireAt = mirror.ExpireAt.Format(time.RFC3339)
			}
		}
	case models.ProvisionStatusFailed:
		if rec.CanRetry() {
			// Still inside the attempt budget; the customer does not
			// need to know an attempt bounced.
			summary.State = "processing"
			summary.Message = "Your access is being set up."
		} else {
			summary.State = "failed"
			summary.Message = "Setup did not complete. Support has been notified."
		}
	default:
		summary.State = "processing"
		summary.Message = "Your access is being set up."
	}
	return summary
}

// RenderArtifact builds one connection artifact for an account the caller
// owns. The share link doubles as the QR code payload.
func (s *AccountService) RenderArtifact(ctx context.Context, userID, accountID string, format models.OutputFormat) (*models.ConfigArtifactResponse, error) {
	mirror, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if mirror.UserID != userID {
		return nil, repository.ErrNotFound
	}
	if !mirror.Active {
		return nil, fmt.Errorf("account %s is no longer active", accountID)
	}

	artifact, err := sharelink.Build(mirror, format)
	if err != nil {
		return nil, err
	}
	return &models.ConfigArtifactResponse{
		AccountID: mirror.ID,
		Format:    string(format),
		Artifact:  artifact,
	}, nil
}
