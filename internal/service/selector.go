package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/wenwu/saas-platform/provisioning-service/internal/models"
)

// ErrNoCapacity means no provisionable inbound for the protocol had headroom.
var ErrNoCapacity = errors.New("no inbound capacity available")

// ErrAttemptsExhausted means a failed provision has used all of its attempts
// and needs operator intervention rather than another retry.
var ErrAttemptsExhausted = errors.New("provision attempts exhausted")

// InboundSelector places one new client on an inbound. Preference order:
// the plan's preferred inbound, then the protocol default, then the inbound
// with the most headroom. The returned inbound already holds a claimed slot;
// the caller must release it if the remote create does not go through.
type InboundSelector struct {
	inboundStore InboundStore
}

// NewInboundSelector creates a selector over the given store.
func NewInboundSelector(inboundStore InboundStore) *InboundSelector {
	return &InboundSelector{inboundStore: inboundStore}
}

// Select picks an inbound for the plan and atomically claims one slot on it.
// Inbounds in exclude are skipped, which is how the caller reselects after a
// remote "inbound full" rejection.
func (s *InboundSelector) Select(ctx context.Context, plan *models.PlanDescriptor, exclude map[string]bool) (*models.InboundDescriptor, error) {
	// Preferred inbound first. A preferred inbound that is disabled or
	// full falls through to normal selection instead of failing the unit.
	if plan.PreferredInboundID != nil && !exclude[*plan.PreferredInboundID] {
		preferred, err := s.inboundStore.GetByID(ctx, *plan.PreferredInboundID)
		if err == nil && preferred.Protocol == plan.Protocol && preferred.Provisionable() {
			if ok, err := s.claim(ctx, preferred); err != nil {
				return nil, err
			} else if ok {
				return preferred, nil
			}
		} else if err == nil {
			log.Printf("[Selector] Preferred inbound %s not usable, falling back", *plan.PreferredInboundID)
		}
	}

	// ListProvisionable orders by is_default, then headroom, with a
	// deterministic tie-break, so walking it in order implements the
	// default-then-most-headroom policy.
	candidates, err := s.inboundStore.ListProvisionable(ctx, plan.Protocol)
	if err != nil {
		return nil, fmt.Errorf("list inbounds: %w", err)
	}

	for _, candidate := range candidates {
		if exclude[candidate.ID] {
			continue
		}
		ok, err := s.claim(ctx, candidate)
		if err != nil {
			return nil, err
		}
		if ok {
			return candidate, nil
		}
		// Lost the race for the last slot; keep walking.
	}

	return nil, ErrNoCapacity
}

func (s *InboundSelector) claim(ctx context.Context, inbound *models.InboundDescriptor) (bool, error) {
	ok, err := s.inboundStore.ClaimSlot(ctx, inbound.ID)
	if err != nil {
		return false, fmt.Errorf("claim inbound slot: %w", err)
	}
	return ok, nil
}
