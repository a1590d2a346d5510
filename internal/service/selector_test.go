package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wenwu/saas-platform/provisioning-service/internal/models"
)

func vlessPlan() *models.PlanDescriptor {
	return &models.PlanDescriptor{
		Protocol:     models.ProtocolVLESS,
		DurationDays: 30,
		ServerHost:   "proxy.example.com",
		ServerPort:   443,
	}
}

func TestSelectorPrefersPlanInbound(t *testing.T) {
	store := newFakeInboundStore(
		vlessInbound("in-default", 1, 10, true),
		vlessInbound("in-preferred", 2, 10, false),
	)
	selector := NewInboundSelector(store)

	plan := vlessPlan()
	preferred := "in-preferred"
	plan.PreferredInboundID = &preferred

	picked, err := selector.Select(context.Background(), plan, nil)
	require.NoError(t, err)
	assert.Equal(t, "in-preferred", picked.ID)

	in, _ := store.GetByID(context.Background(), "in-preferred")
	assert.Equal(t, 1, in.CurrentClients, "selection claims the slot")
}

func TestSelectorFallsBackWhenPreferredUnusable(t *testing.T) {
	full := vlessInbound("in-preferred", 2, 1, false)
	full.CurrentClients = 1
	store := newFakeInboundStore(vlessInbound("in-default", 1, 10, true), full)
	selector := NewInboundSelector(store)

	plan := vlessPlan()
	preferred := "in-preferred"
	plan.PreferredInboundID = &preferred

	picked, err := selector.Select(context.Background(), plan, nil)
	require.NoError(t, err)
	assert.Equal(t, "in-default", picked.ID)
}

func TestSelectorIgnoresPreferredWithWrongProtocol(t *testing.T) {
	trojan := vlessInbound("in-trojan", 2, 10, false)
	trojan.Protocol = models.ProtocolTrojan
	store := newFakeInboundStore(vlessInbound("in-default", 1, 10, true), trojan)
	selector := NewInboundSelector(store)

	plan := vlessPlan()
	preferred := "in-trojan"
	plan.PreferredInboundID = &preferred

	picked, err := selector.Select(context.Background(), plan, nil)
	require.NoError(t, err)
	assert.Equal(t, "in-default", picked.ID)
}

func TestSelectorDefaultBeforeHeadroom(t *testing.T) {
	busy := vlessInbound("in-default", 1, 10, true)
	busy.CurrentClients = 8
	idle := vlessInbound("in-idle", 2, 10, false)
	store := newFakeInboundStore(busy, idle)
	selector := NewInboundSelector(store)

	// The default wins even when another inbound has more headroom.
	picked, err := selector.Select(context.Background(), vlessPlan(), nil)
	require.NoError(t, err)
	assert.Equal(t, "in-default", picked.ID)
}

func TestSelectorMostHeadroomWithoutDefault(t *testing.T) {
	busy := vlessInbound("in-busy", 1, 10, false)
	busy.CurrentClients = 8
	idle := vlessInbound("in-idle", 2, 10, false)
	idle.CurrentClients = 2
	store := newFakeInboundStore(busy, idle)
	selector := NewInboundSelector(store)

	picked, err := selector.Select(context.Background(), vlessPlan(), nil)
	require.NoError(t, err)
	assert.Equal(t, "in-idle", picked.ID)
}

func TestSelectorSkipsExcluded(t *testing.T) {
	store := newFakeInboundStore(
		vlessInbound("in-1", 1, 10, true),
		vlessInbound("in-2", 2, 10, false),
	)
	selector := NewInboundSelector(store)

	picked, err := selector.Select(context.Background(), vlessPlan(), map[string]bool{"in-1": true})
	require.NoError(t, err)
	assert.Equal(t, "in-2", picked.ID)
}

func TestSelectorSkipsDisabledAndFull(t *testing.T) {
	disabled := vlessInbound("in-disabled", 1, 10, true)
	disabled.ProvisioningEnabled = false
	full := vlessInbound("in-full", 2, 1, false)
	full.CurrentClients = 1
	store := newFakeInboundStore(disabled, full)
	selector := NewInboundSelector(store)

	_, err := selector.Select(context.Background(), vlessPlan(), nil)
	assert.ErrorIs(t, err, ErrNoCapacity)
}

func TestSelectorUnlimitedCapacity(t *testing.T) {
	unlimited := vlessInbound("in-1", 1, 0, true)
	unlimited.CurrentClients = 5000
	store := newFakeInboundStore(unlimited)
	selector := NewInboundSelector(store)

	picked, err := selector.Select(context.Background(), vlessPlan(), nil)
	require.NoError(t, err)
	assert.Equal(t, "in-1", picked.ID)
}
