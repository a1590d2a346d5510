package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wenwu/saas-platform/provisioning-service/internal/client"
	"github.com/wenwu/saas-platform/provisioning-service/internal/models"
	"github.com/wenwu/saas-platform/provisioning-service/internal/repository"
)

func TestListOrderLineAccountsStates(t *testing.T) {
	env := newTestEnv(vlessInbound("in-1", 1, 10, true))
	accountSvc := NewAccountService(env.provisions, env.accounts)

	// Unit 1 completes, unit 2 bounces retryably, unit 3 burns out.
	env.gateway.createErrs = []error{
		nil,
		client.ErrRemoteUnavailable,
		client.ErrRemoteUnavailable,
	}

	resp, err := env.svc.ProvisionOrderLine(context.Background(), orderRequest("line-1", 3))
	require.NoError(t, err)

	// Exhaust unit 3's attempts.
	env.gateway.createErrs = []error{client.ErrRemoteUnavailable, client.ErrRemoteUnavailable}
	for i := 0; i < 2; i++ {
		_, err := env.svc.Retry(context.Background(), resp.Units[2].ProvisionID, "ops")
		require.NoError(t, err)
	}

	summaries, err := accountSvc.ListOrderLineAccounts(context.Background(), "user-alice", "line-1")
	require.NoError(t, err)
	require.Len(t, summaries, 3)

	bySeq := map[int]*models.AccountSummary{}
	for _, s := range summaries {
		bySeq[s.SeqIndex] = s
	}

	assert.Equal(t, "ready", bySeq[1].State)
	assert.NotEmpty(t, bySeq[1].AccountID)
	assert.Equal(t, "vless", bySeq[1].Protocol)
	assert.NotEmpty(t, bySeq[1].ExpireAt)

	// One bounce inside the attempt budget stays invisible.
	assert.Equal(t, "processing", bySeq[2].State)
	assert.Empty(t, bySeq[2].AccountID)

	assert.Equal(t, "failed", bySeq[3].State)
	assert.NotEmpty(t, bySeq[3].Message)

	// No internal detail leaks to the customer surface.
	for _, s := range summaries {
		assert.NotContains(t, s.Message, "unavailable")
		assert.NotContains(t, s.Message, "panel")
	}
}

func TestListOrderLineAccountsHidesSuperseded(t *testing.T) {
	env := newTestEnv(vlessInbound("in-1", 1, 10, true))
	accountSvc := NewAccountService(env.provisions, env.accounts)

	resp, err := env.svc.ProvisionOrderLine(context.Background(), orderRequest("line-1", 1))
	require.NoError(t, err)

	require.NoError(t, env.svc.Deprovision(context.Background(), &models.DeprovisionRequest{
		ProvisionID: resp.Units[0].ProvisionID, Reason: "refund", Actor: "ops",
	}))

	summaries, err := accountSvc.ListOrderLineAccounts(context.Background(), "user-alice", "line-1")
	require.NoError(t, err)
	assert.Empty(t, summaries)
}

func TestRenderArtifactFormats(t *testing.T) {
	env := newTestEnv(vlessInbound("in-1", 1, 10, true))
	accountSvc := NewAccountService(env.provisions, env.accounts)

	_, err := env.svc.ProvisionOrderLine(context.Background(), orderRequest("line-1", 1))
	require.NoError(t, err)

	mirror, err := env.accounts.GetActiveByOrderLineAndSeq(context.Background(), "line-1", 1)
	require.NoError(t, err)

	link, err := accountSvc.RenderArtifact(context.Background(), "user-alice", mirror.ID, models.FormatShareLink)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(link.Artifact, "vless://"+mirror.Secret+"@proxy.example.com:443"))
	assert.Equal(t, "share_link", link.Format)

	jsonCfg, err := accountSvc.RenderArtifact(context.Background(), "user-alice", mirror.ID, models.FormatJSON)
	require.NoError(t, err)
	assert.Contains(t, jsonCfg.Artifact, mirror.Secret)

	clash, err := accountSvc.RenderArtifact(context.Background(), "user-alice", mirror.ID, models.FormatClash)
	require.NoError(t, err)
	assert.Contains(t, clash.Artifact, "type: vless")
}

func TestAccountAccessScopedToOwner(t *testing.T) {
	env := newTestEnv(vlessInbound("in-1", 1, 10, true))
	accountSvc := NewAccountService(env.provisions, env.accounts)

	_, err := env.svc.ProvisionOrderLine(context.Background(), orderRequest("line-1", 1))
	require.NoError(t, err)

	mirror, err := env.accounts.GetActiveByOrderLineAndSeq(context.Background(), "line-1", 1)
	require.NoError(t, err)

	// A different authenticated user knows the ids but owns nothing here.
	_, err = accountSvc.ListOrderLineAccounts(context.Background(), "user-mallory", "line-1")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = accountSvc.RenderArtifact(context.Background(), "user-mallory", mirror.ID, models.FormatShareLink)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	// The owner still gets the artifact.
	link, err := accountSvc.RenderArtifact(context.Background(), "user-alice", mirror.ID, models.FormatShareLink)
	require.NoError(t, err)
	assert.Contains(t, link.Artifact, mirror.Secret)
}

func TestRenderArtifactRefusesInactive(t *testing.T) {
	env := newTestEnv(vlessInbound("in-1", 1, 10, true))
	accountSvc := NewAccountService(env.provisions, env.accounts)

	resp, err := env.svc.ProvisionOrderLine(context.Background(), orderRequest("line-1", 1))
	require.NoError(t, err)

	mirror, err := env.accounts.GetActiveByOrderLineAndSeq(context.Background(), "line-1", 1)
	require.NoError(t, err)

	require.NoError(t, env.svc.Deprovision(context.Background(), &models.DeprovisionRequest{
		ProvisionID: resp.Units[0].ProvisionID,
	}))

	_, err = accountSvc.RenderArtifact(context.Background(), "user-alice", mirror.ID, models.FormatShareLink)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no longer active")
}
