package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wenwu/saas-platform/provisioning-service/internal/models"
	"github.com/wenwu/saas-platform/provisioning-service/internal/repository"
	"github.com/wenwu/saas-platform/provisioning-service/internal/service"
)

// Read-only store stubs backing the user-API routes. Only the lookups the
// account surface uses are populated; the rest satisfy the interfaces.

type stubProvisionStore struct {
	records []*models.ProvisionRecord
}

func (s *stubProvisionStore) Create(ctx context.Context, p *models.ProvisionRecord) error {
	return nil
}

func (s *stubProvisionStore) GetByID(ctx context.Context, id string) (*models.ProvisionRecord, error) {
	return nil, repository.ErrNotFound
}

func (s *stubProvisionStore) GetByOrderLineAndSeq(ctx context.Context, orderLineID string, seqIndex int) (*models.ProvisionRecord, error) {
	return nil, repository.ErrNotFound
}

func (s *stubProvisionStore) ListByOrderLine(ctx context.Context, orderLineID string) ([]*models.ProvisionRecord, error) {
	var out []*models.ProvisionRecord
	for _, rec := range s.records {
		if rec.OrderLineID == orderLineID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *stubProvisionStore) ClaimForProvisioning(ctx context.Context, id string, startedAt time.Time) (bool, error) {
	return false, nil
}

func (s *stubProvisionStore) MarkCompleted(ctx context.Context, id string, inboundID, remoteUUID string, completedAt time.Time, elapsedMS int64) error {
	return nil
}

func (s *stubProvisionStore) MarkCompletedIdempotent(ctx context.Context, id string, completedAt time.Time) error {
	return nil
}

func (s *stubProvisionStore) MarkFailed(ctx context.Context, id, errMsg, errCode string) error {
	return nil
}

func (s *stubProvisionStore) SetQAOutcome(ctx context.Context, id string, passed bool, notes string, at time.Time) error {
	return nil
}

func (s *stubProvisionStore) Supersede(ctx context.Context, id string) error {
	return nil
}

type stubAccountStore struct {
	byID map[string]*models.ClientAccountMirror
}

func (s *stubAccountStore) Create(ctx context.Context, a *models.ClientAccountMirror) error {
	return nil
}

func (s *stubAccountStore) GetByID(ctx context.Context, id string) (*models.ClientAccountMirror, error) {
	if acc, ok := s.byID[id]; ok {
		return acc, nil
	}
	return nil, repository.ErrNotFound
}

func (s *stubAccountStore) GetActiveByOrderLineAndSeq(ctx context.Context, orderLineID string, seqIndex int) (*models.ClientAccountMirror, error) {
	return nil, repository.ErrNotFound
}

func (s *stubAccountStore) ListActiveByOrderLine(ctx context.Context, orderLineID string) ([]*models.ClientAccountMirror, error) {
	var out []*models.ClientAccountMirror
	for _, acc := range s.byID {
		if acc.OrderLineID == orderLineID && acc.Active {
			out = append(out, acc)
		}
	}
	return out, nil
}

func (s *stubAccountStore) GetByProvisionID(ctx context.Context, provisionID string) (*models.ClientAccountMirror, error) {
	return nil, repository.ErrNotFound
}

func (s *stubAccountStore) UpdateTraffic(ctx context.Context, id string, up, down, total int64) error {
	return nil
}

func (s *stubAccountStore) Deactivate(ctx context.Context, id string) error {
	return nil
}

const userAPISecret = "user-api-jwt-secret"

// newUserAPIRouter wires the user routes exactly as the server does, backed
// by one ready account owned by user-alice.
func newUserAPIRouter(t *testing.T) *gin.Engine {
	t.Helper()

	provisions := &stubProvisionStore{records: []*models.ProvisionRecord{{
		ID:          "prov-1",
		OrderLineID: "line-1",
		UserID:      "user-alice",
		SeqIndex:    1,
		Status:      models.ProvisionStatusCompleted,
		MaxAttempts: 3,
	}}}
	accounts := &stubAccountStore{byID: map[string]*models.ClientAccountMirror{
		"acc-1": {
			ID:          "acc-1",
			ProvisionID: "prov-1",
			OrderLineID: "line-1",
			UserID:      "user-alice",
			SeqIndex:    1,
			Protocol:    models.ProtocolVLESS,
			ServerHost:  "proxy.example.com",
			ServerPort:  443,
			Security:    "tls",
			Secret:      "11111111-1111-1111-1111-111111111111",
			Email:       "line-1-1",
			Enabled:     true,
			Active:      true,
		},
	}}

	handler := NewHandler(nil, service.NewAccountService(provisions, accounts))

	gin.SetMode(gin.TestMode)
	r := gin.New()
	user := r.Group("/api/v1")
	user.Use(JWTAuthMiddleware(userAPISecret))
	{
		user.GET("/my/accounts", handler.GetMyAccounts)
		user.GET("/my/accounts/:id/share-link", handler.GetShareLink)
	}
	return r
}

func signedUserToken(t *testing.T, uid string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"uid": uid,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(userAPISecret))
	require.NoError(t, err)
	return signed
}

func TestUserAPIServesOwnerOnly(t *testing.T) {
	r := newUserAPIRouter(t)

	// The owner reads the share link (it embeds the account secret).
	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/v1/my/accounts/acc-1/share-link", nil)
	req.Header.Set("Authorization", "Bearer "+signedUserToken(t, "user-alice"))
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "vless://11111111-1111-1111-1111-111111111111@")

	// A valid token for another user gets not-found, not the credential.
	w = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/api/v1/my/accounts/acc-1/share-link", nil)
	req.Header.Set("Authorization", "Bearer "+signedUserToken(t, "user-mallory"))
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.NotContains(t, w.Body.String(), "11111111-1111-1111-1111-111111111111")
}

func TestUserAPIAccountListScopedToOwner(t *testing.T) {
	r := newUserAPIRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/v1/my/accounts?order_line_id=line-1", nil)
	req.Header.Set("Authorization", "Bearer "+signedUserToken(t, "user-alice"))
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "acc-1")

	w = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/api/v1/my/accounts?order_line_id=line-1", nil)
	req.Header.Set("Authorization", "Bearer "+signedUserToken(t, "user-mallory"))
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.NotContains(t, w.Body.String(), "acc-1")
}
