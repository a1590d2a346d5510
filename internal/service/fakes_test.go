package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wenwu/saas-platform/provisioning-service/internal/client"
	"github.com/wenwu/saas-platform/provisioning-service/internal/models"
	"github.com/wenwu/saas-platform/provisioning-service/internal/repository"
)

// In-memory stores mirroring the repositories' guarded-update semantics, so
// the state machine's claim and capacity behavior is exercised for real.

type fakeProvisionStore struct {
	mu      sync.Mutex
	records map[string]*models.ProvisionRecord
}

func newFakeProvisionStore() *fakeProvisionStore {
	return &fakeProvisionStore{records: map[string]*models.ProvisionRecord{}}
}

func (f *fakeProvisionStore) Create(ctx context.Context, p *models.ProvisionRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.records {
		if existing.OrderLineID == p.OrderLineID && existing.SeqIndex == p.SeqIndex && !existing.Superseded {
			return fmt.Errorf("duplicate key value violates unique constraint")
		}
	}
	cp := *p
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	f.records[p.ID] = &cp
	return nil
}

func (f *fakeProvisionStore) GetByID(ctx context.Context, id string) (*models.ProvisionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (f *fakeProvisionStore) GetByOrderLineAndSeq(ctx context.Context, orderLineID string, seqIndex int) (*models.ProvisionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rec := range f.records {
		if rec.OrderLineID == orderLineID && rec.SeqIndex == seqIndex && !rec.Superseded {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeProvisionStore) ListByOrderLine(ctx context.Context, orderLineID string) ([]*models.ProvisionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.ProvisionRecord
	for _, rec := range f.records {
		if rec.OrderLineID == orderLineID {
			cp := *rec
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeProvisionStore) ClaimForProvisioning(ctx context.Context, id string, startedAt time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok {
		return false, nil
	}
	if rec.Status != models.ProvisionStatusPending && rec.Status != models.ProvisionStatusFailed {
		return false, nil
	}
	if rec.AttemptCount >= rec.MaxAttempts || rec.Superseded {
		return false, nil
	}
	rec.Status = models.ProvisionStatusProvisioning
	rec.AttemptCount++
	rec.StartedAt = &startedAt
	return true, nil
}

func (f *fakeProvisionStore) MarkCompleted(ctx context.Context, id string, inboundID, remoteUUID string, completedAt time.Time, elapsedMS int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok || rec.Status != models.ProvisionStatusProvisioning {
		return fmt.Errorf("complete provision %s: record not in provisioning state", id)
	}
	rec.Status = models.ProvisionStatusCompleted
	rec.InboundID = &inboundID
	rec.RemoteUUID = &remoteUUID
	rec.CompletedAt = &completedAt
	rec.ElapsedMS = elapsedMS
	rec.LastError = nil
	rec.ErrorCode = nil
	return nil
}

func (f *fakeProvisionStore) MarkCompletedIdempotent(ctx context.Context, id string, completedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok || rec.Status != models.ProvisionStatusProvisioning {
		return nil
	}
	rec.Status = models.ProvisionStatusCompleted
	if rec.CompletedAt == nil {
		rec.CompletedAt = &completedAt
	}
	rec.LastError = nil
	rec.ErrorCode = nil
	return nil
}

func (f *fakeProvisionStore) MarkFailed(ctx context.Context, id, errMsg, errCode string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok || rec.Status != models.ProvisionStatusProvisioning {
		return fmt.Errorf("fail provision %s: record not in provisioning state", id)
	}
	rec.Status = models.ProvisionStatusFailed
	rec.LastError = &errMsg
	rec.ErrorCode = &errCode
	return nil
}

func (f *fakeProvisionStore) SetQAOutcome(ctx context.Context, id string, passed bool, notes string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok {
		return repository.ErrNotFound
	}
	rec.QAPassed = &passed
	rec.QANotes = notes
	rec.QAAt = &at
	return nil
}

func (f *fakeProvisionStore) Supersede(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rec, ok := f.records[id]; ok {
		rec.Superseded = true
	}
	return nil
}

type fakeAccountStore struct {
	mu       sync.Mutex
	accounts map[string]*models.ClientAccountMirror

	// createErr makes every Create fail, as a constraint violation would.
	createErr error
}

func newFakeAccountStore() *fakeAccountStore {
	return &fakeAccountStore{accounts: map[string]*models.ClientAccountMirror{}}
}

func (f *fakeAccountStore) Create(ctx context.Context, a *models.ClientAccountMirror) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	for _, existing := range f.accounts {
		if existing.OrderLineID == a.OrderLineID && existing.SeqIndex == a.SeqIndex && existing.Active {
			return fmt.Errorf("duplicate key value violates unique constraint")
		}
	}
	cp := *a
	f.accounts[a.ID] = &cp
	return nil
}

func (f *fakeAccountStore) GetByID(ctx context.Context, id string) (*models.ClientAccountMirror, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	acc, ok := f.accounts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *acc
	return &cp, nil
}

func (f *fakeAccountStore) GetActiveByOrderLineAndSeq(ctx context.Context, orderLineID string, seqIndex int) (*models.ClientAccountMirror, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, acc := range f.accounts {
		if acc.OrderLineID == orderLineID && acc.SeqIndex == seqIndex && acc.Active {
			cp := *acc
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeAccountStore) ListActiveByOrderLine(ctx context.Context, orderLineID string) ([]*models.ClientAccountMirror, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.ClientAccountMirror
	for _, acc := range f.accounts {
		if acc.OrderLineID == orderLineID && acc.Active {
			cp := *acc
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeAccountStore) GetByProvisionID(ctx context.Context, provisionID string) (*models.ClientAccountMirror, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, acc := range f.accounts {
		if acc.ProvisionID == provisionID {
			cp := *acc
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeAccountStore) UpdateTraffic(ctx context.Context, id string, up, down, total int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	acc, ok := f.accounts[id]
	if !ok {
		return repository.ErrNotFound
	}
	acc.TrafficUp = up
	acc.TrafficDown = down
	if total > 0 {
		acc.TrafficTotal = total
	}
	return nil
}

func (f *fakeAccountStore) Deactivate(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	acc, ok := f.accounts[id]
	if !ok {
		return repository.ErrNotFound
	}
	acc.Active = false
	acc.Enabled = false
	return nil
}

type fakeInboundStore struct {
	mu       sync.Mutex
	inbounds map[string]*models.InboundDescriptor
}

func newFakeInboundStore(inbounds ...*models.InboundDescriptor) *fakeInboundStore {
	f := &fakeInboundStore{inbounds: map[string]*models.InboundDescriptor{}}
	for _, in := range inbounds {
		cp := *in
		f.inbounds[in.ID] = &cp
	}
	return f
}

func (f *fakeInboundStore) GetByID(ctx context.Context, id string) (*models.InboundDescriptor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	in, ok := f.inbounds[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *in
	return &cp, nil
}

func (f *fakeInboundStore) ListProvisionable(ctx context.Context, protocol models.Protocol) ([]*models.InboundDescriptor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.InboundDescriptor
	for _, in := range f.inbounds {
		if in.Protocol == protocol && in.Provisionable() {
			cp := *in
			out = append(out, &cp)
		}
	}
	// is_default DESC, current_clients ASC, remote_id ASC
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			a, b := out[i], out[j]
			swap := false
			switch {
			case b.IsDefault != a.IsDefault:
				swap = b.IsDefault
			case a.CurrentClients != b.CurrentClients:
				swap = b.CurrentClients < a.CurrentClients
			default:
				swap = b.RemoteID < a.RemoteID
			}
			if swap {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

func (f *fakeInboundStore) ClaimSlot(ctx context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	in, ok := f.inbounds[id]
	if !ok {
		return false, nil
	}
	if in.Capacity != 0 && in.CurrentClients >= in.Capacity {
		return false, nil
	}
	in.CurrentClients++
	return true, nil
}

func (f *fakeInboundStore) ReleaseSlot(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if in, ok := f.inbounds[id]; ok && in.CurrentClients > 0 {
		in.CurrentClients--
	}
	return nil
}

func (f *fakeInboundStore) UpsertFromRemote(ctx context.Context, remote *models.InboundDescriptor) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, in := range f.inbounds {
		if in.RemoteID == remote.RemoteID {
			in.Protocol = remote.Protocol
			in.Port = remote.Port
			in.Remark = remote.Remark
			in.Enabled = remote.Enabled
			in.Status = remote.Status
			return nil
		}
	}
	cp := *remote
	cp.ID = fmt.Sprintf("inbound-%d", remote.RemoteID)
	f.inbounds[cp.ID] = &cp
	return nil
}

type fakeAttemptLog struct {
	mu      sync.Mutex
	entries []*models.ProvisionLogEntry
}

func (f *fakeAttemptLog) LogAction(ctx context.Context, provisionID, action, status, message string) error {
	return f.LogActionWithMetadata(ctx, provisionID, action, status, message, nil)
}

func (f *fakeAttemptLog) LogActionWithMetadata(ctx context.Context, provisionID, action, status, message string, metadata map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, &models.ProvisionLogEntry{
		ProvisionID: provisionID,
		Action:      action,
		Status:      status,
		Message:     message,
		Metadata:    metadata,
		CreatedAt:   time.Now(),
	})
	return nil
}

func (f *fakeAttemptLog) ListByProvision(ctx context.Context, provisionID string, limit int) ([]*models.ProvisionLogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.ProvisionLogEntry
	for _, e := range f.entries {
		if e.ProvisionID == provisionID {
			out = append(out, e)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeAttemptLog) actions(provisionID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, e := range f.entries {
		if e.ProvisionID == provisionID {
			out = append(out, e.Action)
		}
	}
	return out
}

// fakeGateway scripts panel behavior per CreateClient call.
type fakeGateway struct {
	mu          sync.Mutex
	createErrs  []error // consumed in order; nil entry = success
	createCalls []createCall
	deleteCalls int
	deleteErr   error
	byEmail     map[string]*client.RemoteAccountSnapshot
	inbounds    []*client.RemoteInbound
	lookupErr   error

	// landDespiteErr simulates a create that reaches the panel even though
	// the response is lost in transit.
	landDespiteErr bool
}

type createCall struct {
	inboundID int
	spec      *client.ClientSpec
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{byEmail: map[string]*client.RemoteAccountSnapshot{}}
}

func (f *fakeGateway) CreateClient(ctx context.Context, inboundID int, spec *client.ClientSpec) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls = append(f.createCalls, createCall{inboundID: inboundID, spec: spec})

	var err error
	if len(f.createErrs) > 0 {
		err = f.createErrs[0]
		f.createErrs = f.createErrs[1:]
	}
	if err != nil {
		if f.landDespiteErr {
			f.byEmail[spec.Email] = &client.RemoteAccountSnapshot{Email: spec.Email, Enable: true}
		}
		return "", err
	}

	f.byEmail[spec.Email] = &client.RemoteAccountSnapshot{Email: spec.Email, Enable: true}
	if spec.ID != "" {
		return spec.ID, nil
	}
	return spec.Password, nil
}

func (f *fakeGateway) DeleteClient(ctx context.Context, inboundID int, uuid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls++
	return f.deleteErr
}

func (f *fakeGateway) GetClientByEmail(ctx context.Context, email string) (*client.RemoteAccountSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	snap, ok := f.byEmail[email]
	if !ok {
		return nil, client.ErrNotFound
	}
	return snap, nil
}

func (f *fakeGateway) ListInbounds(ctx context.Context) ([]*client.RemoteInbound, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inbounds, nil
}

func (f *fakeGateway) createCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.createCalls)
}
