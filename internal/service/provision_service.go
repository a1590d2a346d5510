package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/wenwu/saas-platform/provisioning-service/internal/client"
	"github.com/wenwu/saas-platform/provisioning-service/internal/config"
	"github.com/wenwu/saas-platform/provisioning-service/internal/models"
	"github.com/wenwu/saas-platform/provisioning-service/internal/repository"
)

// ProvisionService owns the order-to-account state machine. One provision
// record per (order line, seq index) moves pending -> provisioning ->
// completed | failed; failed records are only ever moved again by an explicit
// operator retry, never by a background loop.
type ProvisionService struct {
	cfg        *config.Config
	provisions ProvisionStore
	accounts   AccountStore
	inbounds   InboundStore
	logs       AttemptLog
	gateway    PanelGateway
	selector   *InboundSelector

	// now is swappable so tests control the clock.
	now func() time.Time
}

// NewProvisionService creates a new provision service.
func NewProvisionService(
	cfg *config.Config,
	provisions ProvisionStore,
	accounts AccountStore,
	inbounds InboundStore,
	logs AttemptLog,
	gateway PanelGateway,
) *ProvisionService {
	return &ProvisionService{
		cfg:        cfg,
		provisions: provisions,
		accounts:   accounts,
		inbounds:   inbounds,
		logs:       logs,
		gateway:    gateway,
		selector:   NewInboundSelector(inbounds),
		now:        time.Now,
	}
}

// ProvisionOrderLine fulfills one paid order line: quantity N yields N
// independent units, each tracked by its own record. Re-delivery of the same
// order line is safe; existing records are reused, completed units are left
// alone.
func (s *ProvisionService) ProvisionOrderLine(ctx context.Context, req *models.ProvisionOrderRequest) (*models.ProvisionOrderResponse, error) {
	log.Printf("[Provision] Order line %s: %d unit(s), protocol=%s", req.OrderLineID, req.Quantity, req.Protocol)

	plan, err := planFromRequest(req)
	if err != nil {
		return nil, err
	}

	records := make([]*models.ProvisionRecord, 0, req.Quantity)
	for seq := 1; seq <= req.Quantity; seq++ {
		rec, err := s.ensureRecord(ctx, req, seq, plan)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	if req.Async {
		// Outcomes arrive via the order service's later status polls.
		go s.runUnitsDetached(records)
	} else {
		for i, rec := range records {
			records[i] = s.runUnit(ctx, rec)
		}
	}

	resp := &models.ProvisionOrderResponse{OrderLineID: req.OrderLineID}
	for _, rec := range records {
		resp.Units = append(resp.Units, s.toStatus(rec))
	}
	return resp, nil
}

func (s *ProvisionService) runUnitsDetached(records []*models.ProvisionRecord) {
	ctx := context.Background()
	for _, rec := range records {
		s.runUnit(ctx, rec)
	}
}

// ensureRecord loads or creates the record for one (order line, seq) unit.
// The remote email is fixed at creation time so every later attempt targets
// the same panel identity.
func (s *ProvisionService) ensureRecord(ctx context.Context, req *models.ProvisionOrderRequest, seq int, plan *models.PlanDescriptor) (*models.ProvisionRecord, error) {
	existing, err := s.provisions.GetByOrderLineAndSeq(ctx, req.OrderLineID, seq)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("load provision record: %w", err)
	}

	rec := &models.ProvisionRecord{
		ID:          uuid.New().String(),
		OrderLineID: req.OrderLineID,
		UserID:      req.UserID,
		SeqIndex:    seq,
		Plan:        plan,
		Status:      models.ProvisionStatusPending,
		MaxAttempts: s.cfg.Provision.MaxAttempts,
		RemoteEmail: fmt.Sprintf("%s-%d", req.OrderLineID, seq),
	}
	if err := s.provisions.Create(ctx, rec); err != nil {
		// Concurrent delivery of the same order line: the partial unique
		// index rejects the second insert, so re-read the winner.
		if winner, lookupErr := s.provisions.GetByOrderLineAndSeq(ctx, req.OrderLineID, seq); lookupErr == nil {
			return winner, nil
		}
		return nil, fmt.Errorf("create provision record: %w", err)
	}
	// The contact email is kept on the audit trail so support tooling can
	// reach the buyer without a round trip to the order service.
	s.logs.LogActionWithMetadata(ctx, rec.ID, "created", rec.Status,
		fmt.Sprintf("Unit %d of order line %s queued", seq, req.OrderLineID),
		map[string]interface{}{"user_id": req.UserID, "customer_email": req.CustomerEmail})
	return rec, nil
}

// runUnit executes one attempt for one unit and returns the refreshed record.
// It never returns an error: all outcomes land on the record itself.
func (s *ProvisionService) runUnit(ctx context.Context, rec *models.ProvisionRecord) *models.ProvisionRecord {
	claimed, err := s.provisions.ClaimForProvisioning(ctx, rec.ID, s.now())
	if err != nil {
		log.Printf("[Provision] Claim failed for %s: %v", rec.ID, err)
		return s.refresh(ctx, rec)
	}
	if !claimed {
		// Completed, in flight elsewhere, out of attempts, or superseded.
		// All of those mean: report current state, touch nothing.
		return s.refresh(ctx, rec)
	}

	started := s.now()
	s.logs.LogActionWithMetadata(ctx, rec.ID, "attempt_started", models.ProvisionStatusProvisioning,
		fmt.Sprintf("Attempt %d of %d for %s", rec.AttemptCount+1, rec.MaxAttempts, rec.RemoteEmail),
		map[string]interface{}{"remote_email": rec.RemoteEmail})
	s.attempt(ctx, rec, started)
	return s.refresh(ctx, rec)
}

// attempt runs the claimed attempt to a terminal status.
func (s *ProvisionService) attempt(ctx context.Context, rec *models.ProvisionRecord, started time.Time) {
	// Idempotency probe: an active mirror for this unit means a previous
	// attempt already created the remote account and the job was simply
	// re-delivered. Complete without touching the panel.
	if mirror, err := s.accounts.GetActiveByOrderLineAndSeq(ctx, rec.OrderLineID, rec.SeqIndex); err == nil && mirror != nil {
		if err := s.provisions.MarkCompletedIdempotent(ctx, rec.ID, s.now()); err != nil {
			log.Printf("[Provision] Idempotent completion failed for %s: %v", rec.ID, err)
			return
		}
		s.logs.LogAction(ctx, rec.ID, "completed_idempotent", models.ProvisionStatusCompleted,
			"Active account already exists for this unit, skipped remote create")
		return
	}

	plan := rec.Plan
	if plan == nil {
		s.fail(ctx, rec, nil, "record has no plan snapshot", models.ErrCodeInternal)
		return
	}

	// Advisory duplicate pre-check. A hit here with no local mirror means
	// a human created the email on the panel or a past attempt half
	// landed; either way it needs eyes, not a retry. Lookup failures are
	// ignored so a flaky panel cannot block the real create call.
	if snap, err := s.gateway.GetClientByEmail(ctx, rec.RemoteEmail); err == nil && snap != nil {
		s.fail(ctx, rec, nil, fmt.Sprintf("panel already has a client for %s", rec.RemoteEmail), models.ErrCodeDuplicateEmail)
		return
	}

	spec, secret, err := s.buildClientSpec(rec, plan)
	if err != nil {
		s.fail(ctx, rec, nil, err.Error(), models.ErrCodeInternal)
		return
	}

	exclude := map[string]bool{}
	for try := 0; try < 2; try++ {
		inbound, err := s.selector.Select(ctx, plan, exclude)
		if errors.Is(err, ErrNoCapacity) {
			s.fail(ctx, rec, nil, "no provisionable inbound has free capacity", models.ErrCodeNoCapacity)
			return
		}
		if err != nil {
			s.fail(ctx, rec, nil, err.Error(), models.ErrCodeInternal)
			return
		}

		remoteUUID, err := s.gateway.CreateClient(ctx, inbound.RemoteID, spec)
		if err == nil {
			s.finalize(ctx, rec, plan, inbound, remoteUUID, secret, started)
			return
		}

		switch {
		case errors.Is(err, client.ErrInboundFull):
			// Local counter said there was room but the panel disagreed.
			// Release our claim and try the next inbound once.
			s.releaseSlot(ctx, inbound.ID)
			exclude[inbound.ID] = true
			s.logs.LogAction(ctx, rec.ID, "inbound_full", models.ProvisionStatusProvisioning,
				fmt.Sprintf("Inbound %d refused the client, reselecting", inbound.RemoteID))
			if try == 0 {
				continue
			}
			s.fail(ctx, rec, nil, err.Error(), models.ErrCodeInboundFull)
			return

		case errors.Is(err, client.ErrRemoteUnavailable):
			// The create may have landed before the connection died.
			// Verify before failing so a retry cannot duplicate the
			// account.
			if snap, verifyErr := s.gateway.GetClientByEmail(ctx, rec.RemoteEmail); verifyErr == nil && snap != nil {
				log.Printf("[Provision] Create for %s reported unavailable but landed, completing", rec.RemoteEmail)
				s.finalize(ctx, rec, plan, inbound, remoteUUID, secret, started)
				return
			}
			s.fail(ctx, rec, inbound, err.Error(), models.ErrCodeRemoteUnavailable)
			return

		case errors.Is(err, client.ErrDuplicateEmail):
			s.fail(ctx, rec, inbound, err.Error(), models.ErrCodeDuplicateEmail)
			return
		case errors.Is(err, client.ErrAuthFailed):
			s.fail(ctx, rec, inbound, err.Error(), models.ErrCodeAuthFailed)
			return
		default:
			s.fail(ctx, rec, inbound, err.Error(), models.ErrCodeRemoteRejected)
			return
		}
	}
}

// finalize persists the account mirror and completes the record.
func (s *ProvisionService) finalize(ctx context.Context, rec *models.ProvisionRecord, plan *models.PlanDescriptor, inbound *models.InboundDescriptor, remoteUUID, secret string, started time.Time) {
	now := s.now()
	expireAt := now.AddDate(0, 0, plan.DurationDays)
	if remoteUUID == "" {
		remoteUUID = secret
	}

	method := ""
	if plan.Protocol == models.ProtocolShadowsocks {
		method = plan.SSMethod
		if method == "" {
			method = s.cfg.Provision.DefaultSSMethod
		}
	}

	mirror := &models.ClientAccountMirror{
		ID:           uuid.New().String(),
		ProvisionID:  rec.ID,
		OrderLineID:  rec.OrderLineID,
		UserID:       rec.UserID,
		SeqIndex:     rec.SeqIndex,
		Protocol:     plan.Protocol,
		ServerHost:   plan.ServerHost,
		ServerPort:   plan.ServerPort,
		Security:     plan.Security,
		SNI:          plan.SNI,
		HeaderType:   plan.HeaderType,
		Flow:         plan.Flow,
		Secret:       secret,
		Method:       method,
		Email:        rec.RemoteEmail,
		TrafficTotal: plan.TrafficLimit,
		ExpireAt:     &expireAt,
		Enabled:      true,
		Active:       true,
	}
	if err := s.accounts.Create(ctx, mirror); err != nil {
		// The remote account exists but the mirror write failed. The client
		// still occupies the inbound, so the slot claim stays; releasing it
		// here would undercount until someone reconciles against the panel.
		s.fail(ctx, rec, nil, fmt.Sprintf("persist account mirror: %v", err), models.ErrCodeInternal)
		return
	}

	elapsed := s.now().Sub(started).Milliseconds()
	if err := s.provisions.MarkCompleted(ctx, rec.ID, inbound.ID, remoteUUID, now, elapsed); err != nil {
		log.Printf("[Provision] Mark completed failed for %s: %v", rec.ID, err)
		return
	}
	s.logs.LogActionWithMetadata(ctx, rec.ID, "completed", models.ProvisionStatusCompleted,
		fmt.Sprintf("Account created on inbound %d in %dms", inbound.RemoteID, elapsed),
		map[string]interface{}{"inbound_id": inbound.ID, "elapsed_ms": elapsed})
	log.Printf("[Provision] Unit %s/%d completed on inbound %d (%dms)", rec.OrderLineID, rec.SeqIndex, inbound.RemoteID, elapsed)
}

// fail moves the record to failed and releases the inbound slot if one was
// claimed for this attempt.
func (s *ProvisionService) fail(ctx context.Context, rec *models.ProvisionRecord, inbound *models.InboundDescriptor, msg, code string) {
	if inbound != nil {
		s.releaseSlot(ctx, inbound.ID)
	}
	if err := s.provisions.MarkFailed(ctx, rec.ID, msg, code); err != nil {
		log.Printf("[Provision] Mark failed failed for %s: %v", rec.ID, err)
		return
	}
	s.logs.LogAction(ctx, rec.ID, "attempt_failed", models.ProvisionStatusFailed,
		fmt.Sprintf("[%s] %s", code, msg))
	log.Printf("[Provision] Unit %s/%d failed (%s): %s", rec.OrderLineID, rec.SeqIndex, code, msg)
}

func (s *ProvisionService) releaseSlot(ctx context.Context, inboundID string) {
	if err := s.inbounds.ReleaseSlot(ctx, inboundID); err != nil {
		log.Printf("[Provision] Release slot on %s failed: %v", inboundID, err)
	}
}

// buildClientSpec assembles the panel payload for one new account. The secret
// is generated here, before any remote call, so a transport failure can be
// reconciled without losing the credential.
func (s *ProvisionService) buildClientSpec(rec *models.ProvisionRecord, plan *models.PlanDescriptor) (*client.ClientSpec, string, error) {
	expiry := s.now().AddDate(0, 0, plan.DurationDays).UnixMilli()
	spec := &client.ClientSpec{
		Email:      rec.RemoteEmail,
		LimitIP:    plan.LimitIP,
		TotalGB:    plan.TrafficLimit,
		ExpiryTime: expiry,
		Enable:     true,
	}

	switch plan.Protocol {
	case models.ProtocolVLESS, models.ProtocolVMess:
		secret := uuid.New().String()
		spec.ID = secret
		if plan.Protocol == models.ProtocolVLESS {
			spec.Flow = plan.Flow
		}
		return spec, secret, nil
	case models.ProtocolTrojan:
		secret, err := randomSecret()
		if err != nil {
			return nil, "", err
		}
		spec.Password = secret
		return spec, secret, nil
	case models.ProtocolShadowsocks:
		secret, err := randomSecret()
		if err != nil {
			return nil, "", err
		}
		spec.Password = secret
		spec.Method = plan.SSMethod
		if spec.Method == "" {
			spec.Method = s.cfg.Provision.DefaultSSMethod
		}
		return spec, secret, nil
	default:
		return nil, "", fmt.Errorf("%w: %s", models.ErrUnsupportedProtocol, plan.Protocol)
	}
}

func randomSecret() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Retry runs one more attempt for a failed unit. Retries are always explicit
// and always attributed; completed and exhausted records refuse.
func (s *ProvisionService) Retry(ctx context.Context, provisionID, actor string) (*models.ProvisionStatus, error) {
	rec, err := s.provisions.GetByID(ctx, provisionID)
	if err != nil {
		return nil, err
	}

	switch {
	case rec.Status == models.ProvisionStatusCompleted:
		return nil, fmt.Errorf("provision %s already completed", provisionID)
	case rec.Status == models.ProvisionStatusProvisioning:
		return nil, fmt.Errorf("provision %s has an attempt in flight", provisionID)
	case rec.Superseded:
		return nil, fmt.Errorf("provision %s is superseded", provisionID)
	case !rec.CanRetry():
		return nil, fmt.Errorf("provision %s: %w (%d attempts)", provisionID, ErrAttemptsExhausted, rec.MaxAttempts)
	}

	s.logs.LogActionWithMetadata(ctx, rec.ID, "retry_requested", rec.Status,
		fmt.Sprintf("Retry requested by %s (attempt %d of %d)", actor, rec.AttemptCount+1, rec.MaxAttempts),
		map[string]interface{}{"actor": actor})

	rec = s.runUnit(ctx, rec)
	return s.toStatus(rec), nil
}

// SetQAOutcome records the outcome of a post-provisioning connectivity check.
// Advisory only: a failed check never moves the record out of completed.
func (s *ProvisionService) SetQAOutcome(ctx context.Context, provisionID string, req *models.QARequest) error {
	rec, err := s.provisions.GetByID(ctx, provisionID)
	if err != nil {
		return err
	}
	if rec.Status != models.ProvisionStatusCompleted {
		return fmt.Errorf("provision %s is %s, QA applies to completed units only", provisionID, rec.Status)
	}

	if err := s.provisions.SetQAOutcome(ctx, provisionID, req.Passed, req.Notes, s.now()); err != nil {
		return err
	}
	verdict := "passed"
	if !req.Passed {
		verdict = "failed"
	}
	s.logs.LogActionWithMetadata(ctx, provisionID, "qa_recorded", rec.Status,
		fmt.Sprintf("QA %s by %s", verdict, req.Actor),
		map[string]interface{}{"actor": req.Actor, "passed": req.Passed})
	return nil
}

// Deprovision tears down one completed unit: delete the remote client,
// deactivate the mirror, give the slot back and retire the record. The
// record and mirror rows stay for history.
func (s *ProvisionService) Deprovision(ctx context.Context, req *models.DeprovisionRequest) error {
	rec, err := s.provisions.GetByID(ctx, req.ProvisionID)
	if err != nil {
		return err
	}
	if rec.Superseded {
		// Already torn down; repeating the delete would release the slot a
		// second time.
		return fmt.Errorf("provision %s is already deprovisioned", req.ProvisionID)
	}
	if rec.Status != models.ProvisionStatusCompleted {
		return fmt.Errorf("provision %s is %s, only completed units can be deprovisioned", req.ProvisionID, rec.Status)
	}
	if rec.InboundID == nil || rec.RemoteUUID == nil {
		return fmt.Errorf("provision %s has no remote identity", req.ProvisionID)
	}

	inbound, err := s.inbounds.GetByID(ctx, *rec.InboundID)
	if err != nil {
		return fmt.Errorf("load inbound: %w", err)
	}

	if err := s.gateway.DeleteClient(ctx, inbound.RemoteID, *rec.RemoteUUID); err != nil && !errors.Is(err, client.ErrNotFound) {
		return fmt.Errorf("delete remote client: %w", err)
	}

	if mirror, err := s.accounts.GetByProvisionID(ctx, rec.ID); err == nil && mirror.Active {
		if err := s.accounts.Deactivate(ctx, mirror.ID); err != nil {
			return fmt.Errorf("deactivate account mirror: %w", err)
		}
	}

	s.releaseSlot(ctx, inbound.ID)

	if err := s.provisions.Supersede(ctx, rec.ID); err != nil {
		return err
	}
	s.logs.LogActionWithMetadata(ctx, rec.ID, "deprovisioned", rec.Status,
		fmt.Sprintf("Deprovisioned by %s: %s", req.Actor, req.Reason),
		map[string]interface{}{"actor": req.Actor, "reason": req.Reason})
	log.Printf("[Deprovision] Unit %s/%d deprovisioned", rec.OrderLineID, rec.SeqIndex)
	return nil
}

// GetStatus returns the detailed state of one provision record.
func (s *ProvisionService) GetStatus(ctx context.Context, provisionID string) (*models.ProvisionStatus, error) {
	rec, err := s.provisions.GetByID(ctx, provisionID)
	if err != nil {
		return nil, err
	}
	return s.toStatus(rec), nil
}

// ListOrderLineProvisions returns every unit of one order line, current and
// superseded.
func (s *ProvisionService) ListOrderLineProvisions(ctx context.Context, orderLineID string) ([]*models.ProvisionStatus, error) {
	records, err := s.provisions.ListByOrderLine(ctx, orderLineID)
	if err != nil {
		return nil, err
	}
	statuses := make([]*models.ProvisionStatus, 0, len(records))
	for _, rec := range records {
		statuses = append(statuses, s.toStatus(rec))
	}
	return statuses, nil
}

// ListAttempts returns the audit trail of one provision record.
func (s *ProvisionService) ListAttempts(ctx context.Context, provisionID string, limit int) ([]*models.ProvisionLogEntry, error) {
	if _, err := s.provisions.GetByID(ctx, provisionID); err != nil {
		return nil, err
	}
	return s.logs.ListByProvision(ctx, provisionID, limit)
}

// SyncInbounds refreshes local inbound descriptors from the panel. Operator
// policy fields (capacity, provisioning flag, default) are left untouched.
func (s *ProvisionService) SyncInbounds(ctx context.Context) (int, error) {
	remotes, err := s.gateway.ListInbounds(ctx)
	if err != nil {
		return 0, err
	}

	synced := 0
	for _, remote := range remotes {
		protocol, err := models.ParseProtocol(remote.Protocol)
		if err != nil {
			continue // panel may carry protocols we do not sell
		}
		status := models.InboundStatusActive
		if !remote.Enable {
			status = models.InboundStatusDisabled
		}
		desc := &models.InboundDescriptor{
			RemoteID: remote.ID,
			Protocol: protocol,
			Port:     remote.Port,
			Remark:   remote.Remark,
			Enabled:  remote.Enable,
			Status:   status,
		}
		if err := s.inbounds.UpsertFromRemote(ctx, desc); err != nil {
			log.Printf("[SyncInbounds] Upsert inbound %d failed: %v", remote.ID, err)
			continue
		}
		synced++
	}
	log.Printf("[SyncInbounds] Synced %d of %d inbounds", synced, len(remotes))
	return synced, nil
}

// SyncAccountTraffic refreshes one mirror's traffic counters from the panel.
// Scoped to the owning user; someone else's account id reads as not found.
func (s *ProvisionService) SyncAccountTraffic(ctx context.Context, userID, accountID string) (*models.ClientAccountMirror, error) {
	mirror, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if mirror.UserID != userID {
		return nil, repository.ErrNotFound
	}
	snap, err := s.gateway.GetClientByEmail(ctx, mirror.Email)
	if err != nil {
		return nil, err
	}
	if err := s.accounts.UpdateTraffic(ctx, mirror.ID, snap.Up, snap.Down, snap.Total); err != nil {
		return nil, err
	}
	mirror.TrafficUp = snap.Up
	mirror.TrafficDown = snap.Down
	if snap.Total > 0 {
		mirror.TrafficTotal = snap.Total
	}
	return mirror, nil
}

func (s *ProvisionService) refresh(ctx context.Context, rec *models.ProvisionRecord) *models.ProvisionRecord {
	fresh, err := s.provisions.GetByID(ctx, rec.ID)
	if err != nil {
		log.Printf("[Provision] Refresh failed for %s: %v", rec.ID, err)
		return rec
	}
	return fresh
}

func (s *ProvisionService) toStatus(rec *models.ProvisionRecord) *models.ProvisionStatus {
	retryable := rec.CanRetry() && (rec.ErrorCode == nil || models.RetryableErrorCode(*rec.ErrorCode))
	return &models.ProvisionStatus{
		ProvisionID:  rec.ID,
		OrderLineID:  rec.OrderLineID,
		SeqIndex:     rec.SeqIndex,
		Status:       rec.Status,
		AttemptCount: rec.AttemptCount,
		MaxAttempts:  rec.MaxAttempts,
		RemoteUUID:   rec.RemoteUUID,
		RemoteEmail:  rec.RemoteEmail,
		ErrorCode:    rec.ErrorCode,
		LastError:    rec.LastError,
		Retryable:    retryable,
		QAPassed:     rec.QAPassed,
		ElapsedMS:    rec.ElapsedMS,
		CreatedAt:    rec.CreatedAt.Format(time.RFC3339),
	}
}

// planFromRequest builds the validated plan snapshot from the flat wire form.
func planFromRequest(req *models.ProvisionOrderRequest) (*models.PlanDescriptor, error) {
	plan, err := models.NewPlanDescriptor(req.Protocol, req.TrafficLimit, req.DurationDays, req.ServerHost, req.ServerPort)
	if err != nil {
		return nil, err
	}
	plan.LimitIP = req.LimitIP
	plan.SNI = req.SNI
	plan.Flow = req.Flow
	plan.SSMethod = req.SSMethod
	if req.HeaderType != "" {
		plan.HeaderType = req.HeaderType
	}
	if req.Security != "" {
		plan.Security = req.Security
	}
	if req.PreferredInboundID != "" {
		preferred := req.PreferredInboundID
		plan.PreferredInboundID = &preferred
	}
	return plan, nil
}
