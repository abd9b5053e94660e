package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/loopcrm/channels-server/internal/domain/channel"
	"github.com/loopcrm/channels-server/internal/domain/provider"
	"github.com/loopcrm/channels-server/internal/gateway"
	"github.com/loopcrm/channels-server/internal/repo"
	"go.uber.org/zap"
)

// -----------------------------------------------------------------------------
// ProvisionService
// -----------------------------------------------------------------------------
//
// Runtime model
//   • Single process, many concurrent requests.
//   • Admission (quota check, name claim, row insert) for the SAME tenant is
//     serialized via a per-tenant gate; different tenants never contend. The
//     gate is released once the row is inserted — the outbound provider call
//     never runs under it.
//   • Reads (Get/List) are lock-free.
//
// Contract
//   • The Channel row insert is the rollback boundary: every side effect from
//     that point is pushed onto a compensation stack, and any later failure
//     unwinds the stack in reverse before returning the original error.
//   • Rollback failures never mask the primary error; they are logged for
//     operator follow-up (left-over `creating` rows are an expected,
//     monitorable artifact of that failure mode).
//   • The one deliberate exception: if the provider call succeeded but the
//     final row update fails, nothing is unwound — the remote instance exists
//     and deleting local bookkeeping would orphan it. The row stays in
//     `creating` for manual reconciliation.
//   • The flow only ever reaches an intermediate state (creating/qr/
//     connected); durable transitions arrive later via webhook callbacks.
type ProvisionService struct {
	log      *zap.Logger
	channels ChannelStore
	secrets  SecretStore
	configs  ProviderConfigStore
	quotas   QuotaStore
	clients  GatewayFactory

	// callbackBaseURL is this platform's public base URL for webhook
	// ingestion; the per-channel token path is appended to it.
	callbackBaseURL string

	// per-tenant gates serializing admission
	gates sync.Map // map[string]*gate

	now      func() time.Time
	newToken func() string
}

// NewProvisionService wires the provisioning orchestrator. All collaborators
// are injected; nothing is read from ambient process state.
func NewProvisionService(log *zap.Logger, channels ChannelStore, secrets SecretStore, configs ProviderConfigStore, quotas QuotaStore, clients GatewayFactory, callbackBaseURL string) *ProvisionService {
	return &ProvisionService{
		log:             log.Named("provision_service"),
		channels:        channels,
		secrets:         secrets,
		configs:         configs,
		quotas:          quotas,
		clients:         clients,
		callbackBaseURL: strings.TrimRight(callbackBaseURL, "/"),
		now:             time.Now,
		newToken:        func() string { return strings.ReplaceAll(uuid.NewString(), "-", "") },
	}
}

// lock acquires the per-tenant gate and returns an unlock func.
func (s *ProvisionService) lock(tenantID string) func() {
	v, _ := s.gates.LoadOrStore(tenantID, newGate())
	g := v.(*gate)
	g.Lock()
	return func() { g.Unlock() }
}

// ProvisionRequest carries one provisioning intent.
type ProvisionRequest struct {
	TenantID       string
	Name           string
	ProviderKind   provider.Kind
	PhoneNumber    *string
	Routing        channel.Routing
	RecoveryWindow channel.RecoveryWindow
	Metadata       json.RawMessage
}

// compensation is one pushed undo step. Steps run in reverse on abort.
type compensation struct {
	name string
	undo func(ctx context.Context) error
}

// rollback unwinds the compensation stack in reverse. Undo failures are
// logged and swallowed; the caller returns the primary error unchanged.
func (s *ProvisionService) rollback(ctx context.Context, tenantID string, stack []compensation) {
	for i := len(stack) - 1; i >= 0; i-- {
		if err := stack[i].undo(ctx); err != nil {
			s.log.Error("rollback step failed; manual cleanup required",
				zap.String("tenant_id", tenantID),
				zap.String("step", stack[i].name),
				zap.Error(err),
			)
		}
	}
}

// Provision drives a channel from request to a valid intermediate state.
//
// Abort points, in order: field validation, provider resolution, quota
// admission, name uniqueness, then the side-effecting steps (row insert,
// secret insert, provider call, final update), each of which pushes its undo
// before the next step runs.
func (s *ProvisionService) Provision(ctx context.Context, req ProvisionRequest) (*channel.Channel, error) {
	if req.ProviderKind == "" {
		req.ProviderKind = provider.KindSelfHosted
	}
	if req.RecoveryWindow == "" {
		req.RecoveryWindow = channel.RecoveryNone
	}

	ch := &channel.Channel{
		TenantID:     req.TenantID,
		Name:         req.Name,
		Status:       channel.StatusCreating,
		ProviderKind: string(req.ProviderKind),
		PhoneNumber:  req.PhoneNumber,
		Metadata:     req.Metadata,
		Routing:      req.Routing,
		HistorySync: channel.HistorySync{
			Window: req.RecoveryWindow,
			Days:   req.RecoveryWindow.Days(),
		},
	}
	if err := ch.ValidateNew(); err != nil {
		return nil, &InvalidRequestError{Reason: err.Error()}
	}
	if !req.ProviderKind.Valid() {
		return nil, &InvalidRequestError{Reason: fmt.Sprintf("unknown provider kind %q", req.ProviderKind)}
	}

	unlock := s.lock(req.TenantID)
	locked := true
	defer func() {
		if locked {
			unlock()
		}
	}()

	// Resolve the provider configuration. All three sub-failures are
	// terminal, user-facing, and happen before any side effect.
	cfg, err := s.resolveConfig(ctx, req.TenantID, req.ProviderKind)
	if err != nil {
		return nil, err
	}
	ch.ProviderConfigID = cfg.ID

	// Quota admission. Read errors surface as infrastructure errors, never
	// as "allowed".
	limit, err := s.quotas.Limit(ctx, req.TenantID)
	if err != nil {
		return nil, fmt.Errorf("read quota: %w", err)
	}
	count, err := s.channels.CountForTenant(ctx, req.TenantID)
	if err != nil {
		return nil, fmt.Errorf("count channels: %w", err)
	}
	if int(count) >= limit {
		return nil, &QuotaExceededError{Current: int(count), Limit: limit}
	}

	// Friendly duplicate pre-check; the HSETNX claim below is authoritative.
	if existing, err := s.channels.GetByName(ctx, req.TenantID, req.Name); err == nil {
		return nil, &DuplicateNameError{Name: req.Name, ExistingID: existing.ID, ExistingStatus: existing.Status}
	} else if !errorsIsNotFound(err) {
		return nil, fmt.Errorf("check name: %w", err)
	}

	id, err := s.channels.GenerateID(ctx)
	if err != nil {
		return nil, fmt.Errorf("generate id: %w", err)
	}
	ch.ID = id

	var stack []compensation

	claimed, err := s.channels.ClaimName(ctx, req.TenantID, req.Name, id)
	if err != nil {
		return nil, fmt.Errorf("claim name: %w", err)
	}
	if !claimed {
		// Lost the race despite the pre-check.
		dup := &DuplicateNameError{Name: req.Name}
		if existing, err := s.channels.GetByName(ctx, req.TenantID, req.Name); err == nil {
			dup.ExistingID = existing.ID
			dup.ExistingStatus = existing.Status
		}
		return nil, dup
	}
	stack = append(stack, compensation{"release name", func(ctx context.Context) error {
		return s.channels.ReleaseName(ctx, req.TenantID, req.Name)
	}})

	// The first channel ever provisioned for a tenant becomes its default.
	isDefault, err := s.channels.ClaimDefault(ctx, req.TenantID, id)
	if err != nil {
		s.rollback(ctx, req.TenantID, stack)
		return nil, fmt.Errorf("claim default: %w", err)
	}
	if isDefault {
		stack = append(stack, compensation{"release default", func(ctx context.Context) error {
			return s.channels.ReleaseDefault(ctx, req.TenantID, id)
		}})
	}
	ch.IsDefault = isDefault

	// Rollback boundary: from here every abort must delete this row.
	ch.CreatedAt = s.now()
	ch.UpdatedAt = ch.CreatedAt
	if err := s.channels.Upsert(ctx, ch); err != nil {
		s.rollback(ctx, req.TenantID, stack)
		return nil, fmt.Errorf("insert channel: %w", err)
	}
	stack = append(stack, compensation{"remove channel", func(ctx context.Context) error {
		return s.channels.Remove(ctx, ch)
	}})

	// Admission is decided: the row counts toward quota and the store-level
	// claims are held, so the gate drops before the secret insert and the
	// provider call. Rollback past this point runs unlocked.
	unlock()
	locked = false

	secret := &channel.Secret{
		ChannelID:  id,
		GatewayURL: cfg.BaseURL,
		Token:      s.newToken(),
		CreatedAt:  s.now(),
	}
	if err := s.secrets.Insert(ctx, secret); err != nil {
		s.rollback(ctx, req.TenantID, stack)
		return nil, fmt.Errorf("insert secret: %w", err)
	}
	stack = append(stack, compensation{"remove secret", func(ctx context.Context) error {
		return s.secrets.Remove(ctx, secret)
	}})

	// Resolution checked tokens, not URLs; completeness differs by kind, so
	// the base URL is validated here, past the rollback boundary.
	if cfg.BaseURL == "" {
		s.rollback(ctx, req.TenantID, stack)
		return nil, &provider.MissingCredentialError{TenantID: req.TenantID, Kind: req.ProviderKind, Field: "base_url"}
	}

	client, err := s.clients(cfg)
	if err != nil {
		s.rollback(ctx, req.TenantID, stack)
		return nil, fmt.Errorf("build provider client: %w", err)
	}

	outcome, err := client.CreateInstance(ctx, gateway.CreateInstanceRequest{
		Name:        req.Name,
		CallbackURL: s.callbackBaseURL + "/api/webhooks/" + secret.Token,
		PhoneNumber: strOrEmpty(req.PhoneNumber),
	})
	if err != nil {
		s.rollback(ctx, req.TenantID, stack)
		return nil, err
	}

	s.applyOutcome(ch, outcome)
	if req.RecoveryWindow != channel.RecoveryNone {
		syncing := channel.SyncStatusSyncing
		startedAt := s.now()
		ch.HistorySync.Status = &syncing
		ch.HistorySync.StartedAt = &startedAt
	}
	ch.UpdatedAt = s.now()

	if err := s.channels.Upsert(ctx, ch); err != nil {
		// The remote instance exists; deleting local bookkeeping would orphan
		// it. Keep the row in `creating` and flag for reconciliation.
		s.log.Error("channel left in creating for manual reconciliation",
			zap.String("tenant_id", req.TenantID),
			zap.Int64("channel_id", id),
			zap.Error(err),
		)
		return nil, fmt.Errorf("update channel after provider create: %w", err)
	}

	// Best-effort callback subscription (SaaS only). Failure does not affect
	// the returned result or the channel state.
	if outcome.RemoteInstanceID != "" && outcome.RemoteInstanceToken != "" {
		if err := client.SubscribeInstance(ctx, outcome.RemoteInstanceID, outcome.RemoteInstanceToken); err != nil {
			s.log.Warn("instance subscription failed",
				zap.String("tenant_id", req.TenantID),
				zap.Int64("channel_id", id),
				zap.Error(err),
			)
		}
	}

	s.log.Info("channel provisioned",
		zap.String("tenant_id", req.TenantID),
		zap.Int64("channel_id", id),
		zap.String("provider_kind", string(req.ProviderKind)),
		zap.String("status", string(ch.Status)),
		zap.Bool("is_default", ch.IsDefault),
	)
	return ch, nil
}

// resolveConfig fetches and checks the (tenant, kind) configuration row.
func (s *ProvisionService) resolveConfig(ctx context.Context, tenantID string, kind provider.Kind) (*provider.Config, error) {
	cfg, err := s.configs.Get(ctx, tenantID, kind)
	if err != nil {
		if !errorsIsNotFound(err) {
			return nil, fmt.Errorf("read provider config: %w", err)
		}
		configured, err := s.configs.ConfiguredKinds(ctx, tenantID)
		if err != nil {
			return nil, fmt.Errorf("list provider configs: %w", err)
		}
		return provider.CheckResolved(tenantID, kind, nil, configured)
	}
	return provider.CheckResolved(tenantID, kind, cfg, nil)
}

// applyOutcome derives the channel's post-creation state from the adapter
// outcome, in priority order: inline QR → already open → stay creating.
func (s *ProvisionService) applyOutcome(ch *channel.Channel, out *gateway.Outcome) {
	ch.Metadata = mergeMetadata(ch.Metadata, out.Metadata)
	if out.RemoteInstanceID != "" {
		remoteID := out.RemoteInstanceID
		ch.RemoteInstanceID = &remoteID
	}

	switch {
	case out.QRPayload != "":
		ch.Status = channel.StatusQR
		qr := out.QRPayload
		ch.QRCode = &qr
	case out.Connected:
		ch.Status = channel.StatusConnected
	}

	// A provider-reported number always wins; a provider-reported absence
	// never clears a manually supplied one.
	if out.PhoneNumber != "" {
		phone := out.PhoneNumber
		ch.PhoneNumber = &phone
	}
}

// GetChannel returns a single channel by ID (read-only).
func (s *ProvisionService) GetChannel(ctx context.Context, id int64) (*channel.Channel, error) {
	ch, err := s.channels.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get: %w", err)
	}
	return ch, nil
}

// ListChannels returns all channels for a tenant (read-only).
func (s *ProvisionService) ListChannels(ctx context.Context, tenantID string) ([]*channel.Channel, error) {
	chs, err := s.channels.GetAllForTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("get all: %w", err)
	}
	return chs, nil
}

// QuotaView is the admission state surfaced to operators.
type QuotaView struct {
	Limit     int `json:"limit"`
	Used      int `json:"used"`
	Remaining int `json:"remaining"`
}

// Quota reports the tenant's connection limit and usage.
func (s *ProvisionService) Quota(ctx context.Context, tenantID string) (QuotaView, error) {
	limit, err := s.quotas.Limit(ctx, tenantID)
	if err != nil {
		return QuotaView{}, fmt.Errorf("read quota: %w", err)
	}
	count, err := s.channels.CountForTenant(ctx, tenantID)
	if err != nil {
		return QuotaView{}, fmt.Errorf("count channels: %w", err)
	}
	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return QuotaView{Limit: limit, Used: int(count), Remaining: remaining}, nil
}

// ---- helpers ----

// errorsIsNotFound matches the repos' not-found sentinels.
func errorsIsNotFound(err error) bool {
	return errors.Is(err, repo.ErrChannelNotFound) || errors.Is(err, repo.ErrProviderConfigNotFound) || errors.Is(err, repo.ErrSecretNotFound)
}

func strOrEmpty(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// mergeMetadata shallow-merges two JSON objects; keys from extra win. If
// either side is not an object, the non-empty side (preferring extra) is
// returned as-is.
func mergeMetadata(base, extra json.RawMessage) json.RawMessage {
	if len(extra) == 0 {
		return base
	}
	if len(base) == 0 {
		return extra
	}

	var baseMap, extraMap map[string]json.RawMessage
	if err := json.Unmarshal(base, &baseMap); err != nil {
		return extra
	}
	if err := json.Unmarshal(extra, &extraMap); err != nil {
		return base
	}
	for k, v := range extraMap {
		baseMap[k] = v
	}
	merged, err := json.Marshal(baseMap)
	if err != nil {
		return extra
	}
	return merged
}
