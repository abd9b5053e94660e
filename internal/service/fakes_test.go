package service

import (
	"context"
	"errors"
	"sync"

	"github.com/loopcrm/channels-server/internal/domain/channel"
	"github.com/loopcrm/channels-server/internal/domain/provider"
	"github.com/loopcrm/channels-server/internal/gateway"
	"github.com/loopcrm/channels-server/internal/repo"
)

// In-memory store fakes mirroring the Redis repositories' semantics, with
// per-call failure injection for compensation tests.

type fakeChannelStore struct {
	mu       sync.Mutex
	nextID   int64
	rows     map[int64]*channel.Channel
	names    map[string]int64 // tenant/name -> id
	defaults map[string]int64 // tenant -> id

	failUpsertAt     int // 1-based Upsert call number to fail on; 0 = never
	upsertCalls      int
	failClaimDefault bool
	failGetAll       bool
}

func newFakeChannelStore() *fakeChannelStore {
	return &fakeChannelStore{
		rows:     make(map[int64]*channel.Channel),
		names:    make(map[string]int64),
		defaults: make(map[string]int64),
	}
}

func nameKey(tenantID, name string) string { return tenantID + "/" + name }

func (f *fakeChannelStore) GenerateID(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	return f.nextID, nil
}

func (f *fakeChannelStore) ClaimName(ctx context.Context, tenantID, name string, id int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, taken := f.names[nameKey(tenantID, name)]; taken {
		return false, nil
	}
	f.names[nameKey(tenantID, name)] = id
	return true, nil
}

func (f *fakeChannelStore) ReleaseName(ctx context.Context, tenantID, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.names, nameKey(tenantID, name))
	return nil
}

func (f *fakeChannelStore) GetByName(ctx context.Context, tenantID, name string) (*channel.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.names[nameKey(tenantID, name)]
	if !ok {
		return nil, repo.ErrChannelNotFound
	}
	ch, ok := f.rows[id]
	if !ok {
		return nil, repo.ErrChannelNotFound
	}
	cp := *ch
	return &cp, nil
}

func (f *fakeChannelStore) Upsert(ctx context.Context, ch *channel.Channel) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upsertCalls++
	if f.failUpsertAt > 0 && f.upsertCalls == f.failUpsertAt {
		return errors.New("store write failed")
	}
	cp := *ch
	f.rows[ch.ID] = &cp
	return nil
}

func (f *fakeChannelStore) Remove(ctx context.Context, ch *channel.Channel) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rows, ch.ID)
	return nil
}

func (f *fakeChannelStore) CountForTenant(ctx context.Context, tenantID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, ch := range f.rows {
		if ch.TenantID == tenantID {
			n++
		}
	}
	return n, nil
}

func (f *fakeChannelStore) ClaimDefault(ctx context.Context, tenantID string, id int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failClaimDefault {
		return false, errors.New("store read failed")
	}
	if _, taken := f.defaults[tenantID]; taken {
		return false, nil
	}
	f.defaults[tenantID] = id
	return true, nil
}

func (f *fakeChannelStore) ReleaseDefault(ctx context.Context, tenantID string, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.defaults[tenantID] == id {
		delete(f.defaults, tenantID)
	}
	return nil
}

func (f *fakeChannelStore) GetByID(ctx context.Context, id int64) (*channel.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.rows[id]
	if !ok {
		return nil, repo.ErrChannelNotFound
	}
	cp := *ch
	return &cp, nil
}

func (f *fakeChannelStore) GetAllForTenant(ctx context.Context, tenantID string) ([]*channel.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failGetAll {
		return nil, errors.New("store read failed")
	}
	var out []*channel.Channel
	for _, ch := range f.rows {
		if ch.TenantID == tenantID {
			cp := *ch
			out = append(out, &cp)
		}
	}
	return out, nil
}

type fakeSecretStore struct {
	mu     sync.Mutex
	rows   map[int64]*channel.Secret
	tokens map[string]int64

	failInsert bool
}

func newFakeSecretStore() *fakeSecretStore {
	return &fakeSecretStore{
		rows:   make(map[int64]*channel.Secret),
		tokens: make(map[string]int64),
	}
}

func (f *fakeSecretStore) Insert(ctx context.Context, s *channel.Secret) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failInsert {
		return errors.New("store write failed")
	}
	cp := *s
	f.rows[s.ChannelID] = &cp
	f.tokens[s.Token] = s.ChannelID
	return nil
}

func (f *fakeSecretStore) Remove(ctx context.Context, s *channel.Secret) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rows, s.ChannelID)
	delete(f.tokens, s.Token)
	return nil
}

func (f *fakeSecretStore) GetByChannelID(ctx context.Context, channelID int64) (*channel.Secret, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.rows[channelID]
	if !ok {
		return nil, repo.ErrSecretNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSecretStore) ChannelIDByToken(ctx context.Context, token string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.tokens[token]
	if !ok {
		return 0, repo.ErrSecretNotFound
	}
	return id, nil
}

type fakeConfigStore struct {
	rows map[string]*provider.Config // tenant/kind
}

func newFakeConfigStore(cfgs ...*provider.Config) *fakeConfigStore {
	f := &fakeConfigStore{rows: make(map[string]*provider.Config)}
	for _, cfg := range cfgs {
		f.rows[cfg.TenantID+"/"+string(cfg.Kind)] = cfg
	}
	return f
}

func (f *fakeConfigStore) Get(ctx context.Context, tenantID string, kind provider.Kind) (*provider.Config, error) {
	cfg, ok := f.rows[tenantID+"/"+string(kind)]
	if !ok {
		return nil, repo.ErrProviderConfigNotFound
	}
	return cfg, nil
}

func (f *fakeConfigStore) ConfiguredKinds(ctx context.Context, tenantID string) ([]provider.Kind, error) {
	var out []provider.Kind
	for _, k := range provider.Kinds() {
		if _, ok := f.rows[tenantID+"/"+string(k)]; ok {
			out = append(out, k)
		}
	}
	return out, nil
}

type fakeQuotaStore struct {
	limits map[string]int
}

func newFakeQuotaStore() *fakeQuotaStore { return &fakeQuotaStore{limits: make(map[string]int)} }

func (f *fakeQuotaStore) Limit(ctx context.Context, tenantID string) (int, error) {
	if l, ok := f.limits[tenantID]; ok {
		return l, nil
	}
	return repo.DefaultConnectionLimit, nil
}

// stubGateway is a canned provider adapter recording the requests it saw.
type stubGateway struct {
	outcome      *gateway.Outcome
	createErr    error
	subscribeErr error

	// createFn, when set, replaces the canned CreateInstance behavior.
	createFn func(ctx context.Context, req gateway.CreateInstanceRequest) (*gateway.Outcome, error)

	createReq       *gateway.CreateInstanceRequest
	subscribeCalled bool
}

func (s *stubGateway) CreateInstance(ctx context.Context, req gateway.CreateInstanceRequest) (*gateway.Outcome, error) {
	s.createReq = &req
	if s.createFn != nil {
		return s.createFn(ctx, req)
	}
	if s.createErr != nil {
		return nil, s.createErr
	}
	return s.outcome, nil
}

func (s *stubGateway) SubscribeInstance(ctx context.Context, instanceID, instanceToken string) error {
	s.subscribeCalled = true
	return s.subscribeErr
}
