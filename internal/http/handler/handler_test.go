package handler

import (
	"context"
	"errors"
	"sync"

	"github.com/loopcrm/channels-server/internal/domain/channel"
	"github.com/loopcrm/channels-server/internal/domain/provider"
	"github.com/loopcrm/channels-server/internal/gateway"
	"github.com/loopcrm/channels-server/internal/repo"
)

// In-memory store fakes backing the handler tests.

type memChannelStore struct {
	mu       sync.Mutex
	nextID   int64
	rows     map[int64]*channel.Channel
	names    map[string]int64
	defaults map[string]int64
}

func newMemChannelStore() *memChannelStore {
	return &memChannelStore{
		rows:     make(map[int64]*channel.Channel),
		names:    make(map[string]int64),
		defaults: make(map[string]int64),
	}
}

func (m *memChannelStore) GenerateID(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	return m.nextID, nil
}

func (m *memChannelStore) ClaimName(ctx context.Context, tenantID, name string, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := tenantID + "/" + name
	if _, taken := m.names[key]; taken {
		return false, nil
	}
	m.names[key] = id
	return true, nil
}

func (m *memChannelStore) ReleaseName(ctx context.Context, tenantID, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.names, tenantID+"/"+name)
	return nil
}

func (m *memChannelStore) GetByName(ctx context.Context, tenantID, name string) (*channel.Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.names[tenantID+"/"+name]
	if !ok {
		return nil, repo.ErrChannelNotFound
	}
	ch, ok := m.rows[id]
	if !ok {
		return nil, repo.ErrChannelNotFound
	}
	cp := *ch
	return &cp, nil
}

func (m *memChannelStore) Upsert(ctx context.Context, ch *channel.Channel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *ch
	m.rows[ch.ID] = &cp
	return nil
}

func (m *memChannelStore) Remove(ctx context.Context, ch *channel.Channel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, ch.ID)
	return nil
}

func (m *memChannelStore) CountForTenant(ctx context.Context, tenantID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, ch := range m.rows {
		if ch.TenantID == tenantID {
			n++
		}
	}
	return n, nil
}

func (m *memChannelStore) ClaimDefault(ctx context.Context, tenantID string, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, taken := m.defaults[tenantID]; taken {
		return false, nil
	}
	m.defaults[tenantID] = id
	return true, nil
}

func (m *memChannelStore) ReleaseDefault(ctx context.Context, tenantID string, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.defaults[tenantID] == id {
		delete(m.defaults, tenantID)
	}
	return nil
}

func (m *memChannelStore) GetByID(ctx context.Context, id int64) (*channel.Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.rows[id]
	if !ok {
		return nil, repo.ErrChannelNotFound
	}
	cp := *ch
	return &cp, nil
}

func (m *memChannelStore) GetAllForTenant(ctx context.Context, tenantID string) ([]*channel.Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*channel.Channel
	for _, ch := range m.rows {
		if ch.TenantID == tenantID {
			cp := *ch
			out = append(out, &cp)
		}
	}
	return out, nil
}

type memSecretStore struct {
	mu     sync.Mutex
	rows   map[int64]*channel.Secret
	tokens map[string]int64
}

func newMemSecretStore() *memSecretStore {
	return &memSecretStore{
		rows:   make(map[int64]*channel.Secret),
		tokens: make(map[string]int64),
	}
}

func (m *memSecretStore) Insert(ctx context.Context, s *channel.Secret) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.rows[s.ChannelID] = &cp
	m.tokens[s.Token] = s.ChannelID
	return nil
}

func (m *memSecretStore) Remove(ctx context.Context, s *channel.Secret) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, s.ChannelID)
	delete(m.tokens, s.Token)
	return nil
}

func (m *memSecretStore) GetByChannelID(ctx context.Context, channelID int64) (*channel.Secret, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.rows[channelID]
	if !ok {
		return nil, repo.ErrSecretNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memSecretStore) ChannelIDByToken(ctx context.Context, token string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.tokens[token]
	if !ok {
		return 0, repo.ErrSecretNotFound
	}
	return id, nil
}

type memConfigStore struct {
	rows map[string]*provider.Config
}

func newMemConfigStore(cfgs ...*provider.Config) *memConfigStore {
	m := &memConfigStore{rows: make(map[string]*provider.Config)}
	for _, cfg := range cfgs {
		m.rows[cfg.TenantID+"/"+string(cfg.Kind)] = cfg
	}
	return m
}

func (m *memConfigStore) Get(ctx context.Context, tenantID string, kind provider.Kind) (*provider.Config, error) {
	cfg, ok := m.rows[tenantID+"/"+string(kind)]
	if !ok {
		return nil, repo.ErrProviderConfigNotFound
	}
	return cfg, nil
}

func (m *memConfigStore) ConfiguredKinds(ctx context.Context, tenantID string) ([]provider.Kind, error) {
	var out []provider.Kind
	for _, k := range provider.Kinds() {
		if _, ok := m.rows[tenantID+"/"+string(k)]; ok {
			out = append(out, k)
		}
	}
	return out, nil
}

type memQuotaStore struct {
	limits map[string]int
}

func newMemQuotaStore() *memQuotaStore { return &memQuotaStore{limits: make(map[string]int)} }

func (m *memQuotaStore) Limit(ctx context.Context, tenantID string) (int, error) {
	if l, ok := m.limits[tenantID]; ok {
		return l, nil
	}
	return repo.DefaultConnectionLimit, nil
}

type stubGatewayClient struct {
	outcome   *gateway.Outcome
	createErr error
}

func (s *stubGatewayClient) CreateInstance(ctx context.Context, req gateway.CreateInstanceRequest) (*gateway.Outcome, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	if s.outcome == nil {
		return nil, errors.New("no canned outcome")
	}
	return s.outcome, nil
}

func (s *stubGatewayClient) SubscribeInstance(ctx context.Context, instanceID, instanceToken string) error {
	return nil
}
