package service

import (
	"context"

	"github.com/loopcrm/channels-server/internal/domain/channel"
	"github.com/loopcrm/channels-server/internal/domain/provider"
	"github.com/loopcrm/channels-server/internal/gateway"
)

// Store seams consumed by the services. The Redis repositories under
// internal/repo satisfy them; tests substitute in-memory fakes.

// ChannelStore persists Channel rows and the tenant-scoped claims
// (name uniqueness, default flag) that guard admission.
type ChannelStore interface {
	GenerateID(ctx context.Context) (int64, error)
	ClaimName(ctx context.Context, tenantID, name string, id int64) (bool, error)
	ReleaseName(ctx context.Context, tenantID, name string) error
	GetByName(ctx context.Context, tenantID, name string) (*channel.Channel, error)
	Upsert(ctx context.Context, ch *channel.Channel) error
	Remove(ctx context.Context, ch *channel.Channel) error
	CountForTenant(ctx context.Context, tenantID string) (int64, error)
	ClaimDefault(ctx context.Context, tenantID string, id int64) (bool, error)
	ReleaseDefault(ctx context.Context, tenantID string, id int64) error
	GetByID(ctx context.Context, id int64) (*channel.Channel, error)
	GetAllForTenant(ctx context.Context, tenantID string) ([]*channel.Channel, error)
}

// SecretStore persists ChannelSecret rows and the webhook-token index.
type SecretStore interface {
	Insert(ctx context.Context, s *channel.Secret) error
	Remove(ctx context.Context, s *channel.Secret) error
	GetByChannelID(ctx context.Context, channelID int64) (*channel.Secret, error)
	ChannelIDByToken(ctx context.Context, token string) (int64, error)
}

// ProviderConfigStore reads per-tenant provider configuration rows.
type ProviderConfigStore interface {
	Get(ctx context.Context, tenantID string, kind provider.Kind) (*provider.Config, error)
	ConfiguredKinds(ctx context.Context, tenantID string) ([]provider.Kind, error)
}

// QuotaStore reads per-tenant connection limits.
type QuotaStore interface {
	Limit(ctx context.Context, tenantID string) (int, error)
}

// GatewayFactory builds the provider adapter for a resolved config.
// Injected so tests can substitute a stub adapter.
type GatewayFactory func(cfg *provider.Config) (gateway.Client, error)
