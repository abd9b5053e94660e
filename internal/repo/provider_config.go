package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/loopcrm/channels-server/internal/domain/provider"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	ErrProviderConfigNotFound = errors.New("provider config not found")

	providerConfigKeyFmt    = "crm:tenant:%s:provider:%s"
	providerConfigNextIDKey = "crm:provider_config:next_id"
)

func providerConfigKey(tenantID string, kind provider.Kind) string {
	return fmt.Sprintf(providerConfigKeyFmt, tenantID, kind)
}

// ProviderConfigRepository persists per-tenant provider configuration rows,
// keyed by (tenant, kind). The provisioning flow treats these rows as
// read-only; Upsert exists for the admin seeding surface.
type ProviderConfigRepository struct {
	client *RedisClient
	log    *zap.Logger
}

func newProviderConfigRepository(log *zap.Logger, client *RedisClient) *ProviderConfigRepository {
	return &ProviderConfigRepository{log: log.Named("provider_configs"), client: client}
}

// Get fetches the config row for (tenant, kind).
// Returns ErrProviderConfigNotFound if no row exists.
func (r *ProviderConfigRepository) Get(ctx context.Context, tenantID string, kind provider.Kind) (*provider.Config, error) {
	value, err := r.client.Get(ctx, providerConfigKey(tenantID, kind)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrProviderConfigNotFound
		}
		return nil, fmt.Errorf("get: %w", err)
	}

	var cfg provider.Config
	if err := json.Unmarshal(value, &cfg); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return &cfg, nil
}

// ConfiguredKinds reports which provider kinds have a row for the tenant.
// Used to build actionable not-configured errors.
func (r *ProviderConfigRepository) ConfiguredKinds(ctx context.Context, tenantID string) ([]provider.Kind, error) {
	kinds := provider.Kinds()
	keys := make([]string, len(kinds))
	for i, k := range kinds {
		keys[i] = providerConfigKey(tenantID, k)
	}

	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("mget: %w", err)
	}

	out := make([]provider.Kind, 0, len(kinds))
	for i, v := range vals {
		if v != nil {
			out = append(out, kinds[i])
		}
	}
	return out, nil
}

// Upsert persists a config row, assigning an ID on first write.
func (r *ProviderConfigRepository) Upsert(ctx context.Context, cfg *provider.Config) error {
	if cfg.ID == 0 {
		id, err := r.client.Incr(ctx, providerConfigNextIDKey).Result()
		if err != nil {
			return fmt.Errorf("incr: %w", err)
		}
		cfg.ID = id
	}

	payload, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	if err := r.client.Set(ctx, providerConfigKey(cfg.TenantID, cfg.Kind), payload, 0).Err(); err != nil {
		return fmt.Errorf("set: %w", err)
	}
	return nil
}
