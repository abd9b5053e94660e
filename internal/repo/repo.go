package repo

import "go.uber.org/zap"

// Repository aggregates the per-entity repositories over one Redis client.
type Repository struct {
	log    *zap.Logger
	client *RedisClient

	Channels        *ChannelRepository
	Secrets         *SecretRepository
	ProviderConfigs *ProviderConfigRepository
	Quotas          *QuotaRepository
}

// NewRepository wires the repositories against the given Redis address.
func NewRepository(log *zap.Logger, redisAddr string) *Repository {
	log = log.Named("repo")
	client := newRedisClient(redisAddr, 0, log)

	return &Repository{
		log:             log,
		client:          client,
		Channels:        newChannelRepository(log, client),
		Secrets:         newSecretRepository(log, client),
		ProviderConfigs: newProviderConfigRepository(log, client),
		Quotas:          newQuotaRepository(log, client),
	}
}

// Close releases the underlying Redis connection.
func (r *Repository) Close() error { return r.client.Close() }
