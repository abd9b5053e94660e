package repo

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var quotaKeyFmt = "crm:tenant:%s:connection_limit"

func quotaKey(tenantID string) string { return fmt.Sprintf(quotaKeyFmt, tenantID) }

// DefaultConnectionLimit applies to tenants without an explicit quota row.
const DefaultConnectionLimit = 1

// QuotaRepository reads per-tenant connection-count limits. Read-only from
// the provisioning flow's perspective; Set exists for the admin surface.
type QuotaRepository struct {
	client *RedisClient
	log    *zap.Logger
}

func newQuotaRepository(log *zap.Logger, client *RedisClient) *QuotaRepository {
	return &QuotaRepository{log: log.Named("quotas"), client: client}
}

// Limit returns the tenant's connection limit, defaulting to
// DefaultConnectionLimit when no quota row exists. Read errors are surfaced,
// never treated as "allowed".
func (r *QuotaRepository) Limit(ctx context.Context, tenantID string) (int, error) {
	value, err := r.client.Get(ctx, quotaKey(tenantID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return DefaultConnectionLimit, nil
		}
		return 0, fmt.Errorf("get: %w", err)
	}

	limit, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("parse limit %q: %w", value, err)
	}
	return limit, nil
}

// Set writes the tenant's connection limit.
func (r *QuotaRepository) Set(ctx context.Context, tenantID string, limit int) error {
	if err := r.client.Set(ctx, quotaKey(tenantID), strconv.Itoa(limit), 0).Err(); err != nil {
		return fmt.Errorf("set: %w", err)
	}
	return nil
}
