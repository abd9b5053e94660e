package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/loopcrm/channels-server/internal/domain/channel"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	ErrChannelNotFound = errors.New("channel not found")

	channelKeyPrefix  = "crm:channel:"
	channelNextIDKey  = "crm:channel:next_id"
	tenantChannelsFmt = "crm:tenant:%s:channels"      // SET of string IDs
	tenantNamesFmt    = "crm:tenant:%s:channel_names" // HASH name → ID; HSETNX is the uniqueness guard
	tenantDefaultFmt  = "crm:tenant:%s:default_channel"
)

func channelKey(id int64) string        { return channelKeyPrefix + strconv.FormatInt(id, 10) }
func tenantChannelsKey(t string) string { return fmt.Sprintf(tenantChannelsFmt, t) }
func tenantNamesKey(t string) string    { return fmt.Sprintf(tenantNamesFmt, t) }
func tenantDefaultKey(t string) string  { return fmt.Sprintf(tenantDefaultFmt, t) }

// ChannelRepository provides Redis-backed persistence for Channel entities.
//
// Uniqueness and default-flag claims are store-level (HSETNX/SETNX) so that
// two racing provisioning requests cannot both win; the in-code pre-checks in
// the service layer exist only to produce friendly errors.
type ChannelRepository struct {
	client *RedisClient
	log    *zap.Logger
}

func newChannelRepository(log *zap.Logger, client *RedisClient) *ChannelRepository {
	return &ChannelRepository{log: log.Named("channels"), client: client}
}

// GenerateID increments and returns the next unique channel ID.
// IDs are monotonic, never recycled, and gap-tolerant (an ID consumed by a
// rolled-back provisioning attempt is simply skipped).
func (r *ChannelRepository) GenerateID(ctx context.Context) (int64, error) {
	id, err := r.client.Incr(ctx, channelNextIDKey).Result()
	if err != nil {
		return 0, fmt.Errorf("incr: %w", err)
	}
	return id, nil
}

// ClaimName atomically claims a channel name for the tenant. Returns false if
// the name is already held by another channel. This is the authoritative
// per-tenant uniqueness guard.
func (r *ChannelRepository) ClaimName(ctx context.Context, tenantID, name string, id int64) (bool, error) {
	ok, err := r.client.HSetNX(ctx, tenantNamesKey(tenantID), name, strconv.FormatInt(id, 10)).Result()
	if err != nil {
		return false, fmt.Errorf("hsetnx: %w", err)
	}
	return ok, nil
}

// ReleaseName releases a previously claimed name (rollback compensation).
func (r *ChannelRepository) ReleaseName(ctx context.Context, tenantID, name string) error {
	if err := r.client.HDel(ctx, tenantNamesKey(tenantID), name).Err(); err != nil {
		return fmt.Errorf("hdel: %w", err)
	}
	return nil
}

// GetByName resolves a tenant's channel by its unique name.
// Returns ErrChannelNotFound if the name is unclaimed.
func (r *ChannelRepository) GetByName(ctx context.Context, tenantID, name string) (*channel.Channel, error) {
	idStr, err := r.client.HGet(ctx, tenantNamesKey(tenantID), name).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrChannelNotFound
		}
		return nil, fmt.Errorf("hget: %w", err)
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse id %q: %w", idStr, err)
	}
	return r.GetByID(ctx, id)
}

// Upsert persists a Channel document and adds its ID to the tenant index.
func (r *ChannelRepository) Upsert(ctx context.Context, ch *channel.Channel) error {
	payload, err := json.Marshal(ch)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, channelKey(ch.ID), payload, 0)
	pipe.SAdd(ctx, tenantChannelsKey(ch.TenantID), strconv.FormatInt(ch.ID, 10))

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("exec: %w", err)
	}
	return nil
}

// Remove deletes a Channel document and its tenant index entry (rollback
// compensation; channels are otherwise never deleted by this subsystem).
func (r *ChannelRepository) Remove(ctx context.Context, ch *channel.Channel) error {
	idStr := strconv.FormatInt(ch.ID, 10)

	pipe := r.client.TxPipeline()
	delRes := pipe.Del(ctx, channelKey(ch.ID))
	sremRes := pipe.SRem(ctx, tenantChannelsKey(ch.TenantID), idStr)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("exec: %w", err)
	}

	if delRes.Val() != sremRes.Val() {
		r.log.Warn("channel remove mismatch",
			zap.String("tenant_id", ch.TenantID),
			zap.String("id", idStr),
			zap.Int64("del_count", delRes.Val()),
			zap.Int64("srem_count", sremRes.Val()),
		)
	}
	return nil
}

// CountForTenant returns the number of channels currently indexed for the tenant.
func (r *ChannelRepository) CountForTenant(ctx context.Context, tenantID string) (int64, error) {
	n, err := r.client.SCard(ctx, tenantChannelsKey(tenantID)).Result()
	if err != nil {
		return 0, fmt.Errorf("scard: %w", err)
	}
	return n, nil
}

// ClaimDefault atomically marks id as the tenant's default channel. Returns
// false if another channel already holds the flag. Exactly one channel per
// tenant may hold it.
func (r *ChannelRepository) ClaimDefault(ctx context.Context, tenantID string, id int64) (bool, error) {
	ok, err := r.client.SetNX(ctx, tenantDefaultKey(tenantID), strconv.FormatInt(id, 10), 0).Result()
	if err != nil {
		return false, fmt.Errorf("setnx: %w", err)
	}
	return ok, nil
}

// ReleaseDefault clears the tenant's default-channel flag iff it is held by id
// (rollback compensation).
func (r *ChannelRepository) ReleaseDefault(ctx context.Context, tenantID string, id int64) error {
	cur, err := r.client.Get(ctx, tenantDefaultKey(tenantID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("get: %w", err)
	}
	if cur != strconv.FormatInt(id, 10) {
		return nil
	}
	if err := r.client.Del(ctx, tenantDefaultKey(tenantID)).Err(); err != nil {
		return fmt.Errorf("del: %w", err)
	}
	return nil
}

// GetByID fetches a channel by its ID.
// Returns ErrChannelNotFound if the key does not exist.
func (r *ChannelRepository) GetByID(ctx context.Context, id int64) (*channel.Channel, error) {
	value, err := r.client.Get(ctx, channelKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrChannelNotFound
		}
		return nil, fmt.Errorf("get: %w", err)
	}

	var ch channel.Channel
	if err := json.Unmarshal(value, &ch); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return &ch, nil
}

// GetAllForTenant returns all channels indexed for the tenant.
//
// Not strongly consistent: SMEMBERS and MGET are two calls, so records created
// or rolled back in between may show transient gaps. Callers should treat the
// result as an eventually consistent snapshot.
func (r *ChannelRepository) GetAllForTenant(ctx context.Context, tenantID string) ([]*channel.Channel, error) {
	ids, err := r.client.SMembers(ctx, tenantChannelsKey(tenantID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("smembers: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = channelKeyPrefix + id
	}
	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("mget: %w", err)
	}

	out := make([]*channel.Channel, 0, len(vals))
	for i, v := range vals {
		if v == nil {
			r.log.Warn("channel missing during MGET", zap.String("key", keys[i]))
			continue
		}
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("key %s: unexpected type (got %T, want string)", keys[i], v)
		}
		var ch channel.Channel
		if err := json.Unmarshal([]byte(s), &ch); err != nil {
			return nil, fmt.Errorf("key %s: decode channel: %w", keys[i], err)
		}
		out = append(out, &ch)
	}
	return out, nil
}
