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
	ErrSecretNotFound = errors.New("channel secret not found")

	secretKeyFmt       = "crm:channel:%d:secret"
	webhookTokenKeyFmt = "crm:webhook_token:%s" // reverse index token → channel ID
)

func secretKey(channelID int64) string    { return fmt.Sprintf(secretKeyFmt, channelID) }
func webhookTokenKey(token string) string { return fmt.Sprintf(webhookTokenKeyFmt, token) }

// SecretRepository persists ChannelSecret rows plus a token reverse index used
// to authenticate webhook callbacks. Secrets are written once at provisioning
// time and deleted only as rollback compensation.
type SecretRepository struct {
	client *RedisClient
	log    *zap.Logger
}

func newSecretRepository(log *zap.Logger, client *RedisClient) *SecretRepository {
	return &SecretRepository{log: log.Named("secrets"), client: client}
}

// Insert persists the secret document and its token reverse index.
func (r *SecretRepository) Insert(ctx context.Context, s *channel.Secret) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, secretKey(s.ChannelID), payload, 0)
	pipe.Set(ctx, webhookTokenKey(s.Token), strconv.FormatInt(s.ChannelID, 10), 0)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("exec: %w", err)
	}
	return nil
}

// Remove deletes the secret document and its token index (rollback compensation).
func (r *SecretRepository) Remove(ctx context.Context, s *channel.Secret) error {
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, secretKey(s.ChannelID))
	pipe.Del(ctx, webhookTokenKey(s.Token))

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("exec: %w", err)
	}
	return nil
}

// GetByChannelID fetches the secret for a channel.
// Returns ErrSecretNotFound if the key does not exist.
func (r *SecretRepository) GetByChannelID(ctx context.Context, channelID int64) (*channel.Secret, error) {
	value, err := r.client.Get(ctx, secretKey(channelID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSecretNotFound
		}
		return nil, fmt.Errorf("get: %w", err)
	}

	var s channel.Secret
	if err := json.Unmarshal(value, &s); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return &s, nil
}

// ChannelIDByToken resolves a webhook-callback token to its channel ID.
// Returns ErrSecretNotFound for unknown tokens.
func (r *SecretRepository) ChannelIDByToken(ctx context.Context, token string) (int64, error) {
	idStr, err := r.client.Get(ctx, webhookTokenKey(token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, ErrSecretNotFound
		}
		return 0, fmt.Errorf("get: %w", err)
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse id %q: %w", idStr, err)
	}
	return id, nil
}
