package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// BalanceCache is a read-through cache for the balance display endpoint.
// Postgres stays the system of record: every successful debit or credit
// deletes the key, and a miss falls back to the database.
type BalanceCache interface {
	Get(ctx context.Context, userID uuid.UUID) (int64, bool)
	Set(ctx context.Context, userID uuid.UUID, balance int64)
	Invalidate(ctx context.Context, userID uuid.UUID)
}

type RedisBalanceCache struct {
	client *redis.Client
	log    *slog.Logger
}

func NewRedisBalanceCache(client *redis.Client, log *slog.Logger) *RedisBalanceCache {
	if log == nil {
		log = slog.Default()
	}
	return &RedisBalanceCache{client: client, log: log}
}

var _ BalanceCache = (*RedisBalanceCache)(nil)

func balanceKey(userID uuid.UUID) string {
	return fmt.Sprintf("balance:%s", userID)
}

func (c *RedisBalanceCache) Get(ctx context.Context, userID uuid.UUID) (int64, bool) {
	val, err := c.client.Get(ctx, balanceKey(userID)).Int64()
	if err != nil {
		return 0, false
	}
	return val, true
}

func (c *RedisBalanceCache) Set(ctx context.Context, userID uuid.UUID, balance int64) {
	if err := c.client.Set(ctx, balanceKey(userID), balance, 0).Err(); err != nil {
		c.log.Warn("balance cache set failed", "user_id", userID, "error", err)
	}
}

func (c *RedisBalanceCache) Invalidate(ctx context.Context, userID uuid.UUID) {
	if err := c.client.Del(ctx, balanceKey(userID)).Err(); err != nil {
		c.log.Warn("balance cache invalidate failed", "user_id", userID, "error", err)
	}
}

// NopBalanceCache always misses. Used when Redis is not configured.
type NopBalanceCache struct{}

func (NopBalanceCache) Get(context.Context, uuid.UUID) (int64, bool) { return 0, false }
func (NopBalanceCache) Set(context.Context, uuid.UUID, int64)        {}
func (NopBalanceCache) Invalidate(context.Context, uuid.UUID)        {}

var _ BalanceCache = NopBalanceCache{}
