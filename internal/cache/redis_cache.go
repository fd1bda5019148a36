package cache

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"

	"kasbonku/backend/internal/domain"
)

type RedisShopStatsCache struct {
	client *redis.Client
}

func NewRedisShopStatsCache(addr string, password string, db int) *RedisShopStatsCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisShopStatsCache{client: client}
}

func (c *RedisShopStatsCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisShopStatsCache) Close() error {
	return c.client.Close()
}

func (c *RedisShopStatsCache) Get(ctx context.Context, key string) (*domain.ShopStatsResponse, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var stats domain.ShopStatsResponse
	if err := json.Unmarshal([]byte(val), &stats); err != nil {
		return nil, false, err
	}
	return &stats, true, nil
}

func (c *RedisShopStatsCache) Set(ctx context.Context, key string, value *domain.ShopStatsResponse, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, payload, ttl).Err()
}

func (c *RedisShopStatsCache) Invalidate(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}
