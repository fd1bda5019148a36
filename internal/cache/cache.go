package cache

import (
	"context"
	"time"

	"kasbonku/backend/internal/domain"
)

type ShopStatsCache interface {
	Get(ctx context.Context, key string) (*domain.ShopStatsResponse, bool, error)
	Set(ctx context.Context, key string, value *domain.ShopStatsResponse, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) error
}

type NoopShopStatsCache struct{}

func (NoopShopStatsCache) Get(_ context.Context, _ string) (*domain.ShopStatsResponse, bool, error) {
	return nil, false, nil
}

func (NoopShopStatsCache) Set(_ context.Context, _ string, _ *domain.ShopStatsResponse, _ time.Duration) error {
	return nil
}

func (NoopShopStatsCache) Invalidate(_ context.Context, _ string) error {
	return nil
}
