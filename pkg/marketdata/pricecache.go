package marketdata

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// PriceCache mirrors mark prices and aggregated external quotes into redis
// so read-heavy consumers (dashboards, websocket feeds) do not hit the
// primary store. Writers treat it as best effort.
type PriceCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewPriceCache(rdb *redis.Client, ttl time.Duration) *PriceCache {
	return &PriceCache{rdb: rdb, ttl: ttl}
}

func markKey(instrumentID string) string {
	return fmt.Sprintf("markprice:%s", instrumentID)
}

func quoteKey(instrumentName string) string {
	return fmt.Sprintf("extprice:%s", instrumentName)
}

func (c *PriceCache) SetMarkPrice(ctx context.Context, instrumentID string, price float64) error {
	return c.rdb.Set(ctx, markKey(instrumentID), price, c.ttl).Err()
}

func (c *PriceCache) GetMarkPrice(ctx context.Context, instrumentID string) (float64, error) {
	return c.rdb.Get(ctx, markKey(instrumentID)).Float64()
}

func (c *PriceCache) SetExternalPrice(ctx context.Context, instrumentName string, price float64) error {
	return c.rdb.Set(ctx, quoteKey(instrumentName), price, c.ttl).Err()
}

func (c *PriceCache) GetExternalPrice(ctx context.Context, instrumentName string) (float64, error) {
	return c.rdb.Get(ctx, quoteKey(instrumentName)).Float64()
}
