package stocks

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

const quoteTTL = time.Minute

// Cache is an optional Redis quote cache in front of the catalog. Cache
// misses and Redis failures both fall through to the database, so a
// missing or dead Redis only costs latency, never correctness.
type Cache struct {
	rdb *redis.Client
}

// NewCache connects to Redis at the given address. An empty address
// disables caching.
func NewCache(addr string) (*Cache, error) {
	if addr == "" {
		return nil, nil
	}

	rdb := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Cache{rdb: rdb}, nil
}

func quoteKey(symbol string) string {
	return fmt.Sprintf("stock:%s:price", strings.ToUpper(symbol))
}

// GetQuote returns the cached price for a symbol, or false on a miss.
func (c *Cache) GetQuote(ctx context.Context, symbol string) (decimal.Decimal, bool) {
	if c == nil {
		return decimal.Zero, false
	}

	val, err := c.rdb.Get(ctx, quoteKey(symbol)).Result()
	if err != nil {
		return decimal.Zero, false
	}

	price, err := decimal.NewFromString(val)
	if err != nil {
		log.Warn().Str("symbol", symbol).Str("value", val).Msg("discarding unparseable cached quote")
		return decimal.Zero, false
	}

	return price, true
}

// SetQuote stores a price with a short TTL.
func (c *Cache) SetQuote(ctx context.Context, symbol string, price decimal.Decimal) {
	if c == nil {
		return
	}
	if err := c.rdb.Set(ctx, quoteKey(symbol), price.String(), quoteTTL).Err(); err != nil {
		log.Warn().Err(err).Str("symbol", symbol).Msg("failed to cache quote")
	}
}

// Invalidate drops a cached quote after a price update.
func (c *Cache) Invalidate(ctx context.Context, symbol string) {
	if c == nil {
		return
	}
	if err := c.rdb.Del(ctx, quoteKey(symbol)).Err(); err != nil {
		log.Warn().Err(err).Str("symbol", symbol).Msg("failed to invalidate quote")
	}
}
