// Package cache provides Redis-based caching for quotes and position marks,
// with graceful degradation when Redis is unavailable.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"ai-trader-engine/config"
	"ai-trader-engine/internal/marketdata"
)

// ErrCacheMiss is returned when a key is absent or expired
var ErrCacheMiss = errors.New("cache miss")

// Key prefixes for the cache types the engine stores
const (
	prefixQuote = "quote:%s" // symbol
	prefixMark  = "mark:%s"  // position id
)

// QuoteCache caches market quotes and live marks with short TTLs. When Redis
// is unhealthy, reads return ErrCacheMiss and writes are dropped; callers fall
// through to the market data provider.
type QuoteCache struct {
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger

	mu           sync.RWMutex
	healthy      bool
	failureCount int

	maxFailures int
}

// NewQuoteCache connects to Redis and verifies connectivity. A failed initial
// ping returns the cache in degraded mode rather than an error.
func NewQuoteCache(cfg config.RedisConfig, logger zerolog.Logger) (*QuoteCache, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("redis is not enabled in configuration")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ttl := time.Duration(cfg.QuoteTTL) * time.Second
	if ttl <= 0 {
		ttl = 5 * time.Second
	}

	qc := &QuoteCache{
		client:      client,
		ttl:         ttl,
		logger:      logger,
		maxFailures: 3,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Str("address", cfg.Address).Msg("initial Redis connection failed, cache degraded")
		return qc, nil
	}

	qc.healthy = true
	logger.Info().Str("address", cfg.Address).Dur("ttl", ttl).Msg("quote cache connected")
	return qc, nil
}

// IsHealthy reports whether Redis is currently usable
func (qc *QuoteCache) IsHealthy() bool {
	qc.mu.RLock()
	defer qc.mu.RUnlock()
	return qc.healthy
}

func (qc *QuoteCache) recordFailure() {
	qc.mu.Lock()
	defer qc.mu.Unlock()
	qc.failureCount++
	if qc.failureCount >= qc.maxFailures && qc.healthy {
		qc.logger.Warn().Int("failures", qc.failureCount).Msg("quote cache marked unhealthy")
		qc.healthy = false
	}
}

func (qc *QuoteCache) recordSuccess() {
	qc.mu.Lock()
	defer qc.mu.Unlock()
	if !qc.healthy && qc.failureCount > 0 {
		qc.logger.Info().Msg("quote cache recovered")
	}
	qc.failureCount = 0
	qc.healthy = true
}

// GetQuote returns the cached quote for a symbol, or ErrCacheMiss
func (qc *QuoteCache) GetQuote(ctx context.Context, symbol string) (*marketdata.Quote, error) {
	if !qc.IsHealthy() {
		return nil, ErrCacheMiss
	}

	data, err := qc.client.Get(ctx, fmt.Sprintf(prefixQuote, symbol)).Result()
	if errors.Is(err, redis.Nil) {
		qc.recordSuccess()
		return nil, ErrCacheMiss
	}
	if err != nil {
		qc.recordFailure()
		return nil, fmt.Errorf("quote cache get: %w", err)
	}
	qc.recordSuccess()

	var quote marketdata.Quote
	if err := json.Unmarshal([]byte(data), &quote); err != nil {
		return nil, fmt.Errorf("quote cache unmarshal: %w", err)
	}
	return &quote, nil
}

// SetQuote stores a quote under the configured TTL. Failures are logged and
// swallowed; a cache write must never fail a quote path.
func (qc *QuoteCache) SetQuote(ctx context.Context, quote *marketdata.Quote) {
	if !qc.IsHealthy() {
		return
	}

	data, err := json.Marshal(quote)
	if err != nil {
		qc.logger.Error().Err(err).Str("symbol", quote.Symbol).Msg("quote cache marshal failed")
		return
	}

	if err := qc.client.Set(ctx, fmt.Sprintf(prefixQuote, quote.Symbol), data, qc.ttl).Err(); err != nil {
		qc.recordFailure()
		qc.logger.Warn().Err(err).Str("symbol", quote.Symbol).Msg("quote cache set failed")
		return
	}
	qc.recordSuccess()
}

// SetMark stores the latest mark for a position so reconnecting websocket
// clients can resync without waiting for the next tick.
func (qc *QuoteCache) SetMark(ctx context.Context, positionID string, mark float64) {
	if !qc.IsHealthy() {
		return
	}
	key := fmt.Sprintf(prefixMark, positionID)
	if err := qc.client.Set(ctx, key, mark, qc.ttl).Err(); err != nil {
		qc.recordFailure()
		return
	}
	qc.recordSuccess()
}

// GetMark returns the cached mark for a position, or ErrCacheMiss
func (qc *QuoteCache) GetMark(ctx context.Context, positionID string) (float64, error) {
	if !qc.IsHealthy() {
		return 0, ErrCacheMiss
	}
	val, err := qc.client.Get(ctx, fmt.Sprintf(prefixMark, positionID)).Float64()
	if errors.Is(err, redis.Nil) {
		qc.recordSuccess()
		return 0, ErrCacheMiss
	}
	if err != nil {
		qc.recordFailure()
		return 0, fmt.Errorf("mark cache get: %w", err)
	}
	qc.recordSuccess()
	return val, nil
}

// Close releases the Redis connection
func (qc *QuoteCache) Close() error {
	if qc.client != nil {
		return qc.client.Close()
	}
	return nil
}
