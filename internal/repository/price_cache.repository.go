package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"rebalanceadvisor/internal/logger"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const latestPriceTTL = 15 * time.Minute

// PriceCacheRepository caches latest prices between requests.
type PriceCacheRepository interface {
	GetLatestPrice(ctx context.Context, symbol string) (*decimal.Decimal, error)
	SetLatestPrice(ctx context.Context, symbol string, price decimal.Decimal) error
	Close() error
}

type redisStore interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Close() error
}

type cachedPrice struct {
	Price    decimal.Decimal `json:"price"`
	CachedAt time.Time       `json:"cachedAt"`
}

type priceCacheRepositoryHandler struct {
	Client redisStore
	TTL    time.Duration
}

// NewPriceCacheRepository connects to redis and returns an error when the
// server does not answer a ping.
func NewPriceCacheRepository(ctx context.Context, host, port, password string) (PriceCacheRepository, error) {
	addr := fmt.Sprintf("%s:%s", host, port)
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	logger.FromContext(ctx).Infof("connected to redis at %s", addr)
	return priceCacheRepositoryHandler{
		Client: client,
		TTL:    latestPriceTTL,
	}, nil
}

func latestPriceKey(symbol string) string {
	return "latest_price:" + strings.ToUpper(symbol)
}

// GetLatestPrice returns nil without error on a cache miss.
func (h priceCacheRepositoryHandler) GetLatestPrice(ctx context.Context, symbol string) (*decimal.Decimal, error) {
	val, err := h.Client.Get(ctx, latestPriceKey(symbol)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to read cached price for %s: %w", symbol, err)
	}

	out := cachedPrice{}
	if err := json.Unmarshal([]byte(val), &out); err != nil {
		return nil, fmt.Errorf("failed to decode cached price for %s: %w", symbol, err)
	}

	return &out.Price, nil
}

func (h priceCacheRepositoryHandler) SetLatestPrice(ctx context.Context, symbol string, price decimal.Decimal) error {
	jsonBytes, err := json.Marshal(cachedPrice{
		Price:    price,
		CachedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	if err := h.Client.Set(ctx, latestPriceKey(symbol), jsonBytes, h.TTL).Err(); err != nil {
		return fmt.Errorf("failed to cache price for %s: %w", symbol, err)
	}
	return nil
}

func (h priceCacheRepositoryHandler) Close() error {
	return h.Client.Close()
}
