package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"rebalanceadvisor/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fakeLatestPrices struct {
	prices map[string]decimal.Decimal
	err    error
	calls  [][]string
}

func (f *fakeLatestPrices) GetLatestPrices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	f.calls = append(f.calls, symbols)
	if f.err != nil {
		return nil, f.err
	}
	out := map[string]decimal.Decimal{}
	for _, s := range symbols {
		if p, ok := f.prices[s]; ok {
			out[s] = p
		}
	}
	return out, nil
}

func TestMarketDataProvider_GetLatestPrices(t *testing.T) {
	ctx := context.Background()

	t.Run("falls through sources and fills the cache", func(t *testing.T) {
		primary := &fakeLatestPrices{err: errors.New("rate limited")}
		secondary := &fakeLatestPrices{prices: map[string]decimal.Decimal{
			"AAPL": decimal.NewFromInt(190),
		}}
		tertiary := &fakeLatestPrices{prices: map[string]decimal.Decimal{
			"BND": decimal.NewFromInt(72),
		}}
		cache := priceCacheRepositoryHandler{Client: newFakeRedis(), TTL: time.Minute}

		provider := NewMarketDataProvider(nil, cache, primary, secondary, tertiary)
		out, err := provider.GetLatestPrices(ctx, []string{"bnd", "AAPL", "MSFT"})
		require.NoError(t, err)
		require.Len(t, out, 2)
		require.True(t, decimal.NewFromInt(190).Equal(out["AAPL"]))
		require.True(t, decimal.NewFromInt(72).Equal(out["BND"]))
		require.Equal(t, [][]string{{"BND", "MSFT"}}, tertiary.calls)

		cached, err := cache.GetLatestPrice(ctx, "AAPL")
		require.NoError(t, err)
		require.True(t, decimal.NewFromInt(190).Equal(*cached))

		// second call is served from the cache
		_, err = provider.GetLatestPrices(ctx, []string{"AAPL"})
		require.NoError(t, err)
		require.Len(t, secondary.calls, 1)
	})

	t.Run("single missing price is unavailable", func(t *testing.T) {
		provider := NewMarketDataProvider(nil, nil, &fakeLatestPrices{})
		_, err := provider.GetLatestPrice(ctx, "AAPL")
		require.True(t, errors.Is(err, domain.ErrPriceUnavailable))
	})
}

type fakeHistory struct {
	series *domain.PriceSeries
	err    error
}

func (f fakeHistory) GetHistory(ctx context.Context, symbol string, r domain.DateRange) (*domain.PriceSeries, error) {
	return f.series, f.err
}

func TestMarketDataProvider_GetHistory(t *testing.T) {
	ctx := context.Background()

	t.Run("no source configured", func(t *testing.T) {
		_, err := NewMarketDataProvider(nil, nil).GetHistory(ctx, "AAPL", domain.DateRange{})
		require.True(t, errors.Is(err, domain.ErrPriceUnavailable))
	})

	t.Run("empty series is unavailable", func(t *testing.T) {
		provider := NewMarketDataProvider(fakeHistory{series: &domain.PriceSeries{Symbol: "AAPL"}}, nil)
		_, err := provider.GetHistory(ctx, "AAPL", domain.DateRange{})
		require.True(t, errors.Is(err, domain.ErrPriceUnavailable))
	})

	t.Run("returns the series", func(t *testing.T) {
		series := &domain.PriceSeries{Symbol: "AAPL", Points: []domain.PricePoint{{Price: 1}}}
		provider := NewMarketDataProvider(fakeHistory{series: series}, nil)
		out, err := provider.GetHistory(ctx, "aapl", domain.DateRange{})
		require.NoError(t, err)
		require.Equal(t, 1, out.Len())
	})
}
