package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"rebalanceadvisor/internal/domain"
	"rebalanceadvisor/internal/logger"

	"github.com/shopspring/decimal"
)

type PriceHistoryRepository interface {
	GetHistory(ctx context.Context, symbol string, r domain.DateRange) (*domain.PriceSeries, error)
}

// MarketDataProvider is the read side of market data used by the engine.
// Missing data is reported as domain.ErrPriceUnavailable.
type MarketDataProvider interface {
	GetLatestPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
	GetLatestPrices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error)
	GetHistory(ctx context.Context, symbol string, r domain.DateRange) (domain.PriceSeries, error)
}

type marketDataProviderHandler struct {
	History PriceHistoryRepository
	// tried in order until every symbol has a price
	Latest []LatestPriceRepository
	Cache  PriceCacheRepository
}

// NewMarketDataProvider composes a history source, latest-price sources
// and an optional cache. cache may be nil.
func NewMarketDataProvider(history PriceHistoryRepository, cache PriceCacheRepository, latest ...LatestPriceRepository) MarketDataProvider {
	return marketDataProviderHandler{
		History: history,
		Latest:  latest,
		Cache:   cache,
	}
}

func (h marketDataProviderHandler) GetLatestPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	prices, err := h.GetLatestPrices(ctx, []string{symbol})
	if err != nil {
		return decimal.Zero, err
	}
	price, ok := prices[strings.ToUpper(symbol)]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: no latest price for %s", domain.ErrPriceUnavailable, symbol)
	}
	return price, nil
}

// GetLatestPrices returns every price it could resolve. Source failures
// are logged and the next source is tried.
func (h marketDataProviderHandler) GetLatestPrices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	log := logger.FromContext(ctx)
	out := map[string]decimal.Decimal{}

	missing := []string{}
	for _, s := range uniqueUpper(symbols) {
		if h.Cache != nil {
			cached, err := h.Cache.GetLatestPrice(ctx, s)
			if err != nil {
				log.Warnf("price cache read failed for %s: %v", s, err)
			} else if cached != nil {
				out[s] = *cached
				continue
			}
		}
		missing = append(missing, s)
	}

	for _, source := range h.Latest {
		if len(missing) == 0 {
			break
		}
		prices, err := source.GetLatestPrices(ctx, missing)
		if err != nil {
			log.Warnf("latest price source failed for %v: %v", missing, err)
			continue
		}
		stillMissing := []string{}
		for _, s := range missing {
			price, ok := prices[s]
			if !ok || !price.IsPositive() {
				stillMissing = append(stillMissing, s)
				continue
			}
			out[s] = price
			if h.Cache != nil {
				if err := h.Cache.SetLatestPrice(ctx, s, price); err != nil {
					log.Warnf("price cache write failed for %s: %v", s, err)
				}
			}
		}
		missing = stillMissing
	}

	if len(missing) > 0 {
		log.Debugf("no latest price for %v", missing)
	}

	return out, nil
}

func (h marketDataProviderHandler) GetHistory(ctx context.Context, symbol string, r domain.DateRange) (domain.PriceSeries, error) {
	if h.History == nil {
		return domain.PriceSeries{}, fmt.Errorf("%w: no history source configured", domain.ErrPriceUnavailable)
	}
	series, err := h.History.GetHistory(ctx, strings.ToUpper(symbol), r)
	if err != nil {
		return domain.PriceSeries{}, err
	}
	if series == nil || series.Len() == 0 {
		return domain.PriceSeries{}, fmt.Errorf("%w: empty history for %s", domain.ErrPriceUnavailable, symbol)
	}
	return *series, nil
}

func uniqueUpper(symbols []string) []string {
	set := map[string]struct{}{}
	for _, s := range symbols {
		set[strings.ToUpper(strings.TrimSpace(s))] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for s := range set {
		if s != "" {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}
