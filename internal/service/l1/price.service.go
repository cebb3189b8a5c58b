package l1_service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"rebalanceadvisor/internal/domain"
	"rebalanceadvisor/internal/logger"
	"rebalanceadvisor/internal/repository"

	"github.com/shopspring/decimal"
)

const numHistoryWorkers = 10

type PriceService interface {
	LoadHistory(ctx context.Context, symbols []string, r domain.DateRange) (*HistoryResult, error)
	LoadLatestPrices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error)
}

// HistoryResult holds the series that could be loaded. Symbols with no
// data in range are listed in Missing, sorted.
type HistoryResult struct {
	Series  map[string]domain.PriceSeries
	Missing []string
}

type priceServiceHandler struct {
	MarketDataProvider repository.MarketDataProvider
}

func NewPriceService(marketDataProvider repository.MarketDataProvider) PriceService {
	return priceServiceHandler{
		MarketDataProvider: marketDataProvider,
	}
}

// LoadHistory fetches each symbol's history concurrently. Unavailable
// symbols are reported as missing; any other failure aborts the load.
func (h priceServiceHandler) LoadHistory(ctx context.Context, symbols []string, r domain.DateRange) (*HistoryResult, error) {
	log := logger.FromContext(ctx)
	profile := domain.GetProfile(ctx)
	_, endSpan := profile.StartNewSpan("load price history")
	defer endSpan()

	symbols = dedupe(symbols)
	out := &HistoryResult{
		Series:  map[string]domain.PriceSeries{},
		Missing: []string{},
	}
	if len(symbols) == 0 {
		return out, nil
	}

	inputCh := make(chan string, len(symbols))
	for _, s := range symbols {
		inputCh <- s
	}
	close(inputCh)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	numWorkers := numHistoryWorkers
	if len(symbols) < numWorkers {
		numWorkers = len(symbols)
	}
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for symbol := range inputCh {
				if ctx.Err() != nil {
					return
				}
				series, err := h.MarketDataProvider.GetHistory(ctx, symbol, r)

				mu.Lock()
				if errors.Is(err, domain.ErrPriceUnavailable) {
					out.Missing = append(out.Missing, symbol)
				} else if err != nil {
					if firstErr == nil {
						firstErr = fmt.Errorf("failed to load history for %s: %w", symbol, err)
					}
				} else {
					fillNonPositive(&series)
					out.Series[symbol] = series
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: loading price history: %v", domain.ErrTimeout, err)
	}

	sort.Strings(out.Missing)
	if len(out.Missing) > 0 {
		log.Infof("no price history for %v", out.Missing)
	}

	return out, nil
}

// fillNonPositive carries the previous price over zero or negative
// points. Leading bad points are dropped.
func fillNonPositive(series *domain.PriceSeries) {
	points := series.Points[:0]
	var last *float64
	for _, p := range series.Points {
		if p.Price > 0 {
			price := p.Price
			last = &price
			points = append(points, p)
			continue
		}
		if last != nil {
			p.Price = *last
			points = append(points, p)
		}
	}
	series.Points = points
}

func (h priceServiceHandler) LoadLatestPrices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	prices, err := h.MarketDataProvider.GetLatestPrices(ctx, dedupe(symbols))
	if err != nil {
		return nil, fmt.Errorf("failed to load latest prices: %w", err)
	}
	return prices, nil
}

func dedupe(symbols []string) []string {
	set := map[string]bool{}
	out := []string{}
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" || set[s] {
			continue
		}
		set[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
