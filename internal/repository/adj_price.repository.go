package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"rebalanceadvisor/internal/db/models/postgres/public/model"
	. "rebalanceadvisor/internal/db/models/postgres/public/table"
	"rebalanceadvisor/internal/domain"

	. "github.com/go-jet/jet/v2/postgres"
	"github.com/go-jet/jet/v2/qrm"
	"github.com/shopspring/decimal"
)

// cachedWindow holds every stored price of a symbol between start and
// end, inclusive.
type cachedWindow struct {
	start  time.Time
	end    time.Time
	prices []model.AdjustedPrice
}

func (w cachedWindow) covers(start, end time.Time) bool {
	return !w.start.After(start) && !w.end.Before(end)
}

type PriceCache map[string]cachedWindow

type AdjustedPriceRepository interface {
	Add(ctx context.Context, tx *sql.Tx, prices []domain.AssetPrice) error
	List(ctx context.Context, symbol string, start, end time.Time) ([]domain.AssetPrice, error)
	GetHistory(ctx context.Context, symbol string, r domain.DateRange) (*domain.PriceSeries, error)
}

func NewAdjustedPriceRepository(db *sql.DB) AdjustedPriceRepository {
	h := &adjustedPriceRepositoryHandler{
		Db:        db,
		Cache:     make(PriceCache),
		ReadMutex: &sync.RWMutex{},
	}
	h.load = h.queryRange
	return h
}

type adjustedPriceRepositoryHandler struct {
	Db        *sql.DB
	Cache     PriceCache
	ReadMutex *sync.RWMutex

	load func(ctx context.Context, symbol string, start, end time.Time) ([]model.AdjustedPrice, error)
}

func (h adjustedPriceRepositoryHandler) getFromCache(symbol string, start, end time.Time) ([]model.AdjustedPrice, bool) {
	h.ReadMutex.RLock()
	defer h.ReadMutex.RUnlock()
	window, ok := h.Cache[symbol]
	if !ok || !window.covers(start, end) {
		return nil, false
	}
	return pricesWithin(window.prices, start, end), true
}

func pricesWithin(prices []model.AdjustedPrice, start, end time.Time) []model.AdjustedPrice {
	out := []model.AdjustedPrice{}
	for _, p := range prices {
		if !p.Date.Before(start) && !p.Date.After(end) {
			out = append(out, p)
		}
	}
	return out
}

func (h adjustedPriceRepositoryHandler) addToCache(symbol string, window cachedWindow) {
	h.ReadMutex.Lock()
	defer h.ReadMutex.Unlock()
	h.Cache[symbol] = window
}

func (h adjustedPriceRepositoryHandler) dropFromCache(symbols map[string]bool) {
	h.ReadMutex.Lock()
	defer h.ReadMutex.Unlock()
	for symbol := range symbols {
		delete(h.Cache, symbol)
	}
}

func (h adjustedPriceRepositoryHandler) Add(ctx context.Context, tx *sql.Tx, prices []domain.AssetPrice) error {
	if len(prices) == 0 {
		return nil
	}
	models := []model.AdjustedPrice{}
	symbols := map[string]bool{}
	for _, p := range prices {
		symbols[p.Symbol] = true
		models = append(models, model.AdjustedPrice{
			Symbol:    p.Symbol,
			Date:      p.Date,
			Price:     p.Price.InexactFloat64(),
			CreatedAt: time.Now().UTC(),
		})
	}

	query := AdjustedPrice.
		INSERT(AdjustedPrice.MutableColumns).
		MODELS(models).
		ON_CONFLICT(
			AdjustedPrice.Symbol, AdjustedPrice.Date,
		).DO_UPDATE(
		SET(
			AdjustedPrice.Price.SET(AdjustedPrice.EXCLUDED.Price),
		),
	)

	var db qrm.Executable = h.Db
	if tx != nil {
		db = tx
	}
	_, err := query.ExecContext(ctx, db)
	if err != nil {
		return fmt.Errorf("failed to add adjusted prices to db: %w", err)
	}

	// cached windows may now be missing rows
	h.dropFromCache(symbols)
	return nil
}

func (h adjustedPriceRepositoryHandler) queryRange(ctx context.Context, symbol string, start, end time.Time) ([]model.AdjustedPrice, error) {
	query := AdjustedPrice.
		SELECT(AdjustedPrice.AllColumns).
		WHERE(
			AND(
				AdjustedPrice.Symbol.EQ(String(symbol)),
				AdjustedPrice.Date.GT_EQ(DateT(start)),
				AdjustedPrice.Date.LT_EQ(DateT(end)),
			),
		).
		ORDER_BY(AdjustedPrice.Date.ASC())

	result := []model.AdjustedPrice{}
	err := query.QueryContext(ctx, h.Db, &result)
	if err != nil && !errors.Is(err, qrm.ErrNoRows) {
		return nil, fmt.Errorf("failed to list prices for %s: %w", symbol, err)
	}
	return result, nil
}

// List returns the stored prices of symbol in [start, end]. Ranges inside
// the symbol's cached window are served from memory; otherwise the window
// is widened to cover both and reloaded.
func (h adjustedPriceRepositoryHandler) List(ctx context.Context, symbol string, start, end time.Time) ([]domain.AssetPrice, error) {
	result, ok := h.getFromCache(symbol, start, end)
	if !ok {
		window := cachedWindow{start: start, end: end}
		h.ReadMutex.RLock()
		if existing, found := h.Cache[symbol]; found {
			if existing.start.Before(window.start) {
				window.start = existing.start
			}
			if existing.end.After(window.end) {
				window.end = existing.end
			}
		}
		h.ReadMutex.RUnlock()

		loaded, err := h.load(ctx, symbol, window.start, window.end)
		if err != nil {
			return nil, err
		}
		window.prices = loaded
		h.addToCache(symbol, window)

		result = pricesWithin(loaded, start, end)
	}

	out := []domain.AssetPrice{}
	for _, p := range result {
		out = append(out, domain.AssetPrice{
			Symbol: p.Symbol,
			Date:   p.Date,
			Price:  decimal.NewFromFloat(p.Price),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Date.Before(out[j].Date)
	})

	return out, nil
}

func (h adjustedPriceRepositoryHandler) GetHistory(ctx context.Context, symbol string, r domain.DateRange) (*domain.PriceSeries, error) {
	prices, err := h.List(ctx, symbol, r.Start, r.End)
	if err != nil {
		return nil, err
	}
	if len(prices) == 0 {
		return nil, fmt.Errorf("%w: no history for %s", domain.ErrPriceUnavailable, symbol)
	}
	series := domain.NewPriceSeries(symbol, prices)
	return &series, nil
}
