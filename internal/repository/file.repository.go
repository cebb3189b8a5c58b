package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"rebalanceadvisor/internal/domain"

	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"
)

// strategyFileEntry is the on-disk catalog shape. Active defaults to true
// when omitted.
type strategyFileEntry struct {
	domain.Strategy
	Active *bool `json:"active"`
}

type fileStrategyRepositoryHandler struct {
	Path       string
	mu         *sync.RWMutex
	strategies []domain.Strategy
}

// NewFileStrategyRepository loads a JSON array of strategies from path.
func NewFileStrategyRepository(path string) (StrategyRepository, error) {
	f, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read strategy catalog %s: %w", path, err)
	}
	strategies, err := decodeStrategies(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode strategy catalog %s: %w", path, err)
	}

	return &fileStrategyRepositoryHandler{
		Path:       path,
		mu:         &sync.RWMutex{},
		strategies: strategies,
	}, nil
}

func decodeStrategies(b []byte) ([]domain.Strategy, error) {
	entries := []strategyFileEntry{}
	if err := json.Unmarshal(b, &entries); err != nil {
		return nil, err
	}
	out := []domain.Strategy{}
	for _, e := range entries {
		s := e.Strategy
		riskLevel, err := domain.NewRiskLevel(string(s.RiskLevel))
		if err != nil {
			return nil, fmt.Errorf("strategy %s: %w", s.ID, err)
		}
		s.RiskLevel = riskLevel
		s.Active = e.Active == nil || *e.Active
		out = append(out, s)
	}
	return out, nil
}

func (h *fileStrategyRepositoryHandler) ListActive(ctx context.Context) ([]domain.Strategy, error) {
	return h.List(ctx, StrategyListFilter{})
}

func (h *fileStrategyRepositoryHandler) List(ctx context.Context, filter StrategyListFilter) ([]domain.Strategy, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := []domain.Strategy{}
	for _, s := range h.strategies {
		if !filter.IncludeInactive && !s.Active {
			continue
		}
		if filter.RiskLevel != nil && s.RiskLevel != *filter.RiskLevel {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID < out[j].ID
	})

	return out, nil
}

// Add upserts by id and rewrites the catalog file.
func (h *fileStrategyRepositoryHandler) Add(ctx context.Context, strategies []domain.Strategy) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	byID := map[string]int{}
	for i, s := range h.strategies {
		byID[s.ID] = i
	}
	for _, s := range strategies {
		if i, ok := byID[s.ID]; ok {
			h.strategies[i] = s
		} else {
			byID[s.ID] = len(h.strategies)
			h.strategies = append(h.strategies, s)
		}
	}

	b, err := json.MarshalIndent(h.strategies, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(h.Path, b, 0644); err != nil {
		return fmt.Errorf("failed to write strategy catalog %s: %w", h.Path, err)
	}
	return nil
}

type holdingRow struct {
	UserID       string `csv:"user_id"`
	Symbol       string `csv:"symbol"`
	Quantity     string `csv:"quantity"`
	CostBasis    string `csv:"cost_basis"`
	CurrentPrice string `csv:"current_price"`
	Currency     string `csv:"currency"`
}

type csvHoldingsRepositoryHandler struct {
	holdings map[string][]domain.Holding
}

// NewCsvHoldingsRepository loads user holdings from a csv with columns
// user_id,symbol,quantity,cost_basis,current_price,currency.
func NewCsvHoldingsRepository(path string) (HoldingsRepository, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open holdings file %s: %w", path, err)
	}
	defer f.Close()

	rows := []holdingRow{}
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse holdings file %s: %w", path, err)
	}

	out := map[string][]domain.Holding{}
	for i, row := range rows {
		quantity, err := parseDecimal(row.Quantity)
		if err != nil {
			return nil, fmt.Errorf("row %d: invalid quantity: %w", i+1, err)
		}
		costBasis, err := parseDecimal(row.CostBasis)
		if err != nil {
			return nil, fmt.Errorf("row %d: invalid cost basis: %w", i+1, err)
		}
		currentPrice, err := parseDecimal(row.CurrentPrice)
		if err != nil {
			return nil, fmt.Errorf("row %d: invalid current price: %w", i+1, err)
		}
		out[row.UserID] = append(out[row.UserID], domain.Holding{
			Symbol:       strings.ToUpper(strings.TrimSpace(row.Symbol)),
			Quantity:     quantity,
			CostBasis:    costBasis,
			CurrentPrice: currentPrice,
			Currency:     row.Currency,
		})
	}

	return csvHoldingsRepositoryHandler{holdings: out}, nil
}

func parseDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

func (h csvHoldingsRepositoryHandler) GetHoldings(ctx context.Context, userID string) ([]domain.Holding, error) {
	out := append([]domain.Holding{}, h.holdings[userID]...)
	return out, nil
}

type priceRow struct {
	Date   string  `csv:"date"`
	Symbol string  `csv:"symbol"`
	Price  float64 `csv:"price"`
}

// csvPriceRepositoryHandler serves both history and latest prices from a
// date,symbol,price csv.
type csvPriceRepositoryHandler struct {
	series map[string]domain.PriceSeries
}

type CsvPriceRepository interface {
	PriceHistoryRepository
	LatestPriceRepository
}

func NewCsvPriceRepository(path string) (CsvPriceRepository, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open price file %s: %w", path, err)
	}
	defer f.Close()

	rows := []priceRow{}
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse price file %s: %w", path, err)
	}

	bySymbol := map[string][]domain.AssetPrice{}
	for _, row := range rows {
		date, err := time.Parse(time.DateOnly, row.Date)
		if err != nil {
			return nil, fmt.Errorf("invalid date %q for %s: %w", row.Date, row.Symbol, err)
		}
		symbol := strings.ToUpper(strings.TrimSpace(row.Symbol))
		bySymbol[symbol] = append(bySymbol[symbol], domain.AssetPrice{
			Symbol: symbol,
			Date:   date,
			Price:  decimal.NewFromFloat(row.Price),
		})
	}

	series := map[string]domain.PriceSeries{}
	for symbol, prices := range bySymbol {
		series[symbol] = domain.NewPriceSeries(symbol, prices)
	}

	return csvPriceRepositoryHandler{series: series}, nil
}

func (h csvPriceRepositoryHandler) GetHistory(ctx context.Context, symbol string, r domain.DateRange) (*domain.PriceSeries, error) {
	s, ok := h.series[strings.ToUpper(symbol)]
	if !ok {
		return nil, fmt.Errorf("%w: no history for %s", domain.ErrPriceUnavailable, symbol)
	}
	points := []domain.PricePoint{}
	for _, p := range s.Points {
		if p.Date.Before(r.Start) || p.Date.After(r.End) {
			continue
		}
		points = append(points, p)
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("%w: no history for %s between %s and %s", domain.ErrPriceUnavailable, symbol, r.Start.Format(time.DateOnly), r.End.Format(time.DateOnly))
	}

	return &domain.PriceSeries{Symbol: s.Symbol, Points: points}, nil
}

func (h csvPriceRepositoryHandler) GetLatestPrices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	out := map[string]decimal.Decimal{}
	for _, symbol := range symbols {
		s, ok := h.series[strings.ToUpper(symbol)]
		if !ok {
			continue
		}
		if last, ok := s.Last(); ok && last.Price > 0 {
			out[s.Symbol] = decimal.NewFromFloat(last.Price)
		}
	}
	return out, nil
}
