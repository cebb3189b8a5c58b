package l2_service

import (
	"context"
	"fmt"
	"math"
	"sort"

	"rebalanceadvisor/internal/domain"
	"rebalanceadvisor/internal/logger"

	"github.com/shopspring/decimal"
)

type DiffInput struct {
	Holdings            []domain.Holding
	Allocation          domain.BlendedAllocation
	TotalPortfolioValue decimal.Decimal
	// deltas smaller than this, in percentage points, are held
	MinTradeThresholdPct float64
	LatestPrices         map[string]decimal.Decimal
	// used when neither a latest nor a holding price is known
	DefaultReferencePrice decimal.Decimal
}

type RebalanceService interface {
	Diff(ctx context.Context, in DiffInput) ([]domain.RebalanceAction, error)
}

type rebalanceServiceHandler struct{}

func NewRebalanceService() RebalanceService {
	return rebalanceServiceHandler{}
}

// Diff lists one action per instrument in the holdings or the allocation.
// Current weights use the same prices as the trades, so holdings are
// revalued at LatestPrices first. Holds are always included with zero quantity. Order is sells, buys,
// holds; within each group larger deltas first, then symbol.
func (h rebalanceServiceHandler) Diff(ctx context.Context, in DiffInput) ([]domain.RebalanceAction, error) {
	log := logger.FromContext(ctx)

	if !in.TotalPortfolioValue.IsPositive() {
		return nil, fmt.Errorf("%w: total portfolio value must be positive, got %s", domain.ErrValidation, in.TotalPortfolioValue.String())
	}
	if in.MinTradeThresholdPct < 0 || math.IsNaN(in.MinTradeThresholdPct) {
		return nil, fmt.Errorf("%w: invalid trade threshold %f", domain.ErrValidation, in.MinTradeThresholdPct)
	}
	if !in.DefaultReferencePrice.IsPositive() {
		return nil, fmt.Errorf("%w: default reference price must be positive, got %s", domain.ErrValidation, in.DefaultReferencePrice.String())
	}

	portfolio, err := domain.NewPortfolio(domain.RevalueHoldings(in.Holdings, in.LatestPrices))
	if err != nil {
		return nil, err
	}
	currentPct, err := portfolio.WeightsPct()
	if err != nil {
		return nil, err
	}

	symbolSet := map[string]bool{}
	for symbol := range currentPct {
		symbolSet[symbol] = true
	}
	for symbol := range in.Allocation.Weights {
		symbolSet[symbol] = true
	}

	hundred := decimal.NewFromInt(100)
	sells, buys, holds := []domain.RebalanceAction{}, []domain.RebalanceAction{}, []domain.RebalanceAction{}
	for symbol := range symbolSet {
		current := currentPct[symbol]
		target := in.Allocation.Weights[symbol] * 100
		delta := target - current

		action := domain.RebalanceAction{
			Symbol:            symbol,
			CurrentWeightPct:  current,
			TargetWeightPct:   target,
			DeltaWeightPct:    delta,
			EstimatedQuantity: decimal.Zero,
		}
		price, fallback := referencePrice(symbol, in.LatestPrices, portfolio, in.DefaultReferencePrice)
		action.ReferencePrice = price
		action.PriceFallback = fallback
		if fallback {
			log.Warnf("no price for %s, using default reference price %s", symbol, price.String())
		}

		if math.Abs(delta) < in.MinTradeThresholdPct {
			action.Action = domain.TradeAction_Hold
			holds = append(holds, action)
			continue
		}

		action.EstimatedQuantity = decimal.NewFromFloat(math.Abs(delta)).
			Div(hundred).
			Mul(in.TotalPortfolioValue).
			Div(price).
			Round(0)
		if delta > 0 {
			action.Action = domain.TradeAction_Buy
			buys = append(buys, action)
		} else {
			action.Action = domain.TradeAction_Sell
			sells = append(sells, action)
		}
	}

	out := make([]domain.RebalanceAction, 0, len(symbolSet))
	for _, group := range [][]domain.RebalanceAction{sells, buys, holds} {
		sortActions(group)
		out = append(out, group...)
	}

	return out, nil
}

// referencePrice prefers the latest price, then the holding's own price,
// then the default. The bool reports the default was used.
func referencePrice(symbol string, latest map[string]decimal.Decimal, portfolio *domain.Portfolio, defaultPrice decimal.Decimal) (decimal.Decimal, bool) {
	if p, ok := latest[symbol]; ok && p.IsPositive() {
		return p, false
	}
	if holding, ok := portfolio.Holdings[symbol]; ok && holding.CurrentPrice.IsPositive() {
		return holding.CurrentPrice, false
	}
	return defaultPrice, true
}

func sortActions(actions []domain.RebalanceAction) {
	sort.SliceStable(actions, func(i, j int) bool {
		di, dj := math.Abs(actions[i].DeltaWeightPct), math.Abs(actions[j].DeltaWeightPct)
		if di != dj {
			return di > dj
		}
		return actions[i].Symbol < actions[j].Symbol
	})
}
