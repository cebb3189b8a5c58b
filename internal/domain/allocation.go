package domain

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"
)

type SubScores struct {
	Alignment       float64 `json:"alignment"`
	Diversification float64 `json:"diversification"`
	Completeness    float64 `json:"completeness"`
}

type MatchResult struct {
	StrategyID      string    `json:"strategyID"`
	StrategyName    string    `json:"strategyName"`
	ConfidenceScore float64   `json:"confidenceScore"`
	SubScores       SubScores `json:"subScores"`
	SharpeRatio     *float64  `json:"sharpeRatio"`
}

// RankLess orders two match results: higher confidence first, then higher
// sharpe (undeclared sharpe last), then strategy id.
func RankLess(a, b MatchResult) bool {
	if a.ConfidenceScore != b.ConfidenceScore {
		return a.ConfidenceScore > b.ConfidenceScore
	}
	as, bs := math.Inf(-1), math.Inf(-1)
	if a.SharpeRatio != nil {
		as = *a.SharpeRatio
	}
	if b.SharpeRatio != nil {
		bs = *b.SharpeRatio
	}
	if as != bs {
		return as > bs
	}
	return a.StrategyID < b.StrategyID
}

func SortMatchResults(results []MatchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return RankLess(results[i], results[j])
	})
}

type BlendContributor struct {
	StrategyID      string  `json:"strategyID"`
	ConfidenceScore float64 `json:"confidenceScore"`
	BlendWeight     float64 `json:"blendWeight"`
}

// AggregateMetrics are blend-weighted averages of the contributors'
// declared metrics. Nil when no contributor declares the metric.
type AggregateMetrics struct {
	ExpectedReturn *float64 `json:"expectedReturn"`
	Volatility     *float64 `json:"volatility"`
	SharpeRatio    *float64 `json:"sharpeRatio"`
	MaxDrawdown    *float64 `json:"maxDrawdown"`
}

type BlendedAllocation struct {
	Weights        map[string]float64 `json:"weights"`
	Contributors   []BlendContributor `json:"contributors"`
	Metrics        AggregateMetrics   `json:"metrics"`
	Fallback       bool               `json:"fallback"`
	FallbackReason string             `json:"fallbackReason,omitempty"`
}

func (b BlendedAllocation) Symbols() []string {
	out := make([]string, 0, len(b.Weights))
	for symbol := range b.Weights {
		out = append(out, symbol)
	}
	sort.Strings(out)
	return out
}

func (b BlendedAllocation) Sum() float64 {
	sum := 0.0
	for _, w := range b.Weights {
		sum += w
	}
	return sum
}

type TradeAction string

const (
	TradeAction_Buy  TradeAction = "buy"
	TradeAction_Sell TradeAction = "sell"
	TradeAction_Hold TradeAction = "hold"
)

type RebalanceAction struct {
	Symbol            string          `json:"symbol"`
	Action            TradeAction     `json:"action"`
	CurrentWeightPct  float64         `json:"currentWeightPct"`
	TargetWeightPct   float64         `json:"targetWeightPct"`
	DeltaWeightPct    float64         `json:"deltaWeightPct"`
	EstimatedQuantity decimal.Decimal `json:"estimatedQuantity"`
	ReferencePrice    decimal.Decimal `json:"referencePrice"`
	PriceFallback     bool            `json:"priceFallback"`
}

// EstimatedValue is the notional size of the trade.
func (a RebalanceAction) EstimatedValue() decimal.Decimal {
	return a.EstimatedQuantity.Mul(a.ReferencePrice)
}
