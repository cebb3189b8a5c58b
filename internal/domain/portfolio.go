package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type Holding struct {
	Symbol       string          `json:"symbol"`
	Quantity     decimal.Decimal `json:"quantity"`
	CostBasis    decimal.Decimal `json:"costBasis"`
	CurrentPrice decimal.Decimal `json:"currentPrice"`
	Currency     string          `json:"currency"`
}

func (h Holding) MarketValue() decimal.Decimal {
	return h.Quantity.Mul(h.CurrentPrice)
}

// RevalueHoldings prices each holding at its latest price when one is
// known. The input slice is not modified.
func RevalueHoldings(holdings []Holding, latest map[string]decimal.Decimal) []Holding {
	out := make([]Holding, 0, len(holdings))
	for _, holding := range holdings {
		if p, ok := latest[holding.Symbol]; ok && p.IsPositive() {
			holding.CurrentPrice = p
		}
		out = append(out, holding)
	}
	return out
}

// Portfolio is a user's holdings keyed by symbol. Holdings of the same
// symbol are merged when the portfolio is built.
type Portfolio struct {
	Holdings map[string]Holding
	Currency string
}

func NewPortfolio(holdings []Holding) (*Portfolio, error) {
	p := &Portfolio{
		Holdings: map[string]Holding{},
	}
	for _, h := range holdings {
		if h.Symbol == "" {
			return nil, fmt.Errorf("%w: holding is missing a symbol", ErrValidation)
		}
		if h.Quantity.IsNegative() {
			return nil, fmt.Errorf("%w: holding %s has negative quantity %s", ErrValidation, h.Symbol, h.Quantity.String())
		}
		if h.CurrentPrice.IsNegative() {
			return nil, fmt.Errorf("%w: holding %s has negative price %s", ErrValidation, h.Symbol, h.CurrentPrice.String())
		}
		currency := strings.ToUpper(h.Currency)
		if currency != "" {
			if p.Currency == "" {
				p.Currency = currency
			} else if p.Currency != currency {
				return nil, fmt.Errorf("%w: mixed currencies %s and %s in holdings", ErrValidation, p.Currency, currency)
			}
		}

		if existing, ok := p.Holdings[h.Symbol]; ok {
			existing.Quantity = existing.Quantity.Add(h.Quantity)
			existing.CostBasis = existing.CostBasis.Add(h.CostBasis)
			if !h.CurrentPrice.IsZero() {
				existing.CurrentPrice = h.CurrentPrice
			}
			p.Holdings[h.Symbol] = existing
		} else {
			p.Holdings[h.Symbol] = h
		}
	}
	return p, nil
}

func (p Portfolio) TotalValue() decimal.Decimal {
	total := decimal.Zero
	for _, h := range p.Holdings {
		total = total.Add(h.MarketValue())
	}
	return total
}

// WeightsPct returns each holding's share of total market value in
// percent. An empty portfolio has no weights; a non-empty portfolio with
// zero market value cannot be weighted.
func (p Portfolio) WeightsPct() (map[string]float64, error) {
	out := map[string]float64{}
	if len(p.Holdings) == 0 {
		return out, nil
	}
	total := p.TotalValue()
	if !total.IsPositive() {
		return nil, fmt.Errorf("%w: holdings have non-positive total market value %s", ErrValidation, total.String())
	}
	hundred := decimal.NewFromInt(100)
	for symbol, h := range p.Holdings {
		out[symbol] = h.MarketValue().Mul(hundred).Div(total).InexactFloat64()
	}
	return out, nil
}

// Weights is WeightsPct as fractions of 1.
func (p Portfolio) Weights() (map[string]float64, error) {
	pct, err := p.WeightsPct()
	if err != nil {
		return nil, err
	}
	out := map[string]float64{}
	for symbol, w := range pct {
		out[symbol] = w / 100
	}
	return out, nil
}
