package domain

import (
	"fmt"
	"math"
	"strings"
)

// AllocationSumTolerance is how far an allocation's weights may drift
// from 1 and still be considered complete.
const AllocationSumTolerance = 1e-6

type RiskLevel string

const (
	RiskLevel_Low    RiskLevel = "low"
	RiskLevel_Medium RiskLevel = "medium"
	RiskLevel_High   RiskLevel = "high"
)

func NewRiskLevel(s string) (RiskLevel, error) {
	switch RiskLevel(strings.ToLower(strings.TrimSpace(s))) {
	case RiskLevel_Low:
		return RiskLevel_Low, nil
	case RiskLevel_Medium:
		return RiskLevel_Medium, nil
	case RiskLevel_High:
		return RiskLevel_High, nil
	}
	return "", fmt.Errorf("%w: unknown risk level %q", ErrValidation, s)
}

// Strategy is an expert allocation from the catalog. Metrics are nil when
// the catalog entry does not declare them. Treat as immutable.
type Strategy struct {
	ID               string             `json:"id"`
	Name             string             `json:"name"`
	StyleTags        []string           `json:"styleTags"`
	TargetAllocation map[string]float64 `json:"targetAllocation"`
	ExpectedReturn   *float64           `json:"expectedReturn"`
	Volatility       *float64           `json:"volatility"`
	MaxDrawdown      *float64           `json:"maxDrawdown"`
	SharpeRatio      *float64           `json:"sharpeRatio"`
	RiskLevel        RiskLevel          `json:"riskLevel"`
	Sources          []string           `json:"sources"`
	Active           bool               `json:"active"`
}

func (s Strategy) HasTag(tag string) bool {
	for _, t := range s.StyleTags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// ValidateAllocation checks that the target allocation is a proper weight
// map: non-empty, every weight in [0,1] and the total within tolerance of 1.
func (s Strategy) ValidateAllocation() error {
	if len(s.TargetAllocation) == 0 {
		return fmt.Errorf("%w: strategy %s has an empty allocation", ErrValidation, s.ID)
	}
	sum := 0.0
	for symbol, w := range s.TargetAllocation {
		if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 || w > 1 {
			return fmt.Errorf("%w: strategy %s has invalid weight %v for %s", ErrValidation, s.ID, w, symbol)
		}
		sum += w
	}
	if math.Abs(sum-1) > AllocationSumTolerance {
		return fmt.Errorf("%w: strategy %s allocation sums to %f", ErrValidation, s.ID, sum)
	}
	return nil
}

// MaxWeight returns the largest single instrument weight.
func (s Strategy) MaxWeight() float64 {
	out := 0.0
	for _, w := range s.TargetAllocation {
		if w > out {
			out = w
		}
	}
	return out
}
