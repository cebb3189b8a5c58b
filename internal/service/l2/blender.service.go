package l2_service

import (
	"context"
	"fmt"
	"math"
	"sort"

	"rebalanceadvisor/internal/domain"
	"rebalanceadvisor/internal/logger"
)

// weights closer than this to a bound count as on the bound
const boundEpsilon = 1e-9

type BlendOptions struct {
	TopK          int
	MinWeight     float64
	MaxWeight     float64
	MaxIterations int
}

func DefaultBlendOptions() BlendOptions {
	return BlendOptions{
		TopK:          3,
		MinWeight:     0.05,
		MaxWeight:     0.30,
		MaxIterations: 10,
	}
}

func (o BlendOptions) validate() error {
	if o.TopK <= 0 {
		return fmt.Errorf("%w: top k must be positive, got %d", domain.ErrValidation, o.TopK)
	}
	if o.MinWeight < 0 || o.MaxWeight <= 0 || o.MaxWeight > 1 {
		return fmt.Errorf("%w: weight bounds [%f, %f] out of range", domain.ErrValidation, o.MinWeight, o.MaxWeight)
	}
	if o.MinWeight > o.MaxWeight {
		return fmt.Errorf("%w: min weight %f above max weight %f", domain.ErrValidation, o.MinWeight, o.MaxWeight)
	}
	if o.MaxIterations <= 0 {
		return fmt.Errorf("%w: max iterations must be positive, got %d", domain.ErrValidation, o.MaxIterations)
	}
	return nil
}

type BlenderService interface {
	Blend(ctx context.Context, matches []domain.MatchResult, strategies []domain.Strategy, opts BlendOptions) (*domain.BlendedAllocation, error)
}

type blenderServiceHandler struct{}

func NewBlenderService() BlenderService {
	return blenderServiceHandler{}
}

// Blend combines the top k matches into one allocation within the weight
// bounds. strategies must contain every matched strategy.
func (h blenderServiceHandler) Blend(ctx context.Context, matches []domain.MatchResult, strategies []domain.Strategy, opts BlendOptions) (*domain.BlendedAllocation, error) {
	log := logger.FromContext(ctx)

	if err := opts.validate(); err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: nothing to blend", domain.ErrNoEligibleStrategy)
	}

	ranked := append([]domain.MatchResult{}, matches...)
	domain.SortMatchResults(ranked)
	if len(ranked) > opts.TopK {
		ranked = ranked[:opts.TopK]
	}

	byID := make(map[string]domain.Strategy, len(strategies))
	for _, s := range strategies {
		byID[s.ID] = s
	}

	totalConfidence := 0.0
	for _, m := range ranked {
		if _, ok := byID[m.StrategyID]; !ok {
			return nil, fmt.Errorf("%w: matched strategy %s not provided", domain.ErrValidation, m.StrategyID)
		}
		totalConfidence += m.ConfidenceScore
	}
	if totalConfidence <= 0 || math.IsNaN(totalConfidence) {
		return nil, fmt.Errorf("%w: selected strategies have zero total confidence", domain.ErrNoEligibleStrategy)
	}

	contributors := make([]domain.BlendContributor, 0, len(ranked))
	raw := map[string]float64{}
	for _, m := range ranked {
		blendWeight := m.ConfidenceScore / totalConfidence
		contributors = append(contributors, domain.BlendContributor{
			StrategyID:      m.StrategyID,
			ConfidenceScore: m.ConfidenceScore,
			BlendWeight:     blendWeight,
		})
		for symbol, w := range byID[m.StrategyID].TargetAllocation {
			raw[symbol] += blendWeight * w
		}
	}

	weights, err := ApplyWeightBounds(raw, opts.MinWeight, opts.MaxWeight, opts.MaxIterations)
	if err != nil {
		log.Warnf("failed to bound blend of %d strategies: %v", len(contributors), err)
		return nil, err
	}

	return &domain.BlendedAllocation{
		Weights:      weights,
		Contributors: contributors,
		Metrics:      aggregateMetrics(contributors, byID),
	}, nil
}

// ApplyWeightBounds runs floor then cap over the weights, in symbol order,
// until every surviving weight is within [minWeight, maxWeight] or
// maxIterations is reached. The result sums to 1 and omits zeroed symbols.
func ApplyWeightBounds(raw map[string]float64, minWeight, maxWeight float64, maxIterations int) (map[string]float64, error) {
	symbols := make([]string, 0, len(raw))
	for symbol := range raw {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	w := make([]float64, len(symbols))
	for i, symbol := range symbols {
		v := raw[symbol]
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return nil, fmt.Errorf("%w: invalid raw weight %v for %s", domain.ErrValidation, v, symbol)
		}
		w[i] = v
	}
	if sum(w) <= 0 {
		return nil, fmt.Errorf("%w: allocation has no positive weight", domain.ErrValidation)
	}

	converged := false
	for iter := 0; iter < maxIterations; iter++ {
		if withinBounds(w, minWeight, maxWeight) {
			converged = true
			break
		}
		applyFloor(w, minWeight)
		if err := applyCap(w, maxWeight); err != nil {
			return nil, err
		}
	}
	if !converged && !withinBounds(w, minWeight, maxWeight) {
		return nil, fmt.Errorf("%w: weights did not settle within [%.4f, %.4f] after %d iterations", domain.ErrOverConstrained, minWeight, maxWeight, maxIterations)
	}

	total := sum(w)
	out := map[string]float64{}
	for i, symbol := range symbols {
		if w[i] > 0 {
			out[symbol] = w[i] / total
		}
	}
	return out, nil
}

func withinBounds(w []float64, minWeight, maxWeight float64) bool {
	if math.Abs(sum(w)-1) > domain.AllocationSumTolerance {
		return false
	}
	for _, v := range w {
		if v == 0 {
			continue
		}
		if v < minWeight-boundEpsilon || v > maxWeight+boundEpsilon {
			return false
		}
	}
	return true
}

// applyFloor zeroes weights under minWeight and renormalizes the rest. If
// nothing would survive, the largest weight is kept.
func applyFloor(w []float64, minWeight float64) {
	largest := -1
	for i, v := range w {
		if v > 0 && (largest < 0 || v > w[largest]) {
			largest = i
		}
	}
	survivors := 0
	for i, v := range w {
		if v > 0 && v < minWeight-boundEpsilon {
			w[i] = 0
		} else if v > 0 {
			survivors++
		}
	}
	if survivors == 0 && largest >= 0 {
		w[largest] = 1
	}
	normalize(w)
}

// applyCap clips weights above maxWeight and hands the excess to the
// uncapped survivors in proportion to their weight.
func applyCap(w []float64, maxWeight float64) error {
	excess := 0.0
	for i, v := range w {
		if v > maxWeight+boundEpsilon {
			excess += v - maxWeight
			w[i] = maxWeight
		}
	}
	if excess <= 0 {
		return nil
	}

	recipients := 0.0
	for _, v := range w {
		if v > 0 && v < maxWeight-boundEpsilon {
			recipients += v
		}
	}
	if recipients <= 0 {
		return fmt.Errorf("%w: %.4f of weight above the %.4f cap has no uncapped instrument to go to", domain.ErrOverConstrained, excess, maxWeight)
	}
	for i, v := range w {
		if v > 0 && v < maxWeight-boundEpsilon {
			w[i] = v + excess*v/recipients
		}
	}
	return nil
}

func normalize(w []float64) {
	total := sum(w)
	if total <= 0 {
		return
	}
	for i := range w {
		w[i] /= total
	}
}

func sum(w []float64) float64 {
	total := 0.0
	for _, v := range w {
		total += v
	}
	return total
}

// aggregateMetrics averages each declared metric over the contributors
// that declare it, weighted by blend weight.
func aggregateMetrics(contributors []domain.BlendContributor, byID map[string]domain.Strategy) domain.AggregateMetrics {
	average := func(get func(domain.Strategy) *float64) *float64 {
		weighted, weightSum := 0.0, 0.0
		for _, c := range contributors {
			v := finiteOrNil(get(byID[c.StrategyID]))
			if v == nil {
				continue
			}
			weighted += c.BlendWeight * *v
			weightSum += c.BlendWeight
		}
		if weightSum <= 0 {
			return nil
		}
		out := weighted / weightSum
		return &out
	}

	return domain.AggregateMetrics{
		ExpectedReturn: average(func(s domain.Strategy) *float64 { return s.ExpectedReturn }),
		Volatility:     average(func(s domain.Strategy) *float64 { return s.Volatility }),
		SharpeRatio:    average(func(s domain.Strategy) *float64 { return s.SharpeRatio }),
		MaxDrawdown:    average(func(s domain.Strategy) *float64 { return s.MaxDrawdown }),
	}
}
