package l3_service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"rebalanceadvisor/internal/calculator"
	"rebalanceadvisor/internal/config"
	"rebalanceadvisor/internal/domain"
	"rebalanceadvisor/internal/logger"
	"rebalanceadvisor/internal/util"

	"github.com/shopspring/decimal"
)

type SimulationOptions struct {
	MaxHorizonDays        int
	RebalanceIntervalDays int
	PeriodsPerYear        int
	ProjectionSeed        int64
	InitialCapital        float64
	MinHistoryPoints      int
	DefaultExpectedReturn float64
	DefaultVolatility     float64
}

func NewSimulationOptions(c config.EngineConfig) SimulationOptions {
	return SimulationOptions{
		MaxHorizonDays:        c.MaxHorizonDays,
		RebalanceIntervalDays: c.RebalanceIntervalDays,
		PeriodsPerYear:        c.PeriodsPerYear,
		ProjectionSeed:        c.ProjectionSeed,
		InitialCapital:        c.InitialCapital,
		MinHistoryPoints:      c.MinHistoryPoints,
		DefaultExpectedReturn: c.DefaultExpectedReturn,
		DefaultVolatility:     c.DefaultVolatility,
	}
}

func DefaultSimulationOptions() SimulationOptions {
	return NewSimulationOptions(config.DefaultEngineConfig())
}

func (o SimulationOptions) validate() error {
	if o.MaxHorizonDays <= 0 || o.PeriodsPerYear <= 0 || o.RebalanceIntervalDays < 0 {
		return fmt.Errorf("%w: invalid simulation options %+v", domain.ErrValidation, o)
	}
	if o.InitialCapital <= 0 || o.DefaultVolatility < 0 {
		return fmt.Errorf("%w: invalid simulation options %+v", domain.ErrValidation, o)
	}
	return nil
}

type SimulationInput struct {
	Holdings    []domain.Holding
	Allocation  domain.BlendedAllocation
	HorizonDays int
	History     map[string]domain.PriceSeries
	Benchmark   *domain.PriceSeries
	// revalues holdings when present
	LatestPrices map[string]decimal.Decimal
	RiskFreeRate float64
	// start of a projected path; today when zero
	AsOf time.Time
}

type SimulationService interface {
	Simulate(ctx context.Context, in SimulationInput) (*domain.SimulationResult, error)
	SimulateHistorical(ctx context.Context, in SimulationInput) (*domain.SimulationResult, error)
}

type simulationServiceHandler struct {
	Options SimulationOptions
}

func NewSimulationService(opts SimulationOptions) SimulationService {
	return simulationServiceHandler{Options: opts}
}

// Simulate replays history when every held and recommended instrument
// covers the horizon and projects a seeded path otherwise.
func (h simulationServiceHandler) Simulate(ctx context.Context, in SimulationInput) (*domain.SimulationResult, error) {
	return h.simulate(ctx, in, false)
}

// SimulateHistorical replays history over whichever instruments cover the
// horizon, renormalizing each leg over them.
func (h simulationServiceHandler) SimulateHistorical(ctx context.Context, in SimulationInput) (*domain.SimulationResult, error) {
	return h.simulate(ctx, in, true)
}

func (h simulationServiceHandler) simulate(ctx context.Context, in SimulationInput, forceHistorical bool) (*domain.SimulationResult, error) {
	log := logger.FromContext(ctx)
	_, endSpan := domain.GetProfile(ctx).StartNewSpan("simulate")
	defer endSpan()

	if err := h.Options.validate(); err != nil {
		return nil, err
	}
	if in.HorizonDays <= 0 {
		return nil, fmt.Errorf("%w: horizon must be positive, got %d days", domain.ErrInsufficientData, in.HorizonDays)
	}
	if in.HorizonDays > h.Options.MaxHorizonDays {
		return nil, fmt.Errorf("%w: horizon of %d days exceeds the %d day limit", domain.ErrValidation, in.HorizonDays, h.Options.MaxHorizonDays)
	}
	if math.IsNaN(in.RiskFreeRate) || math.IsInf(in.RiskFreeRate, 0) {
		return nil, fmt.Errorf("%w: invalid risk free rate %v", domain.ErrValidation, in.RiskFreeRate)
	}
	if err := validateAllocation(in.Allocation); err != nil {
		return nil, err
	}

	currentWeights, err := currentWeights(in.Holdings, in.LatestPrices)
	if err != nil {
		return nil, err
	}
	recommendedWeights := in.Allocation.Weights

	asOf := in.AsOf
	if asOf.IsZero() {
		asOf = util.StartOfDay(time.Now())
	}

	plan, notes, err := planSimulation(planInput{
		symbols:     unionSymbols(currentWeights, recommendedWeights),
		history:     in.History,
		horizonDays: in.HorizonDays,
		asOf:        asOf,
		declared:    in.Allocation.Metrics,
		recommended: recommendedWeights,
		benchmark:   in.Benchmark,
		force:       forceHistorical,
	}, h.Options)
	if err != nil {
		return nil, err
	}
	log.Infof("simulating %d days in %s mode", in.HorizonDays, plan.Mode())

	result := &domain.SimulationResult{
		Mode:        plan.Mode(),
		HorizonDays: in.HorizonDays,
		Warnings:    notes,
	}

	current, err := h.runLeg(ctx, plan, restrictWeights(currentWeights, plan), in)
	if err != nil {
		return nil, fmt.Errorf("failed to simulate current portfolio: %w", err)
	}
	recommended, err := h.runLeg(ctx, plan, restrictWeights(recommendedWeights, plan), in)
	if err != nil {
		return nil, fmt.Errorf("failed to simulate recommended portfolio: %w", err)
	}
	result.Current = *current
	result.Recommended = *recommended
	result.Comparison = calculator.Compare(recommended.Metrics, current.Metrics)

	legs := []namedLeg{
		{"current", current.Metrics},
		{"recommended", recommended.Metrics},
	}

	if in.Benchmark != nil {
		if plan.has(benchmarkKey) {
			benchmark, err := h.runLeg(ctx, plan, map[string]float64{benchmarkKey: 1}, in)
			if err != nil {
				return nil, fmt.Errorf("failed to simulate benchmark: %w", err)
			}
			comparison := calculator.Compare(recommended.Metrics, benchmark.Metrics)
			result.Benchmark = benchmark
			result.BenchmarkComparison = &comparison
			legs = append(legs, namedLeg{"benchmark", benchmark.Metrics})
		} else {
			result.Warnings = append(result.Warnings, "benchmark history does not cover the horizon and was left out")
		}
	}

	result.Stress = applyStressScenarios(legs, in.RiskFreeRate)

	return result, nil
}

func (h simulationServiceHandler) runLeg(ctx context.Context, plan simulationPlan, weights map[string]float64, in SimulationInput) (*domain.LegResult, error) {
	series, err := plan.simulateLeg(ctx, weights)
	if err != nil {
		return nil, err
	}
	values := make([]float64, len(series))
	for i, pt := range series {
		values[i] = pt.Value
	}
	metrics, err := calculator.CalculateMetrics(calculator.CalculateMetricsInput{
		Values:         values,
		HorizonDays:    in.HorizonDays,
		PeriodsPerYear: h.Options.PeriodsPerYear,
		RiskFreeRate:   in.RiskFreeRate,
	})
	if err != nil {
		return nil, err
	}
	return &domain.LegResult{
		Metrics: *metrics,
		Series:  series,
	}, nil
}

func validateAllocation(a domain.BlendedAllocation) error {
	if len(a.Weights) == 0 {
		return fmt.Errorf("%w: recommended allocation is empty", domain.ErrValidation)
	}
	s := domain.Strategy{ID: "recommended", TargetAllocation: a.Weights}
	return s.ValidateAllocation()
}

// currentWeights values holdings at the latest prices where known and at
// their own price otherwise.
func currentWeights(holdings []domain.Holding, latest map[string]decimal.Decimal) (map[string]float64, error) {
	portfolio, err := domain.NewPortfolio(domain.RevalueHoldings(holdings, latest))
	if err != nil {
		return nil, err
	}
	return portfolio.Weights()
}

func unionSymbols(legs ...map[string]float64) []string {
	set := map[string]bool{}
	for _, weights := range legs {
		for symbol, w := range weights {
			if w > 0 {
				set[symbol] = true
			}
		}
	}
	out := make([]string, 0, len(set))
	for symbol := range set {
		out = append(out, symbol)
	}
	sort.Strings(out)
	return out
}

// restrictWeights drops instruments the plan cannot price and renormalizes
// the rest. A leg with nothing left is held in cash.
func restrictWeights(weights map[string]float64, plan simulationPlan) map[string]float64 {
	total := 0.0
	for _, symbol := range sortedSymbols(weights) {
		if plan.has(symbol) {
			total += weights[symbol]
		}
	}
	out := map[string]float64{}
	if total <= 0 {
		return out
	}
	for _, symbol := range sortedSymbols(weights) {
		if plan.has(symbol) {
			out[symbol] = weights[symbol] / total
		}
	}
	return out
}
