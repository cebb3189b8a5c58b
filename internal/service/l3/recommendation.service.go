package l3_service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"rebalanceadvisor/internal/config"
	"rebalanceadvisor/internal/domain"
	"rebalanceadvisor/internal/logger"
	"rebalanceadvisor/internal/repository"
	l1_service "rebalanceadvisor/internal/service/l1"
	l2_service "rebalanceadvisor/internal/service/l2"
	"rebalanceadvisor/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// equal-weight defaults used when no catalog strategy is eligible
var fallbackSymbols = map[domain.RiskTolerance][]string{
	domain.RiskTolerance_Conservative: {"AGG", "BND", "GLD", "TIP", "VTI"},
	domain.RiskTolerance_Moderate:     {"BND", "GLD", "VEA", "VNQ", "VTI"},
	domain.RiskTolerance_Aggressive:   {"IWM", "QQQ", "VUG", "VTI", "VWO"},
}

// extra days of history loaded before the window so the first day can be
// forward filled across weekends and holidays
const historyLookbackBufferDays = 10

type RecommendationOptions struct {
	Match                 l2_service.MatchOptions
	Blend                 l2_service.BlendOptions
	MinConfidence         float64
	MinTradeThresholdPct  float64
	DefaultReferencePrice decimal.Decimal
}

func NewRecommendationOptions(c config.EngineConfig) RecommendationOptions {
	return RecommendationOptions{
		Match: l2_service.MatchOptions{
			ConcentrationThreshold: c.ConcentrationThreshold,
		},
		Blend: l2_service.BlendOptions{
			TopK:          c.TopK,
			MinWeight:     c.MinWeight,
			MaxWeight:     c.MaxWeight,
			MaxIterations: c.MaxIterations,
		},
		MinConfidence:         c.MinConfidence,
		MinTradeThresholdPct:  c.MinTradeThresholdPct,
		DefaultReferencePrice: decimal.NewFromFloat(c.DefaultReferencePrice),
	}
}

type RecommendationInput struct {
	Profile domain.UserProfile
	// loaded from the holdings store when nil and UserID is set
	Holdings []domain.Holding
	UserID   string
	// defaults to the market value of the holdings
	TotalPortfolioValue *decimal.Decimal
}

type RunSimulationInput struct {
	// loaded from the holdings store when nil and UserID is set
	Holdings        []domain.Holding
	UserID          string
	Allocation      domain.BlendedAllocation
	HorizonDays     int
	BenchmarkSymbol string
	// end of the simulated window; today when zero
	AsOf            time.Time
	ForceHistorical bool
}

type RecommendationService interface {
	GenerateRecommendation(ctx context.Context, in RecommendationInput) (*domain.Recommendation, error)
	RunSimulation(ctx context.Context, in RunSimulationInput) (*domain.SimulationResult, error)
}

type recommendationServiceHandler struct {
	CatalogService      l1_service.CatalogService
	PriceService        l1_service.PriceService
	RiskFreeRateService l1_service.RiskFreeRateService
	HoldingsRepository  repository.HoldingsRepository
	MatcherService      l2_service.MatcherService
	BlenderService      l2_service.BlenderService
	RebalanceService    l2_service.RebalanceService
	SimulationService   SimulationService
	Options             RecommendationOptions
	Now                 func() time.Time
}

func NewRecommendationService(
	catalogService l1_service.CatalogService,
	priceService l1_service.PriceService,
	riskFreeRateService l1_service.RiskFreeRateService,
	holdingsRepository repository.HoldingsRepository,
	simulationService SimulationService,
	opts RecommendationOptions,
) RecommendationService {
	return recommendationServiceHandler{
		CatalogService:      catalogService,
		PriceService:        priceService,
		RiskFreeRateService: riskFreeRateService,
		HoldingsRepository:  holdingsRepository,
		MatcherService:      l2_service.NewMatcherService(),
		BlenderService:      l2_service.NewBlenderService(),
		RebalanceService:    l2_service.NewRebalanceService(),
		SimulationService:   simulationService,
		Options:             opts,
		Now:                 time.Now,
	}
}

// GenerateRecommendation matches the profile against the catalog, blends
// the eligible matches and diffs the result against the holdings. With no
// eligible strategy the allocation is an equal-weight default flagged as
// a fallback.
func (h recommendationServiceHandler) GenerateRecommendation(ctx context.Context, in RecommendationInput) (*domain.Recommendation, error) {
	log := logger.FromContext(ctx)
	profile := domain.GetProfile(ctx)

	userProfile, err := in.Profile.Normalize()
	if err != nil {
		return nil, err
	}
	in.Profile = userProfile

	holdings, err := h.resolveHoldings(ctx, in.Holdings, in.UserID)
	if err != nil {
		return nil, err
	}

	_, endSpan := profile.StartNewSpan("load catalog")
	catalog, err := h.CatalogService.Snapshot(ctx)
	endSpan()
	if err != nil {
		return nil, fmt.Errorf("failed to load strategy catalog: %w", err)
	}
	strategies := catalog.All()

	_, endSpan = profile.StartNewSpan("match strategies")
	matched, err := h.MatcherService.Match(ctx, in.Profile, strategies, h.Options.Match)
	endSpan()
	if err != nil {
		return nil, fmt.Errorf("failed to match strategies: %w", err)
	}
	warnings := append([]string{}, matched.Warnings...)

	eligible := []domain.MatchResult{}
	for _, m := range matched.Results {
		if m.ConfidenceScore >= h.Options.MinConfidence {
			eligible = append(eligible, m)
		}
	}

	_, endSpan = profile.StartNewSpan("blend strategies")
	allocation, err := h.BlenderService.Blend(ctx, eligible, strategies, h.Options.Blend)
	endSpan()
	if errors.Is(err, domain.ErrNoEligibleStrategy) {
		reason := fmt.Sprintf(
			"no strategy reached the minimum confidence of %.2f; using an equal-weight default for a %s profile",
			h.Options.MinConfidence,
			in.Profile.RiskTolerance,
		)
		log.Warnf("falling back to default allocation: %v", err)
		allocation = fallbackAllocation(in.Profile.RiskTolerance, reason)
		warnings = append(warnings, reason)
	} else if err != nil {
		return nil, fmt.Errorf("failed to blend strategies: %w", err)
	}

	symbols := append(allocation.Symbols(), heldSymbols(holdings)...)
	latestPrices, err := h.PriceService.LoadLatestPrices(ctx, symbols)
	if err != nil {
		// the diff falls back to holding and default prices and flags them
		log.Warnf("continuing without latest prices: %v", err)
		latestPrices = map[string]decimal.Decimal{}
		warnings = append(warnings, "latest prices unavailable; trade sizes use holding or default prices")
	}

	holdings = domain.RevalueHoldings(holdings, latestPrices)
	totalValue, err := totalPortfolioValue(in.TotalPortfolioValue, holdings)
	if err != nil {
		return nil, err
	}

	_, endSpan = profile.StartNewSpan("diff holdings")
	actions, err := h.RebalanceService.Diff(ctx, l2_service.DiffInput{
		Holdings:              holdings,
		Allocation:            *allocation,
		TotalPortfolioValue:   totalValue,
		MinTradeThresholdPct:  h.Options.MinTradeThresholdPct,
		LatestPrices:          latestPrices,
		DefaultReferencePrice: h.Options.DefaultReferencePrice,
	})
	endSpan()
	if err != nil {
		return nil, fmt.Errorf("failed to compute rebalance actions: %w", err)
	}
	for _, a := range actions {
		if a.PriceFallback {
			warnings = append(warnings, fmt.Sprintf("no price for %s; sized at the default reference price %s", a.Symbol, a.ReferencePrice.String()))
		}
	}

	return &domain.Recommendation{
		RecommendationID: uuid.New(),
		CreatedAt:        h.Now().UTC(),
		Profile:          in.Profile,
		Analysis:         in.Profile.Analyze(),
		MatchResults:     matched.Results,
		Allocation:       *allocation,
		Actions:          actions,
		Warnings:         warnings,
	}, nil
}

func totalPortfolioValue(requested *decimal.Decimal, holdings []domain.Holding) (decimal.Decimal, error) {
	if requested != nil {
		if !requested.IsPositive() {
			return decimal.Zero, fmt.Errorf("%w: total portfolio value must be positive, got %s", domain.ErrValidation, requested.String())
		}
		return *requested, nil
	}
	total := decimal.Zero
	for _, holding := range holdings {
		total = total.Add(holding.MarketValue())
	}
	if !total.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: holdings have no market value and no total portfolio value was given", domain.ErrValidation)
	}
	return total, nil
}

// resolveHoldings returns the given holdings, or the stored holdings of
// userID when none were given, normalized.
func (h recommendationServiceHandler) resolveHoldings(ctx context.Context, holdings []domain.Holding, userID string) ([]domain.Holding, error) {
	if holdings == nil && userID != "" {
		if h.HoldingsRepository == nil {
			return nil, fmt.Errorf("%w: no holdings store configured to look up user %s", domain.ErrValidation, userID)
		}
		_, endSpan := domain.GetProfile(ctx).StartNewSpan("load holdings")
		loaded, err := h.HoldingsRepository.GetHoldings(ctx, userID)
		endSpan()
		if err != nil {
			return nil, fmt.Errorf("failed to get holdings for user %s: %w", userID, err)
		}
		holdings = loaded
	}
	return normalizeHoldings(holdings), nil
}

// RunSimulation loads history for every instrument in the holdings, the
// allocation and the benchmark, then simulates the horizon ending at AsOf.
func (h recommendationServiceHandler) RunSimulation(ctx context.Context, in RunSimulationInput) (*domain.SimulationResult, error) {
	log := logger.FromContext(ctx)

	if in.HorizonDays <= 0 {
		return nil, fmt.Errorf("%w: horizon must be positive, got %d days", domain.ErrInsufficientData, in.HorizonDays)
	}

	asOf := in.AsOf
	if asOf.IsZero() {
		asOf = h.Now()
	}
	asOf = util.StartOfDay(asOf)

	holdings, err := h.resolveHoldings(ctx, in.Holdings, in.UserID)
	if err != nil {
		return nil, err
	}
	in.Allocation.Weights = normalizeWeights(in.Allocation.Weights)
	benchmarkSymbol := strings.ToUpper(strings.TrimSpace(in.BenchmarkSymbol))

	symbols := append(in.Allocation.Symbols(), heldSymbols(holdings)...)
	if benchmarkSymbol != "" {
		symbols = append(symbols, benchmarkSymbol)
	}

	history, err := h.PriceService.LoadHistory(ctx, symbols, domain.DateRange{
		Start: asOf.AddDate(0, 0, -(in.HorizonDays + historyLookbackBufferDays)),
		End:   asOf,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load price history: %w", err)
	}

	latestPrices, err := h.PriceService.LoadLatestPrices(ctx, heldSymbols(holdings))
	if err != nil {
		log.Warnf("valuing holdings at their own prices: %v", err)
		latestPrices = nil
	}

	var benchmark *domain.PriceSeries
	if benchmarkSymbol != "" {
		series, ok := history.Series[benchmarkSymbol]
		if !ok {
			series = domain.PriceSeries{Symbol: benchmarkSymbol}
		}
		benchmark = &series
	}

	simulationInput := SimulationInput{
		Holdings:     holdings,
		Allocation:   in.Allocation,
		HorizonDays:  in.HorizonDays,
		History:      history.Series,
		Benchmark:    benchmark,
		LatestPrices: latestPrices,
		RiskFreeRate: h.RiskFreeRateService.GetRiskFreeRate(ctx, asOf, in.HorizonDays),
		AsOf:         asOf,
	}

	var result *domain.SimulationResult
	if in.ForceHistorical {
		result, err = h.SimulationService.SimulateHistorical(ctx, simulationInput)
	} else {
		result, err = h.SimulationService.Simulate(ctx, simulationInput)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to simulate: %w", err)
	}

	if result.Mode == domain.SimulationMode_Projected {
		warning := "not enough price history for a backtest; results are projected from declared or default return assumptions"
		if len(history.Missing) > 0 {
			warning = fmt.Sprintf("%s (no history for %s)", warning, strings.Join(history.Missing, ", "))
		}
		result.Warnings = append([]string{warning}, result.Warnings...)
	}
	log.Infof("simulation finished in %s mode with %d warnings", result.Mode, len(result.Warnings))

	return result, nil
}

func fallbackAllocation(tolerance domain.RiskTolerance, reason string) *domain.BlendedAllocation {
	symbols, ok := fallbackSymbols[tolerance]
	if !ok {
		symbols = fallbackSymbols[domain.RiskTolerance_Moderate]
	}
	weights := map[string]float64{}
	for _, symbol := range symbols {
		weights[symbol] = 1 / float64(len(symbols))
	}
	return &domain.BlendedAllocation{
		Weights:        weights,
		Contributors:   []domain.BlendContributor{},
		Fallback:       true,
		FallbackReason: reason,
	}
}

func normalizeHoldings(holdings []domain.Holding) []domain.Holding {
	out := make([]domain.Holding, 0, len(holdings))
	for _, holding := range holdings {
		holding.Symbol = strings.ToUpper(strings.TrimSpace(holding.Symbol))
		out = append(out, holding)
	}
	return out
}

// normalizeWeights upper-cases symbols, merging any that collide.
func normalizeWeights(weights map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(weights))
	for symbol, w := range weights {
		out[strings.ToUpper(strings.TrimSpace(symbol))] += w
	}
	return out
}

func heldSymbols(holdings []domain.Holding) []string {
	out := make([]string, 0, len(holdings))
	for _, holding := range holdings {
		out = append(out, holding.Symbol)
	}
	return out
}
