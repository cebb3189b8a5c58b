package l1_service

import (
	"context"
	"math"
	"sync"
	"time"

	"rebalanceadvisor/internal/logger"
	interestrate "rebalanceadvisor/pkg/interest_rate"
)

// RiskFreeRateService returns the annual risk-free rate used for sharpe
// and sortino ratios.
type RiskFreeRateService interface {
	GetRiskFreeRate(ctx context.Context, asOf time.Time, horizonDays int) float64
}

type YieldCurveClient interface {
	GetYieldCurve(ctx context.Context, date time.Time) (*interestrate.InterestRateMap, error)
}

type fixedRateServiceHandler struct {
	Rate float64
}

func NewFixedRiskFreeRateService(rate float64) RiskFreeRateService {
	return fixedRateServiceHandler{Rate: rate}
}

func (h fixedRateServiceHandler) GetRiskFreeRate(ctx context.Context, asOf time.Time, horizonDays int) float64 {
	return h.Rate
}

// treasuryRateServiceHandler reads the treasury yield at the maturity
// closest to the horizon. Lookup failures fall back to Fallback.
type treasuryRateServiceHandler struct {
	Client   YieldCurveClient
	Fallback float64

	mu     *sync.Mutex
	curves map[string]*interestrate.InterestRateMap
}

func NewTreasuryRiskFreeRateService(client YieldCurveClient, fallback float64) RiskFreeRateService {
	return treasuryRateServiceHandler{
		Client:   client,
		Fallback: fallback,
		mu:       &sync.Mutex{},
		curves:   map[string]*interestrate.InterestRateMap{},
	}
}

func (h treasuryRateServiceHandler) GetRiskFreeRate(ctx context.Context, asOf time.Time, horizonDays int) float64 {
	log := logger.FromContext(ctx)

	curve, err := h.curve(ctx, asOf)
	if err != nil {
		log.Warnf("failed to get yield curve for %s, using fallback rate %f: %v", asOf.Format(time.DateOnly), h.Fallback, err)
		return h.Fallback
	}

	months := int(math.Max(1, math.Round(float64(horizonDays)/30.44)))
	rate, err := curve.GetRate(months)
	if err != nil {
		log.Warnf("failed to read %d month rate, using fallback rate %f: %v", months, h.Fallback, err)
		return h.Fallback
	}
	return rate
}

func (h treasuryRateServiceHandler) curve(ctx context.Context, asOf time.Time) (*interestrate.InterestRateMap, error) {
	key := asOf.Format(time.DateOnly)

	h.mu.Lock()
	cached, ok := h.curves[key]
	h.mu.Unlock()
	if ok {
		return cached, nil
	}

	curve, err := h.Client.GetYieldCurve(ctx, asOf)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	h.curves[key] = curve
	h.mu.Unlock()
	return curve, nil
}
