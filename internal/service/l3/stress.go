package l3_service

import (
	"math"

	"rebalanceadvisor/internal/domain"
)

type stressScenario struct {
	Name string
	// added to the annual return; drawdown is floored at 1.2x the drop
	MarketDrop float64
	// multiplies volatility when above 0
	VolatilityMultiplier float64
	// diversification breaks down: volatility x1.2, drawdown x1.1
	CorrelationIncrease bool
}

// Sector, bond and emerging market shocks are applied as market-wide drops.
// Flight to safety is modeled as a correlation increase.
var stressScenarios = []stressScenario{
	{Name: "market_crash_2008", MarketDrop: -0.35, CorrelationIncrease: true},
	{Name: "covid_crash_2020", MarketDrop: -0.30, VolatilityMultiplier: 3.0},
	{Name: "tech_bubble_burst", MarketDrop: -0.50},
	{Name: "inflation_shock", MarketDrop: -0.20},
	{Name: "geopolitical_crisis", MarketDrop: -0.25, CorrelationIncrease: true},
}

type namedLeg struct {
	Name    string
	Metrics domain.PerformanceMetrics
}

// applyStressScenarios shocks each leg's metrics with every scenario, in
// scenario order then leg order.
func applyStressScenarios(legs []namedLeg, riskFreeRate float64) []domain.StressResult {
	out := make([]domain.StressResult, 0, len(stressScenarios)*len(legs))
	for _, scenario := range stressScenarios {
		for _, leg := range legs {
			out = append(out, applyStress(scenario, leg, riskFreeRate))
		}
	}
	return out
}

func applyStress(s stressScenario, leg namedLeg, riskFreeRate float64) domain.StressResult {
	m := leg.Metrics
	annualReturn := m.AnnualizedReturn
	volatility := m.Volatility
	drawdown := m.MaxDrawdown

	if s.MarketDrop != 0 {
		annualReturn += s.MarketDrop
		drawdown = math.Min(drawdown, s.MarketDrop*1.2)
	}
	if s.VolatilityMultiplier > 0 {
		volatility *= s.VolatilityMultiplier
	}
	if s.CorrelationIncrease {
		volatility *= 1.2
		drawdown = math.Max(-1, drawdown*1.1)
	}

	sharpe := 0.0
	if volatility > 0 {
		sharpe = (annualReturn - riskFreeRate) / volatility
	}

	return domain.StressResult{
		Scenario:             s.Name,
		Leg:                  leg.Name,
		StressedAnnualReturn: annualReturn,
		StressedVolatility:   volatility,
		StressedMaxDrawdown:  drawdown,
		StressedSharpe:       sharpe,
		ReturnImpact:         annualReturn - m.AnnualizedReturn,
		VolatilityImpact:     volatility - m.Volatility,
		DrawdownImpact:       drawdown - m.MaxDrawdown,
	}
}
