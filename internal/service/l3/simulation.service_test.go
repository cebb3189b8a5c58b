package l3_service

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"rebalanceadvisor/internal/domain"
	"rebalanceadvisor/internal/util"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// dailySeries builds n consecutive daily points starting at start.
func dailySeries(symbol string, start time.Time, n int, price func(i int) float64) domain.PriceSeries {
	points := make([]domain.PricePoint, n)
	for i := range points {
		points[i] = domain.PricePoint{Date: start.AddDate(0, 0, i), Price: price(i)}
	}
	return domain.PriceSeries{Symbol: symbol, Points: points}
}

func tenDollarHolding(symbol string, quantity int64) domain.Holding {
	return domain.Holding{
		Symbol:       symbol,
		Quantity:     decimal.NewFromInt(quantity),
		CurrentPrice: decimal.NewFromInt(10),
		Currency:     "USD",
	}
}

func requireSaneMetrics(t *testing.T, m domain.PerformanceMetrics) {
	t.Helper()
	require.LessOrEqual(t, m.MaxDrawdown, 0.0)
	require.GreaterOrEqual(t, m.WinRate, 0.0)
	require.LessOrEqual(t, m.WinRate, 1.0)
	for _, v := range []float64{m.TotalReturn, m.AnnualizedReturn, m.Volatility, m.SharpeRatio, m.SortinoRatio, m.CalmarRatio} {
		require.False(t, math.IsNaN(v) || math.IsInf(v, 0))
	}
}

func Test_simulationServiceHandler_Simulate(t *testing.T) {
	ctx := context.Background()
	handler := NewSimulationService(DefaultSimulationOptions())
	start := util.NewDate(2023, 1, 1)
	asOf := util.NewDate(2024, 2, 4)

	history := map[string]domain.PriceSeries{
		"A": dailySeries("A", start, 400, func(i int) float64 { return 100 + 0.1*float64(i) }),
		"B": dailySeries("B", start, 400, func(i int) float64 { return 50 + 5*math.Sin(float64(i)/15) }),
	}

	t.Run("zero horizon is insufficient data", func(t *testing.T) {
		_, err := handler.Simulate(ctx, SimulationInput{
			Allocation:  domain.BlendedAllocation{Weights: map[string]float64{"A": 1}},
			HorizonDays: 0,
			History:     history,
		})
		require.True(t, errors.Is(err, domain.ErrInsufficientData))
	})

	t.Run("horizon above the limit is rejected", func(t *testing.T) {
		_, err := handler.Simulate(ctx, SimulationInput{
			Allocation:  domain.BlendedAllocation{Weights: map[string]float64{"A": 1}},
			HorizonDays: 3651,
		})
		require.True(t, errors.Is(err, domain.ErrValidation))
	})

	t.Run("invalid allocation is rejected", func(t *testing.T) {
		_, err := handler.Simulate(ctx, SimulationInput{
			Allocation:  domain.BlendedAllocation{Weights: map[string]float64{"A": 0.5}},
			HorizonDays: 30,
		})
		require.True(t, errors.Is(err, domain.ErrValidation))
	})

	t.Run("historical replay of a single instrument", func(t *testing.T) {
		result, err := handler.Simulate(ctx, SimulationInput{
			Allocation:  domain.BlendedAllocation{Weights: map[string]float64{"A": 1}},
			HorizonDays: 365,
			History:     history,
			AsOf:        asOf,
		})
		require.NoError(t, err)
		require.Equal(t, domain.SimulationMode_Historical, result.Mode)

		// window ends on day 399 and starts on day 34
		expected := (100+0.1*399)/(100+0.1*34) - 1
		require.InDelta(t, expected, result.Recommended.Metrics.TotalReturn, 1e-9)
		require.InDelta(t, result.Recommended.Metrics.TotalReturn, result.Recommended.Metrics.AnnualizedReturn, 1e-12)
		require.Equal(t, 0.0, result.Recommended.Metrics.MaxDrawdown)
		require.Equal(t, 1.0, result.Recommended.Metrics.WinRate)
		require.Len(t, result.Recommended.Series, 366)
		require.InDelta(t, 10000.0, result.Recommended.Series[0].Value, 1e-9)

		// no holdings: the current portfolio is cash
		require.Equal(t, 0.0, result.Current.Metrics.TotalReturn)
		require.Equal(t, 0.0, result.Current.Metrics.Volatility)
		require.InDelta(t, expected, result.Comparison.TotalReturnDelta, 1e-9)

		require.Len(t, result.Stress, 5*2)
		requireSaneMetrics(t, result.Recommended.Metrics)
	})

	t.Run("historical replay with rebalancing keeps metrics sane", func(t *testing.T) {
		result, err := handler.Simulate(ctx, SimulationInput{
			Holdings:    []domain.Holding{tenDollarHolding("B", 100)},
			Allocation:  domain.BlendedAllocation{Weights: map[string]float64{"A": 0.5, "B": 0.5}},
			HorizonDays: 300,
			History:     history,
		})
		require.NoError(t, err)
		require.Equal(t, domain.SimulationMode_Historical, result.Mode)
		requireSaneMetrics(t, result.Current.Metrics)
		requireSaneMetrics(t, result.Recommended.Metrics)
		require.Less(t, result.Current.Metrics.MaxDrawdown, 0.0)

		for i := 1; i < len(result.Recommended.Series); i++ {
			require.False(t, result.Recommended.Series[i].Date.Before(result.Recommended.Series[i-1].Date))
		}
	})

	t.Run("identical allocations compare as equal", func(t *testing.T) {
		holdings := []domain.Holding{tenDollarHolding("A", 60), tenDollarHolding("B", 40)}
		allocation := domain.BlendedAllocation{
			Weights: map[string]float64{"A": 0.6, "B": 0.4},
			Metrics: domain.AggregateMetrics{
				ExpectedReturn: util.FloatPointer(0.08),
				Volatility:     util.FloatPointer(0.12),
			},
		}

		for _, h := range []map[string]domain.PriceSeries{history, nil} {
			result, err := handler.Simulate(ctx, SimulationInput{
				Holdings:    holdings,
				Allocation:  allocation,
				HorizonDays: 180,
				History:     h,
				AsOf:        asOf,
			})
			require.NoError(t, err)
			require.Equal(t, "", cmp.Diff(domain.Comparison{}, result.Comparison))
			require.Equal(t, "", cmp.Diff(result.Current, result.Recommended))
		}
	})

	t.Run("projected path compounds the declared return", func(t *testing.T) {
		in := SimulationInput{
			Allocation: domain.BlendedAllocation{
				Weights: map[string]float64{"X": 0.5, "Y": 0.5},
				Metrics: domain.AggregateMetrics{
					ExpectedReturn: util.FloatPointer(0.08),
					Volatility:     util.FloatPointer(0.10),
				},
			},
			HorizonDays: 365,
			AsOf:        asOf,
		}
		result, err := handler.Simulate(ctx, in)
		require.NoError(t, err)
		require.Equal(t, domain.SimulationMode_Projected, result.Mode)
		require.InDelta(t, 0.08, result.Recommended.Metrics.TotalReturn, 1e-9)
		require.InDelta(t, result.Recommended.Metrics.TotalReturn, result.Recommended.Metrics.AnnualizedReturn, 1e-12)
		require.Greater(t, result.Recommended.Metrics.Volatility, 0.0)
		require.Len(t, result.Recommended.Series, 253)
		require.Equal(t, asOf, result.Recommended.Series[0].Date)
		require.Equal(t, asOf.AddDate(0, 0, 365), result.Recommended.Series[252].Date)
		requireSaneMetrics(t, result.Recommended.Metrics)
		require.NotEmpty(t, result.Warnings)

		again, err := handler.Simulate(ctx, in)
		require.NoError(t, err)
		require.Equal(t, "", cmp.Diff(result, again))
	})

	t.Run("projected path uses partial history", func(t *testing.T) {
		partial := map[string]domain.PriceSeries{
			"A": dailySeries("A", asOf.AddDate(0, 0, -60), 61, func(i int) float64 { return 100 * math.Pow(1.001, float64(i)) }),
		}
		result, err := handler.Simulate(ctx, SimulationInput{
			Allocation:  domain.BlendedAllocation{Weights: map[string]float64{"A": 1}},
			HorizonDays: 365,
			History:     partial,
			AsOf:        asOf,
		})
		require.NoError(t, err)
		require.Equal(t, domain.SimulationMode_Projected, result.Mode)
		require.InDelta(t, math.Pow(1.001, 365)-1, result.Recommended.Metrics.TotalReturn, 1e-6)
	})

	t.Run("forced historical leaves out uncovered instruments", func(t *testing.T) {
		in := SimulationInput{
			Allocation:  domain.BlendedAllocation{Weights: map[string]float64{"A": 0.5, "Z": 0.5}},
			HorizonDays: 365,
			History:     history,
		}
		result, err := handler.SimulateHistorical(ctx, in)
		require.NoError(t, err)
		require.Equal(t, domain.SimulationMode_Historical, result.Mode)
		require.Len(t, result.Warnings, 1)
		expected := (100+0.1*399)/(100+0.1*34) - 1
		require.InDelta(t, expected, result.Recommended.Metrics.TotalReturn, 1e-9)

		projected, err := handler.Simulate(ctx, in)
		require.NoError(t, err)
		require.Equal(t, domain.SimulationMode_Projected, projected.Mode)

		_, err = handler.SimulateHistorical(ctx, SimulationInput{
			Allocation:  domain.BlendedAllocation{Weights: map[string]float64{"Z": 1}},
			HorizonDays: 365,
			History:     history,
		})
		require.True(t, errors.Is(err, domain.ErrInsufficientData))
	})

	t.Run("benchmark leg", func(t *testing.T) {
		benchmark := dailySeries("SPY", start, 400, func(i int) float64 { return 400 + float64(i) })
		result, err := handler.Simulate(ctx, SimulationInput{
			Allocation:  domain.BlendedAllocation{Weights: map[string]float64{"A": 1}},
			HorizonDays: 365,
			History:     history,
			Benchmark:   &benchmark,
		})
		require.NoError(t, err)
		require.NotNil(t, result.Benchmark)
		require.NotNil(t, result.BenchmarkComparison)
		require.InDelta(t, 799.0/434.0-1, result.Benchmark.Metrics.TotalReturn, 1e-9)
		require.Len(t, result.Stress, 5*3)

		short := dailySeries("SPY", start.AddDate(0, 0, 200), 200, func(i int) float64 { return 400 })
		result, err = handler.Simulate(ctx, SimulationInput{
			Allocation:  domain.BlendedAllocation{Weights: map[string]float64{"A": 1}},
			HorizonDays: 365,
			History:     history,
			Benchmark:   &short,
		})
		require.NoError(t, err)
		require.Nil(t, result.Benchmark)
		require.Len(t, result.Warnings, 1)
	})

	t.Run("expired deadline times out", func(t *testing.T) {
		deadlineCtx, cancel := context.WithDeadline(ctx, time.Now().Add(-time.Second))
		defer cancel()
		_, err := handler.Simulate(deadlineCtx, SimulationInput{
			Allocation:  domain.BlendedAllocation{Weights: map[string]float64{"A": 1}},
			HorizonDays: 365,
			History:     history,
		})
		require.True(t, errors.Is(err, domain.ErrTimeout))
	})
}

func Test_applyStress(t *testing.T) {
	leg := namedLeg{
		Name: "recommended",
		Metrics: domain.PerformanceMetrics{
			AnnualizedReturn: 0.10,
			Volatility:       0.20,
			MaxDrawdown:      -0.10,
		},
	}

	t.Run("market crash with correlation increase", func(t *testing.T) {
		got := applyStress(stressScenarios[0], leg, 0.02)
		require.Equal(t, "market_crash_2008", got.Scenario)
		require.InDelta(t, -0.25, got.StressedAnnualReturn, 1e-12)
		require.InDelta(t, 0.24, got.StressedVolatility, 1e-12)
		require.InDelta(t, -0.462, got.StressedMaxDrawdown, 1e-12)
		require.InDelta(t, -0.27/0.24, got.StressedSharpe, 1e-12)
		require.InDelta(t, -0.35, got.ReturnImpact, 1e-12)
		require.InDelta(t, -0.362, got.DrawdownImpact, 1e-12)
	})

	t.Run("volatility spike", func(t *testing.T) {
		got := applyStress(stressScenarios[1], leg, 0)
		require.InDelta(t, 0.60, got.StressedVolatility, 1e-12)
		require.InDelta(t, -0.36, got.StressedMaxDrawdown, 1e-12)
	})

	t.Run("zero volatility has zero sharpe", func(t *testing.T) {
		cash := namedLeg{Name: "current"}
		got := applyStress(stressScenarios[2], cash, 0)
		require.Equal(t, 0.0, got.StressedSharpe)
		require.InDelta(t, -0.6, got.StressedMaxDrawdown, 1e-12)
	})

	t.Run("inflation shock only moves return and drawdown", func(t *testing.T) {
		got := applyStress(stressScenarios[3], leg, 0)
		require.Equal(t, "inflation_shock", got.Scenario)
		require.InDelta(t, -0.10, got.StressedAnnualReturn, 1e-12)
		require.InDelta(t, 0.20, got.StressedVolatility, 1e-12)
		require.InDelta(t, -0.24, got.StressedMaxDrawdown, 1e-12)
	})

	t.Run("every scenario for every leg", func(t *testing.T) {
		got := applyStressScenarios([]namedLeg{leg, {Name: "current"}}, 0)
		require.Len(t, got, len(stressScenarios)*2)
		require.Equal(t, "recommended", got[0].Leg)
		require.Equal(t, "current", got[1].Leg)
	})
}
