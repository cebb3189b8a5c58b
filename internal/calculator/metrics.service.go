package calculator

import (
	"fmt"
	"math"

	"rebalanceadvisor/internal/domain"

	"github.com/montanaflynn/stats"
)

// overall score weights, used for display ranking only
const (
	sharpeScoreWeight   = 0.4
	returnScoreWeight   = 0.3
	drawdownScoreWeight = 0.3
)

type CalculateMetricsInput struct {
	// portfolio values, one per period, oldest first
	Values         []float64
	HorizonDays    int
	PeriodsPerYear int
	RiskFreeRate   float64
}

// CalculateMetrics computes realized performance metrics for a value
// series. Degenerate inputs are reported as ErrInsufficientData rather
// than producing NaN or Inf.
func CalculateMetrics(in CalculateMetricsInput) (*domain.PerformanceMetrics, error) {
	if in.HorizonDays <= 0 {
		return nil, fmt.Errorf("%w: horizon must be positive, got %d days", domain.ErrInsufficientData, in.HorizonDays)
	}
	if len(in.Values) < 2 {
		return nil, fmt.Errorf("%w: cannot calculate metrics on %d value(s)", domain.ErrInsufficientData, len(in.Values))
	}
	startValue := in.Values[0]
	endValue := in.Values[len(in.Values)-1]
	if startValue <= 0 || math.IsNaN(startValue) || math.IsNaN(endValue) {
		return nil, fmt.Errorf("%w: invalid start value %f", domain.ErrInsufficientData, startValue)
	}
	periodsPerYear := in.PeriodsPerYear
	if periodsPerYear <= 0 {
		periodsPerYear = 252
	}

	returns := PeriodReturns(in.Values)

	totalReturn := endValue/startValue - 1
	annualizedReturn := AnnualizeReturn(totalReturn, in.HorizonDays)

	volatility := 0.0
	if len(returns) >= 2 {
		stdev, err := stats.StandardDeviationSample(returns)
		if err != nil {
			return nil, fmt.Errorf("failed to calculate stdev: %w", err)
		}
		volatility = stdev * math.Sqrt(float64(periodsPerYear))
	}

	sharpeRatio := 0.0
	if volatility > 0 {
		sharpeRatio = (annualizedReturn - in.RiskFreeRate) / volatility
	}

	maxDrawdown := MaxDrawdown(in.Values)

	winRate := 0.0
	if len(returns) > 0 {
		wins := 0
		for _, r := range returns {
			if r > 0 {
				wins++
			}
		}
		winRate = float64(wins) / float64(len(returns))
	}

	sortino := 0.0
	if dd := downsideDeviation(returns) * math.Sqrt(float64(periodsPerYear)); dd > 0 {
		sortino = (annualizedReturn - in.RiskFreeRate) / dd
	}

	calmar := 0.0
	if maxDrawdown < 0 {
		calmar = annualizedReturn / math.Abs(maxDrawdown)
	}

	var valueAtRisk, best, worst float64
	if len(returns) > 0 {
		var err error
		valueAtRisk, err = stats.PercentileNearestRank(returns, 5)
		if err != nil {
			return nil, fmt.Errorf("failed to calculate value at risk: %w", err)
		}
		best, _ = stats.Max(returns)
		worst, _ = stats.Min(returns)
	}

	out := &domain.PerformanceMetrics{
		TotalReturn:      totalReturn,
		AnnualizedReturn: annualizedReturn,
		Volatility:       volatility,
		MaxDrawdown:      maxDrawdown,
		SharpeRatio:      sharpeRatio,
		WinRate:          winRate,
		SortinoRatio:     sortino,
		CalmarRatio:      calmar,
		ValueAtRisk95:    valueAtRisk,
		BestPeriod:       best,
		WorstPeriod:      worst,
	}
	if err := checkFinite(out); err != nil {
		return nil, err
	}

	return out, nil
}

// AnnualizeReturn compounds a total return over horizonDays to a yearly
// rate. A 365 day horizon returns totalReturn unchanged.
func AnnualizeReturn(totalReturn float64, horizonDays int) float64 {
	if horizonDays == 365 {
		return totalReturn
	}
	return math.Pow(1+totalReturn, 365/float64(horizonDays)) - 1
}

// PeriodReturns returns the simple return between consecutive values,
// skipping periods that start from a non-positive value.
func PeriodReturns(values []float64) []float64 {
	returns := []float64{}
	for i := 1; i < len(values); i++ {
		if values[i-1] <= 0 {
			continue
		}
		returns = append(returns, values[i]/values[i-1]-1)
	}
	return returns
}

// MaxDrawdown is the worst peak-to-trough decline, always <= 0.
func MaxDrawdown(values []float64) float64 {
	maxDrawdown := 0.0
	runningMax := math.Inf(-1)
	for _, v := range values {
		if v > runningMax {
			runningMax = v
		}
		if runningMax <= 0 {
			continue
		}
		if dd := v/runningMax - 1; dd < maxDrawdown {
			maxDrawdown = dd
		}
	}
	return maxDrawdown
}

func downsideDeviation(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	sum := 0.0
	for _, r := range returns {
		if r < 0 {
			sum += r * r
		}
	}
	return math.Sqrt(sum / float64(len(returns)))
}

func checkFinite(m *domain.PerformanceMetrics) error {
	values := map[string]float64{
		"totalReturn":      m.TotalReturn,
		"annualizedReturn": m.AnnualizedReturn,
		"volatility":       m.Volatility,
		"maxDrawdown":      m.MaxDrawdown,
		"sharpeRatio":      m.SharpeRatio,
		"sortinoRatio":     m.SortinoRatio,
		"calmarRatio":      m.CalmarRatio,
	}
	for name, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s is not finite", domain.ErrInsufficientData, name)
		}
	}
	return nil
}

// Compare returns recommended minus other for every metric, plus the
// display score 0.4*sharpe + 0.3*annual return + 0.3*drawdown improvement.
func Compare(recommended, other domain.PerformanceMetrics) domain.Comparison {
	c := domain.Comparison{
		TotalReturnDelta:   recommended.TotalReturn - other.TotalReturn,
		AnnualReturnDelta:  recommended.AnnualizedReturn - other.AnnualizedReturn,
		VolatilityDelta:    recommended.Volatility - other.Volatility,
		MaxDrawdownDelta:   recommended.MaxDrawdown - other.MaxDrawdown,
		SharpeDelta:        recommended.SharpeRatio - other.SharpeRatio,
		WinRateDelta:       recommended.WinRate - other.WinRate,
		SortinoDelta:       recommended.SortinoRatio - other.SortinoRatio,
		CalmarDelta:        recommended.CalmarRatio - other.CalmarRatio,
		ValueAtRisk95Delta: recommended.ValueAtRisk95 - other.ValueAtRisk95,
	}
	c.OverallScore = sharpeScoreWeight*c.SharpeDelta +
		returnScoreWeight*c.AnnualReturnDelta +
		drawdownScoreWeight*c.MaxDrawdownDelta
	return c
}
