package l3_service

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"rebalanceadvisor/internal/domain"
	"rebalanceadvisor/internal/util"

	"github.com/montanaflynn/stats"
)

// simulationPlan is either a historical replay or a seeded projection.
// planSimulation picks one from data availability; callers only see the
// interface.
type simulationPlan interface {
	Mode() domain.SimulationMode
	// simulateLeg produces the value series of a portfolio held at the
	// given weights. Empty weights mean the leg sits in cash.
	simulateLeg(ctx context.Context, weights map[string]float64) ([]domain.ValuePoint, error)
	// has reports whether the plan can price the instrument.
	has(symbol string) bool
}

type planInput struct {
	// instruments with positive weight in any portfolio leg
	symbols     []string
	history     map[string]domain.PriceSeries
	horizonDays int
	asOf        time.Time
	declared    domain.AggregateMetrics
	// instruments the declared metrics describe
	recommended map[string]float64
	benchmark   *domain.PriceSeries
	// force historical mode over whatever resolves
	force bool
}

// benchmarkKey names the benchmark inside a plan, apart from any held
// instrument with the same symbol.
const benchmarkKey = "benchmark:"

// planSimulation returns a historical plan when every instrument's history
// covers the horizon, a projected one otherwise. The string slice lists
// instruments left out or projected from fallbacks.
func planSimulation(in planInput, opts SimulationOptions) (simulationPlan, []string, error) {
	if in.horizonDays <= 0 {
		return nil, nil, fmt.Errorf("%w: horizon must be positive, got %d days", domain.ErrInsufficientData, in.horizonDays)
	}

	hp, notCovered := newHistoricalPlan(in, opts)
	if in.force {
		if hp == nil {
			return nil, nil, fmt.Errorf("%w: no instrument has history covering %d days", domain.ErrInsufficientData, in.horizonDays)
		}
		notes := []string{}
		for _, symbol := range notCovered {
			notes = append(notes, fmt.Sprintf("%s has no history covering the horizon and was left out", symbol))
		}
		return hp, notes, nil
	}
	if hp != nil && len(notCovered) == 0 {
		return hp, nil, nil
	}

	pp, notes := newProjectedPlan(in, opts)
	return pp, notes, nil
}

type historicalPlan struct {
	dates []time.Time
	// forward-filled price per instrument, aligned with dates
	prices                map[string][]float64
	rebalanceIntervalDays int
	initialCapital        float64
}

func (p historicalPlan) Mode() domain.SimulationMode {
	return domain.SimulationMode_Historical
}

func (p historicalPlan) has(symbol string) bool {
	_, ok := p.prices[symbol]
	return ok
}

// newHistoricalPlan aligns every instrument that covers the window on a
// union trading-day index. The window ends at the earliest last date
// across the instruments. Returns nil when nothing resolves.
func newHistoricalPlan(in planInput, opts SimulationOptions) (*historicalPlan, []string) {
	positive := map[string][]domain.PricePoint{}
	unresolved := []string{}
	for _, symbol := range in.symbols {
		points := positivePoints(in.history[symbol])
		if len(points) == 0 {
			unresolved = append(unresolved, symbol)
			continue
		}
		positive[symbol] = points
	}
	if len(positive) == 0 {
		return nil, unresolved
	}

	var end time.Time
	for _, points := range positive {
		last := points[len(points)-1].Date
		if end.IsZero() || last.Before(end) {
			end = last
		}
	}
	start := end.AddDate(0, 0, -in.horizonDays)

	covered := []string{}
	for _, symbol := range in.symbols {
		points, ok := positive[symbol]
		if !ok {
			continue
		}
		if points[0].Date.After(start) {
			unresolved = append(unresolved, symbol)
			continue
		}
		covered = append(covered, symbol)
	}
	sort.Strings(unresolved)
	if len(covered) == 0 {
		return nil, unresolved
	}

	dateSet := map[time.Time]bool{util.StartOfDay(start): true}
	for _, symbol := range covered {
		for _, pt := range positive[symbol] {
			d := util.StartOfDay(pt.Date)
			if !d.Before(util.StartOfDay(start)) && !d.After(util.StartOfDay(end)) {
				dateSet[d] = true
			}
		}
	}
	dates := make([]time.Time, 0, len(dateSet))
	for d := range dateSet {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	prices := map[string][]float64{}
	for _, symbol := range covered {
		prices[symbol] = alignPrices(positive[symbol], dates)
	}
	if in.benchmark != nil {
		points := positivePoints(*in.benchmark)
		if len(points) > 0 && !points[0].Date.After(start) && !points[len(points)-1].Date.Before(end) {
			prices[benchmarkKey] = alignPrices(points, dates)
		}
	}

	return &historicalPlan{
		dates:                 dates,
		prices:                prices,
		rebalanceIntervalDays: opts.RebalanceIntervalDays,
		initialCapital:        opts.InitialCapital,
	}, unresolved
}

// alignPrices forward fills points onto dates. The first point must be on
// or before the first date.
func alignPrices(points []domain.PricePoint, dates []time.Time) []float64 {
	out := make([]float64, len(dates))
	j := 0
	last := points[0].Price
	for i, d := range dates {
		for j < len(points) && !util.StartOfDay(points[j].Date).After(d) {
			last = points[j].Price
			j++
		}
		out[i] = last
	}
	return out
}

func positivePoints(series domain.PriceSeries) []domain.PricePoint {
	out := []domain.PricePoint{}
	for _, pt := range series.Points {
		if pt.Price > 0 && !math.IsNaN(pt.Price) && !math.IsInf(pt.Price, 0) {
			out = append(out, pt)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// simulateLeg buys the target weights on the first day and rebalances back
// to them every rebalanceIntervalDays.
func (p historicalPlan) simulateLeg(ctx context.Context, weights map[string]float64) ([]domain.ValuePoint, error) {
	symbols := sortedSymbols(weights)
	units := make([]float64, len(symbols))
	rebalance := func(i int, value float64) {
		for j, symbol := range symbols {
			units[j] = value * weights[symbol] / p.prices[symbol][i]
		}
	}

	value := p.initialCapital
	rebalance(0, value)
	lastRebalance := p.dates[0]
	interval := time.Duration(p.rebalanceIntervalDays) * 24 * time.Hour

	out := make([]domain.ValuePoint, len(p.dates))
	for i, date := range p.dates {
		if err := checkDeadline(ctx); err != nil {
			return nil, err
		}
		if len(symbols) > 0 {
			value = 0
			for j, symbol := range symbols {
				value += units[j] * p.prices[symbol][i]
			}
		}
		out[i] = domain.ValuePoint{Date: date, Value: value}

		if i > 0 && p.rebalanceIntervalDays > 0 && date.Sub(lastRebalance) >= interval {
			rebalance(i, value)
			lastRebalance = date
		}
	}
	return out, nil
}

type instrumentParams struct {
	AnnualReturn float64
	Volatility   float64
}

type projectedPlan struct {
	dates []time.Time
	// demeaned, unit-variance standard normal draws shared by every leg
	draws          []float64
	params         map[string]instrumentParams
	horizonDays    int
	periodsPerYear int
	initialCapital float64
}

func (p projectedPlan) Mode() domain.SimulationMode {
	return domain.SimulationMode_Projected
}

func (p projectedPlan) has(symbol string) bool {
	_, ok := p.params[symbol]
	return ok
}

// newProjectedPlan resolves return and volatility per instrument from its
// own history, then the declared blend metrics, then the defaults.
func newProjectedPlan(in planInput, opts SimulationOptions) (*projectedPlan, []string) {
	notes := []string{}
	params := map[string]instrumentParams{}
	for _, symbol := range in.symbols {
		if p, ok := paramsFromHistory(in.history[symbol], opts); ok {
			params[symbol] = p
			continue
		}
		if _, ok := in.recommended[symbol]; ok && (in.declared.ExpectedReturn != nil || in.declared.Volatility != nil) {
			p := instrumentParams{AnnualReturn: opts.DefaultExpectedReturn, Volatility: opts.DefaultVolatility}
			if in.declared.ExpectedReturn != nil {
				p.AnnualReturn = *in.declared.ExpectedReturn
			}
			if in.declared.Volatility != nil {
				p.Volatility = *in.declared.Volatility
			}
			params[symbol] = sanitizeParams(p, opts)
			notes = append(notes, fmt.Sprintf("%s projected from declared strategy metrics", symbol))
			continue
		}
		params[symbol] = instrumentParams{AnnualReturn: opts.DefaultExpectedReturn, Volatility: opts.DefaultVolatility}
		notes = append(notes, fmt.Sprintf("%s projected from default assumptions", symbol))
	}

	if in.benchmark != nil {
		if p, ok := paramsFromHistory(*in.benchmark, opts); ok {
			params[benchmarkKey] = p
		} else {
			params[benchmarkKey] = instrumentParams{AnnualReturn: opts.DefaultExpectedReturn, Volatility: opts.DefaultVolatility}
			notes = append(notes, "benchmark projected from default assumptions")
		}
	}

	steps := max(1, int(math.Round(float64(in.horizonDays)*float64(opts.PeriodsPerYear)/365)))
	dates := make([]time.Time, steps+1)
	for i := range dates {
		offset := int(math.Round(float64(i) * float64(in.horizonDays) / float64(steps)))
		dates[i] = in.asOf.AddDate(0, 0, offset)
	}

	return &projectedPlan{
		dates:          dates,
		draws:          standardDraws(opts.ProjectionSeed, steps),
		params:         params,
		horizonDays:    in.horizonDays,
		periodsPerYear: opts.PeriodsPerYear,
		initialCapital: opts.InitialCapital,
	}, notes
}

// paramsFromHistory annualizes a partial history. Needs MinHistoryPoints
// positive prices spanning at least one day.
func paramsFromHistory(series domain.PriceSeries, opts SimulationOptions) (instrumentParams, bool) {
	points := positivePoints(series)
	if len(points) < opts.MinHistoryPoints || len(points) < 2 {
		return instrumentParams{}, false
	}
	first, last := points[0], points[len(points)-1]
	days := last.Date.Sub(first.Date).Hours() / 24
	if days < 1 {
		return instrumentParams{}, false
	}

	values := make([]float64, len(points))
	for i, pt := range points {
		values[i] = pt.Price
	}
	returns := make([]float64, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		returns = append(returns, values[i]/values[i-1]-1)
	}
	stdev, err := stats.StandardDeviationSample(returns)
	if err != nil {
		return instrumentParams{}, false
	}

	p := instrumentParams{
		AnnualReturn: math.Pow(last.Price/first.Price, 365/days) - 1,
		Volatility:   stdev * math.Sqrt(float64(opts.PeriodsPerYear)),
	}
	if math.IsNaN(p.AnnualReturn) || math.IsInf(p.AnnualReturn, 0) || math.IsNaN(p.Volatility) || math.IsInf(p.Volatility, 0) {
		return instrumentParams{}, false
	}
	return sanitizeParams(p, opts), true
}

// sanitizeParams keeps the log-return finite.
func sanitizeParams(p instrumentParams, opts SimulationOptions) instrumentParams {
	if math.IsNaN(p.AnnualReturn) || math.IsInf(p.AnnualReturn, 0) {
		p.AnnualReturn = opts.DefaultExpectedReturn
	}
	if p.AnnualReturn <= -1 {
		p.AnnualReturn = -0.99
	}
	if math.IsNaN(p.Volatility) || math.IsInf(p.Volatility, 0) || p.Volatility < 0 {
		p.Volatility = opts.DefaultVolatility
	}
	return p
}

// standardDraws returns n seeded normal draws shifted to mean 0 and scaled
// to unit sample variance, so the path's total return is exactly the
// compounded drift.
func standardDraws(seed int64, n int) []float64 {
	r := rand.New(rand.NewSource(seed))
	draws := make([]float64, n)
	for i := range draws {
		draws[i] = r.NormFloat64()
	}
	mean, _ := stats.Mean(draws)
	for i := range draws {
		draws[i] -= mean
	}
	if n < 2 {
		return draws
	}
	stdev, err := stats.StandardDeviationSample(draws)
	if err != nil || stdev == 0 {
		return draws
	}
	for i := range draws {
		draws[i] /= stdev
	}
	return draws
}

// simulateLeg grows the leg along the shared draws with the weight
// averaged return and volatility of its instruments.
func (p projectedPlan) simulateLeg(ctx context.Context, weights map[string]float64) ([]domain.ValuePoint, error) {
	annualReturn, volatility := 0.0, 0.0
	for _, symbol := range sortedSymbols(weights) {
		params := p.params[symbol]
		annualReturn += weights[symbol] * params.AnnualReturn
		volatility += weights[symbol] * params.Volatility
	}

	steps := float64(len(p.draws))
	mu := float64(p.horizonDays) / 365 * math.Log1p(annualReturn) / steps
	sigma := volatility / math.Sqrt(float64(p.periodsPerYear))

	out := make([]domain.ValuePoint, len(p.dates))
	value := p.initialCapital
	out[0] = domain.ValuePoint{Date: p.dates[0], Value: value}
	for i, z := range p.draws {
		if err := checkDeadline(ctx); err != nil {
			return nil, err
		}
		value *= math.Exp(mu + sigma*z)
		out[i+1] = domain.ValuePoint{Date: p.dates[i+1], Value: value}
	}
	return out, nil
}

func checkDeadline(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: simulation aborted: %v", domain.ErrTimeout, err)
	}
	return nil
}

func sortedSymbols(weights map[string]float64) []string {
	out := make([]string, 0, len(weights))
	for symbol, w := range weights {
		if w > 0 {
			out = append(out, symbol)
		}
	}
	sort.Strings(out)
	return out
}
