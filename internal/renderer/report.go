package renderer

import (
	"bytes"
	"fmt"
	"strings"

	"rebalanceadvisor/internal/domain"

	"github.com/Rhymond/go-money"
	"github.com/charmbracelet/glamour"
	md "github.com/nao1215/markdown"
	"github.com/shopspring/decimal"
)

const defaultCurrency = "USD"

// FormatMoney displays amount in currency, e.g. $1,234.50. Unknown
// currencies are printed as a plain decimal with the code.
func FormatMoney(amount decimal.Decimal, currency string) string {
	if currency == "" {
		currency = defaultCurrency
	}
	cur := money.GetCurrency(strings.ToUpper(currency))
	if cur == nil {
		return fmt.Sprintf("%s %s", amount.StringFixed(2), currency)
	}
	factor, _ := decimal.NewFromInt(10).PowInt32(int32(cur.Fraction))
	minor := amount.Mul(factor).Round(0)
	return money.New(minor.IntPart(), cur.Code).Display()
}

func pct(f float64) string {
	return fmt.Sprintf("%.2f%%", f*100)
}

func signedPct(f float64) string {
	return fmt.Sprintf("%+.2f%%", f*100)
}

func ratio(f float64) string {
	return fmt.Sprintf("%.2f", f)
}

func optionalPct(f *float64) string {
	if f == nil {
		return "n/a"
	}
	return pct(*f)
}

func RecommendationMarkdown(rec *domain.Recommendation, currency string) string {
	var buf bytes.Buffer
	doc := md.NewMarkdown(&buf)

	doc.H1("Rebalancing Recommendation")
	doc.PlainText(fmt.Sprintf(
		"Profile: %s risk tolerance, %s goal, %d year horizon (risk score %d).",
		rec.Profile.RiskTolerance,
		rec.Profile.InvestmentGoal,
		rec.Profile.InvestmentHorizonYears,
		rec.Analysis.RiskScore,
	))

	if rec.Allocation.Fallback {
		doc.PlainText(md.Bold("Default allocation: " + rec.Allocation.FallbackReason))
	}

	if len(rec.MatchResults) > 0 {
		doc.H2("Matched Strategies")
		rows := [][]string{}
		for _, m := range rec.MatchResults {
			rows = append(rows, []string{
				m.StrategyID,
				ratio(m.ConfidenceScore),
				ratio(m.SubScores.Alignment),
				ratio(m.SubScores.Diversification),
				ratio(m.SubScores.Completeness),
			})
		}
		doc.Table(md.TableSet{
			Header: []string{"Strategy", "Confidence", "Alignment", "Diversification", "Completeness"},
			Rows:   rows,
		})
	}

	doc.H2("Target Allocation")
	rows := [][]string{}
	for _, symbol := range rec.Allocation.Symbols() {
		rows = append(rows, []string{symbol, pct(rec.Allocation.Weights[symbol])})
	}
	doc.Table(md.TableSet{
		Header: []string{"Symbol", "Weight"},
		Rows:   rows,
	})
	if len(rec.Allocation.Contributors) > 0 {
		contributors := []string{}
		for _, c := range rec.Allocation.Contributors {
			contributors = append(contributors, fmt.Sprintf("%s (%s)", c.StrategyID, pct(c.BlendWeight)))
		}
		doc.PlainText("Blended from " + strings.Join(contributors, ", ") + ".")
	}
	m := rec.Allocation.Metrics
	doc.PlainText(fmt.Sprintf(
		"Declared expected return %s, volatility %s, max drawdown %s.",
		optionalPct(m.ExpectedReturn),
		optionalPct(m.Volatility),
		optionalPct(m.MaxDrawdown),
	))

	doc.H2("Actions")
	rows = [][]string{}
	for _, a := range rec.Actions {
		price := FormatMoney(a.ReferencePrice, currency)
		if a.PriceFallback {
			price += " (default)"
		}
		rows = append(rows, []string{
			string(a.Action),
			a.Symbol,
			fmt.Sprintf("%.2f%%", a.CurrentWeightPct),
			fmt.Sprintf("%.2f%%", a.TargetWeightPct),
			fmt.Sprintf("%+.2f%%", a.DeltaWeightPct),
			a.EstimatedQuantity.String(),
			price,
			FormatMoney(a.EstimatedValue(), currency),
		})
	}
	doc.Table(md.TableSet{
		Header: []string{"Action", "Symbol", "Current", "Target", "Delta", "Quantity", "Price", "Value"},
		Rows:   rows,
	})

	if len(rec.Warnings) > 0 {
		doc.H2("Warnings")
		doc.BulletList(rec.Warnings...)
	}

	return doc.String()
}

func SimulationMarkdown(result *domain.SimulationResult) string {
	var buf bytes.Buffer
	doc := md.NewMarkdown(&buf)

	doc.H1("Simulation")
	doc.PlainText(fmt.Sprintf("Mode: %s, horizon %d days.", result.Mode, result.HorizonDays))

	header := []string{"Metric", "Current", "Recommended"}
	legs := []domain.PerformanceMetrics{result.Current.Metrics, result.Recommended.Metrics}
	if result.Benchmark != nil {
		header = append(header, "Benchmark")
		legs = append(legs, result.Benchmark.Metrics)
	}
	metricRow := func(name string, format func(float64) string, get func(domain.PerformanceMetrics) float64) []string {
		row := []string{name}
		for _, leg := range legs {
			row = append(row, format(get(leg)))
		}
		return row
	}
	doc.H2("Performance")
	doc.Table(md.TableSet{
		Header: header,
		Rows: [][]string{
			metricRow("Total return", pct, func(m domain.PerformanceMetrics) float64 { return m.TotalReturn }),
			metricRow("Annualized return", pct, func(m domain.PerformanceMetrics) float64 { return m.AnnualizedReturn }),
			metricRow("Volatility", pct, func(m domain.PerformanceMetrics) float64 { return m.Volatility }),
			metricRow("Max drawdown", pct, func(m domain.PerformanceMetrics) float64 { return m.MaxDrawdown }),
			metricRow("Sharpe", ratio, func(m domain.PerformanceMetrics) float64 { return m.SharpeRatio }),
			metricRow("Sortino", ratio, func(m domain.PerformanceMetrics) float64 { return m.SortinoRatio }),
			metricRow("Win rate", pct, func(m domain.PerformanceMetrics) float64 { return m.WinRate }),
			metricRow("VaR 95%", pct, func(m domain.PerformanceMetrics) float64 { return m.ValueAtRisk95 }),
		},
	})

	c := result.Comparison
	doc.H2("Recommended vs Current")
	doc.BulletList(
		"Annual return "+signedPct(c.AnnualReturnDelta),
		"Sharpe "+fmt.Sprintf("%+.2f", c.SharpeDelta),
		"Max drawdown "+signedPct(c.MaxDrawdownDelta),
		"Overall score "+fmt.Sprintf("%+.3f", c.OverallScore),
	)

	if len(result.Stress) > 0 {
		doc.H2("Stress Scenarios")
		rows := [][]string{}
		for _, s := range result.Stress {
			rows = append(rows, []string{
				s.Scenario,
				s.Leg,
				pct(s.StressedAnnualReturn),
				pct(s.StressedMaxDrawdown),
				ratio(s.StressedSharpe),
			})
		}
		doc.Table(md.TableSet{
			Header: []string{"Scenario", "Portfolio", "Annual return", "Max drawdown", "Sharpe"},
			Rows:   rows,
		})
	}

	if len(result.Warnings) > 0 {
		doc.H2("Warnings")
		doc.BulletList(result.Warnings...)
	}

	return doc.String()
}

func StrategiesMarkdown(strategies []domain.Strategy) string {
	var buf bytes.Buffer
	doc := md.NewMarkdown(&buf)

	doc.H1("Strategies")
	rows := [][]string{}
	for _, s := range strategies {
		rows = append(rows, []string{
			s.ID,
			s.Name,
			string(s.RiskLevel),
			strings.Join(s.StyleTags, ", "),
			fmt.Sprintf("%d", len(s.TargetAllocation)),
			optionalPct(s.ExpectedReturn),
		})
	}
	doc.Table(md.TableSet{
		Header: []string{"ID", "Name", "Risk", "Tags", "Instruments", "Expected return"},
		Rows:   rows,
	})
	return doc.String()
}

// RenderTerminal styles markdown for a terminal.
func RenderTerminal(markdown string, wordWrap int) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(wordWrap),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create terminal renderer: %w", err)
	}
	out, err := r.Render(markdown)
	if err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	return out, nil
}
