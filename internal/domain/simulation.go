package domain

import "time"

type SimulationMode string

const (
	SimulationMode_Historical SimulationMode = "historical"
	SimulationMode_Projected  SimulationMode = "projected"
)

type PerformanceMetrics struct {
	TotalReturn      float64 `json:"totalReturn"`
	AnnualizedReturn float64 `json:"annualizedReturn"`
	Volatility       float64 `json:"volatility"`
	MaxDrawdown      float64 `json:"maxDrawdown"`
	SharpeRatio      float64 `json:"sharpeRatio"`
	WinRate          float64 `json:"winRate"`
	SortinoRatio     float64 `json:"sortinoRatio"`
	CalmarRatio      float64 `json:"calmarRatio"`
	ValueAtRisk95    float64 `json:"valueAtRisk95"`
	BestPeriod       float64 `json:"bestPeriod"`
	WorstPeriod      float64 `json:"worstPeriod"`
}

type ValuePoint struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

type LegResult struct {
	Metrics PerformanceMetrics `json:"metrics"`
	Series  []ValuePoint       `json:"series"`
}

// Comparison holds (recommended - other) for each metric. OverallScore is
// a display-only ranking number.
type Comparison struct {
	TotalReturnDelta   float64 `json:"totalReturnDelta"`
	AnnualReturnDelta  float64 `json:"annualReturnDelta"`
	VolatilityDelta    float64 `json:"volatilityDelta"`
	MaxDrawdownDelta   float64 `json:"maxDrawdownDelta"`
	SharpeDelta        float64 `json:"sharpeDelta"`
	WinRateDelta       float64 `json:"winRateDelta"`
	SortinoDelta       float64 `json:"sortinoDelta"`
	CalmarDelta        float64 `json:"calmarDelta"`
	ValueAtRisk95Delta float64 `json:"valueAtRisk95Delta"`
	OverallScore       float64 `json:"overallScore"`
}

type StressResult struct {
	Scenario             string  `json:"scenario"`
	Leg                  string  `json:"leg"`
	StressedAnnualReturn float64 `json:"stressedAnnualReturn"`
	StressedVolatility   float64 `json:"stressedVolatility"`
	StressedMaxDrawdown  float64 `json:"stressedMaxDrawdown"`
	StressedSharpe       float64 `json:"stressedSharpe"`
	ReturnImpact         float64 `json:"returnImpact"`
	VolatilityImpact     float64 `json:"volatilityImpact"`
	DrawdownImpact       float64 `json:"drawdownImpact"`
}

type SimulationResult struct {
	Mode                SimulationMode `json:"mode"`
	HorizonDays         int            `json:"horizonDays"`
	Current             LegResult      `json:"current"`
	Recommended         LegResult      `json:"recommended"`
	Benchmark           *LegResult     `json:"benchmark,omitempty"`
	Comparison          Comparison     `json:"comparison"`
	BenchmarkComparison *Comparison    `json:"benchmarkComparison,omitempty"`
	Stress              []StressResult `json:"stress,omitempty"`
	Warnings            []string       `json:"warnings,omitempty"`
}
