package l2_service

import (
	"context"
	"fmt"
	"math"

	"rebalanceadvisor/internal/domain"
	"rebalanceadvisor/internal/logger"
)

const (
	alignmentWeight       = 0.5
	diversificationWeight = 0.3
	completenessWeight    = 0.2

	riskCreditWeight  = 0.7
	styleCreditWeight = 0.3

	// holdings needed for full diversification credit
	fullyDiversifiedHoldings = 8
	// diversification score ceiling for concentrated strategies
	concentratedScoreCap = 0.5
)

var riskCredit = map[domain.RiskTolerance]map[domain.RiskLevel]float64{
	domain.RiskTolerance_Conservative: {
		domain.RiskLevel_Low:    1.0,
		domain.RiskLevel_Medium: 0.5,
		domain.RiskLevel_High:   0.0,
	},
	domain.RiskTolerance_Moderate: {
		domain.RiskLevel_Low:    0.5,
		domain.RiskLevel_Medium: 1.0,
		domain.RiskLevel_High:   0.5,
	},
	domain.RiskTolerance_Aggressive: {
		domain.RiskLevel_Low:    0.0,
		domain.RiskLevel_Medium: 0.5,
		domain.RiskLevel_High:   1.0,
	},
}

var preferredTags = map[domain.InvestmentGoal][]string{
	domain.InvestmentGoal_Growth:         {"growth", "momentum", "technology"},
	domain.InvestmentGoal_Income:         {"income", "dividend", "value"},
	domain.InvestmentGoal_Retirement:     {"balanced", "dividend", "defensive"},
	domain.InvestmentGoal_WealthBuilding: {"growth", "value", "balanced"},
	domain.InvestmentGoal_Preservation:   {"defensive", "bond", "low_volatility"},
}

type MatchOptions struct {
	// a single weight above this caps the diversification score
	ConcentrationThreshold float64
}

func DefaultMatchOptions() MatchOptions {
	return MatchOptions{ConcentrationThreshold: 0.40}
}

type MatchOutput struct {
	Results []domain.MatchResult
	// one entry per excluded strategy
	Warnings []string
}

type MatcherService interface {
	Match(ctx context.Context, profile domain.UserProfile, strategies []domain.Strategy, opts MatchOptions) (*MatchOutput, error)
}

type matcherServiceHandler struct{}

func NewMatcherService() MatcherService {
	return matcherServiceHandler{}
}

// Match scores every eligible strategy against the profile and ranks
// them. Ineligible strategies are skipped and reported in Warnings.
func (h matcherServiceHandler) Match(ctx context.Context, profile domain.UserProfile, strategies []domain.Strategy, opts MatchOptions) (*MatchOutput, error) {
	log := logger.FromContext(ctx)

	profile, err := profile.Normalize()
	if err != nil {
		return nil, err
	}
	if opts.ConcentrationThreshold <= 0 || opts.ConcentrationThreshold > 1 {
		return nil, fmt.Errorf("%w: concentration threshold must be in (0, 1], got %f", domain.ErrValidation, opts.ConcentrationThreshold)
	}
	tolerance, goal := profile.RiskTolerance, profile.InvestmentGoal

	out := &MatchOutput{
		Results:  []domain.MatchResult{},
		Warnings: []string{},
	}
	for _, s := range strategies {
		if reason := ineligibleReason(s); reason != "" {
			log.Warnf("excluding strategy %s from matching: %s", s.ID, reason)
			out.Warnings = append(out.Warnings, fmt.Sprintf("strategy %s excluded: %s", s.ID, reason))
			continue
		}

		subScores := domain.SubScores{
			Alignment:       alignmentScore(tolerance, goal, s),
			Diversification: diversificationScore(s, opts.ConcentrationThreshold),
			Completeness:    completenessScore(s),
		}
		confidence := clip01(
			alignmentWeight*subScores.Alignment +
				diversificationWeight*subScores.Diversification +
				completenessWeight*subScores.Completeness,
		)

		out.Results = append(out.Results, domain.MatchResult{
			StrategyID:      s.ID,
			StrategyName:    s.Name,
			ConfidenceScore: confidence,
			SubScores:       subScores,
			SharpeRatio:     finiteOrNil(s.SharpeRatio),
		})
	}

	domain.SortMatchResults(out.Results)

	return out, nil
}

func ineligibleReason(s domain.Strategy) string {
	if !s.Active {
		return "inactive"
	}
	if _, err := domain.NewRiskLevel(string(s.RiskLevel)); err != nil {
		return err.Error()
	}
	if err := s.ValidateAllocation(); err != nil {
		return err.Error()
	}
	return ""
}

func alignmentScore(tolerance domain.RiskTolerance, goal domain.InvestmentGoal, s domain.Strategy) float64 {
	level, _ := domain.NewRiskLevel(string(s.RiskLevel))
	return riskCreditWeight*riskCredit[tolerance][level] + styleCreditWeight*styleCredit(goal, s)
}

func styleCredit(goal domain.InvestmentGoal, s domain.Strategy) float64 {
	matches := 0
	for _, tag := range preferredTags[goal] {
		if s.HasTag(tag) {
			matches++
		}
	}
	switch {
	case matches >= 2:
		return 1.0
	case matches == 1:
		return 0.5
	default:
		return 0
	}
}

func diversificationScore(s domain.Strategy, concentrationThreshold float64) float64 {
	holdings := 0
	for _, w := range s.TargetAllocation {
		if w > 0 {
			holdings++
		}
	}
	score := math.Min(1, float64(holdings)/fullyDiversifiedHoldings)
	if s.MaxWeight() > concentrationThreshold {
		score = math.Min(score, concentratedScoreCap)
	}
	return score
}

func completenessScore(s domain.Strategy) float64 {
	present := 0
	for _, m := range []*float64{s.ExpectedReturn, s.Volatility, s.SharpeRatio, s.MaxDrawdown} {
		if finiteOrNil(m) != nil {
			present++
		}
	}
	return float64(present) / 4
}

func finiteOrNil(f *float64) *float64 {
	if f == nil || math.IsNaN(*f) || math.IsInf(*f, 0) {
		return nil
	}
	v := *f
	return &v
}

func clip01(f float64) float64 {
	if math.IsNaN(f) {
		return 0
	}
	return math.Max(0, math.Min(1, f))
}
