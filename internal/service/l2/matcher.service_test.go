package l2_service

import (
	"context"
	"errors"
	"math"
	"testing"

	"rebalanceadvisor/internal/domain"
	"rebalanceadvisor/internal/util"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func equalAllocation(symbols ...string) map[string]float64 {
	out := map[string]float64{}
	for _, s := range symbols {
		out[s] = 1 / float64(len(symbols))
	}
	return out
}

func fullMetrics(s domain.Strategy, sharpe float64) domain.Strategy {
	s.ExpectedReturn = util.FloatPointer(0.06)
	s.Volatility = util.FloatPointer(0.1)
	s.MaxDrawdown = util.FloatPointer(-0.2)
	s.SharpeRatio = util.FloatPointer(sharpe)
	return s
}

func Test_matcherServiceHandler_Match(t *testing.T) {
	ctx := context.Background()
	handler := NewMatcherService()
	opts := DefaultMatchOptions()

	t.Run("scores a perfect fit and a poor fit", func(t *testing.T) {
		perfect := fullMetrics(domain.Strategy{
			ID:               "retire",
			StyleTags:        []string{"balanced", "Dividend"},
			TargetAllocation: equalAllocation("A", "B", "C", "D", "E", "F", "G", "H"),
			RiskLevel:        domain.RiskLevel_Low,
			Active:           true,
		}, 0.9)
		poor := domain.Strategy{
			ID:               "rocket",
			StyleTags:        []string{"growth"},
			TargetAllocation: map[string]float64{"A": 0.5, "B": 0.5},
			ExpectedReturn:   util.FloatPointer(0.2),
			Volatility:       util.FloatPointer(math.NaN()),
			SharpeRatio:      util.FloatPointer(1),
			RiskLevel:        domain.RiskLevel_High,
			Active:           true,
		}

		out, err := handler.Match(ctx, domain.UserProfile{
			RiskTolerance:          domain.RiskTolerance_Conservative,
			InvestmentGoal:         domain.InvestmentGoal_Retirement,
			InvestmentHorizonYears: 20,
		}, []domain.Strategy{poor, perfect}, opts)
		require.NoError(t, err)
		require.Empty(t, out.Warnings)
		require.Len(t, out.Results, 2)

		require.Equal(t, "retire", out.Results[0].StrategyID)
		require.InDelta(t, 1.0, out.Results[0].ConfidenceScore, 1e-9)
		require.Equal(
			t,
			"",
			cmp.Diff(domain.SubScores{Alignment: 1, Diversification: 1, Completeness: 1}, out.Results[0].SubScores),
		)

		// risk 0, style 0, diversification min(2/8, 0.5), completeness 2/4
		require.Equal(t, "rocket", out.Results[1].StrategyID)
		require.InDelta(t, 0.3*0.25+0.2*0.5, out.Results[1].ConfidenceScore, 1e-9)
	})

	t.Run("style credit counts preferred tags", func(t *testing.T) {
		base := domain.Strategy{
			ID:               "x",
			TargetAllocation: equalAllocation("A", "B", "C", "D"),
			RiskLevel:        domain.RiskLevel_Medium,
			Active:           true,
		}
		one := base
		one.StyleTags = []string{"momentum"}
		two := base
		two.StyleTags = []string{"momentum", "technology"}

		require.Equal(t, 0.0, styleCredit(domain.InvestmentGoal_Growth, base))
		require.Equal(t, 0.5, styleCredit(domain.InvestmentGoal_Growth, one))
		require.Equal(t, 1.0, styleCredit(domain.InvestmentGoal_Growth, two))
	})

	t.Run("invalid strategies are excluded with warnings", func(t *testing.T) {
		strategies := []domain.Strategy{
			{ID: "ok", TargetAllocation: map[string]float64{"A": 1}, RiskLevel: domain.RiskLevel_Medium, Active: true},
			{ID: "short", TargetAllocation: map[string]float64{"A": 0.5, "B": 0.4}, RiskLevel: domain.RiskLevel_Medium, Active: true},
			{ID: "nan", TargetAllocation: map[string]float64{"A": math.NaN()}, RiskLevel: domain.RiskLevel_Medium, Active: true},
			{ID: "empty", TargetAllocation: map[string]float64{}, RiskLevel: domain.RiskLevel_Medium, Active: true},
			{ID: "off", TargetAllocation: map[string]float64{"A": 1}, RiskLevel: domain.RiskLevel_Medium},
			{ID: "weird", TargetAllocation: map[string]float64{"A": 1}, RiskLevel: "extreme", Active: true},
		}
		out, err := handler.Match(ctx, domain.UserProfile{
			RiskTolerance:  domain.RiskTolerance_Moderate,
			InvestmentGoal: domain.InvestmentGoal_Growth,
		}, strategies, opts)
		require.NoError(t, err)
		require.Len(t, out.Results, 1)
		require.Equal(t, "ok", out.Results[0].StrategyID)
		require.Len(t, out.Warnings, 5)
	})

	t.Run("ties break on sharpe then id", func(t *testing.T) {
		mk := func(id string, sharpe *float64) domain.Strategy {
			return domain.Strategy{
				ID:               id,
				TargetAllocation: equalAllocation("A", "B", "C", "D"),
				RiskLevel:        domain.RiskLevel_Medium,
				SharpeRatio:      sharpe,
				Active:           true,
			}
		}
		strategies := []domain.Strategy{
			mk("d", nil),
			mk("c", util.FloatPointer(0.5)),
			mk("b", util.FloatPointer(0.5)),
			mk("a", nil),
			mk("e", util.FloatPointer(1.5)),
		}
		// sharpe changes completeness, so compare within equal-completeness groups
		out, err := handler.Match(ctx, domain.UserProfile{
			RiskTolerance:  domain.RiskTolerance_Moderate,
			InvestmentGoal: domain.InvestmentGoal_Income,
		}, strategies, opts)
		require.NoError(t, err)

		order := []string{}
		for _, r := range out.Results {
			order = append(order, r.StrategyID)
		}
		require.Equal(t, "", cmp.Diff([]string{"e", "b", "c", "a", "d"}, order))
	})

	t.Run("deterministic and bounded", func(t *testing.T) {
		strategies := sampleStrategies()
		profile := domain.UserProfile{
			RiskTolerance:          domain.RiskTolerance_Aggressive,
			InvestmentGoal:         domain.InvestmentGoal_WealthBuilding,
			InvestmentHorizonYears: 10,
		}
		first, err := handler.Match(ctx, profile, strategies, opts)
		require.NoError(t, err)
		for i := 0; i < 5; i++ {
			again, err := handler.Match(ctx, profile, strategies, opts)
			require.NoError(t, err)
			require.Equal(t, "", cmp.Diff(first, again))
		}
		for _, r := range first.Results {
			require.GreaterOrEqual(t, r.ConfidenceScore, 0.0)
			require.LessOrEqual(t, r.ConfidenceScore, 1.0)
		}
	})

	t.Run("empty catalog", func(t *testing.T) {
		out, err := handler.Match(ctx, domain.UserProfile{
			RiskTolerance:  domain.RiskTolerance_Moderate,
			InvestmentGoal: domain.InvestmentGoal_Growth,
		}, nil, opts)
		require.NoError(t, err)
		require.Empty(t, out.Results)
	})

	t.Run("invalid profile", func(t *testing.T) {
		for _, p := range []domain.UserProfile{
			{RiskTolerance: "yolo", InvestmentGoal: domain.InvestmentGoal_Growth},
			{RiskTolerance: domain.RiskTolerance_Moderate, InvestmentGoal: "fame"},
			{RiskTolerance: domain.RiskTolerance_Moderate, InvestmentGoal: domain.InvestmentGoal_Growth, InvestmentHorizonYears: -1},
		} {
			_, err := handler.Match(ctx, p, sampleStrategies(), opts)
			require.True(t, errors.Is(err, domain.ErrValidation))
		}
	})
}

// sampleStrategies is a small catalog with mixed risk levels, tags and
// declared metrics.
func sampleStrategies() []domain.Strategy {
	return []domain.Strategy{
		fullMetrics(domain.Strategy{
			ID:               "all-weather",
			StyleTags:        []string{"balanced", "defensive"},
			TargetAllocation: map[string]float64{"VTI": 0.3, "TLT": 0.25, "IEF": 0.15, "GLD": 0.15, "DBC": 0.15},
			RiskLevel:        domain.RiskLevel_Medium,
			Active:           true,
		}, 0.7),
		fullMetrics(domain.Strategy{
			ID:               "tech-growth",
			StyleTags:        []string{"growth", "technology"},
			TargetAllocation: map[string]float64{"QQQ": 0.25, "VGT": 0.25, "ARKK": 0.2, "SOXX": 0.15, "VUG": 0.15},
			RiskLevel:        domain.RiskLevel_High,
			Active:           true,
		}, 0.9),
		{
			ID:               "value-tilt",
			StyleTags:        []string{"value", "dividend"},
			TargetAllocation: map[string]float64{"VTV": 0.25, "SCHD": 0.25, "VYM": 0.2, "IWD": 0.15, "DVY": 0.15},
			ExpectedReturn:   util.FloatPointer(0.08),
			RiskLevel:        domain.RiskLevel_Medium,
			Active:           true,
		},
		fullMetrics(domain.Strategy{
			ID:               "bond-ladder",
			StyleTags:        []string{"bond", "income"},
			TargetAllocation: map[string]float64{"BND": 0.3, "AGG": 0.25, "SHY": 0.2, "TIP": 0.15, "MUB": 0.1},
			RiskLevel:        domain.RiskLevel_Low,
			Active:           true,
		}, 0.5),
	}
}
