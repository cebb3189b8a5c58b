package l2_service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"rebalanceadvisor/internal/domain"
	"rebalanceadvisor/internal/util"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"
)

func Test_blenderServiceHandler_Blend(t *testing.T) {
	ctx := context.Background()
	handler := NewBlenderService()
	fiveWay := equalAllocation("A", "B", "C", "D", "E")

	t.Run("top k contributors share confidence", func(t *testing.T) {
		strategies := []domain.Strategy{
			{ID: "s1", TargetAllocation: fiveWay, ExpectedReturn: util.FloatPointer(0.10), Active: true},
			{ID: "s2", TargetAllocation: fiveWay, ExpectedReturn: util.FloatPointer(0.05), Active: true},
			{ID: "s3", TargetAllocation: fiveWay, ExpectedReturn: util.FloatPointer(0.01), Active: true},
		}
		matches := []domain.MatchResult{
			{StrategyID: "s3", ConfidenceScore: 0.3},
			{StrategyID: "s1", ConfidenceScore: 0.9},
			{StrategyID: "s2", ConfidenceScore: 0.6},
		}
		opts := DefaultBlendOptions()
		opts.TopK = 2

		out, err := handler.Blend(ctx, matches, strategies, opts)
		require.NoError(t, err)

		require.Len(t, out.Contributors, 2)
		require.Equal(t, "s1", out.Contributors[0].StrategyID)
		require.InDelta(t, 0.6, out.Contributors[0].BlendWeight, 1e-12)
		require.Equal(t, "s2", out.Contributors[1].StrategyID)
		require.InDelta(t, 0.4, out.Contributors[1].BlendWeight, 1e-12)

		require.Equal(
			t,
			"",
			cmp.Diff(fiveWay, out.Weights, cmpopts.EquateApprox(0, 1e-12)),
		)
		require.NotNil(t, out.Metrics.ExpectedReturn)
		require.InDelta(t, 0.6*0.10+0.4*0.05, *out.Metrics.ExpectedReturn, 1e-12)
		require.Nil(t, out.Metrics.Volatility)
		require.False(t, out.Fallback)
	})

	t.Run("two instrument strategy cannot meet the cap", func(t *testing.T) {
		strategies := []domain.Strategy{
			{ID: "pair", TargetAllocation: map[string]float64{"A": 0.5, "B": 0.5}, Active: true},
		}
		_, err := handler.Blend(ctx, []domain.MatchResult{{StrategyID: "pair", ConfidenceScore: 0.8}}, strategies, DefaultBlendOptions())
		require.True(t, errors.Is(err, domain.ErrOverConstrained))
	})

	t.Run("metrics average over declaring contributors only", func(t *testing.T) {
		strategies := []domain.Strategy{
			{ID: "s1", TargetAllocation: fiveWay, SharpeRatio: util.FloatPointer(1.2)},
			{ID: "s2", TargetAllocation: fiveWay},
		}
		matches := []domain.MatchResult{
			{StrategyID: "s1", ConfidenceScore: 0.5},
			{StrategyID: "s2", ConfidenceScore: 0.5},
		}
		out, err := handler.Blend(ctx, matches, strategies, DefaultBlendOptions())
		require.NoError(t, err)
		require.NotNil(t, out.Metrics.SharpeRatio)
		require.InDelta(t, 1.2, *out.Metrics.SharpeRatio, 1e-12)
		require.Nil(t, out.Metrics.MaxDrawdown)
	})

	t.Run("nothing to blend", func(t *testing.T) {
		_, err := handler.Blend(ctx, nil, nil, DefaultBlendOptions())
		require.True(t, errors.Is(err, domain.ErrNoEligibleStrategy))

		_, err = handler.Blend(ctx, []domain.MatchResult{{StrategyID: "s1"}}, []domain.Strategy{{ID: "s1", TargetAllocation: fiveWay}}, DefaultBlendOptions())
		require.True(t, errors.Is(err, domain.ErrNoEligibleStrategy))
	})

	t.Run("unknown matched strategy", func(t *testing.T) {
		_, err := handler.Blend(ctx, []domain.MatchResult{{StrategyID: "ghost", ConfidenceScore: 1}}, nil, DefaultBlendOptions())
		require.True(t, errors.Is(err, domain.ErrValidation))
	})

	t.Run("invalid options", func(t *testing.T) {
		matches := []domain.MatchResult{{StrategyID: "s1", ConfidenceScore: 1}}
		strategies := []domain.Strategy{{ID: "s1", TargetAllocation: fiveWay}}
		for _, opts := range []BlendOptions{
			{TopK: 0, MinWeight: 0.05, MaxWeight: 0.3, MaxIterations: 10},
			{TopK: 3, MinWeight: 0.4, MaxWeight: 0.3, MaxIterations: 10},
			{TopK: 3, MinWeight: 0.05, MaxWeight: 1.5, MaxIterations: 10},
			{TopK: 3, MinWeight: 0.05, MaxWeight: 0.3, MaxIterations: 0},
		} {
			_, err := handler.Blend(ctx, matches, strategies, opts)
			require.True(t, errors.Is(err, domain.ErrValidation), fmt.Sprintf("%+v", opts))
		}
	})
}

func TestApplyWeightBounds(t *testing.T) {
	t.Run("small weights are floored and redistributed", func(t *testing.T) {
		raw := map[string]float64{
			"A": 0.24, "B": 0.24, "C": 0.24, "D": 0.24, "E": 0.04,
		}
		out, err := ApplyWeightBounds(raw, 0.05, 0.30, 10)
		require.NoError(t, err)
		require.Equal(
			t,
			"",
			cmp.Diff(map[string]float64{"A": 0.25, "B": 0.25, "C": 0.25, "D": 0.25}, out, cmpopts.EquateApprox(0, 1e-12)),
		)
	})

	t.Run("excess above the cap flows to uncapped weights", func(t *testing.T) {
		raw := map[string]float64{
			"A": 0.40, "B": 0.15, "C": 0.15, "D": 0.15, "E": 0.15,
		}
		out, err := ApplyWeightBounds(raw, 0.05, 0.30, 10)
		require.NoError(t, err)
		require.Equal(
			t,
			"",
			cmp.Diff(map[string]float64{"A": 0.30, "B": 0.175, "C": 0.175, "D": 0.175, "E": 0.175}, out, cmpopts.EquateApprox(0, 1e-12)),
		)
	})

	t.Run("rejects invalid raw weights", func(t *testing.T) {
		_, err := ApplyWeightBounds(map[string]float64{"A": -0.1, "B": 1.1}, 0.05, 0.3, 10)
		require.True(t, errors.Is(err, domain.ErrValidation))

		_, err = ApplyWeightBounds(map[string]float64{"A": 0}, 0.05, 0.3, 10)
		require.True(t, errors.Is(err, domain.ErrValidation))
	})

	t.Run("bounded output properties", func(t *testing.T) {
		r := rand.New(rand.NewSource(42))
		pool := []string{}
		for i := 0; i < 20; i++ {
			pool = append(pool, fmt.Sprintf("SYM%02d", i))
		}

		succeeded := 0
		for trial := 0; trial < 200; trial++ {
			raw := map[string]float64{}
			total := 0.0
			n := 6 + r.Intn(15)
			for _, i := range r.Perm(len(pool))[:n] {
				v := r.Float64()
				raw[pool[i]] = v
				total += v
			}
			for k := range raw {
				raw[k] /= total
			}

			out, err := ApplyWeightBounds(raw, 0.05, 0.30, 10)
			if err != nil {
				require.True(t, errors.Is(err, domain.ErrOverConstrained), err.Error())
				continue
			}
			succeeded++

			sum := 0.0
			for symbol, w := range out {
				_, ok := raw[symbol]
				require.True(t, ok)
				require.Greater(t, w, 0.0)
				require.LessOrEqual(t, w, 0.30+1e-9)
				require.GreaterOrEqual(t, w, 0.05-1e-9)
				sum += w
			}
			require.InDelta(t, 1.0, sum, 1e-6)

			again, err := ApplyWeightBounds(out, 0.05, 0.30, 10)
			require.NoError(t, err)
			require.Equal(t, "", cmp.Diff(out, again, cmpopts.EquateApprox(0, 1e-12)))
		}
		require.Greater(t, succeeded, 0)
	})
}
