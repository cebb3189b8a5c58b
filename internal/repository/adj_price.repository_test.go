package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"rebalanceadvisor/internal/db/models/postgres/public/model"
	"rebalanceadvisor/internal/domain"
	"rebalanceadvisor/internal/util"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

type loadCall struct {
	start time.Time
	end   time.Time
}

func newCachedPriceRepository(t *testing.T, stored []model.AdjustedPrice) (*adjustedPriceRepositoryHandler, *[]loadCall) {
	h := NewAdjustedPriceRepository(nil).(*adjustedPriceRepositoryHandler)
	calls := &[]loadCall{}
	h.load = func(ctx context.Context, symbol string, start, end time.Time) ([]model.AdjustedPrice, error) {
		*calls = append(*calls, loadCall{start: start, end: end})
		out := []model.AdjustedPrice{}
		for _, p := range stored {
			if p.Symbol == symbol && !p.Date.Before(start) && !p.Date.After(end) {
				out = append(out, p)
			}
		}
		return out, nil
	}
	return h, calls
}

func dates(series *domain.PriceSeries) []time.Time {
	out := []time.Time{}
	for _, p := range series.Points {
		out = append(out, p.Date)
	}
	return out
}

func Test_adjustedPriceRepositoryHandler_GetHistory(t *testing.T) {
	ctx := context.Background()
	stored := []model.AdjustedPrice{}
	for day := 1; day <= 20; day++ {
		stored = append(stored, model.AdjustedPrice{Symbol: "VTI", Date: util.NewDate(2024, 3, day), Price: float64(200 + day)})
	}

	t.Run("serves covered ranges from the cache", func(t *testing.T) {
		h, calls := newCachedPriceRepository(t, stored)

		series, err := h.GetHistory(ctx, "VTI", domain.DateRange{Start: util.NewDate(2024, 3, 1), End: util.NewDate(2024, 3, 10)})
		require.NoError(t, err)
		require.Len(t, series.Points, 10)

		series, err = h.GetHistory(ctx, "VTI", domain.DateRange{Start: util.NewDate(2024, 3, 4), End: util.NewDate(2024, 3, 6)})
		require.NoError(t, err)
		require.Equal(t, "", cmp.Diff([]time.Time{
			util.NewDate(2024, 3, 4), util.NewDate(2024, 3, 5), util.NewDate(2024, 3, 6),
		}, dates(series)))
		require.InDelta(t, 204.0, series.Points[0].Price, 1e-9)

		require.Len(t, *calls, 1)
	})

	t.Run("widens the window on a miss", func(t *testing.T) {
		h, calls := newCachedPriceRepository(t, stored)

		_, err := h.GetHistory(ctx, "VTI", domain.DateRange{Start: util.NewDate(2024, 3, 5), End: util.NewDate(2024, 3, 10)})
		require.NoError(t, err)
		series, err := h.GetHistory(ctx, "VTI", domain.DateRange{Start: util.NewDate(2024, 3, 8), End: util.NewDate(2024, 3, 15)})
		require.NoError(t, err)
		require.Len(t, series.Points, 8)

		require.Equal(t, "", cmp.Diff([]loadCall{
			{start: util.NewDate(2024, 3, 5), end: util.NewDate(2024, 3, 10)},
			{start: util.NewDate(2024, 3, 5), end: util.NewDate(2024, 3, 15)},
		}, *calls, cmp.AllowUnexported(loadCall{})))

		_, err = h.GetHistory(ctx, "VTI", domain.DateRange{Start: util.NewDate(2024, 3, 5), End: util.NewDate(2024, 3, 15)})
		require.NoError(t, err)
		require.Len(t, *calls, 2)
	})

	t.Run("reloads after the symbol is written", func(t *testing.T) {
		h, calls := newCachedPriceRepository(t, stored)
		r := domain.DateRange{Start: util.NewDate(2024, 3, 1), End: util.NewDate(2024, 3, 5)}

		_, err := h.GetHistory(ctx, "VTI", r)
		require.NoError(t, err)
		h.dropFromCache(map[string]bool{"VTI": true})
		_, err = h.GetHistory(ctx, "VTI", r)
		require.NoError(t, err)

		require.Len(t, *calls, 2)
	})

	t.Run("missing history is unavailable", func(t *testing.T) {
		h, _ := newCachedPriceRepository(t, stored)
		_, err := h.GetHistory(ctx, "QQQ", domain.DateRange{Start: util.NewDate(2024, 3, 1), End: util.NewDate(2024, 3, 5)})
		require.True(t, errors.Is(err, domain.ErrPriceUnavailable))
	})

	t.Run("load errors are not cached", func(t *testing.T) {
		h, _ := newCachedPriceRepository(t, stored)
		h.load = func(ctx context.Context, symbol string, start, end time.Time) ([]model.AdjustedPrice, error) {
			return nil, errors.New("connection reset")
		}
		_, err := h.GetHistory(ctx, "VTI", domain.DateRange{Start: util.NewDate(2024, 3, 1), End: util.NewDate(2024, 3, 5)})
		require.Error(t, err)
		require.Empty(t, h.Cache)
	})
}
