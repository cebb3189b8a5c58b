package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fakeQuoteClient struct {
	quotes    map[string]marketdata.Quote
	err       error
	requested []string
}

func (f *fakeQuoteClient) GetLatestQuotes(symbols []string, req marketdata.GetLatestQuoteRequest) (map[string]marketdata.Quote, error) {
	f.requested = symbols
	if f.err != nil {
		return nil, f.err
	}
	out := map[string]marketdata.Quote{}
	for _, s := range symbols {
		if q, ok := f.quotes[s]; ok {
			out[s] = q
		}
	}
	return out, nil
}

func Test_alpacaRepositoryHandler_GetLatestPrices(t *testing.T) {
	t.Run("uses bid, then ask, skips empty quotes", func(t *testing.T) {
		client := &fakeQuoteClient{
			quotes: map[string]marketdata.Quote{
				"AAPL": {BidPrice: 190.5, AskPrice: 190.7},
				"BND":  {BidPrice: 0, AskPrice: 72.1},
				"XYZ":  {},
			},
		}
		handler := alpacaRepositoryHandler{MdClient: client}

		out, err := handler.GetLatestPrices(context.Background(), []string{"aapl", "BND", "XYZ", "MISSING"})
		require.NoError(t, err)

		require.Equal(t, "", cmp.Diff([]string{"AAPL", "BND", "XYZ", "MISSING"}, client.requested))
		require.Len(t, out, 2)
		require.True(t, decimal.NewFromFloat(190.5).Equal(out["AAPL"]))
		require.True(t, decimal.NewFromFloat(72.1).Equal(out["BND"]))
	})

	t.Run("no symbols skips the call", func(t *testing.T) {
		client := &fakeQuoteClient{}
		handler := alpacaRepositoryHandler{MdClient: client}

		out, err := handler.GetLatestPrices(context.Background(), nil)
		require.NoError(t, err)
		require.Empty(t, out)
		require.Nil(t, client.requested)
	})

	t.Run("propagates client error", func(t *testing.T) {
		handler := alpacaRepositoryHandler{MdClient: &fakeQuoteClient{err: errors.New("boom")}}
		_, err := handler.GetLatestPrices(context.Background(), []string{"AAPL"})
		require.Error(t, err)
	})
}
