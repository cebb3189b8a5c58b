package repository

import (
	"context"
	"strings"

	"rebalanceadvisor/internal/logger"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"
)

// LatestPriceRepository returns the latest known price per symbol.
// Symbols without a usable quote are left out of the result.
type LatestPriceRepository interface {
	GetLatestPrices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error)
}

type quoteClient interface {
	GetLatestQuotes(symbols []string, req marketdata.GetLatestQuoteRequest) (map[string]marketdata.Quote, error)
}

func NewAlpacaRepository(apiKey, apiSecret string, endpoint string) LatestPriceRepository {
	mdClient := marketdata.NewClient(marketdata.ClientOpts{
		BaseURL:   endpoint,
		APIKey:    apiKey,
		APISecret: apiSecret,
	})

	return &alpacaRepositoryHandler{
		MdClient: mdClient,
	}
}

type alpacaRepositoryHandler struct {
	MdClient quoteClient
}

func (h alpacaRepositoryHandler) GetLatestPrices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	log := logger.FromContext(ctx)

	out := map[string]decimal.Decimal{}
	if len(symbols) == 0 {
		return out, nil
	}

	upper := make([]string, 0, len(symbols))
	for _, s := range symbols {
		upper = append(upper, strings.ToUpper(s))
	}

	results, err := h.MdClient.GetLatestQuotes(upper, marketdata.GetLatestQuoteRequest{})
	if err != nil {
		return nil, err
	}
	for symbol, result := range results {
		price := decimal.NewFromFloat(result.BidPrice)
		// bid can be 0 outside market hours
		if !price.IsPositive() {
			price = decimal.NewFromFloat(result.AskPrice)
		}
		if !price.IsPositive() {
			log.Warnf("alpaca returned no usable quote for %s", symbol)
			continue
		}
		out[symbol] = price
	}

	return out, nil
}
