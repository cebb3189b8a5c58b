package l1_service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"rebalanceadvisor/internal/domain"
	"rebalanceadvisor/internal/logger"
	"rebalanceadvisor/internal/repository"

	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"
)

const numIngestWorkers = 10

// BarFetcher returns daily adjusted closes for symbol in [start, end].
type BarFetcher func(ctx context.Context, symbol string, start, end time.Time) ([]domain.AssetPrice, error)

type IngestionService interface {
	IngestPrices(ctx context.Context, symbols []string, start time.Time) (*IngestResult, error)
}

type IngestResult struct {
	// symbol -> number of prices written
	Ingested map[string]int
	// symbol -> failure message
	Failed map[string]string
}

func (r IngestResult) FailedSymbols() []string {
	out := []string{}
	for s := range r.Failed {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

type ingestionServiceHandler struct {
	AdjPriceRepository repository.AdjustedPriceRepository
	FetchBars          BarFetcher
	Now                func() time.Time
}

func NewIngestionService(adjPriceRepository repository.AdjustedPriceRepository) IngestionService {
	return ingestionServiceHandler{
		AdjPriceRepository: adjPriceRepository,
		FetchBars:          fetchYahooBars,
		Now:                time.Now,
	}
}

func fetchYahooBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.AssetPrice, error) {
	params := &chart.Params{
		Start:    datetime.New(&start),
		End:      datetime.New(&end),
		Symbol:   symbol,
		Interval: datetime.OneDay,
	}
	iter := chart.Get(params)

	out := []domain.AssetPrice{}
	for iter.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		bar := iter.Bar()
		ts := time.Unix(int64(bar.Timestamp), 0).UTC()
		out = append(out, domain.AssetPrice{
			Symbol: symbol,
			Date:   time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC),
			Price:  bar.AdjClose,
		})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to get prices for %s: %w", symbol, err)
	}

	return out, nil
}

// IngestPrices pulls daily prices from start until now for every symbol
// and upserts them. A failing symbol does not stop the others.
func (h ingestionServiceHandler) IngestPrices(ctx context.Context, symbols []string, start time.Time) (*IngestResult, error) {
	log := logger.FromContext(ctx)
	symbols = dedupe(symbols)
	end := h.Now().UTC()
	if !start.Before(end) {
		return nil, fmt.Errorf("%w: ingest start %s is not before now", domain.ErrValidation, start.Format(time.DateOnly))
	}

	result := &IngestResult{
		Ingested: map[string]int{},
		Failed:   map[string]string{},
	}

	inputCh := make(chan string, len(symbols))
	for _, s := range symbols {
		inputCh <- s
	}
	close(inputCh)

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for i := 0; i < numIngestWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case symbol, ok := <-inputCh:
					if !ok {
						return
					}
					n, err := h.ingestSymbol(ctx, symbol, start, end)
					mu.Lock()
					if err != nil {
						log.Warnf("failed to ingest price for %s: %s", symbol, err.Error())
						result.Failed[symbol] = err.Error()
					} else {
						result.Ingested[symbol] = n
					}
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return result, fmt.Errorf("%w: price ingestion interrupted: %v", domain.ErrTimeout, err)
	}

	return result, nil
}

func (h ingestionServiceHandler) ingestSymbol(ctx context.Context, symbol string, start, end time.Time) (int, error) {
	prices, err := h.FetchBars(ctx, symbol, start, end)
	if err != nil {
		return 0, err
	}
	valid := prices[:0]
	for _, p := range prices {
		if p.Price.IsPositive() {
			valid = append(valid, p)
		}
	}
	if len(valid) == 0 {
		return 0, fmt.Errorf("%w: no prices returned for %s", domain.ErrPriceUnavailable, symbol)
	}
	if err := h.AdjPriceRepository.Add(ctx, nil, valid); err != nil {
		return 0, err
	}
	return len(valid), nil
}
