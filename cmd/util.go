package cmd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"rebalanceadvisor/api"
	"rebalanceadvisor/internal/config"
	"rebalanceadvisor/internal/logger"
	"rebalanceadvisor/internal/repository"
	l1_service "rebalanceadvisor/internal/service/l1"
	l3_service "rebalanceadvisor/internal/service/l3"
	interestrate "rebalanceadvisor/pkg/interest_rate"

	_ "github.com/lib/pq"
)

const (
	strategiesFile = "strategies.json"
	holdingsFile   = "holdings.csv"
	pricesFile     = "prices.csv"
)

type Dependencies struct {
	Config *config.Config
	// nil when running from the data directory
	Db         *sql.DB
	PriceCache repository.PriceCacheRepository

	StrategyRepository repository.StrategyRepository
	HoldingsRepository repository.HoldingsRepository
	// nil without a database
	HoldingsWriter       repository.HoldingsWriter
	IngestionService     l1_service.IngestionService
	ApiRequestRepository repository.ApiRequestRepository

	CatalogService        l1_service.CatalogService
	RecommendationService l3_service.RecommendationService
	ApiHandler            *api.ApiHandler
}

func CloseDependencies(deps *Dependencies) {
	log := logger.FromContext(context.Background())
	if deps.Db != nil {
		if err := deps.Db.Close(); err != nil {
			log.Errorf("failed to close db: %v", err)
		}
	}
	if deps.PriceCache != nil {
		if err := deps.PriceCache.Close(); err != nil {
			log.Errorf("failed to close price cache: %v", err)
		}
	}
}

// InitializeDependencies wires repositories and services from the
// environment. Postgres is used when DB_HOST is set, the files in DATA_DIR
// otherwise. Alpaca and redis are added when configured.
func InitializeDependencies(ctx context.Context) (*Dependencies, error) {
	log := logger.FromContext(ctx)

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	deps := &Dependencies{Config: cfg}

	var history repository.PriceHistoryRepository
	latest := []repository.LatestPriceRepository{}

	if cfg.Alpaca.Enabled() {
		latest = append(latest, repository.NewAlpacaRepository(cfg.Alpaca.ApiKey, cfg.Alpaca.ApiSecret, cfg.Alpaca.Endpoint))
	}

	if cfg.Db.Enabled() {
		dbConn, err := sql.Open("postgres", cfg.Db.ToConnectionStr())
		if err != nil {
			return nil, fmt.Errorf("failed to connect to db: %w", err)
		}
		deps.Db = dbConn

		holdingsStore := repository.NewHoldingsRepository(dbConn)
		priceRepository := repository.NewAdjustedPriceRepository(dbConn)

		deps.StrategyRepository = repository.NewStrategyRepository(dbConn)
		deps.HoldingsRepository = holdingsStore
		deps.HoldingsWriter = holdingsStore
		deps.IngestionService = l1_service.NewIngestionService(priceRepository)
		deps.ApiRequestRepository = repository.NewApiRequestRepository(dbConn)
		history = priceRepository
	} else {
		log.Infof("no database configured, reading from %s", cfg.DataDir)

		deps.StrategyRepository, err = repository.NewFileStrategyRepository(filepath.Join(cfg.DataDir, strategiesFile))
		if err != nil {
			return nil, err
		}

		holdingsRepository, err := repository.NewCsvHoldingsRepository(filepath.Join(cfg.DataDir, holdingsFile))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		if holdingsRepository != nil {
			deps.HoldingsRepository = holdingsRepository
		}

		priceRepository, err := repository.NewCsvPriceRepository(filepath.Join(cfg.DataDir, pricesFile))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		if priceRepository != nil {
			history = priceRepository
			latest = append(latest, priceRepository)
		}
	}

	if cfg.Redis.Enabled() {
		cache, err := repository.NewPriceCacheRepository(ctx, cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password)
		if err != nil {
			log.Warnf("continuing without price cache: %v", err)
		} else {
			deps.PriceCache = cache
		}
	}

	marketData := repository.NewMarketDataProvider(history, deps.PriceCache, latest...)

	var rateService l1_service.RiskFreeRateService
	switch strings.ToLower(cfg.RiskFreeRateSource) {
	case "treasury":
		rateService = l1_service.NewTreasuryRiskFreeRateService(interestrate.NewClient(), cfg.Engine.RiskFreeRate)
	case "fixed", "":
		rateService = l1_service.NewFixedRiskFreeRateService(cfg.Engine.RiskFreeRate)
	default:
		return nil, fmt.Errorf("unknown risk free rate source %q", cfg.RiskFreeRateSource)
	}

	deps.CatalogService = l1_service.NewCatalogService(deps.StrategyRepository)
	deps.RecommendationService = l3_service.NewRecommendationService(
		deps.CatalogService,
		l1_service.NewPriceService(marketData),
		rateService,
		deps.HoldingsRepository,
		l3_service.NewSimulationService(l3_service.NewSimulationOptions(cfg.Engine)),
		l3_service.NewRecommendationOptions(cfg.Engine),
	)
	deps.ApiHandler = &api.ApiHandler{
		RecommendationService: deps.RecommendationService,
		CatalogService:        deps.CatalogService,
		ApiRequestRepository:  deps.ApiRequestRepository,
		Logger:                logger.FromContext(ctx),
		RequestTimeout:        time.Duration(cfg.RequestTimeoutSeconds) * time.Second,
	}

	return deps, nil
}
