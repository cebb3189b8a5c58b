package main

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"rebalanceadvisor/cmd"
	"rebalanceadvisor/internal/domain"
	"rebalanceadvisor/internal/logger"
	"rebalanceadvisor/internal/renderer"
	"rebalanceadvisor/internal/repository"
	l1_service "rebalanceadvisor/internal/service/l1"
	l3_service "rebalanceadvisor/internal/service/l3"
	"rebalanceadvisor/internal/util"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

// loadHoldings reads userID's holdings from a csv file when path is set.
// nil means the configured holdings store is used.
func loadHoldings(ctx context.Context, path, userID string) ([]domain.Holding, error) {
	if path == "" {
		return nil, nil
	}
	repo, err := repository.NewCsvHoldingsRepository(path)
	if err != nil {
		return nil, err
	}
	holdings, err := repo.GetHoldings(ctx, userID)
	if err != nil {
		return nil, err
	}
	if holdings == nil {
		holdings = []domain.Holding{}
	}
	return holdings, nil
}

func parseAllocation(in map[string]string) (map[string]float64, error) {
	out := map[string]float64{}
	for symbol, v := range in {
		w, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid weight %q for %s", domain.ErrValidation, v, symbol)
		}
		out[symbol] = w
	}
	return out, nil
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := util.ParseDate(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid date %q, expected YYYY-MM-DD", domain.ErrValidation, s)
	}
	return t, nil
}

func newRecommendCmd() *cobra.Command {
	var (
		riskTolerance string
		goal          string
		horizonYears  int
		userID        string
		holdingsPath  string
		totalValue    float64
		currency      string
		simulateDays  int
		benchmark     string
	)
	c := &cobra.Command{
		Use:   "recommend",
		Short: "Recommend a blended allocation and the trades to reach it",
		RunE: func(c *cobra.Command, args []string) error {
			return withDependencies(c, func(ctx context.Context, deps *cmd.Dependencies) error {
				tolerance, err := domain.NewRiskTolerance(riskTolerance)
				if err != nil {
					return err
				}
				investmentGoal, err := domain.NewInvestmentGoal(goal)
				if err != nil {
					return err
				}
				holdings, err := loadHoldings(ctx, holdingsPath, userID)
				if err != nil {
					return err
				}
				if holdings == nil && userID == "" {
					holdings = []domain.Holding{}
				}

				in := l3_service.RecommendationInput{
					Profile: domain.UserProfile{
						RiskTolerance:          tolerance,
						InvestmentGoal:         investmentGoal,
						InvestmentHorizonYears: horizonYears,
					},
					Holdings: holdings,
					UserID:   userID,
				}
				if totalValue > 0 {
					v := decimal.NewFromFloat(totalValue)
					in.TotalPortfolioValue = &v
				}

				rec, err := deps.RecommendationService.GenerateRecommendation(ctx, in)
				if err != nil {
					return err
				}

				var result *domain.SimulationResult
				if simulateDays > 0 {
					result, err = deps.RecommendationService.RunSimulation(ctx, l3_service.RunSimulationInput{
						Holdings:        holdings,
						UserID:          userID,
						Allocation:      rec.Allocation,
						HorizonDays:     simulateDays,
						BenchmarkSymbol: benchmark,
					})
					if err != nil {
						return err
					}
				}

				payload := map[string]any{"recommendation": rec}
				if result != nil {
					payload["simulation"] = result
				}
				return printReport(c, payload, func() string {
					md := renderer.RecommendationMarkdown(rec, currency)
					if result != nil {
						md += "\n" + renderer.SimulationMarkdown(result)
					}
					return md
				})
			})
		},
	}
	c.Flags().StringVar(&riskTolerance, "risk", "moderate", "risk tolerance: conservative, moderate or aggressive")
	c.Flags().StringVar(&goal, "goal", "growth", "investment goal: growth, income, retirement, wealth_building or preservation")
	c.Flags().IntVar(&horizonYears, "horizon-years", 10, "investment horizon in years")
	c.Flags().StringVar(&userID, "user", "", "user whose holdings to rebalance")
	c.Flags().StringVar(&holdingsPath, "holdings", "", "holdings csv to read instead of the configured store")
	c.Flags().Float64Var(&totalValue, "total-value", 0, "portfolio value to size trades against, defaults to the holdings value")
	c.Flags().StringVar(&currency, "currency", "USD", "currency for amounts in the report")
	c.Flags().IntVar(&simulateDays, "simulate-days", 0, "also simulate the recommendation over this many days")
	c.Flags().StringVar(&benchmark, "benchmark", "", "benchmark symbol for the simulation")
	return c
}

func newSimulateCmd() *cobra.Command {
	var (
		allocation      map[string]string
		horizonDays     int
		userID          string
		holdingsPath    string
		benchmark       string
		asOf            string
		forceHistorical bool
	)
	c := &cobra.Command{
		Use:   "simulate",
		Short: "Compare an allocation with the current holdings over a horizon",
		RunE: func(c *cobra.Command, args []string) error {
			weights, err := parseAllocation(allocation)
			if err != nil {
				return err
			}
			end, err := parseDate(asOf)
			if err != nil {
				return err
			}
			return withDependencies(c, func(ctx context.Context, deps *cmd.Dependencies) error {
				holdings, err := loadHoldings(ctx, holdingsPath, userID)
				if err != nil {
					return err
				}
				result, err := deps.RecommendationService.RunSimulation(ctx, l3_service.RunSimulationInput{
					Holdings:        holdings,
					UserID:          userID,
					Allocation:      domain.BlendedAllocation{Weights: weights},
					HorizonDays:     horizonDays,
					BenchmarkSymbol: benchmark,
					AsOf:            end,
					ForceHistorical: forceHistorical,
				})
				if err != nil {
					return err
				}
				return printReport(c, result, func() string {
					return renderer.SimulationMarkdown(result)
				})
			})
		},
	}
	c.Flags().StringToStringVar(&allocation, "allocation", nil, "target weights, e.g. VTI=0.6,BND=0.4")
	c.Flags().IntVar(&horizonDays, "days", 365, "horizon in days")
	c.Flags().StringVar(&userID, "user", "", "user whose holdings form the current portfolio")
	c.Flags().StringVar(&holdingsPath, "holdings", "", "holdings csv to read instead of the configured store")
	c.Flags().StringVar(&benchmark, "benchmark", "", "benchmark symbol")
	c.Flags().StringVar(&asOf, "as-of", "", "end of the window, YYYY-MM-DD, defaults to today")
	c.Flags().BoolVar(&forceHistorical, "historical", false, "backtest over the instruments with history even if some are missing")
	c.MarkFlagRequired("allocation")
	return c
}

func newStrategiesCmd() *cobra.Command {
	var (
		riskLevel string
		tag       string
	)
	c := &cobra.Command{
		Use:   "strategies",
		Short: "List the active strategy catalog",
		RunE: func(c *cobra.Command, args []string) error {
			filter := l1_service.CatalogFilter{}
			if riskLevel != "" {
				level, err := domain.NewRiskLevel(riskLevel)
				if err != nil {
					return err
				}
				filter.RiskLevel = &level
			}
			if tag != "" {
				filter.StyleTag = &tag
			}
			return withDependencies(c, func(ctx context.Context, deps *cmd.Dependencies) error {
				catalog, err := deps.CatalogService.Snapshot(ctx)
				if err != nil {
					return err
				}
				strategies := catalog.Filter(filter)
				return printReport(c, strategies, func() string {
					return renderer.StrategiesMarkdown(strategies)
				})
			})
		},
	}
	c.Flags().StringVar(&riskLevel, "risk-level", "", "only strategies with this risk level")
	c.Flags().StringVar(&tag, "tag", "", "only strategies with this style tag")
	return c
}

func newIngestCmd() *cobra.Command {
	var (
		symbols []string
		since   string
	)
	c := &cobra.Command{
		Use:   "ingest",
		Short: "Download daily adjusted closes into the price database",
		RunE: func(c *cobra.Command, args []string) error {
			start, err := parseDate(since)
			if err != nil {
				return err
			}
			if start.IsZero() {
				start = time.Now().UTC().AddDate(-5, 0, 0)
			}
			return withDependencies(c, func(ctx context.Context, deps *cmd.Dependencies) error {
				if deps.IngestionService == nil {
					return fmt.Errorf("ingest needs a database, set DB_HOST")
				}
				if len(symbols) == 0 {
					catalog, err := deps.CatalogService.Snapshot(ctx)
					if err != nil {
						return err
					}
					symbols = catalogSymbols(catalog.All())
				}

				result, err := deps.IngestionService.IngestPrices(ctx, symbols, start)
				if err != nil {
					return err
				}
				for _, s := range result.FailedSymbols() {
					logger.FromContext(ctx).Warnf("failed to ingest %s: %s", s, result.Failed[s])
				}
				fmt.Fprintf(c.OutOrStdout(), "ingested %d symbols, %d failed\n", len(result.Ingested), len(result.Failed))
				return nil
			})
		},
	}
	c.Flags().StringSliceVar(&symbols, "symbols", nil, "symbols to ingest, defaults to every catalog instrument")
	c.Flags().StringVar(&since, "since", "", "first date to ingest, YYYY-MM-DD, defaults to five years ago")
	return c
}

func catalogSymbols(strategies []domain.Strategy) []string {
	set := map[string]bool{}
	for _, s := range strategies {
		for symbol := range s.TargetAllocation {
			set[symbol] = true
		}
	}
	out := make([]string, 0, len(set))
	for symbol := range set {
		out = append(out, symbol)
	}
	sort.Strings(out)
	return out
}

func newImportCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "import",
		Short: "Load catalog or holdings files into the database",
	}

	var strategiesPath string
	strategies := &cobra.Command{
		Use:   "strategies",
		Short: "Insert or update strategies from a JSON catalog",
		RunE: func(c *cobra.Command, args []string) error {
			return withDependencies(c, func(ctx context.Context, deps *cmd.Dependencies) error {
				if deps.Db == nil {
					return fmt.Errorf("import needs a database, set DB_HOST")
				}
				src, err := repository.NewFileStrategyRepository(strategiesPath)
				if err != nil {
					return err
				}
				list, err := src.List(ctx, repository.StrategyListFilter{IncludeInactive: true})
				if err != nil {
					return err
				}
				if err := deps.StrategyRepository.Add(ctx, list); err != nil {
					return err
				}
				fmt.Fprintf(c.OutOrStdout(), "imported %d strategies\n", len(list))
				return nil
			})
		},
	}
	strategies.Flags().StringVar(&strategiesPath, "file", "data/strategies.json", "catalog file")

	var (
		holdingsPath string
		userID       string
	)
	holdings := &cobra.Command{
		Use:   "holdings",
		Short: "Replace a user's stored holdings with the rows of a csv",
		RunE: func(c *cobra.Command, args []string) error {
			return withDependencies(c, func(ctx context.Context, deps *cmd.Dependencies) error {
				if deps.HoldingsWriter == nil {
					return fmt.Errorf("import needs a database, set DB_HOST")
				}
				rows, err := loadHoldings(ctx, holdingsPath, userID)
				if err != nil {
					return err
				}

				tx, err := deps.Db.BeginTx(ctx, nil)
				if err != nil {
					return fmt.Errorf("failed to start transaction: %w", err)
				}
				defer tx.Rollback()

				if err := deps.HoldingsWriter.ReplaceHoldings(ctx, tx, userID, rows); err != nil {
					return err
				}
				if err := tx.Commit(); err != nil {
					return fmt.Errorf("failed to commit holdings: %w", err)
				}
				fmt.Fprintf(c.OutOrStdout(), "stored %d holdings for %s\n", len(rows), userID)
				return nil
			})
		},
	}
	holdings.Flags().StringVar(&holdingsPath, "file", "data/holdings.csv", "holdings csv")
	holdings.Flags().StringVar(&userID, "user", "", "user to import")
	holdings.MarkFlagRequired("user")

	c.AddCommand(strategies, holdings)
	return c
}

func newServeCmd() *cobra.Command {
	var port int
	c := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(c *cobra.Command, args []string) error {
			return withDependencies(c, func(ctx context.Context, deps *cmd.Dependencies) error {
				if port == 0 {
					port = deps.Config.Port
				}
				logger.FromContext(ctx).Infof("listening on :%d", port)
				return deps.ApiHandler.StartApi(port)
			})
		},
	}
	c.Flags().IntVar(&port, "port", 0, "port, defaults to PORT")
	return c
}
