package api

import (
	"fmt"
	"strings"

	"rebalanceadvisor/internal/domain"
	l3_service "rebalanceadvisor/internal/service/l3"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type ProfileRequest struct {
	RiskTolerance          string `json:"riskTolerance"`
	InvestmentGoal         string `json:"investmentGoal"`
	InvestmentHorizonYears int    `json:"investmentHorizonYears"`
}

type HoldingRequest struct {
	Symbol       string          `json:"symbol"`
	Quantity     decimal.Decimal `json:"quantity"`
	CostBasis    decimal.Decimal `json:"costBasis"`
	CurrentPrice decimal.Decimal `json:"currentPrice"`
	Currency     string          `json:"currency"`
}

type SimulationOptionsRequest struct {
	HorizonDays     int    `json:"horizonDays"`
	BenchmarkSymbol string `json:"benchmarkSymbol"`
}

type RecommendationRequest struct {
	Profile ProfileRequest `json:"profile"`
	// omitted to load the user's stored holdings
	Holdings            *[]HoldingRequest `json:"holdings"`
	UserID              string            `json:"userID"`
	TotalPortfolioValue *decimal.Decimal  `json:"totalPortfolioValue"`
	// runs a simulation of the recommendation when set
	Simulation *SimulationOptionsRequest `json:"simulation"`
}

type RecommendationResponse struct {
	Recommendation *domain.Recommendation   `json:"recommendation"`
	Simulation     *domain.SimulationResult `json:"simulation,omitempty"`
}

func (p ProfileRequest) toDomain() (domain.UserProfile, error) {
	riskTolerance, err := domain.NewRiskTolerance(p.RiskTolerance)
	if err != nil {
		return domain.UserProfile{}, err
	}
	goal, err := domain.NewInvestmentGoal(p.InvestmentGoal)
	if err != nil {
		return domain.UserProfile{}, err
	}
	return domain.UserProfile{
		RiskTolerance:          riskTolerance,
		InvestmentGoal:         goal,
		InvestmentHorizonYears: p.InvestmentHorizonYears,
	}, nil
}

func holdingsToDomain(in []HoldingRequest) []domain.Holding {
	out := make([]domain.Holding, 0, len(in))
	for _, h := range in {
		out = append(out, domain.Holding{
			Symbol:       strings.ToUpper(strings.TrimSpace(h.Symbol)),
			Quantity:     h.Quantity,
			CostBasis:    h.CostBasis,
			CurrentPrice: h.CurrentPrice,
			Currency:     h.Currency,
		})
	}
	return out
}

func (m ApiHandler) recommendation(c *gin.Context) {
	var requestBody RecommendationRequest
	if err := c.ShouldBindJSON(&requestBody); err != nil {
		returnErrorJson(fmt.Errorf("%w: invalid request body: %s", domain.ErrValidation, err.Error()), c)
		return
	}

	profile, err := requestBody.Profile.toDomain()
	if err != nil {
		returnErrorJson(err, c)
		return
	}

	var holdings []domain.Holding
	if requestBody.Holdings != nil {
		holdings = holdingsToDomain(*requestBody.Holdings)
	} else if requestBody.UserID == "" {
		returnErrorJson(fmt.Errorf("%w: holdings or userID is required", domain.ErrValidation), c)
		return
	}

	ctx, cancel := m.requestContext(c)
	defer cancel()

	rec, err := m.RecommendationService.GenerateRecommendation(ctx, l3_service.RecommendationInput{
		Profile:             profile,
		Holdings:            holdings,
		UserID:              requestBody.UserID,
		TotalPortfolioValue: requestBody.TotalPortfolioValue,
	})
	if err != nil {
		returnErrorJson(fmt.Errorf("failed to generate recommendation: %w", err), c)
		return
	}

	response := RecommendationResponse{
		Recommendation: rec,
	}
	if requestBody.Simulation != nil {
		result, err := m.RecommendationService.RunSimulation(ctx, l3_service.RunSimulationInput{
			Holdings:        holdings,
			UserID:          requestBody.UserID,
			Allocation:      rec.Allocation,
			HorizonDays:     requestBody.Simulation.HorizonDays,
			BenchmarkSymbol: requestBody.Simulation.BenchmarkSymbol,
		})
		if err != nil {
			returnErrorJson(fmt.Errorf("failed to simulate recommendation: %w", err), c)
			return
		}
		response.Simulation = result
	}

	c.JSON(200, response)
}
