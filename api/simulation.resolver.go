package api

import (
	"fmt"
	"time"

	"rebalanceadvisor/internal/domain"
	l3_service "rebalanceadvisor/internal/service/l3"
	"rebalanceadvisor/internal/util"

	"github.com/gin-gonic/gin"
)

type SimulationRequest struct {
	Holdings        *[]HoldingRequest  `json:"holdings"`
	UserID          string             `json:"userID"`
	Allocation      map[string]float64 `json:"allocation"`
	HorizonDays     int                `json:"horizonDays"`
	BenchmarkSymbol string             `json:"benchmarkSymbol"`
	// YYYY-MM-DD, defaults to today
	AsOf            string `json:"asOf"`
	ForceHistorical bool   `json:"forceHistorical"`
}

func (m ApiHandler) simulation(c *gin.Context) {
	var requestBody SimulationRequest
	if err := c.ShouldBindJSON(&requestBody); err != nil {
		returnErrorJson(fmt.Errorf("%w: invalid request body: %s", domain.ErrValidation, err.Error()), c)
		return
	}

	var asOf time.Time
	if requestBody.AsOf != "" {
		t, err := util.ParseDate(requestBody.AsOf)
		if err != nil {
			returnErrorJson(fmt.Errorf("%w: invalid asOf %q", domain.ErrValidation, requestBody.AsOf), c)
			return
		}
		asOf = t
	}

	var holdings []domain.Holding
	if requestBody.Holdings != nil {
		holdings = holdingsToDomain(*requestBody.Holdings)
	}

	ctx, cancel := m.requestContext(c)
	defer cancel()

	result, err := m.RecommendationService.RunSimulation(ctx, l3_service.RunSimulationInput{
		Holdings:        holdings,
		UserID:          requestBody.UserID,
		Allocation:      domain.BlendedAllocation{Weights: requestBody.Allocation},
		HorizonDays:     requestBody.HorizonDays,
		BenchmarkSymbol: requestBody.BenchmarkSymbol,
		AsOf:            asOf,
		ForceHistorical: requestBody.ForceHistorical,
	})
	if err != nil {
		returnErrorJson(fmt.Errorf("failed to run simulation: %w", err), c)
		return
	}

	c.JSON(200, result)
}
