package api

import (
	"fmt"
	"strings"

	"rebalanceadvisor/internal/domain"
	l1_service "rebalanceadvisor/internal/service/l1"

	"github.com/gin-gonic/gin"
)

type StrategiesResponse struct {
	Strategies []domain.Strategy `json:"strategies"`
}

// strategies lists the active catalog, optionally filtered by ?riskLevel=
// and ?tag=.
func (m ApiHandler) strategies(c *gin.Context) {
	filter := l1_service.CatalogFilter{}
	if v := c.Query("riskLevel"); v != "" {
		riskLevel, err := domain.NewRiskLevel(v)
		if err != nil {
			returnErrorJson(err, c)
			return
		}
		filter.RiskLevel = &riskLevel
	}
	if v := strings.TrimSpace(c.Query("tag")); v != "" {
		filter.StyleTag = &v
	}

	ctx, cancel := m.requestContext(c)
	defer cancel()

	catalog, err := m.CatalogService.Snapshot(ctx)
	if err != nil {
		returnErrorJson(fmt.Errorf("failed to load strategies: %w", err), c)
		return
	}

	c.JSON(200, StrategiesResponse{
		Strategies: catalog.Filter(filter),
	})
}
