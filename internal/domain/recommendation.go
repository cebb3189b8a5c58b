package domain

import (
	"time"

	"github.com/google/uuid"
)

type Recommendation struct {
	RecommendationID uuid.UUID         `json:"recommendationID"`
	CreatedAt        time.Time         `json:"createdAt"`
	Profile          UserProfile       `json:"profile"`
	Analysis         ProfileAnalysis   `json:"analysis"`
	MatchResults     []MatchResult     `json:"matchResults"`
	Allocation       BlendedAllocation `json:"allocation"`
	Actions          []RebalanceAction `json:"actions"`
	Warnings         []string          `json:"warnings,omitempty"`
}
