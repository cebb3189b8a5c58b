package domain

import (
	"fmt"
	"strings"
)

type RiskTolerance string

const (
	RiskTolerance_Conservative RiskTolerance = "conservative"
	RiskTolerance_Moderate     RiskTolerance = "moderate"
	RiskTolerance_Aggressive   RiskTolerance = "aggressive"
)

type InvestmentGoal string

const (
	InvestmentGoal_Growth         InvestmentGoal = "growth"
	InvestmentGoal_Income         InvestmentGoal = "income"
	InvestmentGoal_Retirement     InvestmentGoal = "retirement"
	InvestmentGoal_WealthBuilding InvestmentGoal = "wealth_building"
	InvestmentGoal_Preservation   InvestmentGoal = "preservation"
)

func NewRiskTolerance(s string) (RiskTolerance, error) {
	switch RiskTolerance(strings.ToLower(strings.TrimSpace(s))) {
	case RiskTolerance_Conservative:
		return RiskTolerance_Conservative, nil
	case RiskTolerance_Moderate:
		return RiskTolerance_Moderate, nil
	case RiskTolerance_Aggressive:
		return RiskTolerance_Aggressive, nil
	}
	return "", fmt.Errorf("%w: unknown risk tolerance %q", ErrValidation, s)
}

func NewInvestmentGoal(s string) (InvestmentGoal, error) {
	switch InvestmentGoal(strings.ToLower(strings.TrimSpace(s))) {
	case InvestmentGoal_Growth:
		return InvestmentGoal_Growth, nil
	case InvestmentGoal_Income:
		return InvestmentGoal_Income, nil
	case InvestmentGoal_Retirement:
		return InvestmentGoal_Retirement, nil
	case InvestmentGoal_WealthBuilding:
		return InvestmentGoal_WealthBuilding, nil
	case InvestmentGoal_Preservation:
		return InvestmentGoal_Preservation, nil
	}
	return "", fmt.Errorf("%w: unknown investment goal %q", ErrValidation, s)
}

type UserProfile struct {
	RiskTolerance          RiskTolerance  `json:"riskTolerance"`
	InvestmentGoal         InvestmentGoal `json:"investmentGoal"`
	InvestmentHorizonYears int            `json:"investmentHorizonYears"`
}

// Normalize returns the profile with its tolerance and goal in canonical
// form, or ErrValidation when either is unknown or the horizon is negative.
func (p UserProfile) Normalize() (UserProfile, error) {
	tolerance, err := NewRiskTolerance(string(p.RiskTolerance))
	if err != nil {
		return UserProfile{}, err
	}
	goal, err := NewInvestmentGoal(string(p.InvestmentGoal))
	if err != nil {
		return UserProfile{}, err
	}
	if p.InvestmentHorizonYears < 0 {
		return UserProfile{}, fmt.Errorf("%w: investment horizon must be >= 0, got %d", ErrValidation, p.InvestmentHorizonYears)
	}
	return UserProfile{
		RiskTolerance:          tolerance,
		InvestmentGoal:         goal,
		InvestmentHorizonYears: p.InvestmentHorizonYears,
	}, nil
}

func (p UserProfile) Validate() error {
	_, err := p.Normalize()
	return err
}

// ProfileAnalysis is the derived view of a profile that is returned
// alongside a recommendation.
type ProfileAnalysis struct {
	RiskScore       int     `json:"riskScore"`
	GrowthWeight    float64 `json:"growthWeight"`
	StabilityWeight float64 `json:"stabilityWeight"`
}

// Analyze scores the profile on a 10-90 scale. Longer horizons can carry
// more risk, short ones less. p should already be normalized.
func (p UserProfile) Analyze() ProfileAnalysis {
	score := 50
	switch p.RiskTolerance {
	case RiskTolerance_Conservative:
		score = 25
	case RiskTolerance_Aggressive:
		score = 80
	}
	if p.InvestmentHorizonYears > 15 {
		score += 10
	} else if p.InvestmentHorizonYears < 5 {
		score -= 15
	}
	score = max(10, min(90, score))

	growth := 0.8
	switch p.InvestmentGoal {
	case InvestmentGoal_WealthBuilding:
		growth = 0.7
	case InvestmentGoal_Retirement:
		growth = 0.5
	case InvestmentGoal_Income:
		growth = 0.3
	case InvestmentGoal_Preservation:
		growth = 0.2
	}

	return ProfileAnalysis{
		RiskScore:       score,
		GrowthWeight:    growth,
		StabilityWeight: 1 - growth,
	}
}
