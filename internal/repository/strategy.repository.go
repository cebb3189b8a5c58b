package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"rebalanceadvisor/internal/db/models/postgres/public/model"
	"rebalanceadvisor/internal/db/models/postgres/public/table"
	"rebalanceadvisor/internal/domain"

	"github.com/go-jet/jet/v2/postgres"
	"github.com/go-jet/jet/v2/qrm"
)

type StrategyRepository interface {
	ListActive(ctx context.Context) ([]domain.Strategy, error)
	List(ctx context.Context, filter StrategyListFilter) ([]domain.Strategy, error)
	Add(ctx context.Context, strategies []domain.Strategy) error
}

type StrategyListFilter struct {
	RiskLevel       *domain.RiskLevel
	IncludeInactive bool
}

type strategyRepositoryHandler struct {
	Db *sql.DB
}

func NewStrategyRepository(db *sql.DB) StrategyRepository {
	return strategyRepositoryHandler{Db: db}
}

func (h strategyRepositoryHandler) ListActive(ctx context.Context) ([]domain.Strategy, error) {
	return h.List(ctx, StrategyListFilter{})
}

func (h strategyRepositoryHandler) List(ctx context.Context, filter StrategyListFilter) ([]domain.Strategy, error) {
	conditions := []postgres.BoolExpression{}
	if !filter.IncludeInactive {
		conditions = append(conditions, table.ExpertStrategy.Active.IS_TRUE())
	}
	if filter.RiskLevel != nil {
		conditions = append(conditions, table.ExpertStrategy.RiskLevel.EQ(postgres.String(string(*filter.RiskLevel))))
	}

	query := table.ExpertStrategy.
		SELECT(table.ExpertStrategy.AllColumns).
		ORDER_BY(table.ExpertStrategy.ExpertStrategyID.ASC())
	if len(conditions) > 0 {
		query = query.WHERE(postgres.AND(conditions...))
	}

	result := []model.ExpertStrategy{}
	err := query.QueryContext(ctx, h.Db, &result)
	if errors.Is(err, qrm.ErrNoRows) {
		return []domain.Strategy{}, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to list expert strategies: %w", err)
	}

	out := []domain.Strategy{}
	for _, m := range result {
		s, err := strategyFromModel(m)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}

	return out, nil
}

func (h strategyRepositoryHandler) Add(ctx context.Context, strategies []domain.Strategy) error {
	if len(strategies) == 0 {
		return nil
	}
	models := []model.ExpertStrategy{}
	for _, s := range strategies {
		m, err := strategyToModel(s)
		if err != nil {
			return err
		}
		models = append(models, *m)
	}

	t := table.ExpertStrategy
	query := t.
		INSERT(t.AllColumns).
		MODELS(models).
		ON_CONFLICT(t.ExpertStrategyID).
		DO_UPDATE(
			postgres.SET(
				t.Name.SET(t.EXCLUDED.Name),
				t.RiskLevel.SET(t.EXCLUDED.RiskLevel),
				t.StyleTags.SET(t.EXCLUDED.StyleTags),
				t.TargetAllocation.SET(t.EXCLUDED.TargetAllocation),
				t.ExpectedReturn.SET(t.EXCLUDED.ExpectedReturn),
				t.Volatility.SET(t.EXCLUDED.Volatility),
				t.MaxDrawdown.SET(t.EXCLUDED.MaxDrawdown),
				t.SharpeRatio.SET(t.EXCLUDED.SharpeRatio),
				t.Sources.SET(t.EXCLUDED.Sources),
				t.Active.SET(t.EXCLUDED.Active),
			),
		)

	_, err := query.ExecContext(ctx, h.Db)
	if err != nil {
		return fmt.Errorf("failed to add expert strategies: %w", err)
	}

	return nil
}

// allocation, tags and sources are stored as json text
func strategyFromModel(m model.ExpertStrategy) (*domain.Strategy, error) {
	allocation := map[string]float64{}
	if err := json.Unmarshal([]byte(m.TargetAllocation), &allocation); err != nil {
		return nil, fmt.Errorf("failed to decode allocation for strategy %s: %w", m.ExpertStrategyID, err)
	}
	tags := []string{}
	if m.StyleTags != "" {
		if err := json.Unmarshal([]byte(m.StyleTags), &tags); err != nil {
			return nil, fmt.Errorf("failed to decode style tags for strategy %s: %w", m.ExpertStrategyID, err)
		}
	}
	sources := []string{}
	if m.Sources != "" {
		if err := json.Unmarshal([]byte(m.Sources), &sources); err != nil {
			return nil, fmt.Errorf("failed to decode sources for strategy %s: %w", m.ExpertStrategyID, err)
		}
	}
	riskLevel, err := domain.NewRiskLevel(m.RiskLevel)
	if err != nil {
		return nil, fmt.Errorf("strategy %s: %w", m.ExpertStrategyID, err)
	}

	return &domain.Strategy{
		ID:               m.ExpertStrategyID,
		Name:             m.Name,
		StyleTags:        tags,
		TargetAllocation: allocation,
		ExpectedReturn:   m.ExpectedReturn,
		Volatility:       m.Volatility,
		MaxDrawdown:      m.MaxDrawdown,
		SharpeRatio:      m.SharpeRatio,
		RiskLevel:        riskLevel,
		Sources:          sources,
		Active:           m.Active,
	}, nil
}

func strategyToModel(s domain.Strategy) (*model.ExpertStrategy, error) {
	allocation, err := json.Marshal(s.TargetAllocation)
	if err != nil {
		return nil, fmt.Errorf("failed to encode allocation for strategy %s: %w", s.ID, err)
	}
	tags, err := json.Marshal(nonNil(s.StyleTags))
	if err != nil {
		return nil, err
	}
	sources, err := json.Marshal(nonNil(s.Sources))
	if err != nil {
		return nil, err
	}

	return &model.ExpertStrategy{
		ExpertStrategyID: s.ID,
		Name:             s.Name,
		RiskLevel:        string(s.RiskLevel),
		StyleTags:        string(tags),
		TargetAllocation: string(allocation),
		ExpectedReturn:   s.ExpectedReturn,
		Volatility:       s.Volatility,
		MaxDrawdown:      s.MaxDrawdown,
		SharpeRatio:      s.SharpeRatio,
		Sources:          string(sources),
		Active:           s.Active,
		CreatedAt:        time.Now().UTC(),
	}, nil
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
