package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"rebalanceadvisor/internal/db/models/postgres/public/model"
	"rebalanceadvisor/internal/db/models/postgres/public/table"
	"rebalanceadvisor/internal/domain"

	"github.com/go-jet/jet/v2/postgres"
	"github.com/go-jet/jet/v2/qrm"
)

type HoldingsRepository interface {
	GetHoldings(ctx context.Context, userID string) ([]domain.Holding, error)
}

// HoldingsWriter is implemented by stores that accept imported holdings.
type HoldingsWriter interface {
	ReplaceHoldings(ctx context.Context, tx *sql.Tx, userID string, holdings []domain.Holding) error
}

type HoldingsStore interface {
	HoldingsRepository
	HoldingsWriter
}

type holdingsRepositoryHandler struct {
	Db *sql.DB
}

func NewHoldingsRepository(db *sql.DB) HoldingsStore {
	return holdingsRepositoryHandler{Db: db}
}

func (h holdingsRepositoryHandler) GetHoldings(ctx context.Context, userID string) ([]domain.Holding, error) {
	query := table.UserHolding.
		SELECT(table.UserHolding.AllColumns).
		WHERE(table.UserHolding.UserID.EQ(postgres.String(userID))).
		ORDER_BY(table.UserHolding.Symbol.ASC())

	result := []model.UserHolding{}
	err := query.QueryContext(ctx, h.Db, &result)
	if err != nil && !errors.Is(err, qrm.ErrNoRows) {
		return nil, fmt.Errorf("failed to get holdings for user %s: %w", userID, err)
	}

	out := []domain.Holding{}
	for _, r := range result {
		out = append(out, domain.Holding{
			Symbol:       r.Symbol,
			Quantity:     r.Quantity,
			CostBasis:    r.CostBasis,
			CurrentPrice: r.CurrentPrice,
			Currency:     r.Currency,
		})
	}

	return out, nil
}

// ReplaceHoldings deletes every holding of the user and inserts the given
// set. Runs inside tx when one is given.
func (h holdingsRepositoryHandler) ReplaceHoldings(ctx context.Context, tx *sql.Tx, userID string, holdings []domain.Holding) error {
	var db qrm.Executable = h.Db
	if tx != nil {
		db = tx
	}

	deleteQuery := table.UserHolding.
		DELETE().
		WHERE(table.UserHolding.UserID.EQ(postgres.String(userID)))
	if _, err := deleteQuery.ExecContext(ctx, db); err != nil {
		return fmt.Errorf("failed to clear holdings for user %s: %w", userID, err)
	}
	if len(holdings) == 0 {
		return nil
	}

	models := []model.UserHolding{}
	for _, hd := range holdings {
		models = append(models, model.UserHolding{
			UserID:       userID,
			Symbol:       strings.ToUpper(hd.Symbol),
			Quantity:     hd.Quantity,
			CostBasis:    hd.CostBasis,
			CurrentPrice: hd.CurrentPrice,
			Currency:     hd.Currency,
			UpdatedAt:    time.Now().UTC(),
		})
	}

	query := table.UserHolding.
		INSERT(table.UserHolding.MutableColumns).
		MODELS(models)
	if _, err := query.ExecContext(ctx, db); err != nil {
		return fmt.Errorf("failed to insert holdings for user %s: %w", userID, err)
	}

	return nil
}
