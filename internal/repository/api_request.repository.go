package repository

import (
	"context"
	"database/sql"
	"fmt"

	"rebalanceadvisor/internal/db/models/postgres/public/model"
	"rebalanceadvisor/internal/db/models/postgres/public/table"

	"github.com/google/uuid"
)

// ApiRequestRepository records served API requests with their latency
// profile.
type ApiRequestRepository interface {
	Add(ctx context.Context, ar model.APIRequest) error
}

type apiRequestRepositoryHandler struct {
	Db *sql.DB
}

func NewApiRequestRepository(db *sql.DB) ApiRequestRepository {
	return apiRequestRepositoryHandler{Db: db}
}

func (h apiRequestRepositoryHandler) Add(ctx context.Context, ar model.APIRequest) error {
	if ar.RequestID == uuid.Nil {
		ar.RequestID = uuid.New()
	}

	query := table.APIRequest.
		INSERT(table.APIRequest.AllColumns).
		MODEL(ar)

	if _, err := query.ExecContext(ctx, h.Db); err != nil {
		return fmt.Errorf("failed to insert api request %s: %w", ar.RequestID, err)
	}
	return nil
}
