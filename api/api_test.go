package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"rebalanceadvisor/internal/db/models/postgres/public/model"
	"rebalanceadvisor/internal/domain"
	mock_repository "rebalanceadvisor/internal/repository/mocks"
	l1_service "rebalanceadvisor/internal/service/l1"
	l3_service "rebalanceadvisor/internal/service/l3"
	mock_l3_service "rebalanceadvisor/internal/service/l3/mocks"

	"github.com/gin-gonic/gin"
	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type apiFixture struct {
	recommendationService *mock_l3_service.MockRecommendationService
	strategyRepository    *mock_repository.MockStrategyRepository
	router                *gin.Engine
}

func newApiFixture(t *testing.T) apiFixture {
	gin.SetMode(gin.TestMode)
	ctrl := gomock.NewController(t)
	f := apiFixture{
		recommendationService: mock_l3_service.NewMockRecommendationService(ctrl),
		strategyRepository:    mock_repository.NewMockStrategyRepository(ctrl),
	}
	handler := ApiHandler{
		RecommendationService: f.recommendationService,
		CatalogService:        l1_service.NewCatalogService(f.strategyRepository),
		RequestTimeout:        time.Second,
	}
	f.router = handler.InitializeRouterEngine()
	return f
}

func (f apiFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body == nil {
		reader = bytes.NewReader(nil)
	} else if s, ok := body.(string); ok {
		reader = bytes.NewReader([]byte(s))
	} else {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func errorBody(t *testing.T, w *httptest.ResponseRecorder) string {
	out := map[string]string{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out["error"]
}

func TestRecommendation(t *testing.T) {
	profile := map[string]any{
		"riskTolerance":          "Moderate",
		"investmentGoal":         "growth",
		"investmentHorizonYears": 10,
	}

	t.Run("generates recommendation", func(t *testing.T) {
		f := newApiFixture(t)
		id := uuid.New()
		var got l3_service.RecommendationInput
		f.recommendationService.EXPECT().
			GenerateRecommendation(gomock.Any(), gomock.Any()).
			DoAndReturn(func(ctx context.Context, in l3_service.RecommendationInput) (*domain.Recommendation, error) {
				got = in
				return &domain.Recommendation{
					RecommendationID: id,
					Allocation:       domain.BlendedAllocation{Weights: map[string]float64{"VTI": 1}},
				}, nil
			})

		w := f.do(t, http.MethodPost, "/recommendation", map[string]any{
			"profile": profile,
			"holdings": []map[string]any{
				{"symbol": " vti ", "quantity": "10", "currentPrice": 200},
			},
		})

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		require.NotEmpty(t, w.Header().Get(requestIDHeader))
		require.Equal(t, domain.RiskTolerance_Moderate, got.Profile.RiskTolerance)
		require.Equal(t, domain.InvestmentGoal_Growth, got.Profile.InvestmentGoal)
		require.Len(t, got.Holdings, 1)
		require.Equal(t, "VTI", got.Holdings[0].Symbol)
		require.Equal(t, "10", got.Holdings[0].Quantity.String())
		require.Equal(t, "200", got.Holdings[0].CurrentPrice.String())

		response := RecommendationResponse{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		require.Equal(t, id, response.Recommendation.RecommendationID)
		require.Nil(t, response.Simulation)
	})

	t.Run("loads stored holdings and simulates", func(t *testing.T) {
		f := newApiFixture(t)
		allocation := domain.BlendedAllocation{Weights: map[string]float64{"VTI": 0.6, "BND": 0.4}}
		f.recommendationService.EXPECT().
			GenerateRecommendation(gomock.Any(), gomock.Any()).
			DoAndReturn(func(ctx context.Context, in l3_service.RecommendationInput) (*domain.Recommendation, error) {
				require.Nil(t, in.Holdings)
				require.Equal(t, "user-1", in.UserID)
				return &domain.Recommendation{Allocation: allocation}, nil
			})
		f.recommendationService.EXPECT().
			RunSimulation(gomock.Any(), gomock.Any()).
			DoAndReturn(func(ctx context.Context, in l3_service.RunSimulationInput) (*domain.SimulationResult, error) {
				require.Equal(t, "user-1", in.UserID)
				require.Equal(t, 365, in.HorizonDays)
				require.Equal(t, "SPY", in.BenchmarkSymbol)
				require.Equal(t, "", cmp.Diff(allocation.Weights, in.Allocation.Weights))
				return &domain.SimulationResult{Mode: domain.SimulationMode_Projected, HorizonDays: 365}, nil
			})

		w := f.do(t, http.MethodPost, "/recommendation", map[string]any{
			"profile":    profile,
			"userID":     "user-1",
			"simulation": map[string]any{"horizonDays": 365, "benchmarkSymbol": "SPY"},
		})

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		response := RecommendationResponse{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		require.NotNil(t, response.Simulation)
		require.Equal(t, domain.SimulationMode_Projected, response.Simulation.Mode)
	})

	t.Run("rejects unknown risk tolerance", func(t *testing.T) {
		f := newApiFixture(t)
		w := f.do(t, http.MethodPost, "/recommendation", map[string]any{
			"profile":  map[string]any{"riskTolerance": "reckless", "investmentGoal": "growth"},
			"holdings": []any{},
		})
		require.Equal(t, http.StatusBadRequest, w.Code)
		require.Contains(t, errorBody(t, w), "reckless")
	})

	t.Run("requires holdings or user", func(t *testing.T) {
		f := newApiFixture(t)
		w := f.do(t, http.MethodPost, "/recommendation", map[string]any{"profile": profile})
		require.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("rejects malformed body", func(t *testing.T) {
		f := newApiFixture(t)
		w := f.do(t, http.MethodPost, "/recommendation", "{not json")
		require.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("maps engine errors", func(t *testing.T) {
		for _, tc := range []struct {
			err  error
			code int
		}{
			{domain.ErrNoEligibleStrategy, http.StatusUnprocessableEntity},
			{domain.ErrOverConstrained, http.StatusUnprocessableEntity},
			{domain.ErrInsufficientData, http.StatusUnprocessableEntity},
			{domain.ErrTimeout, http.StatusGatewayTimeout},
			{domain.ErrValidation, http.StatusBadRequest},
			{fmt.Errorf("db down"), http.StatusInternalServerError},
		} {
			f := newApiFixture(t)
			f.recommendationService.EXPECT().
				GenerateRecommendation(gomock.Any(), gomock.Any()).
				Return(nil, fmt.Errorf("wrapped: %w", tc.err))

			w := f.do(t, http.MethodPost, "/recommendation", map[string]any{
				"profile":  profile,
				"holdings": []any{},
			})
			require.Equal(t, tc.code, w.Code, tc.err.Error())
			require.Contains(t, errorBody(t, w), tc.err.Error())
		}
	})
}

func TestSimulation(t *testing.T) {
	t.Run("runs simulation", func(t *testing.T) {
		f := newApiFixture(t)
		f.recommendationService.EXPECT().
			RunSimulation(gomock.Any(), gomock.Any()).
			DoAndReturn(func(ctx context.Context, in l3_service.RunSimulationInput) (*domain.SimulationResult, error) {
				_, hasDeadline := ctx.Deadline()
				require.True(t, hasDeadline)
				require.Equal(t, time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC), in.AsOf)
				require.True(t, in.ForceHistorical)
				require.Equal(t, "", cmp.Diff(map[string]float64{"VTI": 1}, in.Allocation.Weights))
				require.NotNil(t, in.Holdings)
				require.Empty(t, in.Holdings)
				return &domain.SimulationResult{Mode: domain.SimulationMode_Historical, HorizonDays: 30}, nil
			})

		w := f.do(t, http.MethodPost, "/simulation", map[string]any{
			"holdings":        []any{},
			"allocation":      map[string]float64{"VTI": 1},
			"horizonDays":     30,
			"asOf":            "2024-06-03",
			"forceHistorical": true,
		})

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		result := domain.SimulationResult{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
		require.Equal(t, domain.SimulationMode_Historical, result.Mode)
	})

	t.Run("rejects bad date", func(t *testing.T) {
		f := newApiFixture(t)
		w := f.do(t, http.MethodPost, "/simulation", map[string]any{
			"allocation":  map[string]float64{"VTI": 1},
			"horizonDays": 30,
			"asOf":        "06/03/2024",
		})
		require.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("insufficient data", func(t *testing.T) {
		f := newApiFixture(t)
		f.recommendationService.EXPECT().
			RunSimulation(gomock.Any(), gomock.Any()).
			Return(nil, fmt.Errorf("%w: horizon must be positive", domain.ErrInsufficientData))

		w := f.do(t, http.MethodPost, "/simulation", map[string]any{
			"allocation": map[string]float64{"VTI": 1},
		})
		require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})
}

func TestStrategies(t *testing.T) {
	strategies := []domain.Strategy{
		{ID: "bonds", Name: "Bonds", RiskLevel: domain.RiskLevel_Low, StyleTags: []string{"income"}, TargetAllocation: map[string]float64{"BND": 1}, Active: true},
		{ID: "growth", Name: "Growth", RiskLevel: domain.RiskLevel_High, StyleTags: []string{"growth"}, TargetAllocation: map[string]float64{"QQQ": 1}, Active: true},
		{ID: "dividends", Name: "Dividends", RiskLevel: domain.RiskLevel_Medium, StyleTags: []string{"income"}, TargetAllocation: map[string]float64{"VYM": 1}, Active: true},
	}

	ids := func(t *testing.T, w *httptest.ResponseRecorder) []string {
		response := StrategiesResponse{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		out := []string{}
		for _, s := range response.Strategies {
			out = append(out, s.ID)
		}
		return out
	}

	t.Run("lists all", func(t *testing.T) {
		f := newApiFixture(t)
		f.strategyRepository.EXPECT().ListActive(gomock.Any()).Return(strategies, nil)

		w := f.do(t, http.MethodGet, "/strategies", nil)
		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, "", cmp.Diff([]string{"bonds", "dividends", "growth"}, ids(t, w)))
	})

	t.Run("filters by tag and risk level", func(t *testing.T) {
		f := newApiFixture(t)
		f.strategyRepository.EXPECT().ListActive(gomock.Any()).Return(strategies, nil)

		w := f.do(t, http.MethodGet, "/strategies?tag=Income&riskLevel=medium", nil)
		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, "", cmp.Diff([]string{"dividends"}, ids(t, w)))
	})

	t.Run("rejects unknown risk level", func(t *testing.T) {
		f := newApiFixture(t)
		w := f.do(t, http.MethodGet, "/strategies?riskLevel=extreme", nil)
		require.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("catalog failure", func(t *testing.T) {
		f := newApiFixture(t)
		f.strategyRepository.EXPECT().ListActive(gomock.Any()).Return(nil, fmt.Errorf("connection refused"))

		w := f.do(t, http.MethodGet, "/strategies", nil)
		require.Equal(t, http.StatusInternalServerError, w.Code)
		require.Contains(t, errorBody(t, w), "connection refused")
	})
}

type recordingApiRequestRepository struct {
	records []model.APIRequest
}

func (r *recordingApiRequestRepository) Add(ctx context.Context, ar model.APIRequest) error {
	r.records = append(r.records, ar)
	return nil
}

func TestRequestLog(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctrl := gomock.NewController(t)
	recommendationService := mock_l3_service.NewMockRecommendationService(ctrl)
	requests := &recordingApiRequestRepository{}
	handler := ApiHandler{
		RecommendationService: recommendationService,
		CatalogService:        l1_service.NewCatalogService(mock_repository.NewMockStrategyRepository(ctrl)),
		ApiRequestRepository:  requests,
	}
	f := apiFixture{router: handler.InitializeRouterEngine()}

	recommendationService.EXPECT().
		RunSimulation(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, in l3_service.RunSimulationInput) (*domain.SimulationResult, error) {
			require.Equal(t, "u-42", in.UserID)
			_, hasDeadline := ctx.Deadline()
			require.False(t, hasDeadline)
			_, endSpan := domain.GetProfile(ctx).StartNewSpan("simulate")
			endSpan()
			return &domain.SimulationResult{Mode: domain.SimulationMode_Projected, HorizonDays: 30}, nil
		})

	w := f.do(t, http.MethodPost, "/simulation", map[string]any{
		"userID":      "u-42",
		"allocation":  map[string]float64{"VTI": 1},
		"horizonDays": 30,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	require.Len(t, requests.records, 1)
	record := requests.records[0]
	require.Equal(t, w.Header().Get(requestIDHeader), record.RequestID.String())
	require.Equal(t, http.MethodPost, record.Method)
	require.Equal(t, "/simulation", record.Route)
	require.NotNil(t, record.UserID)
	require.Equal(t, "u-42", *record.UserID)
	require.NotNil(t, record.StatusCode)
	require.Equal(t, int32(http.StatusOK), *record.StatusCode)
	require.NotNil(t, record.ResponseBody)
	require.Equal(t, w.Body.String(), *record.ResponseBody)
	require.NotNil(t, record.ProcessingTimes)
	require.Contains(t, *record.ProcessingTimes, "simulate")
}
