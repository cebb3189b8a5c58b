package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"rebalanceadvisor/internal/db/models/postgres/public/model"
	"rebalanceadvisor/internal/domain"
	"rebalanceadvisor/internal/logger"
	"rebalanceadvisor/internal/repository"
	l1_service "rebalanceadvisor/internal/service/l1"
	l3_service "rebalanceadvisor/internal/service/l3"
	"rebalanceadvisor/internal/util"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const requestIDHeader = "X-Request-ID"

type ApiHandler struct {
	RecommendationService l3_service.RecommendationService
	CatalogService        l1_service.CatalogService
	// requests are not recorded when nil
	ApiRequestRepository repository.ApiRequestRepository
	Logger               *zap.SugaredLogger
	// 0 disables the per-request deadline
	RequestTimeout time.Duration
}

func (m ApiHandler) InitializeRouterEngine() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.Default())
	router.Use(m.logRequestMiddleware)

	router.GET("/", func(ctx *gin.Context) {
		ctx.JSON(200, map[string]string{"message": "welcome to rebalance advisor"})
	})
	router.POST("/recommendation", m.recommendation)
	router.POST("/simulation", m.simulation)
	router.GET("/strategies", m.strategies)

	return router
}

func (m ApiHandler) StartApi(port int) error {
	return m.InitializeRouterEngine().Run(fmt.Sprintf(":%d", port))
}

// errorStatus maps engine errors to http codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNoEligibleStrategy),
		errors.Is(err, domain.ErrOverConstrained),
		errors.Is(err, domain.ErrInsufficientData):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func returnErrorJson(err error, c *gin.Context) {
	code := errorStatus(err)
	log := logger.FromContext(c.Request.Context())
	if code >= 500 {
		log.Errorf("request failed: %v", err)
	} else {
		log.Warnf("request rejected: %v", err)
	}
	c.AbortWithStatusJSON(code, gin.H{
		"error": err.Error(),
	})
}

// requestContext applies the request deadline. The returned cancel must
// be called.
func (m ApiHandler) requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	ctx := c.Request.Context()
	if m.RequestTimeout > 0 {
		return context.WithTimeout(ctx, m.RequestTimeout)
	}
	return context.WithCancel(ctx)
}

type responseBodyWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (r responseBodyWriter) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

// logRequestMiddleware tags the request with an id, carries a request
// logger and a latency profile on the context, and logs the outcome.
func (m ApiHandler) logRequestMiddleware(c *gin.Context) {
	requestID := uuid.New()
	c.Writer.Header().Set(requestIDHeader, requestID.String())

	base := m.Logger
	if base == nil {
		base = zap.S()
	}
	log := base.With(
		"requestID", requestID.String(),
		"method", c.Request.Method,
		"route", c.Request.URL.Path,
	)

	var (
		body []byte
		w    *responseBodyWriter
	)
	if m.ApiRequestRepository != nil {
		w = &responseBodyWriter{body: &bytes.Buffer{}, ResponseWriter: c.Writer}
		c.Writer = w

		raw, err := c.GetRawData()
		if err != nil {
			log.Warnf("failed to read request body: %v", err)
		}
		body = raw
		c.Request.Body = io.NopCloser(bytes.NewReader(body))
	}

	ctx, profile := domain.NewCtxWithProfile(logger.WithContext(c.Request.Context(), log))
	c.Request = c.Request.WithContext(ctx)

	start := time.Now().UTC()
	c.Next()
	profile.End()
	duration := time.Since(start).Milliseconds()

	log.Infow("request completed",
		"status", c.Writer.Status(),
		"durationMs", duration,
	)

	if m.ApiRequestRepository != nil {
		m.recordRequest(ctx, requestRecord{
			requestID: requestID,
			clientIP:  c.ClientIP(),
			method:    c.Request.Method,
			route:     c.Request.URL.Path,
			body:      body,
			status:    c.Writer.Status(),
			response:  w.body.String(),
			duration:  duration,
			start:     start,
			profile:   profile,
		})
	}
}

type requestRecord struct {
	requestID uuid.UUID
	clientIP  string
	method    string
	route     string
	body      []byte
	status    int
	response  string
	duration  int64
	start     time.Time
	profile   *domain.Profile
}

func (m ApiHandler) recordRequest(ctx context.Context, r requestRecord) {
	log := logger.FromContext(ctx)

	ar := model.APIRequest{
		RequestID:    r.requestID,
		IPAddress:    util.StringPointer(r.clientIP),
		Method:       r.method,
		Route:        r.route,
		StatusCode:   int32Ptr(int32(r.status)),
		DurationMs:   &r.duration,
		ResponseBody: util.StringPointer(r.response),
		StartTs:      r.start,
	}
	if len(r.body) > 0 {
		ar.RequestBody = util.StringPointer(string(r.body))

		userBody := struct {
			UserID string `json:"userID"`
		}{}
		if err := json.Unmarshal(r.body, &userBody); err == nil && userBody.UserID != "" {
			ar.UserID = util.StringPointer(userBody.UserID)
		}
	}
	if spans, err := r.profile.ToJsonBytes(); err == nil {
		ar.ProcessingTimes = util.StringPointer(string(spans))
	}

	if err := m.ApiRequestRepository.Add(ctx, ar); err != nil {
		log.Warnf("failed to record request: %v", err)
	}
}

func int32Ptr(i int32) *int32 {
	return &i
}
