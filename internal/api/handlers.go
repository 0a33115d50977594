// Package api exposes the diagnosis service over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/digipath/maturity-diagnosis/internal/analysis"
	"github.com/digipath/maturity-diagnosis/internal/database"
	"github.com/digipath/maturity-diagnosis/internal/diagnosis"
	apperrors "github.com/digipath/maturity-diagnosis/internal/errors"
	"github.com/digipath/maturity-diagnosis/internal/knowledge"
	"github.com/digipath/maturity-diagnosis/internal/ml"
	"github.com/digipath/maturity-diagnosis/internal/security"
	"github.com/digipath/maturity-diagnosis/internal/types"
)

// DiagnosisService is the business surface behind the diagnosis routes.
type DiagnosisService interface {
	Submit(ctx context.Context, ownerID string, answers []analysis.RawAnswer) (*diagnosis.Summary, error)
	History(ctx context.Context, ownerID string) ([]diagnosis.Summary, error)
	Report(ctx context.Context, ownerID string, id int64) (*diagnosis.Report, error)
}

// Catalog lists the survey questions.
type Catalog interface {
	Questions() []knowledge.Question
}

// ArtifactStatus reports whether the model release is loaded.
type ArtifactStatus interface {
	Status() (loaded bool, version string, err error)
}

// HealthChecker is anything that can be pinged.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Handler serves the API routes.
type Handler struct {
	service   DiagnosisService
	catalog   Catalog
	artifacts ArtifactStatus
	db        HealthChecker
	redis     HealthChecker
	started   time.Time
}

// NewHandler wires a Handler. redis may be nil when no Redis is configured.
func NewHandler(service DiagnosisService, catalog Catalog, artifacts ArtifactStatus, db, redis HealthChecker) *Handler {
	return &Handler{
		service:   service,
		catalog:   catalog,
		artifacts: artifacts,
		db:        db,
		redis:     redis,
		started:   time.Now(),
	}
}

// SubmitDiagnosis godoc
// @Summary      Submit a questionnaire
// @Description  Analyzes 20 answers, stores the diagnosis and keeps the three most recent per owner.
// @Tags         diagnoses
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request  body      types.SubmitRequest  true  "Answers to all 20 questions"
// @Success      201      {object}  diagnosis.Summary
// @Failure      400      {object}  apperrors.Response
// @Failure      401      {object}  apperrors.Response
// @Failure      429      {object}  apperrors.Response
// @Failure      503      {object}  apperrors.Response
// @Router       /api/v1/diagnoses [post]
func (h *Handler) SubmitDiagnosis(c *gin.Context) {
	var req types.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.NewValidationError("Invalid request body", err.Error()))
		return
	}

	summary, err := h.service.Submit(c.Request.Context(), security.OwnerID(c), req.RawAnswers())
	if err != nil {
		respondError(c, mapError(err))
		return
	}

	c.JSON(http.StatusCreated, summary)
}

// ListDiagnoses godoc
// @Summary      List recent diagnoses
// @Description  Returns up to three of the caller's diagnoses, newest first.
// @Tags         diagnoses
// @Produce      json
// @Security     BearerAuth
// @Success      200  {array}   diagnosis.Summary
// @Failure      401  {object}  apperrors.Response
// @Router       /api/v1/diagnoses [get]
func (h *Handler) ListDiagnoses(c *gin.Context) {
	list, err := h.service.History(c.Request.Context(), security.OwnerID(c))
	if err != nil {
		respondError(c, mapError(err))
		return
	}
	c.JSON(http.StatusOK, list)
}

// GetReport godoc
// @Summary      Get a diagnosis report
// @Description  Rebuilds the report with key drivers, strengths and domain breakdown.
// @Tags         diagnoses
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      int  true  "Diagnosis ID"
// @Success      200  {object}  diagnosis.Report
// @Failure      401  {object}  apperrors.Response
// @Failure      404  {object}  apperrors.Response
// @Router       /api/v1/diagnoses/{id}/report [get]
func (h *Handler) GetReport(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		// Malformed ids cannot name a stored diagnosis.
		respondError(c, apperrors.NewNotFoundError("diagnosis"))
		return
	}

	report, err := h.service.Report(c.Request.Context(), security.OwnerID(c), id)
	if err != nil {
		respondError(c, mapError(err))
		return
	}
	c.JSON(http.StatusOK, report)
}

// ListQuestions godoc
// @Summary      Question catalog
// @Tags         questions
// @Produce      json
// @Success      200  {object}  types.QuestionsResponse
// @Router       /api/v1/questions [get]
func (h *Handler) ListQuestions(c *gin.Context) {
	questions := h.catalog.Questions()
	out := types.QuestionsResponse{Questions: make([]types.QuestionInfo, len(questions))}
	for i, q := range questions {
		out.Questions[i] = types.QuestionInfo{
			ID:        q.ID,
			Text:      q.Text,
			Section:   q.Section,
			Domain:    q.Domain,
			Subdomain: q.Subdomain,
			Type:      q.Type,
		}
	}
	c.JSON(http.StatusOK, out)
}

// Health godoc
// @Summary      Service health
// @Tags         system
// @Produce      json
// @Success      200  {object}  types.HealthResponse
// @Failure      503  {object}  types.HealthResponse
// @Router       /health [get]
func (h *Handler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	resp := types.HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    time.Since(h.started).Round(time.Second).String(),
		Database:  "ok",
		Redis:     "disabled",
	}
	healthy := true

	if err := h.db.Health(ctx); err != nil {
		resp.Database = "unavailable"
		healthy = false
	}

	loaded, version, loadErr := h.artifacts.Status()
	resp.Artifacts = types.ArtifactsHealth{Loaded: loaded, Version: version}
	if loadErr != nil {
		resp.Artifacts.Error = loadErr.Error()
	}
	if !loaded {
		healthy = false
	}

	// Redis only backs rate limiting, which falls back to memory.
	if h.redis != nil {
		resp.Redis = "ok"
		if err := h.redis.Health(ctx); err != nil {
			resp.Redis = "unavailable"
		}
	}

	status := http.StatusOK
	if !healthy {
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, resp)
}

// mapError turns service errors into API errors.
func mapError(err error) *apperrors.AppError {
	var verr *diagnosis.ValidationError
	switch {
	case errors.As(err, &verr):
		return apperrors.NewValidationErrorWithMap("Invalid answers", verr.Problems)
	case errors.Is(err, diagnosis.ErrInvalidAnswers):
		return apperrors.NewValidationError("Invalid answers")
	case errors.Is(err, database.ErrNotFound):
		return apperrors.NewNotFoundError("diagnosis")
	case errors.Is(err, ml.ErrArtifactUnavailable):
		return apperrors.NewUnavailableError("Diagnosis model is unavailable", err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return apperrors.ToAppError(err)
	case errors.Is(err, diagnosis.ErrStore):
		return apperrors.NewPersistenceError("Failed to access stored diagnoses", err)
	default:
		return apperrors.ToAppError(err)
	}
}

func respondError(c *gin.Context, err *apperrors.AppError) {
	apperrors.LogError(c, err)
	apperrors.Respond(c, err)
}

// HealthFunc adapts a function to HealthChecker.
type HealthFunc func(ctx context.Context) error

// Health implements HealthChecker.
func (f HealthFunc) Health(ctx context.Context) error { return f(ctx) }
