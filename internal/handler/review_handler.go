package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/verdatum/lca-review-api/internal/dto"
	"github.com/verdatum/lca-review-api/internal/models"
	appErrors "github.com/verdatum/lca-review-api/pkg/errors"
	"github.com/verdatum/lca-review-api/pkg/response"
)

type reviewWorkflow interface {
	SubmitForReview(ctx context.Context, datasetID string, version models.Version, typ models.EntityType, reviewerIDs []string) (*models.ReviewTask, error)
	RecordDecision(ctx context.Context, taskID, reviewerID string, state models.DecisionState, reason string) (*dto.ReviewTaskResponse, error)
	GetReviewState(ctx context.Context, datasetID string) (*models.DatasetReviewState, error)
	GetTask(ctx context.Context, taskID string) (*dto.ReviewTaskResponse, error)
	ListTasks(ctx context.Context, query dto.TaskQuery) ([]models.ReviewTask, error)
}

// ReviewHandler exposes the review workflow endpoints.
type ReviewHandler struct {
	reviews reviewWorkflow
}

// NewReviewHandler constructs the handler.
func NewReviewHandler(reviews reviewWorkflow) *ReviewHandler {
	return &ReviewHandler{reviews: reviews}
}

// Submit godoc
// @Summary Submit a dataset version for review
// @Description Claims the review slot for the dataset id and creates a review task
// @Tags Review
// @Accept json
// @Produce json
// @Param id path string true "Dataset ID"
// @Param version path string true "Dataset version (MAJOR.MINOR.PATCH)"
// @Param payload body dto.SubmitForReviewRequest true "Submit payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /datasets/{id}/versions/{version}/submit [post]
func (h *ReviewHandler) Submit(c *gin.Context) {
	version, err := models.ParseVersion(c.Param("version"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid version: expected MAJOR.MINOR.PATCH"))
		return
	}

	var req dto.SubmitForReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid submit payload"))
		return
	}

	task, err := h.reviews.SubmitForReview(c.Request.Context(), c.Param("id"), version, req.Type, req.ReviewerIDs)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, task)
}

// RecordDecision godoc
// @Summary Record a reviewer decision
// @Description Records the calling reviewer's verdict on a task; write-once per reviewer
// @Tags Review
// @Accept json
// @Produce json
// @Param id path string true "Review task ID"
// @Param payload body dto.RecordDecisionRequest true "Decision payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /review-tasks/{id}/decisions [post]
func (h *ReviewHandler) RecordDecision(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req dto.RecordDecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid decision payload"))
		return
	}

	state := models.DecisionApproved
	if req.Decision == "REJECTED" {
		state = models.DecisionRejected
	}

	res, err := h.reviews.RecordDecision(c.Request.Context(), c.Param("id"), claims.UserID, state, req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, res, nil)
}

// ReviewState godoc
// @Summary Get the review state of a dataset
// @Description Returns the durable review row for the dataset id; draft when none exists
// @Tags Review
// @Produce json
// @Param id path string true "Dataset ID"
// @Success 200 {object} response.Envelope
// @Router /datasets/{id}/review-state [get]
func (h *ReviewHandler) ReviewState(c *gin.Context) {
	state, err := h.reviews.GetReviewState(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, dto.ReviewStateResponse{
		DatasetID:          state.DatasetID,
		StateCode:          state.StateCode,
		UnderReviewVersion: state.UnderReviewVersion,
	}, nil)
}

// GetTask godoc
// @Summary Get one review task
// @Description Task detail including recorded decisions and the aggregated outcome
// @Tags Review
// @Produce json
// @Param id path string true "Review task ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /review-tasks/{id} [get]
func (h *ReviewHandler) GetTask(c *gin.Context) {
	res, err := h.reviews.GetTask(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// ListTasks godoc
// @Summary List review tasks
// @Tags Review
// @Produce json
// @Param dataset_id query string false "Filter by dataset"
// @Param reviewer_id query string false "Filter by assigned reviewer"
// @Param state_code query int false "Filter by task state code"
// @Success 200 {object} response.Envelope
// @Router /review-tasks [get]
func (h *ReviewHandler) ListTasks(c *gin.Context) {
	var query dto.TaskQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query"))
		return
	}

	// Reviewers only see their own assignments.
	if claims := claimsFromContext(c); claims != nil && claims.Role == models.RoleReviewer {
		query.ReviewerID = claims.UserID
	}

	tasks, err := h.reviews.ListTasks(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, tasks, nil)
}
