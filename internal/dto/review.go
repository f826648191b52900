package dto

import (
	"github.com/verdatum/lca-review-api/internal/models"
)

// SubmitForReviewRequest claims the review slot for one dataset version and
// assigns reviewers. The dataset id and version come from the route.
type SubmitForReviewRequest struct {
	Type        models.EntityType `json:"type" binding:"required"`
	ReviewerIDs []string          `json:"reviewer_ids" binding:"required,min=1,dive,uuid"`
}

// RecordDecisionRequest records one reviewer's verdict on a task. Reason is
// mandatory for rejections and enforced in the service.
type RecordDecisionRequest struct {
	Decision string `json:"decision" binding:"required,oneof=APPROVED REJECTED"`
	Reason   string `json:"reason"`
}

// ReviewTaskResponse is the task detail including its decisions and the
// aggregated outcome.
type ReviewTaskResponse struct {
	Task      *models.ReviewTask      `json:"task"`
	Decisions []models.ReviewDecision `json:"decisions"`
	Outcome   models.ConsensusOutcome `json:"outcome"`
}

// ReviewStateResponse exposes the durable per-dataset review row.
type ReviewStateResponse struct {
	DatasetID          string          `json:"dataset_id"`
	StateCode          int             `json:"state_code"`
	UnderReviewVersion *models.Version `json:"under_review_version,omitempty"`
}

// TaskQuery filters task listings.
type TaskQuery struct {
	DatasetID  string `form:"dataset_id"`
	ReviewerID string `form:"reviewer_id"`
	StateCode  *int   `form:"state_code"`
	Limit      int    `form:"limit"`
	Offset     int    `form:"offset"`
}
