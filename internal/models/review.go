package models

import (
	"time"

	"github.com/lib/pq"
)

// Review state codes. The bands matter more than the individual values: any
// code in [1,99] means the version is in flight and blocks competing claims;
// codes within the under-review band are an opaque progress marker whose
// exact value callers must not interpret.
const (
	StateDraft          = 0
	StateAssigned       = 1
	StateAssignedMax    = 19
	StateUnderReviewMin = 20
	StateUnderReviewMax = 99
	StatePublished      = 100
	StateRejected       = 200
)

// StateInFlight reports whether the code occupies the exclusive review band.
func StateInFlight(code int) bool {
	return code >= StateAssigned && code <= StateUnderReviewMax
}

// StateTerminal reports whether the code ends the lifecycle of this version.
func StateTerminal(code int) bool {
	return code == StatePublished || code == StateRejected
}

// UnderReviewCode derives the opaque in-progress marker from the number of
// recorded decisions, clamped to the reserved band.
func UnderReviewCode(decided int) int {
	code := StateUnderReviewMin + decided
	if code > StateUnderReviewMax {
		code = StateUnderReviewMax
	}
	return code
}

// DecisionState encodes one reviewer's verdict on a task.
type DecisionState int

const (
	DecisionPending  DecisionState = 0
	DecisionApproved DecisionState = 1
	DecisionRejected DecisionState = 2
)

// ReviewTask is one submission's reviewer assignment and decision tracking
// unit. A task is created once per submission attempt and becomes immutable
// once its dataset version reaches a terminal state.
type ReviewTask struct {
	ID             string         `db:"id" json:"id"`
	DatasetID      string         `db:"dataset_id" json:"dataset_id"`
	DatasetVersion Version        `db:"dataset_version" json:"dataset_version"`
	DatasetType    EntityType     `db:"dataset_type" json:"dataset_type"`
	ReviewerIDs    pq.StringArray `db:"reviewer_ids" json:"reviewer_ids"`
	StateCode      int            `db:"state_code" json:"state_code"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}

// HasReviewer reports whether the given user is assigned to the task.
func (t *ReviewTask) HasReviewer(userID string) bool {
	for _, id := range t.ReviewerIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// ReviewDecision is one reviewer's verdict for one task. Decisions are
// mutually independent until the aggregator combines them.
type ReviewDecision struct {
	TaskID     string        `db:"task_id" json:"task_id"`
	ReviewerID string        `db:"reviewer_id" json:"reviewer_id"`
	State      DecisionState `db:"state_code" json:"state_code"`
	Reason     *string       `db:"reason" json:"reason,omitempty"`
	DecidedAt  *time.Time    `db:"decided_at" json:"decided_at,omitempty"`
}

// DatasetReviewState is the single durable row per dataset id: the current
// state code plus, while a review is in flight, the claimed version. At most
// one version per dataset id may hold a code in [1,99] at any instant.
type DatasetReviewState struct {
	DatasetID          string    `db:"dataset_id" json:"dataset_id"`
	StateCode          int       `db:"state_code" json:"state_code"`
	UnderReviewVersion *Version  `db:"under_review_version" json:"under_review_version,omitempty"`
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"`
}

// ConsensusOutcome is the deterministic combination of all reviewer decisions
// for one task.
type ConsensusOutcome struct {
	State DecisionState `json:"state"`
	// Reasons is only populated for rejections: the union of all provided
	// rejection reasons ordered by reviewer id ascending.
	Reasons []string `json:"reasons,omitempty"`
}

// RefCheckResult is the per-reference diagnostic computed on demand when a
// document is opened for editing or submitted. It is a pure derived view:
// never persisted, always recomputed from the current resolver and
// review-state snapshots.
type RefCheckResult struct {
	ID      string  `json:"id"`
	Version Version `json:"version"`
	// RuleVerification is true only when the resolved target itself passed
	// its own mandatory-field validation.
	RuleVerification bool `json:"rule_verification"`
	// NonExistent marks a reference whose target document is absent at the
	// given version.
	NonExistent        bool     `json:"non_existent"`
	StateCode          *int     `json:"state_code,omitempty"`
	UnderReviewVersion *Version `json:"under_review_version,omitempty"`
	// VersionUnderReview flags that a different version of the target is
	// currently claimed for review.
	VersionUnderReview bool `json:"version_under_review"`
	// VersionSuperseded flags that the referenced version is older than the
	// latest published version of its target.
	VersionSuperseded bool `json:"version_superseded"`
}
