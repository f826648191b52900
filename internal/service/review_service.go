package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/verdatum/lca-review-api/internal/dto"
	"github.com/verdatum/lca-review-api/internal/models"
	"github.com/verdatum/lca-review-api/internal/repository"
	appErrors "github.com/verdatum/lca-review-api/pkg/errors"
)

type reviewTaskStore interface {
	Create(ctx context.Context, task *models.ReviewTask) error
	GetByID(ctx context.Context, id string) (*models.ReviewTask, error)
	GetOpenByDataset(ctx context.Context, datasetID string, version models.Version) (*models.ReviewTask, error)
	List(ctx context.Context, filter repository.TaskFilter) ([]models.ReviewTask, error)
	ListDecisions(ctx context.Context, taskID string) ([]models.ReviewDecision, error)
	RecordDecision(ctx context.Context, decision *models.ReviewDecision) error
	SetTaskState(ctx context.Context, taskID string, code int) error
}

type reviewStateStore interface {
	Get(ctx context.Context, datasetID string) (*models.DatasetReviewState, error)
	TryClaimUnderReview(ctx context.Context, datasetID string, version models.Version) (*models.DatasetReviewState, error)
	ConditionalWrite(ctx context.Context, datasetID string, expectedCode int, next models.DatasetReviewState) error
	AdvanceInFlight(ctx context.Context, datasetID string, code int) error
}

type reviewDocumentStore interface {
	FetchDocument(ctx context.Context, id string, version models.Version, typ models.EntityType) (*models.Document, error)
	SetStateCode(ctx context.Context, id string, version models.Version, code int) error
}

type reviewerDirectory interface {
	FindActiveReviewers(ctx context.Context, ids []string) ([]models.User, error)
}

// terminalNotifier receives terminal-transition events. Implementations must
// be fire-and-forget: a failing bridge never rolls back a transition.
type terminalNotifier interface {
	NotifyTerminal(event ReviewEvent)
}

// ReviewService owns every DatasetReviewState transition. Submissions claim
// the exclusive review slot through the conditional-write guard; reviewer
// decisions feed the consensus policy, whose outcome drives the terminal
// transition.
type ReviewService struct {
	tasks    reviewTaskStore
	states   reviewStateStore
	docs     reviewDocumentStore
	users    reviewerDirectory
	policy   ConsensusPolicy
	notifier terminalNotifier
	metrics  *MetricsService
	logger   *zap.Logger
}

// ReviewServiceOption configures the service.
type ReviewServiceOption func(*ReviewService)

// WithConsensusPolicy overrides the default unanimity policy.
func WithConsensusPolicy(policy ConsensusPolicy) ReviewServiceOption {
	return func(s *ReviewService) {
		if policy != nil {
			s.policy = policy
		}
	}
}

// WithTerminalNotifier attaches the notification bridge.
func WithTerminalNotifier(notifier terminalNotifier) ReviewServiceOption {
	return func(s *ReviewService) { s.notifier = notifier }
}

// WithReviewMetrics attaches instrumentation.
func WithReviewMetrics(metrics *MetricsService) ReviewServiceOption {
	return func(s *ReviewService) { s.metrics = metrics }
}

// NewReviewService constructs the service.
func NewReviewService(tasks reviewTaskStore, states reviewStateStore, docs reviewDocumentStore, users reviewerDirectory, logger *zap.Logger, opts ...ReviewServiceOption) *ReviewService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &ReviewService{
		tasks:  tasks,
		states: states,
		docs:   docs,
		users:  users,
		policy: UnanimousPolicy{},
		logger: logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// SubmitForReview claims the review slot for one dataset version and creates
// the review task. Exactly one of two concurrent submissions for the same
// dataset id wins; the loser receives a VersionConflict naming the winning
// version.
func (s *ReviewService) SubmitForReview(ctx context.Context, datasetID string, version models.Version, typ models.EntityType, reviewerIDs []string) (*models.ReviewTask, error) {
	doc, err := s.docs.FetchDocument(ctx, datasetID, version, typ)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound,
				fmt.Sprintf("dataset %s@%s does not exist", datasetID, version))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load dataset")
	}
	if models.StateTerminal(doc.StateCode) {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("version %s is terminal; resubmission requires a new version", version))
	}

	reviewers, err := s.users.FindActiveReviewers(ctx, reviewerIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to verify reviewers")
	}
	if len(reviewers) != len(dedupe(reviewerIDs)) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "one or more reviewer ids are unknown or not active reviewers")
	}

	if _, err := s.states.TryClaimUnderReview(ctx, datasetID, version); err != nil {
		var conflict *repository.ErrClaimConflict
		if errors.As(err, &conflict) {
			if s.metrics != nil {
				s.metrics.RecordVersionConflict()
			}
			return nil, versionConflictError(conflict, s.openConflictTask(ctx, datasetID, conflict))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to claim review slot")
	}

	task := &models.ReviewTask{
		DatasetID:      datasetID,
		DatasetVersion: version,
		DatasetType:    typ,
		ReviewerIDs:    dedupe(reviewerIDs),
		StateCode:      models.StateAssigned,
	}
	if err := s.tasks.Create(ctx, task); err != nil {
		// Release the freshly taken claim so the dataset is not stuck.
		s.releaseClaim(ctx, datasetID)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create review task")
	}

	if err := s.docs.SetStateCode(ctx, datasetID, version, models.StateAssigned); err != nil {
		s.logger.Warn("failed to stamp document state",
			zap.String("dataset_id", datasetID), zap.Stringer("version", version), zap.Error(err))
	}

	if s.metrics != nil {
		s.metrics.RecordReviewTransition("draft", "assigned")
	}
	s.logger.Info("dataset submitted for review",
		zap.String("dataset_id", datasetID),
		zap.Stringer("version", version),
		zap.Int("reviewers", len(task.ReviewerIDs)),
	)
	return task, nil
}

// RecordDecision stores one reviewer's verdict and, when the consensus
// outcome becomes terminal, commits the matching transition.
func (s *ReviewService) RecordDecision(ctx context.Context, taskID, reviewerID string, state models.DecisionState, reason string) (*dto.ReviewTaskResponse, error) {
	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "review task not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load task")
	}
	if models.StateTerminal(task.StateCode) {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "review task is terminal")
	}
	if !task.HasReviewer(reviewerID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "user is not assigned to this review task")
	}
	if state != models.DecisionApproved && state != models.DecisionRejected {
		return nil, appErrors.Clone(appErrors.ErrValidation, "decision must be APPROVED or REJECTED")
	}
	reason = strings.TrimSpace(reason)
	if state == models.DecisionRejected && reason == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "a rejection requires a reason")
	}

	decision := &models.ReviewDecision{
		TaskID:     taskID,
		ReviewerID: reviewerID,
		State:      state,
	}
	if reason != "" {
		decision.Reason = &reason
	}
	if err := s.tasks.RecordDecision(ctx, decision); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "decision already recorded for this reviewer")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record decision")
	}

	decisions, err := s.tasks.ListDecisions(ctx, taskID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load decisions")
	}

	if err := s.advanceProgress(ctx, task, decisions); err != nil {
		return nil, err
	}

	outcome := s.policy.Aggregate(task, decisions)
	switch outcome.State {
	case models.DecisionApproved:
		if err := s.commitTerminal(ctx, task, models.StatePublished, outcome); err != nil {
			return nil, err
		}
	case models.DecisionRejected:
		if err := s.commitTerminal(ctx, task, models.StateRejected, outcome); err != nil {
			return nil, err
		}
	}

	refreshed, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		refreshed = task
	}
	return &dto.ReviewTaskResponse{Task: refreshed, Decisions: decisions, Outcome: outcome}, nil
}

// GetReviewState returns the durable per-dataset row. A dataset never
// submitted reads as Draft with no claimed version.
func (s *ReviewService) GetReviewState(ctx context.Context, datasetID string) (*models.DatasetReviewState, error) {
	state, err := s.states.Get(ctx, datasetID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &models.DatasetReviewState{DatasetID: datasetID, StateCode: models.StateDraft}, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load review state")
	}
	return state, nil
}

// GetTask returns the task with its decisions and current aggregate outcome.
func (s *ReviewService) GetTask(ctx context.Context, taskID string) (*dto.ReviewTaskResponse, error) {
	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "review task not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load task")
	}
	decisions, err := s.tasks.ListDecisions(ctx, taskID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load decisions")
	}
	return &dto.ReviewTaskResponse{
		Task:      task,
		Decisions: decisions,
		Outcome:   s.policy.Aggregate(task, decisions),
	}, nil
}

// ListTasks returns tasks matching the query.
func (s *ReviewService) ListTasks(ctx context.Context, query dto.TaskQuery) ([]models.ReviewTask, error) {
	tasks, err := s.tasks.List(ctx, repository.TaskFilter{
		DatasetID:  query.DatasetID,
		ReviewerID: query.ReviewerID,
		StateCode:  query.StateCode,
		Limit:      query.Limit,
		Offset:     query.Offset,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list tasks")
	}
	return tasks, nil
}

// advanceProgress moves the task and the dataset row into the under-review
// band with the opaque progress marker derived from decided count.
func (s *ReviewService) advanceProgress(ctx context.Context, task *models.ReviewTask, decisions []models.ReviewDecision) error {
	decided := 0
	for _, d := range decisions {
		if d.State != models.DecisionPending {
			decided++
		}
	}
	code := models.UnderReviewCode(decided)
	if err := s.tasks.SetTaskState(ctx, task.ID, code); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to advance task state")
	}
	if err := s.states.AdvanceInFlight(ctx, task.DatasetID, code); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to advance review state")
	}
	task.StateCode = code
	if s.metrics != nil && decided == 1 {
		s.metrics.RecordReviewTransition("assigned", "under_review")
	}
	return nil
}

// commitTerminal performs the UnderReview -> Published/Rejected transition
// through a conditional write, stamps the task and document, and emits the
// fire-and-forget notification.
func (s *ReviewService) commitTerminal(ctx context.Context, task *models.ReviewTask, terminalCode int, outcome models.ConsensusOutcome) error {
	next := models.DatasetReviewState{
		DatasetID: task.DatasetID,
		StateCode: terminalCode,
	}
	for attempt := 0; ; attempt++ {
		current, err := s.states.Get(ctx, task.DatasetID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load review state")
		}
		if !models.StateInFlight(current.StateCode) {
			if current.StateCode == terminalCode {
				// A concurrent final decision already committed this exact
				// transition. The caller's decision is recorded, so this is
				// success, not a failed transition.
				task.StateCode = terminalCode
				return nil
			}
			return appErrors.Clone(appErrors.ErrInvalidTransition, "dataset is not in an in-flight review state")
		}
		err = s.states.ConditionalWrite(ctx, task.DatasetID, current.StateCode, next)
		if err == nil {
			break
		}
		var conflict *repository.ErrClaimConflict
		if errors.As(err, &conflict) {
			// The in-flight code moved underneath us (a racing decision
			// advanced the progress counter); re-read and try again.
			if models.StateInFlight(conflict.Current.StateCode) && attempt < 3 {
				continue
			}
			if conflict.Current.StateCode == terminalCode {
				task.StateCode = terminalCode
				return nil
			}
			return versionConflictError(conflict, nil)
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit terminal transition")
	}

	if err := s.tasks.SetTaskState(ctx, task.ID, terminalCode); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to finalise task")
	}
	task.StateCode = terminalCode

	if err := s.docs.SetStateCode(ctx, task.DatasetID, task.DatasetVersion, terminalCode); err != nil {
		s.logger.Warn("failed to stamp document with terminal state",
			zap.String("dataset_id", task.DatasetID), zap.Stringer("version", task.DatasetVersion), zap.Error(err))
	}

	transition := "published"
	eventType := EventReviewPublished
	if terminalCode == models.StateRejected {
		transition = "rejected"
		eventType = EventReviewRejected
	}
	if s.metrics != nil {
		s.metrics.RecordReviewTransition("under_review", transition)
	}
	s.logger.Info("review concluded",
		zap.String("task_id", task.ID),
		zap.String("dataset_id", task.DatasetID),
		zap.Stringer("version", task.DatasetVersion),
		zap.String("outcome", transition),
	)

	if s.notifier != nil {
		s.notifier.NotifyTerminal(ReviewEvent{
			Type:       eventType,
			TaskID:     task.ID,
			DatasetID:  task.DatasetID,
			Version:    task.DatasetVersion,
			Reasons:    outcome.Reasons,
			OccurredAt: time.Now().UTC(),
		})
	}
	return nil
}

func (s *ReviewService) releaseClaim(ctx context.Context, datasetID string) {
	err := s.states.ConditionalWrite(ctx, datasetID, models.StateAssigned, models.DatasetReviewState{
		DatasetID: datasetID,
		StateCode: models.StateDraft,
	})
	if err != nil {
		s.logger.Warn("failed to release review claim", zap.String("dataset_id", datasetID), zap.Error(err))
	}
}

// openConflictTask looks up the task blocking the claim so the conflict
// response can link straight to it. Best effort: a miss just leaves the
// detail out.
func (s *ReviewService) openConflictTask(ctx context.Context, datasetID string, conflict *repository.ErrClaimConflict) *models.ReviewTask {
	v := conflict.Current.UnderReviewVersion
	if v == nil {
		return nil
	}
	task, err := s.tasks.GetOpenByDataset(ctx, datasetID, *v)
	if err != nil {
		return nil
	}
	return task
}

func versionConflictError(conflict *repository.ErrClaimConflict, open *models.ReviewTask) error {
	details := map[string]interface{}{
		"state_code": conflict.Current.StateCode,
	}
	message := "another version of this dataset is already under review"
	if v := conflict.Current.UnderReviewVersion; v != nil {
		details["under_review_version"] = v.String()
		message = fmt.Sprintf("version %s of this dataset is already under review", v)
	}
	if open != nil {
		details["review_task_id"] = open.ID
	}
	return appErrors.WithDetails(appErrors.Clone(appErrors.ErrVersionConflict, message), details)
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
