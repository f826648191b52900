package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/verdatum/lca-review-api/internal/models"
)

// ReviewTaskRepository persists review tasks and their per-reviewer
// decisions: the only durable workflow state besides the per-dataset
// review-state row.
type ReviewTaskRepository struct {
	db *sqlx.DB
}

// NewReviewTaskRepository constructs the repository.
func NewReviewTaskRepository(db *sqlx.DB) *ReviewTaskRepository {
	return &ReviewTaskRepository{db: db}
}

// Create inserts a task together with one pending decision row per assigned
// reviewer, in a single transaction.
func (r *ReviewTaskRepository) Create(ctx context.Context, task *models.ReviewTask) error {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	task.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create task: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const taskQuery = `INSERT INTO review_tasks
	(id, dataset_id, dataset_version, dataset_type, reviewer_ids, state_code, created_at, updated_at)
	VALUES (:id, :dataset_id, :dataset_version, :dataset_type, :reviewer_ids, :state_code, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, taskQuery, task); err != nil {
		return fmt.Errorf("create review task: %w", err)
	}

	const decisionQuery = `INSERT INTO review_decisions (task_id, reviewer_id, state_code)
	VALUES ($1, $2, $3)`
	for _, reviewerID := range task.ReviewerIDs {
		if _, err := tx.ExecContext(ctx, decisionQuery, task.ID, reviewerID, models.DecisionPending); err != nil {
			return fmt.Errorf("create pending decision for %s: %w", reviewerID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create task: %w", err)
	}
	return nil
}

// GetByID fetches a task by identifier.
func (r *ReviewTaskRepository) GetByID(ctx context.Context, id string) (*models.ReviewTask, error) {
	const query = `SELECT id, dataset_id, dataset_version, dataset_type, reviewer_ids, state_code, created_at, updated_at
	FROM review_tasks WHERE id = $1`
	var task models.ReviewTask
	if err := r.db.GetContext(ctx, &task, query, id); err != nil {
		return nil, err
	}
	return &task, nil
}

// GetOpenByDataset returns the in-flight task for a dataset version, if any.
func (r *ReviewTaskRepository) GetOpenByDataset(ctx context.Context, datasetID string, version models.Version) (*models.ReviewTask, error) {
	const query = `SELECT id, dataset_id, dataset_version, dataset_type, reviewer_ids, state_code, created_at, updated_at
	FROM review_tasks WHERE dataset_id = $1 AND dataset_version = $2 AND state_code BETWEEN $3 AND $4
	ORDER BY created_at DESC LIMIT 1`
	var task models.ReviewTask
	if err := r.db.GetContext(ctx, &task, query, datasetID, version, models.StateAssigned, models.StateUnderReviewMax); err != nil {
		return nil, err
	}
	return &task, nil
}

// TaskFilter constrains listing queries.
type TaskFilter struct {
	DatasetID  string
	ReviewerID string
	StateCode  *int
	Limit      int
	Offset     int
}

// List returns tasks matching the filter, newest first.
func (r *ReviewTaskRepository) List(ctx context.Context, filter TaskFilter) ([]models.ReviewTask, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 4)
	builder.WriteString(`SELECT id, dataset_id, dataset_version, dataset_type, reviewer_ids, state_code, created_at, updated_at
	FROM review_tasks`)

	conditions := make([]string, 0, 3)
	if filter.DatasetID != "" {
		args = append(args, filter.DatasetID)
		conditions = append(conditions, fmt.Sprintf("dataset_id = $%d", len(args)))
	}
	if filter.ReviewerID != "" {
		args = append(args, filter.ReviewerID)
		conditions = append(conditions, fmt.Sprintf("$%d = ANY(reviewer_ids)", len(args)))
	}
	if filter.StateCode != nil {
		args = append(args, *filter.StateCode)
		conditions = append(conditions, fmt.Sprintf("state_code = $%d", len(args)))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY created_at DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var tasks []models.ReviewTask
	if err := r.db.SelectContext(ctx, &tasks, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list review tasks: %w", err)
	}
	return tasks, nil
}

// ListDecisions returns every decision row for a task ordered by reviewer id,
// which keeps aggregated rejection reasons reproducible.
func (r *ReviewTaskRepository) ListDecisions(ctx context.Context, taskID string) ([]models.ReviewDecision, error) {
	const query = `SELECT task_id, reviewer_id, state_code, reason, decided_at
	FROM review_decisions WHERE task_id = $1 ORDER BY reviewer_id ASC`
	var decisions []models.ReviewDecision
	if err := r.db.SelectContext(ctx, &decisions, query, taskID); err != nil {
		return nil, fmt.Errorf("list decisions for %s: %w", taskID, err)
	}
	return decisions, nil
}

// RecordDecision writes one reviewer's verdict. The pending guard makes the
// decision write-once: a reviewer cannot overwrite a recorded verdict.
func (r *ReviewTaskRepository) RecordDecision(ctx context.Context, decision *models.ReviewDecision) error {
	if decision.DecidedAt == nil {
		now := time.Now().UTC()
		decision.DecidedAt = &now
	}
	const query = `UPDATE review_decisions
	SET state_code = $1, reason = $2, decided_at = $3
	WHERE task_id = $4 AND reviewer_id = $5 AND state_code = $6`
	result, err := r.db.ExecContext(ctx, query,
		decision.State, decision.Reason, decision.DecidedAt,
		decision.TaskID, decision.ReviewerID, models.DecisionPending,
	)
	if err != nil {
		return fmt.Errorf("record decision: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check decision rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SetTaskState stamps the task with a new state code. Guarded on the
// in-flight band so terminal tasks stay immutable.
func (r *ReviewTaskRepository) SetTaskState(ctx context.Context, taskID string, code int) error {
	const query = `UPDATE review_tasks SET state_code = $1, updated_at = $2
	WHERE id = $3 AND state_code BETWEEN $4 AND $5`
	result, err := r.db.ExecContext(ctx, query,
		code, time.Now().UTC(), taskID, models.StateDraft, models.StateUnderReviewMax,
	)
	if err != nil {
		return fmt.Errorf("set task state: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check task state rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
