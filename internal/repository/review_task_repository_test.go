package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verdatum/lca-review-api/internal/models"
)

func TestReviewTaskCreateInsertsPendingDecisions(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewReviewTaskRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO review_tasks").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO review_decisions").
		WithArgs(sqlmock.AnyArg(), "r-1", models.DecisionPending).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO review_decisions").
		WithArgs(sqlmock.AnyArg(), "r-2", models.DecisionPending).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	task := &models.ReviewTask{
		DatasetID:      "ds-1",
		DatasetVersion: models.MustParseVersion("01.00.000"),
		DatasetType:    models.TypeProcess,
		ReviewerIDs:    pq.StringArray{"r-1", "r-2"},
		StateCode:      models.StateAssigned,
	}
	require.NoError(t, repo.Create(context.Background(), task))
	assert.NotEmpty(t, task.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReviewTaskCreateRollsBackOnDecisionFailure(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewReviewTaskRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO review_tasks").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO review_decisions").
		WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	task := &models.ReviewTask{
		DatasetID:      "ds-1",
		DatasetVersion: models.MustParseVersion("01.00.000"),
		DatasetType:    models.TypeProcess,
		ReviewerIDs:    pq.StringArray{"r-1"},
	}
	require.Error(t, repo.Create(context.Background(), task))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReviewTaskGetByID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewReviewTaskRepository(db)
	mock.ExpectQuery("SELECT id, dataset_id, dataset_version").
		WithArgs("task-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "dataset_id", "dataset_version", "dataset_type", "reviewer_ids", "state_code", "created_at", "updated_at"}).
			AddRow("task-1", "ds-1", "01.00.000", "PROCESS", pq.StringArray{"r-1", "r-2"}, models.StateAssigned, time.Now(), time.Now()))

	task, err := repo.GetByID(context.Background(), "task-1")
	require.NoError(t, err)
	assert.Equal(t, "ds-1", task.DatasetID)
	assert.True(t, task.HasReviewer("r-2"))
}

func TestReviewTaskGetOpenByDataset(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewReviewTaskRepository(db)
	version := models.MustParseVersion("01.00.000")
	mock.ExpectQuery("SELECT id, dataset_id, dataset_version").
		WithArgs("ds-1", version, models.StateAssigned, models.StateUnderReviewMax).
		WillReturnRows(sqlmock.NewRows([]string{"id", "dataset_id", "dataset_version", "dataset_type", "reviewer_ids", "state_code", "created_at", "updated_at"}).
			AddRow("task-1", "ds-1", "01.00.000", "PROCESS", pq.StringArray{"r-1"}, models.UnderReviewCode(1), time.Now(), time.Now()))

	task, err := repo.GetOpenByDataset(context.Background(), "ds-1", version)
	require.NoError(t, err)
	assert.Equal(t, "task-1", task.ID)
	assert.True(t, models.StateInFlight(task.StateCode))
}

func TestReviewTaskGetOpenByDatasetNoOpenTask(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewReviewTaskRepository(db)
	version := models.MustParseVersion("01.00.000")
	mock.ExpectQuery("SELECT id, dataset_id, dataset_version").
		WithArgs("ds-1", version, models.StateAssigned, models.StateUnderReviewMax).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.GetOpenByDataset(context.Background(), "ds-1", version)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestRecordDecisionIsWriteOnce(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewReviewTaskRepository(db)
	mock.ExpectExec("UPDATE review_decisions").
		WithArgs(models.DecisionApproved, nil, sqlmock.AnyArg(), "task-1", "r-1", models.DecisionPending).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.RecordDecision(context.Background(), &models.ReviewDecision{
		TaskID: "task-1", ReviewerID: "r-1", State: models.DecisionApproved,
	})
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestListDecisionsOrderedByReviewer(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewReviewTaskRepository(db)
	now := time.Now()
	mock.ExpectQuery("SELECT task_id, reviewer_id, state_code, reason, decided_at").
		WithArgs("task-1").
		WillReturnRows(sqlmock.NewRows([]string{"task_id", "reviewer_id", "state_code", "reason", "decided_at"}).
			AddRow("task-1", "r-1", models.DecisionApproved, nil, now).
			AddRow("task-1", "r-2", models.DecisionRejected, "missing classification", now))

	decisions, err := repo.ListDecisions(context.Background(), "task-1")
	require.NoError(t, err)
	require.Len(t, decisions, 2)
	assert.Equal(t, "r-1", decisions[0].ReviewerID)
	require.NotNil(t, decisions[1].Reason)
	assert.Equal(t, "missing classification", *decisions[1].Reason)
}

func TestListFiltersByReviewerMembership(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewReviewTaskRepository(db)
	mock.ExpectQuery("SELECT id, dataset_id, dataset_version").
		WithArgs("r-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "dataset_id", "dataset_version", "dataset_type", "reviewer_ids", "state_code", "created_at", "updated_at"}).
			AddRow("task-1", "ds-1", "01.00.000", "PROCESS", pq.StringArray{"r-1"}, models.StateAssigned, time.Now(), time.Now()))

	tasks, err := repo.List(context.Background(), TaskFilter{ReviewerID: "r-1"})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "task-1", tasks[0].ID)
}

func TestSetTaskStateGuardsTerminalTasks(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewReviewTaskRepository(db)
	mock.ExpectExec("UPDATE review_tasks SET state_code").
		WithArgs(models.StateUnderReviewMin, sqlmock.AnyArg(), "task-1", models.StateDraft, models.StateUnderReviewMax).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SetTaskState(context.Background(), "task-1", models.StateUnderReviewMin)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}
