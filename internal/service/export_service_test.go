package service

import (
	"context"
	"database/sql"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/verdatum/lca-review-api/internal/models"
	appErrors "github.com/verdatum/lca-review-api/pkg/errors"
	"github.com/verdatum/lca-review-api/pkg/storage"
)

type exportTasksStub struct {
	task      *models.ReviewTask
	decisions []models.ReviewDecision
}

func (s *exportTasksStub) GetByID(ctx context.Context, id string) (*models.ReviewTask, error) {
	if s.task == nil || s.task.ID != id {
		return nil, sql.ErrNoRows
	}
	return s.task, nil
}

func (s *exportTasksStub) ListDecisions(ctx context.Context, taskID string) ([]models.ReviewDecision, error) {
	return s.decisions, nil
}

func newExportServiceForTest(t *testing.T) (*ExportService, *storage.LocalStorage) {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("secret", time.Hour)

	decided := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	reason := "missing classification"
	tasks := &exportTasksStub{
		task: &models.ReviewTask{
			ID:             "task-1",
			DatasetID:      "ds-1",
			DatasetVersion: models.MustParseVersion("1.0.0"),
			DatasetType:    models.TypeProcess,
			ReviewerIDs:    pq.StringArray{"r-1", "r-2"},
			StateCode:      models.StateRejected,
		},
		decisions: []models.ReviewDecision{
			{TaskID: "task-1", ReviewerID: "r-1", State: models.DecisionApproved, DecidedAt: &decided},
			{TaskID: "task-1", ReviewerID: "r-2", State: models.DecisionRejected, Reason: &reason, DecidedAt: &decided},
		},
	}
	return NewExportService(tasks, store, signer, zap.NewNop(), true), store
}

func TestExportServiceCSVReport(t *testing.T) {
	svc, store := newExportServiceForTest(t)

	link, err := svc.ExportTaskReport(context.Background(), "task-1", "csv")
	require.NoError(t, err)
	require.Equal(t, "ds-1/task-1.csv", link.Filename)
	require.NotEmpty(t, link.Token)
	require.False(t, link.ExpiresAt.IsZero())

	file, err := store.Open(link.Filename)
	require.NoError(t, err)
	defer file.Close()
	body, err := io.ReadAll(file)
	require.NoError(t, err)

	content := string(body)
	require.Contains(t, content, "Reviewer,Decision,Reason,Decided At")
	require.Contains(t, content, "r-1,APPROVED")
	require.Contains(t, content, "r-2,REJECTED,missing classification")
}

func TestExportServicePDFReport(t *testing.T) {
	svc, store := newExportServiceForTest(t)

	link, err := svc.ExportTaskReport(context.Background(), "task-1", "pdf")
	require.NoError(t, err)
	require.Equal(t, "ds-1/task-1.pdf", link.Filename)

	info, err := os.Stat(store.Path(link.Filename))
	require.NoError(t, err)
	require.Greater(t, info.Size(), int64(0))
}

func TestExportServiceDefaultsToCSV(t *testing.T) {
	svc, _ := newExportServiceForTest(t)

	link, err := svc.ExportTaskReport(context.Background(), "task-1", "")
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(link.Filename, ".csv"))
}

func TestExportServiceUnknownFormat(t *testing.T) {
	svc, _ := newExportServiceForTest(t)

	_, err := svc.ExportTaskReport(context.Background(), "task-1", "xlsx")
	require.Error(t, err)
	require.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestExportServiceUnknownTask(t *testing.T) {
	svc, _ := newExportServiceForTest(t)

	_, err := svc.ExportTaskReport(context.Background(), "task-9", "csv")
	require.Error(t, err)
	require.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestExportServiceOpenReportRoundTrip(t *testing.T) {
	svc, _ := newExportServiceForTest(t)

	link, err := svc.ExportTaskReport(context.Background(), "task-1", "csv")
	require.NoError(t, err)

	file, relPath, err := svc.OpenReport(link.Token)
	require.NoError(t, err)
	defer file.Close()
	require.Equal(t, link.Filename, relPath)

	_, _, err = svc.OpenReport("tampered-token")
	require.Error(t, err)
	require.True(t, appErrors.Is(err, appErrors.ErrForbidden))
}

func TestExportServiceDisabled(t *testing.T) {
	svc := NewExportService(&exportTasksStub{}, nil, nil, zap.NewNop(), false)
	require.False(t, svc.Enabled())

	_, err := svc.ExportTaskReport(context.Background(), "task-1", "csv")
	require.Error(t, err)
}
