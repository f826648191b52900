package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/verdatum/lca-review-api/internal/models"
	appErrors "github.com/verdatum/lca-review-api/pkg/errors"
	"github.com/verdatum/lca-review-api/pkg/export"
	"github.com/verdatum/lca-review-api/pkg/storage"
)

type exportTaskReader interface {
	GetByID(ctx context.Context, id string) (*models.ReviewTask, error)
	ListDecisions(ctx context.Context, taskID string) ([]models.ReviewDecision, error)
}

type reportRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

// ExportService renders review reports (the decision record of one task) and
// serves them through signed download URLs. This is boundary plumbing around
// the engine, not part of it: nothing here feeds back into review state.
type ExportService struct {
	tasks   exportTaskReader
	csv     *export.CSVExporter
	pdf     *export.PDFExporter
	store   *storage.LocalStorage
	signer  *storage.SignedURLSigner
	logger  *zap.Logger
	enabled bool
}

// NewExportService constructs the service.
func NewExportService(tasks exportTaskReader, store *storage.LocalStorage, signer *storage.SignedURLSigner, logger *zap.Logger, enabled bool) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		tasks:   tasks,
		csv:     export.NewCSVExporter(),
		pdf:     export.NewPDFExporter(),
		store:   store,
		signer:  signer,
		logger:  logger,
		enabled: enabled,
	}
}

// Enabled reports whether report export is configured.
func (s *ExportService) Enabled() bool {
	return s != nil && s.enabled && s.store != nil && s.signer != nil
}

// ReportLink is the signed download handle returned to the caller.
type ReportLink struct {
	Token     string    `json:"token"`
	Filename  string    `json:"filename"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ExportTaskReport renders the decision record of one task in the requested
// format ("csv" or "pdf"), stores the artifact and returns a signed link.
func (s *ExportService) ExportTaskReport(ctx context.Context, taskID, format string) (*ReportLink, error) {
	if !s.Enabled() {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "report export is disabled")
	}
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

	data := reportDataset(task, decisions)

	format = strings.ToLower(strings.TrimSpace(format))
	var payload []byte
	switch format {
	case "", "csv":
		format = "csv"
		payload, err = s.csv.Render(data)
	case "pdf":
		title := fmt.Sprintf("Review report %s@%s", task.DatasetID, task.DatasetVersion)
		payload, err = s.pdf.Render(data, title)
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render report")
	}

	filename := fmt.Sprintf("%s/%s.%s", task.DatasetID, task.ID, format)
	if _, err := s.store.Save(filename, payload); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store report")
	}

	token, expiresAt, err := s.signer.Generate(task.ID, filename)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download link")
	}
	return &ReportLink{Token: token, Filename: filename, ExpiresAt: expiresAt}, nil
}

// OpenReport validates a signed token and opens the stored artifact.
func (s *ExportService) OpenReport(token string) (*os.File, string, error) {
	if !s.Enabled() {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "report export is disabled")
	}
	_, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download link")
	}
	file, err := s.store.Open(relPath)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "report no longer available")
	}
	return file, relPath, nil
}

// CleanupExpired removes artifacts older than the TTL. Wired to a ticker in
// main.
func (s *ExportService) CleanupExpired(ttl time.Duration) {
	if !s.Enabled() {
		return
	}
	deleted, err := s.store.CleanupOlderThan(ttl)
	if err != nil {
		s.logger.Warn("report cleanup failed", zap.Error(err))
		return
	}
	if len(deleted) > 0 {
		s.logger.Info("expired reports removed", zap.Int("count", len(deleted)))
	}
}

func reportDataset(task *models.ReviewTask, decisions []models.ReviewDecision) export.Dataset {
	headers := []string{"Reviewer", "Decision", "Reason", "Decided At"}
	rows := make([]map[string]string, 0, len(decisions))
	for _, d := range decisions {
		row := map[string]string{
			"Reviewer": d.ReviewerID,
			"Decision": decisionLabel(d.State),
		}
		if d.Reason != nil {
			row["Reason"] = *d.Reason
		}
		if d.DecidedAt != nil {
			row["Decided At"] = d.DecidedAt.UTC().Format(time.RFC3339)
		}
		rows = append(rows, row)
	}
	return export.Dataset{Headers: headers, Rows: rows}
}

func decisionLabel(state models.DecisionState) string {
	switch state {
	case models.DecisionApproved:
		return "APPROVED"
	case models.DecisionRejected:
		return "REJECTED"
	}
	return "PENDING"
}
