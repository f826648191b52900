package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/verdatum/lca-review-api/internal/dto"
	"github.com/verdatum/lca-review-api/internal/models"
	appErrors "github.com/verdatum/lca-review-api/pkg/errors"
)

type datasetDocumentStore interface {
	ListVersions(ctx context.Context, id string) ([]models.Document, error)
	CreateDraft(ctx context.Context, doc *models.Document) error
}

// DatasetService covers the thin dataset browsing surface around the engine:
// version listings and the draft revision minted when a rejected version is
// reworked.
type DatasetService struct {
	docs   datasetDocumentStore
	logger *zap.Logger
}

// NewDatasetService constructs the service.
func NewDatasetService(docs datasetDocumentStore, logger *zap.Logger) *DatasetService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DatasetService{docs: docs, logger: logger}
}

// ListVersions returns the stored versions of a dataset id, newest first.
func (s *DatasetService) ListVersions(ctx context.Context, datasetID string) (*dto.DatasetVersionsResponse, error) {
	docs, err := s.docs.ListVersions(ctx, datasetID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list versions")
	}
	if len(docs) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "dataset not found")
	}
	items := make([]dto.DatasetVersionItem, 0, len(docs))
	for _, doc := range docs {
		items = append(items, dto.DatasetVersionItem{
			Version:   doc.Version,
			Type:      doc.Type,
			Name:      doc.Name,
			StateCode: doc.StateCode,
		})
	}
	return &dto.DatasetVersionsResponse{DatasetID: datasetID, Versions: items}, nil
}

// CreateRevision mints a fresh draft version from the newest stored version.
// The newest version must be terminal: in-flight and draft versions are
// edited in place, not revised.
func (s *DatasetService) CreateRevision(ctx context.Context, datasetID string) (*models.Document, error) {
	docs, err := s.docs.ListVersions(ctx, datasetID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list versions")
	}
	if len(docs) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "dataset not found")
	}
	newest := docs[0]
	if !models.StateTerminal(newest.StateCode) {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "newest version is not terminal; edit it instead of revising")
	}

	draft := &models.Document{
		ID:      newest.ID,
		Version: newest.Version.NextMinor(),
		Type:    newest.Type,
		Name:    newest.Name,
		Body:    append([]byte(nil), newest.Body...),
	}
	if err := s.docs.CreateDraft(ctx, draft); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "revision already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create revision")
	}

	s.logger.Info("draft revision created",
		zap.String("dataset_id", datasetID),
		zap.Stringer("version", draft.Version),
	)
	return draft, nil
}
