package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/verdatum/lca-review-api/internal/models"
)

// DocumentRepository is the document-store side of the engine: versioned,
// immutable dataset documents addressed by (id, version, type).
type DocumentRepository struct {
	db *sqlx.DB
}

// NewDocumentRepository constructs a DocumentRepository.
func NewDocumentRepository(db *sqlx.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// FetchDocument loads one document by identity. Missing documents surface as
// sql.ErrNoRows for the caller to map onto the NotFound diagnostic.
func (r *DocumentRepository) FetchDocument(ctx context.Context, id string, version models.Version, typ models.EntityType) (*models.Document, error) {
	const query = `SELECT id, version, type, name, body, state_code, created_at
	FROM documents WHERE id = $1 AND version = $2 AND type = $3`
	var doc models.Document
	if err := r.db.GetContext(ctx, &doc, query, id, version, typ); err != nil {
		return nil, err
	}
	return &doc, nil
}

// FetchLatestPublished returns the highest published version of a dataset id.
// The padded version rendering sorts lexicographically in version order, so
// MAX over the text column is the numeric maximum.
func (r *DocumentRepository) FetchLatestPublished(ctx context.Context, id string, typ models.EntityType) (*models.Document, error) {
	const query = `SELECT id, version, type, name, body, state_code, created_at
	FROM documents WHERE id = $1 AND type = $2 AND state_code = $3
	ORDER BY version DESC LIMIT 1`
	var doc models.Document
	if err := r.db.GetContext(ctx, &doc, query, id, typ, models.StatePublished); err != nil {
		return nil, err
	}
	return &doc, nil
}

// ListVersions enumerates every stored version of a dataset id, newest first.
func (r *DocumentRepository) ListVersions(ctx context.Context, id string) ([]models.Document, error) {
	const query = `SELECT id, version, type, name, body, state_code, created_at
	FROM documents WHERE id = $1 ORDER BY version DESC`
	var docs []models.Document
	if err := r.db.SelectContext(ctx, &docs, query, id); err != nil {
		return nil, fmt.Errorf("list versions for %s: %w", id, err)
	}
	return docs, nil
}

// CreateDraft inserts a new document version in draft state. Used on
// resubmission after a rejection, which always mints a fresh version.
func (r *DocumentRepository) CreateDraft(ctx context.Context, doc *models.Document) error {
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	doc.StateCode = models.StateDraft
	const query = `INSERT INTO documents (id, version, type, name, body, state_code, created_at)
	VALUES (:id, :version, :type, :name, :body, :state_code, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, doc); err != nil {
		return fmt.Errorf("create draft %s@%s: %w", doc.ID, doc.Version, err)
	}
	return nil
}

// SetStateCode stamps the document row with its review outcome. The guard on
// the previous code keeps terminal documents immutable.
func (r *DocumentRepository) SetStateCode(ctx context.Context, id string, version models.Version, code int) error {
	const query = `UPDATE documents SET state_code = $1
	WHERE id = $2 AND version = $3 AND state_code NOT IN ($4, $5)`
	result, err := r.db.ExecContext(ctx, query, code, id, version, models.StatePublished, models.StateRejected)
	if err != nil {
		return fmt.Errorf("set state for %s@%s: %w", id, version, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check state update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
