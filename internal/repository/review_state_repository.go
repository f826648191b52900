package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/verdatum/lca-review-api/internal/models"
)

// ErrClaimConflict reports a lost conditional write on the review-state row.
// Callers read the winning row off the error rather than re-querying.
type ErrClaimConflict struct {
	Current models.DatasetReviewState
}

func (e *ErrClaimConflict) Error() string {
	version := "<none>"
	if e.Current.UnderReviewVersion != nil {
		version = e.Current.UnderReviewVersion.String()
	}
	return fmt.Sprintf("dataset %s already in flight: state=%d version=%s",
		e.Current.DatasetID, e.Current.StateCode, version)
}

// ReviewStateRepository owns the single durable row per dataset id. Every
// mutation is a conditional write: the statement carries its own guard and a
// zero rows-affected result means another writer won.
type ReviewStateRepository struct {
	db *sqlx.DB
}

// NewReviewStateRepository constructs the repository.
func NewReviewStateRepository(db *sqlx.DB) *ReviewStateRepository {
	return &ReviewStateRepository{db: db}
}

// Get returns the review-state row for a dataset id. A dataset that was never
// submitted has no row; that maps to sql.ErrNoRows.
func (r *ReviewStateRepository) Get(ctx context.Context, datasetID string) (*models.DatasetReviewState, error) {
	const query = `SELECT dataset_id, state_code, under_review_version, updated_at
	FROM dataset_review_states WHERE dataset_id = $1`
	var state models.DatasetReviewState
	if err := r.db.GetContext(ctx, &state, query, datasetID); err != nil {
		return nil, err
	}
	return &state, nil
}

// TryClaimUnderReview atomically claims the review slot for one version. The
// upsert only lands when no other version of the same dataset id currently
// holds a code in the in-flight band, so under concurrent submission exactly
// one claim succeeds; the loser gets an *ErrClaimConflict carrying the
// winning row.
func (r *ReviewStateRepository) TryClaimUnderReview(ctx context.Context, datasetID string, version models.Version) (*models.DatasetReviewState, error) {
	now := time.Now().UTC()
	const query = `INSERT INTO dataset_review_states (dataset_id, state_code, under_review_version, updated_at)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (dataset_id) DO UPDATE
	SET state_code = EXCLUDED.state_code,
	    under_review_version = EXCLUDED.under_review_version,
	    updated_at = EXCLUDED.updated_at
	WHERE NOT dataset_review_states.state_code BETWEEN $5 AND $6`
	result, err := r.db.ExecContext(ctx, query,
		datasetID, models.StateAssigned, version, now,
		models.StateAssigned, models.StateUnderReviewMax,
	)
	if err != nil {
		return nil, fmt.Errorf("claim review slot for %s@%s: %w", datasetID, version, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("check claim rows: %w", err)
	}
	if rows == 0 {
		current, err := r.Get(ctx, datasetID)
		if err != nil {
			return nil, fmt.Errorf("read winning claim for %s: %w", datasetID, err)
		}
		return nil, &ErrClaimConflict{Current: *current}
	}
	return &models.DatasetReviewState{
		DatasetID:          datasetID,
		StateCode:          models.StateAssigned,
		UnderReviewVersion: &version,
		UpdatedAt:          now,
	}, nil
}

// ConditionalWrite transitions the row from an expected current code to the
// next state. The expected-code guard is the optimistic-concurrency stamp: a
// concurrent transition leaves zero rows affected and the actual row rides
// back on the conflict error.
func (r *ReviewStateRepository) ConditionalWrite(ctx context.Context, datasetID string, expectedCode int, next models.DatasetReviewState) error {
	const query = `UPDATE dataset_review_states
	SET state_code = $1, under_review_version = $2, updated_at = $3
	WHERE dataset_id = $4 AND state_code = $5`
	var version interface{}
	if next.UnderReviewVersion != nil {
		version = *next.UnderReviewVersion
	}
	result, err := r.db.ExecContext(ctx, query,
		next.StateCode, version, time.Now().UTC(), datasetID, expectedCode,
	)
	if err != nil {
		return fmt.Errorf("conditional write for %s: %w", datasetID, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check conditional write rows: %w", err)
	}
	if rows == 0 {
		current, err := r.Get(ctx, datasetID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return sql.ErrNoRows
			}
			return fmt.Errorf("read conflicting state for %s: %w", datasetID, err)
		}
		return &ErrClaimConflict{Current: *current}
	}
	return nil
}

// AdvanceInFlight bumps the state code within the in-flight band, used for
// the opaque under-review progress marker. Unlike ConditionalWrite it guards
// on the band rather than one exact code, since two reviewers may race their
// first decision.
func (r *ReviewStateRepository) AdvanceInFlight(ctx context.Context, datasetID string, code int) error {
	const query = `UPDATE dataset_review_states
	SET state_code = $1, updated_at = $2
	WHERE dataset_id = $3 AND state_code BETWEEN $4 AND $5`
	result, err := r.db.ExecContext(ctx, query,
		code, time.Now().UTC(), datasetID, models.StateAssigned, models.StateUnderReviewMax,
	)
	if err != nil {
		return fmt.Errorf("advance in-flight state for %s: %w", datasetID, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check advance rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
