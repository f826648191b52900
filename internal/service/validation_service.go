package service

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/verdatum/lca-review-api/internal/dto"
	"github.com/verdatum/lca-review-api/internal/models"
	appErrors "github.com/verdatum/lca-review-api/pkg/errors"
)

type targetFetcher interface {
	FetchTarget(ctx context.Context, ref models.EntityRef) (*models.Document, error)
}

type latestPublishedFetcher interface {
	FetchLatestPublished(ctx context.Context, id string, typ models.EntityType) (*models.Document, error)
}

type reviewStateReader interface {
	Get(ctx context.Context, datasetID string) (*models.DatasetReviewState, error)
}

// FieldValidator reports whether a resolved document passes its type's
// mandatory-field rules. The engine delegates the per-type rules so callers
// can swap in their own validation profiles.
type FieldValidator interface {
	ValidateMandatoryFields(typ models.EntityType, doc *models.Document) bool
}

// FieldValidatorFunc allows using plain functions.
type FieldValidatorFunc func(typ models.EntityType, doc *models.Document) bool

// ValidateMandatoryFields implements FieldValidator.
func (f FieldValidatorFunc) ValidateMandatoryFields(typ models.EntityType, doc *models.Document) bool {
	return f(typ, doc)
}

// ValidationService computes the per-reference diagnostics consumed by
// editing UIs. It composes the resolver, the review-state snapshot and the
// latest-published lookup into a pure derived view: nothing here mutates
// state and nothing is cached across calls.
type ValidationService struct {
	resolver    targetFetcher
	latest      latestPublishedFetcher
	states      reviewStateReader
	fields      FieldValidator
	concurrency int
	logger      *zap.Logger
}

// ValidationServiceOption configures the service.
type ValidationServiceOption func(*ValidationService)

// WithFieldValidator overrides the default mandatory-field rules.
func WithFieldValidator(fields FieldValidator) ValidationServiceOption {
	return func(s *ValidationService) {
		if fields != nil {
			s.fields = fields
		}
	}
}

// WithCheckConcurrency bounds the parallel fan-out across distinct
// references of one document.
func WithCheckConcurrency(n int) ValidationServiceOption {
	return func(s *ValidationService) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// NewValidationService constructs the service.
func NewValidationService(resolver targetFetcher, latest latestPublishedFetcher, states reviewStateReader, logger *zap.Logger, opts ...ValidationServiceOption) *ValidationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &ValidationService{
		resolver:    resolver,
		latest:      latest,
		states:      states,
		fields:      DefaultFieldValidator(),
		concurrency: 4,
		logger:      logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// CheckReferences produces one diagnostic per reference, in input order.
// Distinct references are read-only and order-independent, so they are
// checked with a bounded parallel fan-out; within the response, results keep
// the request order. Cancellation is honoured at reference boundaries: only
// references whose check ran to completion appear in Results, everything cut
// off mid-flight is dropped and the cancellation marker is set instead. A
// half-checked reference must never masquerade as a clean one.
func (s *ValidationService) CheckReferences(ctx context.Context, refs []models.EntityRef) (*dto.CheckReferencesResponse, error) {
	results := make([]models.RefCheckResult, len(refs))
	checkErrs := make([]error, len(refs))

	sem := make(chan struct{}, s.concurrency)
	var wg sync.WaitGroup

	dispatched := len(refs)
	cancelled := false
	for i, ref := range refs {
		if ctx.Err() != nil {
			dispatched = i
			cancelled = true
			break
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(idx int, r models.EntityRef) {
			defer wg.Done()
			defer func() { <-sem }()
			results[idx], checkErrs[idx] = s.checkOne(ctx, r)
		}(i, ref)
	}
	wg.Wait()

	completed := make([]models.RefCheckResult, 0, dispatched)
	for i, err := range checkErrs[:dispatched] {
		if err == nil {
			completed = append(completed, results[i])
			continue
		}
		if errors.Is(err, context.Canceled) {
			cancelled = true
			continue
		}
		return nil, err
	}

	return &dto.CheckReferencesResponse{
		Results:   completed,
		Cancelled: cancelled,
	}, nil
}

func (s *ValidationService) checkOne(ctx context.Context, ref models.EntityRef) (models.RefCheckResult, error) {
	result := models.RefCheckResult{ID: ref.ID, Version: ref.Version}

	doc, err := s.resolver.FetchTarget(ctx, ref)
	if err != nil {
		if appErrors.Is(err, appErrors.ErrNotFound) {
			result.NonExistent = true
			return result, nil
		}
		return result, err
	}
	result.RuleVerification = s.fields.ValidateMandatoryFields(ref.Type, doc)

	state, err := s.states.Get(ctx, ref.ID)
	switch {
	case err == nil:
		code := state.StateCode
		result.StateCode = &code
		result.UnderReviewVersion = state.UnderReviewVersion
		result.VersionUnderReview = state.UnderReviewVersion != nil && *state.UnderReviewVersion != ref.Version
	case errors.Is(err, sql.ErrNoRows):
		// Never submitted: no review flags to raise.
	default:
		return result, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read review state")
	}

	latest, err := s.latest.FetchLatestPublished(ctx, ref.ID, ref.Type)
	switch {
	case err == nil:
		result.VersionSuperseded = ref.Version.Less(latest.Version)
	case errors.Is(err, sql.ErrNoRows):
		// No published version yet: the reference cannot be stale.
	default:
		return result, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read latest published version")
	}

	return result, nil
}

// DefaultFieldValidator implements the built-in mandatory-field rules per
// entity type.
func DefaultFieldValidator() FieldValidator {
	return FieldValidatorFunc(func(typ models.EntityType, doc *models.Document) bool {
		if doc == nil || doc.Name == "" {
			return false
		}
		body, err := doc.DecodeBody()
		if err != nil {
			return false
		}
		switch typ {
		case models.TypeFlow:
			return body.ReferenceFlowProperty != nil && body.ReferenceFlowProperty.ID != ""
		case models.TypeFlowProperty:
			return body.UnitGroup != nil && body.UnitGroup.ID != ""
		case models.TypeUnitGroup:
			return body.ReferenceUnit != nil && body.ReferenceUnit.ID != "" && body.ReferenceUnit.ConversionFactor > 0
		case models.TypeUnit:
			return body.Symbol != ""
		case models.TypeProcess, models.TypeSource, models.TypeContact:
			return true
		}
		return false
	})
}
