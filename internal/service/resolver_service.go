package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/verdatum/lca-review-api/internal/models"
	appErrors "github.com/verdatum/lca-review-api/pkg/errors"
)

type documentFetcher interface {
	FetchDocument(ctx context.Context, id string, version models.Version, typ models.EntityType) (*models.Document, error)
}

type documentCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// FactorCombiner folds the numeric attribute a source document carries for
// one hop into the running conversion factor. Combiners are registered per
// (sourceType, hopType) pair so new entity types extend the table without
// touching the chain walker.
type FactorCombiner func(acc float64, body *models.DocumentBody) float64

type combinerKey struct {
	source models.EntityType
	hop    models.EntityType
}

// hopRule declares, per entity type, how to extract the next hop reference
// from a document body and whether the type terminates a chain.
type hopRule struct {
	terminal bool
	next     func(body *models.DocumentBody) *models.EntityRef
}

// ResolvedLeaf is the outcome of a successful chain walk: the terminal unit
// plus the combined conversion factor accumulated along the hops.
type ResolvedLeaf struct {
	Unit   models.EntityRef
	Name   string
	Symbol string
	Factor float64
	Hops   int
}

// ResolverService walks chains of typed references down to their terminal
// unit. It is stateless per call and never retries: retry policy belongs to
// the caller.
type ResolverService struct {
	store        documentFetcher
	cache        documentCache
	cacheTTL     time.Duration
	maxDepth     int
	fetchTimeout time.Duration
	rules        map[models.EntityType]hopRule
	combiners    map[combinerKey]FactorCombiner
	metrics      *MetricsService
	logger       *zap.Logger
}

// ResolverOption configures the service.
type ResolverOption func(*ResolverService)

// WithDocumentCache enables the read-through document cache.
func WithDocumentCache(cache documentCache, ttl time.Duration) ResolverOption {
	return func(s *ResolverService) {
		if cache != nil && ttl > 0 {
			s.cache = cache
			s.cacheTTL = ttl
		}
	}
}

// WithResolverMetrics attaches instrumentation.
func WithResolverMetrics(metrics *MetricsService) ResolverOption {
	return func(s *ResolverService) { s.metrics = metrics }
}

// WithMaxChainDepth overrides the hop bound.
func WithMaxChainDepth(depth int) ResolverOption {
	return func(s *ResolverService) {
		if depth > 0 {
			s.maxDepth = depth
		}
	}
}

// WithFetchTimeout bounds every single document fetch.
func WithFetchTimeout(timeout time.Duration) ResolverOption {
	return func(s *ResolverService) {
		if timeout > 0 {
			s.fetchTimeout = timeout
		}
	}
}

// WithCombiner registers or replaces the factor combination rule for one
// (sourceType, hopType) pair.
func WithCombiner(source, hop models.EntityType, fn FactorCombiner) ResolverOption {
	return func(s *ResolverService) {
		if fn != nil {
			s.combiners[combinerKey{source: source, hop: hop}] = fn
		}
	}
}

// NewResolverService constructs the resolver with the domain's hop rules and
// default combiners.
func NewResolverService(store documentFetcher, logger *zap.Logger, opts ...ResolverOption) *ResolverService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &ResolverService{
		store:        store,
		maxDepth:     models.MaxChainDepth,
		fetchTimeout: 5 * time.Second,
		logger:       logger,
		rules: map[models.EntityType]hopRule{
			models.TypeFlow: {next: func(body *models.DocumentBody) *models.EntityRef {
				if body.ReferenceFlowProperty == nil {
					return nil
				}
				ref := body.ReferenceFlowProperty.EntityRef
				return &ref
			}},
			models.TypeFlowProperty: {next: func(body *models.DocumentBody) *models.EntityRef {
				return body.UnitGroup
			}},
			models.TypeUnitGroup: {next: func(body *models.DocumentBody) *models.EntityRef {
				if body.ReferenceUnit == nil {
					return nil
				}
				ref := body.ReferenceUnit.EntityRef
				return &ref
			}},
			models.TypeUnit: {terminal: true},
		},
		combiners: map[combinerKey]FactorCombiner{
			{source: models.TypeFlow, hop: models.TypeFlowProperty}: func(acc float64, body *models.DocumentBody) float64 {
				return acc * body.ReferenceFlowProperty.MeanValue
			},
			{source: models.TypeUnitGroup, hop: models.TypeUnit}: func(acc float64, body *models.DocumentBody) float64 {
				return acc * body.ReferenceUnit.ConversionFactor
			},
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// Resolve walks the chain left to right. chain[0] is the head; later entries,
// when provided, must match what each document actually declares. When the
// chain is shorter than the walk, the declared references extend it until the
// terminal type is reached or a failure surfaces.
func (s *ResolverService) Resolve(ctx context.Context, chain models.ReferenceChain) (*ResolvedLeaf, error) {
	start := time.Now()
	leaf, err := s.resolve(ctx, chain)
	if s.metrics != nil {
		outcome := "ok"
		if err != nil {
			outcome = appErrors.FromError(err).Code
		}
		hops := 0
		if leaf != nil {
			hops = leaf.Hops
		}
		s.metrics.ObserveChainResolution(hops, time.Since(start), outcome)
	}
	return leaf, err
}

func (s *ResolverService) resolve(ctx context.Context, chain models.ReferenceChain) (*ResolvedLeaf, error) {
	if len(chain) == 0 {
		return nil, appErrors.Clone(appErrors.ErrIncompleteChain, "empty reference chain")
	}

	seen := make(map[string]struct{}, s.maxDepth)
	factor := 1.0
	current := chain[0]

	for hop := 0; ; hop++ {
		if hop >= s.maxDepth {
			return nil, appErrors.Clone(appErrors.ErrMaxDepthExceeded,
				fmt.Sprintf("chain exceeds %d hops", s.maxDepth))
		}
		if _, ok := seen[current.Key()]; ok {
			return nil, appErrors.Clone(appErrors.ErrCycleDetected,
				fmt.Sprintf("reference %s revisited at hop %d", current.Key(), hop))
		}
		seen[current.Key()] = struct{}{}

		rule, ok := s.rules[current.Type]
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation,
				fmt.Sprintf("no hop rule for entity type %s", current.Type))
		}

		doc, err := s.fetchDocument(ctx, current)
		if err != nil {
			return nil, s.classifyFetchError(err, hop, current)
		}
		body, err := doc.DecodeBody()
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "malformed document body")
		}

		if rule.terminal {
			return &ResolvedLeaf{
				Unit:   current,
				Name:   doc.Name,
				Symbol: body.Symbol,
				Factor: factor,
				Hops:   hop,
			}, nil
		}

		next := rule.next(body)
		if next == nil {
			return nil, appErrors.Clone(appErrors.ErrIncompleteChain,
				fmt.Sprintf("%s %s declares no onward reference", current.Type, current.ID))
		}
		if hop+1 < len(chain) {
			declared := chain[hop+1]
			if declared.ID != next.ID || declared.Version != next.Version || declared.Type != next.Type {
				return nil, appErrors.Clone(appErrors.ErrValidation,
					fmt.Sprintf("chain hop %d disagrees with the reference declared by %s %s", hop+1, current.Type, current.ID))
			}
		}

		if combiner, ok := s.combiners[combinerKey{source: current.Type, hop: next.Type}]; ok {
			factor = combiner(factor, body)
		}
		current = *next
	}
}

// ResolveUnit resolves a flow's unit by following its declared references
// down to the terminal unit.
func (s *ResolverService) ResolveUnit(ctx context.Context, flowRef models.EntityRef) (*ResolvedLeaf, error) {
	if flowRef.Type != models.TypeFlow {
		return nil, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("unit resolution starts at a flow, got %s", flowRef.Type))
	}
	return s.Resolve(ctx, models.ReferenceChain{flowRef})
}

// FetchTarget fetches a single referenced document without walking onward,
// used by the reference validator for existence checks.
func (s *ResolverService) FetchTarget(ctx context.Context, ref models.EntityRef) (*models.Document, error) {
	doc, err := s.fetchDocument(ctx, ref)
	if err != nil {
		return nil, s.classifyFetchError(err, 0, ref)
	}
	return doc, nil
}

func (s *ResolverService) fetchDocument(ctx context.Context, ref models.EntityRef) (*models.Document, error) {
	cacheKey := "doc:" + string(ref.Type) + ":" + ref.Key()
	if s.cache != nil {
		var cached models.Document
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			if s.metrics != nil {
				s.metrics.RecordDocumentCache(true)
			}
			return &cached, nil
		}
		if s.metrics != nil {
			s.metrics.RecordDocumentCache(false)
		}
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()
	doc, err := s.store.FetchDocument(fetchCtx, ref.ID, ref.Version, ref.Type)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, doc, s.cacheTTL); err != nil {
			s.logger.Warn("document cache write failed", zap.String("key", cacheKey), zap.Error(err))
		}
	}
	return doc, nil
}

func (s *ResolverService) classifyFetchError(err error, hop int, ref models.EntityRef) error {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return appErrors.WithDetails(
			appErrors.Clone(appErrors.ErrNotFound,
				fmt.Sprintf("%s %s@%s not found at hop %d", ref.Type, ref.ID, ref.Version, hop)),
			map[string]interface{}{"hop": hop, "id": ref.ID, "version": ref.Version.String()},
		)
	case errors.Is(err, context.DeadlineExceeded):
		return appErrors.Clone(appErrors.ErrTimeout,
			fmt.Sprintf("fetching %s %s@%s timed out at hop %d", ref.Type, ref.ID, ref.Version, hop))
	case errors.Is(err, context.Canceled):
		return err
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "document fetch failed")
}
