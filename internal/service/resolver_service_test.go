package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/verdatum/lca-review-api/internal/models"
	appErrors "github.com/verdatum/lca-review-api/pkg/errors"
)

type stubDocumentStore struct {
	docs   map[string]*models.Document
	err    error
	calls  int
	delays map[string]time.Duration
}

func (s *stubDocumentStore) FetchDocument(ctx context.Context, id string, version models.Version, typ models.EntityType) (*models.Document, error) {
	s.calls++
	key := string(typ) + ":" + id + "@" + version.String()
	if d, ok := s.delays[key]; ok {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	doc, ok := s.docs[key]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return doc, nil
}

func (s *stubDocumentStore) add(t *testing.T, typ models.EntityType, id, version, name string, body models.DocumentBody) models.EntityRef {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	v := models.MustParseVersion(version)
	if s.docs == nil {
		s.docs = make(map[string]*models.Document)
	}
	s.docs[string(typ)+":"+id+"@"+v.String()] = &models.Document{
		ID: id, Version: v, Type: typ, Name: name, Body: raw, StateCode: models.StatePublished,
	}
	return models.EntityRef{Type: typ, ID: id, Version: v}
}

// seedUnitChain stores a complete flow -> flow property -> unit group -> unit
// chain and returns the flow reference.
func seedUnitChain(t *testing.T, store *stubDocumentStore, meanValue, conversionFactor float64) models.EntityRef {
	t.Helper()
	unit := store.add(t, models.TypeUnit, "unit-kg", "01.00.000", "kg", models.DocumentBody{Symbol: "kg"})
	group := store.add(t, models.TypeUnitGroup, "ug-mass", "01.00.000", "Units of mass", models.DocumentBody{
		ReferenceUnit: &models.UnitFactorRef{EntityRef: unit, ConversionFactor: conversionFactor},
	})
	prop := store.add(t, models.TypeFlowProperty, "fp-mass", "01.00.000", "Mass", models.DocumentBody{
		UnitGroup: &group,
	})
	return store.add(t, models.TypeFlow, "flow-co2", "01.00.000", "Carbon dioxide", models.DocumentBody{
		ReferenceFlowProperty: &models.FlowPropertyRef{EntityRef: prop, MeanValue: meanValue},
	})
}

func TestResolveUnitWalksFullChain(t *testing.T) {
	store := &stubDocumentStore{}
	flow := seedUnitChain(t, store, 2.0, 1.0)

	svc := NewResolverService(store, zap.NewNop())
	leaf, err := svc.ResolveUnit(context.Background(), flow)
	require.NoError(t, err)

	assert.Equal(t, "unit-kg", leaf.Unit.ID)
	assert.Equal(t, models.TypeUnit, leaf.Unit.Type)
	assert.Equal(t, "kg", leaf.Symbol)
	assert.Equal(t, "kg", leaf.Name)
	assert.Equal(t, 3, leaf.Hops)
	// mean value and the reference unit's conversion factor combine.
	assert.InDelta(t, 2.0, leaf.Factor, 1e-9)
}

func TestResolveUnitRequiresFlowStart(t *testing.T) {
	svc := NewResolverService(&stubDocumentStore{}, zap.NewNop())
	_, err := svc.ResolveUnit(context.Background(), models.EntityRef{
		Type: models.TypeUnitGroup, ID: "ug-1", Version: models.MustParseVersion("01.00.000"),
	})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestResolveMissingHopIsNotFoundWithDetails(t *testing.T) {
	store := &stubDocumentStore{}
	// Flow points at a flow property that is never stored.
	missing := models.EntityRef{Type: models.TypeFlowProperty, ID: "fp-gone", Version: models.MustParseVersion("01.00.000")}
	flow := store.add(t, models.TypeFlow, "flow-1", "01.00.000", "Flow", models.DocumentBody{
		ReferenceFlowProperty: &models.FlowPropertyRef{EntityRef: missing, MeanValue: 1},
	})

	svc := NewResolverService(store, zap.NewNop())
	_, err := svc.Resolve(context.Background(), models.ReferenceChain{flow})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))

	appErr := appErrors.FromError(err)
	details, ok := appErr.Details.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, 1, details["hop"])
	assert.Equal(t, "fp-gone", details["id"])
}

func TestResolveIncompleteChain(t *testing.T) {
	store := &stubDocumentStore{}
	// Flow with no declared reference flow property.
	flow := store.add(t, models.TypeFlow, "flow-bare", "01.00.000", "Bare flow", models.DocumentBody{})

	svc := NewResolverService(store, zap.NewNop())
	_, err := svc.Resolve(context.Background(), models.ReferenceChain{flow})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrIncompleteChain))
}

func TestResolveDetectsCycle(t *testing.T) {
	store := &stubDocumentStore{}
	propRef := models.EntityRef{Type: models.TypeFlowProperty, ID: "fp-loop", Version: models.MustParseVersion("01.00.000")}
	flowRef := models.EntityRef{Type: models.TypeFlow, ID: "flow-loop", Version: models.MustParseVersion("01.00.000")}
	store.add(t, models.TypeFlow, "flow-loop", "01.00.000", "Flow", models.DocumentBody{
		ReferenceFlowProperty: &models.FlowPropertyRef{EntityRef: propRef, MeanValue: 1},
	})
	// The flow property points back at the flow.
	store.add(t, models.TypeFlowProperty, "fp-loop", "01.00.000", "Loop", models.DocumentBody{
		UnitGroup: &flowRef,
	})

	svc := NewResolverService(store, zap.NewNop())
	_, err := svc.Resolve(context.Background(), models.ReferenceChain{flowRef})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrCycleDetected))
}

func TestResolveDepthBound(t *testing.T) {
	store := &stubDocumentStore{}
	flow := seedUnitChain(t, store, 1.0, 1.0)

	svc := NewResolverService(store, zap.NewNop(), WithMaxChainDepth(2))
	_, err := svc.Resolve(context.Background(), models.ReferenceChain{flow})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrMaxDepthExceeded))
}

func TestResolveRejectsChainDisagreeingWithDeclaredRefs(t *testing.T) {
	store := &stubDocumentStore{}
	flow := seedUnitChain(t, store, 1.0, 1.0)

	wrong := models.EntityRef{Type: models.TypeFlowProperty, ID: "fp-other", Version: models.MustParseVersion("01.00.000")}
	svc := NewResolverService(store, zap.NewNop())
	_, err := svc.Resolve(context.Background(), models.ReferenceChain{flow, wrong})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestResolveFetchTimeout(t *testing.T) {
	store := &stubDocumentStore{}
	flow := seedUnitChain(t, store, 1.0, 1.0)
	store.delays = map[string]time.Duration{
		"FLOW:flow-co2@01.00.000": 50 * time.Millisecond,
	}

	svc := NewResolverService(store, zap.NewNop(), WithFetchTimeout(5*time.Millisecond))
	_, err := svc.Resolve(context.Background(), models.ReferenceChain{flow})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrTimeout))
}

type memoryDocCache struct {
	store map[string][]byte
}

func (c *memoryDocCache) Get(_ context.Context, key string, dest interface{}) error {
	payload, ok := c.store[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(payload, dest)
}

func (c *memoryDocCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	if c.store == nil {
		c.store = make(map[string][]byte)
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.store[key] = payload
	return nil
}

func TestResolveUsesDocumentCache(t *testing.T) {
	store := &stubDocumentStore{}
	flow := seedUnitChain(t, store, 1.0, 1.0)
	cache := &memoryDocCache{}

	svc := NewResolverService(store, zap.NewNop(), WithDocumentCache(cache, time.Minute))

	_, err := svc.Resolve(context.Background(), models.ReferenceChain{flow})
	require.NoError(t, err)
	firstCalls := store.calls

	_, err = svc.Resolve(context.Background(), models.ReferenceChain{flow})
	require.NoError(t, err)
	assert.Equal(t, firstCalls, store.calls, "second walk should be served from cache")
}
