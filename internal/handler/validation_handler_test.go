package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/verdatum/lca-review-api/internal/dto"
	"github.com/verdatum/lca-review-api/internal/models"
	"github.com/verdatum/lca-review-api/internal/service"
	appErrors "github.com/verdatum/lca-review-api/pkg/errors"
)

const flowUUID = "4d1b8a70-2c5e-4f9a-b3d6-1e8f0a7c5b42"

type referenceCheckerMock struct {
	resp    *dto.CheckReferencesResponse
	err     error
	gotRefs []models.EntityRef
}

func (m *referenceCheckerMock) CheckReferences(ctx context.Context, refs []models.EntityRef) (*dto.CheckReferencesResponse, error) {
	m.gotRefs = refs
	return m.resp, m.err
}

type unitResolverMock struct {
	leaf   *service.ResolvedLeaf
	err    error
	gotRef models.EntityRef
}

func (m *unitResolverMock) ResolveUnit(ctx context.Context, flowRef models.EntityRef) (*service.ResolvedLeaf, error) {
	m.gotRef = flowRef
	return m.leaf, m.err
}

func TestValidationHandlerCheckReferences(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockChecker := &referenceCheckerMock{
		resp: &dto.CheckReferencesResponse{
			Results: []models.RefCheckResult{
				{ID: flowUUID, Version: models.MustParseVersion("1.0.0"), RuleVerification: true},
			},
		},
	}
	handler := NewValidationHandler(mockChecker, &unitResolverMock{})

	payload, _ := json.Marshal(dto.CheckReferencesRequest{
		References: []dto.ReferenceInput{
			{Type: models.TypeFlow, ID: flowUUID, Version: "1.0.0"},
		},
	})
	c, w := newJSONContext(http.MethodPost, "/references/check", payload)

	handler.CheckReferences(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, mockChecker.gotRefs, 1)
	require.Equal(t, models.TypeFlow, mockChecker.gotRefs[0].Type)
	require.Equal(t, models.MustParseVersion("1.0.0"), mockChecker.gotRefs[0].Version)

	var envelope struct {
		Data dto.CheckReferencesResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.Len(t, envelope.Data.Results, 1)
	require.True(t, envelope.Data.Results[0].RuleVerification)
}

func TestValidationHandlerCheckReferencesEmptyPayload(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewValidationHandler(&referenceCheckerMock{}, &unitResolverMock{})

	payload, _ := json.Marshal(dto.CheckReferencesRequest{References: []dto.ReferenceInput{}})
	c, w := newJSONContext(http.MethodPost, "/references/check", payload)

	handler.CheckReferences(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestValidationHandlerCheckReferencesBadVersion(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockChecker := &referenceCheckerMock{}
	handler := NewValidationHandler(mockChecker, &unitResolverMock{})

	payload, _ := json.Marshal(dto.CheckReferencesRequest{
		References: []dto.ReferenceInput{
			{Type: models.TypeFlow, ID: flowUUID, Version: "one.two.three"},
		},
	})
	c, w := newJSONContext(http.MethodPost, "/references/check", payload)

	handler.CheckReferences(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Nil(t, mockChecker.gotRefs)
}

func TestValidationHandlerResolveUnit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockResolver := &unitResolverMock{
		leaf: &service.ResolvedLeaf{
			Unit:   models.EntityRef{Type: models.TypeUnit, ID: "unit-kg", Version: models.MustParseVersion("1.0.0")},
			Name:   "kg",
			Symbol: "kg",
			Factor: 2.0,
			Hops:   3,
		},
	}
	handler := NewValidationHandler(&referenceCheckerMock{}, mockResolver)

	c, w := newJSONContext(http.MethodGet, "/flows/"+flowUUID+"/reference-unit?version=1.2.0", nil)
	c.Params = gin.Params{{Key: "id", Value: flowUUID}}

	handler.ResolveUnit(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, models.TypeFlow, mockResolver.gotRef.Type)
	require.Equal(t, flowUUID, mockResolver.gotRef.ID)
	require.Equal(t, models.MustParseVersion("1.2.0"), mockResolver.gotRef.Version)

	var envelope struct {
		Data dto.ResolveUnitResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.Equal(t, "kg", envelope.Data.Name)
	require.InDelta(t, 2.0, envelope.Data.Factor, 1e-9)
	require.Equal(t, 3, envelope.Data.Hops)
}

func TestValidationHandlerResolveUnitMissingVersion(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewValidationHandler(&referenceCheckerMock{}, &unitResolverMock{})

	c, w := newJSONContext(http.MethodGet, "/flows/"+flowUUID+"/reference-unit", nil)
	c.Params = gin.Params{{Key: "id", Value: flowUUID}}

	handler.ResolveUnit(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestValidationHandlerResolveUnitIncompleteChain(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewValidationHandler(&referenceCheckerMock{}, &unitResolverMock{err: appErrors.ErrIncompleteChain})

	c, w := newJSONContext(http.MethodGet, "/flows/"+flowUUID+"/reference-unit?version=1.0.0", nil)
	c.Params = gin.Params{{Key: "id", Value: flowUUID}}

	handler.ResolveUnit(c)

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	require.Contains(t, w.Body.String(), "INCOMPLETE_CHAIN")
}
