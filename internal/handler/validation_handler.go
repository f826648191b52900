package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/verdatum/lca-review-api/internal/dto"
	"github.com/verdatum/lca-review-api/internal/models"
	"github.com/verdatum/lca-review-api/internal/service"
	appErrors "github.com/verdatum/lca-review-api/pkg/errors"
	"github.com/verdatum/lca-review-api/pkg/response"
)

type referenceChecker interface {
	CheckReferences(ctx context.Context, refs []models.EntityRef) (*dto.CheckReferencesResponse, error)
}

type unitResolver interface {
	ResolveUnit(ctx context.Context, flowRef models.EntityRef) (*service.ResolvedLeaf, error)
}

// ValidationHandler exposes reference checking and chain resolution.
type ValidationHandler struct {
	validation referenceChecker
	resolver   unitResolver
}

// NewValidationHandler constructs the handler.
func NewValidationHandler(validation referenceChecker, resolver unitResolver) *ValidationHandler {
	return &ValidationHandler{validation: validation, resolver: resolver}
}

// CheckReferences godoc
// @Summary Check document references
// @Description Validates each submitted reference and returns per-reference diagnostics
// @Tags Validation
// @Accept json
// @Produce json
// @Param payload body dto.CheckReferencesRequest true "References to check"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /references/check [post]
func (h *ValidationHandler) CheckReferences(c *gin.Context) {
	var req dto.CheckReferencesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid references payload"))
		return
	}

	refs := make([]models.EntityRef, 0, len(req.References))
	for _, in := range req.References {
		version, err := models.ParseVersion(in.Version)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid version for reference "+in.ID))
			return
		}
		refs = append(refs, models.EntityRef{
			Type:    in.Type,
			ID:      in.ID,
			Version: version,
			URI:     in.URI,
		})
	}

	res, err := h.validation.CheckReferences(c.Request.Context(), refs)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, res, nil)
}

// ResolveUnit godoc
// @Summary Resolve the reference unit of a flow
// @Description Walks flow -> flow property -> unit group -> unit and returns the leaf with the combined factor
// @Tags Validation
// @Produce json
// @Param id path string true "Flow ID"
// @Param version query string true "Flow version (MAJOR.MINOR.PATCH)"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /flows/{id}/reference-unit [get]
func (h *ValidationHandler) ResolveUnit(c *gin.Context) {
	version, err := models.ParseVersion(c.Query("version"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "version query parameter required (MAJOR.MINOR.PATCH)"))
		return
	}

	leaf, err := h.resolver.ResolveUnit(c.Request.Context(), models.EntityRef{
		Type:    models.TypeFlow,
		ID:      c.Param("id"),
		Version: version,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, dto.ResolveUnitResponse{
		Unit:   leaf.Unit,
		Name:   leaf.Name,
		Symbol: leaf.Symbol,
		Factor: leaf.Factor,
		Hops:   leaf.Hops,
	}, nil)
}
