package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/verdatum/lca-review-api/internal/service"
	"github.com/verdatum/lca-review-api/pkg/response"
)

// DatasetHandler exposes dataset version browsing.
type DatasetHandler struct {
	datasets *service.DatasetService
}

// NewDatasetHandler constructs the handler.
func NewDatasetHandler(datasets *service.DatasetService) *DatasetHandler {
	return &DatasetHandler{datasets: datasets}
}

// ListVersions godoc
// @Summary List stored versions of a dataset
// @Tags Datasets
// @Produce json
// @Param id path string true "Dataset ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /datasets/{id}/versions [get]
func (h *DatasetHandler) ListVersions(c *gin.Context) {
	res, err := h.datasets.ListVersions(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// CreateRevision godoc
// @Summary Create a draft revision of a dataset
// @Description Mints the next minor version as a draft copy of the newest terminal version
// @Tags Datasets
// @Produce json
// @Param id path string true "Dataset ID"
// @Success 201 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /datasets/{id}/revisions [post]
func (h *DatasetHandler) CreateRevision(c *gin.Context) {
	doc, err := h.datasets.CreateRevision(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, doc)
}
