package handler

import (
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/verdatum/lca-review-api/internal/service"
	"github.com/verdatum/lca-review-api/pkg/response"
)

// ReportHandler exposes review report export.
type ReportHandler struct {
	exports *service.ExportService
}

// NewReportHandler constructs the handler.
func NewReportHandler(exports *service.ExportService) *ReportHandler {
	return &ReportHandler{exports: exports}
}

// ExportTaskReport godoc
// @Summary Export the decision record of a review task
// @Description Renders the task's decisions as CSV or PDF and returns a signed download link
// @Tags Reports
// @Produce json
// @Param id path string true "Review task ID"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /review-tasks/{id}/report [post]
func (h *ReportHandler) ExportTaskReport(c *gin.Context) {
	link, err := h.exports.ExportTaskReport(c.Request.Context(), c.Param("id"), c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, link, nil)
}

// Download godoc
// @Summary Download a previously exported report
// @Tags Reports
// @Produce octet-stream
// @Param token query string true "Signed download token"
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Router /reports/download [get]
func (h *ReportHandler) Download(c *gin.Context) {
	file, relPath, err := h.exports.OpenReport(c.Query("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close() //nolint:errcheck

	contentType := "text/csv"
	if strings.EqualFold(filepath.Ext(relPath), ".pdf") {
		contentType = "application/pdf"
	}

	info, err := file.Stat()
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename="+filepath.Base(relPath))
	c.DataFromReader(http.StatusOK, info.Size(), contentType, file, nil)
}
