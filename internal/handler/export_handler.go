package handler

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/campushq/attendance-api/internal/models"
	"github.com/campushq/attendance-api/internal/service"
	appErrors "github.com/campushq/attendance-api/pkg/errors"
	"github.com/campushq/attendance-api/pkg/response"
)

// ExportHandler exposes export endpoints.
type ExportHandler struct {
	exports *service.ExportService
}

// NewExportHandler constructs the handler.
func NewExportHandler(exports *service.ExportService) *ExportHandler {
	return &ExportHandler{exports: exports}
}

// Session godoc
// @Summary Export one session's attendance list
// @Tags Exports
// @Produce octet-stream
// @Param id path string true "Session ID"
// @Param format query string false "Format" Enums(csv, excel, pdf) default(csv)
// @Success 200 {file} binary
// @Router /sessions/{id}/export [get]
func (h *ExportHandler) Session(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	format := models.ExportFormat(c.DefaultQuery("format", "csv"))
	filename, mime, data, err := h.exports.ExportSession(c.Request.Context(), claims, c.Param("id"), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(200, mime, data)
}

// RequestReport godoc
// @Summary Queue a report export
// @Description Report exports run in the background. Poll the returned job until it finishes, then follow the signed download URL.
// @Tags Exports
// @Accept json
// @Produce json
// @Success 201 {object} response.Envelope
// @Router /exports/reports [post]
func (h *ExportHandler) RequestReport(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req struct {
		Scope   string `json:"scope" binding:"required"`
		ScopeID string `json:"scope_id" binding:"required"`
		Format  string `json:"format" binding:"required"`
		From    string `json:"from"`
		To      string `json:"to"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid export payload"))
		return
	}

	scope := models.ReportScope{
		Type:     models.ReportScopeType(req.Scope),
		ID:       req.ScopeID,
		DateFrom: parseDateParam(req.From),
		DateTo:   parseDateParam(req.To),
	}
	job, err := h.exports.RequestReportExport(c.Request.Context(), claims, scope, models.ExportFormat(req.Format))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, job, "export queued")
}

// Job godoc
// @Summary Export job status
// @Tags Exports
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Router /exports/jobs/{id} [get]
func (h *ExportHandler) Job(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	job, err := h.exports.Job(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, job, "export job")
}

// Download godoc
// @Summary Download a finished export
// @Tags Exports
// @Produce octet-stream
// @Param token query string true "Signed download token"
// @Success 200 {file} binary
// @Router /exports/download [get]
func (h *ExportHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	path, filename, err := h.exports.ResolveDownload(c.Request.Context(), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.FileAttachment(path, filename)
}
