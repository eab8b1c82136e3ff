package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/campushq/attendance-api/internal/models"
	"github.com/campushq/attendance-api/internal/service"
	appErrors "github.com/campushq/attendance-api/pkg/errors"
	"github.com/campushq/attendance-api/pkg/response"
)

// ReportHandler exposes report aggregation endpoints.
type ReportHandler struct {
	reports *service.ReportService
}

// NewReportHandler constructs the handler.
func NewReportHandler(reports *service.ReportService) *ReportHandler {
	return &ReportHandler{reports: reports}
}

func scopeFromQuery(c *gin.Context) models.ReportScope {
	return models.ReportScope{
		Type:     models.ReportScopeType(c.Query("scope")),
		ID:       c.Query("scopeId"),
		DateFrom: parseDateParam(c.Query("from")),
		DateTo:   parseDateParam(c.Query("to")),
	}
}

// Generate godoc
// @Summary Generate an attendance report
// @Description Builds the full report for a scope: per-student summaries, the session list and the presence matrix. Students without a record for a session count as absent.
// @Tags Reports
// @Produce json
// @Param scope query string true "Scope type" Enums(department, option, class, course)
// @Param scopeId query string true "Scope ID"
// @Param from query string false "Start date (YYYY-MM-DD)"
// @Param to query string false "End date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /reports [get]
func (h *ReportHandler) Generate(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	report, err := h.reports.Generate(c.Request.Context(), claims, scopeFromQuery(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, report, "attendance report")
}

// Statistics godoc
// @Summary Dashboard statistics for a scope
// @Tags Reports
// @Produce json
// @Param scope query string true "Scope type"
// @Param scopeId query string true "Scope ID"
// @Success 200 {object} response.Envelope
// @Router /reports/statistics [get]
func (h *ReportHandler) Statistics(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	stats, err := h.reports.Statistics(c.Request.Context(), claims, scopeFromQuery(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, stats, "report statistics")
}

// StudentDetail godoc
// @Summary One student's attendance history for a course
// @Tags Reports
// @Produce json
// @Param studentId path string true "Student ID"
// @Param courseId query string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /reports/students/{studentId} [get]
func (h *ReportHandler) StudentDetail(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	summary, history, err := h.reports.StudentDetail(c.Request.Context(), claims, c.Param("studentId"), c.Query("courseId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"summary": summary, "history": history}, "student attendance detail")
}
