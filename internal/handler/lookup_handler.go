package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/campushq/attendance-api/internal/service"
	appErrors "github.com/campushq/attendance-api/pkg/errors"
	"github.com/campushq/attendance-api/pkg/response"
)

// LookupHandler serves the cascading selects used by the capture UI.
type LookupHandler struct {
	lookups *service.LookupService
}

// NewLookupHandler constructs the handler.
func NewLookupHandler(lookups *service.LookupService) *LookupHandler {
	return &LookupHandler{lookups: lookups}
}

// Departments godoc
// @Summary List departments visible to the caller
// @Tags Lookups
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /departments [get]
func (h *LookupHandler) Departments(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	departments, err := h.lookups.Departments(c.Request.Context(), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, departments, "departments")
}

// Options godoc
// @Summary List active options of a department
// @Tags Lookups
// @Produce json
// @Param departmentId query string true "Department ID"
// @Success 200 {object} response.Envelope
// @Router /options [get]
func (h *LookupHandler) Options(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	options, err := h.lookups.Options(c.Request.Context(), claims, c.Query("departmentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, options, "options")
}

// Courses godoc
// @Summary List courses of a department
// @Tags Lookups
// @Produce json
// @Param departmentId query string true "Department ID"
// @Success 200 {object} response.Envelope
// @Router /courses [get]
func (h *LookupHandler) Courses(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	courses, err := h.lookups.Courses(c.Request.Context(), claims, c.Query("departmentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, courses, "courses")
}

// Students godoc
// @Summary List active students of an option
// @Tags Lookups
// @Produce json
// @Param optionId query string true "Option ID"
// @Success 200 {object} response.Envelope
// @Router /students [get]
func (h *LookupHandler) Students(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	students, err := h.lookups.Students(c.Request.Context(), claims, c.Query("optionId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, students, "students")
}
