package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campushq/attendance-api/internal/service"
	appErrors "github.com/campushq/attendance-api/pkg/errors"
	"github.com/campushq/attendance-api/pkg/response"
)

// CaptureHandler exposes the face capture and attendance record endpoints.
type CaptureHandler struct {
	capture *service.CaptureService
}

// NewCaptureHandler constructs the handler.
func NewCaptureHandler(capture *service.CaptureService) *CaptureHandler {
	return &CaptureHandler{capture: capture}
}

// Process godoc
// @Summary Process a capture frame
// @Description Runs face recognition on a base64 encoded frame. Recognition failures are reported inside the result body, not as HTTP errors, so the capture loop keeps running.
// @Tags Capture
// @Accept json
// @Produce json
// @Param payload body service.CaptureRequest true "Capture payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /capture [post]
func (h *CaptureHandler) Process(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.CaptureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid capture payload"))
		return
	}

	result, err := h.capture.Process(c.Request.Context(), claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result, "capture processed")
}

// MarkManual godoc
// @Summary Manually mark a student present
// @Tags Capture
// @Accept json
// @Produce json
// @Param payload body service.ManualMarkRequest true "Manual mark payload"
// @Success 200 {object} response.Envelope
// @Router /capture/manual [post]
func (h *CaptureHandler) MarkManual(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.ManualMarkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	created, err := h.capture.MarkManual(c.Request.Context(), claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	if !created {
		response.Success(c, gin.H{"recorded": false}, "attendance already recorded for this student")
		return
	}
	response.Created(c, gin.H{"recorded": true}, "attendance recorded")
}

// Records godoc
// @Summary List session attendance records
// @Tags Capture
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/records [get]
func (h *CaptureHandler) Records(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	records, err := h.capture.Records(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, records, "attendance records")
}

// Remove godoc
// @Summary Remove an attendance record
// @Tags Capture
// @Produce json
// @Param id path string true "Record ID"
// @Success 200 {object} response.Envelope
// @Router /records/{id} [delete]
func (h *CaptureHandler) Remove(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.capture.Remove(c.Request.Context(), claims, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil, "record removed")
}
