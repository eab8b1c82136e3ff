package response

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/campushq/attendance-api/internal/models"
	appErrors "github.com/campushq/attendance-api/pkg/errors"
	"github.com/campushq/attendance-api/pkg/middleware/requestid"
)

// Envelope statuses. Every response carries exactly one of these.
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusWarning = "warning"
)

// Envelope is the uniform response contract for all endpoints.
type Envelope struct {
	Status     string                 `json:"status"`
	Message    string                 `json:"message"`
	Data       interface{}            `json:"data"`
	Timestamp  string                 `json:"timestamp"`
	RequestID  string                 `json:"request_id"`
	ErrorCode  string                 `json:"error_code,omitempty"`
	Pagination *models.Pagination     `json:"pagination,omitempty"`
	Meta       map[string]interface{} `json:"meta,omitempty"`
}

// Success sends a success envelope.
func Success(c *gin.Context, data interface{}, message string, meta ...map[string]interface{}) {
	envelope := newEnvelope(c, StatusSuccess, message, data)
	if len(meta) > 0 && meta[0] != nil {
		envelope.Meta = meta[0]
	}
	write(c, http.StatusOK, envelope)
}

// Created sends a success envelope with HTTP 201.
func Created(c *gin.Context, data interface{}, message string) {
	write(c, http.StatusCreated, newEnvelope(c, StatusSuccess, message, data))
}

// Paginated sends a success envelope with pagination metadata.
func Paginated(c *gin.Context, data interface{}, pagination *models.Pagination, message string) {
	envelope := newEnvelope(c, StatusSuccess, message, data)
	envelope.Pagination = pagination
	write(c, http.StatusOK, envelope)
}

// Warning sends a warning envelope. Used when the operation could not proceed
// but the caller can recover with the attached data (e.g. an existing active
// session that may be resumed or replaced).
func Warning(c *gin.Context, data interface{}, message string, meta ...map[string]interface{}) {
	envelope := newEnvelope(c, StatusWarning, message, data)
	if len(meta) > 0 && meta[0] != nil {
		envelope.Meta = meta[0]
	}
	write(c, http.StatusOK, envelope)
}

// Error sends an error envelope converting the error to the common structure.
func Error(c *gin.Context, err error) {
	appErr := appErrors.FromError(err)
	envelope := newEnvelope(c, StatusError, appErr.Message, nil)
	envelope.ErrorCode = appErr.Code
	write(c, appErr.Status, envelope)
}

func newEnvelope(c *gin.Context, status, message string, data interface{}) Envelope {
	if message == "" {
		message = "operation completed"
	}
	return Envelope{
		Status:    status,
		Message:   message,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		RequestID: requestid.Value(c),
	}
}

func write(c *gin.Context, status int, envelope Envelope) {
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
	c.JSON(status, envelope)
}
