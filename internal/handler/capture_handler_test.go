package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/campushq/attendance-api/internal/middleware"
	"github.com/campushq/attendance-api/internal/models"
	"github.com/campushq/attendance-api/internal/recognizer"
	"github.com/campushq/attendance-api/internal/service"
)

type captureSessionStub struct {
	session *models.AttendanceSession
}

func (s *captureSessionStub) FindByID(ctx context.Context, id string) (*models.AttendanceSession, error) {
	return s.session, nil
}

func (s *captureSessionStub) IsOwnedBy(ctx context.Context, sessionID, lecturerID string) (bool, error) {
	return true, nil
}

type attendanceRepoStub struct {
	inserted int
}

func (s *attendanceRepoStub) InsertIfAbsent(ctx context.Context, record *models.AttendanceRecord) (bool, error) {
	s.inserted++
	return true, nil
}

func (s *attendanceRepoStub) ListBySession(ctx context.Context, sessionID string) ([]models.AttendanceRecordDetail, error) {
	return nil, nil
}

func (s *attendanceRepoStub) FindOwned(ctx context.Context, recordID, lecturerID string) (*models.AttendanceRecord, error) {
	return nil, nil
}

func (s *attendanceRepoStub) Delete(ctx context.Context, recordID string) error { return nil }

type recognizerStub struct {
	outcome *recognizer.Outcome
}

func (s *recognizerStub) Match(ctx context.Context, image []byte) (*recognizer.Outcome, error) {
	return s.outcome, nil
}

func newCaptureHandler(outcome *recognizer.Outcome, records *attendanceRepoStub) *CaptureHandler {
	sessions := &captureSessionStub{session: &models.AttendanceSession{
		ID:     "sess-1",
		Status: models.SessionStatusActive,
	}}
	svc := service.NewCaptureService(sessions, records, &recognizerStub{outcome: outcome},
		auditStub{}, nil, nil, nil, nil, 0)
	return NewCaptureHandler(svc)
}

func capturePayload() []byte {
	payload, _ := json.Marshal(map[string]string{
		"session_id": "sess-1",
		"image":      base64.StdEncoding.EncodeToString([]byte("frame-bytes")),
	})
	return payload
}

func TestCaptureHandlerProcessSuccess(t *testing.T) {
	gin.SetMode(gin.TestMode)
	studentID := recognizer.FlexID("42")
	name := "Alice Umutoni"
	records := &attendanceRepoStub{}
	handler := newCaptureHandler(&recognizer.Outcome{
		Status:        "success",
		StudentID:     &studentID,
		StudentName:   &name,
		Confidence:    93.2,
		FacesDetected: 1,
	}, records)

	c, w := newGinContext(http.MethodPost, "/capture", capturePayload())
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "lect-1", Role: models.RoleLecturer})

	handler.Process(c)
	require.Equal(t, http.StatusOK, w.Code)

	envelope := decodeEnvelope(t, w)
	require.Equal(t, "success", envelope["status"])
	data := envelope["data"].(map[string]interface{})
	require.Equal(t, "success", data["status"])
	require.Equal(t, true, data["recorded"])
	require.Equal(t, "high", data["confidence_level"])
	require.Equal(t, 1, records.inserted)
}

// Recognition failures ride inside a 200 response so the capture loop on
// the client keeps submitting frames.
func TestCaptureHandlerProcessRecognizerError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	records := &attendanceRepoStub{}
	handler := newCaptureHandler(recognizer.ErrorOutcome("face recognition process failed: boom"), records)

	c, w := newGinContext(http.MethodPost, "/capture", capturePayload())
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "lect-1", Role: models.RoleLecturer})

	handler.Process(c)
	require.Equal(t, http.StatusOK, w.Code)

	envelope := decodeEnvelope(t, w)
	data := envelope["data"].(map[string]interface{})
	require.Equal(t, "error", data["status"])
	require.Equal(t, false, data["recorded"])
	require.Equal(t, 0, records.inserted)
}

func TestCaptureHandlerMarkManual(t *testing.T) {
	gin.SetMode(gin.TestMode)
	records := &attendanceRepoStub{}
	handler := newCaptureHandler(nil, records)

	payload, _ := json.Marshal(map[string]string{"session_id": "sess-1", "student_id": "stu-1"})
	c, w := newGinContext(http.MethodPost, "/capture/manual", payload)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "lect-1", Role: models.RoleLecturer})

	handler.MarkManual(c)
	require.Equal(t, http.StatusCreated, w.Code)
	require.Equal(t, 1, records.inserted)
}
