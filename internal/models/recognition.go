package models

import "time"

// RecognitionStatus enumerates the outcomes the external recognizer reports.
type RecognitionStatus string

const (
	RecognitionSuccess       RecognitionStatus = "success"
	RecognitionLowConfidence RecognitionStatus = "low_confidence"
	RecognitionNoMatch       RecognitionStatus = "no_match"
	RecognitionError         RecognitionStatus = "error"
)

// RecognitionResult is the normalised outcome of one capture attempt. It is
// ephemeral: consumed by the caller, never persisted. The shape stays the
// same whether or not a record was written so the UI can distinguish
// "matched and recorded" from "matched but already recorded".
type RecognitionResult struct {
	Status               RecognitionStatus `json:"status"`
	Message              string            `json:"message"`
	Recognized           bool              `json:"recognized"`
	StudentID            *string           `json:"student_id"`
	StudentName          *string           `json:"student_name"`
	StudentReg           *string           `json:"student_reg"`
	Distance             *float64          `json:"distance"`
	Confidence           float64           `json:"confidence"`
	ConfidenceLevel      string            `json:"confidence_level"`
	AutoMark             bool              `json:"auto_mark"`
	RequiresConfirmation bool              `json:"requires_confirmation"`
	FacesDetected        int               `json:"faces_detected"`
	Recorded             bool              `json:"recorded"`
	AlreadyRecorded      bool              `json:"already_recorded"`
	Timestamp            time.Time         `json:"timestamp"`
}
