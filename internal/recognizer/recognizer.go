package recognizer

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
)

// Outcome is the raw document the external recognizer writes to stdout.
// Only Status is mandatory; identity fields are present on a match.
type Outcome struct {
	Status        string   `json:"status"`
	Message       string   `json:"message"`
	StudentID     *FlexID  `json:"student_id"`
	StudentName   *string  `json:"student_name"`
	StudentReg    *string  `json:"student_reg"`
	Distance      *float64 `json:"distance"`
	Confidence    float64  `json:"confidence"`
	FacesDetected int      `json:"faces_detected"`
}

// FlexID tolerates numeric or string identifiers in recognizer output.
type FlexID string

// UnmarshalJSON accepts both `42` and `"42"`.
func (f *FlexID) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*f = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*f = FlexID(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = FlexID(n.String())
	return nil
}

// String returns the identifier as a string.
func (f FlexID) String() string { return string(f) }

// Int returns the identifier as an int when numeric.
func (f FlexID) Int() (int, error) { return strconv.Atoi(string(f)) }

// Recognizer maps a biometric sample to a student identity. Implementations
// must treat process-boundary failures (timeout, crash, malformed output) as
// an Outcome with status "error", never as a returned error; a returned
// error means the sample could not even be staged for matching.
type Recognizer interface {
	Match(ctx context.Context, image []byte) (*Outcome, error)
}

// ErrorOutcome builds an error-status outcome with a diagnostic message.
func ErrorOutcome(message string) *Outcome {
	return &Outcome{Status: "error", Message: message}
}
