// Package models provides request and response models for the SensorSim console API.
package models

import (
	"errors"
	"time"

	"github.com/sensorsim/sensorsim/internal/params"
)

// HealthStatus represents the health status of a service.
type HealthStatus string

const (
	HealthStatusOK       HealthStatus = "OK"
	HealthStatusDegraded HealthStatus = "DEGRADED"
	HealthStatusFail     HealthStatus = "FAIL"
)

// PagedResponseMeta contains pagination metadata.
type PagedResponseMeta struct {
	Limit int `json:"limit"`
	Count int `json:"count"`
}

// Timestamp is a helper type for time.Time with custom JSON formatting.
type Timestamp time.Time

// NewTimestamp returns a pointer to t as a Timestamp, or nil for the zero time.
func NewTimestamp(t time.Time) *Timestamp {
	if t.IsZero() {
		return nil
	}
	ts := Timestamp(t)
	return &ts
}

// MarshalJSON implements json.Marshaler for Timestamp.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Time(t).UTC().Format(time.RFC3339) + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler for Timestamp.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return errors.New("timestamp must be a JSON string")
	}
	parsed, err := time.Parse(time.RFC3339, string(data[1:len(data)-1]))
	if err != nil {
		return err
	}
	*t = Timestamp(parsed)
	return nil
}

// Time returns the underlying time.Time.
func (t Timestamp) Time() time.Time {
	return time.Time(t)
}

// FieldErrorsFrom converts a parameter validation error into problem field
// errors. It returns nil when err carries no field errors.
func FieldErrorsFrom(err error) []FieldError {
	var verr *params.ValidationError
	if !errors.As(err, &verr) {
		return nil
	}
	out := make([]FieldError, 0, len(verr.Errors))
	for _, fe := range verr.Errors {
		out = append(out, FieldError{Field: fe.Field, Message: fe.Message, Code: fe.Code})
	}
	return out
}
