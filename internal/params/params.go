// Package params provides the simulation parameter model edited by the console form.
package params

import (
	"errors"
	"fmt"
	"math"
)

// Model errors.
var (
	ErrUnknownField  = errors.New("unknown parameter field")
	ErrInvalidValue  = errors.New("invalid parameter value")
	ErrUnknownRange  = errors.New("unknown parameter range")
	ErrInvalidHandle = errors.New("invalid range handle")
)

// Field names as they appear on the wire and in form inputs.
const (
	FieldTempStart          = "temp_start"
	FieldTempEnd            = "temp_end"
	FieldHumidityStart      = "humidity_start"
	FieldHumidityEnd        = "humidity_end"
	FieldPollingRateSeconds = "polling_rate_seconds"
	FieldNoiseMean          = "noise_mean"
	FieldNoiseStd           = "noise_std"
	FieldTimeInterval       = "time_interval"
	FieldTimeUnit           = "time_unit"
)

// Range bounds.
const (
	TempMin     = 0.0
	TempMax     = 50.0
	HumidityMin = 0.0
	HumidityMax = 100.0
)

// TimeUnit is the unit applied to TimeInterval.
type TimeUnit string

const (
	TimeUnitSeconds TimeUnit = "seconds"
	TimeUnitMinutes TimeUnit = "minutes"
	TimeUnitHours   TimeUnit = "hours"
	TimeUnitDays    TimeUnit = "days"
	TimeUnitWeeks   TimeUnit = "weeks"
	TimeUnitMonths  TimeUnit = "months"
)

// TimeUnits lists the accepted time units in display order.
var TimeUnits = []TimeUnit{
	TimeUnitSeconds,
	TimeUnitMinutes,
	TimeUnitHours,
	TimeUnitDays,
	TimeUnitWeeks,
	TimeUnitMonths,
}

// ParseTimeUnit returns the TimeUnit named by s.
func ParseTimeUnit(s string) (TimeUnit, error) {
	for _, u := range TimeUnits {
		if string(u) == s {
			return u, nil
		}
	}
	return "", fmt.Errorf("%w: time unit %q", ErrInvalidValue, s)
}

// Valid reports whether u is one of TimeUnits.
func (u TimeUnit) Valid() bool {
	_, err := ParseTimeUnit(string(u))
	return err == nil
}

// PollingRate is the sensor polling period in seconds.
type PollingRate int

// PollingRates lists the accepted polling rates.
var PollingRates = []PollingRate{10, 30, 60, 300, 600}

// Valid reports whether r is one of PollingRates.
func (r PollingRate) Valid() bool {
	for _, allowed := range PollingRates {
		if r == allowed {
			return true
		}
	}
	return false
}

// Params is the simulation configuration snapshot posted to the backend.
// Values are treated as immutable once shared; edits produce a new Params.
type Params struct {
	TempStart          float64     `json:"temp_start"`
	TempEnd            float64     `json:"temp_end"`
	HumidityStart      float64     `json:"humidity_start"`
	HumidityEnd        float64     `json:"humidity_end"`
	PollingRateSeconds PollingRate `json:"polling_rate_seconds"`
	NoiseMean          float64     `json:"noise_mean"`
	NoiseStd           float64     `json:"noise_std"`
	TimeInterval       float64     `json:"time_interval"`
	TimeUnit           TimeUnit    `json:"time_unit"`
}

// Defaults returns the parameters a freshly mounted form starts with.
func Defaults() *Params {
	return &Params{
		TempStart:          TempMin,
		TempEnd:            TempMax,
		HumidityStart:      HumidityMin,
		HumidityEnd:        HumidityMax,
		PollingRateSeconds: 10,
		NoiseMean:          0.0,
		NoiseStd:           1.0,
		TimeInterval:       1,
		TimeUnit:           TimeUnitSeconds,
	}
}

// clone returns a shallow copy; Params has no reference fields.
func (p *Params) clone() *Params {
	cpy := *p
	return &cpy
}

// FieldError describes one violated constraint.
type FieldError struct {
	Field   string
	Message string
	Code    string
}

// ValidationError collects every FieldError found by Validate.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return "invalid parameters: " + e.Errors[0].Field + ": " + e.Errors[0].Message
	}
	return fmt.Sprintf("invalid parameters: %d field errors", len(e.Errors))
}

// Validate checks range ordering, bounds, finiteness and enum membership.
// It returns nil or a *ValidationError.
func (p *Params) Validate() error {
	var errs []FieldError

	errs = append(errs, checkRange(FieldTempStart, FieldTempEnd, p.TempStart, p.TempEnd, TempMin, TempMax)...)
	errs = append(errs, checkRange(FieldHumidityStart, FieldHumidityEnd, p.HumidityStart, p.HumidityEnd, HumidityMin, HumidityMax)...)

	for _, f := range []struct {
		name  string
		value float64
	}{
		{FieldNoiseMean, p.NoiseMean},
		{FieldNoiseStd, p.NoiseStd},
		{FieldTimeInterval, p.TimeInterval},
	} {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			errs = append(errs, FieldError{
				Field:   f.name,
				Message: "must be a finite number",
				Code:    "NOT_FINITE",
			})
		}
	}

	if !p.PollingRateSeconds.Valid() {
		errs = append(errs, FieldError{
			Field:   FieldPollingRateSeconds,
			Message: fmt.Sprintf("must be one of %v", PollingRates),
			Code:    "ENUM",
		})
	}
	if !p.TimeUnit.Valid() {
		errs = append(errs, FieldError{
			Field:   FieldTimeUnit,
			Message: fmt.Sprintf("must be one of %v", TimeUnits),
			Code:    "ENUM",
		})
	}

	if len(errs) == 0 {
		return nil
	}
	return &ValidationError{Errors: errs}
}

func checkRange(startField, endField string, start, end, lo, hi float64) []FieldError {
	var errs []FieldError
	// Negated comparisons so NaN is out of range.
	if !(start >= lo && start <= hi) {
		errs = append(errs, FieldError{
			Field:   startField,
			Message: fmt.Sprintf("must be between %g and %g", lo, hi),
			Code:    "OUT_OF_RANGE",
		})
	}
	if !(end >= lo && end <= hi) {
		errs = append(errs, FieldError{
			Field:   endField,
			Message: fmt.Sprintf("must be between %g and %g", lo, hi),
			Code:    "OUT_OF_RANGE",
		})
	}
	if start > end {
		errs = append(errs, FieldError{
			Field:   startField,
			Message: "must not exceed " + endField,
			Code:    "RANGE_ORDER",
		})
	}
	return errs
}
