package models

import (
	"encoding/json"
	"strconv"

	"github.com/sensorsim/sensorsim/internal/params"
	"github.com/sensorsim/sensorsim/internal/simulation"
)

// FormState is a form session as returned by the form endpoints.
type FormState struct {
	ID              string         `json:"id"`
	Params          *params.Params `json:"params"`
	HasResult       bool           `json:"hasResult"`
	ResultAppliedAt *Timestamp     `json:"resultAppliedAt,omitempty"`
}

// FieldEdit is one text/number input edit. Value may be sent as a JSON
// string or as a bare number.
type FieldEdit struct {
	Name  string          `json:"name"`
	Value json.RawMessage `json:"value"`
}

// RawValue returns the edit's value as the text the input would carry.
func (e FieldEdit) RawValue() string {
	var s string
	if err := json.Unmarshal(e.Value, &s); err == nil {
		return s
	}
	return string(e.Value)
}

// SetFieldsRequest applies input edits in order.
type SetFieldsRequest struct {
	Fields []FieldEdit `json:"fields"`
}

// RangeRequest is a two-handle slider event. Handle names the handle that
// moved ("start" or "end").
type RangeRequest struct {
	Handle string     `json:"handle"`
	Values [2]float64 `json:"values"`
}

// BoundRequest moves one handle of a range slider.
type BoundRequest struct {
	Value *float64 `json:"value"`
}

// TimeUnitRequest is a time unit dropdown selection. An empty list leaves the
// form unchanged.
type TimeUnitRequest struct {
	Selected []params.Option[params.TimeUnit] `json:"selected"`
}

// PollingRateRequest is a polling rate dropdown selection. An empty list
// leaves the form unchanged.
type PollingRateRequest struct {
	Selected []params.Option[params.PollingRate] `json:"selected"`
}

// RangeBounds describes the limits of a range slider.
type RangeBounds struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// FormOptions lists the choices offered by the form controls.
type FormOptions struct {
	TimeUnits    []params.Option[params.TimeUnit]    `json:"timeUnits"`
	PollingRates []params.Option[params.PollingRate] `json:"pollingRates"`
	Ranges       map[params.Range]RangeBounds        `json:"ranges"`
}

// ResultResponse is the applied simulation result of a form session.
type ResultResponse struct {
	Result    simulation.Result `json:"result"`
	Params    *params.Params    `json:"params"`
	Seq       uint64            `json:"seq"`
	AppliedAt Timestamp         `json:"appliedAt"`
}

// GraphResponse carries the URL of a generated graph.
type GraphResponse struct {
	URL string `json:"url"`
}

// Run is a recorded backend request.
type Run struct {
	ID         string        `json:"id"`
	SessionID  string        `json:"sessionId"`
	Kind       string        `json:"kind"`
	Status     string        `json:"status"`
	Params     params.Params `json:"params"`
	HTTPStatus int           `json:"httpStatus,omitempty"`
	Error      string        `json:"error,omitempty"`
	Location   string        `json:"location,omitempty"`
	DurationMs int64         `json:"durationMs"`
	CreatedAt  Timestamp     `json:"createdAt"`
}

// RunList is a page of recorded runs, newest first.
type RunList struct {
	Items []Run             `json:"items"`
	Meta  PagedResponseMeta `json:"meta"`
}

// ParseLimit parses a list limit query value; empty or invalid values yield 0.
func ParseLimit(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// ExportResponse carries the location an exported artifact was stored at.
type ExportResponse struct {
	Name     string `json:"name"`
	Location string `json:"location"`
}

// WateringDay is one day of a watering schedule.
type WateringDay struct {
	Date         string `json:"date"`
	Weekday      string `json:"weekday"`
	Water        bool   `json:"water"`
	Label        string `json:"label"`
	WateringTime string `json:"wateringTime"`
}

// WateringSchedule is the watering plan derived from a simulation result.
type WateringSchedule struct {
	Days []WateringDay `json:"days"`
}
