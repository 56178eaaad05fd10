// Package schedule derives a plant watering schedule from simulated sensor
// samples.
package schedule

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	// FileName is the name exported schedules are stored under.
	FileName = "watering_schedule.html"

	// TimestampLayout is the sample timestamp format produced by the backend.
	TimestampLayout = "2006-01-02 15:04:05"

	// HotAbove is the temperature above which an hour may need watering.
	HotAbove = 25.0

	// DryBelow is the humidity below which an hour may need watering.
	DryBelow = 60.0

	LabelWater      = "Water Plant"
	LabelWaterIfDry = "Water if Dry"

	TimeMorning = "Morning"
	TimeEvening = "Evening"
)

// MaxSpan is the longest stretch of samples a schedule covers.
const MaxSpan = 366 * 24 * time.Hour

var (
	// ErrNoSamples is returned when a result carries no usable samples.
	ErrNoSamples = errors.New("no sensor samples")

	// ErrSpanTooLong is returned when the samples cover more than MaxSpan.
	ErrSpanTooLong = errors.New("samples span more than a year")
)

// Sample is one simulated sensor reading.
type Sample struct {
	Timestamp   time.Time
	Temperature float64
	Humidity    float64
}

type rawSample struct {
	Timestamp   string  `json:"timestamp"`
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
}

// ParseSamples decodes samples from a simulation result. The result may be
// an array of samples or an object holding them under "data".
func ParseSamples(raw []byte) ([]Sample, error) {
	var items []rawSample
	if err := json.Unmarshal(raw, &items); err != nil {
		var wrapped struct {
			Data []rawSample `json:"data"`
		}
		if err2 := json.Unmarshal(raw, &wrapped); err2 != nil {
			return nil, fmt.Errorf("decoding samples: %w", err)
		}
		items = wrapped.Data
	}
	if len(items) == 0 {
		return nil, ErrNoSamples
	}

	samples := make([]Sample, 0, len(items))
	for i, item := range items {
		ts, err := parseTimestamp(item.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
		samples = append(samples, Sample{Timestamp: ts, Temperature: item.Temperature, Humidity: item.Humidity})
	}
	return samples, nil
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if ts, err := time.Parse(TimestampLayout, s); err == nil {
		return ts, nil
	}
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
	}
	return ts.UTC(), nil
}

// Hour is one hourly bucket after resampling.
type Hour struct {
	Start        time.Time
	Temperature  float64
	Humidity     float64
	NeedsWater   bool
	WateringTime string
}

// Day summarizes the hours of one calendar date.
type Day struct {
	Date    time.Time
	Weekday time.Weekday
	// Water is true when any hour of the day needs watering.
	Water bool
	// WateringTime is the watering time of the day's first hour.
	WateringTime string
	Hours        []Hour
}

// Label returns the schedule text for the day.
func (d Day) Label() string {
	if d.Water {
		return LabelWater
	}
	return LabelWaterIfDry
}

// Schedule is the watering plan for consecutive days.
type Schedule struct {
	Days []Day
}

// FromResult builds a schedule from a raw simulation result.
func FromResult(raw []byte) (*Schedule, error) {
	samples, err := ParseSamples(raw)
	if err != nil {
		return nil, err
	}
	return Build(samples)
}

// Build resamples samples hourly and groups the hours by day.
func Build(samples []Sample) (*Schedule, error) {
	hours, err := Resample(samples)
	if err != nil {
		return nil, err
	}
	if len(hours) == 0 {
		return nil, ErrNoSamples
	}

	s := &Schedule{}
	for _, h := range hours {
		date := time.Date(h.Start.Year(), h.Start.Month(), h.Start.Day(), 0, 0, 0, 0, h.Start.Location())
		if n := len(s.Days); n == 0 || !s.Days[n-1].Date.Equal(date) {
			s.Days = append(s.Days, Day{
				Date:         date,
				Weekday:      date.Weekday(),
				WateringTime: h.WateringTime,
			})
		}
		day := &s.Days[len(s.Days)-1]
		day.Hours = append(day.Hours, h)
		if h.NeedsWater {
			day.Water = true
		}
	}
	return s, nil
}

// Resample averages samples into hourly buckets and fills empty buckets by
// linear interpolation between their nearest neighbours.
func Resample(samples []Sample) ([]Hour, error) {
	if len(samples) == 0 {
		return nil, nil
	}

	sorted := make([]Sample, len(samples))
	copy(sorted, samples)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })

	first := sorted[0].Timestamp.Truncate(time.Hour)
	last := sorted[len(sorted)-1].Timestamp.Truncate(time.Hour)
	// Compare instants; Sub saturates for spans over ~292 years.
	if last.After(first.Add(MaxSpan)) {
		return nil, fmt.Errorf("%w: %s to %s", ErrSpanTooLong,
			first.Format(TimestampLayout), last.Format(TimestampLayout))
	}
	n := int(last.Sub(first)/time.Hour) + 1

	type bucket struct {
		temp, hum float64
		count     int
	}
	buckets := make([]bucket, n)
	for _, smp := range sorted {
		i := int(smp.Timestamp.Truncate(time.Hour).Sub(first) / time.Hour)
		buckets[i].temp += smp.Temperature
		buckets[i].hum += smp.Humidity
		buckets[i].count++
	}

	hours := make([]Hour, n)
	filled := make([]bool, n)
	for i, b := range buckets {
		hours[i].Start = first.Add(time.Duration(i) * time.Hour)
		if b.count > 0 {
			hours[i].Temperature = b.temp / float64(b.count)
			hours[i].Humidity = b.hum / float64(b.count)
			filled[i] = true
		}
	}

	// The first and last buckets always hold samples.
	prev := 0
	for i := 1; i < n; i++ {
		if !filled[i] {
			continue
		}
		for gap := prev + 1; gap < i; gap++ {
			frac := float64(gap-prev) / float64(i-prev)
			hours[gap].Temperature = lerp(hours[prev].Temperature, hours[i].Temperature, frac)
			hours[gap].Humidity = lerp(hours[prev].Humidity, hours[i].Humidity, frac)
		}
		prev = i
	}

	for i := range hours {
		hours[i].NeedsWater = needsWater(hours[i].Temperature, hours[i].Humidity)
		hours[i].WateringTime = TimeEvening
		if hours[i].NeedsWater {
			hours[i].WateringTime = TimeMorning
		}
	}
	return hours, nil
}

func needsWater(temp, humidity float64) bool {
	return temp > HotAbove && humidity < DryBelow
}

func lerp(a, b, frac float64) float64 {
	return a + (b-a)*frac
}
