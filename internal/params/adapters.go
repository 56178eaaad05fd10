package params

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Transition derives a new Params from the current one. Transitions never
// mutate their input; returning the input pointer means "no change".
type Transition func(cur *Params) (*Params, error)

// Range identifies a dual-handle range control.
type Range string

const (
	RangeTemp     Range = "temp"
	RangeHumidity Range = "humidity"
)

// Handle identifies which handle of a range control produced an event.
type Handle int

const (
	HandleStart Handle = iota
	HandleEnd
)

func (h Handle) String() string {
	switch h {
	case HandleStart:
		return "start"
	case HandleEnd:
		return "end"
	default:
		return "unknown"
	}
}

// ParseHandle parses "start" or "end".
func ParseHandle(s string) (Handle, error) {
	switch strings.ToLower(s) {
	case "start", "low":
		return HandleStart, nil
	case "end", "high":
		return HandleEnd, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidHandle, s)
	}
}

// ParseRange parses a range name.
func ParseRange(s string) (Range, error) {
	switch Range(s) {
	case RangeTemp, RangeHumidity:
		return Range(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownRange, s)
	}
}

// ParseRangeField maps the legacy slider discriminators (temp_start,
// humidity_end, ...) to a range and handle.
func ParseRangeField(name string) (Range, Handle, error) {
	switch name {
	case FieldTempStart:
		return RangeTemp, HandleStart, nil
	case FieldTempEnd:
		return RangeTemp, HandleEnd, nil
	case FieldHumidityStart:
		return RangeHumidity, HandleStart, nil
	case FieldHumidityEnd:
		return RangeHumidity, HandleEnd, nil
	default:
		return "", 0, fmt.Errorf("%w: %q", ErrUnknownRange, name)
	}
}

// Bounds returns the allowed minimum and maximum of r.
func (r Range) Bounds() (lo, hi float64) {
	if r == RangeHumidity {
		return HumidityMin, HumidityMax
	}
	return TempMin, TempMax
}

// Endpoints returns the current low and high values of r in p.
func (p *Params) Endpoints(r Range) (lo, hi float64) {
	if r == RangeHumidity {
		return p.HumidityStart, p.HumidityEnd
	}
	return p.TempStart, p.TempEnd
}

func (p *Params) setEndpoints(r Range, lo, hi float64) {
	if r == RangeHumidity {
		p.HumidityStart, p.HumidityEnd = lo, hi
		return
	}
	p.TempStart, p.TempEnd = lo, hi
}

// SetField writes a single named field from a raw text input. Numeric fields
// are parsed; range fields are written without re-checking start <= end.
func SetField(name, raw string) Transition {
	return func(cur *Params) (*Params, error) {
		next := cur.clone()
		s := strings.TrimSpace(raw)

		switch name {
		case FieldNoiseMean, FieldNoiseStd, FieldTimeInterval,
			FieldTempStart, FieldTempEnd, FieldHumidityStart, FieldHumidityEnd:
			v, err := strconv.ParseFloat(s, 64)
			if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
				return cur, fmt.Errorf("%w: %s: %q", ErrInvalidValue, name, s)
			}
			setFloat(next, name, v)
		case FieldPollingRateSeconds:
			v, err := strconv.Atoi(s)
			if err != nil {
				return cur, fmt.Errorf("%w: %s: %q", ErrInvalidValue, name, s)
			}
			next.PollingRateSeconds = PollingRate(v)
		case FieldTimeUnit:
			u, err := ParseTimeUnit(s)
			if err != nil {
				return cur, fmt.Errorf("%s: %w", name, err)
			}
			next.TimeUnit = u
		default:
			return cur, fmt.Errorf("%w: %q", ErrUnknownField, name)
		}

		return next, nil
	}
}

func setFloat(p *Params, name string, v float64) {
	switch name {
	case FieldNoiseMean:
		p.NoiseMean = v
	case FieldNoiseStd:
		p.NoiseStd = v
	case FieldTimeInterval:
		p.TimeInterval = v
	case FieldTempStart:
		p.TempStart = v
	case FieldTempEnd:
		p.TempEnd = v
	case FieldHumidityStart:
		p.HumidityStart = v
	case FieldHumidityEnd:
		p.HumidityEnd = v
	}
}

// ApplyRange handles a dual-handle slider event carrying the ordered pair
// [lo, hi]. An event from the start handle writes both endpoints; an event
// from the end handle writes only the high endpoint.
func ApplyRange(r Range, h Handle, pair [2]float64) Transition {
	return func(cur *Params) (*Params, error) {
		if _, err := ParseRange(string(r)); err != nil {
			return cur, err
		}

		next := cur.clone()
		lo, _ := cur.Endpoints(r)
		switch h {
		case HandleStart:
			next.setEndpoints(r, pair[0], pair[1])
		case HandleEnd:
			next.setEndpoints(r, lo, pair[1])
		default:
			return cur, fmt.Errorf("%w: %d", ErrInvalidHandle, h)
		}
		return next, nil
	}
}

// SetLow moves only the low handle of r. The value must stay within the
// range bounds and not pass the high handle.
func SetLow(r Range, v float64) Transition {
	return func(cur *Params) (*Params, error) {
		if _, err := ParseRange(string(r)); err != nil {
			return cur, err
		}
		lower, _ := r.Bounds()
		_, hi := cur.Endpoints(r)
		if !(v >= lower && v <= hi) {
			return cur, fmt.Errorf("%w: %s low %g outside [%g, %g]", ErrInvalidValue, r, v, lower, hi)
		}

		next := cur.clone()
		next.setEndpoints(r, v, hi)
		return next, nil
	}
}

// SetHigh moves only the high handle of r.
func SetHigh(r Range, v float64) Transition {
	return func(cur *Params) (*Params, error) {
		if _, err := ParseRange(string(r)); err != nil {
			return cur, err
		}
		_, upper := r.Bounds()
		lo, _ := cur.Endpoints(r)
		if !(v >= lo && v <= upper) {
			return cur, fmt.Errorf("%w: %s high %g outside [%g, %g]", ErrInvalidValue, r, v, lo, upper)
		}

		next := cur.clone()
		next.setEndpoints(r, lo, v)
		return next, nil
	}
}

// SelectTimeUnit applies a single-select dropdown change. An empty selection
// is ignored.
func SelectTimeUnit(selected []Option[TimeUnit]) Transition {
	return func(cur *Params) (*Params, error) {
		if len(selected) == 0 {
			return cur, nil
		}
		next := cur.clone()
		next.TimeUnit = selected[0].Value
		return next, nil
	}
}

// SelectPollingRate applies a polling-rate dropdown change. An empty
// selection is ignored.
func SelectPollingRate(selected []Option[PollingRate]) Transition {
	return func(cur *Params) (*Params, error) {
		if len(selected) == 0 {
			return cur, nil
		}
		next := cur.clone()
		next.PollingRateSeconds = selected[0].Value
		return next, nil
	}
}
