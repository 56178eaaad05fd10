package params

// Option is one entry of a single-select dropdown.
type Option[T any] struct {
	Value T      `json:"value"`
	Label string `json:"label"`
}

// TimeUnitOptions returns the time unit dropdown entries.
func TimeUnitOptions() []Option[TimeUnit] {
	return []Option[TimeUnit]{
		{Value: TimeUnitSeconds, Label: "Seconds"},
		{Value: TimeUnitMinutes, Label: "Minutes"},
		{Value: TimeUnitHours, Label: "Hours"},
		{Value: TimeUnitDays, Label: "Days"},
		{Value: TimeUnitWeeks, Label: "Weeks"},
		{Value: TimeUnitMonths, Label: "Months"},
	}
}

// PollingRateOptions returns the polling rate dropdown entries.
func PollingRateOptions() []Option[PollingRate] {
	return []Option[PollingRate]{
		{Value: 10, Label: "10 seconds"},
		{Value: 30, Label: "30 seconds"},
		{Value: 60, Label: "1 minute"},
		{Value: 300, Label: "5 minutes"},
		{Value: 600, Label: "10 minutes"},
	}
}

// FindOption returns the option whose value equals v.
func FindOption[T comparable](options []Option[T], v T) (Option[T], bool) {
	for _, o := range options {
		if o.Value == v {
			return o, true
		}
	}
	return Option[T]{}, false
}
