package runs

import "context"

const (
	// DefaultListLimit is used when ListOptions.Limit is not positive.
	DefaultListLimit = 50

	// MaxListLimit caps ListOptions.Limit.
	MaxListLimit = 200
)

// ListOptions contains options for listing runs.
type ListOptions struct {
	Limit     int
	SessionID string
}

// EffectiveLimit returns Limit clamped to (0, MaxListLimit], defaulting to DefaultListLimit.
func (o ListOptions) EffectiveLimit() int {
	switch {
	case o.Limit <= 0:
		return DefaultListLimit
	case o.Limit > MaxListLimit:
		return MaxListLimit
	default:
		return o.Limit
	}
}

// Repository defines the interface for run history persistence.
type Repository interface {
	// Create stores a new run.
	Create(ctx context.Context, run *Run) error

	// Get retrieves a run by ID.
	Get(ctx context.Context, id string) (*Run, error)

	// List returns the most recent runs, newest first.
	List(ctx context.Context, opts ListOptions) ([]*Run, error)
}
