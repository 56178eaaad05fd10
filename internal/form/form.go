// Package form implements a simulation form session: the editable parameter
// snapshot, the latest simulation result and the requests that connect them.
package form

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sensorsim/sensorsim/internal/export"
	"github.com/sensorsim/sensorsim/internal/params"
	"github.com/sensorsim/sensorsim/internal/runs"
	"github.com/sensorsim/sensorsim/internal/simulation"
	"github.com/sensorsim/sensorsim/internal/store"
)

var (
	// ErrNoResult is returned by Export before any simulation has succeeded.
	ErrNoResult = errors.New("no simulation result")

	// ErrClosed is returned for work attempted on, or finished after, a closed session.
	ErrClosed = errors.New("form session closed")
)

// Backend is the simulation backend the form submits to.
type Backend interface {
	Simulate(ctx context.Context, p *params.Params) (simulation.Result, error)
	GenerateGraph(ctx context.Context, p *params.Params) (simulation.GraphRef, error)
}

// Snapshot is an applied simulation result.
type Snapshot struct {
	Result simulation.Result
	// Params are the parameters the result was produced from.
	Params    *params.Params
	Seq       uint64
	AppliedAt time.Time
}

// Config holds configuration for a form session.
type Config struct {
	// Backend is the simulation backend (required).
	Backend Backend

	// Opener presents graph URLs (optional, defaults to export.NopOpener).
	Opener export.Opener

	// PublicURL is the base that generated graph paths are joined to.
	PublicURL string

	// Runs records every backend call (optional).
	Runs runs.Repository

	// Initial overrides the default parameters (optional).
	Initial *params.Params

	Logger zerolog.Logger
}

// Form is one mounted simulation form. It is safe for concurrent use.
type Form struct {
	id        string
	backend   Backend
	opener    export.Opener
	publicURL string
	runs      runs.Repository
	logger    zerolog.Logger

	params *store.Store[params.Params]
	result *store.Store[Snapshot]

	seq atomic.Uint64

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// New mounts a form session with default parameters and an empty result.
func New(cfg Config) *Form {
	opener := cfg.Opener
	if opener == nil {
		opener = export.NopOpener{}
	}

	initial := cfg.Initial
	if initial == nil {
		initial = params.Defaults()
	}

	id := "form_" + uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())

	return &Form{
		id:        id,
		backend:   cfg.Backend,
		opener:    opener,
		publicURL: cfg.PublicURL,
		runs:      cfg.Runs,
		logger:    cfg.Logger.With().Str("form_id", id).Logger(),
		params:    store.New(initial),
		result:    store.New[Snapshot](nil),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// ID returns the session identifier.
func (f *Form) ID() string {
	return f.id
}

// Params returns the current parameter snapshot. It must not be modified.
func (f *Form) Params() *params.Params {
	return f.params.Load()
}

// Result returns the applied result, or nil before the first success.
func (f *Form) Result() *Snapshot {
	return f.result.Load()
}

// OnParamsChange registers fn to run after every parameter change.
func (f *Form) OnParamsChange(fn func(prev, next *params.Params)) (unsubscribe func()) {
	return f.params.Subscribe(fn)
}

// OnResult registers fn to run after every applied result.
func (f *Form) OnResult(fn func(prev, next *Snapshot)) (unsubscribe func()) {
	return f.result.Subscribe(fn)
}

// Closed reports whether Close has been called.
func (f *Form) Closed() bool {
	return f.ctx.Err() != nil
}

// Close unmounts the session. In-flight requests are canceled and anything
// that completes afterwards is discarded. Close waits for SubmitAsync work.
func (f *Form) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	f.cancel()
	f.mu.Unlock()

	f.wg.Wait()
	f.logger.Debug().Msg("form session closed")
}

// SetField applies a text/number edit of a single field.
func (f *Form) SetField(name, raw string) (*params.Params, error) {
	return f.apply(params.SetField(name, raw))
}

// ApplyRange applies a two-handle range slider event.
func (f *Form) ApplyRange(r params.Range, h params.Handle, pair [2]float64) (*params.Params, error) {
	return f.apply(params.ApplyRange(r, h, pair))
}

// SetLow moves the low handle of a range.
func (f *Form) SetLow(r params.Range, v float64) (*params.Params, error) {
	return f.apply(params.SetLow(r, v))
}

// SetHigh moves the high handle of a range.
func (f *Form) SetHigh(r params.Range, v float64) (*params.Params, error) {
	return f.apply(params.SetHigh(r, v))
}

// SelectTimeUnit applies a time unit dropdown selection.
func (f *Form) SelectTimeUnit(selected []params.Option[params.TimeUnit]) (*params.Params, error) {
	return f.apply(params.SelectTimeUnit(selected))
}

// SelectPollingRate applies a polling rate dropdown selection.
func (f *Form) SelectPollingRate(selected []params.Option[params.PollingRate]) (*params.Params, error) {
	return f.apply(params.SelectPollingRate(selected))
}

// Replace installs p wholesale, as when a job carries a complete parameter set.
func (f *Form) Replace(p *params.Params) (*params.Params, error) {
	return f.apply(func(cur *params.Params) (*params.Params, error) {
		if p == nil {
			return cur, nil
		}
		cpy := *p
		return &cpy, nil
	})
}

func (f *Form) apply(t params.Transition) (*params.Params, error) {
	if f.Closed() {
		return nil, ErrClosed
	}
	_, err := f.params.Update(t)
	return f.params.Load(), err
}

// scope derives a request context that is canceled when either parent is
// done or the session closes.
func (f *Form) scope(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(parent)
	stop := context.AfterFunc(f.ctx, func() { cancel(ErrClosed) })
	return ctx, func() {
		stop()
		cancel(nil)
	}
}

// record appends run to the history. History failures never fail the request.
func (f *Form) record(run *runs.Run) {
	if f.runs == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := f.runs.Create(ctx, run); err != nil {
		f.logger.Warn().Err(err).Str("run_id", run.ID).Msg("failed to record run")
	}
}

// fail logs a backend failure exactly once and fills in run.
func (f *Form) fail(run *runs.Run, operation string, err error) {
	run.Status = runs.StatusFailed
	run.Error = err.Error()

	event := f.logger.Error().Err(err).Str("operation", operation).Str("run_id", run.ID)
	var apiErr *simulation.APIError
	if errors.As(err, &apiErr) {
		run.HTTPStatus = apiErr.StatusCode
		event = event.Int("status", apiErr.StatusCode)
	}
	event.Msg("simulation request failed")
}

func statusOK(run *runs.Run) {
	run.Status = runs.StatusSucceeded
	run.HTTPStatus = http.StatusOK
}
