package form

import (
	"context"
	"fmt"
	"time"

	"github.com/sensorsim/sensorsim/internal/export"
	"github.com/sensorsim/sensorsim/internal/runs"
)

// Submit posts the current parameters to the simulate endpoint.
//
// On success the result replaces the stored one, unless the session closed
// or a later submission was applied first; the latter is not an error. On
// failure one error entry is logged, the previous result is kept and the
// error is returned.
func (f *Form) Submit(ctx context.Context) error {
	if f.Closed() {
		return ErrClosed
	}

	seq := f.seq.Add(1)
	p := f.params.Load()
	run := runs.NewRun(f.id, runs.KindSimulate, p)
	defer f.record(run)

	reqCtx, cancel := f.scope(ctx)
	defer cancel()

	start := time.Now()
	result, err := f.backend.Simulate(reqCtx, p)
	run.Duration = time.Since(start)

	if err != nil {
		if f.Closed() {
			run.Status = runs.StatusDiscarded
			run.Error = err.Error()
			f.logger.Debug().Err(err).Uint64("seq", seq).Msg("submission ended after close")
			return ErrClosed
		}
		f.fail(run, "simulate", err)
		return err
	}

	statusOK(run)
	applied, err := f.result.Update(func(cur *Snapshot) (*Snapshot, error) {
		if f.Closed() {
			return cur, ErrClosed
		}
		if cur != nil && cur.Seq >= seq {
			return cur, nil
		}
		return &Snapshot{Result: result, Params: p, Seq: seq, AppliedAt: time.Now()}, nil
	})
	if err != nil {
		run.Status = runs.StatusDiscarded
		f.logger.Debug().Uint64("seq", seq).Msg("result discarded, session closed")
		return err
	}
	if !applied {
		run.Status = runs.StatusDiscarded
		f.logger.Debug().Uint64("seq", seq).Msg("result discarded, newer result applied")
		return nil
	}

	f.logger.Info().Uint64("seq", seq).Dur("duration", run.Duration).Msg("simulation result applied")
	return nil
}

// Pending is a submission running in the background.
type Pending struct {
	done   chan struct{}
	err    error
	cancel context.CancelFunc
}

// Cancel aborts the submission. A result that has already been applied stays.
func (p *Pending) Cancel() {
	p.cancel()
}

// Done is closed when the submission has finished.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the submission finishes and returns its error.
func (p *Pending) Wait() error {
	<-p.done
	return p.err
}

// SubmitAsync runs Submit in a goroutine owned by the session.
func (f *Form) SubmitAsync() *Pending {
	ctx, cancel := context.WithCancel(f.ctx)
	pending := &Pending{done: make(chan struct{}), cancel: cancel}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		cancel()
		pending.err = ErrClosed
		close(pending.done)
		return pending
	}
	f.wg.Add(1)
	f.mu.Unlock()

	go func() {
		defer f.wg.Done()
		defer cancel()
		pending.err = f.Submit(ctx)
		close(pending.done)
	}()
	return pending
}

// RequestGraph asks the backend to render a graph of the current parameters
// and hands the resulting URL to the configured Opener.
func (f *Form) RequestGraph(ctx context.Context) (string, error) {
	if f.Closed() {
		return "", ErrClosed
	}

	p := f.params.Load()
	run := runs.NewRun(f.id, runs.KindGraph, p)
	defer f.record(run)

	reqCtx, cancel := f.scope(ctx)
	defer cancel()

	start := time.Now()
	ref, err := f.backend.GenerateGraph(reqCtx, p)
	run.Duration = time.Since(start)
	if err != nil {
		if f.Closed() {
			run.Status = runs.StatusDiscarded
			run.Error = err.Error()
			return "", ErrClosed
		}
		f.fail(run, "generate_graph", err)
		return "", err
	}
	if f.Closed() {
		run.Status = runs.StatusDiscarded
		return "", ErrClosed
	}

	url := export.GraphURL(f.publicURL, ref.GraphPath)
	statusOK(run)
	run.Location = url

	if err := f.opener.Open(reqCtx, url); err != nil {
		f.logger.Error().Err(err).Str("url", url).Msg("failed to open graph")
		return url, fmt.Errorf("opening graph: %w", err)
	}

	f.logger.Info().Str("url", url).Msg("graph opened")
	return url, nil
}

// Export renders the current result as a downloadable JSON artifact.
func (f *Form) Export() (export.Artifact, error) {
	snap := f.result.Load()
	if snap == nil {
		return export.Artifact{}, ErrNoResult
	}
	return export.NewJSONArtifact(snap.Result)
}
