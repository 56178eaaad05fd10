package form_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sensorsim/sensorsim/internal/form"
	"github.com/sensorsim/sensorsim/internal/params"
	"github.com/sensorsim/sensorsim/internal/runs"
	"github.com/sensorsim/sensorsim/internal/simulation"
)

type fakeBackend struct {
	simulate func(ctx context.Context, p *params.Params) (simulation.Result, error)
	graph    func(ctx context.Context, p *params.Params) (simulation.GraphRef, error)
}

func (b *fakeBackend) Simulate(ctx context.Context, p *params.Params) (simulation.Result, error) {
	return b.simulate(ctx, p)
}

func (b *fakeBackend) GenerateGraph(ctx context.Context, p *params.Params) (simulation.GraphRef, error) {
	return b.graph(ctx, p)
}

type recordingOpener struct {
	mu   sync.Mutex
	urls []string
	err  error
}

func (o *recordingOpener) Open(_ context.Context, url string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.urls = append(o.urls, url)
	return o.err
}

// logLines returns the non-empty JSON log lines written to buf.
func logLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		out = append(out, entry)
	}
	return out
}

func newBackendServer(t *testing.T, status *atomic.Int32) *simulation.Client {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if code := int(status.Load()); code != http.StatusOK {
			w.WriteHeader(code)
			_, _ = w.Write([]byte(`{"error":"bad"}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(server.Close)
	return simulation.NewClient(simulation.ClientConfig{BaseURL: server.URL})
}

func TestNew_MountsWithDefaults(t *testing.T) {
	f := form.New(form.Config{Backend: &fakeBackend{}})
	defer f.Close()

	assert.Equal(t, params.Defaults(), f.Params())
	assert.Nil(t, f.Result())
	assert.True(t, strings.HasPrefix(f.ID(), "form_"))

	_, err := f.Export()
	assert.ErrorIs(t, err, form.ErrNoResult)
}

func TestForm_SubmitSuccess(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusOK)

	repo := runs.NewInMemoryRepository()
	f := form.New(form.Config{Backend: newBackendServer(t, &status), Runs: repo})
	defer f.Close()

	require.NoError(t, f.Submit(context.Background()))

	snap := f.Result()
	require.NotNil(t, snap)
	assert.JSONEq(t, `{"ok":true}`, string(snap.Result))
	assert.Same(t, f.Params(), snap.Params)

	artifact, err := f.Export()
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"ok\": true\n}", string(artifact.Body))

	history, err := repo.List(context.Background(), runs.ListOptions{})
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, runs.StatusSucceeded, history[0].Status)
	assert.Equal(t, http.StatusOK, history[0].HTTPStatus)
	assert.Equal(t, f.ID(), history[0].SessionID)
}

func TestForm_SubmitFailureRetainsPriorResult(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusOK)

	var buf bytes.Buffer
	repo := runs.NewInMemoryRepository()
	f := form.New(form.Config{
		Backend: newBackendServer(t, &status),
		Runs:    repo,
		Logger:  zerolog.New(&buf),
	})
	defer f.Close()

	require.NoError(t, f.Submit(context.Background()))
	prior := f.Result()
	require.NotNil(t, prior)

	buf.Reset()
	status.Store(http.StatusInternalServerError)

	err := f.Submit(context.Background())
	require.Error(t, err)

	var apiErr *simulation.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "bad", apiErr.Message)

	assert.Same(t, prior, f.Result(), "failed submission must keep the previous result")

	lines := logLines(t, &buf)
	require.Len(t, lines, 1, "failure must be logged exactly once")
	assert.Equal(t, "error", lines[0]["level"])
	assert.Equal(t, "simulate", lines[0]["operation"])
	assert.EqualValues(t, http.StatusInternalServerError, lines[0]["status"])

	history, err := repo.List(context.Background(), runs.ListOptions{})
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, runs.StatusFailed, history[0].Status)
	assert.Equal(t, http.StatusInternalServerError, history[0].HTTPStatus)
}

func TestForm_SubmitFailureWithoutPriorResult(t *testing.T) {
	f := form.New(form.Config{Backend: &fakeBackend{
		simulate: func(context.Context, *params.Params) (simulation.Result, error) {
			return nil, errors.New("connection refused")
		},
	}})
	defer f.Close()

	assert.Error(t, f.Submit(context.Background()))
	assert.Nil(t, f.Result())
}

func TestForm_SubmitSendsCurrentSnapshot(t *testing.T) {
	var seen *params.Params
	f := form.New(form.Config{Backend: &fakeBackend{
		simulate: func(_ context.Context, p *params.Params) (simulation.Result, error) {
			seen = p
			return simulation.Result(`{}`), nil
		},
	}})
	defer f.Close()

	_, err := f.ApplyRange(params.RangeTemp, params.HandleStart, [2]float64{10, 40})
	require.NoError(t, err)
	_, err = f.ApplyRange(params.RangeTemp, params.HandleEnd, [2]float64{10, 45})
	require.NoError(t, err)

	require.NoError(t, f.Submit(context.Background()))
	require.NotNil(t, seen)
	assert.Equal(t, 10.0, seen.TempStart)
	assert.Equal(t, 45.0, seen.TempEnd)
}

func TestForm_StaleResultIsDiscarded(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32

	repo := runs.NewInMemoryRepository()
	f := form.New(form.Config{Runs: repo, Backend: &fakeBackend{
		simulate: func(context.Context, *params.Params) (simulation.Result, error) {
			if calls.Add(1) == 1 {
				close(started)
				<-release
				return simulation.Result(`{"n":1}`), nil
			}
			return simulation.Result(`{"n":2}`), nil
		},
	}})
	defer f.Close()

	first := f.SubmitAsync()
	<-started

	require.NoError(t, f.Submit(context.Background()))
	close(release)
	require.NoError(t, first.Wait())

	require.NotNil(t, f.Result())
	assert.JSONEq(t, `{"n":2}`, string(f.Result().Result))

	history, err := repo.List(context.Background(), runs.ListOptions{})
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, runs.StatusDiscarded, history[0].Status)
	assert.Equal(t, runs.StatusSucceeded, history[1].Status)
}

func TestForm_CloseDiscardsInFlight(t *testing.T) {
	started := make(chan struct{})
	repo := runs.NewInMemoryRepository()
	var buf bytes.Buffer
	f := form.New(form.Config{
		Runs:   repo,
		Logger: zerolog.New(&buf).Level(zerolog.InfoLevel),
		Backend: &fakeBackend{
			simulate: func(ctx context.Context, _ *params.Params) (simulation.Result, error) {
				close(started)
				<-ctx.Done()
				return nil, ctx.Err()
			},
		},
	})

	pending := f.SubmitAsync()
	<-started
	f.Close()

	assert.ErrorIs(t, pending.Wait(), form.ErrClosed)
	assert.Nil(t, f.Result())
	assert.Empty(t, logLines(t, &buf), "cancellation by close is not a failure")

	history, err := repo.List(context.Background(), runs.ListOptions{})
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, runs.StatusDiscarded, history[0].Status)
}

func TestForm_ClosedSessionRejectsWork(t *testing.T) {
	f := form.New(form.Config{Backend: &fakeBackend{}})
	f.Close()
	f.Close()

	assert.True(t, f.Closed())
	assert.ErrorIs(t, f.Submit(context.Background()), form.ErrClosed)
	assert.ErrorIs(t, f.SubmitAsync().Wait(), form.ErrClosed)

	_, err := f.SetField(params.FieldNoiseMean, "1")
	assert.ErrorIs(t, err, form.ErrClosed)

	_, err = f.RequestGraph(context.Background())
	assert.ErrorIs(t, err, form.ErrClosed)
}

func TestPending_Cancel(t *testing.T) {
	started := make(chan struct{})
	f := form.New(form.Config{Backend: &fakeBackend{
		simulate: func(ctx context.Context, _ *params.Params) (simulation.Result, error) {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}})
	defer f.Close()

	pending := f.SubmitAsync()
	<-started
	pending.Cancel()

	assert.ErrorIs(t, pending.Wait(), context.Canceled)
	<-pending.Done()
	assert.False(t, f.Closed())
}

func TestForm_Adapters(t *testing.T) {
	f := form.New(form.Config{Backend: &fakeBackend{}})
	defer f.Close()

	var changes int
	unsubscribe := f.OnParamsChange(func(prev, next *params.Params) {
		changes++
		assert.NotSame(t, prev, next)
	})
	defer unsubscribe()

	before := f.Params()

	p, err := f.SetField(params.FieldNoiseStd, "2.5")
	require.NoError(t, err)
	assert.Equal(t, 2.5, p.NoiseStd)
	assert.Equal(t, 1.0, before.NoiseStd)

	_, err = f.SetField(params.FieldNoiseStd, "abc")
	assert.ErrorIs(t, err, params.ErrInvalidValue)
	assert.Equal(t, 2.5, f.Params().NoiseStd)

	p, err = f.SetLow(params.RangeHumidity, 20)
	require.NoError(t, err)
	assert.Equal(t, 20.0, p.HumidityStart)

	p, err = f.SetHigh(params.RangeHumidity, 80)
	require.NoError(t, err)
	assert.Equal(t, 80.0, p.HumidityEnd)

	p, err = f.SelectTimeUnit([]params.Option[params.TimeUnit]{{Value: params.TimeUnitHours, Label: "Hours"}})
	require.NoError(t, err)
	assert.Equal(t, params.TimeUnitHours, p.TimeUnit)

	p, err = f.SelectPollingRate([]params.Option[params.PollingRate]{{Value: 300, Label: "5 minutes"}})
	require.NoError(t, err)
	assert.Equal(t, params.PollingRate(300), p.PollingRateSeconds)

	current := f.Params()
	p, err = f.SelectPollingRate(nil)
	require.NoError(t, err)
	assert.Same(t, current, p, "empty selection leaves the snapshot untouched")

	assert.Equal(t, 5, changes)
}

func TestForm_Replace(t *testing.T) {
	f := form.New(form.Config{Backend: &fakeBackend{}})
	defer f.Close()

	next := params.Defaults()
	next.NoiseMean = 3
	p, err := f.Replace(next)
	require.NoError(t, err)
	assert.Equal(t, 3.0, p.NoiseMean)
	assert.NotSame(t, next, p)

	same, err := f.Replace(nil)
	require.NoError(t, err)
	assert.Same(t, p, same)
}

func TestForm_RequestGraph(t *testing.T) {
	opener := &recordingOpener{}
	repo := runs.NewInMemoryRepository()
	f := form.New(form.Config{
		PublicURL: "http://console.local",
		Opener:    opener,
		Runs:      repo,
		Backend: &fakeBackend{
			graph: func(context.Context, *params.Params) (simulation.GraphRef, error) {
				return simulation.GraphRef{GraphPath: "g1.html"}, nil
			},
		},
	})
	defer f.Close()

	url, err := f.RequestGraph(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "http://console.local/path/to/generated/graphs/g1.html", url)
	assert.Equal(t, []string{url}, opener.urls)

	history, err := repo.List(context.Background(), runs.ListOptions{})
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, runs.KindGraph, history[0].Kind)
	assert.Equal(t, url, history[0].Location)
}

func TestForm_RequestGraphFailure(t *testing.T) {
	var buf bytes.Buffer
	opener := &recordingOpener{}
	f := form.New(form.Config{
		Opener: opener,
		Logger: zerolog.New(&buf),
		Backend: &fakeBackend{
			graph: func(context.Context, *params.Params) (simulation.GraphRef, error) {
				return simulation.GraphRef{}, &simulation.APIError{StatusCode: http.StatusBadGateway}
			},
		},
	})
	defer f.Close()

	_, err := f.RequestGraph(context.Background())
	require.Error(t, err)
	assert.Empty(t, opener.urls)

	lines := logLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "generate_graph", lines[0]["operation"])
}
