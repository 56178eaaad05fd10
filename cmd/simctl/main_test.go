package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sensorsim/sensorsim/internal/config"
	"github.com/sensorsim/sensorsim/internal/export"
	"github.com/sensorsim/sensorsim/internal/params"
	"github.com/sensorsim/sensorsim/internal/schedule"
	"github.com/sensorsim/sensorsim/internal/simulation"
)

const sampleResult = `{"data":[
	{"timestamp":"2026-10-17 08:00:00","temperature":28,"humidity":40},
	{"timestamp":"2026-10-18 08:00:00","temperature":15,"humidity":80}
]}`

type backend struct {
	calls    atomic.Int32
	received params.Params
}

func (b *backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.calls.Add(1)
	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case simulation.SimulatePath:
		_ = json.NewDecoder(r.Body).Decode(&b.received)
		_, _ = w.Write([]byte(sampleResult))
	case simulation.GenerateGraphPath:
		_, _ = w.Write([]byte(`{"graphPath":"sensor_data.html"}`))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func TestParsePair(t *testing.T) {
	pair, err := parsePair("10,45")
	require.NoError(t, err)
	assert.Equal(t, [2]float64{10, 45}, pair)

	pair, err = parsePair(" 2.5 , 7 ")
	require.NoError(t, err)
	assert.Equal(t, [2]float64{2.5, 7}, pair)

	for _, bad := range []string{"10", "a,1", "1,b", ""} {
		_, err := parsePair(bad)
		assert.ErrorIs(t, err, params.ErrInvalidValue, bad)
	}
}

func TestParseFlags(t *testing.T) {
	cfg := config.Config{BackendURL: "http://backend.test", ExportDir: "./exports"}

	opts, err := parseFlags([]string{"-polling", "30", "-unit", "days", "-open"}, cfg, io.Discard)
	require.NoError(t, err)

	assert.Equal(t, "http://backend.test", opts.backendURL)
	assert.Equal(t, "./exports", opts.outDir)
	assert.Equal(t, map[string]string{
		params.FieldPollingRateSeconds: "30",
		params.FieldTimeUnit:           "days",
	}, opts.fields)
	assert.True(t, opts.open)
	assert.True(t, opts.graph)
}

func TestParseFlags_Usage(t *testing.T) {
	var stderr bytes.Buffer

	_, err := parseFlags([]string{"-bogus"}, config.Config{}, &stderr)
	assert.ErrorIs(t, err, errUsage)

	stderr.Reset()
	_, err = parseFlags([]string{"extra"}, config.Config{}, &stderr)
	assert.ErrorIs(t, err, errUsage)
	assert.Contains(t, stderr.String(), `unexpected argument "extra"`)
}

func TestRun(t *testing.T) {
	b := &backend{}
	server := httptest.NewServer(b)
	defer server.Close()

	dir := t.TempDir()
	var stdout bytes.Buffer

	err := run(context.Background(), []string{
		"-backend", server.URL,
		"-public-url", "http://console.test",
		"-out", dir,
		"-temp", "10,45",
		"-polling", "30",
		"-schedule",
		"-graph",
	}, &stdout, io.Discard)
	require.NoError(t, err)

	assert.Equal(t, 10.0, b.received.TempStart)
	assert.Equal(t, 45.0, b.received.TempEnd)
	assert.Equal(t, params.PollingRate(30), b.received.PollingRateSeconds)
	assert.Equal(t, int32(2), b.calls.Load())

	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, filepath.Join(dir, export.FileName), lines[0])
	assert.Equal(t, filepath.Join(dir, schedule.FileName), lines[1])
	assert.Equal(t, "http://console.test"+export.GeneratedGraphsPath+"sensor_data.html", lines[2])

	data, err := os.ReadFile(lines[0])
	require.NoError(t, err)
	assert.JSONEq(t, sampleResult, string(data))
}

func TestRun_InvalidParams(t *testing.T) {
	b := &backend{}
	server := httptest.NewServer(b)
	defer server.Close()

	err := run(context.Background(), []string{
		"-backend", server.URL,
		"-out", t.TempDir(),
		"-temp", "60,50",
	}, io.Discard, io.Discard)

	var verr *params.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Zero(t, b.calls.Load())
}

func TestRun_BadField(t *testing.T) {
	err := run(context.Background(), []string{"-unit", "fortnights", "-out", t.TempDir()}, io.Discard, io.Discard)
	assert.ErrorIs(t, err, params.ErrInvalidValue)
}
