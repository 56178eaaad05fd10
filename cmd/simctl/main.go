// Command simctl fills in the simulation form from flags, submits it and
// exports the result.
//
// Usage:
//
//	simctl [-temp 10,45] [-humidity 30,70] [-polling 60] [-interval 2 -unit days]
//	       [-out ./exports] [-schedule] [-graph] [-open]
package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/sensorsim/sensorsim/internal/app"
	"github.com/sensorsim/sensorsim/internal/config"
	"github.com/sensorsim/sensorsim/internal/export"
	"github.com/sensorsim/sensorsim/internal/form"
	"github.com/sensorsim/sensorsim/internal/params"
	"github.com/sensorsim/sensorsim/internal/provider/resilience"
	"github.com/sensorsim/sensorsim/internal/schedule"
)

// Version is set at compile time via ldflags.
var Version = "dev"

var errUsage = errors.New("usage")

type options struct {
	backendURL string
	publicURL  string
	outDir     string
	temp       string
	humidity   string
	fields     map[string]string
	schedule   bool
	graph      bool
	open       bool
	verbose    bool
}

// fieldFlags maps flag names to the form fields they edit.
var fieldFlags = []struct {
	flag, field, usage string
}{
	{"polling", params.FieldPollingRateSeconds, "polling rate in seconds (10, 30, 60, 300, 600)"},
	{"noise-mean", params.FieldNoiseMean, "mean of the added noise"},
	{"noise-std", params.FieldNoiseStd, "standard deviation of the added noise"},
	{"interval", params.FieldTimeInterval, "length of the simulated period"},
	{"unit", params.FieldTimeUnit, "unit of -interval (seconds, minutes, hours, days, weeks, months)"},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	export.SetBrowserOutput(os.Stderr)

	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, "simctl:", err)
		}
		os.Exit(1)
	}
}

func parseFlags(args []string, cfg config.Config, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("simctl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	opts := &options{fields: map[string]string{}}
	fs.StringVar(&opts.backendURL, "backend", cfg.BackendURL, "simulation backend base URL")
	fs.StringVar(&opts.publicURL, "public-url", cfg.PublicURL, "base URL generated graphs are served from")
	fs.StringVar(&opts.outDir, "out", cfg.ExportDir, "directory the result is written to")
	fs.StringVar(&opts.temp, "temp", "", "temperature range as low,high")
	fs.StringVar(&opts.humidity, "humidity", "", "humidity range as low,high")
	fs.BoolVar(&opts.schedule, "schedule", false, "also write the watering schedule")
	fs.BoolVar(&opts.graph, "graph", false, "also generate a graph")
	fs.BoolVar(&opts.open, "open", false, "open the generated graph in the browser")
	fs.BoolVar(&opts.verbose, "v", false, "verbose logging")

	values := make(map[string]*string, len(fieldFlags))
	for _, ff := range fieldFlags {
		values[ff.flag] = fs.String(ff.flag, "", ff.usage)
	}

	if err := fs.Parse(args); err != nil {
		// flag has already printed the error and usage.
		return nil, errUsage
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(stderr, "unexpected argument %q\n", fs.Arg(0))
		fs.Usage()
		return nil, errUsage
	}

	// Only flags given on the command line edit the form.
	fs.Visit(func(f *flag.Flag) {
		for _, ff := range fieldFlags {
			if ff.flag == f.Name {
				opts.fields[ff.field] = *values[ff.flag]
			}
		}
	})
	if opts.open {
		opts.graph = true
	}
	return opts, nil
}

func parsePair(s string) ([2]float64, error) {
	lo, hi, ok := strings.Cut(s, ",")
	if !ok {
		return [2]float64{}, fmt.Errorf("%w: %q is not low,high", params.ErrInvalidValue, s)
	}
	l, err := strconv.ParseFloat(strings.TrimSpace(lo), 64)
	if err != nil {
		return [2]float64{}, fmt.Errorf("%w: %q", params.ErrInvalidValue, lo)
	}
	h, err := strconv.ParseFloat(strings.TrimSpace(hi), 64)
	if err != nil {
		return [2]float64{}, fmt.Errorf("%w: %q", params.ErrInvalidValue, hi)
	}
	return [2]float64{l, h}, nil
}

// applyOptions edits f the way the form inputs would.
func applyOptions(f *form.Form, opts *options) error {
	for _, r := range []struct {
		rng   params.Range
		value string
	}{
		{params.RangeTemp, opts.temp},
		{params.RangeHumidity, opts.humidity},
	} {
		if r.value == "" {
			continue
		}
		pair, err := parsePair(r.value)
		if err != nil {
			return fmt.Errorf("-%s: %w", r.rng, err)
		}
		if _, err := f.ApplyRange(r.rng, params.HandleStart, pair); err != nil {
			return fmt.Errorf("-%s: %w", r.rng, err)
		}
	}

	for _, ff := range fieldFlags {
		raw, ok := opts.fields[ff.field]
		if !ok {
			continue
		}
		if _, err := f.SetField(ff.field, raw); err != nil {
			return fmt.Errorf("-%s: %w", ff.flag, err)
		}
	}
	return f.Params().Validate()
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cfg := config.Load()

	opts, err := parseFlags(args, cfg, stderr)
	if err != nil {
		return err
	}

	level := zerolog.WarnLevel
	if opts.verbose {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: stderr}).
		Level(level).
		With().
		Timestamp().
		Str("version", Version).
		Logger()

	cfg.BackendURL = opts.backendURL
	backend := app.NewBackend(cfg, resilience.NewRegistry(), nil, log)

	var opener export.Opener = export.NopOpener{}
	if opts.open {
		opener = export.BrowserOpener{}
	}

	f := form.New(form.Config{
		Backend:   backend,
		Opener:    opener,
		PublicURL: opts.publicURL,
		Logger:    log,
	})
	defer f.Close()

	if err := applyOptions(f, opts); err != nil {
		return err
	}

	if err := f.Submit(ctx); err != nil {
		return fmt.Errorf("simulation failed: %w", err)
	}

	sink, err := export.NewFileSink(opts.outDir)
	if err != nil {
		return err
	}
	artifact, err := f.Export()
	if err != nil {
		return err
	}
	location, err := sink.Put(ctx, artifact)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, location)

	if opts.schedule {
		location, err := writeSchedule(ctx, sink, f.Result().Result)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, location)
	}

	if opts.graph {
		url, err := f.RequestGraph(ctx)
		if url == "" && err != nil {
			return fmt.Errorf("graph generation failed: %w", err)
		}
		fmt.Fprintln(stdout, url)
		if err != nil {
			return err
		}
	}
	return nil
}

func writeSchedule(ctx context.Context, sink export.Sink, result []byte) (string, error) {
	sched, err := schedule.FromResult(result)
	if err != nil {
		return "", fmt.Errorf("building watering schedule: %w", err)
	}

	var buf bytes.Buffer
	if err := sched.WriteHTML(&buf); err != nil {
		return "", err
	}
	return sink.Put(ctx, export.Artifact{
		Name:        schedule.FileName,
		ContentType: "text/html; charset=utf-8",
		Body:        buf.Bytes(),
	})
}
