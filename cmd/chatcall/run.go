package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/skosovsky/chatcall"
	"github.com/skosovsky/chatcall/config"
	"github.com/skosovsky/chatcall/internal/logging"
)

type runFlags struct {
	config      string
	envFiles    []string
	input       string
	model       string
	set         []string
	workers     int
	strict      bool
	metricsAddr string
}

func newRunCmd(version string) *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Answer every input row and print one JSON line per row, in input order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRun(cmd, &f, version)
		},
	}
	cmd.Flags().StringVarP(&f.config, "config", "c", "", "config file path (empty: environment only)")
	cmd.Flags().StringSliceVar(&f.envFiles, "env", nil, "dotenv files to load (default .env)")
	cmd.Flags().StringVarP(&f.input, "input", "i", "-", "input file, one row per line (- for stdin)")
	cmd.Flags().StringVar(&f.model, "model", "", "override the configured model")
	cmd.Flags().StringArrayVar(&f.set, "set", nil, "set a call option, key=value (repeatable)")
	cmd.Flags().IntVarP(&f.workers, "workers", "w", 4, "rows processed concurrently")
	cmd.Flags().BoolVar(&f.strict, "strict", false, "exit non-zero when any row fails")
	cmd.Flags().StringVar(&f.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running")
	return cmd
}

func runRun(cmd *cobra.Command, f *runFlags, version string) error {
	if f.workers < 1 {
		return fmt.Errorf("--workers must be at least 1, got %d", f.workers)
	}
	set, err := parseSet(f.set)
	if err != nil {
		return err
	}

	cfg, err := config.Load(f.config, f.envFiles...)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger, err := logging.New(cfg.Log, cmd.ErrOrStderr(), version)
	if err != nil {
		return fmt.Errorf("configuring logger: %w", err)
	}

	if f.model != "" {
		cfg.Provider.Model = f.model
	}
	if len(set) > 0 {
		if cfg.Defaults == nil {
			cfg.Defaults = make(map[string]any, len(set))
		}
		maps.Copy(cfg.Defaults, set)
	}

	ctx := cmd.Context()
	reg := prometheus.NewRegistry()
	if f.metricsAddr != "" {
		cfg.Engine.Metrics = true
		stop, err := serveMetrics(f.metricsAddr, reg, logger)
		if err != nil {
			return err
		}
		defer stop()
	}

	rt, err := cfg.Build(ctx, config.WithLogger(logger), config.WithRegisterer(reg))
	if err != nil {
		return fmt.Errorf("building runtime: %w", err)
	}
	defer func() {
		if cerr := rt.Close(); cerr != nil {
			logger.Warn("closing runtime", slog.Any("error", cerr))
		}
	}()

	in, closeIn, err := openInput(cmd, f.input)
	if err != nil {
		return err
	}
	rows, err := readRows(in)
	closeIn()
	if err != nil {
		return err
	}

	outs := answerRows(ctx, rt.Adapter, rows, f.workers)
	failed, err := writeOutputs(cmd.OutOrStdout(), outs)
	if err != nil {
		return err
	}
	logger.Info("run finished", slog.Int("rows", len(outs)), slog.Int("failed", failed))
	if f.strict && failed > 0 {
		return fmt.Errorf("%d of %d rows failed", failed, len(outs))
	}
	return nil
}

// answerRows calls the adapter for every row with at most workers calls in flight.
// Row errors are recorded in the output; they never stop other rows.
func answerRows(ctx context.Context, a *chatcall.Adapter, rows []row, workers int) []output {
	outs := make([]output, len(rows))
	var g errgroup.Group
	g.SetLimit(workers)
	for i, r := range rows {
		g.Go(func() error {
			outs[i] = answerRow(ctx, a, i, r)
			return nil
		})
	}
	_ = g.Wait()
	return outs
}

func answerRow(ctx context.Context, a *chatcall.Adapter, i int, r row) output {
	out := output{Index: i}
	p, err := r.payload()
	if err == nil {
		out.Answer, err = a.Call(ctx, p, r.Options)
	}
	if err != nil {
		out.Answer = chatcall.Absent()
		out.Error = err.Error()
	}
	return out
}

func writeOutputs(w io.Writer, outs []output) (int, error) {
	enc := json.NewEncoder(w)
	failed := 0
	for _, o := range outs {
		if o.Error != "" {
			failed++
		}
		if err := enc.Encode(o); err != nil {
			return failed, fmt.Errorf("write output: %w", err)
		}
	}
	return failed, nil
}

func openInput(cmd *cobra.Command, path string) (io.Reader, func(), error) {
	if path == "" || path == "-" {
		return cmd.InOrStdin(), func() {}, nil
	}
	fh, err := os.Open(path) // #nosec G304 -- path comes from the operator
	if err != nil {
		return nil, nil, fmt.Errorf("opening input: %w", err)
	}
	return fh, func() { _ = fh.Close() }, nil
}

// serveMetrics exposes reg on addr until the returned stop func is called.
func serveMetrics(addr string, reg *prometheus.Registry, logger *slog.Logger) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", slog.Any("error", err))
		}
	}()
	logger.Info("serving metrics", slog.String("addr", ln.Addr().String()))
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		<-done
	}, nil
}
