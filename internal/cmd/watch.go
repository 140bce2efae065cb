package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/modindex/modindex/internal/build"
	"github.com/modindex/modindex/internal/metrics"
	"github.com/modindex/modindex/internal/output"
	"github.com/modindex/modindex/internal/watch"
)

// NewWatchCmd creates the watch command.
func NewWatchCmd() *cobra.Command {
	var (
		metricsAddrFlag string
		debounceFlag    string
	)

	c := &cobra.Command{
		Use:   "watch DIR",
		Short: "Rebuild the index whenever module packages change",
		Long: `Build the index of a directory, then rebuild it whenever module packages
under it are added, changed or removed. Runs until interrupted.

Examples:
  modindex watch ./repo --cache-dir ~/.modindex/cache
  modindex watch ./repo --metrics-addr :9090`,
		Args: cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(commandContext(c), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runWatch(ctx, c, args[0], debounceFlag, metricsAddrFlag)
		},
	}

	c.Flags().StringVar(&metricsAddrFlag, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	c.Flags().StringVar(&debounceFlag, "debounce", "", "Quiet period before a rebuild (env: MODINDEX_WATCH_DEBOUNCE)")
	return c
}

func runWatch(ctx context.Context, c *cobra.Command, dir, debounceFlag, metricsAddr string) error {
	debounce := time.Duration(0)
	if settings != nil {
		debounce = settings.WatchDebounce
	}
	if debounceFlag != "" {
		d, err := time.ParseDuration(debounceFlag)
		if err != nil || d <= 0 {
			return NewExitError(fmt.Errorf("invalid --debounce %q: must be a positive duration", debounceFlag), ExitValidationError)
		}
		debounce = d
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Rebuilds run on the watcher goroutine.
	sess, err := newSession(sessionOpts{Policy: build.PolicySync, Metrics: m})
	if err != nil {
		return err
	}
	defer sess.Close()

	if metricsAddr != "" {
		srv := &http.Server{
			Addr:              metricsAddr,
			Handler:           metricsHandler(reg),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				output.Error("metrics server stopped", "addr", metricsAddr, "err", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		output.Info("serving metrics", "addr", metricsAddr)
	}

	res, err := sess.admin.AddRepository(ctx, dir)
	if res.Dir != "" {
		fmt.Fprintln(c.OutOrStdout(), output.FormatBuildLine(res.Dir, string(res.Status)))
	}
	if err != nil {
		return exitError(err)
	}

	pattern := ""
	if settings != nil {
		pattern = settings.Pattern
	}
	w, err := watch.New(watch.Config{
		Dir:      res.Dir,
		Pattern:  pattern,
		Debounce: debounce,
		OnChange: func(ctx context.Context, changed []string) error {
			output.DirLogger(res.Dir).Debug("change detected", "paths", changed)
			r := sess.coord.Build(ctx, res.Dir)
			fmt.Fprintln(c.OutOrStdout(), output.FormatBuildLine(r.Dir, string(r.Status)))
			// A failed rebuild keeps the previous index; the next change retries.
			return nil
		},
	})
	if err != nil {
		return exitError(err)
	}

	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return exitError(err)
	}
	return nil
}

func metricsHandler(reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	return mux
}

// commandContext returns the command's context, or Background when unset.
func commandContext(c *cobra.Command) context.Context {
	if ctx := c.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
