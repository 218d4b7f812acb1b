package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/roach88/greynet/internal/api"
	"github.com/roach88/greynet/internal/engine"
	"github.com/roach88/greynet/internal/telemetry"
)

const shutdownTimeout = 5 * time.Second

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Database  string
	Params    string
	Addr      string
	BatchSize int
	Trace     string

	// MutationRate caps fact inserts and retracts per second. Zero means
	// unlimited.
	MutationRate float64

	// Ready is called with the bound address once the server accepts
	// connections (for testing).
	Ready func(addr string)
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a live evaluator over HTTP",
		Long: `Start an evaluator, optionally preloaded with a stored dataset, and
serve it over HTTP. Mutations are applied by the evaluator's single-writer
loop in arrival order; they are not written back to the database.

Routes:
  GET    /v1/score
  GET    /v1/constraints
  GET    /v1/constraints/:name/matches
  POST   /v1/facts
  DELETE /v1/facts/:type/:id
  GET    /metrics
  GET    /healthz

Example:
  greynet serve --addr :8080
  greynet serve --db ./greynet.db --params ./tuning.cue --trace stdout`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "SQLite database to preload (optional)")
	cmd.Flags().StringVar(&opts.Params, "params", "", "CUE tuning file (defaults to the reference tuning)")
	cmd.Flags().StringVar(&opts.Addr, "addr", ":8080", "listen address")
	cmd.Flags().IntVar(&opts.BatchSize, "batch-size", DefaultBatchSize, "facts per batch when preloading")
	cmd.Flags().StringVar(&opts.Trace, "trace", "none", "span exporter (none|stdout); spans are written to stderr")
	cmd.Flags().Float64Var(&opts.MutationRate, "mutation-rate", 0, "max fact mutations per second (0 = unlimited)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())
	if !opts.Verbose {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	params, err := loadParams(opts.Params)
	if err != nil {
		return err
	}

	tp, shutdownTracing, err := telemetry.TracerProvider(opts.Trace, cmd.ErrOrStderr())
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --trace", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("failed to flush spans", "error", err)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	ev, err := newEvaluator(params, logger, opts.BatchSize,
		engine.WithMetrics(telemetry.NewMetrics(reg)),
		engine.WithTracerProvider(tp),
	)
	if err != nil {
		return err
	}

	if opts.Database != "" {
		if err := preload(ctx, opts, ev, logger); err != nil {
			return err
		}
	}

	ln, err := net.Listen("tcp", opts.Addr)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to listen", err)
	}
	routerCfg := api.RouterConfig{Gatherer: reg, TracerProvider: tp}
	if opts.MutationRate > 0 {
		routerCfg.MutationLimiter = rate.NewLimiter(rate.Limit(opts.MutationRate), max(1, int(opts.MutationRate)))
	}
	srv := &http.Server{
		Handler:           api.NewRouter(api.NewHandlers(ev, logger), routerCfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Listening on %s\n", ln.Addr())
	logger.Info("server starting", "addr", ln.Addr().String(), "facts", ev.FactCount())
	if opts.Ready != nil {
		opts.Ready(ln.Addr().String())
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := ev.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return WrapExitError(ExitFailure, "server error", err)
	}
	logger.Info("server stopped gracefully")
	return nil
}

func preload(ctx context.Context, opts *ServeOptions, ev *engine.Evaluator, logger *slog.Logger) error {
	st, err := openStore(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	n, err := streamDataset(ctx, st, ev, opts.BatchSize)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to preload dataset", err)
	}
	logger.Info("dataset preloaded", "facts", n, "db", opts.Database)
	return nil
}
