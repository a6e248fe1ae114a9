package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gaiacurves/gaiacurves/internal/api"
	"github.com/gaiacurves/gaiacurves/internal/config"
	"github.com/gaiacurves/gaiacurves/internal/jobs"
	"github.com/gaiacurves/gaiacurves/internal/metrics"
	"github.com/spf13/cobra"
)

const (
	shutdownTimeout     = 10 * time.Second
	poolCollectInterval = 15 * time.Second
	// writeGrace is how much longer than a batch a response may take to
	// write.
	writeGrace = 30 * time.Second
)

func newServeCommand(root *rootOptions) *cobra.Command {
	var (
		host string
		port int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the gaiacurves HTTP API",
		Long: `Start the HTTP API and serve until SIGINT or SIGTERM.

The server will:
- Load configuration from environment variables (or --config file if provided)
- Queue batches and record them in the run ledger when DATABASE_URL is set
- Otherwise run batches inside the request, bounded by SERVER_BATCH_TIMEOUT
- Expose resolution, batch retrieval, stored light curves and /metrics
- Drain in-flight requests on shutdown`,
		Example: `  # Start with default configuration (from env vars)
  gaiacurves serve

  # Start on a specific host and port
  gaiacurves serve --host 127.0.0.1 --port 9090

  # Start with debug logging
  gaiacurves serve --log-level debug`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, root, ledgerOptional)
			if err != nil {
				return err
			}
			defer a.Close()

			if host != "" {
				a.cfg.Server.Host = host
			}
			if cmd.Flags().Changed("port") {
				a.cfg.Server.Port = port
			}
			return runServer(cmd.Context(), a)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "server host address (default: 0.0.0.0)")
	cmd.Flags().IntVar(&port, "port", 0, "server port (default: 8080)")
	return cmd
}

func runServer(ctx context.Context, a *app) error {
	metrics.Init(Version, GitCommit, BuildDate)
	a.logger.Info().Str("version", Version).Msg("starting gaiacurves server")

	deps := api.Dependencies{
		Config:   a.cfg,
		Logger:   a.logger,
		Build:    api.NewBuildInfo(Version, GitCommit, BuildDate),
		Resolver: a.resolver,
		Fetcher:  a.coordinator(),
	}
	if a.runs != nil {
		deps.Runs = a.runs
		deps.Pool = a.pool

		collectorCtx, stopCollector := context.WithCancel(ctx)
		defer stopCollector()
		go metrics.NewPoolCollector(a.pool).Run(collectorCtx, poolCollectInterval)
		a.logger.Info().Msg("run ledger enabled")

		queue, stopQueue, err := startBatchQueue(ctx, a)
		if err != nil {
			a.logger.Warn().Err(err).Msg("batch queue unavailable, batches run inside the request")
		} else {
			defer stopQueue()
			deps.Queue = queue
			a.logger.Info().Int("workers", a.cfg.Server.BatchWorkers).Msg("batch queue workers started")
		}
	}

	router := api.NewRouter(deps)
	defer router.Close()

	listener, err := net.Listen("tcp", net.JoinHostPort(a.cfg.Server.Host, strconv.Itoa(a.cfg.Server.Port)))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	server := newHTTPServer(a.cfg, router)

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info().Str("addr", listener.Addr().String()).Msg("listening")
		serveErr <- server.Serve(listener)
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	a.logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	a.logger.Info().Msg("server stopped")
	return nil
}

// startBatchQueue starts the River workers that run queued batches. The
// returned stop func drains them, cancelling batches that outlast the
// shutdown timeout; those runs are finished in the ledger with the error.
func startBatchQueue(ctx context.Context, a *app) (*jobs.Queue, func(), error) {
	ready, err := jobs.SchemaReady(ctx, a.pool)
	if err != nil {
		return nil, nil, err
	}
	if !ready {
		return nil, nil, errors.New("river tables missing, run: gaiacurves migrate up")
	}

	workers := jobs.NewWorkers(a.coordinator(), a.logger)
	client, err := jobs.NewClient(a.pool, workers, a.cfg.Server.BatchWorkers, a.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("create river client: %w", err)
	}
	// Workers outlive the signal context so that stop can drain them.
	if err := client.Start(context.WithoutCancel(ctx)); err != nil {
		return nil, nil, fmt.Errorf("start river workers: %w", err)
	}

	stop := func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := client.Stop(stopCtx); err == nil {
			a.logger.Info().Msg("batch queue workers stopped")
			return
		}
		cancelCtx, cancelStop := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelStop()
		if err := client.StopAndCancel(cancelCtx); err != nil {
			a.logger.Error().Err(err).Msg("batch queue shutdown error")
		}
	}
	return jobs.NewQueue(client, a.runs), stop, nil
}

// newHTTPServer sets the server timeouts. A batch run inside the request
// stops at the batch timeout, and the write timeout leaves room to send
// its partial result after that.
func newHTTPServer(cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:           handler,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.Server.BatchTimeout + writeGrace,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       2 * time.Minute,
		MaxHeaderBytes:    1 << 20,
	}
}
