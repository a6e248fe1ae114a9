package cmd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gaiacurves/gaiacurves/internal/config"
	"github.com/gaiacurves/gaiacurves/internal/gaia"
	"github.com/gaiacurves/gaiacurves/internal/lightcurve"
	"github.com/gaiacurves/gaiacurves/internal/simbad"
	"github.com/gaiacurves/gaiacurves/internal/storage/postgres"
	"github.com/gaiacurves/gaiacurves/internal/telemetry"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// loadConfig reads the configuration and applies the persistent flag
// overrides on top of it.
func (o *rootOptions) loadConfig() (config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Logging.Format = o.logFormat
	}
	if err := config.Validate(cfg); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// ledgerMode says how a command treats the run ledger.
type ledgerMode int

const (
	ledgerOff      ledgerMode = iota
	ledgerOptional            // open when configured, continue without it on failure
	ledgerRequired            // fail when it is not configured or reachable
)

// app is the wired set of services a command works with.
type app struct {
	cfg    config.Config
	logger zerolog.Logger

	resolver  *lightcurve.CrossIDResolver
	primary   *lightcurve.PrimaryProvider
	secondary *lightcurve.SecondaryProvider

	// pool and runs are nil when the ledger is disabled.
	pool *pgxpool.Pool
	runs *postgres.RunRepository

	shutdownTracing telemetry.Shutdown
}

func newApp(cmd *cobra.Command, opts *rootOptions, ledger ledgerMode) (*app, error) {
	cfg, err := opts.loadConfig()
	if err != nil {
		return nil, err
	}
	logger := config.NewLoggerTo(cmd.ErrOrStderr(), cfg.Logging)
	ctx := cmd.Context()

	shutdown, err := telemetry.InitTracing(ctx, cfg.Tracing, Version)
	if err != nil {
		logger.Warn().Err(err).Msg("tracing disabled")
		shutdown = func(context.Context) error { return nil }
	}

	a := &app{cfg: cfg, logger: logger, shutdownTracing: shutdown}

	httpClient := &http.Client{Timeout: cfg.Archive.HTTPTimeout}
	names := simbad.NewClient(cfg.Archive.SimbadTAPURL,
		simbad.WithHTTPClient(httpClient),
		simbad.WithUserAgent(cfg.Archive.UserAgent),
	)
	gaiaOpts := []gaia.Option{
		gaia.WithHTTPClient(httpClient),
		gaia.WithUserAgent(cfg.Archive.UserAgent),
		gaia.WithPollInterval(cfg.Fetch.PollInterval),
		gaia.WithJobTimeout(cfg.Fetch.JobTimeout),
		gaia.WithLogger(logger),
	}
	a.resolver = lightcurve.NewCrossIDResolver(names, logger)
	a.primary = lightcurve.NewPrimaryProvider(gaia.NewDataLinkClient(cfg.Archive.GaiaDataLinkURL, gaiaOpts...), logger)
	a.secondary = lightcurve.NewSecondaryProvider(gaia.NewTAPClient(cfg.Archive.GaiaTAPURL, gaiaOpts...), logger)

	if ledger != ledgerOff {
		if err := a.openLedger(ctx, ledger); err != nil {
			a.Close()
			return nil, err
		}
	}
	return a, nil
}

func (a *app) openLedger(ctx context.Context, mode ledgerMode) error {
	pool, err := postgres.Open(ctx, a.cfg.Database)
	if err != nil {
		if mode == ledgerOptional {
			if !errors.Is(err, postgres.ErrNoDatabase) {
				a.logger.Warn().Err(err).Msg("run ledger unavailable, continuing without it")
			}
			return nil
		}
		return err
	}
	runs, err := postgres.NewRunRepository(pool)
	if err != nil {
		pool.Close()
		return err
	}
	a.pool = pool
	a.runs = runs
	return nil
}

// coordinator builds a batch coordinator, recording to the ledger when one
// is open.
func (a *app) coordinator() *lightcurve.Coordinator {
	var opts []lightcurve.CoordinatorOption
	if a.runs != nil {
		opts = append(opts, lightcurve.WithRecorder(a.runs))
	}
	return lightcurve.NewCoordinator(a.resolver, a.primary, a.secondary, a.logger, opts...)
}

// Close releases the ledger pool and flushes pending spans.
func (a *app) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.shutdownTracing(ctx); err != nil {
		a.logger.Warn().Err(err).Msg("tracing shutdown failed")
	}
}
