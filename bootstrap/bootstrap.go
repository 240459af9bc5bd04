// Package bootstrap wires all dependencies and starts the application.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/westsidetechsolutions/meter/adapters/clock"
	"github.com/westsidetechsolutions/meter/adapters/hasher"
	apihttp "github.com/westsidetechsolutions/meter/adapters/http"
	"github.com/westsidetechsolutions/meter/adapters/idgen"
	"github.com/westsidetechsolutions/meter/adapters/metrics"
	"github.com/westsidetechsolutions/meter/adapters/payment"
	"github.com/westsidetechsolutions/meter/adapters/random"
	"github.com/westsidetechsolutions/meter/app"
	"github.com/westsidetechsolutions/meter/config"
	"github.com/westsidetechsolutions/meter/domain/entitlement"
	"github.com/westsidetechsolutions/meter/ports"
)

// ErrStripeDisabled is returned when Stripe sync is requested without a secret key.
var ErrStripeDisabled = errors.New("stripe secret key not configured")

// Options controls application initialization.
type Options struct {
	// ConfigPath is the YAML config file. When it does not exist the
	// configuration is read from METER_* environment variables.
	ConfigPath string

	// Config, when set, is used instead of loading ConfigPath.
	Config *config.Config

	// Watch enables hot reload of ConfigPath (file changes and SIGHUP).
	Watch bool

	// Version is reported at /version.
	Version string

	// LogOutput receives log lines (default os.Stdout).
	LogOutput io.Writer

	// Clock overrides the wall clock.
	Clock ports.Clock
}

// App represents the running application.
type App struct {
	Config     *config.Config
	Logger     zerolog.Logger
	Registry   *prometheus.Registry
	Metrics    *metrics.Collector
	HTTPServer *http.Server
	Stores     *Stores
	Clock      ports.Clock

	// Services
	Subscribers *app.SubscriberService
	Keys        *app.KeyService
	Usage       *app.UsageService
	Limits      *app.LimitService
	Admission   *app.Admission

	holder *config.Holder
}

// New creates and wires the application.
func New(ctx context.Context, opts Options) (*App, error) {
	out := opts.LogOutput
	if out == nil {
		out = os.Stdout
	}

	cfg := opts.Config
	if cfg == nil {
		var err error
		cfg, err = config.LoadWithFallback(opts.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}

	logger := NewLogger(cfg.Logging, out)

	a := &App{
		Logger: logger,
		Clock:  opts.Clock,
	}
	if a.Clock == nil {
		a.Clock = clock.Real{}
	}

	if opts.Watch && opts.Config == nil && opts.ConfigPath != "" {
		if _, err := os.Stat(opts.ConfigPath); err == nil {
			holder, err := config.NewHolder(opts.ConfigPath, logger)
			if err != nil {
				return nil, err
			}
			a.holder = holder
			cfg = holder.Get()
		}
	}
	a.Config = cfg

	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.Metrics = metrics.NewWithRegistry(a.Registry)

	stores, err := OpenStores(ctx, cfg, a.Clock, logger)
	if err != nil {
		return nil, err
	}
	a.Stores = stores

	if err := a.initServices(); err != nil {
		stores.Close()
		return nil, err
	}
	a.initHTTP(opts.Version)

	if a.holder != nil {
		a.holder.OnChange(a.applyConfig)
		a.holder.OnReloadError(func(error) {
			a.Metrics.ConfigReloadErrors.Inc()
		})
	}

	if fallback := cfg.Catalog().FallbackID(); fallback != entitlement.PlanFree {
		logger.Warn().Str("default_plan", fallback).
			Msg("unknown plans resolve to default_plan instead of the free tier")
	}

	logger.Info().
		Str("driver", cfg.Storage.Driver).
		Str("hash_algorithm", cfg.Auth.HashAlgorithm).
		Str("default_plan", cfg.Catalog().FallbackID()).
		Int("plans", len(cfg.Catalog().Plans())).
		Msg("meter initialized")

	return a, nil
}

func (a *App) initServices() error {
	cfg := a.Config

	h, err := hasher.New(cfg.Auth.HashAlgorithm)
	if err != nil {
		return err
	}

	a.Subscribers = app.NewSubscriberService(a.Stores.Subscribers, a.Clock, a.Logger)
	a.Keys = app.NewKeyService(app.KeyDeps{
		Keys:        a.Stores.Keys,
		Subscribers: a.Subscribers,
		Random:      random.Real{},
		Hasher:      h,
		IDGen:       idgen.UUID{Prefix: "key_"},
		Clock:       a.Clock,
	}, app.KeyConfig{
		Prefix: cfg.Auth.KeyPrefix,
		Logger: a.Logger,
	})
	a.Usage = app.NewUsageService(app.UsageDeps{
		Store:       a.Stores.Usage,
		Subscribers: a.Subscribers,
		Clock:       a.Clock,
	}, a.Logger)
	a.Limits = app.NewLimitService(cfg.Catalog())

	var observer ports.AdmissionObserver = metrics.Nop{}
	if cfg.Metrics.Enabled {
		observer = a.Metrics
	}
	a.Admission = app.NewAdmission(app.AdmissionDeps{
		Keys:     a.Keys,
		Usage:    a.Usage,
		Limits:   a.Limits,
		Observer: observer,
	}, a.Logger)
	return nil
}

func (a *App) initHTTP(version string) {
	cfg := a.Config

	handler := apihttp.NewHandler(apihttp.HandlerDeps{
		Admission: a.Admission,
		Keys:      a.Keys,
		Usage:     a.Usage,
		Limits:    a.Limits,
	}, a.Logger)

	routerCfg := apihttp.RouterConfig{
		Timeout: cfg.Server.RequestTimeout,
		Version: version,
	}
	if cfg.Metrics.Enabled {
		routerCfg.Metrics = a.Metrics
		routerCfg.MetricsHandler = promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{Registry: a.Registry})
		routerCfg.MetricsPath = cfg.Metrics.Path
	}

	router := apihttp.NewRouter(handler, apihttp.NewHealthHandler(a.Stores.Health), a.Logger, routerCfg)

	a.HTTPServer = &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
}

// applyConfig applies the hot-reloadable subset of a new configuration.
func (a *App) applyConfig(cfg *config.Config) {
	if level, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil {
		zerolog.SetGlobalLevel(level)
	}
	a.Metrics.ConfigReloads.Inc()
	a.Metrics.ConfigLastReload.SetToCurrentTime()
	a.Logger.Info().Str("log_level", cfg.Logging.Level).Msg("configuration applied")
}

// StripeSyncer returns a syncer that copies Stripe subscriptions into the
// subscriber store.
func (a *App) StripeSyncer() (*payment.StripeSyncer, error) {
	if a.Config.Stripe.SecretKey == "" {
		return nil, ErrStripeDisabled
	}
	return payment.NewStripeSyncer(payment.StripeConfig{
		SecretKey: a.Config.Stripe.SecretKey,
	}, a.Stores.Subscribers, a.Clock), nil
}

// Run starts the application and blocks until shutdown.
func (a *App) Run() error {
	if a.holder != nil {
		if err := a.holder.WatchFile(); err != nil {
			a.Logger.Warn().Err(err).Msg("config file watch disabled")
		}
		a.holder.WatchSignals()
	}

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().
			Str("addr", a.HTTPServer.Addr).
			Msg("starting http server")
		if err := a.HTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for interrupt or error
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		a.Shutdown()
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		a.Logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	return a.Shutdown()
}

// Shutdown gracefully stops the application.
func (a *App) Shutdown() error {
	timeout := a.Config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if a.holder != nil {
		a.holder.Stop()
		a.holder = nil
	}

	// Shutdown HTTP server
	if a.HTTPServer != nil {
		if err := a.HTTPServer.Shutdown(ctx); err != nil {
			a.Logger.Error().Err(err).Msg("http server shutdown error")
		}
	}

	// Close stores
	if a.Stores != nil {
		if err := a.Stores.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("store close error")
			return err
		}
	}

	a.Logger.Info().Msg("shutdown complete")
	return nil
}

// NewLogger builds the process logger from logging configuration.
func NewLogger(cfg config.LoggingConfig, out io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		output := zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
		return zerolog.New(output).With().Timestamp().Logger()
	}

	return zerolog.New(out).With().Timestamp().Logger()
}
