// Package agent wires configuration, logging, the fact aggregator and its
// outer surfaces (heartbeat, NATS, status server) into one process.
package agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/stone-age-io/factagent/internal/bootstrap"
	"github.com/stone-age-io/factagent/internal/cache"
	"github.com/stone-age-io/factagent/internal/config"
	"github.com/stone-age-io/factagent/internal/container"
	"github.com/stone-age-io/factagent/internal/facts"
	"github.com/stone-age-io/factagent/internal/geo"
	"github.com/stone-age-io/factagent/internal/heartbeat"
	"github.com/stone-age-io/factagent/internal/identity"
	"github.com/stone-age-io/factagent/internal/inventory"
	"github.com/stone-age-io/factagent/internal/lock"
	"github.com/stone-age-io/factagent/internal/metrics"
	natsclient "github.com/stone-age-io/factagent/internal/nats"
	"github.com/stone-age-io/factagent/internal/probe"
	"github.com/stone-age-io/factagent/internal/snapshot"
	"github.com/stone-age-io/factagent/internal/status"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Agent represents the main agent
type Agent struct {
	config    *config.Config
	logger    *zap.Logger
	lock      *lock.Lock
	metrics   *metrics.Metrics
	assembler *snapshot.Assembler
	uuid      string
	version   string

	heartbeat *heartbeat.Service
	nats      *natsclient.Client
	status    *status.Server

	ctx    context.Context
	cancel context.CancelFunc
}

// New loads the config, takes the single-instance lock and builds the
// aggregator. Nothing is started until Start.
func New(configPath string, version string) (*Agent, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := initLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	l, err := lock.Acquire(cfg.LockFile())
	if err != nil {
		return nil, fmt.Errorf("failed to acquire %s: %w", cfg.LockFile(), err)
	}

	id, err := identity.UUID(cfg.Home)
	if err != nil {
		l.Release()
		return nil, fmt.Errorf("failed to load install id: %w", err)
	}

	logger.Info("Starting factagent",
		zap.String("version", version),
		zap.String("uuid", id),
		zap.String("home", cfg.Home))

	m := metrics.New()
	ctx, cancel := context.WithCancel(context.Background())

	return &Agent{
		config:    cfg,
		logger:    logger,
		lock:      l,
		metrics:   m,
		assembler: buildAssembler(cfg, id, m, logger),
		uuid:      id,
		version:   version,
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// buildAssembler creates the aggregator and every fact source behind it
func buildAssembler(cfg *config.Config, id string, m *metrics.Metrics, logger *zap.Logger) *snapshot.Assembler {
	store := cache.NewStore(cfg.CacheDir(), map[cache.Family]time.Duration{
		cache.Hardware: cfg.Cache.HardwareTTL,
		cache.Network:  cfg.Cache.NetworkTTL,
		cache.IP:       cfg.Cache.IPTTL,
		cache.Model:    cfg.Cache.InventoryTTL,
		cache.Dataset:  cfg.Cache.InventoryTTL,
	}, logger, cache.WithObserver(m))

	runner := probe.NewExecRunner(logger, cfg.Probes.CommandTimeout)
	httpClient := &http.Client{Timeout: cfg.Probes.HTTPTimeout}

	adapter := facts.NewAdapter(facts.Options{
		Runner:      runner,
		Logger:      logger,
		HTTPClient:  httpClient,
		ExporterURL: cfg.Probes.ExporterURL,
		Timeout:     cfg.Probes.CommandTimeout,
		Observer:    m,
	})

	providers := make([]geo.Provider, 0, len(cfg.Geo.Providers))
	for _, p := range cfg.Geo.Providers {
		providers = append(providers, geo.Provider{Name: p.Name, URL: p.URL, Site: p.Site, Charset: p.Charset})
	}

	return snapshot.New(snapshot.Options{
		Store:      store,
		Facts:      facts.NewCollector(adapter, logger, cfg.Probes.CommandTimeout, m),
		IP:         geo.NewResolver(providers, httpClient, cfg.Probes.HTTPTimeout, logger, m),
		Files:      inventory.NewWalker(cfg.Inventory.Exclude, logger),
		Containers: container.NewCommandProvider(runner, cfg.Container.Command),
		ModelDir:   cfg.Inventory.ModelDir,
		DatasetDir: cfg.Inventory.DatasetDir,
		Home:       cfg.Home,
		UUID:       id,
		Workers:    cfg.Aggregator.Workers,
		Logger:     logger,
	})
}

// Snapshot assembles one envelope and returns its JSON encoding
func (a *Agent) Snapshot(ctx context.Context) ([]byte, error) {
	return a.assembler.Assemble(ctx).Bytes()
}

// Start brings up the enabled surfaces. It does not block.
func (a *Agent) Start() error {
	var sinks []heartbeat.Sink

	if a.config.Heartbeat.Enabled {
		sinks = append(sinks, heartbeat.NewHTTPSink(
			a.config.Heartbeat.Endpoint,
			a.config.Heartbeat.Timeout,
			a.config.Heartbeat.Retries,
			a.config.Heartbeat.Gzip,
			a.logger,
		))
	}

	if a.config.NATS.Enabled {
		sink, err := a.startNATS()
		if err != nil {
			return err
		}
		sinks = append(sinks, sink)
	}

	if len(sinks) > 0 {
		hb, err := heartbeat.New(a.assembler, sinks, a.config.Heartbeat.Interval, a.metrics, a.logger)
		if err != nil {
			return err
		}
		if err := hb.Start(a.ctx); err != nil {
			return err
		}
		a.heartbeat = hb
	}

	if a.config.Status.Enabled {
		srv := status.New(a.config.Status.Listen,
			status.Router(a.assembler, a.metrics.Handler(), 2*time.Minute), a.logger)
		if err := srv.Start(); err != nil {
			return err
		}
		a.status = srv
	}

	a.logger.Info("Agent running",
		zap.Bool("heartbeat", a.config.Heartbeat.Enabled),
		zap.Bool("nats", a.config.NATS.Enabled),
		zap.Bool("status", a.config.Status.Enabled))
	return nil
}

// startNATS bootstraps credentials when needed, connects and subscribes
func (a *Agent) startNATS() (heartbeat.Sink, error) {
	natsCfg := a.config.NATS
	if natsCfg.Auth.Type == "pocketbase" {
		err := bootstrap.FetchCredentials(a.ctx, bootstrap.Request{
			PocketBase: natsCfg.Auth.PocketBase,
			DeviceID:   a.uuid,
			CredsPath:  a.config.CredsFile(),
		}, a.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to bootstrap credentials: %w", err)
		}
		// .creds file now exists
		natsCfg.Auth.Type = "creds"
	}
	natsCfg.Auth.CredsFile = a.config.CredsFile()

	client, err := natsclient.NewClient(&natsCfg, a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	a.nats = client

	subjects := natsclient.Subjects{Prefix: natsCfg.SubjectPrefix, ID: a.uuid}
	handlers := natsclient.NewCommandHandlers(a.logger, subjects, a.assembler, 2*time.Minute, a.version)
	if err := handlers.SubscribeAll(client); err != nil {
		return nil, fmt.Errorf("failed to subscribe to commands: %w", err)
	}
	return natsclient.NewSink(client, subjects), nil
}

// Shutdown stops every started surface and releases the lock
func (a *Agent) Shutdown() error {
	a.logger.Info("Shutting down agent gracefully")
	a.cancel()

	var errs []error
	if a.heartbeat != nil {
		if err := a.heartbeat.Shutdown(); err != nil {
			errs = append(errs, fmt.Errorf("heartbeat: %w", err))
		}
	}
	if a.status != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := a.status.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("status server: %w", err))
		}
		cancel()
	}
	if a.nats != nil {
		if err := a.nats.Drain(a.config.NATS.DrainTimeout); err != nil {
			errs = append(errs, fmt.Errorf("nats: %w", err))
		}
	}
	if err := a.lock.Release(); err != nil {
		errs = append(errs, fmt.Errorf("lock: %w", err))
	}

	err := errors.Join(errs...)
	if err != nil {
		a.logger.Error("Errors during shutdown", zap.Error(err))
	}
	a.logger.Info("Agent shutdown complete")
	_ = a.logger.Sync()
	return err
}

// initLogger creates a JSON file logger with rotation, tee'd to stderr
func initLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	fileWriter := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     28, // days
		Compress:   true,
	}

	// stdout is reserved for snapshot output
	core := zapcore.NewTee(
		zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(fileWriter), level),
		zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.Lock(os.Stderr), level),
	)

	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}
