package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/flowpbx/switchyard/internal/api"
	"github.com/flowpbx/switchyard/internal/api/middleware"
	"github.com/flowpbx/switchyard/internal/blob"
	"github.com/flowpbx/switchyard/internal/bus"
	"github.com/flowpbx/switchyard/internal/cache"
	"github.com/flowpbx/switchyard/internal/cdr"
	"github.com/flowpbx/switchyard/internal/config"
	"github.com/flowpbx/switchyard/internal/database"
	"github.com/flowpbx/switchyard/internal/database/models"
	"github.com/flowpbx/switchyard/internal/email"
	"github.com/flowpbx/switchyard/internal/fsxml"
	"github.com/flowpbx/switchyard/internal/httapi"
	"github.com/flowpbx/switchyard/internal/logging"
	"github.com/flowpbx/switchyard/internal/metrics"
	"github.com/flowpbx/switchyard/internal/recording"
	"github.com/flowpbx/switchyard/internal/switchsync"
	"github.com/flowpbx/switchyard/internal/voicemail"
	"github.com/flowpbx/switchyard/internal/xmlcurl"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const (
	maxImportBytes    = 256 << 20
	maxMessageSeconds = 300
	flagMaxAge        = 12 * time.Hour
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	logger, flush, err := logging.Setup(cfg, os.Stdout, logging.Options{Release: version, ServerName: cfg.Hostname})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer flush()

	if err := run(cfg, logger); err != nil {
		logger.Error("switchyard exited", "error", err)
		flush()
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	start := time.Now()
	logger.Info("starting switchyard",
		"version", version,
		"hostname", cfg.Hostname,
		"http_port", cfg.HTTPPort,
		"db_driver", cfg.DBDriver,
		"cache_backend", cfg.CacheBackend,
	)

	appCtx, appCancel := context.WithCancel(context.Background())
	defer appCancel()

	db, err := database.Open(cfg.DBDriver, cfg.DatabaseDSN())
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()
	store := database.NewStore(db)
	logger.Info("database ready", "driver", cfg.DBDriver)

	docs, err := newCache(appCtx, cfg, cfg.CacheBackend, "xml")
	if err != nil {
		return fmt.Errorf("creating cache: %w", err)
	}
	sessionCache, err := newCache(appCtx, cfg, cfg.SessionBackend, "httapi")
	if err != nil {
		return fmt.Errorf("creating session cache: %w", err)
	}

	b := bus.New(newTransport(cfg, logger), cfg.BusTimeout, bus.NewBackoff(cfg.BackoffBase, cfg.BackoffMax), logger)
	go b.Run(appCtx)

	coherent := cache.NewCoherent(docs, b, cfg.SwitchNames(), cfg.Hostname, logger)
	db.SetNotifier(coherent)
	b.Subscribe(appCtx, coherent.HandleEvent, cache.FlushSubclass)

	voicemailBlob, err := blob.New(appCtx, cfg.Storage, cfg.VoicemailDir)
	if err != nil {
		return fmt.Errorf("opening voicemail storage: %w", err)
	}
	recordingsBlob, err := blob.New(appCtx, cfg.Storage, cfg.RecordingsDir)
	if err != nil {
		return fmt.Errorf("opening recordings storage: %w", err)
	}

	secret, err := cfg.JWTSecretBytes()
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	temp := httapi.NewTempFiles(cfg.TempDir)
	sessions := httapi.NewSessions(sessionCache, temp, cfg.SessionIdleTTL, logger)
	sessions.StartSweeper(appCtx, time.Minute)
	reg.MustRegister(metrics.NewCollector(b, sessions, start))

	flags := recording.NewFlags(filepath.Join(cfg.DataDir, "conference-flags"))
	recording.StartCleanupTicker(appCtx, flags, flagMaxAge, time.Hour, logger)
	voicemail.StartPurgeTicker(appCtx, store.Voicemail, voicemailBlob, cfg.VoicemailRetention, time.Hour, logger)

	core := &httapi.Core{
		Store:      store,
		Cache:      docs,
		Bus:        b,
		Mailer:     email.NewSender(cfg.SMTP, logger),
		Voicemail:  voicemailBlob,
		Recordings: recordingsBlob,
		Flags:      flags,
		Link: func(messageID string) (string, error) {
			tok, err := middleware.IssueMessageToken(secret, messageID, middleware.DefaultMessageTokenTTL, time.Now())
			if err != nil {
				return "", err
			}
			return cfg.PublicURL + "/voicemail/messages/" + messageID + "?token=" + tok, nil
		},
		Settings: httapi.Settings{
			VoicemailDir:      cfg.VoicemailDir,
			RecordingsDir:     cfg.RecordingsDir,
			BaseURL:           fmt.Sprintf("http://%s:%d/httapi", cfg.Hostname, cfg.HTTPPort),
			Location:          cfg.Location(),
			MaxMessageSeconds: maxMessageSeconds,
		},
		Logger: logger,
	}
	engine := httapi.NewEngine(sessions, temp, m, logger)
	httapi.RegisterDefaults(engine, core)

	gate := xmlcurl.NewGate(docs, store.Settings, cfg.XMLAllowedAddresses, logger)
	lookups := xmlcurl.NewServer(store, docs, gate, m, xmlcurl.Options{
		TTL:          cfg.CacheTTL,
		DialplanMode: cfg.DialplanMode,
		Hostname:     cfg.Hostname,
		Voice: fsxml.Voice{
			SoundsDir: cfg.SoundsDir,
			Dialect:   cfg.DefaultDialect,
			Voice:     cfg.DefaultVoice,
		},
	}, logger)

	ingestor := cdr.NewIngestor(store, recordingsBlob, cdr.Config{
		RecordingsDir: cfg.RecordingsDir,
		KeepBLeg:      cfg.BLegDirections(),
		Location:      cfg.Location(),
	}, m, logger)
	ingestor.Subscribe(appCtx, b)

	importLimiter := middleware.NewIPRateLimiter(middleware.ImportRateLimitConfig(), logger)
	apiLimiter := middleware.NewIPRateLimiter(middleware.DefaultRateLimitConfig(), logger)
	go importLimiter.Run(appCtx, 5*time.Minute)
	go apiLimiter.Run(appCtx, 5*time.Minute)

	srv := api.NewServer(api.Deps{
		Store:     store,
		XML:       lookups.Routes(),
		HTTAPI:    engine.Routes(),
		Metrics:   promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		CDRs:      ingestor,
		Importer:  recording.NewImporter(store.Tenants, recordingsBlob, maxImportBytes, logger),
		Voicemail: voicemailBlob,
		Cache:     coherent,
		Sync:      switchsync.New(store, b, switchsync.Targets(cfg), logger),
		Dialplans: func(ctx context.Context, t *models.Tenant, f *models.CallFlow) (*models.Dialplan, error) {
			return httapi.CallFlowDialplan(ctx, core, t, f)
		},
		SwitchGate:    gate.Middleware,
		ImportLimiter: importLimiter,
		APILimiter:    apiLimiter,
		APIKey:        cfg.APIKey,
		JWTSecret:     secret,
		Logger:        logger,
	})
	if cfg.APIKey == "" {
		logger.Warn("no api-key configured, admin api disabled")
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", "signal", sig)
	case err := <-errCh:
		logger.Error("http server error", "error", err)
	}

	appCancel()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	if n := sessions.Sweep(shutdownCtx); n > 0 {
		logger.Info("released httapi sessions", "removed", n)
	}

	logger.Info("switchyard stopped")
	return nil
}

// newCache builds the backend named by kind. Valkey keys live under
// "switchyard:<namespace>".
func newCache(ctx context.Context, cfg *config.Config, kind, namespace string) (cache.Cache, error) {
	if kind == "valkey" {
		return cache.NewValkey(ctx, cfg.ValkeyAddr, "", "switchyard:"+namespace)
	}
	return cache.NewLocal(10 * time.Minute), nil
}

// newTransport picks the event socket unless a broker URL is configured and
// the local event socket is not forced.
func newTransport(cfg *config.Config, logger *slog.Logger) bus.Transport {
	events := append([]string{bus.EventChannelHangupComplete, cache.FlushSubclass}, bus.TimelineEvents...)
	if cfg.AMQPURL != "" && !cfg.UseLocalEventSocket {
		names := cfg.SwitchNames()
		return bus.NewAMQP(cfg.AMQPURL, cfg.Hostname, names[0], events, logger)
	}
	return bus.NewESL(cfg.ESLHost, cfg.ESLPort, cfg.ESLPassword, events, logger)
}
