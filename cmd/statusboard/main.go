package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/flightline/pa-status/internal/api"
	"github.com/flightline/pa-status/internal/config"
	"github.com/flightline/pa-status/internal/fetch"
	"github.com/flightline/pa-status/internal/metar"
	"github.com/flightline/pa-status/internal/nas"
	"github.com/flightline/pa-status/internal/observability"
	"github.com/flightline/pa-status/internal/refresher"
	"github.com/flightline/pa-status/internal/registry"
	"github.com/flightline/pa-status/internal/storage/sqlite"
	"github.com/flightline/pa-status/internal/websocket"
	"github.com/flightline/pa-status/pkg/logger"
)

var (
	// Version is injected at build time
	Version = "dev"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file (optional - will search in configs/ and root directory)")
	mode := flag.String("mode", "refresh", "Run mode: refresh (one-shot update), registry (rebuild airport list and update), serve (periodic refresh with HTTP API)")
	flag.Parse()

	cfg, err := config.LoadWithFallback(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting statusboard",
		logger.String("version", Version),
		logger.String("mode", *mode))

	var history *sqlite.HistoryStorage
	if cfg.Storage.Enabled {
		history, err = sqlite.NewHistoryStorage(cfg.Storage.SQLitePath, log)
		if err != nil {
			log.Error("Failed to open history storage", logger.Error(err))
			os.Exit(1)
		}
		defer history.Close()
		log.Info("Using history storage", logger.String("path", cfg.Storage.SQLitePath))
	}

	var metrics *observability.Metrics
	if *mode == "serve" {
		metrics = observability.NewMetrics()
	}

	fetcher := fetch.NewClient(cfg.Fetch, log)
	svc := refresher.New(
		cfg,
		registry.NewBuilder(cfg.Registry, fetcher, log),
		nas.NewClient(cfg.NAS, fetcher, log),
		metar.NewClient(cfg.METAR, fetcher, log),
		history,
		metrics,
		clockwork.NewRealClock(),
		log,
	)

	switch *mode {
	case "refresh", "registry":
		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		if _, err := svc.Run(ctx, *mode == "registry"); err != nil {
			log.Error("Refresh run failed", logger.Error(err))
			os.Exit(1)
		}

	case "serve":
		if err := cfg.ValidateServer(); err != nil {
			log.Error("Invalid server configuration", logger.Error(err))
			os.Exit(1)
		}
		runServe(cfg, svc, history, log)

	default:
		fmt.Fprintf(os.Stderr, "Unknown mode: %s (must be refresh, registry, or serve)\n", *mode)
		os.Exit(1)
	}
}

// runServe runs the periodic refresh loop and the HTTP API until interrupted
func runServe(cfg *config.Config, svc *refresher.Service, history *sqlite.HistoryStorage, log *logger.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wsServer := websocket.NewServer(log)
	go wsServer.Run(ctx)

	// Initial run so the API has data to serve; failure here is not fatal,
	// the periodic loop will retry
	if doc, err := svc.Run(ctx, false); err != nil {
		log.Warn("Initial refresh failed", logger.Error(err))
	} else {
		wsServer.BroadcastStatus(doc)
	}

	interval := time.Duration(cfg.Refresh.IntervalMinutes) * time.Minute
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		log.Info("Periodic refresh started", logger.Duration("interval", interval))
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				doc, err := svc.Run(ctx, false)
				if err != nil {
					log.Error("Periodic refresh failed", logger.Error(err))
					continue
				}
				wsServer.BroadcastStatus(doc)
			}
		}
	}()

	router := api.NewRouter(svc, history, wsServer, cfg, log)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router.Routes(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSecs) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSecs) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSecs) * time.Second,
	}

	go func() {
		log.Info("Starting HTTP server", logger.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", logger.String("addr", addr), logger.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", logger.Error(err))
	}

	log.Info("Server stopped")
}
