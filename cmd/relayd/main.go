package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/nearobot/wallet/internal/bridge"
	"github.com/nearobot/wallet/internal/config"
	"github.com/nearobot/wallet/internal/health"
	"github.com/nearobot/wallet/internal/metrics"
	"github.com/nearobot/wallet/internal/relayserver"
	"github.com/nearobot/wallet/internal/store"
)

const retentionInterval = time.Hour

func main() {
	// Setup structured logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(os.Stdout).With().Timestamp().Caller().Logger()

	if os.Getenv("ENVIRONMENT") == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	log.Logger = logger

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err == nil {
		zerolog.SetGlobalLevel(level)
	}

	logger.Info().
		Str("environment", cfg.Environment).
		Str("listen_addr", cfg.ListenAddr).
		Str("bridge_addr", cfg.BridgeListenAddr).
		Str("db_path", cfg.DBPath).
		Msg("starting relay server")

	st, err := store.New(cfg.DBPath, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open store")
	}
	defer st.Close()

	meter := metrics.New()

	checker := health.NewChecker(logger)
	checker.Register("store", health.StoreCheck(st))

	hub := relayserver.New(st, meter, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// WebSocket server plus probes and metrics.
	mux := http.NewServeMux()
	mux.Handle("/ws", hub.Handler())
	mux.HandleFunc("/healthz", health.LivenessHandler())
	mux.HandleFunc("/readyz", checker.ReadinessHandler())
	mux.Handle("/metrics", meter.Handler())

	server := &http.Server{
		Addr:        cfg.ListenAddr,
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
	}

	// HTTP bridge for producers: wallet links and session lookups.
	bridgeServer := bridge.NewServer(bridge.ServerConfig{
		ListenAddr:    cfg.BridgeListenAddr,
		AuthConfig:    bridge.AuthConfig{APIKey: cfg.BridgeAPIKey},
		CORSOrigins:   cfg.BridgeCORSOrigins,
		UpstreamURL:   cfg.RelayHTTPURL,
		WalletBaseURL: cfg.WalletBaseURL,
	}, st, checker, logger)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info().Str("addr", cfg.ListenAddr).Msg("WebSocket server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("WebSocket server error")
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := bridgeServer.Start(); err != nil {
			logger.Error().Err(err).Msg("bridge server error")
		}
	}()

	// Periodic retention sweep
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(retentionInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := st.RunRetention(ctx); err != nil {
					logger.Error().Err(err).Msg("retention sweep failed")
				}
			}
		}
	}()

	sig := <-sigCh
	logger.Info().Str("signal", sig.String()).Msg("shutting down gracefully")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("WebSocket server shutdown error")
	}

	if err := bridgeServer.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("bridge server shutdown error")
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info().Msg("all goroutines stopped")
	case <-time.After(15 * time.Second):
		logger.Warn().Msg("forced shutdown after timeout")
	}

	logger.Info().Msg("relay server stopped")
}
