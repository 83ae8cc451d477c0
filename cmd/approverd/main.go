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

	"github.com/nearobot/wallet/internal/client"
	"github.com/nearobot/wallet/internal/config"
	"github.com/nearobot/wallet/internal/health"
	"github.com/nearobot/wallet/internal/metrics"
	"github.com/nearobot/wallet/pkg/wallet"
)

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
		Str("relay_url", cfg.RelayURL).
		Str("session_id", cfg.SessionID).
		Str("control_addr", cfg.ControlListenAddr).
		Msg("starting approver")

	// Resolve the NEAR network for the wallet collaborator.
	networks := config.DefaultNetworks()
	if cfg.NetworksFile != "" {
		networks, err = config.LoadNetworks(cfg.NetworksFile)
		if err != nil {
			logger.Fatal().Err(err).Str("path", cfg.NetworksFile).Msg("failed to load networks file")
		}
	}
	network, err := config.FindNetwork(networks, cfg.Network)
	if err != nil {
		logger.Fatal().Err(err).Str("network", cfg.Network).Msg("unknown network")
	}
	logger.Info().Str("network", network.ID).Str("node_url", network.NodeURL).Msg("network resolved")

	var w wallet.Wallet
	switch {
	case cfg.WalletSignerURL != "":
		w = wallet.NewHTTPWallet(cfg.WalletID, cfg.WalletSignerURL, cfg.WalletSignerTimeout)
	case cfg.Environment == "development":
		logger.Warn().Msg("no wallet signer configured, using in-memory wallet")
		w = wallet.NewMemoryWallet(cfg.WalletID, "dev-"+network.ID)
	default:
		logger.Fatal().Msg("WALLET_SIGNER_URL is required outside development")
	}

	meter := metrics.New()

	approver, err := client.New(*cfg, w, meter, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize approver")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Local control surface: status, approve/reject, probes, metrics.
	checker := health.NewChecker(logger)
	checker.Register("relay", health.ConnCheck(approver.Conn()))

	mux := http.NewServeMux()
	mux.Handle("/", client.ControlHandler(approver, logger))
	mux.HandleFunc("/healthz", health.LivenessHandler())
	mux.HandleFunc("/readyz", checker.ReadinessHandler())
	mux.Handle("/metrics", meter.Handler())

	server := &http.Server{
		Addr:         cfg.ControlListenAddr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info().Str("addr", cfg.ControlListenAddr).Msg("control server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("control server error")
		}
	}()

	runDone := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		runDone <- approver.Run(ctx)
	}()

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutting down gracefully")
	case err := <-runDone:
		if err != nil {
			logger.Error().Err(err).Msg("approver stopped")
		} else {
			logger.Info().Msg("approver finished")
		}
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("control server shutdown error")
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

	logger.Info().Msg("approver stopped")
}
