package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"ticketchain-backend/config"
	"ticketchain-backend/contracts"
	"ticketchain-backend/handlers"
	"ticketchain-backend/logging"
	"ticketchain-backend/metrics"
	"ticketchain-backend/services"
	"ticketchain-backend/store"
	"ticketchain-backend/store/memory"
	"ticketchain-backend/store/sqlstore"
)

const shutdownTimeout = 30 * time.Second

// openStore opens the storage backend named by cfg.StoreBackend.
func openStore(ctx context.Context, cfg *config.Config, log logging.Logger) (store.Store, error) {
	switch cfg.StoreBackend {
	case config.BackendMemory:
		return memory.New(), nil
	case config.BackendFile:
		s, err := memory.NewFile(cfg.DataFile)
		if err != nil {
			return nil, fmt.Errorf("open data file %s: %w", cfg.DataFile, err)
		}
		return s, nil
	case config.BackendSQLite:
		s, err := sqlstore.OpenSQLite(ctx, cfg.SQLitePath, log)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.BackendPostgres:
		s, err := sqlstore.OpenPostgres(ctx, cfg.DatabaseURL, log)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}

// connectToChain dials the node and binds the contract. It returns nil when
// the mirror is not configured.
func connectToChain(ctx context.Context, cfg *config.Config) (*contracts.TicketChain, error) {
	if !cfg.MirrorEnabled() {
		return nil, nil
	}
	dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	return contracts.Dial(dialCtx, cfg.RPCURL, cfg.ContractAddress, cfg.PrivateKey)
}

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := logging.New(os.Stdout, cfg.LogLevel)
	gin.SetMode(gin.ReleaseMode)

	ctx := context.Background()

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("unable to open store: %w", err)
	}
	defer st.Close()
	logger.Info(ctx, "store opened", "backend", cfg.StoreBackend)

	reg := newRegistry()
	m := metrics.NewCollector(reg)

	// The chain is optional; without it check-ins and events stay off-chain.
	var (
		recorder services.ChainRecorder
		reader   handlers.ChainReader
	)
	chain, err := connectToChain(ctx, cfg)
	switch {
	case err != nil:
		logger.Warn(ctx, "blockchain integration disabled", "error", err)
	case chain != nil:
		defer chain.Close()
		reader = chain
		if chain.CanSign() {
			recorder = chain
		} else {
			logger.Warn(ctx, "PRIVATE_KEY not set, on-chain writes disabled")
		}
		logger.Info(ctx, "connected to Ethereum node", "contract", cfg.ContractAddress)
	}

	ledger := services.NewCreditLedger(st, logger, m)
	mirror := services.NewMirror(recorder, st, ledger, logger, m, services.MirrorConfig{
		MaxRetries: cfg.MirrorMaxRetries,
		Timeout:    cfg.MirrorTimeout,
	})

	deps := handlers.Deps{
		Registry:       services.NewRegistry(st, mirror, logger),
		Ledger:         ledger,
		CheckIn:        services.NewCheckInEngine(st, ledger, mirror, logger, m),
		Feedback:       services.NewFeedbackService(st, ledger, logger, m),
		Chain:          reader,
		Metrics:        metrics.Handler(reg),
		AllowedOrigins: cfg.AllowedOrigins,
		Production:     cfg.IsProduction(),
		Log:            logger,
	}
	if cfg.CheckInRatePerMin > 0 {
		deps.CheckInLimiter = handlers.NewRateLimiter(cfg.CheckInRatePerMin, 5*time.Minute, logger)
		defer deps.CheckInLimiter.Stop()
	}

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handlers.NewRouter(deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		logger.Info(ctx, "server starting", "addr", server.Addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-stop:
	case err := <-serveErr:
		_ = mirror.Close(ctx)
		return fmt.Errorf("failed to start server: %w", err)
	}
	logger.Info(ctx, "shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	// Pending chain writes get the rest of the shutdown window.
	if err := mirror.Close(shutdownCtx); err != nil {
		logger.Warn(ctx, "mirror did not drain", "error", err)
	}

	logger.Info(ctx, "server stopped gracefully")
	return nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
