// Command facilitator runs the x402 payment facilitator: an HTTP service
// that verifies and settles signed stablecoin payment authorizations on
// the supported EVM networks.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/zerog-labs/x402-facilitator/internal/config"
	"github.com/zerog-labs/x402-facilitator/internal/confirm"
	"github.com/zerog-labs/x402-facilitator/internal/gateway"
	"github.com/zerog-labs/x402-facilitator/internal/identity"
	"github.com/zerog-labs/x402-facilitator/internal/registry"
	"github.com/zerog-labs/x402-facilitator/internal/settle"
	"github.com/zerog-labs/x402-facilitator/internal/store"
	"github.com/zerog-labs/x402-facilitator/internal/verify"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// A missing .env is fine; the environment may be set directly.
	_ = godotenv.Load()

	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("facilitator failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	reg, err := registry.New(cfg)
	if err != nil {
		return fmt.Errorf("load registry: %w", err)
	}
	if reg.WalletAddress() == "" {
		logger.Warn("FACILITATOR_PRIVATE_KEY is not set; running verify-only, settlement is disabled")
	} else {
		logger.Info("facilitator wallet loaded", "address", reg.WalletAddress())
	}

	// The store stays a nil interface when unconfigured: settlements are
	// not persisted and the confirmer idles.
	var txStore store.Store
	if cfg.StorePath != "" {
		sqliteStore, err := store.OpenSQLite(cfg.StorePath)
		if err != nil {
			return fmt.Errorf("open transaction store: %w", err)
		}
		defer sqliteStore.Close()
		txStore = sqliteStore
		logger.Info("transaction store opened", "path", cfg.StorePath)
	} else {
		logger.Warn("TRANSACTION_STORE_PATH is not set; settlements will not be persisted")
	}

	var anchor settle.Anchorer
	if cfg.ChaosChainEnabled {
		anchor = identity.NewClient(identity.Config{BaseURL: cfg.ChaosChainAPIURL})
		logger.Info("agent identity anchoring enabled", "url", cfg.ChaosChainAPIURL)
	}

	verifier := verify.New(reg, logger)
	settler := settle.New(reg, txStore, cfg.TreasuryAddress, anchor, logger)

	gin.SetMode(gin.ReleaseMode)
	server := gateway.New(cfg, reg, verifier, settler, logger)

	confirmCtx, cancelConfirm := context.WithCancel(context.Background())
	defer cancelConfirm()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		confirm.New(reg, txStore, logger).Run(confirmCtx)
	}()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("facilitator listening",
			"port", cfg.Port,
			"mode", cfg.Mode,
			"defaultChain", cfg.DefaultChain,
		)
		errCh <- server.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-errCh:
		cancelConfirm()
		wg.Wait()
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown incomplete", "error", err)
	}

	cancelConfirm()
	wg.Wait()
	logger.Info("facilitator stopped")
	return nil
}
