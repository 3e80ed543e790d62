package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/blackmichael/confession-board/internal/config"
	"github.com/blackmichael/confession-board/internal/contract"
	"github.com/blackmichael/confession-board/internal/domain"
	"github.com/blackmichael/confession-board/internal/httpserver"
	"github.com/blackmichael/confession-board/internal/live"
	"github.com/blackmichael/confession-board/internal/wallet"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))

	// Set up graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	gateway, err := wallet.Open(cfg.Wallet, nil, logger)
	if err != nil {
		return fmt.Errorf("open wallet: %w", err)
	}

	client, err := contract.Dial(ctx, cfg.RPCURL, cfg.ContractAddress, gateway, logger)
	if err != nil {
		return fmt.Errorf("create contract client: %w", err)
	}
	defer client.Close()
	logger.Info("connected to rpc endpoint", "url", cfg.RPCURL, "contract", cfg.ContractAddress.Hex())

	subscriber := live.NewSubscriber(client, cfg.ReconnectDelay, logger)
	board := domain.NewBoard(gateway, client, subscriber, cfg.ConfirmTimeout, logger)

	if err := board.CheckIfWalletIsConnected(ctx); err != nil {
		logger.Error("wallet check failed", "error", err)
	}

	release, err := board.Mount(ctx)
	if err != nil {
		return fmt.Errorf("mount board: %w", err)
	}
	defer release()

	// Start the HTTP server
	server := httpserver.NewServer(cfg, board, logger)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server exited with error", "error", err)
		}
	}()

	logger.Info("server started", "host", cfg.Host, "port", cfg.Port)

	// Wait for shutdown signal
	sig := <-sigCh
	logger.Info("received signal, shutting down", "signal", sig)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("error shutting down http server", "error", err)
	}

	return nil
}
