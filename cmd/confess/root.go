package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/blackmichael/confession-board/internal/config"
	"github.com/blackmichael/confession-board/internal/contract"
	"github.com/blackmichael/confession-board/internal/domain"
	"github.com/blackmichael/confession-board/internal/live"
	"github.com/blackmichael/confession-board/internal/tui"
	"github.com/blackmichael/confession-board/internal/wallet"
)

// app carries what every subcommand needs once flags and environment are
// resolved.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	logOut io.Closer
}

type rootFlags struct {
	rpcURL   string
	contract string
	keystore string
	account  string
	logLevel string
	logFile  string
}

func newRootCmd() *cobra.Command {
	return newAppCmd(&app{})
}

func newAppCmd(a *app) *cobra.Command {
	var flags rootFlags

	cmd := &cobra.Command{
		Use:           "confess",
		Short:         "Read and write confessions on the confession board contract",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd, flags)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			defer a.close()
			return a.runBoard(cmd.Context())
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.rpcURL, "rpc", "", "Ethereum JSON-RPC endpoint (overrides ETH_RPC_URL)")
	pf.StringVar(&flags.contract, "contract", "", "confession contract address (overrides CONTRACT_ADDRESS)")
	pf.StringVar(&flags.keystore, "keystore", "", "keystore directory (overrides WALLET_KEYSTORE)")
	pf.StringVar(&flags.account, "account", "", "keystore account to use (overrides WALLET_ACCOUNT)")
	pf.StringVar(&flags.logLevel, "log-level", "", "debug, info, warn or error (overrides LOG_LEVEL)")
	pf.StringVar(&flags.logFile, "log-file", "", "log file for the interactive board (overrides LOG_FILE)")

	cmd.AddCommand(
		newListCmd(a),
		newSubmitCmd(a),
		newWatchCmd(a),
	)

	return cmd
}

func (a *app) setup(cmd *cobra.Command, flags rootFlags) error {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if flags.rpcURL != "" {
		cfg.RPCURL = flags.rpcURL
	}
	if flags.contract != "" {
		if !common.IsHexAddress(flags.contract) {
			return fmt.Errorf("invalid --contract: %q", flags.contract)
		}
		cfg.ContractAddress = common.HexToAddress(flags.contract)
	}
	if flags.keystore != "" {
		cfg.Wallet.KeystoreDir = flags.keystore
	}
	if flags.account != "" {
		cfg.Wallet.Account = flags.account
	}
	if flags.logLevel != "" {
		cfg.LogLevel = flags.logLevel
	}
	if flags.logFile != "" {
		cfg.LogFile = flags.logFile
	}
	a.cfg = cfg

	// The interactive board owns the terminal, so it logs to a file.
	var out io.Writer = cmd.ErrOrStderr()
	if cmd.Parent() == nil {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		a.logOut = f
		out = f
	}

	a.logger = slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	return nil
}

func (a *app) close() {
	if a.logOut != nil {
		a.logOut.Close()
	}
}

func (a *app) dial(ctx context.Context, signer contract.Signer) (*contract.Client, error) {
	client, err := contract.Dial(ctx, a.cfg.RPCURL, a.cfg.ContractAddress, signer, a.logger)
	if err != nil {
		return nil, fmt.Errorf("create contract client: %w", err)
	}
	return client, nil
}

// runBoard runs the interactive board.
func (a *app) runBoard(ctx context.Context) error {
	prompter := tui.NewPrompter()

	gateway, err := wallet.Open(a.cfg.Wallet, prompter.Prompt, a.logger)
	if err != nil {
		return fmt.Errorf("open wallet: %w", err)
	}

	client, err := a.dial(ctx, gateway)
	if err != nil {
		return err
	}
	defer client.Close()

	subscriber := live.NewSubscriber(client, a.cfg.ReconnectDelay, a.logger)
	board := domain.NewBoard(gateway, client, subscriber, a.cfg.ConfirmTimeout, a.logger)

	if err := board.CheckIfWalletIsConnected(ctx); err != nil {
		a.logger.Error("wallet check failed", "error", err)
	}

	release, err := board.Mount(ctx)
	if err != nil {
		return fmt.Errorf("mount board: %w", err)
	}
	defer release()

	return tui.Run(ctx, board, prompter)
}
