// Package wallet provides access to signing accounts. A Gateway wraps an
// optional Provider; without one the board behaves as if no wallet were
// installed.
package wallet

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"

	"github.com/blackmichael/confession-board/internal/config"
	"github.com/blackmichael/confession-board/internal/domain"
)

// Provider is a source of accounts, in the spirit of an injected browser
// wallet.
type Provider interface {
	// Accounts returns accounts that are already authorized. Never prompts.
	Accounts(ctx context.Context) ([]common.Address, error)

	// RequestAccounts asks the user to authorize an account.
	RequestAccounts(ctx context.Context) ([]common.Address, error)

	// Transactor returns options that sign transactions as account.
	Transactor(account common.Address, chainID *big.Int) (*bind.TransactOpts, error)
}

// PromptFunc asks the user for the passphrase of account. Returning an
// error or an empty passphrase declines the request.
type PromptFunc func(ctx context.Context, account common.Address) (string, error)

// StaticPrompt answers every prompt with passphrase.
func StaticPrompt(passphrase string) PromptFunc {
	return func(context.Context, common.Address) (string, error) {
		return passphrase, nil
	}
}

// Gateway implements domain.Wallet on top of a Provider.
type Gateway struct {
	provider Provider
	logger   *slog.Logger
}

// NewGateway creates a Gateway. provider may be nil.
func NewGateway(provider Provider, logger *slog.Logger) *Gateway {
	return &Gateway{provider: provider, logger: logger}
}

// Open builds a Gateway from configuration. A keystore takes precedence over
// a raw private key. When cfg.Passphrase is set and prompt is nil the
// passphrase answers the unlock prompt.
func Open(cfg config.WalletConfig, prompt PromptFunc, logger *slog.Logger) (*Gateway, error) {
	var provider Provider

	switch {
	case cfg.KeystoreDir != "":
		if prompt == nil && cfg.Passphrase != "" {
			prompt = StaticPrompt(cfg.Passphrase)
		}
		ks := keystore.NewKeyStore(cfg.KeystoreDir, keystore.StandardScryptN, keystore.StandardScryptP)
		provider = NewKeystoreProvider(ks, cfg.Account, prompt)
		logger.Info("using keystore wallet", "dir", cfg.KeystoreDir)

	case cfg.PrivateKey != "":
		kp, err := NewKeyProvider(cfg.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("load private key: %w", err)
		}
		provider = kp
		logger.Info("using private key wallet", "account", kp.Address().Hex())

	default:
		logger.Warn("no wallet configured")
	}

	return NewGateway(provider, logger), nil
}

// DetectWallet reports whether a provider is configured.
func (g *Gateway) DetectWallet() bool {
	return g.provider != nil
}

// AuthorizedAccount returns the first already-authorized account.
func (g *Gateway) AuthorizedAccount(ctx context.Context) (common.Address, bool, error) {
	if g.provider == nil {
		return common.Address{}, false, nil
	}

	accounts, err := g.provider.Accounts(ctx)
	if err != nil {
		return common.Address{}, false, fmt.Errorf("get accounts: %w", err)
	}
	if len(accounts) == 0 {
		return common.Address{}, false, nil
	}
	return accounts[0], true, nil
}

// RequestConnection prompts for authorization and returns the selected
// account.
func (g *Gateway) RequestConnection(ctx context.Context) (common.Address, error) {
	if g.provider == nil {
		return common.Address{}, domain.ErrNoWallet
	}

	accounts, err := g.provider.RequestAccounts(ctx)
	if err != nil {
		return common.Address{}, err
	}
	if len(accounts) == 0 {
		return common.Address{}, domain.ErrUserRejected
	}

	g.logger.Debug("account authorized", "account", accounts[0].Hex())
	return accounts[0], nil
}

// Transactor returns signing options for account.
func (g *Gateway) Transactor(account common.Address, chainID *big.Int) (*bind.TransactOpts, error) {
	if g.provider == nil {
		return nil, domain.ErrNoWallet
	}
	return g.provider.Transactor(account, chainID)
}
