package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"

	"github.com/blackmichael/confession-board/internal/domain"
)

var errNoAccounts = errors.New("keystore has no accounts")

// KeystoreProvider serves accounts from an encrypted keystore. An account
// counts as authorized once it is unlocked; unlocking prompts for its
// passphrase.
type KeystoreProvider struct {
	ks      *keystore.KeyStore
	account string
	prompt  PromptFunc
}

// NewKeystoreProvider creates a provider over ks. account selects a keystore
// account by hex address; empty selects the first. prompt may be nil, in
// which case every request is declined.
func NewKeystoreProvider(ks *keystore.KeyStore, account string, prompt PromptFunc) *KeystoreProvider {
	return &KeystoreProvider{ks: ks, account: account, prompt: prompt}
}

// Accounts returns the unlocked accounts.
func (p *KeystoreProvider) Accounts(context.Context) ([]common.Address, error) {
	var out []common.Address
	for _, a := range p.ks.Accounts() {
		if p.unlocked(a) {
			out = append(out, a.Address)
		}
	}
	return out, nil
}

// RequestAccounts unlocks the selected account with a prompted passphrase.
func (p *KeystoreProvider) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	acct, err := p.selected()
	if err != nil {
		return nil, err
	}
	if p.unlocked(acct) {
		return []common.Address{acct.Address}, nil
	}
	if p.prompt == nil {
		return nil, fmt.Errorf("%w: no passphrase prompt available", domain.ErrUserRejected)
	}

	passphrase, err := p.prompt(ctx, acct.Address)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrUserRejected, err)
	}
	if passphrase == "" {
		return nil, domain.ErrUserRejected
	}

	if err := p.ks.Unlock(acct, passphrase); err != nil {
		return nil, fmt.Errorf("unlock %s: %w: %w", acct.Address.Hex(), domain.ErrUserRejected, err)
	}
	return []common.Address{acct.Address}, nil
}

// Transactor returns keystore-backed signing options for account.
func (p *KeystoreProvider) Transactor(account common.Address, chainID *big.Int) (*bind.TransactOpts, error) {
	return bind.NewKeyStoreTransactorWithChainID(p.ks, accounts.Account{Address: account}, chainID)
}

func (p *KeystoreProvider) selected() (accounts.Account, error) {
	all := p.ks.Accounts()
	if len(all) == 0 {
		return accounts.Account{}, errNoAccounts
	}
	if p.account == "" {
		return all[0], nil
	}

	want := common.HexToAddress(p.account)
	for _, a := range all {
		if a.Address == want {
			return a, nil
		}
	}
	return accounts.Account{}, fmt.Errorf("account %s not in keystore", want.Hex())
}

func (p *KeystoreProvider) unlocked(a accounts.Account) bool {
	_, err := p.ks.SignHash(a, make([]byte, 32))
	return err == nil
}
