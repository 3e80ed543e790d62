package domain

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
)

// Wallet grants access to a signing account.
type Wallet interface {
	// DetectWallet reports whether a wallet provider is available at all.
	DetectWallet() bool

	// AuthorizedAccount returns the first account that is already authorized,
	// without prompting. The bool is false when there is none.
	AuthorizedAccount(ctx context.Context) (common.Address, bool, error)

	// RequestConnection prompts for authorization and returns the selected
	// account. Returns ErrNoWallet or ErrUserRejected on the expected failures.
	RequestConnection(ctx context.Context) (common.Address, error)
}

// ContractBinder builds contract handles that sign with a given account.
type ContractBinder interface {
	Bind(ctx context.Context, account common.Address) (ConfessionContract, error)
}

// ConfessionContract is a session-bound handle on the confession contract.
type ConfessionContract interface {
	// ListConfessions returns every stored confession, newest first.
	ListConfessions(ctx context.Context) ([]Confession, error)

	// SubmitConfession broadcasts a confession transaction. It returns as soon
	// as the transaction is sent; use PendingTx.Wait for confirmation.
	SubmitConfession(ctx context.Context, message string) (PendingTx, error)
}

// PendingTx is a broadcast transaction awaiting confirmation.
type PendingTx interface {
	Hash() common.Hash

	// Wait blocks until the transaction is mined. It returns ErrReverted if
	// the transaction failed on-chain.
	Wait(ctx context.Context) error
}

// EventSource streams confessions as the contract emits them.
type EventSource interface {
	WatchConfessions(ctx context.Context, sink chan<- Confession) (event.Subscription, error)
}

// ListenerID identifies one registered live listener. It is returned by
// Subscribe and must be passed back to Unsubscribe.
type ListenerID uint64

// LiveFeed manages live confession listeners.
type LiveFeed interface {
	Subscribe(ctx context.Context, onEvent func(Confession)) (ListenerID, error)
	Unsubscribe(id ListenerID) error
}
