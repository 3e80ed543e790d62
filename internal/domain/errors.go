package domain

import "errors"

var (
	// ErrNoWallet means no wallet provider is configured.
	ErrNoWallet = errors.New("no wallet provider available")

	// ErrUserRejected means the user declined the authorization prompt.
	ErrUserRejected = errors.New("user rejected the request")

	// ErrNotConnected means the operation needs an active wallet session.
	ErrNotConnected = errors.New("wallet not connected")

	// ErrSubmissionPending means a previous confession is still unconfirmed.
	ErrSubmissionPending = errors.New("a confession is already pending")

	// ErrReverted means the transaction was mined but failed.
	ErrReverted = errors.New("transaction reverted")
)
