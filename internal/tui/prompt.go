package tui

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
)

var errPromptCancelled = errors.New("passphrase prompt cancelled")

type promptReply struct {
	passphrase string
	err        error
}

type promptRequest struct {
	account common.Address
	reply   chan promptReply
}

// Prompter answers wallet passphrase prompts from the TUI. Its Prompt method
// is handed to the wallet as a wallet.PromptFunc; each call shows a modal and
// blocks until the user answers or cancels.
type Prompter struct {
	requests chan promptRequest
}

// NewPrompter creates a prompter with no program attached. Prompts block
// until a Model is running.
func NewPrompter() *Prompter {
	return &Prompter{requests: make(chan promptRequest)}
}

// Prompt asks the user for the passphrase of account.
func (p *Prompter) Prompt(ctx context.Context, account common.Address) (string, error) {
	req := promptRequest{account: account, reply: make(chan promptReply, 1)}

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case p.requests <- req:
	}

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-req.reply:
		return r.passphrase, r.err
	}
}
