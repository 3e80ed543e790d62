package contract

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/event"

	"github.com/blackmichael/confession-board/internal/domain"
)

// Backend is the chain access the client needs. *ethclient.Client
// implements it.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
	ChainID(ctx context.Context) (*big.Int, error)
}

// Signer produces transaction options that sign as account.
type Signer interface {
	Transactor(account common.Address, chainID *big.Int) (*bind.TransactOpts, error)
}

// sin mirrors the IndulgencePortal.Sin tuple returned by getAllSins.
type sin struct {
	Sinner    common.Address
	Sin       string
	Timestamp *big.Int
}

// newSinEvent is the decoded NewSin log.
type newSinEvent struct {
	From      common.Address
	Timestamp *big.Int
	Message   string
}

// Client is a typed handle on the deployed confession contract. It binds
// signing sessions and streams NewSin events.
type Client struct {
	address  common.Address
	contract *bind.BoundContract
	backend  Backend
	signer   Signer
	logger   *slog.Logger

	chainMu sync.Mutex
	chainID *big.Int
}

// Dial connects to the JSON-RPC endpoint at rpcURL and returns a Client for
// the contract at address. signer may be nil, in which case Bind fails.
func Dial(ctx context.Context, rpcURL string, address common.Address, signer Signer, logger *slog.Logger) (*Client, error) {
	ec, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rpcURL, err)
	}
	return NewClient(ec, address, signer, logger)
}

// NewClient returns a Client using an existing backend.
func NewClient(backend Backend, address common.Address, signer Signer, logger *slog.Logger) (*Client, error) {
	parsed, err := abi.JSON(strings.NewReader(PortalABI))
	if err != nil {
		return nil, fmt.Errorf("parse contract abi: %w", err)
	}

	return &Client{
		address:  address,
		contract: bind.NewBoundContract(address, parsed, backend, backend, backend),
		backend:  backend,
		signer:   signer,
		logger:   logger,
	}, nil
}

// Address returns the contract address.
func (c *Client) Address() common.Address {
	return c.address
}

// Close releases the backend connection if it has one.
func (c *Client) Close() {
	if closer, ok := c.backend.(interface{ Close() }); ok {
		closer.Close()
	}
}

// ChainID returns the chain ID of the backend, caching it after the first
// successful query.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	c.chainMu.Lock()
	defer c.chainMu.Unlock()

	if c.chainID != nil {
		return c.chainID, nil
	}

	id, err := c.backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("get chain id: %w", err)
	}
	c.chainID = id
	return id, nil
}

// Bind returns a session that reads as account and signs with it.
func (c *Client) Bind(ctx context.Context, account common.Address) (domain.ConfessionContract, error) {
	if c.signer == nil {
		return nil, domain.ErrNoWallet
	}

	chainID, err := c.ChainID(ctx)
	if err != nil {
		return nil, err
	}

	opts, err := c.signer.Transactor(account, chainID)
	if err != nil {
		return nil, fmt.Errorf("create transactor for %s: %w", account.Hex(), err)
	}

	return &Session{client: c, account: account, opts: opts}, nil
}

// ListConfessions calls getAllSins as from and returns the confessions
// newest first.
func (c *Client) ListConfessions(ctx context.Context, from common.Address) ([]domain.Confession, error) {
	var out []interface{}
	err := c.contract.Call(&bind.CallOpts{Context: ctx, From: from}, &out, methodGetAllSins)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", methodGetAllSins, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("call %s: empty result", methodGetAllSins)
	}

	sins := *abi.ConvertType(out[0], new([]sin)).(*[]sin)

	records := make([]domain.Confession, 0, len(sins))
	for _, s := range sins {
		records = append(records, domain.NewConfession(s.Sinner, s.Sin, s.Timestamp.Int64()))
	}

	c.logger.Debug("listed confessions", "count", len(records))
	return domain.SortFeed(records), nil
}

// WatchConfessions subscribes to NewSin logs and delivers them to sink as
// confessions. Logs removed by a reorg and logs that fail to decode are
// skipped.
func (c *Client) WatchConfessions(ctx context.Context, sink chan<- domain.Confession) (event.Subscription, error) {
	logs, sub, err := c.contract.WatchLogs(&bind.WatchOpts{Context: ctx}, eventNewSin)
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", eventNewSin, err)
	}

	return event.NewSubscription(func(quit <-chan struct{}) error {
		defer sub.Unsubscribe()
		for {
			select {
			case lg := <-logs:
				if lg.Removed {
					continue
				}
				conf, err := c.parseConfession(lg)
				if err != nil {
					c.logger.Warn("failed to decode confession event", "tx", lg.TxHash.Hex(), "error", err)
					continue
				}

				select {
				case sink <- conf:
				case err := <-sub.Err():
					return err
				case <-quit:
					return nil
				}
			case err := <-sub.Err():
				return err
			case <-quit:
				return nil
			}
		}
	}), nil
}

func (c *Client) parseConfession(lg types.Log) (domain.Confession, error) {
	var ev newSinEvent
	if err := c.contract.UnpackLog(&ev, eventNewSin, lg); err != nil {
		return domain.Confession{}, fmt.Errorf("unpack %s: %w", eventNewSin, err)
	}
	if ev.Timestamp == nil {
		return domain.Confession{}, fmt.Errorf("unpack %s: missing timestamp", eventNewSin)
	}
	return domain.NewConfession(ev.From, ev.Message, ev.Timestamp.Int64()).WithLog(lg.TxHash, lg.Index), nil
}

// Session is a contract handle bound to one signing account.
type Session struct {
	client  *Client
	account common.Address
	opts    *bind.TransactOpts
}

// Account returns the bound account.
func (s *Session) Account() common.Address {
	return s.account
}

// ListConfessions returns every stored confession, newest first.
func (s *Session) ListConfessions(ctx context.Context) ([]domain.Confession, error) {
	return s.client.ListConfessions(ctx, s.account)
}

// SubmitConfession sends confess(message) with the fixed gas limit. It
// does not wait for the transaction to be mined.
func (s *Session) SubmitConfession(ctx context.Context, message string) (domain.PendingTx, error) {
	opts := *s.opts
	opts.Context = ctx
	opts.GasLimit = GasLimit

	tx, err := s.client.contract.Transact(&opts, methodConfess, message)
	if err != nil {
		return nil, fmt.Errorf("transact %s: %w", methodConfess, err)
	}

	return &PendingTx{tx: tx, backend: s.client.backend}, nil
}

// PendingTx is a broadcast confess transaction.
type PendingTx struct {
	tx      *types.Transaction
	backend bind.DeployBackend
}

// Hash returns the transaction hash.
func (p *PendingTx) Hash() common.Hash {
	return p.tx.Hash()
}

// Wait blocks until the transaction is mined and checks its status.
func (p *PendingTx) Wait(ctx context.Context) error {
	receipt, err := bind.WaitMined(ctx, p.backend, p.tx)
	if err != nil {
		return fmt.Errorf("wait for %s: %w", p.tx.Hash().Hex(), err)
	}
	if receipt.Status == types.ReceiptStatusFailed {
		return fmt.Errorf("tx %s: %w", p.tx.Hash().Hex(), domain.ErrReverted)
	}
	return nil
}
