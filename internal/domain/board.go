package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/blackmichael/confession-board/internal/metrics"
)

// NoWalletAlert is shown when the user asks to connect without a wallet.
const NoWalletAlert = "No wallet found. Install or configure a wallet to connect."

// Snapshot is a point-in-time copy of the board state for rendering.
type Snapshot struct {
	Account   common.Address
	Connected bool
	Feed      Feed
	Pending   bool
	PendingTx common.Hash
	Draft     string

	// Alert is a blocking, user-facing message.
	Alert string

	// LastError describes the most recent failed read or write.
	LastError string
}

// Board is the confession board controller. It owns the wallet session, the
// feed, and the pending-submission flag. All methods are safe for concurrent
// use.
type Board struct {
	wallet         Wallet
	contracts      ContractBinder
	live           LiveFeed
	confirmTimeout time.Duration
	logger         *slog.Logger

	mu        sync.Mutex
	account   common.Address
	session   ConfessionContract
	feed      Feed
	pending   bool
	pendingTx common.Hash
	draft     string
	alert     string
	lastErr   string

	watchMu     sync.Mutex
	watchers    map[int]func(Snapshot)
	nextWatcher int

	// notifyMu orders deliveries so watchers never see an older snapshot
	// after a newer one.
	notifyMu sync.Mutex
}

// NewBoard creates a Board. confirmTimeout bounds how long a submission may
// stay pending before it is abandoned.
func NewBoard(wallet Wallet, contracts ContractBinder, live LiveFeed, confirmTimeout time.Duration, logger *slog.Logger) *Board {
	return &Board{
		wallet:         wallet,
		contracts:      contracts,
		live:           live,
		confirmTimeout: confirmTimeout,
		logger:         logger,
		watchers:       make(map[int]func(Snapshot)),
	}
}

// CheckIfWalletIsConnected opens a session if the wallet already has an
// authorized account. It never prompts and never raises an alert.
func (b *Board) CheckIfWalletIsConnected(ctx context.Context) error {
	if !b.wallet.DetectWallet() {
		b.logger.Info("no wallet provider found")
		return nil
	}

	account, ok, err := b.wallet.AuthorizedAccount(ctx)
	if err != nil {
		b.logger.Error("failed to query authorized accounts", "error", err)
		return fmt.Errorf("query authorized accounts: %w", err)
	}
	if !ok {
		b.logger.Info("no authorized account found")
		return nil
	}

	b.logger.Info("found an authorized account", "account", account.Hex())
	return b.openSession(ctx, account)
}

// ConnectWallet asks the wallet to authorize an account and loads the feed.
// Without a wallet the board raises NoWalletAlert and returns ErrNoWallet.
func (b *Board) ConnectWallet(ctx context.Context) error {
	if !b.wallet.DetectWallet() {
		b.mu.Lock()
		b.alert = NoWalletAlert
		b.mu.Unlock()
		b.notify()
		return ErrNoWallet
	}

	account, err := b.wallet.RequestConnection(ctx)
	if err != nil {
		if errors.Is(err, ErrUserRejected) {
			b.logger.Info("wallet connection declined", "error", err)
		} else {
			b.logger.Error("wallet connection failed", "error", err)
			b.setError(err)
		}
		return fmt.Errorf("request connection: %w", err)
	}

	b.logger.Info("wallet connected", "account", account.Hex())
	return b.openSession(ctx, account)
}

func (b *Board) openSession(ctx context.Context, account common.Address) error {
	session, err := b.contracts.Bind(ctx, account)
	if err != nil {
		b.logger.Error("failed to bind contract", "account", account.Hex(), "error", err)
		b.setError(err)
		return fmt.Errorf("bind contract: %w", err)
	}

	b.mu.Lock()
	b.account = account
	b.session = session
	b.alert = ""
	b.mu.Unlock()
	b.notify()

	return b.FetchConfessions(ctx)
}

// FetchConfessions replaces the feed with the full contract list, sorted
// newest first. Live records that arrived meanwhile are kept.
func (b *Board) FetchConfessions(ctx context.Context) error {
	b.mu.Lock()
	session := b.session
	b.mu.Unlock()

	if session == nil {
		b.logger.Info("skipping confession fetch, wallet not connected")
		return ErrNotConnected
	}

	records, err := session.ListConfessions(ctx)
	if err != nil {
		b.logger.Error("failed to list confessions", "error", err)
		b.setError(err)
		return fmt.Errorf("list confessions: %w", err)
	}
	metrics.ConfessionsFetched.Add(float64(len(records)))

	feed := SortFeed(records)

	b.mu.Lock()
	for _, c := range b.feed {
		feed, _ = feed.Insert(c)
	}
	b.feed = feed
	b.lastErr = ""
	b.mu.Unlock()
	metrics.FeedSize.Set(float64(len(feed)))

	b.logger.Info("confessions loaded", "count", len(feed))
	b.notify()
	return nil
}

// SetDraft stores the composer text.
func (b *Board) SetDraft(text string) {
	b.mu.Lock()
	b.draft = text
	b.mu.Unlock()
	b.notify()
}

// Submit broadcasts message and returns once the transaction is sent. The
// board stays pending until the returned Submission completes, which happens
// on confirmation, failure, or after the confirm timeout.
func (b *Board) Submit(ctx context.Context, message string) (*Submission, error) {
	b.mu.Lock()
	if b.session == nil {
		b.mu.Unlock()
		return nil, ErrNotConnected
	}
	if b.pending {
		b.mu.Unlock()
		return nil, ErrSubmissionPending
	}
	session := b.session
	b.pending = true
	b.lastErr = ""
	b.mu.Unlock()
	b.notify()

	tx, err := session.SubmitConfession(ctx, message)
	if err != nil {
		b.logger.Error("failed to send confession", "error", err)
		metrics.Submissions.WithLabelValues("send_failed").Inc()
		b.finishSubmission(err)
		return nil, fmt.Errorf("submit confession: %w", err)
	}

	b.logger.Info("confession sent", "tx", tx.Hash().Hex())

	b.mu.Lock()
	b.pendingTx = tx.Hash()
	b.draft = ""
	b.mu.Unlock()
	b.notify()

	sub := &Submission{hash: tx.Hash(), done: make(chan struct{})}

	// The confirmation outlives the request that started it.
	waitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.confirmTimeout)
	go func() {
		defer cancel()
		start := time.Now()

		err := tx.Wait(waitCtx)
		switch {
		case err == nil:
			metrics.ConfirmationDuration.Observe(time.Since(start).Seconds())
			metrics.Submissions.WithLabelValues("confirmed").Inc()
			b.logger.Info("confession confirmed", "tx", sub.hash.Hex())
		case errors.Is(err, context.DeadlineExceeded):
			err = fmt.Errorf("confirmation timed out after %s: %w", b.confirmTimeout, err)
			metrics.Submissions.WithLabelValues("timeout").Inc()
			b.logger.Error("confession not confirmed in time", "tx", sub.hash.Hex(), "error", err)
		default:
			metrics.Submissions.WithLabelValues("failed").Inc()
			b.logger.Error("confession failed", "tx", sub.hash.Hex(), "error", err)
		}

		b.finishSubmission(err)
		sub.err = err
		close(sub.done)
	}()

	return sub, nil
}

func (b *Board) finishSubmission(err error) {
	b.mu.Lock()
	b.pending = false
	b.pendingTx = common.Hash{}
	if err != nil {
		b.lastErr = err.Error()
	}
	b.mu.Unlock()
	b.notify()
}

// Mount registers the board's live listener. The returned release func
// unregisters it; it is safe to call more than once.
func (b *Board) Mount(ctx context.Context) (func(), error) {
	id, err := b.live.Subscribe(ctx, b.receive)
	if err != nil {
		return nil, fmt.Errorf("subscribe to confessions: %w", err)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			if err := b.live.Unsubscribe(id); err != nil {
				b.logger.Error("failed to unsubscribe", "listener", id, "error", err)
			}
		})
	}, nil
}

func (b *Board) receive(c Confession) {
	b.mu.Lock()
	feed, added := b.feed.Insert(c)
	b.feed = feed
	b.mu.Unlock()

	if !added {
		b.logger.Debug("duplicate confession ignored", "sender", c.Sender.Hex())
		return
	}
	metrics.FeedSize.Set(float64(len(feed)))
	b.logger.Info("new confession", "sender", c.Sender.Hex(), "occurred_at", c.OccurredAt)
	b.notify()
}

// DismissAlert clears the user-facing alert.
func (b *Board) DismissAlert() {
	b.mu.Lock()
	b.alert = ""
	b.mu.Unlock()
	b.notify()
}

func (b *Board) setError(err error) {
	b.mu.Lock()
	b.lastErr = err.Error()
	b.mu.Unlock()
	b.notify()
}

// Snapshot returns a copy of the current state.
func (b *Board) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	feed := make(Feed, len(b.feed))
	copy(feed, b.feed)

	return Snapshot{
		Account:   b.account,
		Connected: b.session != nil,
		Feed:      feed,
		Pending:   b.pending,
		PendingTx: b.pendingTx,
		Draft:     b.draft,
		Alert:     b.alert,
		LastError: b.lastErr,
	}
}

// Watch registers fn to receive a snapshot after every state change.
// Snapshots are delivered one at a time in state order. fn must not block and
// must not change board state. The returned func removes the watcher.
func (b *Board) Watch(fn func(Snapshot)) func() {
	b.watchMu.Lock()
	id := b.nextWatcher
	b.nextWatcher++
	b.watchers[id] = fn
	b.watchMu.Unlock()

	return func() {
		b.watchMu.Lock()
		delete(b.watchers, id)
		b.watchMu.Unlock()
	}
}

// Updates returns a channel that holds the latest snapshot not yet received.
// A slow reader skips intermediate states. The returned func stops updates.
func (b *Board) Updates() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)
	stop := b.Watch(func(snap Snapshot) {
		for {
			select {
			case ch <- snap:
				return
			default:
			}
			select {
			case <-ch:
			default:
			}
		}
	})
	return ch, stop
}

func (b *Board) notify() {
	b.notifyMu.Lock()
	defer b.notifyMu.Unlock()

	snap := b.Snapshot()

	b.watchMu.Lock()
	fns := make([]func(Snapshot), 0, len(b.watchers))
	for _, fn := range b.watchers {
		fns = append(fns, fn)
	}
	b.watchMu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}

// Submission tracks one broadcast confession until it settles.
type Submission struct {
	hash common.Hash
	done chan struct{}
	err  error
}

// Hash returns the transaction hash.
func (s *Submission) Hash() common.Hash {
	return s.hash
}

// Done is closed once the submission is confirmed or has failed.
func (s *Submission) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the submission settles and returns its outcome.
func (s *Submission) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return s.err
	}
}
