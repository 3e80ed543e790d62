package domain

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testAccount = common.HexToAddress("0xABCDEF0123456789ABCDEF0123456789ABCDEF01")

type fakeWallet struct {
	present    bool
	authorized bool
	rejectErr  error
	requests   int
}

func (w *fakeWallet) DetectWallet() bool { return w.present }

func (w *fakeWallet) AuthorizedAccount(context.Context) (common.Address, bool, error) {
	if !w.authorized {
		return common.Address{}, false, nil
	}
	return testAccount, true, nil
}

func (w *fakeWallet) RequestConnection(context.Context) (common.Address, error) {
	w.requests++
	if w.rejectErr != nil {
		return common.Address{}, w.rejectErr
	}
	return testAccount, nil
}

type fakePendingTx struct {
	hash   common.Hash
	result chan error
}

func (p *fakePendingTx) Hash() common.Hash { return p.hash }

func (p *fakePendingTx) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-p.result:
		return err
	}
}

type fakeContract struct {
	mu        sync.Mutex
	records   []Confession
	listErr   error
	sendErr   error
	lists     int
	submitted []string
	tx        *fakePendingTx
}

func (c *fakeContract) ListConfessions(context.Context) ([]Confession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lists++
	return c.records, c.listErr
}

func (c *fakeContract) SubmitConfession(_ context.Context, message string) (PendingTx, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return nil, c.sendErr
	}
	c.submitted = append(c.submitted, message)
	return c.tx, nil
}

type fakeBinder struct {
	contract *fakeContract
	bound    []common.Address
}

func (b *fakeBinder) Bind(_ context.Context, account common.Address) (ConfessionContract, error) {
	b.bound = append(b.bound, account)
	return b.contract, nil
}

type fakeLive struct {
	mu        sync.Mutex
	nextID    ListenerID
	listeners map[ListenerID]func(Confession)
}

func newFakeLive() *fakeLive {
	return &fakeLive{listeners: make(map[ListenerID]func(Confession))}
}

func (l *fakeLive) Subscribe(_ context.Context, onEvent func(Confession)) (ListenerID, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	l.listeners[l.nextID] = onEvent
	return l.nextID, nil
}

func (l *fakeLive) Unsubscribe(id ListenerID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.listeners[id]; !ok {
		return errors.New("unknown listener")
	}
	delete(l.listeners, id)
	return nil
}

func (l *fakeLive) emit(c Confession) {
	l.mu.Lock()
	fns := make([]func(Confession), 0, len(l.listeners))
	for _, fn := range l.listeners {
		fns = append(fns, fn)
	}
	l.mu.Unlock()
	for _, fn := range fns {
		fn(c)
	}
}

func (l *fakeLive) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.listeners)
}

type fixture struct {
	wallet   *fakeWallet
	contract *fakeContract
	binder   *fakeBinder
	live     *fakeLive
	board    *Board
}

func newFixture(t *testing.T, wallet *fakeWallet) *fixture {
	t.Helper()
	contract := &fakeContract{
		tx: &fakePendingTx{hash: common.HexToHash("0x01"), result: make(chan error, 1)},
	}
	binder := &fakeBinder{contract: contract}
	live := newFakeLive()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &fixture{
		wallet:   wallet,
		contract: contract,
		binder:   binder,
		live:     live,
		board:    NewBoard(wallet, binder, live, time.Second, logger),
	}
}

func TestConnectWalletWithoutProviderRaisesAlert(t *testing.T) {
	f := newFixture(t, &fakeWallet{present: false})

	err := f.board.ConnectWallet(context.Background())
	require.ErrorIs(t, err, ErrNoWallet)

	snap := f.board.Snapshot()
	assert.Equal(t, NoWalletAlert, snap.Alert)
	assert.False(t, snap.Connected)
	assert.Equal(t, common.Address{}, snap.Account)
	assert.Zero(t, f.wallet.requests)

	f.board.DismissAlert()
	assert.Empty(t, f.board.Snapshot().Alert)
}

func TestCheckWithoutAuthorizationLeavesBoardEmpty(t *testing.T) {
	f := newFixture(t, &fakeWallet{present: true})

	require.NoError(t, f.board.CheckIfWalletIsConnected(context.Background()))

	snap := f.board.Snapshot()
	assert.False(t, snap.Connected)
	assert.Empty(t, snap.Feed)
	assert.Zero(t, f.contract.lists)
	assert.Zero(t, f.wallet.requests, "passive check must not prompt")
}

func TestCheckWithoutProviderIsSilent(t *testing.T) {
	f := newFixture(t, &fakeWallet{present: false})

	require.NoError(t, f.board.CheckIfWalletIsConnected(context.Background()))
	assert.Empty(t, f.board.Snapshot().Alert)
}

func TestCheckWithAuthorizedAccountFetchesSortedFeed(t *testing.T) {
	f := newFixture(t, &fakeWallet{present: true, authorized: true})
	f.contract.records = []Confession{
		NewConfession(testAccount, "middle", 200),
		NewConfession(testAccount, "oldest", 100),
		NewConfession(testAccount, "newest", 300),
	}

	require.NoError(t, f.board.CheckIfWalletIsConnected(context.Background()))

	snap := f.board.Snapshot()
	assert.True(t, snap.Connected)
	assert.Equal(t, testAccount, snap.Account)
	require.Len(t, snap.Feed, 3)
	for i := 1; i < len(snap.Feed); i++ {
		assert.False(t, snap.Feed[i].OccurredAt.After(snap.Feed[i-1].OccurredAt))
	}
	assert.Equal(t, "newest", snap.Feed[0].Message)
	assert.Equal(t, []common.Address{testAccount}, f.binder.bound)
}

func TestConnectWalletRejectedKeepsStateUnchanged(t *testing.T) {
	f := newFixture(t, &fakeWallet{present: true, rejectErr: ErrUserRejected})

	err := f.board.ConnectWallet(context.Background())
	require.ErrorIs(t, err, ErrUserRejected)

	snap := f.board.Snapshot()
	assert.False(t, snap.Connected)
	assert.Empty(t, snap.LastError)
	assert.Empty(t, snap.Alert)
}

func TestFetchWithoutSessionIsNoop(t *testing.T) {
	f := newFixture(t, &fakeWallet{present: true})

	err := f.board.FetchConfessions(context.Background())
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Zero(t, f.contract.lists)
}

func TestFetchFailureIsReported(t *testing.T) {
	f := newFixture(t, &fakeWallet{present: true})
	f.contract.listErr = errors.New("connection refused")

	err := f.board.ConnectWallet(context.Background())
	require.Error(t, err)
	assert.Contains(t, f.board.Snapshot().LastError, "connection refused")
}

func TestLiveEventBecomesFirstEntry(t *testing.T) {
	f := newFixture(t, &fakeWallet{present: true, authorized: true})
	f.contract.records = []Confession{NewConfession(testAccount, "old", 1600000000)}
	require.NoError(t, f.board.CheckIfWalletIsConnected(context.Background()))

	release, err := f.board.Mount(context.Background())
	require.NoError(t, err)
	defer release()

	f.live.emit(NewConfession(testAccount, "test", 1700000000))

	snap := f.board.Snapshot()
	require.Len(t, snap.Feed, 2)
	assert.Equal(t, "test", snap.Feed[0].Message)
	assert.Equal(t, testAccount, snap.Feed[0].Sender)
	assert.Equal(t, time.UnixMilli(1700000000*1000).UTC(), snap.Feed[0].OccurredAt)
}

func TestDuplicateLiveEventIsIgnored(t *testing.T) {
	f := newFixture(t, &fakeWallet{present: true})
	release, err := f.board.Mount(context.Background())
	require.NoError(t, err)
	defer release()

	c := NewConfession(testAccount, "twice", 1700000000)
	f.live.emit(c)
	f.live.emit(c)

	assert.Len(t, f.board.Snapshot().Feed, 1)
}

func TestMountReleaseLeavesNoListeners(t *testing.T) {
	f := newFixture(t, &fakeWallet{present: true})

	for i := 0; i < 5; i++ {
		release, err := f.board.Mount(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, f.live.count())
		release()
		release()
		assert.Equal(t, 0, f.live.count())
	}
}

func TestSubmitPendingUntilConfirmed(t *testing.T) {
	f := newFixture(t, &fakeWallet{present: true, authorized: true})
	require.NoError(t, f.board.CheckIfWalletIsConnected(context.Background()))
	f.board.SetDraft("my sin")

	sub, err := f.board.Submit(context.Background(), "my sin")
	require.NoError(t, err)

	snap := f.board.Snapshot()
	assert.True(t, snap.Pending)
	assert.Equal(t, f.contract.tx.hash, snap.PendingTx)
	assert.Empty(t, snap.Draft)
	assert.Equal(t, []string{"my sin"}, f.contract.submitted)

	_, err = f.board.Submit(context.Background(), "again")
	assert.ErrorIs(t, err, ErrSubmissionPending)

	f.contract.tx.result <- nil
	require.NoError(t, sub.Wait(context.Background()))

	snap = f.board.Snapshot()
	assert.False(t, snap.Pending)
	assert.Empty(t, snap.LastError)
	assert.Empty(t, snap.Feed, "own writes arrive through the live feed only")
}

func TestSubmitRevertResetsPending(t *testing.T) {
	f := newFixture(t, &fakeWallet{present: true, authorized: true})
	require.NoError(t, f.board.CheckIfWalletIsConnected(context.Background()))

	sub, err := f.board.Submit(context.Background(), "doomed")
	require.NoError(t, err)

	f.contract.tx.result <- ErrReverted
	assert.ErrorIs(t, sub.Wait(context.Background()), ErrReverted)

	snap := f.board.Snapshot()
	assert.False(t, snap.Pending)
	assert.Contains(t, snap.LastError, "reverted")
}

func TestSubmitSendFailureResetsPending(t *testing.T) {
	f := newFixture(t, &fakeWallet{present: true, authorized: true})
	require.NoError(t, f.board.CheckIfWalletIsConnected(context.Background()))
	f.contract.sendErr = ErrUserRejected

	_, err := f.board.Submit(context.Background(), "nope")
	require.ErrorIs(t, err, ErrUserRejected)
	assert.False(t, f.board.Snapshot().Pending)
}

func TestSubmitTimeoutResetsPending(t *testing.T) {
	f := newFixture(t, &fakeWallet{present: true, authorized: true})
	f.board.confirmTimeout = 20 * time.Millisecond
	require.NoError(t, f.board.CheckIfWalletIsConnected(context.Background()))

	sub, err := f.board.Submit(context.Background(), "slow")
	require.NoError(t, err)

	err = sub.Wait(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, f.board.Snapshot().Pending)
}

func TestSubmitSurvivesCallerCancellation(t *testing.T) {
	f := newFixture(t, &fakeWallet{present: true, authorized: true})
	require.NoError(t, f.board.CheckIfWalletIsConnected(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	sub, err := f.board.Submit(ctx, "detached")
	require.NoError(t, err)
	cancel()

	f.contract.tx.result <- nil
	assert.NoError(t, sub.Wait(context.Background()))
}

func TestSubmitWithoutSession(t *testing.T) {
	f := newFixture(t, &fakeWallet{present: true})

	_, err := f.board.Submit(context.Background(), "x")
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestWatchReceivesSnapshots(t *testing.T) {
	f := newFixture(t, &fakeWallet{present: true})

	var got []Snapshot
	stop := f.board.Watch(func(s Snapshot) { got = append(got, s) })

	f.board.SetDraft("hello")
	stop()
	f.board.SetDraft("ignored")

	require.Len(t, got, 1)
	assert.Equal(t, "hello", got[0].Draft)
}

func TestUpdatesKeepsLatestSnapshot(t *testing.T) {
	f := newFixture(t, &fakeWallet{present: true})

	updates, stop := f.board.Updates()
	f.board.SetDraft("first")
	f.board.SetDraft("second")

	snap := <-updates
	assert.Equal(t, "second", snap.Draft)

	stop()
	f.board.SetDraft("third")
	select {
	case snap := <-updates:
		t.Fatalf("unexpected snapshot after stop: %q", snap.Draft)
	default:
	}
}

func TestConfirmationIsNotOvertakenByLiveEvent(t *testing.T) {
	f := newFixture(t, &fakeWallet{present: true, authorized: true})
	require.NoError(t, f.board.CheckIfWalletIsConnected(context.Background()))
	release, err := f.board.Mount(context.Background())
	require.NoError(t, err)
	defer release()

	sub, err := f.board.Submit(context.Background(), "my sin")
	require.NoError(t, err)

	var (
		mu      sync.Mutex
		last    Snapshot
		held    bool
		entered = make(chan struct{})
		proceed = make(chan struct{})
	)
	stop := f.board.Watch(func(s Snapshot) {
		mu.Lock()
		hold := !held && s.Pending && len(s.Feed) == 1
		if hold {
			held = true
		}
		mu.Unlock()

		if hold {
			// park the live event's delivery while the confirmation lands
			close(entered)
			<-proceed
		}

		mu.Lock()
		last = s
		mu.Unlock()
	})
	defer stop()

	go f.live.emit(NewConfession(testAccount, "my sin", 1_700_000_000))
	<-entered

	f.contract.tx.result <- nil
	time.Sleep(20 * time.Millisecond)
	close(proceed)

	require.NoError(t, sub.Wait(context.Background()))
	assert.False(t, f.board.Snapshot().Pending)

	mu.Lock()
	defer mu.Unlock()
	assert.False(t, last.Pending, "last delivered snapshot is stale")
	assert.Len(t, last.Feed, 1)
}
