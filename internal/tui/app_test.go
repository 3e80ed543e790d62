package tui

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackmichael/confession-board/internal/display"
	"github.com/blackmichael/confession-board/internal/domain"
)

var testAccount = common.HexToAddress("0xABCDEF0123456789ABCDEF0123456789ABCDEF01")

type fakeWallet struct{}

func (fakeWallet) DetectWallet() bool { return true }

func (fakeWallet) AuthorizedAccount(context.Context) (common.Address, bool, error) {
	return testAccount, true, nil
}

func (fakeWallet) RequestConnection(context.Context) (common.Address, error) {
	return testAccount, nil
}

type fakeTx struct{ result chan error }

func (t *fakeTx) Hash() common.Hash { return common.HexToHash("0xbeef") }

func (t *fakeTx) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-t.result:
		return err
	}
}

type fakeContract struct {
	records   []domain.Confession
	submitted []string
	tx        *fakeTx
}

func (c *fakeContract) Bind(context.Context, common.Address) (domain.ConfessionContract, error) {
	return c, nil
}

func (c *fakeContract) ListConfessions(context.Context) ([]domain.Confession, error) {
	return c.records, nil
}

func (c *fakeContract) SubmitConfession(_ context.Context, message string) (domain.PendingTx, error) {
	c.submitted = append(c.submitted, message)
	return c.tx, nil
}

func newTestBoard(t *testing.T) (*domain.Board, *fakeContract) {
	t.Helper()
	contract := &fakeContract{
		records: []domain.Confession{
			domain.NewConfession(testAccount, "I ate the last donut", 1_700_000_000),
		},
		tx: &fakeTx{result: make(chan error, 1)},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return domain.NewBoard(fakeWallet{}, contract, nil, time.Minute, logger), contract
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	model, ok := next.(Model)
	require.True(t, ok)
	return model, cmd
}

func TestViewBeforeConnect(t *testing.T) {
	board, _ := newTestBoard(t)
	m := NewModel(context.Background(), board, nil, nil)

	view := m.View()
	assert.Contains(t, view, "not connected")
	assert.Contains(t, view, "Press c to connect your wallet.")

	m, cmd := update(t, m, runes("n"))
	assert.Nil(t, cmd)
	assert.Equal(t, modeList, m.mode)
	assert.Equal(t, "Connect a wallet first", m.status)
}

func TestConnectShowsFeed(t *testing.T) {
	board, _ := newTestBoard(t)
	m := NewModel(context.Background(), board, nil, nil)

	m, cmd := update(t, m, runes("c"))
	require.NotNil(t, cmd)
	m, _ = update(t, m, cmd())
	assert.Equal(t, "Wallet connected", m.status)

	m, _ = update(t, m, snapshotMsg(board.Snapshot()))
	view := m.View()
	assert.Contains(t, view, "I ate the last donut")
	assert.Contains(t, view, display.ShortAddress(testAccount.Hex()))
	assert.Contains(t, view, "1 confessions")
}

func TestComposeAndSubmit(t *testing.T) {
	board, contract := newTestBoard(t)
	require.NoError(t, board.ConnectWallet(context.Background()))
	m := NewModel(context.Background(), board, nil, nil)

	m, _ = update(t, m, runes("n"))
	require.Equal(t, modeCompose, m.mode)

	m, _ = update(t, m, runes("forgot to water the plants"))
	assert.Equal(t, "forgot to water the plants", m.composer.Value())

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyCtrlS})
	require.NotNil(t, cmd)
	m, cmd = update(t, m, cmd())

	assert.Equal(t, []string{"forgot to water the plants"}, contract.submitted)
	assert.Equal(t, modeList, m.mode)
	assert.Empty(t, m.composer.Value())
	require.NotNil(t, cmd)

	contract.tx.result <- nil
	m, _ = update(t, m, cmd())
	assert.Equal(t, "Confession confirmed", m.status)
}

func TestComposerReadOnlyWhilePending(t *testing.T) {
	board, contract := newTestBoard(t)
	require.NoError(t, board.ConnectWallet(context.Background()))
	_, err := board.Submit(context.Background(), "first")
	require.NoError(t, err)
	defer func() { contract.tx.result <- nil }()

	m := NewModel(context.Background(), board, nil, nil)
	m, _ = update(t, m, runes("n"))
	assert.Equal(t, modeList, m.mode, "composer cannot open while pending")

	m.mode = modeCompose
	m, _ = update(t, m, runes("typed while pending"))
	assert.Empty(t, m.composer.Value())
	assert.Contains(t, m.View(), "Confessing...")

	_, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyCtrlS})
	assert.Nil(t, cmd)
	assert.Equal(t, []string{"first"}, contract.submitted)
}

func TestPassphrasePrompt(t *testing.T) {
	tests := []struct {
		name    string
		keys    []tea.KeyMsg
		want    string
		wantErr error
	}{
		{
			name: "answered",
			keys: []tea.KeyMsg{runes("hunter2"), {Type: tea.KeyEnter}},
			want: "hunter2",
		},
		{
			name:    "cancelled",
			keys:    []tea.KeyMsg{runes("hun"), {Type: tea.KeyEsc}},
			wantErr: errPromptCancelled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			board, _ := newTestBoard(t)
			prompter := NewPrompter()
			m := NewModel(context.Background(), board, prompter, nil)

			type result struct {
				passphrase string
				err        error
			}
			done := make(chan result, 1)
			go func() {
				p, err := prompter.Prompt(context.Background(), testAccount)
				done <- result{p, err}
			}()

			msg := waitForPrompt(context.Background(), m.prompts)()
			m, _ = update(t, m, msg)
			require.Equal(t, modePassphrase, m.mode)
			assert.Contains(t, m.View(), testAccount.Hex())

			for _, k := range tt.keys {
				m, _ = update(t, m, k)
			}
			assert.Equal(t, modeList, m.mode)

			select {
			case r := <-done:
				assert.Equal(t, tt.want, r.passphrase)
				assert.ErrorIs(t, r.err, tt.wantErr)
			case <-time.After(time.Second):
				t.Fatal("prompt was not answered")
			}
		})
	}
}

func TestPromptHonoursContext(t *testing.T) {
	prompter := NewPrompter()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := prompter.Prompt(ctx, testAccount)
	assert.ErrorIs(t, err, context.Canceled)
}
