package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/ethereum/go-ethereum/common"

	"github.com/blackmichael/confession-board/internal/display"
	"github.com/blackmichael/confession-board/internal/domain"
)

type mode int

const (
	modeList mode = iota
	modeCompose
	modePassphrase
)

const composerHeight = 4

type (
	snapshotMsg    domain.Snapshot
	promptMsg      promptRequest
	connectDoneMsg struct{ err error }
	fetchDoneMsg   struct{ err error }
	submitDoneMsg  struct {
		sub *domain.Submission
		err error
	}
	confirmedMsg struct {
		hash common.Hash
		err  error
	}
)

// Model is the bubbletea model for the confession board.
type Model struct {
	ctx     context.Context
	board   *domain.Board
	updates <-chan domain.Snapshot
	prompts <-chan promptRequest

	snap      domain.Snapshot
	composer  textarea.Model
	passInput textinput.Model
	prompt    *promptRequest

	mode     mode
	cursor   int
	offset   int // scroll offset
	width    int
	height   int
	status   string
	now      func() time.Time
	quitting bool
}

// NewModel creates a model that renders board. updates should come from
// board.Updates. prompter may be nil when the wallet never prompts.
func NewModel(ctx context.Context, board *domain.Board, prompter *Prompter, updates <-chan domain.Snapshot) Model {
	ta := textarea.New()
	ta.Placeholder = "Confess your sins..."
	ta.ShowLineNumbers = false
	ta.SetHeight(composerHeight)
	ta.SetWidth(76)

	pi := textinput.New()
	pi.Placeholder = "passphrase"
	pi.EchoMode = textinput.EchoPassword
	pi.EchoCharacter = '*'
	pi.CharLimit = 256

	m := Model{
		ctx:       ctx,
		board:     board,
		updates:   updates,
		composer:  ta,
		passInput: pi,
		snap:      board.Snapshot(),
		width:     80,
		height:    24,
		now:       time.Now,
	}
	if prompter != nil {
		m.prompts = prompter.requests
	}
	return m
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		waitForSnapshot(m.ctx, m.updates),
		waitForPrompt(m.ctx, m.prompts),
	)
}

func waitForSnapshot(ctx context.Context, updates <-chan domain.Snapshot) tea.Cmd {
	if updates == nil {
		return nil
	}
	return func() tea.Msg {
		select {
		case <-ctx.Done():
			return nil
		case snap := <-updates:
			return snapshotMsg(snap)
		}
	}
}

func waitForPrompt(ctx context.Context, prompts <-chan promptRequest) tea.Cmd {
	if prompts == nil {
		return nil
	}
	return func() tea.Msg {
		select {
		case <-ctx.Done():
			return nil
		case req := <-prompts:
			return promptMsg(req)
		}
	}
}

func (m Model) connect() tea.Cmd {
	ctx, board := m.ctx, m.board
	return func() tea.Msg {
		return connectDoneMsg{err: board.ConnectWallet(ctx)}
	}
}

func (m Model) refresh() tea.Cmd {
	ctx, board := m.ctx, m.board
	return func() tea.Msg {
		return fetchDoneMsg{err: board.FetchConfessions(ctx)}
	}
}

func (m Model) submit(message string) tea.Cmd {
	ctx, board := m.ctx, m.board
	return func() tea.Msg {
		sub, err := board.Submit(ctx, message)
		return submitDoneMsg{sub: sub, err: err}
	}
}

func waitForConfirmation(ctx context.Context, sub *domain.Submission) tea.Cmd {
	return func() tea.Msg {
		return confirmedMsg{hash: sub.Hash(), err: sub.Wait(ctx)}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.composer.SetWidth(max(20, msg.Width-4))
		m.clampOffset()
		return m, nil

	case snapshotMsg:
		m.snap = domain.Snapshot(msg)
		if m.snap.Pending && m.mode == modeCompose {
			m.composer.Blur()
		}
		if m.cursor >= len(m.snap.Feed) {
			m.cursor = max(0, len(m.snap.Feed)-1)
		}
		m.clampOffset()
		return m, waitForSnapshot(m.ctx, m.updates)

	case promptMsg:
		req := promptRequest(msg)
		m.prompt = &req
		m.mode = modePassphrase
		m.composer.Blur()
		m.passInput.Reset()
		cmd := m.passInput.Focus()
		return m, cmd

	case connectDoneMsg:
		switch {
		case msg.err == nil:
			m.status = "Wallet connected"
		case errors.Is(msg.err, domain.ErrNoWallet):
			m.status = ""
		case errors.Is(msg.err, domain.ErrUserRejected):
			m.status = "Connection declined"
		default:
			m.status = "Connect failed: " + msg.err.Error()
		}
		return m, nil

	case fetchDoneMsg:
		switch {
		case msg.err == nil:
			m.status = fmt.Sprintf("Loaded %d confessions", len(m.snap.Feed))
		case errors.Is(msg.err, domain.ErrNotConnected):
			m.status = "Connect a wallet first"
		default:
			m.status = "Refresh failed: " + msg.err.Error()
		}
		return m, nil

	case submitDoneMsg:
		if msg.err != nil {
			m.status = "Confession not sent: " + msg.err.Error()
			return m, nil
		}
		m.composer.Reset()
		m.composer.Blur()
		m.mode = modeList
		m.status = "Sent " + msg.sub.Hash().Hex()
		return m, waitForConfirmation(m.ctx, msg.sub)

	case confirmedMsg:
		if msg.err != nil {
			m.status = "Confession failed: " + msg.err.Error()
		} else {
			m.status = "Confession confirmed"
		}
		return m, nil

	case tea.KeyMsg:
		switch m.mode {
		case modeList:
			return m.updateList(msg)
		case modeCompose:
			return m.updateCompose(msg)
		case modePassphrase:
			return m.updatePassphrase(msg)
		}
	}
	return m, nil
}

func (m Model) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "c":
		if m.snap.Connected {
			m.status = "Already connected"
			return m, nil
		}
		m.status = "Connecting..."
		return m, m.connect()

	case "r":
		return m, m.refresh()

	case "n", "enter":
		if !m.snap.Connected {
			m.status = "Connect a wallet first"
			return m, nil
		}
		if m.snap.Pending {
			m.status = "A confession is still pending"
			return m, nil
		}
		m.mode = modeCompose
		if m.composer.Value() == "" && m.snap.Draft != "" {
			m.composer.SetValue(m.snap.Draft)
		}
		cmd := m.composer.Focus()
		return m, cmd

	case "esc":
		if m.snap.Alert != "" {
			m.board.DismissAlert()
		}

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
			m.clampOffset()
		}

	case "down", "j":
		if m.cursor < len(m.snap.Feed)-1 {
			m.cursor++
			m.clampOffset()
		}

	case "home", "g":
		m.cursor = 0
		m.clampOffset()

	case "end", "G":
		m.cursor = max(0, len(m.snap.Feed)-1)
		m.clampOffset()
	}

	return m, nil
}

func (m Model) updateCompose(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "esc":
		m.board.SetDraft(m.composer.Value())
		m.composer.Blur()
		m.mode = modeList
		return m, nil

	case "ctrl+s":
		if m.snap.Pending {
			return m, nil
		}
		m.status = "Sending..."
		return m, m.submit(m.composer.Value())
	}

	// the composer is read-only while a confession is pending
	if m.snap.Pending {
		return m, nil
	}

	var cmd tea.Cmd
	m.composer, cmd = m.composer.Update(msg)
	return m, cmd
}

func (m Model) updatePassphrase(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		m.answerPrompt(promptReply{passphrase: m.passInput.Value()})
		return m, waitForPrompt(m.ctx, m.prompts)

	case "esc", "ctrl+c":
		m.answerPrompt(promptReply{err: errPromptCancelled})
		return m, waitForPrompt(m.ctx, m.prompts)
	}

	var cmd tea.Cmd
	m.passInput, cmd = m.passInput.Update(msg)
	return m, cmd
}

func (m *Model) answerPrompt(r promptReply) {
	if m.prompt != nil {
		m.prompt.reply <- r
	}
	m.prompt = nil
	m.passInput.Reset()
	m.passInput.Blur()
	m.mode = modeList
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	if m.mode == modePassphrase && m.prompt != nil {
		modal := modalStyle.Render(
			titleStyle.Render("Unlock wallet") + "\n\n" +
				"Account " + senderStyle.Render(m.prompt.account.Hex()) + "\n\n" +
				m.passInput.View() + "\n\n" +
				helpStyle.Render("Enter: unlock  Esc: cancel"),
		)
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, modal)
	}

	var b strings.Builder

	// title bar
	account := "not connected"
	if m.snap.Connected {
		account = display.ShortAddress(m.snap.Account.Hex())
	}
	b.WriteString(titleStyle.Render("Confession Board"))
	b.WriteString(dimStyle.Render(fmt.Sprintf("  [%s]  %d confessions", account, len(m.snap.Feed))) + "\n")

	b.WriteString(m.renderHeader() + "\n")

	visible := m.visibleRows()
	end := min(m.offset+visible, len(m.snap.Feed))
	now := m.now()
	for i := m.offset; i < end; i++ {
		b.WriteString(m.renderRow(m.snap.Feed[i], now, i == m.cursor) + "\n")
	}

	rendered := end - m.offset
	if len(m.snap.Feed) == 0 {
		hint := "No confessions yet."
		if !m.snap.Connected {
			hint = "Press c to connect your wallet."
		}
		b.WriteString(normalStyle.Render(dimStyle.Render(hint)) + "\n")
		rendered++
	}
	for i := rendered; i < visible; i++ {
		b.WriteString("\n")
	}

	if m.mode == modeCompose {
		if m.snap.Pending {
			b.WriteString(pendingStyle.Render("Confessing... waiting for confirmation") + "\n")
		} else {
			b.WriteString(m.composer.View() + "\n")
		}
	}

	b.WriteString(m.renderStatus() + "\n")
	b.WriteString(m.renderHelp())

	return b.String()
}

func (m Model) renderHeader() string {
	w := m.colWidths()
	cols := []string{
		pad("From", w.sender),
		pad("When", w.when),
		pad("Confession", w.message),
	}
	return headerStyle.Render(strings.Join(cols, " "))
}

func (m Model) renderRow(c domain.Confession, now time.Time, selected bool) string {
	w := m.colWidths()

	sender := pad(display.ShortAddress(c.Sender.Hex()), w.sender)
	when := pad(display.Calendar(c.OccurredAt, now), w.when)
	message := strings.ReplaceAll(c.Message, "\n", " ")
	if runes := []rune(message); len(runes) > w.message {
		message = string(runes[:w.message-2]) + ".."
	}

	if selected {
		row := selectedStyle.Render(strings.Join([]string{sender, when, message}, " "))
		return lipgloss.PlaceHorizontal(m.width, lipgloss.Left, row)
	}
	return normalStyle.Render(strings.Join([]string{senderStyle.Render(sender), dimStyle.Render(when), message}, " "))
}

func (m Model) renderStatus() string {
	switch {
	case m.snap.Alert != "":
		return alertStyle.Render(m.snap.Alert)
	case m.snap.LastError != "":
		return errorStyle.Render("error: " + m.snap.LastError)
	case m.snap.Pending && m.snap.PendingTx != (common.Hash{}):
		return pendingStyle.Render("pending " + m.snap.PendingTx.Hex())
	case m.snap.Pending:
		return pendingStyle.Render("pending")
	case m.status != "":
		return statusBarStyle.Render(m.status)
	}
	return ""
}

func (m Model) renderHelp() string {
	switch m.mode {
	case modeCompose:
		return helpStyle.Render("  Ctrl+S: confess  Esc: back")
	default:
		if m.snap.Connected {
			return helpStyle.Render("  n: new confession  r: refresh  Esc: dismiss  q: quit")
		}
		return helpStyle.Render("  c: connect wallet  Esc: dismiss  q: quit")
	}
}

type colWidths struct {
	sender  int
	when    int
	message int
}

func (m Model) colWidths() colWidths {
	w := colWidths{
		sender: 17,
		when:   24,
	}
	// message gets the remaining width
	w.message = m.width - w.sender - w.when - 6
	if w.message < 20 {
		w.message = 20
	}
	return w
}

func (m Model) visibleRows() int {
	// title, header, status and help
	rows := m.height - 4
	if m.mode == modeCompose {
		rows -= composerHeight + 2
	}
	if rows < 1 {
		rows = 1
	}
	return rows
}

func (m *Model) clampOffset() {
	visible := m.visibleRows()
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if m.cursor >= m.offset+visible {
		m.offset = m.cursor - visible + 1
	}
	if m.offset < 0 {
		m.offset = 0
	}
}

func pad(s string, width int) string {
	runes := []rune(s)
	if len(runes) >= width {
		return string(runes[:width])
	}
	return s + strings.Repeat(" ", width-len(runes))
}

// Run shows the board until the user quits or ctx is cancelled.
func Run(ctx context.Context, board *domain.Board, prompter *Prompter) error {
	updates, stop := board.Updates()
	defer stop()

	m := NewModel(ctx, board, prompter, updates)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("run tui: %w", err)
	}
	return nil
}
