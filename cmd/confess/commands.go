package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/console/prompt"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/blackmichael/confession-board/internal/display"
	"github.com/blackmichael/confession-board/internal/domain"
	"github.com/blackmichael/confession-board/internal/live"
	"github.com/blackmichael/confession-board/internal/wallet"
)

func newListCmd(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print every confession, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := a.dial(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer client.Close()

			feed, err := client.ListConfessions(cmd.Context(), common.Address{})
			if err != nil {
				return fmt.Errorf("list confessions: %w", err)
			}
			if limit > 0 && len(feed) > limit {
				feed = feed[:limit]
			}

			return printFeed(cmd.OutOrStdout(), feed, time.Now())
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "print at most this many confessions (0 for all)")
	return cmd
}

func printFeed(w io.Writer, feed []domain.Confession, now time.Time) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "WHEN\tFROM\tCONFESSION")
	for _, c := range feed {
		fmt.Fprintf(tw, "%s\t%s\t%s\n",
			display.Calendar(c.OccurredAt, now),
			display.ShortAddress(c.Sender.Hex()),
			strings.ReplaceAll(c.Message, "\n", " "),
		)
	}
	return tw.Flush()
}

func newSubmitCmd(a *app) *cobra.Command {
	var noWait bool

	cmd := &cobra.Command{
		Use:   "submit MESSAGE...",
		Short: "Send a confession and wait for it to be mined",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			var ask wallet.PromptFunc
			if a.cfg.Wallet.Passphrase == "" {
				ask = passphrasePrompt(cmd.InOrStdin(), cmd.ErrOrStderr())
			}
			gateway, err := wallet.Open(a.cfg.Wallet, ask, a.logger)
			if err != nil {
				return fmt.Errorf("open wallet: %w", err)
			}

			client, err := a.dial(ctx, gateway)
			if err != nil {
				return err
			}
			defer client.Close()

			board := domain.NewBoard(gateway, client, nil, a.cfg.ConfirmTimeout, a.logger)
			if err := connect(ctx, board); err != nil {
				return err
			}

			sub, err := board.Submit(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "sent %s\n", sub.Hash().Hex())

			if noWait {
				return nil
			}
			if err := sub.Wait(ctx); err != nil {
				return fmt.Errorf("confession %s: %w", sub.Hash().Hex(), err)
			}
			fmt.Fprintln(out, "confirmed")
			return nil
		},
	}

	cmd.Flags().BoolVar(&noWait, "no-wait", false, "return once the transaction is sent")
	return cmd
}

// connect opens a session, prompting only when no account is authorized yet.
func connect(ctx context.Context, board *domain.Board) error {
	if err := board.CheckIfWalletIsConnected(ctx); err != nil {
		return err
	}
	if board.Snapshot().Connected {
		return nil
	}

	err := board.ConnectWallet(ctx)
	switch {
	case errors.Is(err, domain.ErrNoWallet):
		return errors.New(domain.NoWalletAlert)
	case errors.Is(err, domain.ErrUserRejected):
		return errors.New("wallet authorization declined")
	}
	return err
}

// passwordPrompter is the part of prompt.UserPrompter used here.
type passwordPrompter interface {
	PromptPassword(prompt string) (string, error)
}

// passphrasePrompt reads without echo when in is a terminal and falls back to
// plain lines for piped input.
func passphrasePrompt(in io.Reader, out io.Writer) wallet.PromptFunc {
	if f, ok := in.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		return terminalPassphrase(prompt.Stdin)
	}
	return readPassphrase(in, out)
}

func terminalPassphrase(p passwordPrompter) wallet.PromptFunc {
	return func(_ context.Context, account common.Address) (string, error) {
		return p.PromptPassword(fmt.Sprintf("Passphrase for %s: ", account.Hex()))
	}
}

// readPassphrase prompts on out and reads one line from in.
func readPassphrase(in io.Reader, out io.Writer) wallet.PromptFunc {
	reader := bufio.NewReader(in)
	return func(_ context.Context, account common.Address) (string, error) {
		fmt.Fprintf(out, "Passphrase for %s: ", account.Hex())
		line, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
		return strings.TrimRight(line, "\r\n"), nil
	}
}

func newWatchCmd(a *app) *cobra.Command {
	var history bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print new confessions as they are mined",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			client, err := a.dial(ctx, nil)
			if err != nil {
				return err
			}
			defer client.Close()

			if history {
				feed, err := client.ListConfessions(ctx, common.Address{})
				if err != nil {
					return fmt.Errorf("list confessions: %w", err)
				}
				// oldest first so live entries continue the stream
				for i := len(feed) - 1; i >= 0; i-- {
					printConfession(out, feed[i])
				}
			}

			subscriber := live.NewSubscriber(client, a.cfg.ReconnectDelay, a.logger)
			id, err := subscriber.Subscribe(ctx, func(c domain.Confession) {
				printConfession(out, c)
			})
			if err != nil {
				return err
			}

			<-ctx.Done()
			if err := subscriber.Unsubscribe(id); err != nil {
				a.logger.Error("failed to unsubscribe", "error", err)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&history, "history", false, "print existing confessions before watching")
	return cmd
}

func printConfession(w io.Writer, c domain.Confession) {
	fmt.Fprintf(w, "[%s] %s: %s\n",
		c.OccurredAt.Local().Format(time.DateTime),
		display.ShortAddress(c.Sender.Hex()),
		c.Message,
	)
}
