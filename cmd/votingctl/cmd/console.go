package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/OKaluzny/voting-dapp/internal/config"
	"github.com/OKaluzny/voting-dapp/internal/dapp"
	"github.com/OKaluzny/voting-dapp/internal/lifecycle"
	"github.com/OKaluzny/voting-dapp/internal/view"
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Interactive voting console",
	Args:  cobra.NoArgs,
	RunE:  runConsole,
}

const consoleHelp = `Commands:
  connect          connect (or switch) the wallet
  disconnect       drop the wallet
  list             re-read the candidate list
  add [name]       add a candidate; without a name retries the last one
  vote <id>        vote for a candidate
  reset            reset all vote counts
  pending          transactions whose outcome is unknown
  help             this text
  quit             leave the console`

// console is the interactive front end. Commands run one at a time on the
// prompt loop, so rendering never races with itself.
type console struct {
	client *dapp.Client
	cfg    config.Config
	out    io.Writer

	// draft is the candidate name kept until an add succeeds.
	draft string
}

func runConsole(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	client, cfg, closeFn, err := dial(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	c := &console{client: client, cfg: cfg, out: cmd.OutOrStdout()}
	client.Subscribe(c.onTransition)

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)
	line.SetCompleter(completeCommand)

	fmt.Fprintf(c.out, "Voting on %s (chain %d), contract %s\n", cfg.ChainLabel, cfg.ChainID, cfg.ContractAddress)
	fmt.Fprintln(c.out, "Type 'help' for commands.")
	c.render()

	for {
		input, err := line.Prompt(c.prompt())
		if errors.Is(err, liner.ErrPromptAborted) {
			continue
		}
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(c.out)
			return nil
		}
		if err != nil {
			return err
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		quit, err := c.exec(ctx, input)
		if err != nil {
			fmt.Fprintln(c.out, "error:", describe(err))
		}
		if quit || ctx.Err() != nil {
			return nil
		}
	}
}

func completeCommand(line string) []string {
	var out []string
	for _, name := range []string{"connect", "disconnect", "list", "add ", "vote ", "reset", "pending", "help", "quit"} {
		if strings.HasPrefix(name, strings.ToLower(line)) {
			out = append(out, name)
		}
	}
	return out
}

func (c *console) prompt() string {
	if id, ok := c.client.Identity(); ok {
		addr := id.Address.Hex()
		return fmt.Sprintf("%s %s…%s> ", c.cfg.ChainLabel, addr[:6], addr[len(addr)-4:])
	}
	return c.cfg.ChainLabel + "> "
}

func (c *console) exec(ctx context.Context, input string) (quit bool, err error) {
	verb, rest, _ := strings.Cut(input, " ")
	rest = strings.TrimSpace(rest)

	switch strings.ToLower(verb) {
	case "quit", "exit":
		return true, nil
	case "help":
		fmt.Fprintln(c.out, consoleHelp)
		return false, nil
	case "connect":
		id, err := c.client.Connect(ctx)
		if id != nil {
			fmt.Fprintf(c.out, "Account %s\n", id)
		}
		c.render()
		return false, err
	case "disconnect":
		c.client.Disconnect()
		c.render()
		return false, nil
	case "list":
		if err := c.client.Refresh(ctx); err != nil {
			return false, err
		}
		c.render()
		return false, nil
	case "pending":
		ops, err := c.client.Unresolved()
		if err != nil {
			return false, err
		}
		printPending(c.out, ops, time.Now())
		return false, nil
	case "add":
		if rest != "" {
			if !c.client.View().InputEnabled() {
				return false, fmt.Errorf("candidate name is read-only while loading")
			}
			c.draft = rest
		}
		return false, c.act(func() (*lifecycle.Outcome, error) {
			return c.client.AddCandidate(ctx, c.draft)
		}, func() { c.draft = "" })
	case "vote":
		id, err := parseCandidateID(rest)
		if err != nil {
			return false, err
		}
		return false, c.act(func() (*lifecycle.Outcome, error) {
			return c.client.Vote(ctx, id)
		}, nil)
	case "reset":
		return false, c.act(func() (*lifecycle.Outcome, error) {
			return c.client.ResetVotes(ctx)
		}, nil)
	default:
		return false, fmt.Errorf("unknown command %q, type 'help'", verb)
	}
}

// act runs a mutating operation if the view allows it.
func (c *console) act(op func() (*lifecycle.Outcome, error), onSuccess func()) error {
	if v := c.client.View(); !v.ActionsEnabled {
		if !v.WalletConnected {
			return fmt.Errorf("actions are disabled until a wallet is connected")
		}
		return fmt.Errorf("actions are disabled while loading")
	}
	out, err := op()
	if err != nil {
		return err
	}
	if onSuccess != nil {
		onSuccess()
	}
	printOutcome(c.out, out)
	c.render()
	return nil
}

func (c *console) onTransition(t lifecycle.Transition) {
	switch t.To {
	case lifecycle.Submitting:
		fmt.Fprintf(c.out, "Loading... sending %s\n", t.Kind)
	case lifecycle.AwaitingConfirmation:
		fmt.Fprintln(c.out, "Loading... waiting for confirmation")
	}
}

// render prints the page: wallet button, candidate list and hint.
func (c *console) render() {
	v := c.client.View()
	fmt.Fprintf(c.out, "[%s]\n", v.ConnectLabel())
	if v.Loading {
		fmt.Fprintln(c.out, "Loading...")
	}
	if !v.WalletConnected {
		return
	}
	printCandidates(c.out, c.client.Candidates())
	if c.draft != "" {
		if v.InputEnabled() {
			fmt.Fprintf(c.out, "Candidate name: %s\n", c.draft)
		} else {
			fmt.Fprintf(c.out, "Candidate name: %s (locked)\n", c.draft)
		}
	}
	fmt.Fprintln(c.out, actionsLine(v))
	fmt.Fprintln(c.out, oneVoteHint)
}

func actionsLine(v view.State) string {
	if v.ActionsEnabled {
		return "Actions: add, vote, reset"
	}
	return "Actions: disabled"
}
