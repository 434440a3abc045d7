package cmd

import (
	"errors"
	"fmt"
	"io"
	"math/big"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/OKaluzny/voting-dapp/internal/dapp"
	"github.com/OKaluzny/voting-dapp/internal/lifecycle"
	"github.com/OKaluzny/voting-dapp/pkg/models"
)

const oneVoteHint = "Note: each wallet can vote once per voting session."

var candidatesCmd = &cobra.Command{
	Use:     "candidates",
	Aliases: []string{"list"},
	Short:   "List candidates and their vote counts",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, closeFn, err := connected(cmd.Context())
		if err != nil {
			return err
		}
		defer closeFn()

		printCandidates(cmd.OutOrStdout(), client.Candidates())
		return nil
	},
}

var voteCmd = &cobra.Command{
	Use:   "vote <candidate-id>",
	Short: "Vote for a candidate",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseCandidateID(args[0])
		if err != nil {
			return err
		}
		return runOperation(cmd, func(c *dapp.Client) (*lifecycle.Outcome, error) {
			return c.Vote(cmd.Context(), id)
		})
	},
}

var addCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a candidate",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := strings.Join(args, " ")
		return runOperation(cmd, func(c *dapp.Client) (*lifecycle.Outcome, error) {
			return c.AddCandidate(cmd.Context(), name)
		})
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset all vote counts and start a new voting session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOperation(cmd, func(c *dapp.Client) (*lifecycle.Outcome, error) {
			return c.ResetVotes(cmd.Context())
		})
	},
}

func runOperation(cmd *cobra.Command, op func(c *dapp.Client) (*lifecycle.Outcome, error)) error {
	client, _, closeFn, err := connected(cmd.Context())
	if err != nil {
		return err
	}
	defer closeFn()

	w := cmd.OutOrStdout()
	out, err := op(client)
	if err != nil {
		printUnresolved(w, client)
		return err
	}
	printOutcome(w, out)
	printCandidates(w, client.Candidates())
	return nil
}

func parseCandidateID(s string) (uint64, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: candidate id %q", models.ErrInvalidArgument, s)
	}
	return id, nil
}

func printCandidates(w io.Writer, candidates []models.Candidate) {
	if len(candidates) == 0 {
		fmt.Fprintln(w, "No candidates yet.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tVOTES")
	for _, c := range candidates {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", c.ID, c.Name, formatCount(c.VoteCount))
	}
	tw.Flush()
}

func printOutcome(w io.Writer, out *lifecycle.Outcome) {
	if out.Receipt != nil {
		fmt.Fprintf(w, "%s confirmed in block %s (tx %s)\n",
			out.Operation.Kind, formatCount(out.Receipt.BlockNumber), out.Receipt.TxHash)
	}
	if out.RefreshErr != nil {
		fmt.Fprintf(w, "warning: candidate list may be stale: %v\n", out.RefreshErr)
	}
}

func printUnresolved(w io.Writer, client *dapp.Client) {
	ops, err := client.Unresolved()
	if err != nil || len(ops) == 0 {
		return
	}
	fmt.Fprintln(w, "The following transactions were sent but not confirmed in time.")
	fmt.Fprintln(w, "They may still be mined:")
	printPending(w, ops, time.Now())
}

func printPending(w io.Writer, ops []models.PendingOperation, now time.Time) {
	if len(ops) == 0 {
		fmt.Fprintln(w, "No unresolved operations.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tTX\tSENT")
	for _, op := range ops {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", op.Kind, op.TxHash, humanize.RelTime(op.SubmittedAt, now, "ago", "from now"))
	}
	tw.Flush()
}

// formatCount groups digits of n without overflowing int64.
func formatCount(n uint64) string {
	return humanize.BigComma(new(big.Int).SetUint64(n))
}

// describe turns lifecycle errors into console messages.
func describe(err error) string {
	switch {
	case errors.Is(err, models.ErrRejectedConcurrentOperation):
		return "another operation is still in progress"
	case errors.Is(err, models.ErrNoBinding):
		return "connect a wallet first"
	case errors.Is(err, models.ErrInvalidArgument):
		return err.Error()
	case errors.Is(err, models.ErrCallReverted):
		return "transaction reverted: " + err.Error()
	case errors.Is(err, models.ErrConfirmationTimeout):
		return "no confirmation in time; the transaction may still be mined (see 'pending')"
	case errors.Is(err, models.ErrConnectionRejected):
		return "wallet connection rejected"
	default:
		return err.Error()
	}
}
