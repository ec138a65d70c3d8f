package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/storekit/internal/store"
)

// StatesOptions holds flags for the states command.
type StatesOptions struct {
	*RootOptions
	Database string
}

// StateSummary is one committed transaction.
type StateSummary struct {
	Seq         int64  `json:"seq"`
	TxID        string `json:"tx_id"`
	CommittedAt string `json:"committed_at"`
	Migration   string `json:"migration,omitempty"`
	Changes     int    `json:"changes"`
}

// NewStatesCommand creates the states command.
func NewStatesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "states",
		Short: "List committed states of a store",
		Long: `List every committed transaction of a store, oldest first. Each state can be
inspected with the snapshot command.

Examples:
  storekit states --db ./storekit.db
  storekit states --db ./storekit.db --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStates(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runStates(ctx context.Context, opts *StatesOptions, cmd *cobra.Command) error {
	s, err := openExisting(opts.Database)
	if err != nil {
		return err
	}
	defer s.Close()

	states, err := s.States(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read states", err)
	}

	summaries := make([]StateSummary, len(states))
	for i, st := range states {
		summaries[i] = StateSummary{
			Seq:         st.Seq,
			TxID:        st.TxID.String(),
			CommittedAt: st.CommittedAt.Format(time.RFC3339Nano),
			Migration:   st.Migration,
			Changes:     st.Changes,
		}
	}

	if opts.Format == "json" {
		return opts.formatter(cmd).Success(summaries)
	}

	w := cmd.OutOrStdout()
	if len(summaries) == 0 {
		fmt.Fprintln(w, "No states found in database.")
		return nil
	}
	for _, st := range summaries {
		fmt.Fprintf(w, "%5d  %s  %s  %d change(s)", st.Seq, st.CommittedAt, st.TxID, st.Changes)
		if st.Migration != "" {
			fmt.Fprintf(w, "  [%s]", st.Migration)
		}
		fmt.Fprintln(w)
	}
	return nil
}

// openExisting opens a store file that must already exist.
func openExisting(path string) (*store.Store, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, NewExitError(ExitCommandError, fmt.Sprintf("database not found: %s", path))
		}
		return nil, WrapExitError(ExitCommandError, "failed to stat database", err)
	}
	s, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return s, nil
}
