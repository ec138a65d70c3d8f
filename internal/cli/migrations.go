package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/storekit/internal/compose"
	"github.com/roach88/storekit/internal/config"
	"github.com/roach88/storekit/internal/demo"
	"github.com/roach88/storekit/internal/store"
)

// MigrationsOptions holds flags for the migrations command.
type MigrationsOptions struct {
	*RootOptions
	ConfigPath string
}

// MigrationStatus is one resolved migration.
type MigrationStatus struct {
	Name    string `json:"name"`
	Order   int    `json:"order"`
	Applied bool   `json:"applied"`
	Seq     int64  `json:"seq,omitempty"`
}

// NewMigrationsCommand creates the migrations command.
func NewMigrationsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MigrationsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "migrations",
		Short: "List data migrations in execution order",
		Long: `List the data migrations of the configured namespaces in the order serve
would run them, and whether each has been applied to the database.

Nothing is applied. A missing database reports every migration as pending.

Examples:
  storekit migrations --config storekit.yaml
  storekit migrations --config storekit.yaml --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrations(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ConfigPath, "config", "", "path to YAML config file")

	return cmd
}

func runMigrations(ctx context.Context, opts *MigrationsOptions, cmd *cobra.Command) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	cat, err := demo.Catalog()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build catalog", err)
	}
	resolved, err := compose.ResolveMigrations(cat, cfg.Namespaces)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to resolve migrations", err)
	}

	applied := make(map[string]int64)
	if _, err := os.Stat(cfg.File); err == nil {
		s, err := store.Open(cfg.File)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer s.Close()
		list, err := s.AppliedMigrations(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read applied migrations", err)
		}
		for _, m := range list {
			applied[m.Name] = m.Seq
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return WrapExitError(ExitCommandError, "failed to stat database", err)
	}

	statuses := make([]MigrationStatus, 0, len(resolved))
	for _, d := range resolved {
		seq, ok := applied[d.Name]
		statuses = append(statuses, MigrationStatus{Name: d.Name, Order: d.Order, Applied: ok, Seq: seq})
	}

	out := opts.formatter(cmd)
	if opts.Format == "json" {
		return out.Success(statuses)
	}

	w := cmd.OutOrStdout()
	if len(statuses) == 0 {
		fmt.Fprintln(w, "No migrations.")
		return nil
	}
	for _, st := range statuses {
		mark := "pending"
		if st.Applied {
			mark = fmt.Sprintf("applied at state %d", st.Seq)
		}
		fmt.Fprintf(w, "%5d  %-32s %s\n", st.Order, st.Name, mark)
	}
	return nil
}
