package cli

import (
	"context"
	"fmt"
	"net"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/storekit/internal/compose"
	"github.com/roach88/storekit/internal/config"
	"github.com/roach88/storekit/internal/crud"
	"github.com/roach88/storekit/internal/demo"
	"github.com/roach88/storekit/internal/httpapi"
	"github.com/roach88/storekit/internal/plugin/history"
	"github.com/roach88/storekit/internal/plugin/search"
	"github.com/roach88/storekit/internal/plugin/validate"
	"github.com/roach88/storekit/internal/store"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	ConfigPath string

	// ready is called with the bound address once the listener is open.
	ready func(addr string)
	// storeOptions are passed to the composed store.
	storeOptions []store.Option
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Compose the store and serve the HTTP API",
		Long: `Compose the store from the configured namespaces and serve the HTTP API
until interrupted.

Composition opens the database, runs the initializer on a new store, applies
pending data migrations in order and registers the entity types. Any failure
aborts startup.

Exit codes:
  0 - Server stopped cleanly
  1 - Server failed while running
  2 - Startup failure (bad config, composition failed, address in use)

Examples:
  storekit serve --config storekit.yaml
  STOREKIT_LISTEN=:9090 storekit serve --config storekit.yaml`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ConfigPath, "config", "", "path to YAML config file")

	return cmd
}

func runServe(ctx context.Context, opts *ServeOptions, cmd *cobra.Command) error {
	logger := opts.Logger(cmd.ErrOrStderr())

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	cat, err := demo.Catalog()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build catalog", err)
	}

	hist, srch := history.New(), search.New(logger)
	composer := compose.New(compose.Options{
		Config:       cfg,
		Catalog:      cat,
		Initializer:  demo.Initialize,
		History:      hist,
		Search:       srch,
		Validate:     validate.New(),
		StoreOptions: opts.storeOptions,
		Logger:       logger,
	})
	s, err := composer.Compose(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "startup failed", err)
	}
	defer s.Close()

	resources := make([]crud.Resource, 0, len(composer.Entities()))
	for _, b := range composer.Entities() {
		resources = append(resources, b.Bind(s, logger))
	}
	handler, err := httpapi.New(httpapi.Options{
		Resources: resources,
		History:   hist,
		Search:    srch,
		Records:   s,
		States:    s,
		Logger:    logger,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "startup failed", err)
	}

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("cannot listen on %s", cfg.Listen), err)
	}
	addr := ln.Addr().String()
	fmt.Fprintf(cmd.OutOrStdout(), "Serving %d entity type(s) from %s on http://%s\n", len(resources), s.Path(), addr)
	if opts.ready != nil {
		opts.ready(addr)
	}

	if err := httpapi.NewServer(handler, logger).Serve(ctx, ln); err != nil {
		return WrapExitError(ExitFailure, "server failed", err)
	}
	return nil
}
