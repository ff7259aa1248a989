package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kbukum/whisperd/app"
	"github.com/kbukum/whisperd/bootstrap"
)

func newServeCmd(st *appState) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Load the workers and serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := st.loadConfig()
			if err != nil {
				return err
			}
			opts := append([]bootstrap.Option{bootstrap.WithGracefulTimeout(cfg.GracefulTimeout())}, st.appOpts...)
			a, err := app.New(cfg, opts...)
			if err != nil {
				return err
			}
			if _, err := app.Build(cmd.Context(), a, st.buildOpts...); err != nil {
				return fmt.Errorf("build: %w", err)
			}

			run := st.run
			if run == nil {
				run = func(ctx context.Context, a *bootstrap.App[*app.Config]) error { return a.Run(ctx) }
			}
			return run(cmd.Context(), a)
		},
	}
}
