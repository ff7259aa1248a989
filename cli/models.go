package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kbukum/whisperd/logger"
	"github.com/kbukum/whisperd/modelstore"
	"github.com/kbukum/whisperd/util"
)

func newModelsCmd(st *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Manage ggml model files for the cli engine",
	}
	cmd.AddCommand(newModelsListCmd(st))
	cmd.AddCommand(newModelsPullCmd(st))
	return cmd
}

func (st *appState) modelStore() (*modelstore.Store, error) {
	cfg, err := st.loadConfig()
	if err != nil {
		return nil, err
	}
	cfg.Logging.Output = "stderr"
	return modelstore.New(cfg.Engine.Models, logger.New(&cfg.Logging, cfg.Name)), nil
}

func newModelsListCmd(st *appState) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List known models and whether they are downloaded",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := st.modelStore()
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tSTATUS\tSIZE\tPATH")
			for _, m := range store.List() {
				status, size := "missing", "-"
				if m.Present {
					status, size = "present", util.FormatSize(m.Bytes)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", m.Name, status, size, m.Path)
			}
			return tw.Flush()
		},
	}
}

func newModelsPullCmd(st *appState) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "pull <model>",
		Short: "Download a named model into the model directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := st.modelStore()
			if err != nil {
				return err
			}
			path, err := store.Pull(cmd.Context(), args[0], force)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Model %s ready at %s\n", args[0], path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Download again even when the file exists")
	return cmd
}
