package cli

import (
	"context"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/kbukum/whisperd/app"
	"github.com/kbukum/whisperd/bootstrap"
	"github.com/kbukum/whisperd/config"
	"github.com/kbukum/whisperd/version"
)

type appState struct {
	configFile string
	envFile    string

	out    io.Writer
	errOut io.Writer

	// buildOpts are appended to every app.Build call; tests inject engines here.
	buildOpts []app.Option
	// appOpts are appended to every app.New call.
	appOpts []bootstrap.Option
	// run replaces Run for serve; tests use it to stop right after startup.
	run func(ctx context.Context, a *bootstrap.App[*app.Config]) error
}

// NewRootCmd builds the whisperd command tree.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&appState{out: os.Stdout, errOut: os.Stderr})
}

func newRootCmd(st *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "whisperd",
		Short:         "Speech-to-text inference service backed by a pool of whisper workers",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version.Get().Short(),
	}
	cmd.SetOut(st.out)
	cmd.SetErr(st.errOut)
	cmd.SetVersionTemplate("{{.Name}} {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&st.configFile, "config", "", "Path to config.yml (searched in standard locations when empty)")
	cmd.PersistentFlags().StringVar(&st.envFile, "env-file", "", "Path to a .env file (searched in standard locations when empty)")

	cmd.AddCommand(newServeCmd(st))
	cmd.AddCommand(newTranscribeCmd(st))
	cmd.AddCommand(newModelsCmd(st))
	cmd.AddCommand(newVersionCmd())
	return cmd
}

func (st *appState) loadConfig() (*app.Config, error) {
	var opts []config.LoaderOption
	if st.configFile != "" {
		opts = append(opts, config.WithConfigFile(st.configFile))
	}
	if st.envFile != "" {
		opts = append(opts, config.WithEnvFile(st.envFile))
	}
	return app.Load(opts...)
}
