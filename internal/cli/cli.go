// Package cli holds the photorater commands.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Brownie44l1/photo-rater/internal/envconfig"
	"github.com/Brownie44l1/photo-rater/internal/model"
	"github.com/Brownie44l1/photo-rater/internal/runtime"
)

// NewCLI returns the root command. Without a subcommand it serves.
func NewCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "photorater",
		Short:         "Score photos with an on-device model",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(),
				&slog.HandlerOptions{Level: envconfig.LogLevel()})))
		},
		RunE: RunServer,
	}

	serveCmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"start"},
		Short:   "Start the HTTP server",
		Args:    cobra.NoArgs,
		RunE:    RunServer,
	}

	scoreCmd := &cobra.Command{
		Use:   "score IMAGE [IMAGE...]",
		Short: "Score image files and print the results",
		Args:  cobra.MinimumNArgs(1),
		RunE:  RunScore,
	}
	scoreCmd.Flags().String("backend", "", "Backend to score with (gpu or cpu, default from PHOTORATER_BACKEND or gpu)")

	rootCmd.AddCommand(serveCmd, scoreCmd)
	return rootCmd
}

// modelConfig builds the Rater configuration from the environment.
func modelConfig() (model.Config, error) {
	kind, err := runtime.ParseKind(envconfig.Runtime())
	if err != nil {
		return model.Config{}, err
	}

	if lib := envconfig.ORTLibrary(); lib != "" {
		runtime.SetONNXLibrary(lib)
	}

	return model.Config{
		ModelDir:    envconfig.Models(),
		ModelName:   envconfig.ModelName(),
		Runtime:     kind,
		GPUDelegate: runtime.Delegate(envconfig.GPUDelegate()),
	}, nil
}

// preferredBackend resolves the flag, then the environment, then gpu.
func preferredBackend(flag string) (model.Backend, error) {
	s := flag
	if s == "" {
		s = envconfig.Backend()
	}
	if s == "" {
		return model.BackendGPU, nil
	}
	return model.ParseBackend(s)
}

func shutdownRuntime() {
	if err := runtime.Shutdown(); err != nil {
		fmt.Fprintf(os.Stderr, "Error destroying runtime: %v\n", err)
	}
}
