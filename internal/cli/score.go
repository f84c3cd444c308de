package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Brownie44l1/photo-rater/internal/controller"
	"github.com/Brownie44l1/photo-rater/internal/registry"
)

// RunScore loads the models, then selects and runs each file in turn.
func RunScore(cmd *cobra.Command, args []string) error {
	flag, err := cmd.Flags().GetString("backend")
	if err != nil {
		return err
	}
	preferred, err := preferredBackend(flag)
	if err != nil {
		return err
	}

	cfg, err := modelConfig()
	if err != nil {
		return err
	}

	reg := registry.New(cfg, preferred)
	defer shutdownRuntime()
	defer reg.Close()
	if err := reg.Load(cmd.Context()); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	failed := 0
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(out, "%s: %v\n", path, err)
			failed++
			continue
		}

		c := controller.New(reg)
		state := c.SelectImage(cmd.Context(), controller.SourceLibrary, data)
		if state.Status == controller.StatusOrientation {
			fmt.Fprintf(out, "%s: %s\n", path, state.Status)
			failed++
			continue
		}

		state = c.Run(cmd.Context())
		fmt.Fprintf(out, "%s: %s\n", path, state.Status)
		if state.Result == nil {
			failed++
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d images failed", failed, len(args))
	}
	return nil
}
