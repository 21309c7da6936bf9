package cli

import (
	"os"

	"github.com/spf13/cobra"

	"template-service/internal/app"
	"template-service/internal/common/logging"
	"template-service/internal/worker"
)

const workerCommand = "worker"

func newWorkerCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:    workerCommand,
		Short:  "Run one job from stdin (process unit)",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tasks, err := app.NewTasks(g.cfg)
			if err != nil {
				return err
			}
			code := worker.Main(cmd.Context(), tasks, cmd.InOrStdin(), os.Stdout)
			logging.MustSync()
			if code != worker.ExitOK {
				os.Exit(code)
			}
			return nil
		},
	}
}
