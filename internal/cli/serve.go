package cli

import (
	"time"

	"github.com/spf13/cobra"

	"template-service/internal/app"
	"template-service/internal/common/logging"
)

func newServeCommand(g *globals) *cobra.Command {
	var (
		port       string
		units      int
		isolation  string
		jobTimeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP front end",
		Long: `Serve POST /worker/{task}?key=KEY.

The request body is the job payload. Flags override the environment.`,
		Example: `  # Serve on port 3000 with child process units
  template-service serve --port 3000 --isolation process`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			defer logging.MustSync()
			cfg := g.cfg
			flags := cmd.Flags()
			if flags.Changed("port") {
				cfg.Port = port
			}
			if flags.Changed("units") {
				cfg.UnitCount = units
			}
			if flags.Changed("isolation") {
				cfg.IsolationMode = isolation
			}
			if flags.Changed("job-timeout") {
				cfg.JobTimeout = jobTimeout
			}
			return app.Run(cfg)
		},
	}

	cmd.Flags().StringVar(&port, "port", "8080", "listen port")
	cmd.Flags().IntVar(&units, "units", 0, "concurrent isolation units")
	cmd.Flags().StringVar(&isolation, "isolation", "process", `isolation mode, "process" or "thread"`)
	cmd.Flags().DurationVar(&jobTimeout, "job-timeout", 15*time.Second, "wall-clock limit of one job")

	return cmd
}
