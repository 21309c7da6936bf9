// Package cli holds the cobra commands of the template-service binary.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"template-service/internal/app"
	"template-service/internal/common/logging"
	"template-service/internal/config"
)

// globals are shared by every command.
type globals struct {
	envFile  string
	logLevel string
	cfg      *config.Config
}

// Execute runs the root command
func Execute(ctx context.Context, version string) error {
	app.Version = version
	return newRootCommand(version).ExecuteContext(ctx)
}

func newRootCommand(version string) *cobra.Command {
	g := &globals{}

	rootCmd := &cobra.Command{
		Use:   "template-service",
		Short: "Render form submission templates in isolated units",
		Long: `template-service renders text templates against form submissions.

Every job runs in its own isolation unit with a timeout. Field logic in
form definitions runs in a sandbox that sees nothing but its arguments.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return g.init(cmd.Name() == workerCommand)
		},
	}

	rootCmd.PersistentFlags().StringVar(&g.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	rootCmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "log level (overrides LOG_LEVEL)")

	serve := newServeCommand(g)
	rootCmd.AddCommand(serve)
	rootCmd.AddCommand(newWorkerCommand(g))
	rootCmd.AddCommand(newRenderCommand(g))

	// serve is the default
	rootCmd.Flags().AddFlagSet(serve.Flags())
	rootCmd.RunE = serve.RunE

	return rootCmd
}

// init loads the environment and configuration and sets up logging. A
// process unit skips the dotenv file: its settings come from the
// dispatcher, and the file may hold the shared key.
func (g *globals) init(unit bool) error {
	name := ""
	if unit {
		name = "unit"
	} else if err := godotenv.Load(g.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", g.envFile, err)
	}
	g.cfg = config.Load()
	if g.logLevel != "" {
		g.cfg.LogLevel = g.logLevel
	}
	return logging.InitGlobalLogger(g.cfg.LogLevel, g.cfg.LogFormat, g.cfg.LogFile, name)
}
