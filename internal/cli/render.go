package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"template-service/internal/app"
	"template-service/internal/common/logging"
	"template-service/internal/dispatcher"
)

func newRenderCommand(g *globals) *cobra.Command {
	var (
		task      string
		method    string
		isolation string
		timeout   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "render JOBFILE",
		Short: "Render one job file and print the result",
		Long: `Render one job locally, through the same dispatcher the server uses.

JOBFILE holds a job payload, {render, context}, as YAML or JSON. Use -
to read it from stdin. The result is printed as {"resolve": ...} or
{"error": ...}. A rejected job exits non-zero.`,
		Example: `  # Render a job file
  template-service render job.yaml

  # Force dynamic rendering in a child process
  template-service render --method dynamic --isolation process job.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer logging.MustSync()
			cfg := g.cfg
			flags := cmd.Flags()
			if flags.Changed("method") {
				cfg.RenderMethod = method
			}
			if flags.Changed("isolation") {
				cfg.IsolationMode = isolation
			}
			if flags.Changed("timeout") {
				cfg.JobTimeout = timeout
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			payload, err := readJob(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}

			tasks, err := app.NewTasks(cfg)
			if err != nil {
				return err
			}
			dc := app.DispatcherConfig(cfg)
			dc.Units = 1
			d, err := dispatcher.New(dc, tasks)
			if err != nil {
				return err
			}
			defer d.Close(cmd.Context())

			res, err := d.Submit(cmd.Context(), task, payload)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			enc.SetEscapeHTML(false)
			return enc.Encode(res)
		},
	}

	cmd.Flags().StringVar(&task, "task", dispatcher.TaskRender, "task to run")
	cmd.Flags().StringVar(&method, "method", "", `force "static" or "dynamic" rendering`)
	cmd.Flags().StringVar(&isolation, "isolation", "process", `isolation mode, "process" or "thread"`)
	cmd.Flags().DurationVar(&timeout, "timeout", 15*time.Second, "wall-clock limit of the job")

	return cmd
}

// readJob reads a YAML or JSON job file. Values are normalized to what a
// JSON request body decodes to.
func readJob(stdin io.Reader, path string) (map[string]any, error) {
	var (
		raw []byte
		err error
	)
	if path == "-" {
		raw, err = io.ReadAll(stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read job: %w", err)
	}

	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse job %s: %w", path, err)
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("parse job %s: %w", path, err)
	}
	var payload map[string]any
	if err := json.Unmarshal(b, &payload); err != nil {
		return nil, fmt.Errorf("job %s must be an object", path)
	}
	return payload, nil
}
