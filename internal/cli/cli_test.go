package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	// process units would re-exec the test binary
	t.Setenv("ISOLATION_MODE", "thread")
	cmd := newRootCommand("test")
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--env-file", filepath.Join(t.TempDir(), "missing.env"), "--log-level", "error"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

const yamlJob = `
render:
  renderingMethod: static
  subject: "Order {{ data.id }} x{{ data.qty }}"
context:
  data:
    id: A-1
    qty: 3
`

func TestRenderYAML(t *testing.T) {
	out, err := run(t, "", "render", writeFile(t, "job.yaml", yamlJob))
	require.NoError(t, err)

	var res map[string]map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "Order A-1 x3", res["resolve"]["subject"])
}

func TestRenderJSONFromStdin(t *testing.T) {
	out, err := run(t, `{"render": "<b>{{ data.name }}</b>", "context": {"data": {"name": "Ada"}}}`, "render", "-")
	require.NoError(t, err)
	assert.JSONEq(t, `{"resolve": "<b>Ada</b>"}`, out)
}

func TestRenderFaultIsPrinted(t *testing.T) {
	out, err := run(t, `{"render": "{% if %}"}`, "render", "-")
	require.NoError(t, err)
	assert.Contains(t, out, `"error"`)
}

func TestRenderRejectsBadInput(t *testing.T) {
	_, err := run(t, "", "render", filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)

	_, err = run(t, "- a\n- b\n", "render", "-")
	assert.Error(t, err)

	_, err = run(t, "{}", "render", "--isolation", "fiber", "-")
	assert.Error(t, err)
}

func TestServeRequiresKey(t *testing.T) {
	t.Setenv("KEY", "")
	_, err := run(t, "", "serve", "--port", "18080")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "KEY")
}
