package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kctx.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

const testConfig = `
log: {level: warn}
metrics: {enabled: false}
mitigation: {window: 50us}
ports:
  - name: a
    peer: b
    rate: 2000
  - name: b
    peer: a
    use_task: false
    channels: none
    rate: 0
`

func TestBuildCLI(t *testing.T) {
	cmd := BuildCLI()
	assert.Equal(t, "kctx", cmd.Use)
	assert.Equal(t, Version, cmd.Version)

	names := make(map[string]bool)
	for _, c := range cmd.Commands() {
		names[c.Use] = true
	}
	assert.True(t, names["run"])
	assert.True(t, names["check"])
	assert.True(t, names["version"])

	flag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, flag)
	assert.Equal(t, "c", flag.Shorthand)
}

func TestVersionCommand(t *testing.T) {
	cmd := BuildCLI()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "kctx "+Version+"\n", out.String())
}

func TestCheckCommand(t *testing.T) {
	path := writeConfig(t, testConfig)
	cmd := BuildCLI()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"check", "-c", path})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "mitigation window: 50µs")
	assert.Contains(t, out.String(), "port a -> b: task=true channels=event")
	assert.Contains(t, out.String(), "port b -> a: task=false channels=none")
}

func TestCheckCommand_Invalid(t *testing.T) {
	path := writeConfig(t, "ports: [{name: a, channels: pipe}]")
	cmd := BuildCLI()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"check", "-c", path})
	assert.ErrorContains(t, cmd.Execute(), "unknown channels")
}

func TestRunCommand_BoundedDuration(t *testing.T) {
	path := writeConfig(t, testConfig)
	cmd := BuildCLI()
	var logs bytes.Buffer
	cmd.SetErr(&logs)
	cmd.SetArgs([]string{"run", "-c", path, "--duration", "100ms"})
	require.NoError(t, cmd.Execute())
}

func TestRunCommand_MissingConfig(t *testing.T) {
	cmd := BuildCLI()
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"run", "-c", filepath.Join(t.TempDir(), "none.yaml"), "--duration", "10ms"})
	assert.ErrorContains(t, cmd.Execute(), "failed to load config")
}
