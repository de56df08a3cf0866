package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/leapstack-labs/starload/internal/cli/commands"
	"github.com/leapstack-labs/starload/internal/cli/config"
	"github.com/leapstack-labs/starload/internal/journal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// project creates a working directory with a lib/ directory and chdirs into it.
func project(t *testing.T, files map[string]string) string {
	t.Helper()
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	for rel, src := range files {
		path := filepath.Join(dir, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	}
	t.Chdir(dir)
	config.ResetConfig()
	t.Cleanup(config.ResetConfig)
	return dir
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCmd()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestRootCommand_Subcommands(t *testing.T) {
	cmd := NewRootCmd()

	want := []string{"version", "run", "require", "which", "features", "loadpath", "watch", "repl", "history", "completion"}
	for _, name := range want {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, sub.Name())
	}

	flags := []string{"config", "include", "untrusted-include", "trust-level", "home", "script-path", "journal", "provide", "verbose", "output"}
	for _, flag := range flags {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(flag), "flag %q should exist", flag)
	}
}

func TestRun_ScriptAndAtExit(t *testing.T) {
	project(t, map[string]string{
		"lib/greeting.star": `print("greeting loaded")`,
		"main.star": `
def _bye():
    print("bye")
at_exit(_bye)
require("greeting")
require("greeting")
print("main done")
`,
	})

	out, errOut, err := execute(t, "run", "-I", "lib", "main.star")
	require.NoError(t, err)
	assert.Equal(t, "greeting loaded\nmain done\nbye\n", out)
	assert.Empty(t, errOut)
}

func TestRun_FailureExitsWithStatusOne(t *testing.T) {
	project(t, map[string]string{
		"main.star": `require("missing")`,
	})

	_, errOut, err := execute(t, "run", "main.star")
	var exitErr *commands.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 1, exitErr.Code)
	assert.Contains(t, errOut, "cannot load such file -- missing")
}

func TestRun_RestrictedTrustLevel(t *testing.T) {
	project(t, map[string]string{
		"vendor/shady.star": `print("should not run")`,
		"main.star":         `require("shady")`,
	})

	out, errOut, err := execute(t, "run", "--untrusted-include", "vendor", "--trust-level", "restricted", "main.star")
	require.Error(t, err)
	assert.Empty(t, out)
	assert.Contains(t, errOut, "shady")
}

func TestRequire_JSON(t *testing.T) {
	project(t, map[string]string{
		"lib/greeting.star": ``,
	})

	out, _, err := execute(t, "require", "-I", "lib", "greeting", "greeting.star", "-o", "json")
	require.NoError(t, err)

	var rows []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "loaded", rows[0]["status"])
	assert.Equal(t, "already_loaded", rows[1]["status"])
	assert.Equal(t, rows[0]["identity"], rows[1]["identity"])
}

func TestWhich_YAML(t *testing.T) {
	dir := project(t, map[string]string{
		"lib/greeting.star": ``,
	})

	out, _, err := execute(t, "which", "-I", "lib", "greeting", "-o", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "identity: "+filepath.Join(dir, "lib", "greeting.star"))
	assert.Contains(t, out, "trust: trusted")
	assert.Contains(t, out, "native: false")
}

func TestLoadPath_JSON(t *testing.T) {
	dir := project(t, map[string]string{
		"lib/.keep": ``,
	})

	out, _, err := execute(t, "loadpath", "-I", "lib", "--untrusted-include", "vendor", "-o", "json")
	require.NoError(t, err)

	var entries []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, filepath.Join(dir, "lib"), entries[0]["dir"])
	assert.Equal(t, "trusted", entries[0]["trust"])
	assert.Equal(t, true, entries[0]["exists"])
	assert.Equal(t, "untrusted", entries[1]["trust"])
	assert.Equal(t, false, entries[1]["exists"])
}

func TestFeatures_ProvidedFirst(t *testing.T) {
	project(t, map[string]string{
		"lib/greeting.star": ``,
	})

	out, _, err := execute(t, "features", "--provide", "thread.so", "-I", "lib", "-r", "greeting", "-o", "json")
	require.NoError(t, err)

	var list []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	require.Len(t, list, 2)
	assert.Equal(t, "builtin:thread", list[0]["identity"])
	assert.Equal(t, "greeting", list[1]["request"])
}

func TestHistory_RecordsRuns(t *testing.T) {
	dir := project(t, map[string]string{
		"main.star": `print("hi")`,
	})
	journalPath := filepath.Join(dir, ".starload", "journal.db")

	_, _, err := execute(t, "run", "--journal", journalPath, "main.star")
	require.NoError(t, err)

	out, _, err := execute(t, "history", "--journal", journalPath, "-o", "json")
	require.NoError(t, err)

	var entries []journal.Entry
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "run", entries[0].Op)
	assert.Equal(t, "loaded", entries[0].Status)
}

func TestHistory_DisabledJournal(t *testing.T) {
	project(t, nil)

	_, _, err := execute(t, "history")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "journal is disabled")
}

func TestInvalidConfiguration(t *testing.T) {
	project(t, nil)

	_, _, err := execute(t, "loadpath", "--trust-level", "paranoid")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestCompletion(t *testing.T) {
	out, _, err := execute(t, "completion", "bash")
	require.NoError(t, err)
	assert.Contains(t, out, "starload")
}

func TestGetConfigAndRendererDefaults(t *testing.T) {
	cfg := GetConfig(t.Context())
	assert.Equal(t, config.DefaultTrustLevel, cfg.TrustLevel)
	assert.NotNil(t, GetRenderer(t.Context()))
}
