package commands

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/leapstack-labs/starload/internal/cli/output"
	clitestutil "github.com/leapstack-labs/starload/internal/cli/testutil"
	intconfig "github.com/leapstack-labs/starload/internal/config"
	"github.com/leapstack-labs/starload/internal/runtime"
	"github.com/leapstack-labs/starload/internal/testutil"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRunCommand(t *testing.T) {
	cmd := NewRunCommand()

	assert.Equal(t, "run <script>", cmd.Use)
	assert.NotEmpty(t, cmd.Short, "Short should not be empty")
	assert.NotEmpty(t, cmd.Example, "Example should not be empty")

	flags := []string{"search", "require"}
	for _, flag := range flags {
		assert.NotNil(t, cmd.Flags().Lookup(flag), "flag %q should exist", flag)
	}
	assert.Equal(t, "S", cmd.Flags().Lookup("search").Shorthand)
	assert.Equal(t, "r", cmd.Flags().Lookup("require").Shorthand)
}

func TestNewRequireCommand(t *testing.T) {
	cmd := NewRequireCommand()

	assert.Equal(t, "require <feature>...", cmd.Use)
	assert.NotEmpty(t, cmd.Short, "Short should not be empty")
	assert.Error(t, cmd.Args(cmd, nil), "at least one feature is required")
}

func TestNewWhichCommand(t *testing.T) {
	cmd := NewWhichCommand()

	assert.Equal(t, "which <feature>", cmd.Use)
	assert.NotEmpty(t, cmd.Short, "Short should not be empty")
	assert.Error(t, cmd.Args(cmd, []string{"a", "b"}))
}

func TestNewFeaturesCommand(t *testing.T) {
	cmd := NewFeaturesCommand()

	assert.Equal(t, "features", cmd.Use)
	assert.NotNil(t, cmd.Flags().Lookup("require"))
}

func TestNewLoadPathCommand(t *testing.T) {
	cmd := NewLoadPathCommand()

	assert.Equal(t, "loadpath", cmd.Use)
	assert.Equal(t, []string{"path"}, cmd.Aliases)
}

func TestNewWatchCommand(t *testing.T) {
	cmd := NewWatchCommand()

	assert.Equal(t, "watch <script>", cmd.Use)
	assert.NotEmpty(t, cmd.Long, "Long should not be empty")

	flags := []string{"wrap", "debounce", "metrics-addr"}
	for _, flag := range flags {
		assert.NotNil(t, cmd.Flags().Lookup(flag), "flag %q should exist", flag)
	}
	assert.Equal(t, "100ms", cmd.Flags().Lookup("debounce").DefValue)
}

func TestNewHistoryCommand(t *testing.T) {
	cmd := NewHistoryCommand()

	assert.Equal(t, "history", cmd.Use)
	assert.Equal(t, "20", cmd.Flags().Lookup("limit").DefValue)
}

func TestExitError(t *testing.T) {
	err := &ExitError{Code: 3}
	assert.Equal(t, "exit status 3", err.Error())
}

func TestStatusText(t *testing.T) {
	tr := clitestutil.NewTestRendererText()
	for _, status := range []string{"loaded", "already_loaded", "failed"} {
		clitestutil.AssertContains(t, statusText(tr.Styles(), status), status)
	}

	plain := clitestutil.NewTestRendererJSON()
	assert.Equal(t, "already_loaded", statusText(plain.Styles(), "already_loaded"))
}

func TestRenderRequireResults(t *testing.T) {
	tr := clitestutil.NewTestRendererYAML()
	require.NoError(t, tr.Data([]requireResult{{Feature: "json", Status: "loaded", Identity: "/lib/json.star"}}))

	clitestutil.AssertContains(t, tr.Output(), "feature: json")
	clitestutil.AssertNotContains(t, tr.Output(), "error:")
	clitestutil.AssertOutputMode(t, tr, output.ModeYAML)
}

type scriptedReader struct {
	lines   []string
	prompts []string
}

func (r *scriptedReader) Readline() (string, error) {
	if len(r.lines) == 0 {
		return "", io.EOF
	}
	line := r.lines[0]
	r.lines = r.lines[1:]
	return line, nil
}

func (r *scriptedReader) SetPrompt(prompt string) {
	r.prompts = append(r.prompts, prompt)
}

func newREPLHarness(t *testing.T) (*cobra.Command, *runtime.Runtime, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "lib"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lib", "util.star"), []byte(`print("util loaded")`), 0o644))

	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cfg := &intconfig.Config{LoadPath: []string{filepath.Join(dir, "lib")}, WorkDir: dir}
	rt, err := runtime.New(cfg, testutil.NewTestLogger(t), runtime.WithStdout(out), runtime.WithStderr(errOut))
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })

	cmd := &cobra.Command{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	return cmd, rt, out, errOut
}

func TestREPLLoop(t *testing.T) {
	cmd, rt, out, errOut := newREPLHarness(t)
	rl := &scriptedReader{lines: []string{
		"x = 21",
		"x * 2",
		"def f():",
		`    return "hi"`,
		"",
		"f()",
		".globals",
		`require("util")`,
		"def bye():",
		`    print("bye")`,
		"",
		"at_exit(bye)",
		".nope",
		".quit",
		"never_evaluated()",
	}}

	require.NoError(t, replLoop(context.Background(), cmd, rt, rl))

	assert.Equal(t, "42\n\"hi\"\nf\nx\nutil loaded\nTrue\n<function bye>\nbye\n", out.String())
	assert.Contains(t, errOut.String(), "Unknown command: .nope")
	assert.Equal(t, []string{replContinuePrompt, replPrompt, replContinuePrompt, replPrompt}, rl.prompts)
	assert.Len(t, rl.lines, 1, "input after .quit is not read")
}

func TestREPLLoop_ErrorsDoNotEndSession(t *testing.T) {
	cmd, rt, out, errOut := newREPLHarness(t)
	rl := &scriptedReader{lines: []string{
		"undefined_name + 1",
		`require("missing_feature")`,
		"1 + 1",
	}}

	require.NoError(t, replLoop(context.Background(), cmd, rt, rl))

	assert.Equal(t, "2\n", out.String())
	assert.Contains(t, errOut.String(), "undefined")
	assert.Contains(t, errOut.String(), "cannot load such file -- missing_feature")
}

func TestREPLLoop_FailingCallbackExitsNonZero(t *testing.T) {
	cmd, rt, _, errOut := newREPLHarness(t)
	rl := &scriptedReader{lines: []string{
		"def boom():",
		`    fail("boom")`,
		"",
		"at_exit(boom)",
	}}

	err := replLoop(context.Background(), cmd, rt, rl)
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 1, exitErr.Code)
	assert.Contains(t, errOut.String(), "boom")
}

func TestREPLCommands(t *testing.T) {
	cmd, rt, out, _ := newREPLHarness(t)
	session := rt.NewSession()

	assert.False(t, handleREPLCommand(cmd, rt, session, ".loadpath"))
	assert.Contains(t, out.String(), "lib (trusted)")

	out.Reset()
	assert.False(t, handleREPLCommand(cmd, rt, session, ".constants"))
	assert.Contains(t, out.String(), "StandardError")

	assert.True(t, handleREPLCommand(cmd, rt, session, ".EXIT"))
}
