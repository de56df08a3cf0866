// Package main provides tests for the starload CLI.
package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/leapstack-labs/starload/internal/cli"
	"github.com/leapstack-labs/starload/internal/cli/config"
	"github.com/leapstack-labs/starload/internal/cli/testutil"
)

func TestVersionCommand(t *testing.T) {
	cmd := cli.NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"version"})

	err := cmd.Execute()
	if err != nil {
		t.Errorf("version command error = %v", err)
	}

	output := buf.String()
	if !strings.Contains(output, "starload") {
		t.Errorf("version output should contain 'starload', got: %s", output)
	}
}

func TestHelpCommand(t *testing.T) {
	cmd := cli.NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--help"})

	err := cmd.Execute()
	if err != nil {
		t.Errorf("help command error = %v", err)
	}

	output := buf.String()
	expectedCommands := []string{"run", "require", "which", "features", "loadpath", "watch", "repl", "history"}
	for _, expected := range expectedCommands {
		if !strings.Contains(output, expected) {
			t.Errorf("help output should contain '%s', got: %s", expected, output)
		}
	}
}

func executeIn(t *testing.T, dir string, args ...string) (string, string, error) {
	t.Helper()
	t.Chdir(dir)
	config.ResetConfig()
	t.Cleanup(config.ResetConfig)

	cmd := cli.NewRootCmd()
	out, errOut := new(bytes.Buffer), new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestRunCommand_ConfigFile(t *testing.T) {
	dir := testutil.SetupTestProject(t)

	out, _, err := executeIn(t, dir, "run", "main.star")
	if err != nil {
		t.Fatalf("run command error = %v", err)
	}
	if want := "greeting loaded\nhello\nbye\n"; out != want {
		t.Errorf("run output = %q, want %q", out, want)
	}
}

func TestRequireCommand_RestrictedRejectsUntrusted(t *testing.T) {
	dir := testutil.SetupTestProject(t)

	out, _, err := executeIn(t, dir, "require", "--trust-level", "restricted", "greeting", "thirdparty", "-o", "json")
	if err == nil {
		t.Fatal("expected a trust violation")
	}
	testutil.AssertContains(t, err.Error(), "TrustViolationError")
	testutil.AssertContains(t, out, `"status": "loaded"`)
	testutil.AssertContains(t, out, `"status": "failed"`)
	testutil.AssertNotContains(t, out, "thirdparty loaded")
}
