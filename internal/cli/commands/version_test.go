package commands

import (
	"bytes"
	"testing"

	"github.com/leapstack-labs/starload/internal/cli/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCommand_Output(t *testing.T) {
	config.ResetConfig()

	for _, version := range []string{"0.1.0", "1.2.3", "dev"} {
		t.Run(version, func(t *testing.T) {
			cmd := NewVersionCommand(version)
			buf := new(bytes.Buffer)
			cmd.SetOut(buf)
			cmd.SetErr(buf)

			require.NoError(t, cmd.Execute())

			out := buf.String()
			assert.Contains(t, out, "starload v"+version+"\n")
			assert.Contains(t, out, "starlark:    go.starlark.net ")
			assert.Contains(t, out, "scripts:     .star\n")
			assert.Contains(t, out, "extensions:  .so\n")
			assert.Contains(t, out, "go:          go")
		})
	}
}

func TestVersionCommand_Metadata(t *testing.T) {
	cmd := NewVersionCommand("test")
	assert.Equal(t, "version", cmd.Use)
	assert.NotEmpty(t, cmd.Short)
	assert.Contains(t, cmd.Long, "Starlark")
}
