package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMode(t *testing.T) {
	tests := []struct {
		in   string
		want OutputMode
	}{
		{"", ModeAuto},
		{"auto", ModeAuto},
		{"TEXT", ModeText},
		{"json", ModeJSON},
		{"yaml", ModeYAML},
		{"yml", ModeYAML},
		{"markdown", ModeAuto},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Mode(tt.in), "Mode(%q)", tt.in)
	}
}

func TestEffectiveMode(t *testing.T) {
	out := &bytes.Buffer{}
	assert.Equal(t, ModeText, NewRendererWithTTY(out, out, true, ModeAuto).EffectiveMode())
	assert.Equal(t, ModeJSON, NewRendererWithTTY(out, out, false, ModeAuto).EffectiveMode())
	assert.Equal(t, ModeYAML, NewRendererWithTTY(out, out, true, ModeYAML).EffectiveMode())
	assert.False(t, NewRenderer(out, out, ModeAuto).isTTY, "buffers are never terminals")
}

func TestData(t *testing.T) {
	type row struct {
		Name string `json:"name" yaml:"name"`
	}

	out := &bytes.Buffer{}
	require.NoError(t, NewRendererWithTTY(out, out, false, ModeJSON).Data([]row{{Name: "socket"}}))
	assert.JSONEq(t, `[{"name":"socket"}]`, out.String())

	out.Reset()
	require.NoError(t, NewRendererWithTTY(out, out, false, ModeYAML).Data([]row{{Name: "socket"}}))
	assert.Equal(t, "- name: socket\n", out.String())
}

func TestTableAndPlainText(t *testing.T) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	r := NewRendererWithTTY(out, errOut, false, ModeText)

	r.Header(1, "Load path")
	r.Table([]string{"#", "dir"}, [][]string{{"1", "/opt/lib"}})
	r.Warning("careful")

	assert.Contains(t, out.String(), "Load path\n")
	assert.Contains(t, out.String(), "/opt/lib")
	assert.NotContains(t, out.String(), "\x1b[", "non-TTY output is never styled")
	assert.Equal(t, "! careful\n", errOut.String())
}
