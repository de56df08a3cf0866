package commands

import (
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

// loadPathEntry is one row of loadpath output.
type loadPathEntry struct {
	Index  int    `json:"index" yaml:"index"`
	Dir    string `json:"dir" yaml:"dir"`
	Trust  string `json:"trust" yaml:"trust"`
	Exists bool   `json:"exists" yaml:"exists"`
}

// NewLoadPathCommand creates the loadpath command.
func NewLoadPathCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "loadpath",
		Aliases: []string{"path"},
		Short:   "Show the effective load path",
		Long: `Show the load path built from the configuration: load_path entries,
untrusted_load_path entries and the --include flags, in search order, with
the trust tag of each entry.`,
		Args: cobra.NoArgs,
		RunE: runLoadPath,
	}
	return cmd
}

func runLoadPath(cmd *cobra.Command, _ []string) error {
	cctx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	entries := cctx.Runtime.Engine().LoadPath().Entries()
	out := make([]loadPathEntry, 0, len(entries))
	for i, e := range entries {
		info, err := os.Stat(e.Dir)
		out = append(out, loadPathEntry{
			Index:  i,
			Dir:    e.Dir,
			Trust:  e.Trust.String(),
			Exists: err == nil && info.IsDir(),
		})
	}

	r := cctx.Renderer
	if r.Structured() {
		return r.Data(out)
	}
	if len(out) == 0 {
		r.Warning("load path is empty")
		return nil
	}
	rows := make([][]string, 0, len(out))
	for _, e := range out {
		dir := e.Dir
		if !e.Exists {
			dir = r.Styles().Muted.Render(dir + " (missing)")
		}
		trust := e.Trust
		if trust == "untrusted" {
			trust = r.Styles().Warning.Render(trust)
		}
		rows = append(rows, []string{strconv.Itoa(e.Index), dir, trust})
	}
	r.Table([]string{"#", "Directory", "Trust"}, rows)
	return nil
}
