package commands

import (
	"strconv"

	"github.com/spf13/cobra"
)

// whichResult describes where a feature resolves.
type whichResult struct {
	Feature  string `json:"feature" yaml:"feature"`
	Path     string `json:"path,omitempty" yaml:"path,omitempty"`
	Identity string `json:"identity" yaml:"identity"`
	Native   bool   `json:"native" yaml:"native"`
	Entry    string `json:"entry,omitempty" yaml:"entry,omitempty"`
	Trust    string `json:"trust,omitempty" yaml:"trust,omitempty"`
	Recorded bool   `json:"recorded" yaml:"recorded"`
}

// NewWhichCommand creates the which command.
func NewWhichCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "which <feature>",
		Short: "Show where a feature resolves without loading it",
		Long: `Resolve a feature the way require would and print the file it maps to,
its canonical identity and the load-path entry it was found through. Nothing
is executed.`,
		Example: `  starload which json
  starload which -I ./lib helpers -o yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWhich(cmd, args[0])
		},
	}
	return cmd
}

func runWhich(cmd *cobra.Command, feature string) error {
	cctx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	res, err := cctx.Runtime.Engine().Resolve(feature)
	if err != nil {
		return err
	}

	out := whichResult{
		Feature:  feature,
		Path:     res.Path,
		Identity: res.Identity,
		Native:   res.Native,
		Recorded: res.Recorded,
	}
	if res.Entry != nil {
		out.Entry = res.Entry.Dir
		out.Trust = res.Entry.Trust.String()
	}

	r := cctx.Renderer
	if r.Structured() {
		return r.Data(out)
	}
	r.Header(1, feature)
	if out.Path != "" {
		r.KeyValue("path", r.Styles().Path.Render(out.Path))
	}
	r.KeyValue("identity", out.Identity)
	r.KeyValue("native", strconv.FormatBool(out.Native))
	if out.Entry != "" {
		r.KeyValue("entry", out.Entry)
		r.KeyValue("trust", out.Trust)
	}
	if out.Recorded {
		r.KeyValue("recorded", "true")
	}
	return nil
}
