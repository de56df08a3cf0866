package commands

import (
	"time"

	"github.com/spf13/cobra"
)

// FeaturesOptions holds options for the features command.
type FeaturesOptions struct {
	Requires []string
}

// NewFeaturesCommand creates the features command.
func NewFeaturesCommand() *cobra.Command {
	opts := &FeaturesOptions{}

	cmd := &cobra.Command{
		Use:   "features",
		Short: "List loaded features",
		Long: `List the loaded features registry in load order: provided builtin features
first, then everything pulled in by the features named with --require.`,
		Example: `  starload features --provide thread
  starload features -r helpers -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runFeatures(cmd, opts)
		},
	}

	cmd.Flags().StringArrayVarP(&opts.Requires, "require", "r", nil, "Require a feature before listing (repeatable)")

	return cmd
}

func runFeatures(cmd *cobra.Command, opts *FeaturesOptions) error {
	cctx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := cmd.Context()
	for _, feature := range opts.Requires {
		if _, err := cctx.Runtime.Engine().Require(ctx, feature); err != nil {
			_ = cctx.Runtime.Shutdown(ctx)
			return err
		}
	}
	shutdownErrs := cctx.Runtime.Shutdown(ctx)

	list := cctx.Runtime.Engine().Features().List()
	r := cctx.Renderer
	if r.Structured() {
		if err := r.Data(list); err != nil {
			return err
		}
	} else {
		rows := make([][]string, 0, len(list))
		for _, f := range list {
			rows = append(rows, []string{f.Identity, f.Request, f.RecordedAt.Format(time.RFC3339)})
		}
		r.Table([]string{"Identity", "Request", "Recorded"}, rows)
	}

	if len(shutdownErrs) > 0 {
		return &ExitError{Code: 1}
	}
	return nil
}
