package commands

import (
	"github.com/spf13/cobra"
)

// RunOptions holds options for the run command.
type RunOptions struct {
	Search   bool
	Requires []string
}

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	opts := &RunOptions{}

	cmd := &cobra.Command{
		Use:   "run <script>",
		Short: "Run a script",
		Long: `Run a Starlark script as the main program.

Features named with --require are required first, in order. The script is
then loaded without wrapping and its at_exit callbacks run in reverse order of
registration once it finishes, even when it failed. Errors are reported on
stderr and make the command exit with status 1.`,
		Example: `  # Run a script in the current directory
  starload run main.star

  # Search script_path for the script, falling back to the load path
  starload run -S tool.star

  # Preload features before the script
  starload run -r json -r ./lib/setup main.star`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, args[0], opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.Search, "search", "S", false, "Look for the script on script_path, then the load path")
	cmd.Flags().StringArrayVarP(&opts.Requires, "require", "r", nil, "Require a feature before running the script (repeatable)")

	return cmd
}

func runRun(cmd *cobra.Command, script string, opts *RunOptions) error {
	cctx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	if code := cctx.Runtime.Main(cmd.Context(), script, opts.Search, opts.Requires); code != 0 {
		return &ExitError{Code: code}
	}
	return nil
}
