package commands

import (
	"time"

	"github.com/leapstack-labs/starload/internal/cli/output"
	"github.com/leapstack-labs/starload/internal/engine"
	"github.com/spf13/cobra"
)

// requireResult is one row of require output.
type requireResult struct {
	Feature    string  `json:"feature" yaml:"feature"`
	Status     string  `json:"status" yaml:"status"`
	Identity   string  `json:"identity,omitempty" yaml:"identity,omitempty"`
	Error      string  `json:"error,omitempty" yaml:"error,omitempty"`
	DurationMS float64 `json:"duration_ms" yaml:"duration_ms"`
}

// NewRequireCommand creates the require command.
func NewRequireCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "require <feature>...",
		Short: "Require features and report what was loaded",
		Long: `Require each feature in order and report whether it was loaded now or
had already been loaded. Requiring the same feature twice reports
already_loaded the second time. Stops at the first failure.`,
		Example: `  starload require json json
  starload require -I ./lib helpers ./local/tool -o json`,
		Args: cobra.MinimumNArgs(1),
		RunE: runRequire,
	}
	return cmd
}

func runRequire(cmd *cobra.Command, features []string) error {
	cctx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := cmd.Context()
	eng := cctx.Runtime.Engine()

	var (
		results []requireResult
		failed  error
	)
	for _, feature := range features {
		start := time.Now()
		res, err := eng.Require(ctx, feature)
		row := requireResult{
			Feature:    feature,
			Status:     res.Status.String(),
			Identity:   res.Identity,
			DurationMS: float64(time.Since(start).Microseconds()) / 1000,
		}
		if err != nil {
			row.Status = engine.Failed.String()
			row.Error = err.Error()
			failed = err
		}
		results = append(results, row)
		if failed != nil {
			break
		}
	}
	shutdownErrs := cctx.Runtime.Shutdown(ctx)

	r := cctx.Renderer
	if r.Structured() {
		if err := r.Data(results); err != nil {
			return err
		}
	} else {
		rows := make([][]string, 0, len(results))
		for _, res := range results {
			rows = append(rows, []string{res.Feature, statusText(r.Styles(), res.Status), res.Identity})
		}
		r.Table([]string{"Feature", "Status", "Identity"}, rows)
	}

	if failed != nil {
		return failed
	}
	if len(shutdownErrs) > 0 {
		return &ExitError{Code: 1}
	}
	return nil
}

func statusText(styles *output.Styles, status string) string {
	switch status {
	case engine.Loaded.String():
		return styles.Success.Render(status)
	case engine.AlreadyLoaded.String():
		return styles.Muted.Render(status)
	default:
		return styles.Error.Render(status)
	}
}
