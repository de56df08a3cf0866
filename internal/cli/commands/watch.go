package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/leapstack-labs/starload/internal/watch"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// WatchOptions holds options for the watch command.
type WatchOptions struct {
	Wrap        bool
	Debounce    time.Duration
	MetricsAddr string
}

// NewWatchCommand creates the watch command.
func NewWatchCommand() *cobra.Command {
	opts := &WatchOptions{}

	cmd := &cobra.Command{
		Use:   "watch <script>",
		Short: "Run a script and reload it whenever it changes",
		Long: `Run a script, then load it again each time it is saved. Reloads use load,
not require, so the script runs every time. With --wrap each reload gets a
fresh anonymous namespace and constants from earlier runs do not clash.

at_exit callbacks registered by any run are drained once, when the command is
interrupted.`,
		Example: `  starload watch --wrap main.star
  starload watch main.star --metrics-addr :9464`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, args[0], opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Wrap, "wrap", false, "Reload into a fresh anonymous namespace")
	cmd.Flags().DurationVar(&opts.Debounce, "debounce", watch.DefaultDebounce, "Quiet period before reloading")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")

	return cmd
}

func runWatch(cmd *cobra.Command, script string, opts *WatchOptions) error {
	cctx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt := cctx.Runtime
	r := cctx.Renderer

	w, err := watch.New(rt.Engine(), script,
		watch.WithWrap(opts.Wrap),
		watch.WithDebounce(opts.Debounce),
		watch.WithLogger(cctx.Logger),
		watch.WithReloadHook(func(res watch.Reload) {
			if res.Err != nil {
				rt.Report(script, res.Err)
				return
			}
			if !r.Structured() {
				r.Success(fmt.Sprintf("reloaded %s in %s", script, res.Duration.Round(time.Millisecond)))
			}
		}))
	if err != nil {
		return err
	}

	if err := rt.Engine().Load(ctx, w.Path(), opts.Wrap); err != nil {
		rt.Report(script, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return w.Run(gctx)
	})
	if opts.MetricsAddr != "" {
		g.Go(func() error {
			return watch.ServeMetrics(gctx, opts.MetricsAddr, rt.Metrics().Handler())
		})
	}
	waitErr := g.Wait()

	if errs := rt.Shutdown(context.WithoutCancel(ctx)); len(errs) > 0 && waitErr == nil {
		return &ExitError{Code: 1}
	}
	return waitErr
}
