package commands

import (
	"fmt"
	"strconv"
	"time"

	intconfig "github.com/leapstack-labs/starload/internal/config"
	"github.com/leapstack-labs/starload/internal/journal"
	"github.com/spf13/cobra"
)

// HistoryOptions holds options for the history command.
type HistoryOptions struct {
	Limit int
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand() *cobra.Command {
	opts := &HistoryOptions{}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent load events from the journal",
		Long: `Show the most recent require, load and run events recorded in the load
journal, newest first. The journal is written only when a journal path is
configured.`,
		Example: `  starload history --journal .starload/journal.db
  starload history -n 50 -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHistory(cmd, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "Number of events to show (0 for all)")

	return cmd
}

func runHistory(cmd *cobra.Command, opts *HistoryOptions) error {
	cctx := NewCommandContextWithoutRuntime(cmd)
	if cctx.Cfg.Journal == "" {
		return fmt.Errorf("journal is disabled; set journal in %s or pass --journal %s",
			intconfig.ConfigFileName, intconfig.DefaultJournal)
	}

	j, err := journal.Open(cctx.Cfg.Journal, cctx.Logger)
	if err != nil {
		return err
	}
	defer func() { _ = j.Close() }()

	entries, err := j.Recent(opts.Limit)
	if err != nil {
		return err
	}

	r := cctx.Renderer
	if r.Structured() {
		return r.Data(entries)
	}
	if len(entries) == 0 {
		r.Println(r.Styles().Muted.Render("no load events recorded"))
		return nil
	}
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{
			e.CreatedAt.Local().Format(time.DateTime),
			e.Op,
			e.Feature,
			statusText(r.Styles(), e.Status),
			strconv.FormatFloat(e.DurationMS, 'f', 2, 64),
			e.Error,
		})
	}
	r.Table([]string{"Time", "Op", "Feature", "Status", "ms", "Error"}, rows)
	return nil
}
