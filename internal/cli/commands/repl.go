package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/leapstack-labs/starload/internal/runtime"
	starctx "github.com/leapstack-labs/starload/internal/starlark"
	"github.com/spf13/cobra"
	"go.starlark.net/starlark"
)

const (
	replPrompt         = "starload> "
	replContinuePrompt = "      ...> "
)

// lineReader is the part of readline the REPL loop uses.
type lineReader interface {
	Readline() (string, error)
	SetPrompt(prompt string)
}

// NewREPLCommand creates the repl command.
func NewREPLCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Start an interactive session",
		Long: `Start an interactive Starlark session on a fresh engine. require,
require_relative, load_file, at_exit and the constant builtins are available.
Blocks ending in ":" continue until an empty line. at_exit callbacks run when
the session ends.`,
		Args: cobra.NoArgs,
		RunE: runREPL,
	}
	return cmd
}

func runREPL(cmd *cobra.Command, _ []string) error {
	cctx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	// Setup history file next to the journal
	historyFile := ""
	if cctx.Cfg.Journal != "" {
		historyFile = filepath.Join(filepath.Dir(cctx.Cfg.Journal), "repl_history")
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          replPrompt,
		HistoryFile:     historyFile,
		AutoComplete:    newREPLCompleter(),
		InterruptPrompt: "^C",
		EOFPrompt:       ".quit",
		Stdout:          cmd.OutOrStdout(),
		Stderr:          cmd.ErrOrStderr(),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize REPL: %w", err)
	}
	defer func() { _ = rl.Close() }()

	_, _ = fmt.Fprintln(cmd.OutOrStdout(), "starload REPL")
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Type .help for commands, .quit to exit")
	_, _ = fmt.Fprintln(cmd.OutOrStdout())

	return replLoop(cmd.Context(), cmd, cctx.Runtime, rl)
}

// replLoop reads chunks until EOF or .quit, then drains at_exit callbacks.
func replLoop(ctx context.Context, cmd *cobra.Command, rt *runtime.Runtime, rl lineReader) error {
	session := rt.NewSession()

	var block strings.Builder
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			block.Reset()
			rl.SetPrompt(replPrompt)
			continue
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				return err
			}
			if block.Len() > 0 {
				evalChunk(ctx, cmd, rt, session, block.String())
			}
			break
		}

		// Collect indented blocks until a blank line
		if block.Len() > 0 {
			if strings.TrimSpace(line) != "" {
				block.WriteString(line)
				block.WriteString("\n")
				continue
			}
			rl.SetPrompt(replPrompt)
			evalChunk(ctx, cmd, rt, session, block.String())
			block.Reset()
			continue
		}

		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		// Handle dot-commands
		if strings.HasPrefix(trimmed, ".") {
			if quit := handleREPLCommand(cmd, rt, session, trimmed); quit {
				break
			}
			continue
		}

		if strings.HasSuffix(trimmed, ":") {
			block.WriteString(line)
			block.WriteString("\n")
			rl.SetPrompt(replContinuePrompt)
			continue
		}
		evalChunk(ctx, cmd, rt, session, line)
	}

	if errs := rt.Shutdown(context.WithoutCancel(ctx)); len(errs) > 0 {
		return &ExitError{Code: 1}
	}
	return nil
}

func evalChunk(ctx context.Context, cmd *cobra.Command, rt *runtime.Runtime, session *starctx.Session, src string) {
	v, err := session.Eval(ctx, src)
	if err != nil {
		rt.Report("repl", err)
		return
	}
	if v != nil && v != starlark.None {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), v.String())
	}
}

// handleREPLCommand runs a dot-command and reports whether the REPL should exit.
func handleREPLCommand(cmd *cobra.Command, rt *runtime.Runtime, session *starctx.Session, line string) bool {
	out := cmd.OutOrStdout()
	parts := strings.Fields(line)
	command := strings.ToLower(parts[0])

	switch command {
	case ".quit", ".exit":
		return true

	case ".help":
		printREPLHelp(out)

	case ".features":
		for _, f := range rt.Engine().Features().List() {
			_, _ = fmt.Fprintln(out, f.Identity)
		}

	case ".loadpath":
		for _, e := range rt.Engine().LoadPath().Entries() {
			_, _ = fmt.Fprintf(out, "%s (%s)\n", e.Dir, e.Trust)
		}

	case ".globals":
		for _, name := range session.Globals() {
			_, _ = fmt.Fprintln(out, name)
		}

	case ".constants":
		for _, name := range rt.Engine().Namespace().Names() {
			_, _ = fmt.Fprintln(out, name)
		}

	default:
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Unknown command: %s (type .help for commands)\n", command)
	}
	return false
}

func printREPLHelp(w io.Writer) {
	help := `
Commands:
  .help           Show this help message
  .features       List loaded features
  .loadpath       Show the load path
  .globals        List names bound in this session
  .constants      List top-level constants
  .quit / .exit   Exit the REPL

Tips:
  - Lines ending in ":" start a block; finish it with an empty line
  - Use arrow keys to navigate history
  - Tab completion works for builtins
`
	_, _ = fmt.Fprintln(w, help)
}

// newREPLCompleter completes builtin names and dot-commands.
func newREPLCompleter() *readline.PrefixCompleter {
	var items []readline.PrefixCompleterInterface
	for _, name := range starctx.BuiltinNames() {
		items = append(items, readline.PcItem(name+"("))
	}
	items = append(items,
		readline.PcItem(".help"),
		readline.PcItem(".features"),
		readline.PcItem(".loadpath"),
		readline.PcItem(".globals"),
		readline.PcItem(".constants"),
		readline.PcItem(".quit"),
		readline.PcItem(".exit"),
	)
	return readline.NewPrefixCompleter(items...)
}
