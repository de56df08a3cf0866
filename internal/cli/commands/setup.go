package commands

import (
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/starload/internal/cli/config"
	"github.com/leapstack-labs/starload/internal/cli/output"
	intconfig "github.com/leapstack-labs/starload/internal/config"
	"github.com/leapstack-labs/starload/internal/runtime"
	"github.com/spf13/cobra"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Runtime  *runtime.Runtime
	Renderer *output.Renderer
}

// ExitError carries a non-zero exit status out of a command whose failure
// has already been reported.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// NewCommandContext creates a CommandContext with a runtime and renderer.
// Returns the context and a cleanup function that must be called (typically via defer).
func NewCommandContext(cmd *cobra.Command, opts ...runtime.Option) (*CommandContext, func(), error) {
	cctx := NewCommandContextWithoutRuntime(cmd)

	opts = append([]runtime.Option{
		runtime.WithStdout(cmd.OutOrStdout()),
		runtime.WithStderr(cmd.ErrOrStderr()),
	}, opts...)
	rt, err := runtime.New(cctx.Cfg, cctx.Logger, opts...)
	if err != nil {
		return nil, nil, err
	}
	cctx.Runtime = rt

	cleanup := func() {
		if err := rt.Close(); err != nil {
			cctx.Logger.Warn("failed to close runtime", "error", err)
		}
	}
	return cctx, cleanup, nil
}

// NewCommandContextWithoutRuntime creates a CommandContext without a runtime.
// Useful for commands that only read configuration or the journal.
func NewCommandContextWithoutRuntime(cmd *cobra.Command) *CommandContext {
	cfg := getConfig()
	logger := config.GetLogger(cmd.Context())
	mode := output.Mode(cfg.OutputFormat)
	r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode)

	return &CommandContext{
		Cfg:      cfg,
		Logger:   logger,
		Renderer: r,
	}
}

// getConfig returns the current configuration, or the defaults when no
// configuration has been loaded.
func getConfig() *config.Config {
	if cfg := config.GetCurrentConfig(); cfg != nil {
		return cfg
	}
	cfg := &config.Config{}
	intconfig.ApplyDefaults(cfg)
	return cfg
}
