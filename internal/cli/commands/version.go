package commands

import (
	"fmt"
	goruntime "runtime"
	"runtime/debug"
	"strings"

	"github.com/spf13/cobra"
)

const starlarkModule = "go.starlark.net"

// NewVersionCommand creates the version command.
func NewVersionCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display the starload version, the Starlark interpreter it embeds and the unit extensions it loads.`,
		Run: func(cmd *cobra.Command, _ []string) {
			cfg := getConfig()
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "starload v%s\n", version)
			_, _ = fmt.Fprintf(out, "  starlark:    %s %s\n", starlarkModule, starlarkVersion())
			_, _ = fmt.Fprintf(out, "  scripts:     %s\n", strings.Join(cfg.ScriptExtensions, " "))
			_, _ = fmt.Fprintf(out, "  extensions:  %s\n", strings.Join(cfg.NativeExtensions, " "))
			_, _ = fmt.Fprintf(out, "  go:          %s %s/%s\n", goruntime.Version(), goruntime.GOOS, goruntime.GOARCH)
		},
	}
}

// starlarkVersion reports the interpreter module version linked into the
// binary, or "unknown" when build info is unavailable.
func starlarkVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	for _, dep := range info.Deps {
		if dep.Path != starlarkModule {
			continue
		}
		if dep.Replace != nil {
			return dep.Replace.Version
		}
		return dep.Version
	}
	return "unknown"
}
