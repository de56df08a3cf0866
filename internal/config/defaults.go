package config

import "os"

// Default configuration values.
const (
	DefaultTrustLevel = "unrestricted"
	DefaultOutput     = "auto" // Auto-detect: TTY=text, non-TTY=json
	DefaultJournal    = ".starload/journal.db"
)

// DefaultScriptExtensions and DefaultNativeExtensions are tried, in order,
// when a feature has no extension.
var (
	DefaultScriptExtensions = []string{".star"}
	DefaultNativeExtensions = []string{".so"}
)

// Defaults returns the key/value defaults the loader layers everything else
// over.
func Defaults() map[string]any {
	return map[string]any{
		"home":              os.Getenv("HOME"),
		"trust_level":       DefaultTrustLevel,
		"script_extensions": append([]string(nil), DefaultScriptExtensions...),
		"native_extensions": append([]string(nil), DefaultNativeExtensions...),
		"journal":           "",
		"verbose":           false,
		"output":            DefaultOutput,
	}
}

// ApplyDefaults fills unset fields of c.
func ApplyDefaults(c *Config) {
	if c == nil {
		return
	}
	if c.TrustLevel == "" {
		c.TrustLevel = DefaultTrustLevel
	}
	if len(c.ScriptExtensions) == 0 {
		c.ScriptExtensions = append([]string(nil), DefaultScriptExtensions...)
	}
	if len(c.NativeExtensions) == 0 {
		c.NativeExtensions = append([]string(nil), DefaultNativeExtensions...)
	}
	if c.OutputFormat == "" {
		c.OutputFormat = DefaultOutput
	}
	if c.WorkDir == "" {
		if wd, err := os.Getwd(); err == nil {
			c.WorkDir = wd
		}
	}
}
