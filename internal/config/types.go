// Package config provides the shared configuration types for starload.
// It is decoupled from CLI concerns so that the runtime and tests can build a
// Config without going through flag parsing.
package config

// Config holds everything needed to assemble a load engine.
type Config struct {
	// LoadPath entries are trusted; UntrustedLoadPath entries are tagged
	// untrusted and refused under the restricted trust level.
	LoadPath          []string `koanf:"load_path"`
	UntrustedLoadPath []string `koanf:"untrusted_load_path"`

	// SearchPath is a list-separated string appended after LoadPath, the way
	// a RUBYLIB-style environment variable is.
	SearchPath string `koanf:"search_path"`

	// ScriptPath is the list searched by `run -S`.
	ScriptPath string `koanf:"script_path"`

	// Home expands a leading "~" in load path entries.
	Home string `koanf:"home"`

	TrustLevel       string   `koanf:"trust_level"` // unrestricted, restricted
	ScriptExtensions []string `koanf:"script_extensions"`
	NativeExtensions []string `koanf:"native_extensions"`

	// ProvidedFeatures are recorded as loaded before anything runs.
	ProvidedFeatures []string `koanf:"provided_features"`

	// Constants are bound as top-level value constants before anything
	// runs, e.g. `constants: {APP_ENV: production}`.
	Constants map[string]any `koanf:"constants"`

	// Journal is the sqlite file load events are written to. Empty disables
	// the journal.
	Journal string `koanf:"journal"`

	Verbose      bool   `koanf:"verbose"`
	OutputFormat string `koanf:"output"`

	// WorkDir anchors explicit relative features. Set by the loader, never
	// read from a file.
	WorkDir string `koanf:"-"`
}
