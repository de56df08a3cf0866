// Package config loads starload configuration for the CLI.
//
// The shared configuration type lives in internal/config; this package layers
// defaults, the config file, STARLOAD_ environment variables and explicitly
// set flags on top of each other with koanf.
package config

import intconfig "github.com/leapstack-labs/starload/internal/config"

// Config is an alias for the shared configuration type.
type Config = intconfig.Config

// Default configuration values - uses shared defaults from internal/config
const (
	DefaultTrustLevel = intconfig.DefaultTrustLevel
	DefaultOutput     = intconfig.DefaultOutput
	EnvPrefix         = "STARLOAD_"
)

// listKeys are decoded from environment variables by splitting on the
// platform list separator.
var listKeys = map[string]bool{
	"load_path":           true,
	"untrusted_load_path": true,
	"script_extensions":   true,
	"native_extensions":   true,
	"provided_features":   true,
}

// flagKeys maps flag names whose config key differs from the
// kebab-to-snake conversion.
var flagKeys = map[string]string{
	"include":           "load_path",
	"untrusted-include": "untrusted_load_path",
	"provide":           "provided_features",
}
