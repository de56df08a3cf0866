package config

import (
	"fmt"
	"strings"
)

// OutputFormats lists the accepted values of the output key.
var OutputFormats = []string{"auto", "text", "json", "yaml"}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	switch strings.ToLower(c.TrustLevel) {
	case "", "unrestricted", "restricted":
	default:
		return fmt.Errorf("unknown trust_level %q (want unrestricted or restricted)", c.TrustLevel)
	}

	if err := validateExtensions("script_extensions", c.ScriptExtensions); err != nil {
		return err
	}
	if err := validateExtensions("native_extensions", c.NativeExtensions); err != nil {
		return err
	}
	for _, ext := range c.ScriptExtensions {
		for _, native := range c.NativeExtensions {
			if strings.EqualFold(ext, native) {
				return fmt.Errorf("extension %q is both a script and a native extension", ext)
			}
		}
	}

	if c.OutputFormat != "" && !contains(OutputFormats, c.OutputFormat) {
		return fmt.Errorf("unknown output format %q (want one of %s)", c.OutputFormat, strings.Join(OutputFormats, ", "))
	}
	return nil
}

func validateExtensions(key string, exts []string) error {
	for _, ext := range exts {
		if len(ext) < 2 || ext[0] != '.' || strings.ContainsAny(ext[1:], `./\`) {
			return fmt.Errorf("%s: malformed extension %q", key, ext)
		}
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
