package config

import (
	"os"
	"path/filepath"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// ConfigFileName is the name of the config file.
const ConfigFileName = "starload.yaml"

// ConfigFileNameAlt is the alternate name of the config file.
const ConfigFileNameAlt = "starload.yml"

// LoadFromDir loads a Config from the given directory with defaults
// applied. It looks for starload.yaml or starload.yml in the directory.
// Returns nil, nil if no config file is found (not an error condition).
func LoadFromDir(dir string) (*Config, error) {
	configPath := FindConfigFile(dir)
	if configPath == "" {
		return nil, nil
	}

	k := koanf.New(".")
	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, err
	}
	if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}
	cfg.WorkDir = dir
	ResolvePaths(&cfg, dir)
	ApplyDefaults(&cfg)
	return &cfg, nil
}

// FindConfigFile finds the config file in the given directory.
// Returns empty string if not found.
func FindConfigFile(dir string) string {
	yamlPath := filepath.Join(dir, ConfigFileName)
	if _, err := os.Stat(yamlPath); err == nil {
		return yamlPath
	}

	ymlPath := filepath.Join(dir, ConfigFileNameAlt)
	if _, err := os.Stat(ymlPath); err == nil {
		return ymlPath
	}

	return ""
}

// FindProjectRoot walks up from the given directory to find a directory
// containing starload.yaml or starload.yml.
// Returns empty string if not found.
func FindProjectRoot(startDir string) string {
	dir := startDir
	for {
		if FindConfigFile(dir) != "" {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached filesystem root
			return ""
		}
		dir = parent
	}
}

// ResolvePaths anchors relative journal and load path entries at baseDir.
// Entries starting with "~" are left for home expansion by the load path.
func ResolvePaths(c *Config, baseDir string) {
	c.LoadPath = resolveAll(c.LoadPath, baseDir)
	c.UntrustedLoadPath = resolveAll(c.UntrustedLoadPath, baseDir)
	if c.Journal != "" && c.Journal != ":memory:" {
		c.Journal = resolvePathRelativeTo(c.Journal, baseDir)
	}
}

func resolveAll(paths []string, baseDir string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		out = append(out, resolvePathRelativeTo(p, baseDir))
	}
	return out
}

// resolvePathRelativeTo resolves a path relative to baseDir if it's not
// absolute. Empty, absolute and "~"-prefixed paths are returned unchanged.
func resolvePathRelativeTo(path, baseDir string) string {
	if path == "" || filepath.IsAbs(path) || path[0] == '~' {
		return path
	}
	return filepath.Join(baseDir, path)
}
