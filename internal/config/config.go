// Package config loads the .php-infer.yaml project configuration and
// locates the per-project cache directory.
package config

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// FileName is the configuration file looked up in the project root and its
// parents.
const FileName = ".php-infer.yaml"

// Config is the project configuration.
type Config struct {
	// SkipDirs are directory names never scanned, on top of the defaults.
	SkipDirs []string `yaml:"skip_dirs,omitempty"`

	// AnalyzeVendor allows indexing and analyzing library code under vendor/.
	AnalyzeVendor bool `yaml:"analyze_vendor,omitempty"`

	// Stubs declares return types of library methods that are not analyzed,
	// keyed by "Class::method":
	//
	//   stubs:
	//     Doctrine\DBAL\Connection::fetchOne: "string|false"
	Stubs map[string]string `yaml:"stubs,omitempty"`

	// Verbosity of the log output. 0 logs notices and more severe messages,
	// 1 adds info and 2 debug output; -4 silences logging.
	Verbosity int `yaml:"verbosity,omitempty"`

	// CacheDir overrides the directory of the index databases.
	CacheDir string `yaml:"cache_dir,omitempty"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{Stubs: map[string]string{}}
}

// Load reads and parses a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	return Parse(data, path)
}

// Parse parses configuration content. The path is used only for error
// messages and to resolve a relative cache directory.
func Parse(data []byte, path string) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := cfg.validate(path); err != nil {
		return nil, err
	}
	if cfg.CacheDir != "" && !filepath.IsAbs(cfg.CacheDir) {
		cfg.CacheDir = filepath.Join(filepath.Dir(path), cfg.CacheDir)
	}
	if cfg.Stubs == nil {
		cfg.Stubs = map[string]string{}
	}
	return cfg, nil
}

// Find searches for the configuration file starting from dir and walking up
// to parent directories. It returns an empty path when there is none.
func Find(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving directory: %w", err)
	}

	for {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

// LoadProject loads the configuration of the project in dir, falling back
// to the defaults.
func LoadProject(dir string) (*Config, error) {
	path, err := Find(dir)
	if err != nil {
		return nil, err
	}
	if path == "" {
		return Default(), nil
	}
	return Load(path)
}

func (c *Config) validate(path string) error {
	for key := range c.Stubs {
		class, method, ok := strings.Cut(key, "::")
		if !ok || class == "" || method == "" {
			return fmt.Errorf("%s: stub %q must be written as Class::method", path, key)
		}
	}
	for _, dir := range c.SkipDirs {
		if strings.ContainsAny(dir, `/\`) {
			return fmt.Errorf("%s: skip_dirs entry %q must be a directory name", path, dir)
		}
	}
	if c.Verbosity < -4 {
		return fmt.Errorf("%s: verbosity must be at least -4", path)
	}
	return nil
}

// ProjectCacheDir returns the cache directory of the project, creating it
// when missing.
func (c *Config) ProjectCacheDir(projectRoot string) (string, error) {
	dir := c.CacheDir
	if dir == "" {
		configDir, err := userConfigDir()
		if err != nil {
			return "", err
		}

		projectSlug := strings.ReplaceAll(projectRoot, "/", "_")
		projectSlug = strings.ReplaceAll(projectSlug, ":", "_")
		projectSlug = strings.ReplaceAll(projectSlug, "\\", "_")

		dir = filepath.Join(configDir, "php-infer", projectSlug)
	}

	if _, err := os.Stat(dir); err != nil {
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("failed to check directory: %w", err)
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("failed to create directory: %w", err)
		}
	}

	return dir, nil
}

func userConfigDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		usr, err := user.Current()
		if err != nil {
			return "", fmt.Errorf("failed to get current user: %w", err)
		}
		return filepath.Join(usr.HomeDir, ".config"), nil
	}
	return configDir, nil
}
