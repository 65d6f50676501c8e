// Package config loads and validates repostore.yml / repostore.toml.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/grovetools/repostore/errors"
	"github.com/grovetools/repostore/pkg/paths"
	"github.com/pelletier/go-toml/v2"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Format is a configuration file syntax.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// ConfigNames are the file names searched for, in order of preference.
var ConfigNames = []string{
	"repostore.yml",
	"repostore.yaml",
	"repostore.toml",
}

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// FormatFromPath picks the syntax from a file extension. Anything that is not
// .toml is read as YAML.
func FormatFromPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return FormatTOML
	}
	return FormatYAML
}

// Load reads, validates and defaults a configuration file.
func Load(path string) (*Config, error) {
	cfg, err := loadRaw(path)
	if err != nil {
		return nil, err
	}
	return finalize(cfg)
}

// LoadFromBytes parses, validates and defaults configuration data.
func LoadFromBytes(data []byte, format Format) (*Config, error) {
	cfg, err := parse(data, format)
	if err != nil {
		return nil, err
	}
	return finalize(cfg)
}

// LoadFrom loads configuration with hierarchical merging:
// 1. Global config (<config dir>/repostore.yml) - base layer
// 2. Project config found from startDir upwards - overrides global
//
// It returns the path of the most specific file that was read.
func LoadFrom(startDir string, logger *logrus.Entry) (*Config, string, error) {
	globalPath := findIn(paths.ConfigDir())
	projectPath := findUpwards(startDir)

	if globalPath == "" && projectPath == "" {
		return nil, "", errors.ConfigNotFound(startDir).WithDetail("searchPath", startDir)
	}

	var final *Config
	var source string
	for _, path := range []string{globalPath, projectPath} {
		if path == "" || path == source {
			continue
		}
		logger.WithField("path", path).Debug("Loading configuration")
		layer, err := loadRaw(path)
		if err != nil {
			return nil, "", err
		}
		if final == nil {
			final = layer
		} else {
			final = mergeConfigs(final, layer)
		}
		source = path
	}

	cfg, err := finalize(final)
	if err != nil {
		return nil, "", err
	}
	return cfg, source, nil
}

// LoadOrDefault loads path when it is set, otherwise searches from the working
// directory. When no file exists anywhere it returns the defaults and an empty path.
func LoadOrDefault(path string, logger *logrus.Entry) (*Config, string, error) {
	if path != "" {
		cfg, err := Load(path)
		return cfg, path, err
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, "", errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to get current directory")
	}

	cfg, source, err := LoadFrom(cwd, logger)
	if errors.Is(err, errors.ErrCodeConfigNotFound) {
		logger.Debug("No configuration file found, using defaults")
		cfg = &Config{}
		cfg.SetDefaults()
		return cfg, "", nil
	}
	return cfg, source, err
}

// FindConfigFile searches for a configuration file with the following precedence:
// 1. startDir up to filesystem root
// 2. The repostore config directory
func FindConfigFile(startDir string) (string, error) {
	if path := findUpwards(startDir); path != "" {
		return path, nil
	}
	if path := findIn(paths.ConfigDir()); path != "" {
		return path, nil
	}
	return "", errors.ConfigNotFound(startDir).WithDetail("searchPath", startDir)
}

func findUpwards(startDir string) string {
	dir := startDir
	for {
		if path := findIn(dir); path != "" {
			return path
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func findIn(dir string) string {
	if dir == "" {
		return ""
	}
	for _, name := range ConfigNames {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}

// loadRaw reads and schema-checks a file without applying defaults.
func loadRaw(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.ConfigNotFound(path)
		}
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to read config file").
			WithDetail("path", path)
	}

	cfg, err := parse(data, FormatFromPath(path))
	if err != nil {
		if e, ok := err.(*errors.Error); ok {
			return nil, e.WithDetail("path", path)
		}
		return nil, err
	}
	return cfg, nil
}

// parse expands environment variables, validates the document against the
// schema and decodes it.
func parse(data []byte, format Format) (*Config, error) {
	expanded := []byte(expandEnvVars(string(data)))

	unmarshal := yaml.Unmarshal
	if format == FormatTOML {
		unmarshal = toml.Unmarshal
	}

	var raw map[string]interface{}
	if err := unmarshal(expanded, &raw); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, fmt.Sprintf("failed to parse %s configuration", strings.ToUpper(string(format))))
	}
	if raw == nil {
		raw = map[string]interface{}{}
	}

	validator, err := NewSchemaValidator()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to create validator")
	}
	if err := validator.Validate(raw); err != nil {
		return nil, errors.ConfigValidation(err)
	}

	var cfg Config
	if err := unmarshal(expanded, &cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, fmt.Sprintf("failed to decode %s configuration", strings.ToUpper(string(format))))
	}

	// TOML has no inline maps; unknown top-level keys become extensions here.
	if format == FormatTOML {
		for key, value := range raw {
			if knownKeys[key] {
				continue
			}
			if cfg.Extensions == nil {
				cfg.Extensions = make(map[string]interface{})
			}
			cfg.Extensions[key] = value
		}
	}

	return &cfg, nil
}

func finalize(cfg *Config) (*Config, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// expandEnvVars replaces ${VAR} with environment variable values.
// ${VAR:-default} falls back to default when VAR is unset or empty.
func expandEnvVars(content string) string {
	return envVarRegex.ReplaceAllStringFunc(content, func(match string) string {
		varName := envVarRegex.FindStringSubmatch(match)[1]

		parts := strings.SplitN(varName, ":-", 2)
		varName = parts[0]
		defaultValue := ""
		if len(parts) > 1 {
			defaultValue = parts[1]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultValue
	})
}

// expandPath expands a leading tilde.
func expandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}
