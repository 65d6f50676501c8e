package config

import (
	"fmt"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/mitchellh/mapstructure"
)

const (
	DefaultVersion      = "1.0"
	DefaultQueueSize    = 100
	DefaultStreamBuffer = 100
	DefaultInterval     = Duration(30 * time.Second)
)

// DefaultRevs are resolved for every repository when collector.revs is empty.
var DefaultRevs = []string{"HEAD"}

// Duration is a time.Duration written as a Go duration string ("30s", "5m")
// in YAML, TOML and JSON.
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	*d = Duration(v)
	return nil
}

// JSONSchema describes Duration as a string in the generated schema.
func (Duration) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:        "string",
		Pattern:     `^([0-9]+(\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$`,
		Description: "Go duration string, e.g. 30s or 5m",
	}
}

// ServerConfig configures the daemon's listeners.
type ServerConfig struct {
	Socket       string `yaml:"socket,omitempty" toml:"socket,omitempty" json:"socket,omitempty" jsonschema:"description=Unix socket path (defaults to the runtime directory)"`
	Address      string `yaml:"address,omitempty" toml:"address,omitempty" json:"address,omitempty" jsonschema:"description=Optional TCP listen address such as 127.0.0.1:7420"`
	StreamBuffer int    `yaml:"stream_buffer,omitempty" toml:"stream_buffer,omitempty" json:"stream_buffer,omitempty" jsonschema:"minimum=0,description=Per-subscriber notification buffer"`
}

// EngineConfig configures the action queue.
type EngineConfig struct {
	QueueSize int `yaml:"queue_size,omitempty" toml:"queue_size,omitempty" json:"queue_size,omitempty" jsonschema:"minimum=0,description=Capacity of the dispatch queue"`
}

// CollectorConfig configures the local git collector.
type CollectorConfig struct {
	Enabled  *bool    `yaml:"enabled,omitempty" toml:"enabled,omitempty" json:"enabled,omitempty" jsonschema:"description=Scan roots for git repositories (defaults to true when roots are set)"`
	Roots    []string `yaml:"roots,omitempty" toml:"roots,omitempty" json:"roots,omitempty" jsonschema:"description=Directories scanned for repositories"`
	Exclude  []string `yaml:"exclude,omitempty" toml:"exclude,omitempty" json:"exclude,omitempty" jsonschema:"description=Patterns relative to a root that are not descended into"`
	Interval Duration `yaml:"interval,omitempty" toml:"interval,omitempty" json:"interval,omitempty" jsonschema:"description=Time between scans"`
	Revs     []string `yaml:"revs,omitempty" toml:"revs,omitempty" json:"revs,omitempty" jsonschema:"description=Revisions resolved in every repository"`
}

// IsEnabled reports whether the collector should run.
func (c CollectorConfig) IsEnabled() bool {
	return c.Enabled != nil && *c.Enabled
}

// Config is the repostore configuration file.
type Config struct {
	Version   string          `yaml:"version,omitempty" toml:"version,omitempty" json:"version,omitempty" jsonschema:"description=Configuration version (e.g. 1.0)"`
	Server    ServerConfig    `yaml:"server,omitempty" toml:"server,omitempty" json:"server" jsonschema:"description=Daemon listeners"`
	Engine    EngineConfig    `yaml:"engine,omitempty" toml:"engine,omitempty" json:"engine" jsonschema:"description=Action dispatch"`
	Collector CollectorConfig `yaml:"collector,omitempty" toml:"collector,omitempty" json:"collector" jsonschema:"description=Local git repository collector"`

	// Extensions captures all other top-level keys, such as "logging".
	Extensions map[string]interface{} `yaml:",inline" toml:"-" json:"-" jsonschema:"-"`
}

// knownKeys are the top-level keys decoded into Config fields rather than Extensions.
var knownKeys = map[string]bool{
	"version":   true,
	"server":    true,
	"engine":    true,
	"collector": true,
}

// SetDefaults sets default values for configuration
func (c *Config) SetDefaults() {
	if c.Version == "" {
		c.Version = DefaultVersion
	}
	if c.Engine.QueueSize == 0 {
		c.Engine.QueueSize = DefaultQueueSize
	}
	if c.Server.StreamBuffer == 0 {
		c.Server.StreamBuffer = DefaultStreamBuffer
	}
	if c.Collector.Interval == 0 {
		c.Collector.Interval = DefaultInterval
	}
	if len(c.Collector.Revs) == 0 {
		c.Collector.Revs = append([]string(nil), DefaultRevs...)
	}
	if c.Collector.Enabled == nil {
		enabled := len(c.Collector.Roots) > 0
		c.Collector.Enabled = &enabled
	}
	for i, root := range c.Collector.Roots {
		c.Collector.Roots[i] = expandPath(root)
	}
	c.Server.Socket = expandPath(c.Server.Socket)
}

// UnmarshalExtension decodes a specific extension's configuration into the
// provided target struct. The target must be a pointer. A missing key leaves
// target untouched.
//
// Example:
//
//	var logCfg logging.Config
//	err := cfg.UnmarshalExtension("logging", &logCfg)
func (c *Config) UnmarshalExtension(key string, target interface{}) error {
	extensionConfig, ok := c.Extensions[key]
	if !ok {
		return nil
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		TagName:          "yaml",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("failed to create mapstructure decoder: %w", err)
	}

	if err := decoder.Decode(extensionConfig); err != nil {
		return fmt.Errorf("failed to decode extension config for '%s': %w", key, err)
	}

	return nil
}
