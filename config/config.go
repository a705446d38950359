// Package config loads and validates the rr-mcp configuration file.
//
// Configuration lives in config.yaml under the paths.ConfigDir layout. The
// file is optional: a missing file yields the defaults, and every field has
// a usable zero-configuration default so the server runs out of the box.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/replaydev/rr-mcp/paths"
)

// Driver mode names accepted in config and on the command line.
const (
	ModeMI   = "mi"   // structured GDB/MI stream over rr's stdin/stdout
	ModeLLDB = "lldb" // LLDB front-end attached to rr's gdbserver port
)

// Default values applied when the config file is absent or fields are unset.
const (
	DefaultMode           = ModeMI
	DefaultRemotePort     = 50505
	DefaultPollInterval   = 500 * time.Millisecond
	DefaultStartupDelay   = 2 * time.Second
	DefaultTerminateGrace = 5 * time.Second
	DefaultMaxOutputBytes = 6 * 1024
)

// Duration wraps time.Duration so YAML values like "500ms" parse naturally.
type Duration time.Duration

// UnmarshalYAML parses a duration from either a Go duration string or a
// plain integer (interpreted as seconds).
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, perr := time.ParseDuration(s)
		if perr != nil {
			return fmt.Errorf("invalid duration %q: %w", s, perr)
		}
		*d = Duration(parsed)
		return nil
	}

	var secs int64
	if err := value.Decode(&secs); err != nil {
		return fmt.Errorf("invalid duration value")
	}
	*d = Duration(time.Duration(secs) * time.Second)
	return nil
}

// MarshalYAML renders the duration in Go's duration string form.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config holds the rr-mcp server configuration.
type Config struct {
	// Mode selects the debugger driver: "mi" or "lldb".
	Mode string `yaml:"mode,omitempty"`

	// RemotePort is the loopback port rr's gdbserver listens on in lldb mode.
	RemotePort int `yaml:"remote_port,omitempty"`

	// PollInterval bounds each poll of the MI message stream while waiting
	// for a command to settle.
	PollInterval Duration `yaml:"poll_interval,omitempty"`

	// StartupDelay is how long to wait after spawning the replay back-end
	// before checking whether it exited early.
	StartupDelay Duration `yaml:"startup_delay,omitempty"`

	// TerminateGrace is how long a back-end gets to exit gracefully before
	// being force-killed.
	TerminateGrace Duration `yaml:"terminate_grace,omitempty"`

	// MaxOutputBytes caps settled command output; longer output is
	// truncated with an ellipsis marker.
	MaxOutputBytes int `yaml:"max_output_bytes,omitempty"`
}

// Default returns a Config with every field set to its default.
func Default() Config {
	return Config{
		Mode:           DefaultMode,
		RemotePort:     DefaultRemotePort,
		PollInterval:   Duration(DefaultPollInterval),
		StartupDelay:   Duration(DefaultStartupDelay),
		TerminateGrace: Duration(DefaultTerminateGrace),
		MaxOutputBytes: DefaultMaxOutputBytes,
	}
}

// Load reads config.yaml from the resolved config path, or returns the
// defaults if the file does not exist.
func Load() (Config, error) {
	path, err := paths.ConfigFilePath()
	if err != nil {
		return Config{}, err
	}
	return LoadFrom(path)
}

// LoadFrom reads configuration from an explicit path. A missing file is not
// an error; defaults are returned.
func LoadFrom(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// applyDefaults fills unset fields with their default values.
func (c *Config) applyDefaults() {
	if c.Mode == "" {
		c.Mode = DefaultMode
	}
	if c.RemotePort == 0 {
		c.RemotePort = DefaultRemotePort
	}
	if c.PollInterval == 0 {
		c.PollInterval = Duration(DefaultPollInterval)
	}
	if c.StartupDelay == 0 {
		c.StartupDelay = Duration(DefaultStartupDelay)
	}
	if c.TerminateGrace == 0 {
		c.TerminateGrace = Duration(DefaultTerminateGrace)
	}
	if c.MaxOutputBytes == 0 {
		c.MaxOutputBytes = DefaultMaxOutputBytes
	}
}

// Validate checks that the configuration is internally consistent.
func (c Config) Validate() error {
	switch c.Mode {
	case ModeMI, ModeLLDB:
	default:
		return fmt.Errorf("unknown mode %q (want %q or %q)", c.Mode, ModeMI, ModeLLDB)
	}
	if c.RemotePort < 1 || c.RemotePort > 65535 {
		return fmt.Errorf("remote_port %d out of range", c.RemotePort)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive")
	}
	if c.MaxOutputBytes <= 0 {
		return fmt.Errorf("max_output_bytes must be positive")
	}
	return nil
}
