package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config carries runtime options for sysmon.
type Config struct {
	Poll    Poll    `toml:"poll" yaml:"poll"`
	History History `toml:"history" yaml:"history"`
	Log     Log     `toml:"log" yaml:"log"`
	Server  Server  `toml:"server" yaml:"server"`
}

// Poll configures one sampling session.
type Poll struct {
	FastInterval      Duration `toml:"fast_interval" yaml:"fast_interval"`
	SlowInterval      Duration `toml:"slow_interval" yaml:"slow_interval"`
	TopN              int      `toml:"top_n" yaml:"top_n"`
	ExcludedNameTerms []string `toml:"excluded_name_terms" yaml:"excluded_name_terms"`
	// MinCPUShare drops processes whose CPU share is at or below it.
	MinCPUShare float64 `toml:"min_cpu_share" yaml:"min_cpu_share"`
}

// History sizes the consumer-side chart windows.
type History struct {
	Capacity int `toml:"capacity" yaml:"capacity"`
}

// Log selects slog level, handler format and destination.
type Log struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"`
	Output string `toml:"output" yaml:"output"`
}

// Server holds listen addresses for `sysmon serve`.
type Server struct {
	HTTPAddr string `toml:"http_addr" yaml:"http_addr"`
	GRPCAddr string `toml:"grpc_addr" yaml:"grpc_addr"`
}

// DefaultExcludedNameTerms hides host and kernel noise from the ranking.
var DefaultExcludedNameTerms = []string{"idle", "system", "kworker", "ksoftirqd", "migration", "rcu_"}

func Default() Config {
	return Config{
		Poll: DefaultPoll(),
		History: History{
			Capacity: 30,
		},
		Log: Log{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Server: Server{
			HTTPAddr: "127.0.0.1:7070",
			GRPCAddr: "127.0.0.1:7071",
		},
	}
}

func DefaultPoll() Poll {
	return Poll{
		FastInterval:      Duration{2 * time.Second},
		SlowInterval:      Duration{time.Minute},
		TopN:              10,
		ExcludedNameTerms: append([]string(nil), DefaultExcludedNameTerms...),
		MinCPUShare:       0,
	}
}

// ConfigError reports a rejected setting.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}

// Validate rejects settings that are programmer errors rather than runtime conditions.
func (p Poll) Validate() error {
	if p.FastInterval.Duration <= 0 {
		return &ConfigError{Field: "poll.fast_interval", Message: fmt.Sprintf("must be positive, got %s", p.FastInterval)}
	}
	if p.SlowInterval.Duration <= 0 {
		return &ConfigError{Field: "poll.slow_interval", Message: fmt.Sprintf("must be positive, got %s", p.SlowInterval)}
	}
	if p.TopN <= 0 {
		return &ConfigError{Field: "poll.top_n", Message: fmt.Sprintf("must be positive, got %d", p.TopN)}
	}
	if p.MinCPUShare < 0 {
		return &ConfigError{Field: "poll.min_cpu_share", Message: fmt.Sprintf("must be non-negative, got %g", p.MinCPUShare)}
	}
	return nil
}

func (c Config) Validate() error {
	if err := c.Poll.Validate(); err != nil {
		return err
	}
	if c.History.Capacity <= 0 {
		return &ConfigError{Field: "history.capacity", Message: fmt.Sprintf("must be positive, got %d", c.History.Capacity)}
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return &ConfigError{Field: "log.format", Message: fmt.Sprintf("must be 'text' or 'json', got %q", c.Log.Format)}
	}
	return nil
}

// Duration decodes "1500ms"/"2s" strings; bare numbers in files are milliseconds.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	parsed, err := parseDuration(string(b), time.Millisecond)
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration: expected scalar, got yaml kind %d", node.Kind)
	}
	return d.UnmarshalText([]byte(node.Value))
}

// parseDuration accepts time.ParseDuration syntax or a bare number in bareUnit.
func parseDuration(s string, bareUnit time.Duration) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if parsed, err := time.ParseDuration(s); err == nil {
		return parsed, nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return time.Duration(n * float64(bareUnit)), nil
}
