package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// LoadFile merges a TOML or YAML file (chosen by extension) over Default().
// An empty path or a missing file yields the defaults.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		_, err = toml.Decode(string(data), &cfg)
	}
	if err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadEnvFile loads variables from a .env file without overriding ones
// already set. It reports whether a file was loaded.
func LoadEnvFile(logger *slog.Logger, path string) bool {
	if logger == nil {
		logger = slog.Default()
	}
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		logger.Debug("no .env file found", "path", path)
		return false
	}
	if err := godotenv.Load(path); err != nil {
		logger.Warn("failed to load .env file", "path", path, "err", err)
		return false
	}
	logger.Debug("loaded .env file", "path", path)
	return true
}

// ApplyEnv overrides cfg from SYSMON_* variables. Bare numbers in interval
// variables are seconds.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv("SYSMON_FAST_INTERVAL"); v != "" {
		if d, err := parseDuration(v, time.Second); err == nil {
			cfg.Poll.FastInterval = Duration{d}
		}
	}
	if v := os.Getenv("SYSMON_SLOW_INTERVAL"); v != "" {
		if d, err := parseDuration(v, time.Second); err == nil {
			cfg.Poll.SlowInterval = Duration{d}
		}
	}
	if v := os.Getenv("SYSMON_TOP_N"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Poll.TopN = n
		}
	}
	if v, ok := os.LookupEnv("SYSMON_EXCLUDE"); ok {
		cfg.Poll.ExcludedNameTerms = splitList(v)
	}
	if v := os.Getenv("SYSMON_MIN_CPU"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Poll.MinCPUShare = f
		}
	}
	if v := os.Getenv("SYSMON_HISTORY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.History.Capacity = n
		}
	}
	if v := os.Getenv("SYSMON_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("SYSMON_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("SYSMON_LOG_OUTPUT"); v != "" {
		cfg.Log.Output = v
	}
	if v := os.Getenv("SYSMON_HTTP_ADDR"); v != "" {
		cfg.Server.HTTPAddr = v
	}
	if v := os.Getenv("SYSMON_GRPC_ADDR"); v != "" {
		cfg.Server.GRPCAddr = v
	}
}

// Flags holds command-line overrides registered on a pflag set.
type Flags struct {
	fs *pflag.FlagSet

	fast      time.Duration
	slow      time.Duration
	topN      int
	exclude   []string
	minCPU    float64
	history   int
	logLevel  string
	logFormat string
	logOutput string
}

// BindFlags registers override flags. Defaults shown in help come from Default().
func BindFlags(fs *pflag.FlagSet) *Flags {
	def := Default()
	f := &Flags{fs: fs}
	fs.DurationVar(&f.fast, "interval", def.Poll.FastInterval.Duration, "fast loop delay (cpu, memory, processes)")
	fs.DurationVar(&f.slow, "storage-interval", def.Poll.SlowInterval.Duration, "slow loop period (storage)")
	fs.IntVar(&f.topN, "top", def.Poll.TopN, "number of processes to publish")
	fs.StringSliceVar(&f.exclude, "exclude", def.Poll.ExcludedNameTerms, "case-insensitive process name substrings to hide")
	fs.Float64Var(&f.minCPU, "min-cpu", def.Poll.MinCPUShare, "hide processes at or below this cpu share")
	fs.IntVar(&f.history, "history", def.History.Capacity, "chart history length")
	fs.StringVar(&f.logLevel, "log-level", def.Log.Level, "log level: debug|info|warn|error")
	fs.StringVar(&f.logFormat, "log-format", def.Log.Format, "log format: text|json")
	fs.StringVar(&f.logOutput, "log-output", def.Log.Output, "log destination: stdout|stderr|<file>")
	return f
}

// Apply copies only the flags the user actually set.
func (f *Flags) Apply(cfg *Config) {
	changed := func(name string) bool {
		fl := f.fs.Lookup(name)
		return fl != nil && fl.Changed
	}
	if changed("interval") {
		cfg.Poll.FastInterval = Duration{f.fast}
	}
	if changed("storage-interval") {
		cfg.Poll.SlowInterval = Duration{f.slow}
	}
	if changed("top") {
		cfg.Poll.TopN = f.topN
	}
	if changed("exclude") {
		cfg.Poll.ExcludedNameTerms = f.exclude
	}
	if changed("min-cpu") {
		cfg.Poll.MinCPUShare = f.minCPU
	}
	if changed("history") {
		cfg.History.Capacity = f.history
	}
	if changed("log-level") {
		cfg.Log.Level = f.logLevel
	}
	if changed("log-format") {
		cfg.Log.Format = f.logFormat
	}
	if changed("log-output") {
		cfg.Log.Output = f.logOutput
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
