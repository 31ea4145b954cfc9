// Package configtypes holds the plain configuration data types shared
// between the YAML loader (internal/config) and its consumers, kept
// separate from loading logic the way the teacher splits configtypes
// from config.
package configtypes

import "github.com/bombadil/exerciser/pkg/types"

// Log level constants.
const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

// Log format constants.
const (
	LogFormatJSON    = "json"
	LogFormatConsole = "console"
	LogFormatText    = "text"
)

// LogConfig configures the dynamic zap logger.
type LogConfig struct {
	Level   string           `yaml:"level"`
	Console ConsoleLogConfig `yaml:"console"`
	File    FileLogConfig    `yaml:"file"`
}

// ConsoleLogConfig configures the stdout sink.
type ConsoleLogConfig struct {
	Enabled bool   `yaml:"enabled"`
	Format  string `yaml:"format"`
	Level   string `yaml:"level,omitempty"`
}

// FileLogConfig configures the rotated file sink.
type FileLogConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Path     string         `yaml:"path"`
	Format   string         `yaml:"format"`
	Level    string         `yaml:"level,omitempty"`
	Rotation RotationConfig `yaml:"rotation"`
}

// RotationConfig configures lumberjack log rotation.
type RotationConfig struct {
	MaxSize    int  `yaml:"max_size"`
	MaxAge     int  `yaml:"max_age"`
	MaxBackups int  `yaml:"max_backups"`
	Compress   bool `yaml:"compress"`
}

// MetricsConfig configures the Prometheus HTTP endpoint.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Listen    string `yaml:"listen"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
}

// RedisConfig configures the optional progress-sharing sink.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// ClickHouseConfig configures the optional run-analytics sink.
type ClickHouseConfig struct {
	Addr     string `yaml:"addr"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Table    string `yaml:"table"`
}

// BrowserConfig configures the headless Chrome allocator.
type BrowserConfig struct {
	Headless      bool           `yaml:"headless"`
	NoSandbox     bool           `yaml:"no_sandbox"`
	Width         int            `yaml:"width"`
	Height        int            `yaml:"height"`
	UserDataDir   string         `yaml:"user_data_dir,omitempty"`
	WarmupURL     string         `yaml:"warmup_url"`
	WarmupTimeout types.Duration `yaml:"warmup_timeout"`
}

// EdgeMapConfig configures the browser-side coverage map size.
type EdgeMapConfig struct {
	Size int `yaml:"size"`
}

// TraceConfig configures the zstd-compressed JSONL trace writer.
type TraceConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// RunConfig is the top-level configuration for one exerciser run.
type RunConfig struct {
	EntryURL        string            `yaml:"entry_url"`
	Origin          string            `yaml:"origin,omitempty"` // defaults to EntryURL's host[:port]
	SpecFile        string            `yaml:"spec_file"`
	Seed            *int64            `yaml:"seed,omitempty"`
	StopOnViolation bool              `yaml:"stop_on_violation"`
	ScratchDir      string            `yaml:"scratch_dir"`
	Browser         BrowserConfig     `yaml:"browser"`
	EdgeMap         EdgeMapConfig     `yaml:"edge_map"`
	Log             LogConfig         `yaml:"log"`
	Metrics         MetricsConfig     `yaml:"metrics"`
	Trace           TraceConfig       `yaml:"trace"`
	Redis           *RedisConfig      `yaml:"redis,omitempty"`
	ClickHouse      *ClickHouseConfig `yaml:"clickhouse,omitempty"`
}
