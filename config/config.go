package config

import (
	"cmp"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/INLOpen/nexuslake/codec"
	"github.com/INLOpen/nexuslake/compressors"
	"github.com/INLOpen/nexuslake/core"
	"github.com/INLOpen/nexuslake/lake"
	"github.com/INLOpen/nexuslake/logstore"
	"gopkg.in/yaml.v3"
)

// LakeConfig holds the storage settings of a lake.
type LakeConfig struct {
	DataDir            string `yaml:"data_dir"`
	MaxFileSizeBytes   int64  `yaml:"max_file_size_bytes"`
	SyncMode           string `yaml:"sync_mode"` // "always" or "none"
	RebuildOnOpen      bool   `yaml:"rebuild_on_open"`
	RebuildPolicy      string `yaml:"rebuild_policy"` // "abort" or "skip_file"
	RebuildConcurrency int    `yaml:"rebuild_concurrency"`
	Compression        string `yaml:"compression"` // "none", "snappy", "lz4" or "zstd"
	MaxRecordSizeBytes uint32 `yaml:"max_record_size_bytes"`
	ValueCacheCapacity int    `yaml:"value_cache_capacity"`
}

// TLSConfig holds TLS-specific configurations.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// ServerConfig holds server-specific configurations.
type ServerConfig struct {
	GRPCAddress     string    `yaml:"grpc_address"`
	ShutdownTimeout string    `yaml:"shutdown_timeout"`
	TLS             TLSConfig `yaml:"tls"`
}

// LoggingConfig holds logging-specific configurations.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // e.g., "debug", "info", "warn", "error"
	Output string `yaml:"output"` // e.g., "stdout", "file", "none"
	File   string `yaml:"file"`   // Path to the log file, used if output is "file"
}

// DebugConfig holds debugging-related configurations.
type DebugConfig struct {
	Enabled               bool   `yaml:"enabled"`
	ListenAddress         string `yaml:"listen_address"`
	PProfEnabled          bool   `yaml:"pprof_enabled"`
	MetricsEnabled        bool   `yaml:"metrics_enabled"`
	PrometheusEnabled     bool   `yaml:"prometheus_enabled"`
	MonitorUIEnabled      bool   `yaml:"monitor_ui_enabled"`
	SystemCollectInterval string `yaml:"system_collect_interval"`
}

// TracingConfig holds configuration for distributed tracing.
type TracingConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"` // e.g., "localhost:4317" for gRPC OTLP collector
	Protocol string `yaml:"protocol"` // "grpc" or "http"
}

// Config is the top-level configuration struct.
type Config struct {
	Lake    LakeConfig    `yaml:"lake"`
	Server  ServerConfig  `yaml:"server"`
	Debug   DebugConfig   `yaml:"debug"`
	Logging LoggingConfig `yaml:"logging"`
	Tracing TracingConfig `yaml:"tracing"`
}

// ParseDuration parses a duration string. Returns the default duration if the string is empty or invalid.
// Logs a warning if the string is invalid but not empty.
func ParseDuration(durationStr string, defaultDuration time.Duration, logger *slog.Logger) time.Duration {
	if durationStr == "" || durationStr == "0" {
		return defaultDuration
	}
	d, err := time.ParseDuration(durationStr)
	if err != nil {
		if logger != nil {
			logger.Warn("Invalid duration format, using default", "input", durationStr, "default", defaultDuration.String(), "error", err)
		}
		return defaultDuration
	}
	return d
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Lake: LakeConfig{
			DataDir:            "./data",
			MaxFileSizeBytes:   core.DefaultMaxFileSize,
			SyncMode:           string(logstore.SyncAlways),
			RebuildOnOpen:      true,
			RebuildPolicy:      lake.RebuildAbort.String(),
			RebuildConcurrency: lake.DefaultRebuildConcurrency,
			Compression:        "snappy",
			MaxRecordSizeBytes: codec.DefaultMaxRecordSize,
			ValueCacheCapacity: 4096,
		},
		Server: ServerConfig{
			GRPCAddress:     ":50061",
			ShutdownTimeout: "10s",
			TLS: TLSConfig{
				Enabled:  false,
				CertFile: "certs/server.crt",
				KeyFile:  "certs/server.key",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: "stdout",
			File:   "nexuslake.log",
		},
		Tracing: TracingConfig{
			Enabled:  false,
			Endpoint: "localhost:4317",
			Protocol: "grpc",
		},
		Debug: DebugConfig{
			Enabled:               true,
			ListenAddress:         "0.0.0.0:6061",
			PProfEnabled:          true,
			MetricsEnabled:        true,
			PrometheusEnabled:     true,
			MonitorUIEnabled:      true,
			SystemCollectInterval: "15s",
		},
	}
}

// Load reads configuration from an io.Reader.
// This is the core logic, separated for testability.
func Load(r io.Reader) (*Config, error) {
	cfg := Default()

	// If the reader is nil, it's like an empty file, return defaults.
	if r == nil {
		return cfg, nil
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config data: %w", err)
	}
	if len(data) == 0 {
		return cfg, nil
	}

	// Unmarshal YAML into the config struct, overwriting defaults
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}
	return cfg, nil
}

// LoadConfig reads configuration from a YAML file by path.
func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			// If file doesn't exist, return default config by calling Load with a nil reader.
			return Load(nil)
		}
		return nil, fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer file.Close()

	return Load(file)
}

// ParseSyncMode maps the sync_mode setting to a logstore.SyncMode.
func ParseSyncMode(s string) (logstore.SyncMode, error) {
	switch mode := logstore.SyncMode(strings.ToLower(s)); mode {
	case "":
		return logstore.SyncAlways, nil
	case logstore.SyncAlways, logstore.SyncNone:
		return mode, nil
	default:
		return "", &core.UnsupportedTypeError{Message: "sync mode " + s}
	}
}

// NewCodec builds the framed record codec described by the lake section
// around m.
func NewCodec[V any](c LakeConfig, m codec.Marshaler[V]) (*codec.Framed[V], error) {
	compressionType, err := core.ParseCompressionType(strings.ToLower(c.Compression))
	if err != nil {
		return nil, err
	}
	compressor, err := compressors.ForType(compressionType)
	if err != nil {
		return nil, err
	}
	opts := []codec.FramedOption[V]{codec.WithCompressor[V](compressor)}
	if c.MaxRecordSizeBytes > 0 {
		opts = append(opts, codec.WithMaxRecordSize[V](c.MaxRecordSizeBytes))
	}
	return codec.NewFramed[V](m, opts...), nil
}

// ToOptions converts the lake section into lake.Options for values encoded
// with m. Logger, tracing, hooks and metrics are left for the caller.
func ToOptions[K cmp.Ordered, V core.Keyed[K]](c LakeConfig, m codec.Marshaler[V]) (lake.Options[K, V], error) {
	var opts lake.Options[K, V]
	syncMode, err := ParseSyncMode(c.SyncMode)
	if err != nil {
		return opts, err
	}
	policy, err := lake.ParseRebuildPolicy(c.RebuildPolicy)
	if err != nil {
		return opts, err
	}
	framed, err := NewCodec[V](c, m)
	if err != nil {
		return opts, err
	}

	opts = lake.Options[K, V]{
		Dir:                c.DataDir,
		Codec:              framed,
		MaxFileSize:        c.MaxFileSizeBytes,
		SyncMode:           syncMode,
		RebuildOnOpen:      c.RebuildOnOpen,
		RebuildPolicy:      policy,
		RebuildConcurrency: c.RebuildConcurrency,
		ValueCacheCapacity: c.ValueCacheCapacity,
	}
	return opts, nil
}
