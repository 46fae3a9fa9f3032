package core

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"edgedetect/logging"
)

// Defaults.
const (
	DefaultThreads      = 23
	DefaultOutputDir    = "."
	DefaultOutputPrefix = "laplacian"
	DefaultOutputFormat = "ppm"
	DefaultCompression  = "none"

	// DefaultConfigFile is read when EDGEDETECT_CONFIG is unset and the
	// file exists in the working directory.
	DefaultConfigFile = "edgedetect.yaml"
)

// Supported output settings.
var (
	OutputFormats      = []string{"ppm", "bmp", "tiff"}
	OutputCompressions = []string{"none", "zstd"}

	// aliases maps accepted spellings to their canonical value.
	aliases = map[string]string{"tif": "tiff", "zst": "zstd"}
)

// Config holds all configuration values.
type Config struct {
	// Filter configuration
	Threads             int  `yaml:"laplacian_threads"`
	MaxConcurrentImages int  `yaml:"max_concurrent_images"` // 0 means one goroutine per input
	AllowDegraded       bool `yaml:"allow_degraded_output"`

	// Output configuration
	OutputDir         string `yaml:"output_dir"`
	OutputPrefix      string `yaml:"output_prefix"`
	OutputFormat      string `yaml:"output_format"`
	OutputCompression string `yaml:"output_compression"`

	// Run history (empty disables it)
	HistoryDBPath string `yaml:"history_db_path"`

	// Logging
	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`
	DevMode  bool   `yaml:"dev_mode"`

	// Source is the YAML file the values were read from, if any.
	Source string `yaml:"-"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() *Config {
	return &Config{
		Threads:           DefaultThreads,
		OutputDir:         DefaultOutputDir,
		OutputPrefix:      DefaultOutputPrefix,
		OutputFormat:      DefaultOutputFormat,
		OutputCompression: DefaultCompression,
	}
}

// LoadConfig builds the configuration from defaults, then the YAML file
// named by EDGEDETECT_CONFIG (or edgedetect.yaml if present), then
// environment variables. The result is validated.
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	path := os.Getenv("EDGEDETECT_CONFIG")
	if path == "" {
		if _, err := os.Stat(DefaultConfigFile); err == nil {
			path = DefaultConfigFile
		}
	}
	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigFile reads a YAML file over the defaults without consulting
// the environment. Keys missing from the file keep their defaults.
func LoadConfigFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	if err := cfg.mergeFile(path); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return ErrConfigFile(path, err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		c.Source = path
		return nil
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return ErrConfigFile(path, err)
	}
	c.normalize()
	c.Source = path
	return nil
}

// normalize lowercases the output format and compression and resolves
// their aliases.
func (c *Config) normalize() {
	c.OutputFormat = canonical(c.OutputFormat)
	c.OutputCompression = canonical(c.OutputCompression)
}

func canonical(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	if alias, ok := aliases[v]; ok {
		return alias
	}
	return v
}

func (c *Config) applyEnv() error {
	env := newEnvOverlay()

	env.setInt("LAPLACIAN_THREADS", &c.Threads)
	env.setInt("MAX_CONCURRENT_IMAGES", &c.MaxConcurrentImages)
	env.setBool("ALLOW_DEGRADED_OUTPUT", &c.AllowDegraded)

	env.setString("OUTPUT_DIR", &c.OutputDir)
	env.setString("OUTPUT_PREFIX", &c.OutputPrefix)
	env.setLower("OUTPUT_FORMAT", &c.OutputFormat)
	env.setLower("OUTPUT_COMPRESSION", &c.OutputCompression)

	env.setString("HISTORY_DB_PATH", &c.HistoryDBPath)

	env.setString("LOG_LEVEL", &c.LogLevel)
	env.setString("LOG_FILE", &c.LogFile)
	env.setBool("DEV_MODE", &c.DevMode)

	c.normalize()
	return env.Err()
}

// Validate checks every value and returns the first problem as a
// *ConfigError.
func (c *Config) Validate() error {
	if c.Threads < 1 {
		return ErrInvalidValue("LAPLACIAN_THREADS", fmt.Sprint(c.Threads), "must be at least 1")
	}
	if c.MaxConcurrentImages < 0 {
		return ErrInvalidValue("MAX_CONCURRENT_IMAGES", fmt.Sprint(c.MaxConcurrentImages), "must be 0 (unbounded) or positive")
	}
	if strings.TrimSpace(c.OutputPrefix) == "" {
		return ErrMissingConfig("OUTPUT_PREFIX")
	}
	if strings.ContainsAny(c.OutputPrefix, `/\`) {
		return ErrInvalidValue("OUTPUT_PREFIX", c.OutputPrefix, "must not contain path separators")
	}
	if c.OutputDir == "" {
		return ErrMissingConfig("OUTPUT_DIR")
	}
	if !contains(OutputFormats, c.OutputFormat) {
		return ErrInvalidValue("OUTPUT_FORMAT", c.OutputFormat, "expected one of "+strings.Join(OutputFormats, ", "))
	}
	if !contains(OutputCompressions, c.OutputCompression) {
		return ErrInvalidValue("OUTPUT_COMPRESSION", c.OutputCompression, "expected one of "+strings.Join(OutputCompressions, ", "))
	}
	if c.LogLevel != "" {
		if _, ok := logging.ParseLogLevel(c.LogLevel, logging.InfoLevel); !ok {
			return ErrInvalidValue("LOG_LEVEL", c.LogLevel, "expected debug, info, warn or error")
		}
	}
	return nil
}

// Level returns the parsed log level. Without LOG_LEVEL the level is info,
// or debug in DevMode.
func (c *Config) Level() logging.LogLevel {
	def := logging.InfoLevel
	if c.DevMode {
		def = logging.DebugLevel
	}
	level, _ := logging.ParseLogLevel(c.LogLevel, def)
	return level
}

// HistoryEnabled reports whether runs should be recorded.
func (c *Config) HistoryEnabled() bool {
	return c.HistoryDBPath != ""
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

