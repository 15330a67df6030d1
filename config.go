package coflow

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DefaultName is the scheduler name used when none is configured.
const DefaultName = "coflow"

// EnvPrefix prefixes every environment variable LoadConfig reads,
// e.g. COFLOW_TASK_TIMEOUT or COFLOW_LOG_LEVEL.
const EnvPrefix = "COFLOW"

// Config is the construction-time configuration of a Scheduler.
type Config struct {
	Name string `yaml:"name" mapstructure:"name"`
	// TaskTimeout bounds every task spawned without an explicit
	// controller. Zero means no bound.
	TaskTimeout time.Duration `yaml:"task_timeout" mapstructure:"task_timeout"`
	Log         LogConfig     `yaml:"log" mapstructure:"log"`
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Name == "" {
		c.Name = DefaultName
	}
	c.Log.ApplyDefaults()
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.TaskTimeout < 0 {
		return fmt.Errorf("task_timeout must not be negative (got: %s)", c.TaskTimeout)
	}
	return c.Log.Validate()
}

// LogConfig contains logging configuration.
type LogConfig struct {
	Level   string `yaml:"level" mapstructure:"level"`
	Format  string `yaml:"format" mapstructure:"format"`
	Output  string `yaml:"output" mapstructure:"output"`
	NoColor bool   `yaml:"no_color" mapstructure:"no_color"`
}

// ApplyDefaults applies default values to logging configuration.
func (c *LogConfig) ApplyDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "console"
	}
	if c.Output == "" {
		c.Output = "stderr"
	}
}

// Validate validates logging configuration.
func (c *LogConfig) Validate() error {
	validLevels := []string{"trace", "debug", "info", "warn", "error", "disabled"}
	if !slices.Contains(validLevels, c.Level) {
		return fmt.Errorf("log.level must be one of %v (got: %s)", validLevels, c.Level)
	}
	validFormats := []string{"json", "console"}
	if !slices.Contains(validFormats, c.Format) {
		return fmt.Errorf("log.format must be one of %v (got: %s)", validFormats, c.Format)
	}
	validOutputs := []string{"stdout", "stderr"}
	if !slices.Contains(validOutputs, c.Output) {
		return fmt.Errorf("log.output must be one of %v (got: %s)", validOutputs, c.Output)
	}
	return nil
}

// LoaderConfig holds optional file locations for LoadConfig.
type LoaderConfig struct {
	ConfigFile string // YAML config file (optional)
	EnvFile    string // .env file loaded into the process environment (optional)
}

// LoadConfig builds a Config from defaults, an optional YAML file and
// COFLOW_* environment variables, in increasing precedence. An env
// file, if given, is loaded first and never overrides variables that
// are already set.
func LoadConfig(opts LoaderConfig) (Config, error) {
	var cfg Config

	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil {
			return cfg, fmt.Errorf("failed to load env file %s: %w", opts.EnvFile, err)
		}
	}

	v := viper.New()
	v.SetDefault("name", DefaultName)
	v.SetDefault("task_timeout", "0s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stderr")
	v.SetDefault("log.no_color", false)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return cfg, fmt.Errorf("failed to read config file %s: %w", opts.ConfigFile, err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
