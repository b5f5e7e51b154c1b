// Package config loads baler settings from defaults, an optional baler.yaml
// and BALER_* environment variables. Command-line flags are applied on top by
// the cmd package.
package config

import (
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/viper"

	"baler/internal/batch"
	"baler/pkg/archfmt"
)

type Config struct {
	Jobs        int    `mapstructure:"jobs"`
	Overwrite   bool   `mapstructure:"overwrite"`
	StopOnError bool   `mapstructure:"stop_on_error"`
	Hoist       bool   `mapstructure:"hoist"`
	Recursive   bool   `mapstructure:"recursive"`
	Checksum    bool   `mapstructure:"checksum"`
	Format      string `mapstructure:"format"`
	TUI         bool   `mapstructure:"tui"`
	Log         struct {
		Level string `mapstructure:"level"`
		File  string `mapstructure:"file"`
	} `mapstructure:"log"`
}

// DefaultJobs is the worker bound used when none is configured.
func DefaultJobs() int {
	return batch.ClampParallel(runtime.NumCPU())
}

// Load reads configuration. An empty cfgFile searches $HOME/.baler and the
// working directory for baler.yaml; a missing file there is not an error.
// An explicit cfgFile must exist.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	v.SetDefault("jobs", DefaultJobs())
	v.SetDefault("overwrite", false)
	v.SetDefault("stop_on_error", false)
	v.SetDefault("hoist", true)
	v.SetDefault("recursive", false)
	v.SetDefault("checksum", false)
	v.SetDefault("format", archfmt.Zip.String())
	v.SetDefault("tui", true)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")

	v.SetEnvPrefix("baler")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("baler")
		v.SetConfigType("yaml")
		v.AddConfigPath("$HOME/.baler")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate clamps the worker bound and checks the default format.
func (c *Config) Validate() error {
	if c.Jobs == 0 {
		c.Jobs = DefaultJobs()
	}
	c.Jobs = batch.ClampParallel(c.Jobs)
	if _, err := archfmt.ParseFormat(c.Format); err != nil {
		return fmt.Errorf("config format: %w", err)
	}
	return nil
}
