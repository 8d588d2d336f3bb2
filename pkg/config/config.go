// Package config loads oesql settings from a file, OESQL_* environment
// variables and built-in defaults, in that order of precedence after
// environment.
package config

import (
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/ha1tch/oesql/pkg/dialect"
	"github.com/ha1tch/oesql/pkg/driver"
	"github.com/ha1tch/oesql/pkg/errors"
	"github.com/ha1tch/oesql/pkg/log"
	"github.com/ha1tch/oesql/pkg/storage"
	"github.com/ha1tch/oesql/pkg/translate"
)

// EnvPrefix prefixes environment overrides, e.g. OESQL_SESSION_SCHEMA.
const EnvPrefix = "OESQL"

// Config is the full oesql configuration.
type Config struct {
	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`

	Session struct {
		Schema    string `mapstructure:"schema"`
		DualTable string `mapstructure:"dual_table"`
	} `mapstructure:"session"`

	Journal struct {
		// Path of the SQLite journal; empty disables it.
		Path string `mapstructure:"path"`
	} `mapstructure:"journal"`

	Translate struct {
		Format      string `mapstructure:"format"`
		Concurrency int    `mapstructure:"concurrency"`
		OutDir      string `mapstructure:"out_dir"`
	} `mapstructure:"translate"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("session.schema", dialect.SequenceSchema)
	v.SetDefault("session.dual_table", dialect.DefaultDualTable)
	v.SetDefault("journal.path", "")
	v.SetDefault("translate.format", string(translate.FormatSQL))
	v.SetDefault("translate.concurrency", 4)
	v.SetDefault("translate.out_dir", "")
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg, _ := load(newViper())
	return cfg
}

// Load reads the config file at path (YAML, TOML or JSON by extension)
// and applies environment overrides. An empty path uses defaults and
// environment only.
func Load(path string) (*Config, error) {
	v := newViper()
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeConfigMissing, "config file not found").
				WithField("path", path).Err()
		}
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeConfigParse, "read config").
				WithField("path", path).Err()
		}
	}
	cfg, err := load(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigParse, "unmarshal config").Err()
	}
	return &cfg, nil
}

// Validate checks value ranges and names.
func (c *Config) Validate() error {
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigValidation, "invalid log.level").
			WithField("value", c.Log.Level).Err()
	}
	if _, err := log.ParseFormat(c.Log.Format); err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigValidation, "invalid log.format").
			WithField("value", c.Log.Format).Err()
	}
	if strings.TrimSpace(c.Session.Schema) == "" {
		return errors.New(errors.ErrCodeConfigValidation, "session.schema must not be empty").Err()
	}
	if _, err := translate.ParseFormat(c.Translate.Format); err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigValidation, "invalid translate.format").
			WithField("value", c.Translate.Format).Err()
	}
	if c.Translate.Concurrency < 1 {
		return errors.Newf(errors.ErrCodeConfigValidation, "translate.concurrency must be positive, got %d", c.Translate.Concurrency).Err()
	}
	return nil
}

// LoggerConfig returns the logger settings. Call Validate first.
func (c *Config) LoggerConfig() log.Config {
	lc := log.DefaultConfig()
	if level, err := log.ParseLevel(c.Log.Level); err == nil {
		lc.DefaultLevel = level
	}
	if format, err := log.ParseFormat(c.Log.Format); err == nil {
		lc.Format = format
	}
	return lc
}

// DriverConfig returns the session settings.
func (c *Config) DriverConfig() driver.Config {
	return driver.Config{
		Schema:    c.Session.Schema,
		DualTable: c.Session.DualTable,
	}
}

// JournalConfig returns the journal settings and whether a journal is
// configured.
func (c *Config) JournalConfig() (storage.JournalConfig, bool) {
	jc := storage.DefaultJournalConfig()
	if c.Journal.Path == "" {
		return jc, false
	}
	jc.Path = c.Journal.Path
	return jc, true
}

// TranslateFormat returns the output format. Call Validate first.
func (c *Config) TranslateFormat() translate.Format {
	f, err := translate.ParseFormat(c.Translate.Format)
	if err != nil {
		return translate.FormatSQL
	}
	return f
}
