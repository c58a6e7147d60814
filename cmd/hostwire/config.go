package main

import (
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds CLI configuration.
type Config struct {
	Address          string
	Codec            string
	Name             string
	UUID             string
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	MetricsAddr      string        `mapstructure:"metrics_addr"`
	Log              LogConfig
}

// LogConfig holds logging settings. An empty File logs to stderr.
type LogConfig struct {
	Level      string
	Format     string
	File       string
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	Compress   bool `mapstructure:"compress"`
}

// flagKeys maps persistent flags to config keys.
var flagKeys = map[string]string{
	"address":         "address",
	"codec":           "codec",
	"name":            "name",
	"request-timeout": "request_timeout",
	"metrics-addr":    "metrics_addr",
	"log-level":       "log.level",
	"log-file":        "log.file",
}

// LoadConfig reads configuration from file, env and flags, in increasing
// precedence. Env var overrides use prefix HOSTWIRE_. path selects the
// config file; when empty HOSTWIRE_CONFIG or ~/.config/hostwire/config.* is
// used if present.
func LoadConfig(path string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()

	v.SetDefault("address", "ws://127.0.0.1:9696")
	v.SetDefault("codec", "json")
	v.SetDefault("name", "hostwire-cli")
	v.SetDefault("uuid", "")
	v.SetDefault("request_timeout", 30*time.Second)
	v.SetDefault("handshake_timeout", 60*time.Second)
	v.SetDefault("metrics_addr", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 7)
	v.SetDefault("log.compress", false)

	explicit := path != ""
	if !explicit {
		path = os.Getenv("HOSTWIRE_CONFIG")
		explicit = path != ""
	}

	if explicit {
		v.SetConfigFile(path)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "hostwire"))
		}

		v.SetConfigName("config")
	}

	v.SetEnvPrefix("HOSTWIRE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit || !stderrors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	return c, nil
}
