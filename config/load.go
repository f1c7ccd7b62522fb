package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/HemSoft/hs-buddy-sub001/errors"
)

var (
	globalConfig  *Config
	viperInstance *viper.Viper
)

// Load reads the buddy configuration using Viper.
// Precedence: defaults < config file < environment variables.
func Load() (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	v := initViper()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}

	globalConfig = &config
	return globalConfig, nil
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")
	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", configPath)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal config from %s", configPath)
	}

	return &config, nil
}

// Reset clears the cached configuration (useful for testing and reload)
func Reset() {
	globalConfig = nil
	viperInstance = nil
}

// initViper initializes Viper with configuration sources and defaults
func initViper() *viper.Viper {
	if viperInstance != nil {
		return viperInstance
	}

	v := viper.New()

	v.SetEnvPrefix("BUDDY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

	if path := FindConfigFile(); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		// Best effort - defaults and env vars still apply if the file is bad
		_ = v.ReadInConfig()
	}

	viperInstance = v
	return v
}

// FindConfigFile searches for buddy.toml by walking up the directory tree,
// falling back to ~/.config/buddy/buddy.toml. Returns empty string if none found.
func FindConfigFile() string {
	dir, err := os.Getwd()
	if err == nil {
		for {
			path := filepath.Join(dir, "buddy.toml")
			if _, err := os.Stat(path); err == nil {
				return path
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	path := filepath.Join(home, ".config", "buddy", "buddy.toml")
	if _, err := os.Stat(path); err == nil {
		return path
	}
	return ""
}
