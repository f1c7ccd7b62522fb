// Package config holds the buddy configuration, loaded with Viper from
// buddy.toml, environment variables (BUDDY_ prefix), and defaults.
package config

import "time"

// Config represents the buddy daemon configuration
type Config struct {
	Database   DatabaseConfig   `mapstructure:"database"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Dispatcher DispatcherConfig `mapstructure:"dispatcher"`
	Runs       RunsConfig       `mapstructure:"runs"`
	Anthropic  AnthropicConfig  `mapstructure:"anthropic"`
}

// DatabaseConfig configures the SQLite database
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// SchedulerConfig configures the schedule scanner and offline reconciler
type SchedulerConfig struct {
	// TickSeconds is the scanner interval (default: 60)
	TickSeconds int `mapstructure:"tick_seconds"`
	// DefaultTimezone is the IANA timezone applied to schedules without one
	DefaultTimezone string `mapstructure:"default_timezone"`
	// CatchupLimit bounds how many missed runs the catchup policy replays
	CatchupLimit int `mapstructure:"catchup_limit"`
	// CatchupFloorDays bounds how far back catchup enumeration reaches
	CatchupFloorDays int `mapstructure:"catchup_floor_days"`
}

// DispatcherConfig configures the task dispatcher poll loop
type DispatcherConfig struct {
	// PollSeconds is the dispatcher poll interval (default: 10)
	PollSeconds int `mapstructure:"poll_seconds"`
	// MaxBackoffSeconds caps the computed store-failure backoff (default: 120)
	MaxBackoffSeconds int `mapstructure:"max_backoff_seconds"`
}

// RunsConfig configures run history retention
type RunsConfig struct {
	// RetentionDays is how long terminal runs are kept before cleanup
	RetentionDays int `mapstructure:"retention_days"`
}

// AnthropicConfig configures the AI prompt worker
type AnthropicConfig struct {
	APIKey            string  `mapstructure:"api_key"`
	Model             string  `mapstructure:"model"`
	MaxTokens         int     `mapstructure:"max_tokens"`
	Temperature       float64 `mapstructure:"temperature"`
	RequestsPerMinute int     `mapstructure:"requests_per_minute"`
}

// TickInterval returns the scanner tick interval as a duration
func (c SchedulerConfig) TickInterval() time.Duration {
	return time.Duration(c.TickSeconds) * time.Second
}

// PollInterval returns the dispatcher poll interval as a duration
func (c DispatcherConfig) PollInterval() time.Duration {
	return time.Duration(c.PollSeconds) * time.Second
}

// MaxBackoff returns the backoff cap as a duration
func (c DispatcherConfig) MaxBackoff() time.Duration {
	return time.Duration(c.MaxBackoffSeconds) * time.Second
}

// CatchupFloor returns the catchup enumeration floor as a duration
func (c SchedulerConfig) CatchupFloor() time.Duration {
	return time.Duration(c.CatchupFloorDays) * 24 * time.Hour
}
