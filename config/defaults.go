package config

import "github.com/spf13/viper"

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.path", "buddy.db")

	// Scheduler defaults
	v.SetDefault("scheduler.tick_seconds", 60)
	v.SetDefault("scheduler.default_timezone", "UTC")
	v.SetDefault("scheduler.catchup_limit", 100)
	v.SetDefault("scheduler.catchup_floor_days", 7)

	// Dispatcher defaults
	v.SetDefault("dispatcher.poll_seconds", 10)
	v.SetDefault("dispatcher.max_backoff_seconds", 120)

	// Run history defaults
	v.SetDefault("runs.retention_days", 30)

	// Anthropic defaults (api_key comes from BUDDY_ANTHROPIC_API_KEY)
	v.SetDefault("anthropic.model", "claude-sonnet-4-20250514")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("anthropic.temperature", 0.2)
	v.SetDefault("anthropic.requests_per_minute", 10)
}
