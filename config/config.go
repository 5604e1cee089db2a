// Package config owns the nightdesk configuration: a TOML file under the
// user's config directory, overridable via NIGHTDESK_* environment
// variables, loaded through Viper.
package config

import (
	"time"
)

// Config is the root nightdesk configuration.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
}

// DatabaseConfig configures the SQLite database.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// EngineConfig configures loop cadence and execution limits.
type EngineConfig struct {
	SubjectID               string  `mapstructure:"subject_id"`                // Owner all loops act on behalf of
	JobIntervalSeconds      int     `mapstructure:"job_interval_seconds"`      // Job runner loop (default: 5)
	ReminderIntervalSeconds int     `mapstructure:"reminder_interval_seconds"` // Reminder check loop (default: 10)
	SourceIntervalSeconds   int     `mapstructure:"source_interval_seconds"`   // External event source loops (default: 60)
	WebhookIntervalSeconds  int     `mapstructure:"webhook_interval_seconds"`  // Webhook reconciliation loop (default: 300)
	CleanupIntervalSeconds  int     `mapstructure:"cleanup_interval_seconds"`  // Cleanup loop (default: 3600)
	RetentionDays           int     `mapstructure:"retention_days"`            // Dedup ledger retention (default: 30)
	HandlerTimeoutSeconds   int     `mapstructure:"handler_timeout_seconds"`   // Per-handler execution bound (default: 30)
	QueueSize               int     `mapstructure:"queue_size"`                // Outbound notification buffer (default: 256)
}

// WebhookConfig configures the webhook registrar.
type WebhookConfig struct {
	PublicURL         string   `mapstructure:"public_url"` // This process's callback endpoint (tunnel address)
	Resources         []string `mapstructure:"resources"`  // e.g. ["org/repo"]
	ProviderBaseURL   string   `mapstructure:"provider_base_url"`
	Token             string   `mapstructure:"token"`
	RequestsPerSecond float64  `mapstructure:"requests_per_second"`
}

// ServerConfig configures the delivery endpoint.
type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// LogConfig configures logging output.
type LogConfig struct {
	JSON  bool   `mapstructure:"json"`
	Level string `mapstructure:"level"`
}

// JobInterval returns the job loop cadence.
func (c EngineConfig) JobInterval() time.Duration {
	return time.Duration(c.JobIntervalSeconds) * time.Second
}

// ReminderInterval returns the reminder loop cadence.
func (c EngineConfig) ReminderInterval() time.Duration {
	return time.Duration(c.ReminderIntervalSeconds) * time.Second
}

// SourceInterval returns the event-source loop cadence.
func (c EngineConfig) SourceInterval() time.Duration {
	return time.Duration(c.SourceIntervalSeconds) * time.Second
}

// WebhookInterval returns the webhook loop cadence.
func (c EngineConfig) WebhookInterval() time.Duration {
	return time.Duration(c.WebhookIntervalSeconds) * time.Second
}

// CleanupInterval returns the cleanup loop cadence.
func (c EngineConfig) CleanupInterval() time.Duration {
	return time.Duration(c.CleanupIntervalSeconds) * time.Second
}

// Retention returns the dedup ledger retention window.
func (c EngineConfig) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// HandlerTimeout returns the per-handler execution bound.
func (c EngineConfig) HandlerTimeout() time.Duration {
	return time.Duration(c.HandlerTimeoutSeconds) * time.Second
}
