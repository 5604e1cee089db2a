package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/nightdesk/nightdesk/errors"
)

const (
	configName = "nightdesk"
	configType = "toml"
	envPrefix  = "NIGHTDESK"
)

// DefaultDir returns the directory nightdesk keeps its config and
// database in, creating it if needed.
func DefaultDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", errors.Wrap(err, "resolving user config dir")
	}
	dir := filepath.Join(base, "nightdesk")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "creating config dir %s", dir)
	}
	return dir, nil
}

// SetDefaults registers every default on v. Callers load a file over
// these, so a missing or partial config still yields a runnable setup.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.path", "")

	v.SetDefault("engine.subject_id", "default")
	v.SetDefault("engine.job_interval_seconds", 5)
	v.SetDefault("engine.reminder_interval_seconds", 10)
	v.SetDefault("engine.source_interval_seconds", 60)
	v.SetDefault("engine.webhook_interval_seconds", 300)
	v.SetDefault("engine.cleanup_interval_seconds", 3600)
	v.SetDefault("engine.retention_days", 30)
	v.SetDefault("engine.handler_timeout_seconds", 30)
	v.SetDefault("engine.queue_size", 256)

	v.SetDefault("webhook.public_url", "")
	v.SetDefault("webhook.resources", []string{})
	v.SetDefault("webhook.provider_base_url", "https://api.github.com")
	v.SetDefault("webhook.token", "")
	v.SetDefault("webhook.requests_per_second", 1.0)

	v.SetDefault("server.port", 8957)
	v.SetDefault("server.allowed_origins", []string{})

	v.SetDefault("log.json", false)
	v.SetDefault("log.level", "info")
}

// Load reads the config from the default location, falling back to
// defaults when no file exists. NIGHTDESK_* environment variables
// override file values (e.g. NIGHTDESK_LOG_LEVEL=debug).
func Load(log *zap.SugaredLogger) (*Config, error) {
	dir, err := DefaultDir()
	if err != nil {
		return nil, err
	}
	return LoadFromFile(filepath.Join(dir, configName+"."+configType), log)
}

// LoadFromFile reads the config at path. A missing file is not an
// error; defaults and environment overrides still apply.
func LoadFromFile(path string, log *zap.SugaredLogger) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetConfigFile(path)
	v.SetConfigType(configType)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); ok || errors.Is(err, os.ErrNotExist) {
			log.Debugw("No config file found, using defaults", "path", path)
		} else {
			return nil, errors.Wrapf(err, "reading config %s", path)
		}
	} else {
		log.Debugw("Loaded config", "path", path)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshaling config")
	}

	if cfg.Database.Path == "" {
		dir, err := DefaultDir()
		if err != nil {
			return nil, err
		}
		cfg.Database.Path = filepath.Join(dir, "nightdesk.db")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.Engine.JobIntervalSeconds <= 0 {
		return errors.New("engine.job_interval_seconds must be positive")
	}
	if c.Engine.HandlerTimeoutSeconds <= 0 {
		return errors.New("engine.handler_timeout_seconds must be positive")
	}
	if c.Engine.QueueSize <= 0 {
		return errors.New("engine.queue_size must be positive")
	}
	if c.Engine.RetentionDays <= 0 {
		return errors.New("engine.retention_days must be positive")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.Newf("server.port %d out of range", c.Server.Port)
	}
	if c.Webhook.RequestsPerSecond <= 0 {
		return errors.New("webhook.requests_per_second must be positive")
	}
	return nil
}
