package config

import "time"

type AppConfig struct {
	DBDriver    string            `yaml:"db_driver" env:"HACKHUB_DB_DRIVER" env-default:"sqlite"`
	DBPath      string            `yaml:"db_path" env:"HACKHUB_DB_PATH" env-default:"data/hackhub.db"`
	DBURL       string            `yaml:"db_url" env:"HACKHUB_DB_URL"`
	ListenAddr  string            `yaml:"listen_addr" env:"HACKHUB_LISTEN_ADDR" env-default:"0.0.0.0:8080"`
	AppEnv      string            `yaml:"app_env" env:"HACKHUB_APP_ENV"`
	Pepper      string            `yaml:"pepper" env:"HACKHUB_PEPPER"`
	Provider    ProviderConfig    `yaml:"provider"`
	Bootstrap   BootstrapConfig   `yaml:"bootstrap"`
	Import      ImportConfig      `yaml:"import"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
}

// ProviderConfig selects the identity-provider backing privileged account
// operations. "embedded" keeps accounts in the app database; "remote" talks to
// a hosted provider's admin API with an elevated service key.
type ProviderConfig struct {
	Mode              string        `yaml:"mode" env:"HACKHUB_PROVIDER_MODE" env-default:"embedded"`
	BaseURL           string        `yaml:"base_url" env:"HACKHUB_PROVIDER_BASE_URL"`
	ServiceKey        string        `yaml:"service_key" env:"HACKHUB_PROVIDER_SERVICE_KEY"`
	RequestTimeoutSec int           `yaml:"request_timeout_sec" env:"HACKHUB_PROVIDER_REQUEST_TIMEOUT" env-default:"15"`
	TokenTTL          time.Duration `yaml:"token_ttl" env:"HACKHUB_PROVIDER_TOKEN_TTL" env-default:"12h"`
}

type BootstrapConfig struct {
	AdminEmail    string `yaml:"admin_email" env:"HACKHUB_BOOTSTRAP_ADMIN_EMAIL" env-default:"admin@hackhub.local"`
	AdminName     string `yaml:"admin_name" env:"HACKHUB_BOOTSTRAP_ADMIN_NAME" env-default:"Event Admin"`
	AdminPassword string `yaml:"admin_password" env:"HACKHUB_BOOTSTRAP_ADMIN_PASSWORD"`
}

type ImportConfig struct {
	MaxUploadBytes int64 `yaml:"max_upload_bytes" env:"HACKHUB_IMPORT_MAX_UPLOAD_BYTES" env-default:"10485760"`
}

type MaintenanceConfig struct {
	Enabled            bool   `yaml:"enabled" env:"HACKHUB_MAINTENANCE_ENABLED" env-default:"true"`
	Schedule           string `yaml:"schedule" env:"HACKHUB_MAINTENANCE_SCHEDULE" env-default:"@hourly"`
	AuditRetentionDays int    `yaml:"audit_retention_days" env:"HACKHUB_MAINTENANCE_AUDIT_RETENTION_DAYS" env-default:"90"`
}

const defaultProviderTimeout = 15 * time.Second

func (c *ProviderConfig) EffectiveRequestTimeout() time.Duration {
	if c == nil || c.RequestTimeoutSec <= 0 {
		return defaultProviderTimeout
	}
	return time.Duration(c.RequestTimeoutSec) * time.Second
}

func (c *AppConfig) IsEmbeddedProvider() bool {
	if c == nil {
		return true
	}
	return c.Provider.Mode != "remote"
}
