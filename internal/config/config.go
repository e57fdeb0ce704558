// Package config loads the server configuration from YAML with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/soaringjerry/comparaholic/internal/utils"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Auth    AuthConfig    `yaml:"auth"`
	Cookies CookieConfig  `yaml:"cookies"`
	Forms   FormsConfig   `yaml:"forms"`
	Catalog CatalogConfig `yaml:"catalog"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Commit  string        `yaml:"-"`
	Built   string        `yaml:"-"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	CORSOrigins     []string      `yaml:"cors_origins"`
	HSTS            bool          `yaml:"hsts"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
}

type StorageConfig struct {
	// Driver is "sqlite" or "memory".
	Driver        string `yaml:"driver"`
	Path          string `yaml:"path"`
	MigrationsDir string `yaml:"migrations_dir"`

	// LegacySnapshot is a hosted-backend JSON export imported when Path does
	// not exist yet.
	LegacySnapshot string `yaml:"legacy_snapshot"`
}

type AuthConfig struct {
	JWTSecret   string        `yaml:"jwt_secret"`
	TokenTTL    time.Duration `yaml:"token_ttl"`
	AdminEmails []string      `yaml:"admin_emails"`

	// RequestsPerMinute and Burst throttle /api/auth per client. Zero disables.
	RequestsPerMinute int `yaml:"requests_per_minute"`
	Burst             int `yaml:"burst"`
}

type CookieConfig struct {
	Secure bool   `yaml:"secure"`
	Domain string `yaml:"domain"`
}

type FormsConfig struct {
	DraftDelay  time.Duration `yaml:"draft_delay"`
	SessionIdle time.Duration `yaml:"session_idle"`
}

type CatalogConfig struct {
	// BanksFile replaces the embedded bank list when set.
	BanksFile string `yaml:"banks_file"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
		},
		Storage: StorageConfig{
			Driver: "sqlite",
			Path:   "data/comparaholic.db",
		},
		Auth: AuthConfig{
			TokenTTL:          7 * 24 * time.Hour,
			RequestsPerMinute: 20,
			Burst:             10,
		},
		Forms: FormsConfig{
			DraftDelay:  500 * time.Millisecond,
			SessionIdle: 2 * time.Hour,
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Metrics: MetricsConfig{Enabled: true, Namespace: "comparaholic"},
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
// Environment overrides apply in both cases.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		case !errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}
	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	c.Server.Addr = utils.SafeEnv("COMPARAHOLIC_ADDR", c.Server.Addr)
	c.Server.CORSOrigins = utils.SafeEnvList("COMPARAHOLIC_CORS_ORIGINS", c.Server.CORSOrigins)
	c.Storage.Driver = utils.SafeEnv("COMPARAHOLIC_STORAGE", c.Storage.Driver)
	c.Storage.Path = utils.SafeEnv("COMPARAHOLIC_DB", c.Storage.Path)
	c.Storage.MigrationsDir = utils.SafeEnv("COMPARAHOLIC_MIGRATIONS_DIR", c.Storage.MigrationsDir)
	c.Storage.LegacySnapshot = utils.SafeEnv("COMPARAHOLIC_LEGACY_SNAPSHOT", c.Storage.LegacySnapshot)
	c.Auth.JWTSecret = utils.SafeEnv("COMPARAHOLIC_JWT_SECRET", c.Auth.JWTSecret)
	c.Auth.TokenTTL = utils.SafeEnvDuration("COMPARAHOLIC_TOKEN_TTL", c.Auth.TokenTTL)
	c.Auth.AdminEmails = utils.SafeEnvList("COMPARAHOLIC_ADMIN_EMAILS", c.Auth.AdminEmails)
	c.Auth.RequestsPerMinute = utils.SafeEnvInt("COMPARAHOLIC_AUTH_RPM", c.Auth.RequestsPerMinute)
	c.Cookies.Domain = utils.SafeEnv("COMPARAHOLIC_COOKIE_DOMAIN", c.Cookies.Domain)
	if v := strings.ToLower(os.Getenv("COMPARAHOLIC_COOKIE_SECURE")); v != "" {
		c.Cookies.Secure = v == "1" || v == "true"
	}
	c.Forms.DraftDelay = utils.SafeEnvDuration("COMPARAHOLIC_DRAFT_DELAY", c.Forms.DraftDelay)
	c.Catalog.BanksFile = utils.SafeEnv("COMPARAHOLIC_BANKS_FILE", c.Catalog.BanksFile)
	c.Logging.Level = utils.SafeEnv("COMPARAHOLIC_LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = utils.SafeEnv("COMPARAHOLIC_LOG_FORMAT", c.Logging.Format)
	c.Commit = utils.SafeEnv("COMPARAHOLIC_COMMIT", c.Commit)
	c.Built = utils.SafeEnv("COMPARAHOLIC_BUILD_TIME", c.Built)
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Storage.Driver {
	case "sqlite":
		if strings.TrimSpace(c.Storage.Path) == "" {
			errs = append(errs, errors.New("storage.path is required for sqlite"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("storage.driver %q must be sqlite or memory", c.Storage.Driver))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("auth.token_ttl must be positive"))
	}
	if c.Forms.DraftDelay < 0 {
		errs = append(errs, errors.New("forms.draft_delay must not be negative"))
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("logging.format %q must be json or text", c.Logging.Format))
	}
	return errors.Join(errs...)
}

// Save writes the configuration as YAML, creating the directory.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
