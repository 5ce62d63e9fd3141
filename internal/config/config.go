package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port     string `mapstructure:"PORT"`
	Env      string `mapstructure:"ENV"`
	AuthMode string `mapstructure:"AUTH_MODE"`

	RedisURL string `mapstructure:"REDIS_URL"`

	LifetrenzBaseURL string `mapstructure:"LIFETRENZ_BASE_URL"`
	LifetrenzAPIKey  string `mapstructure:"LIFETRENZ_API_KEY"`
	MantysBaseURL    string `mapstructure:"MANTYS_BASE_URL"`
	MantysAPIKey     string `mapstructure:"MANTYS_API_KEY"`

	CustomerSiteID int    `mapstructure:"CUSTOMER_SITE_ID"`
	CustomerID     int    `mapstructure:"CUSTOMER_ID"`
	ClinicID       string `mapstructure:"CLINIC_ID"`

	AuthSecret string `mapstructure:"AUTH_SECRET"`

	CORSOrigins    []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int           `mapstructure:"RATE_LIMIT_BURST"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`

	UpstreamTimeout time.Duration `mapstructure:"UPSTREAM_TIMEOUT"`

	AutoCheckInterval time.Duration `mapstructure:"AUTO_CHECK_INTERVAL"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("AUTH_MODE", "") // auto-detect: "" -> inferred from ENV
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("UPSTREAM_TIMEOUT", "60s")
	v.SetDefault("AUTO_CHECK_INTERVAL", "10s")
	v.SetDefault("CUSTOMER_SITE_ID", 0)
	v.SetDefault("CUSTOMER_ID", 1)
	v.SetDefault("CLINIC_ID", "default")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("AUTH_MODE")
	v.BindEnv("REDIS_URL")
	v.BindEnv("LIFETRENZ_BASE_URL")
	v.BindEnv("LIFETRENZ_API_KEY")
	v.BindEnv("MANTYS_BASE_URL")
	v.BindEnv("MANTYS_API_KEY")
	v.BindEnv("CUSTOMER_SITE_ID")
	v.BindEnv("CUSTOMER_ID")
	v.BindEnv("CLINIC_ID")
	v.BindEnv("AUTH_SECRET")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("RATE_LIMIT_RPS")
	v.BindEnv("RATE_LIMIT_BURST")
	v.BindEnv("REQUEST_TIMEOUT")
	v.BindEnv("UPSTREAM_TIMEOUT")
	v.BindEnv("AUTO_CHECK_INTERVAL")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}

	if cfg.IsDev() {
		log.Println("WARNING: ============================================================")
		log.Println("WARNING: Server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: Dev auth middleware is active; all requests are authenticated.")
		log.Println("WARNING: Do NOT use this configuration in production.")
		log.Println("WARNING: Set ENV=production and configure AUTH_SECRET for production.")
		log.Println("WARNING: ============================================================")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// ResolvedAuthMode returns the effective auth mode. If AUTH_MODE is explicitly
// set, it is returned. Otherwise, the mode is inferred:
//   - ENV=development → "development" (no auth, all requests accepted)
//   - Otherwise       → "token" (HMAC-signed bearer tokens)
func (c *Config) ResolvedAuthMode() string {
	if c.AuthMode != "" {
		return c.AuthMode
	}
	if c.IsDev() {
		return "development"
	}
	return "token"
}

// Validate checks that the configuration is safe to run. Upstream credentials
// and the token signing secret have no built-in defaults; production refuses
// to start without them.
func (c *Config) Validate() error {
	mode := c.ResolvedAuthMode()
	if mode != "development" && mode != "token" {
		return fmt.Errorf("AUTH_MODE must be \"development\" or \"token\", got %q", mode)
	}
	if mode == "token" && c.AuthSecret == "" {
		return fmt.Errorf(
			"AUTH_SECRET must be set when AUTH_MODE is \"token\" (current ENV=%q). "+
				"Refusing to start without authentication configuration", c.Env)
	}

	if c.IsProduction() {
		if c.LifetrenzBaseURL == "" {
			return fmt.Errorf("LIFETRENZ_BASE_URL is required in production")
		}
		if c.LifetrenzAPIKey == "" {
			return fmt.Errorf("LIFETRENZ_API_KEY is required in production")
		}
		if c.MantysBaseURL == "" {
			return fmt.Errorf("MANTYS_BASE_URL is required in production")
		}
		if c.MantysAPIKey == "" {
			return fmt.Errorf("MANTYS_API_KEY is required in production")
		}
		if c.CustomerSiteID <= 0 {
			return fmt.Errorf("CUSTOMER_SITE_ID is required in production")
		}
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive, got %s", c.RequestTimeout)
	}
	if c.UpstreamTimeout <= 0 {
		return fmt.Errorf("UPSTREAM_TIMEOUT must be positive, got %s", c.UpstreamTimeout)
	}

	return nil
}
