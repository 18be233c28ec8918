package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all service configuration
type Config struct {
	Service        ServiceConfig        `mapstructure:"service"`
	Server         ServerConfig         `mapstructure:"server"`
	GRPC           GRPCConfig           `mapstructure:"grpc"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Mailer         MailerConfig         `mapstructure:"mailer"`
	Mailboxes      Mailboxes            `mapstructure:"mailboxes"`
	InvoiceRouting InvoiceRoutingConfig `mapstructure:"invoice_routing"`
	Security       SecurityConfig       `mapstructure:"security"`
	RateLimit      RateLimitConfig      `mapstructure:"ratelimit"`
	NATS           NATSConfig           `mapstructure:"nats"`
	Log            LogConfig            `mapstructure:"log"`
}

// ServiceConfig identifies the running service
type ServiceConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	Version     string `mapstructure:"version"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

// GRPCConfig holds gRPC server settings
type GRPCConfig struct {
	Port    int  `mapstructure:"port"`
	Enabled bool `mapstructure:"enabled"`
}

// DatabaseConfig holds PostgreSQL pool settings
type DatabaseConfig struct {
	URL               string        `mapstructure:"url"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
	MigrateOnStart    bool          `mapstructure:"migrate_on_start"`
}

// MailerConfig holds the mail gateway and dispatcher settings
type MailerConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	Timeout       time.Duration `mapstructure:"timeout"`
	Workers       int           `mapstructure:"workers"`
	QueueSize     int           `mapstructure:"queue_size"`
	MaxAttempts   int           `mapstructure:"max_attempts"`
	Backoff       time.Duration `mapstructure:"backoff"`
	RatePerSecond float64       `mapstructure:"rate_per_second"`
}

// Mailboxes are the named office addresses notifications are sent to
type Mailboxes struct {
	Department         string `mapstructure:"department"`
	Deputy             string `mapstructure:"deputy"`
	TechnicalAssistant string `mapstructure:"technical_assistant"`
	Assistant          string `mapstructure:"assistant"`
	Director           string `mapstructure:"director"`
	UnderSecretary     string `mapstructure:"under_secretary"`
	Secretary          string `mapstructure:"secretary"`
	FAO                string `mapstructure:"fao"`
}

// InvoiceRoutingConfig selects the assistant mailbox for a vendor's invoice
type InvoiceRoutingConfig struct {
	DefaultMailbox string        `mapstructure:"default_mailbox"`
	Rules          []RoutingRule `mapstructure:"rules"`
}

// RoutingRule maps vendor display names to a mailbox address
type RoutingRule struct {
	Mailbox string   `mapstructure:"mailbox"`
	Vendors []string `mapstructure:"vendors"`
}

// SecurityConfig holds request authentication settings
type SecurityConfig struct {
	APIKey string `mapstructure:"api_key"`
}

// RateLimitConfig holds per-client request limits
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// NATSConfig holds the optional event mirror settings
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// envBindings keeps the environment variable names the deployment already uses.
var envBindings = map[string]string{
	"server.port":         "PORT",
	"grpc.port":           "GRPC_PORT",
	"database.url":        "DATABASE_URL",
	"mailer.base_url":     "NODEMAILER_BASE_URL",
	"security.api_key":    "FLUTTER_API_KEY",
	"nats.url":            "NATS_URL",
	"log.level":           "LOG_LEVEL",
	"service.environment": "ENVIRONMENT",
}

// Load reads configuration from an optional .env file, an optional config.yaml in
// path or ./config, and the environment.
func Load(path string) (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if path != "" {
		v.AddConfigPath(path)
	}
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("DIPR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the values the service cannot start without.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("config: database.url (DATABASE_URL) is required")
	}
	if c.Mailer.BaseURL == "" {
		return fmt.Errorf("config: mailer.base_url (NODEMAILER_BASE_URL) is required")
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("config: server.port must be positive")
	}
	if c.Mailer.Workers <= 0 || c.Mailer.QueueSize <= 0 || c.Mailer.MaxAttempts <= 0 {
		return fmt.Errorf("config: mailer workers, queue_size and max_attempts must be positive")
	}
	return nil
}

// MailboxFor returns the assistant mailbox handling invoices of the named vendor.
func (r InvoiceRoutingConfig) MailboxFor(vendorName string) string {
	name := strings.TrimSpace(vendorName)
	for _, rule := range r.Rules {
		for _, vendor := range rule.Vendors {
			if strings.EqualFold(strings.TrimSpace(vendor), name) {
				return rule.Mailbox
			}
		}
	}
	return r.DefaultMailbox
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.name", "be-release-orders")
	v.SetDefault("service.environment", "development")
	v.SetDefault("service.version", "dev")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.request_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "20s")
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("grpc.port", 9090)
	v.SetDefault("grpc.enabled", true)

	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 1)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")
	v.SetDefault("database.health_check_period", "1m")
	v.SetDefault("database.migrate_on_start", false)

	v.SetDefault("mailer.timeout", "10s")
	v.SetDefault("mailer.workers", 4)
	v.SetDefault("mailer.queue_size", 512)
	v.SetDefault("mailer.max_attempts", 3)
	v.SetDefault("mailer.backoff", "2s")
	v.SetDefault("mailer.rate_per_second", 10)

	v.SetDefault("ratelimit.requests_per_second", 20)
	v.SetDefault("ratelimit.burst", 40)

	v.SetDefault("nats.subject_prefix", "notifications.dipr")

	v.SetDefault("log.level", "info")
}
