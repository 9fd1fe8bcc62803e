package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"github.com/medrex/booking/pkg/timerange"
)

// Store drivers
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Identity modes
const (
	AuthModeJWT    = "jwt"
	AuthModeHeader = "header"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Server ServerConfig `mapstructure:"server"`

	// Database configuration
	Database DatabaseConfig `mapstructure:"database"`

	// Store selection
	Store StoreConfig `mapstructure:"store"`

	// Redis configuration
	Redis RedisConfig `mapstructure:"redis"`

	// JWT configuration
	JWT JWTConfig `mapstructure:"jwt"`

	// Identity configuration
	Auth AuthConfig `mapstructure:"auth"`

	// Logging configuration
	LogLevel string `mapstructure:"log_level"`

	// Rate limiting configuration
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`

	// Monitoring configuration
	Monitoring MonitoringConfig `mapstructure:"monitoring"`

	// Scheduling rules
	Scheduling SchedulingConfig `mapstructure:"scheduling"`
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
	IdleTimeout  int    `mapstructure:"idle_timeout"`
}

// Addr returns the listen address
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	URL             string `mapstructure:"url"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Name            string `mapstructure:"name"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

// StoreConfig selects the persistence backend
type StoreConfig struct {
	Driver string `mapstructure:"driver"`
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Enabled             bool   `mapstructure:"enabled"`
	Host                string `mapstructure:"host"`
	Port                int    `mapstructure:"port"`
	Password            string `mapstructure:"password"`
	DB                  int    `mapstructure:"db"`
	PoolSize            int    `mapstructure:"pool_size"`
	NotificationChannel string `mapstructure:"notification_channel"`
}

// Addr returns host:port
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	SecretKey string `mapstructure:"secret_key"`
	Issuer    string `mapstructure:"issuer"`
	Audience  string `mapstructure:"audience"`
}

// AuthConfig selects how caller identity is established
type AuthConfig struct {
	Mode string `mapstructure:"mode"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	RequestsPerMin int  `mapstructure:"requests_per_min"`
	BurstSize      int  `mapstructure:"burst_size"`
}

// MonitoringConfig holds monitoring configuration
type MonitoringConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	MetricsPath string `mapstructure:"metrics_path"`
	HealthPath  string `mapstructure:"health_path"`
}

// SchedulingConfig holds the booking rules
type SchedulingConfig struct {
	BusinessOpen          string `mapstructure:"business_open"`
	BusinessClose         string `mapstructure:"business_close"`
	MaxDaysAhead          int    `mapstructure:"max_days_ahead"`
	AllowedDurations      []int  `mapstructure:"allowed_durations"`
	SlotGranularity       int    `mapstructure:"slot_granularity"`
	MaxCalendarDays       int    `mapstructure:"max_calendar_days"`
	NotificationQueueSize int    `mapstructure:"notification_queue_size"`
	NotificationWorkers   int    `mapstructure:"notification_workers"`
}

// BusinessHours parses the configured opening hours
func (s SchedulingConfig) BusinessHours() (timerange.TimeRange, error) {
	return timerange.FromClock(s.BusinessOpen, s.BusinessClose)
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/medrex")

	return load(v)
}

// LoadFile loads configuration from an explicit file path
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	// Set default values
	setDefaults(v)

	// Enable environment variable support
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	if err := bindSecrets(v); err != nil {
		return nil, fmt.Errorf("failed to bind environment: %w", err)
	}

	// Read config file if it exists
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Override with environment variables
	overrideWithEnv(&config)

	// Validate configuration
	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Defaults returns a configuration populated with default values only
func Defaults() *Config {
	v := viper.New()
	setDefaults(v)
	var config Config
	_ = v.Unmarshal(&config)
	return &config
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8083)
	v.SetDefault("server.read_timeout", 30)
	v.SetDefault("server.write_timeout", 30)
	v.SetDefault("server.idle_timeout", 120)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "medrex")
	v.SetDefault("database.user", "medrex")
	v.SetDefault("database.ssl_mode", "require")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 300)

	v.SetDefault("store.driver", StoreDriverPostgres)

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.notification_channel", "booking-notifications")

	// JWT defaults
	v.SetDefault("jwt.issuer", "medrex-identity")
	v.SetDefault("jwt.audience", "medrex-booking")

	v.SetDefault("auth.mode", AuthModeJWT)

	// Rate limiting defaults
	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_min", 60)
	v.SetDefault("rate_limit.burst_size", 10)

	// Monitoring defaults
	v.SetDefault("monitoring.enabled", true)
	v.SetDefault("monitoring.metrics_path", "/metrics")
	v.SetDefault("monitoring.health_path", "/health")

	// Scheduling defaults
	v.SetDefault("scheduling.business_open", "08:00")
	v.SetDefault("scheduling.business_close", "20:00")
	v.SetDefault("scheduling.max_days_ahead", 30)
	v.SetDefault("scheduling.allowed_durations", []int{60, 120})
	v.SetDefault("scheduling.slot_granularity", 60)
	v.SetDefault("scheduling.max_calendar_days", 62)
	v.SetDefault("scheduling.notification_queue_size", 256)
	v.SetDefault("scheduling.notification_workers", 2)

	// Logging defaults
	v.SetDefault("log_level", "info")
}

// bindSecrets binds keys that have no default. AutomaticEnv alone only
// resolves keys viper already knows about, so Unmarshal would miss them.
func bindSecrets(v *viper.Viper) error {
	for _, key := range []string{
		"database.url",
		"database.password",
		"redis.password",
		"jwt.secret_key",
	} {
		if err := v.BindEnv(key); err != nil {
			return err
		}
	}
	return nil
}

// overrideWithEnv overrides configuration with environment variables
func overrideWithEnv(config *Config) {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Database.URL = dbURL
	}

	if jwtSecret := os.Getenv("JWT_SECRET_KEY"); jwtSecret != "" {
		config.JWT.SecretKey = jwtSecret
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		config.LogLevel = logLevel
	}
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	switch config.Store.Driver {
	case StoreDriverPostgres:
		if config.Database.URL == "" && config.Database.Password == "" {
			return fmt.Errorf("database password is required")
		}
	case StoreDriverMemory:
	default:
		return fmt.Errorf("unknown store driver: %q", config.Store.Driver)
	}

	switch config.Auth.Mode {
	case AuthModeJWT:
		if config.JWT.SecretKey == "" {
			return fmt.Errorf("JWT secret key is required")
		}
	case AuthModeHeader:
	default:
		return fmt.Errorf("unknown auth mode: %q", config.Auth.Mode)
	}

	if _, err := config.Scheduling.BusinessHours(); err != nil {
		return fmt.Errorf("invalid business hours: %w", err)
	}

	if config.Scheduling.MaxDaysAhead < 0 {
		return fmt.Errorf("max_days_ahead must not be negative")
	}

	if len(config.Scheduling.AllowedDurations) == 0 {
		return fmt.Errorf("at least one allowed duration is required")
	}
	for _, d := range config.Scheduling.AllowedDurations {
		if d <= 0 {
			return fmt.Errorf("invalid allowed duration: %d", d)
		}
	}

	if config.Scheduling.SlotGranularity <= 0 {
		return fmt.Errorf("invalid slot granularity: %d", config.Scheduling.SlotGranularity)
	}

	if config.RateLimit.Enabled && config.RateLimit.RequestsPerMin <= 0 {
		return fmt.Errorf("requests_per_min must be positive when rate limiting is enabled")
	}

	return nil
}
