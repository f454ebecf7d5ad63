package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultWorkspaceRoot is where repository working trees live unless
// WORKSPACE_ROOT overrides it.
const DefaultWorkspaceRoot = "/var/lib/exprsn/git-workspaces"

// Config holds all service configuration
type Config struct {
	Service      ServiceConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	Cache        CacheConfig
	Telemetry    TelemetryConfig
	Workspace    WorkspaceConfig
	Integrations IntegrationsConfig
	Scheduler    SchedulerConfig
	Security     SecurityConfig
}

// ServiceConfig holds service-specific settings
type ServiceConfig struct {
	Name        string
	Port        int
	Environment string
	LogLevel    string
	LogFormat   string
	CORSOrigins []string
}

// DatabaseConfig holds Postgres connection settings
type DatabaseConfig struct {
	Host        string
	Port        int
	Database    string
	User        string
	Password    string
	MaxConns    int
	MinConns    int
	MaxIdleTime time.Duration
	MaxLifetime time.Duration
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// CacheConfig holds report result cache settings
type CacheConfig struct {
	Enabled    bool
	Backend    string // "memory" or "redis"
	DefaultTTL time.Duration
}

// TelemetryConfig holds observability settings
type TelemetryConfig struct {
	EnablePprof bool
	PprofPort   int
}

// WorkspaceConfig locates the on-disk repository trees
type WorkspaceConfig struct {
	Root string
}

// IntegrationsConfig holds collaborating service endpoints
type IntegrationsConfig struct {
	CIServiceURL string
	HeraldURL    string
	SparkURL     string
	Timeout      time.Duration
}

// SchedulerConfig holds report scheduling and export settings
type SchedulerConfig struct {
	Enabled        bool
	ExportDir      string
	ExportBaseURL  string
	ExportTTL      time.Duration
	CleanupCron    string
	WebhookTimeout time.Duration
}

// SecurityConfig holds credential vault settings
type SecurityConfig struct {
	BcryptCost         int
	VerifyLimit        int64
	VerifyWindowSecond int
}

// Load loads configuration from environment variables
func Load(serviceName string) (*Config, error) {
	cfg := &Config{
		Service: ServiceConfig{
			Name:        serviceName,
			Port:        getEnvInt("PORT", 8080),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			LogFormat:   getEnv("LOG_FORMAT", "text"),
			CORSOrigins: getEnvSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
		Database: DatabaseConfig{
			Host:        getEnv("POSTGRES_HOST", "localhost"),
			Port:        getEnvInt("POSTGRES_PORT", 5432),
			Database:    getEnv("POSTGRES_DB", "exprsn"),
			User:        getEnv("POSTGRES_USER", "exprsn"),
			Password:    getEnv("POSTGRES_PASSWORD", "exprsn"),
			MaxConns:    getEnvInt("POSTGRES_MAX_CONNS", 20),
			MinConns:    getEnvInt("POSTGRES_MIN_CONNS", 2),
			MaxIdleTime: getEnvDuration("POSTGRES_MAX_IDLE_TIME", 30*time.Minute),
			MaxLifetime: getEnvDuration("POSTGRES_MAX_LIFETIME", 1*time.Hour),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Cache: CacheConfig{
			Enabled:    getEnvBool("CACHE_ENABLED", true),
			Backend:    getEnv("CACHE_BACKEND", "memory"),
			DefaultTTL: getEnvDuration("CACHE_DEFAULT_TTL", 15*time.Minute),
		},
		Telemetry: TelemetryConfig{
			EnablePprof: getEnvBool("ENABLE_PPROF", false),
			PprofPort:   getEnvInt("PPROF_PORT", 6060),
		},
		Workspace: WorkspaceConfig{
			Root: getEnv("WORKSPACE_ROOT", DefaultWorkspaceRoot),
		},
		Integrations: IntegrationsConfig{
			CIServiceURL: getEnv("CI_SERVICE_URL", "http://localhost:5001"),
			HeraldURL:    getEnv("HERALD_URL", "http://localhost:3014"),
			SparkURL:     getEnv("SPARK_URL", "http://localhost:3002"),
			Timeout:      getEnvDuration("INTEGRATION_TIMEOUT", 5*time.Second),
		},
		Scheduler: SchedulerConfig{
			Enabled:        getEnvBool("SCHEDULER_ENABLED", true),
			ExportDir:      getEnv("EXPORT_DIR", "/var/lib/exprsn/exports"),
			ExportBaseURL:  getEnv("EXPORT_BASE_URL", "http://localhost:8080/exports"),
			ExportTTL:      getEnvDuration("EXPORT_TTL", 7*24*time.Hour),
			CleanupCron:    getEnv("CLEANUP_CRON", "0 2 * * *"),
			WebhookTimeout: getEnvDuration("WEBHOOK_TIMEOUT", 10*time.Second),
		},
		Security: SecurityConfig{
			BcryptCost:         getEnvInt("BCRYPT_COST", 10),
			VerifyLimit:        int64(getEnvInt("CREDENTIAL_VERIFY_LIMIT", 60)),
			VerifyWindowSecond: getEnvInt("CREDENTIAL_VERIFY_WINDOW", 60),
		},
	}

	return cfg, cfg.Validate()
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Service.Port)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("max_conns must be >= min_conns")
	}

	if c.Workspace.Root == "" {
		return fmt.Errorf("workspace root is required")
	}

	switch c.Cache.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown cache backend: %s", c.Cache.Backend)
	}

	if c.Security.BcryptCost < 4 || c.Security.BcryptCost > 31 {
		return fmt.Errorf("invalid bcrypt cost: %d", c.Security.BcryptCost)
	}

	return nil
}

// DatabaseURL returns the PostgreSQL connection string
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
	)
}

// RedisAddr returns host:port for the Redis client
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvSlice splits a comma-separated variable
func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return defaultValue
}
