package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Conflict scopes decide which existing batches can collide with a new booking.
const (
	ScopePerson             = "PERSON"
	ScopePersonCourse       = "PERSON_COURSE"
	ScopePersonCourseBranch = "PERSON_COURSE_BRANCH"
)

// Counter modes for persons.total_batches.
const (
	CounterMaintained = "maintained"
	CounterComputed   = "computed"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	CORS     CORSConfig
	Log      LogConfig
	Booking  BookingConfig
	Summary  SummaryConfig
	Reports  ReportsConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret            string
	Issuer            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// BookingConfig declares the per-role conflict policy and the counter strategy.
type BookingConfig struct {
	InstructorScope string
	InspectorScope  string
	CounterMode     string
}

// SummaryConfig controls caching of the dashboard totals.
type SummaryConfig struct {
	CacheEnabled bool
	CacheTTL     time.Duration
}

// ReportsConfig gates the workload report endpoints.
type ReportsConfig struct {
	Enabled bool
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:            v.GetString("JWT_SECRET"),
		Issuer:            v.GetString("JWT_ISSUER"),
		Expiration:        parseDuration(v.GetString("JWT_EXPIRATION"), 9*time.Hour),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 15*24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Booking = BookingConfig{
		InstructorScope: strings.ToUpper(strings.TrimSpace(v.GetString("CONFLICT_SCOPE_INSTRUCTOR"))),
		InspectorScope:  strings.ToUpper(strings.TrimSpace(v.GetString("CONFLICT_SCOPE_INSPECTOR"))),
		CounterMode:     strings.ToLower(strings.TrimSpace(v.GetString("PERSON_BATCH_COUNTER"))),
	}

	cfg.Summary = SummaryConfig{
		CacheEnabled: v.GetBool("ENABLE_SUMMARY_CACHE"),
		CacheTTL:     parseDuration(v.GetString("SUMMARY_CACHE_TTL"), time.Minute),
	}

	cfg.Reports = ReportsConfig{
		Enabled: v.GetBool("ENABLE_REPORTS"),
	}

	return cfg, nil
}

// Validate reports configuration values that cannot be honoured.
func (c *Config) Validate() error {
	var problems []string
	if !validScope(c.Booking.InstructorScope) {
		problems = append(problems, fmt.Sprintf("CONFLICT_SCOPE_INSTRUCTOR=%q", c.Booking.InstructorScope))
	}
	if !validScope(c.Booking.InspectorScope) {
		problems = append(problems, fmt.Sprintf("CONFLICT_SCOPE_INSPECTOR=%q", c.Booking.InspectorScope))
	}
	if c.Booking.CounterMode != CounterMaintained && c.Booking.CounterMode != CounterComputed {
		problems = append(problems, fmt.Sprintf("PERSON_BATCH_COUNTER=%q", c.Booking.CounterMode))
	}
	if c.Env == EnvProduction && c.JWT.Secret == "dev_secret" {
		problems = append(problems, "JWT_SECRET must be set in production")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, ", "))
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "training_scheduler")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "training-scheduler-api")
	v.SetDefault("JWT_EXPIRATION", "9h")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "360h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("CONFLICT_SCOPE_INSTRUCTOR", ScopePerson)
	v.SetDefault("CONFLICT_SCOPE_INSPECTOR", ScopePerson)
	v.SetDefault("PERSON_BATCH_COUNTER", CounterMaintained)

	v.SetDefault("ENABLE_SUMMARY_CACHE", false)
	v.SetDefault("SUMMARY_CACHE_TTL", "1m")
	v.SetDefault("ENABLE_REPORTS", true)
}

func validScope(scope string) bool {
	switch scope {
	case ScopePerson, ScopePersonCourse, ScopePersonCourseBranch:
		return true
	}
	return false
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
