package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	CORS          CORSConfig
	Log           LogConfig
	Scheduling    SchedulingConfig
	Audit         AuditConfig
	Notifications NotificationsConfig
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
	Secret     string
	Expiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// SchedulingConfig tunes the availability resolver and lifecycle guards.
type SchedulingConfig struct {
	SlotStepMinutes       int
	FrequencySlackMinutes int
	HorizonMonths         int
	// NoticeHours maps enrollment category to the minimum cancellation
	// notice; a per-enrollment override always wins.
	NoticeHours map[string]int
	// ApprovalCategories lists categories whose TROCA_* requests need
	// teacher sign-off before reaching administration.
	ApprovalCategories []string
}

// AuditConfig governs the weekly consistency auditor cache.
type AuditConfig struct {
	Enabled  bool
	CacheTTL time.Duration
}

// NotificationsConfig toggles outbound notification emission.
type NotificationsConfig struct {
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
		if !errors.As(err, &notFound) {
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
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Scheduling = SchedulingConfig{
		SlotStepMinutes:       v.GetInt("SCHEDULING_SLOT_STEP_MINUTES"),
		FrequencySlackMinutes: v.GetInt("SCHEDULING_FREQUENCY_SLACK_MINUTES"),
		HorizonMonths:         v.GetInt("SCHEDULING_HORIZON_MONTHS"),
		NoticeHours: map[string]int{
			"REGULAR":   v.GetInt("NOTICE_HOURS_REGULAR"),
			"INTENSIVO": v.GetInt("NOTICE_HOURS_INTENSIVO"),
			"VIP":       v.GetInt("NOTICE_HOURS_VIP"),
		},
		ApprovalCategories: splitAndTrim(v.GetString("APPROVAL_CATEGORIES")),
	}

	cfg.Audit = AuditConfig{
		Enabled:  v.GetBool("ENABLE_AUDIT"),
		CacheTTL: parseDuration(v.GetString("AUDIT_CACHE_TTL"), 10*time.Minute),
	}

	cfg.Notifications = NotificationsConfig{
		Enabled: v.GetBool("ENABLE_NOTIFICATIONS"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "agenda")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("SCHEDULING_SLOT_STEP_MINUTES", 30)
	v.SetDefault("SCHEDULING_FREQUENCY_SLACK_MINUTES", 5)
	v.SetDefault("SCHEDULING_HORIZON_MONTHS", 3)
	v.SetDefault("NOTICE_HOURS_REGULAR", 6)
	v.SetDefault("NOTICE_HOURS_INTENSIVO", 12)
	v.SetDefault("NOTICE_HOURS_VIP", 24)
	v.SetDefault("APPROVAL_CATEGORIES", "INTENSIVO,VIP")

	v.SetDefault("ENABLE_AUDIT", true)
	v.SetDefault("AUDIT_CACHE_TTL", "10m")
	v.SetDefault("ENABLE_NOTIFICATIONS", true)
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
