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
	CORS          CORSConfig
	Log           LogConfig
	Meals         MealsConfig
	CheckIn       CheckInConfig
	Stats         StatsConfig
	Announcements AnnouncementsConfig
	Reports       ReportsConfig
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

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// MealWindowConfig holds one meal's serving hours as local "HH:MM" strings.
type MealWindowConfig struct {
	Start        string
	End          string
	GraceMinutes int
}

// MealsConfig defines the daily meal schedule. Timezone is the mess hall's
// local zone; meal days roll over at local midnight, not UTC.
type MealsConfig struct {
	Timezone  string
	Breakfast MealWindowConfig
	Lunch     MealWindowConfig
	Dinner    MealWindowConfig
}

// CheckInConfig lists QR payloads the scanner accepts.
type CheckInConfig struct {
	AcceptedTokens []string
}

// StatsConfig tunes attendance stats caching.
type StatsConfig struct {
	CacheTTL time.Duration
}

// AnnouncementsConfig tunes announcement caching and notification dispatch.
type AnnouncementsConfig struct {
	CacheTTL     time.Duration
	QueueWorkers int
}

// ReportsConfig configures asynchronous report generation.
type ReportsConfig struct {
	StorageDir        string
	SignedURLSecret   string
	SignedURLTTL      time.Duration
	WorkerConcurrency int
	WorkerRetries     int
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

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Meals = MealsConfig{
		Timezone: v.GetString("MEAL_TIMEZONE"),
		Breakfast: MealWindowConfig{
			Start:        v.GetString("BREAKFAST_START"),
			End:          v.GetString("BREAKFAST_END"),
			GraceMinutes: v.GetInt("BREAKFAST_GRACE_MINUTES"),
		},
		Lunch: MealWindowConfig{
			Start:        v.GetString("LUNCH_START"),
			End:          v.GetString("LUNCH_END"),
			GraceMinutes: v.GetInt("LUNCH_GRACE_MINUTES"),
		},
		Dinner: MealWindowConfig{
			Start:        v.GetString("DINNER_START"),
			End:          v.GetString("DINNER_END"),
			GraceMinutes: v.GetInt("DINNER_GRACE_MINUTES"),
		},
	}

	cfg.CheckIn = CheckInConfig{
		AcceptedTokens: splitAndTrim(v.GetString("CHECKIN_QR_TOKENS")),
	}

	cfg.Stats = StatsConfig{
		CacheTTL: parseDuration(v.GetString("STATS_CACHE_TTL"), time.Minute),
	}

	cfg.Announcements = AnnouncementsConfig{
		CacheTTL:     parseDuration(v.GetString("ANNOUNCEMENTS_CACHE_TTL"), 5*time.Minute),
		QueueWorkers: v.GetInt("ANNOUNCEMENTS_QUEUE_WORKERS"),
	}

	cfg.Reports = ReportsConfig{
		StorageDir:        v.GetString("REPORTS_STORAGE_DIR"),
		SignedURLSecret:   v.GetString("REPORTS_SIGNED_URL_SECRET"),
		SignedURLTTL:      parseDuration(v.GetString("REPORTS_SIGNED_URL_TTL"), 24*time.Hour),
		WorkerConcurrency: v.GetInt("REPORTS_WORKER_CONCURRENCY"),
		WorkerRetries:     v.GetInt("REPORTS_WORKER_RETRIES"),
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
	v.SetDefault("DB_NAME", "messhall")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("MEAL_TIMEZONE", "Asia/Kolkata")
	v.SetDefault("BREAKFAST_START", "07:30")
	v.SetDefault("BREAKFAST_END", "10:30")
	v.SetDefault("BREAKFAST_GRACE_MINUTES", 30)
	v.SetDefault("LUNCH_START", "12:00")
	v.SetDefault("LUNCH_END", "14:30")
	v.SetDefault("LUNCH_GRACE_MINUTES", 30)
	v.SetDefault("DINNER_START", "19:00")
	v.SetDefault("DINNER_END", "21:30")
	v.SetDefault("DINNER_GRACE_MINUTES", 30)

	v.SetDefault("CHECKIN_QR_TOKENS", "messhall://checkin,MESS_CHECKIN")

	v.SetDefault("STATS_CACHE_TTL", "1m")
	v.SetDefault("ANNOUNCEMENTS_CACHE_TTL", "5m")
	v.SetDefault("ANNOUNCEMENTS_QUEUE_WORKERS", 2)

	v.SetDefault("REPORTS_STORAGE_DIR", "./exports")
	v.SetDefault("REPORTS_SIGNED_URL_SECRET", "dev_reports_secret")
	v.SetDefault("REPORTS_SIGNED_URL_TTL", "24h")
	v.SetDefault("REPORTS_WORKER_CONCURRENCY", 1)
	v.SetDefault("REPORTS_WORKER_RETRIES", 3)
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
