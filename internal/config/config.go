package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	LogLevel  string
	LogFormat string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	AutoMigrate bool

	PayoutWorker PayoutWorkerConfig
	RateLimit    RateLimitConfig
}

// PayoutWorkerConfig controls the payout settlement worker.
type PayoutWorkerConfig struct {
	Enabled     bool
	Interval    time.Duration
	BatchSize   int
	MaxAttempts int
	RetryAfter  time.Duration
	StuckAfter  time.Duration
}

// RateLimitConfig controls the optional hold admission rate limiter.
type RateLimitConfig struct {
	Enabled       bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	ClinicRate   float64
	ClinicBurst  int
	PatientRate  float64
	PatientBurst int

	AdmissionLockTTLSeconds int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "clinova"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),

		LogLevel:  getenv("LOG_LEVEL", "info"),
		LogFormat: getenv("LOG_FORMAT", "json"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "clinova"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME_SECONDS", 1800),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME_SECONDS", 300),

		AutoMigrate: getenvBool("DATABASE_AUTO_MIGRATE", true),

		PayoutWorker: PayoutWorkerConfig{
			Enabled:     getenvBool("PAYOUT_WORKER_ENABLED", true),
			Interval:    getenvDuration("PAYOUT_WORKER_INTERVAL_MS", 30*time.Second),
			BatchSize:   getenvInt("PAYOUT_WORKER_BATCH_SIZE", 10),
			MaxAttempts: getenvInt("PAYOUT_WORKER_MAX_ATTEMPTS", 6),
			RetryAfter:  getenvDuration("PAYOUT_WORKER_RETRY_AFTER_MS", 5*time.Minute),
			StuckAfter:  getenvDuration("PAYOUT_WORKER_STUCK_AFTER_MS", 15*time.Minute),
		},

		RateLimit: RateLimitConfig{
			Enabled:                 getenvBool("RATE_LIMIT_ENABLED", false),
			RedisAddr:               getenv("RATE_LIMIT_REDIS_ADDR", ""),
			RedisPassword:           getenv("RATE_LIMIT_REDIS_PASSWORD", ""),
			RedisDB:                 getenvInt("RATE_LIMIT_REDIS_DB", 0),
			ClinicRate:              getenvFloat("RATE_LIMIT_CLINIC_RATE", 20),
			ClinicBurst:             getenvInt("RATE_LIMIT_CLINIC_BURST", 40),
			PatientRate:             getenvFloat("RATE_LIMIT_PATIENT_RATE", 2),
			PatientBurst:            getenvInt("RATE_LIMIT_PATIENT_BURST", 5),
			AdmissionLockTTLSeconds: getenvInt("RATE_LIMIT_ADMISSION_LOCK_TTL_SECONDS", 10),
		},
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

// getenvDuration reads a millisecond count from the environment.
func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil || parsed <= 0 {
		return def
	}
	return time.Duration(parsed) * time.Millisecond
}
