package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds every tunable of the API process. Values come from the
// environment, optionally seeded from a .env file in the working directory.
type Config struct {
	Port    string
	Storage string // postgres | memory

	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string
	DBSSLMode  string

	RedisURL  string
	JWTSecret string

	FirebaseServiceAccountPath string

	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	AWSS3Bucket        string
	ArchiveDir         string

	KafkaBrokers []string
	KafkaTopic   string

	RabbitMQURL      string
	RabbitMQExchange string

	AverageSpeedKmh     float64
	RideClientMayCancel bool

	LogLevel  string
	LogFormat string
}

func defaultConfig() Config {
	return Config{
		Port:                "8080",
		Storage:             "postgres",
		DBHost:              "localhost",
		DBPort:              "5432",
		DBSSLMode:           "disable",
		KafkaTopic:          "evvalet-events",
		RabbitMQExchange:    "evvalet.events",
		AverageSpeedKmh:     30,
		RideClientMayCancel: true,
		LogLevel:            "info",
		LogFormat:           "text",
	}
}

// Load reads .env (if present) and the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from the process environment only.
func FromEnv() (Config, error) {
	cfg := defaultConfig()
	var errs []error

	setStringFromEnv(&cfg.Port, "PORT")
	setStringFromEnv(&cfg.Storage, "STORAGE")
	cfg.Storage = strings.ToLower(cfg.Storage)

	setStringFromEnv(&cfg.DBHost, "DB_HOST")
	setStringFromEnv(&cfg.DBUser, "DB_USER")
	cfg.DBPassword = os.Getenv("DB_PASSWORD")
	setStringFromEnv(&cfg.DBName, "DB_NAME")
	setStringFromEnv(&cfg.DBPort, "DB_PORT")
	setStringFromEnv(&cfg.DBSSLMode, "DB_SSLMODE")

	setStringFromEnv(&cfg.RedisURL, "REDIS_URL")
	cfg.JWTSecret = os.Getenv("JWT_SECRET")

	setStringFromEnv(&cfg.FirebaseServiceAccountPath, "FIREBASE_SERVICE_ACCOUNT_PATH")

	setStringFromEnv(&cfg.AWSRegion, "AWS_REGION")
	setStringFromEnv(&cfg.AWSAccessKeyID, "AWS_ACCESS_KEY_ID")
	cfg.AWSSecretAccessKey = os.Getenv("AWS_SECRET_ACCESS_KEY")
	setStringFromEnv(&cfg.AWSS3Bucket, "AWS_S3_BUCKET")
	setStringFromEnv(&cfg.ArchiveDir, "ARCHIVE_DIR")

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TOPIC")

	setStringFromEnv(&cfg.RabbitMQURL, "RABBITMQ_URL")
	setStringFromEnv(&cfg.RabbitMQExchange, "RABBITMQ_EXCHANGE")

	setFloatFromEnv(&cfg.AverageSpeedKmh, "AVERAGE_SPEED_KMH", &errs)
	setBoolFromEnv(&cfg.RideClientMayCancel, "RIDE_CLIENT_MAY_CANCEL", &errs)

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.LogFormat = strings.ToLower(v)
	}

	if cfg.AverageSpeedKmh <= 0 {
		errs = append(errs, fmt.Errorf("AVERAGE_SPEED_KMH must be > 0"))
	}
	if cfg.Storage != "postgres" && cfg.Storage != "memory" {
		errs = append(errs, fmt.Errorf("STORAGE must be postgres or memory, got %q", cfg.Storage))
	}
	if cfg.JWTSecret == "" {
		errs = append(errs, fmt.Errorf("JWT_SECRET is required"))
	}

	return cfg, errors.Join(errs...)
}

// PostgresDSN renders the connection string for gorm's postgres driver.
func (c Config) PostgresDSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort, c.DBSSLMode,
	)
}

// S3Enabled reports whether the ride archive should go to S3 rather than disk.
func (c Config) S3Enabled() bool {
	return c.AWSRegion != "" && c.AWSAccessKeyID != "" && c.AWSSecretAccessKey != "" && c.AWSS3Bucket != ""
}

func setFloatFromEnv(target *float64, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = f
	}
}

func setBoolFromEnv(target *bool, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = b
	}
}

func setStringFromEnv(target *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*target = v
	}
}

func splitAndTrim(v string) []string {
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}
