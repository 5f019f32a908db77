package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/mozila9822/website-VOY-sub000/internal/common/database"
)

type Config struct {
	Env  string
	DB   database.Config
	HTTP struct {
		Port int
	}
	Redis struct {
		URL string
	}
	Admin struct {
		JWTSecret string
	}
	SFN struct {
		TaskToken                 string
		BookingEventsStateMachine string
	}
	Log struct {
		Level  string
		Format string
	}
	EnableTracing bool
}

// IsLocal はローカル環境で動作しているかを返します
func (c *Config) IsLocal() bool {
	return strings.EqualFold(c.Env, "LOCAL")
}

// LoadConfig は設定を読み込みます
// taskToken はStep Functionsから起動されたバッチのみが指定します
func LoadConfig(taskToken string) (*Config, error) {
	// .env はローカル開発用。本番では存在しないのが通常
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logrus.Warnf("Could not load .env file: %v", err)
	}

	cfg := &Config{
		Env: getEnvOrDefault("ENV", "LOCAL"),
		DB: database.Config{
			Host:     getEnvOrDefault("DB_HOST", "localhost"),
			Port:     getEnvAsIntOrDefault("DB_PORT", 5432),
			UserName: getEnvOrDefault("DB_USERNAME", "voyage"),
			Password: getEnvOrDefault("DB_PASSWORD", "password"),
			DBName:   getEnvOrDefault("DB_NAME", "voyage"),
			SSLMode:  os.Getenv("DB_SSL_MODE"),
		},
		EnableTracing: false,
	}
	cfg.HTTP.Port = getEnvAsIntOrDefault("HTTP_PORT", 8080)
	cfg.Redis.URL = os.Getenv("REDIS_URL")
	cfg.Admin.JWTSecret = os.Getenv("ADMIN_JWT_SECRET")
	cfg.SFN.TaskToken = taskToken
	cfg.SFN.BookingEventsStateMachine = os.Getenv("BOOKING_EVENTS_STATE_MACHINE_ARN")
	cfg.Log.Level = getEnvOrDefault("LOG_LEVEL", "info")
	cfg.Log.Format = os.Getenv("LOG_FORMAT")

	// 環境変数[SBCNTR_ENABLE_TRACING]を見てトレースを有効にする。対応しているTracingはAWS_XRAYのみ。
	// 環境変数[AWS_XRAY_SDK_DISABLED]がtrueの場合は必ずトレースを無効にする。
	enableKey := os.Getenv("SBCNTR_ENABLE_TRACING")
	if !sdkDisabled() && (strings.ToLower(enableKey) == "true" || enableKey == "1") {
		os.Setenv("AWS_XRAY_SDK_DISABLED", "FALSE")
		cfg.EnableTracing = true
	} else {
		os.Setenv("AWS_XRAY_SDK_DISABLED", "TRUE")
		cfg.EnableTracing = false
	}

	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	logrus.Debugf("Environment variable %s is not set, using default value", key)
	return defaultValue
}

func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
		logrus.Warnf("Environment variable %s is not an integer, using default value", key)
	}
	return defaultValue
}

// Check if SDK is disabled
func sdkDisabled() bool {
	disableKey := os.Getenv("AWS_XRAY_SDK_DISABLED")
	return strings.ToLower(disableKey) == "true"
}
