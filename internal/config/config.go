package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	SMTP     SMTPConfig
	Billing  BillingConfig
	Gateway  GatewayConfig
}

type AppConfig struct {
	Port               string
	BaseURL            string
	ClientURL          string
	Environment        string
	LogFilePath        string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
}

type DatabaseConfig struct {
	Connection string
}

type SMTPConfig struct {
	Host       string
	Port       int
	Email      string
	Password   string
	SenderName string
}

// BillingConfig carries the lifecycle knobs. Defaults match production
// policy: 5 grace days, 30 day periods, enforcement twice a day, renewals
// swept once nightly.
type BillingConfig struct {
	GracePeriodDays   int
	RenewalPeriodDays int
	TrialDays         int
	EnforceInterval   time.Duration
	RenewalHourUTC    int
	RenewalMinuteUTC  int
	SchedulerTick     time.Duration
	EntitlementTTL    time.Duration
}

type GatewayConfig struct {
	ServerKey    string
	IsProduction bool
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			BaseURL:            getEnv("APP_BASE_URL", "http://localhost:3000"),
			ClientURL:          getEnv("CLIENT_URL", "http://localhost:5173"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "app.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:            getEnv("NATS_URL", "nats://localhost:4222"),
			RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
		},
		Database: DatabaseConfig{
			Connection: getEnv("DB_CONNECTION_STRING", ""),
		},
		SMTP: SMTPConfig{
			Host:       getEnv("SMTP_HOST", ""),
			Port:       getEnvAsInt("SMTP_PORT", 587),
			Email:      getEnv("SMTP_EMAIL", ""),
			Password:   getEnv("SMTP_PASSWORD", ""),
			SenderName: getEnv("SMTP_SENDER_NAME", "CyberRange Billing"),
		},
		Billing: BillingConfig{
			GracePeriodDays:   getEnvAsInt("BILLING_GRACE_PERIOD_DAYS", 5),
			RenewalPeriodDays: getEnvAsInt("BILLING_RENEWAL_PERIOD_DAYS", 30),
			TrialDays:         getEnvAsInt("BILLING_TRIAL_DAYS", 7),
			EnforceInterval:   getEnvAsDuration("BILLING_ENFORCE_INTERVAL", 12*time.Hour),
			RenewalHourUTC:    getEnvAsInt("BILLING_RENEWAL_HOUR_UTC", 2),
			RenewalMinuteUTC:  getEnvAsInt("BILLING_RENEWAL_MINUTE_UTC", 0),
			SchedulerTick:     getEnvAsDuration("BILLING_SCHEDULER_TICK", time.Minute),
			EntitlementTTL:    getEnvAsDuration("ENTITLEMENT_CACHE_TTL", 30*time.Second),
		},
		Gateway: GatewayConfig{
			ServerKey:    getEnv("MIDTRANS_SERVER_KEY", ""),
			IsProduction: getEnv("MIDTRANS_ENV", "sandbox") == "production",
		},
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	return fallback
}
