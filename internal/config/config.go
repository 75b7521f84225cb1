package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/SIMPLYBOYS/sage_mining/internal/db"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"

	BoostStepped = "stepped"
	BoostSingle  = "single"
)

type Config struct {
	Development bool
	LogLevel    string
	LogDir      string

	// API configuration
	APIPort    int
	CORSOrigin string

	// Storage configuration
	Store    string
	Postgres db.Config

	// Auth configuration
	JWTSecret     string
	TokenTTL      time.Duration
	AdminPassword string
	ResetTokenTTL time.Duration

	// Mining configuration
	BoostMode           string
	BoostCap            int
	BoostStepPercent    int
	BoostTimeCutPercent int
	StaleSessionGrace   time.Duration
	JanitorInterval     time.Duration
	ReferralReward      int64

	// SMTP configuration
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SMTPSender   string
}

// LoadConfig loads the configuration from environment variables, applies
// overrides such as command line flags, then validates the result.
func LoadConfig(overrides ...func(*Config)) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := FromEnv()
	for _, override := range overrides {
		override(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv reads every key with its default and does not validate.
func FromEnv() *Config {
	return &Config{
		Development: getEnvAsBool("DEVELOPMENT", false),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogDir:      getEnv("LOG_DIR", ""),

		APIPort:    getEnvAsInt("API_PORT", 8080),
		CORSOrigin: getEnv("CORS_ORIGIN", "*"),

		Store: getEnv("STORE", StorePostgres),
		Postgres: db.Config{
			Host:           getEnv("DB_HOST", "localhost"),
			Port:           getEnv("DB_PORT", "5432"),
			User:           getEnv("DB_USER", "postgres"),
			Password:       getEnv("DB_PASSWORD", "password"),
			Name:           getEnv("DB_NAME", "sagemining"),
			SSLMode:        getEnv("DB_SSLMODE", "disable"),
			MigrationsPath: getEnv("MIGRATIONS_PATH", "file://migrations"),
		},

		JWTSecret:     getEnv("JWT_SECRET", ""),
		TokenTTL:      getEnvAsDuration("TOKEN_TTL", 24*time.Hour),
		AdminPassword: getEnv("ADMIN_PASSWORD", ""),
		ResetTokenTTL: getEnvAsDuration("RESET_TOKEN_TTL", time.Hour),

		BoostMode:           getEnv("BOOST_MODE", BoostStepped),
		BoostCap:            getEnvAsInt("BOOST_CAP", 20),
		BoostStepPercent:    getEnvAsInt("BOOST_STEP_PERCENT", 10),
		BoostTimeCutPercent: getEnvAsInt("BOOST_TIME_CUT_PERCENT", 0),
		StaleSessionGrace:   getEnvAsDuration("STALE_SESSION_GRACE", 24*time.Hour),
		JanitorInterval:     getEnvAsDuration("JANITOR_INTERVAL", 10*time.Minute),
		ReferralReward:      int64(getEnvAsInt("REFERRAL_REWARD", 100)),

		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnvAsInt("SMTP_PORT", 587),
		SMTPUser:     getEnv("SMTP_USER", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SMTPSender:   getEnv("SMTP_SENDER", ""),
	}
}

// Validate checks that all required configuration fields are properly set
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.AdminPassword == "" {
		return fmt.Errorf("ADMIN_PASSWORD is required")
	}
	if c.APIPort <= 0 || c.APIPort > 65535 {
		return fmt.Errorf("API_PORT must be between 1 and 65535, got %d", c.APIPort)
	}

	switch c.Store {
	case StoreMemory:
	case StorePostgres:
		if c.Postgres.Host == "" {
			return fmt.Errorf("DB_HOST is required")
		}
		if c.Postgres.Name == "" {
			return fmt.Errorf("DB_NAME is required")
		}
	default:
		return fmt.Errorf("STORE must be %q or %q, got %q", StorePostgres, StoreMemory, c.Store)
	}

	switch c.BoostMode {
	case BoostStepped:
		if c.BoostCap <= 0 {
			return fmt.Errorf("BOOST_CAP must be positive")
		}
		if c.BoostStepPercent <= 0 {
			return fmt.Errorf("BOOST_STEP_PERCENT must be positive")
		}
	case BoostSingle:
	default:
		return fmt.Errorf("BOOST_MODE must be %q or %q, got %q", BoostStepped, BoostSingle, c.BoostMode)
	}
	if c.BoostTimeCutPercent < 0 || c.BoostTimeCutPercent >= 100 {
		return fmt.Errorf("BOOST_TIME_CUT_PERCENT must be in [0, 100)")
	}
	if c.ReferralReward < 0 {
		return fmt.Errorf("REFERRAL_REWARD must not be negative")
	}
	if c.StaleSessionGrace < 0 {
		return fmt.Errorf("STALE_SESSION_GRACE must not be negative")
	}
	if c.JanitorInterval <= 0 {
		return fmt.Errorf("JANITOR_INTERVAL must be positive")
	}
	return nil
}

// SMTPEnabled reports whether outgoing mail should go through SMTP.
func (c *Config) SMTPEnabled() bool {
	return c.SMTPHost != "" && c.SMTPSender != ""
}

// Helper functions to read environment variables
func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(name string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := strconv.Atoi(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsBool(name string, defaultValue bool) bool {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := strconv.ParseBool(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsDuration(name string, defaultValue time.Duration) time.Duration {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := time.ParseDuration(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}
