package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

var ErrEmptyEnvironmentVariable = errors.New("empty environment variable")

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Services ServicesConfig
	Tracking TrackingConfig
	Server   ServerConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host     string
	Username string
	Password string
	Name     string
}

// ServicesConfig holds external service API keys and configuration
type ServicesConfig struct {
	ResendAPIKey       string
	DefaultEmailSender string
	MercadoPagoToken   string
	MercadoPagoBaseURL string
	LinkSigningSecret  string
	WebAppURI          string
}

// TrackingConfig holds conversion event pipeline configuration
type TrackingConfig struct {
	PixelID        string
	AccessToken    string
	EventsAPIURL   string
	DefaultCountry string
	DedupeCapacity int
	DrainInterval  time.Duration
	MaxAttempts    int
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int
}

// Load reads and validates all required environment variables. A missing
// pixel id or access token is a permanent configuration error and aborts
// startup rather than failing per-event later.
func Load() (*Config, error) {
	// Load env.local in non-production environments
	if os.Getenv("GO_ENV") != "production" {
		if err := godotenv.Load("env.local"); err != nil {
			return nil, fmt.Errorf("failed to load env.local: %w", err)
		}
	}

	cfg := &Config{}

	// Database configuration
	var err error
	if cfg.Database.Host, err = requireEnv("DB_HOST"); err != nil {
		return nil, err
	}
	if cfg.Database.Username, err = requireEnv("DB_USERNAME"); err != nil {
		return nil, err
	}
	if cfg.Database.Password, err = requireEnv("DB_PASSWORD"); err != nil {
		return nil, err
	}
	if cfg.Database.Name, err = requireEnv("DB_NAME"); err != nil {
		return nil, err
	}

	// Services configuration
	if cfg.Services.ResendAPIKey, err = requireEnv("RESEND_API_KEY"); err != nil {
		return nil, err
	}
	if cfg.Services.DefaultEmailSender, err = requireEnv("DEFAULT_EMAIL_SENDER_ADDRESS"); err != nil {
		return nil, err
	}
	if cfg.Services.MercadoPagoToken, err = requireEnv("MERCADOPAGO_ACCESS_TOKEN"); err != nil {
		return nil, err
	}
	cfg.Services.MercadoPagoBaseURL = getEnvWithDefault("MERCADOPAGO_BASE_URL", "https://api.mercadopago.com")
	if cfg.Services.LinkSigningSecret, err = requireEnv("LINK_SIGNING_SECRET"); err != nil {
		return nil, err
	}
	if cfg.Services.WebAppURI, err = requireEnv("WEBAPP_URI"); err != nil {
		return nil, err
	}

	// Tracking configuration
	if cfg.Tracking.PixelID, err = requireEnv("TRACKING_PIXEL_ID"); err != nil {
		return nil, err
	}
	if cfg.Tracking.AccessToken, err = requireEnv("TRACKING_ACCESS_TOKEN"); err != nil {
		return nil, err
	}
	cfg.Tracking.EventsAPIURL = getEnvWithDefault("TRACKING_EVENTS_API_URL",
		"https://business-api.tiktok.com/open_api/v1.3/event/track/")
	cfg.Tracking.DefaultCountry = getEnvWithDefault("TRACKING_DEFAULT_COUNTRY", "BR")

	dedupeCapacity := getEnvWithDefault("TRACKING_DEDUPE_CAPACITY", "10000")
	cfg.Tracking.DedupeCapacity, err = strconv.Atoi(dedupeCapacity)
	if err != nil {
		return nil, fmt.Errorf("failed to parse TRACKING_DEDUPE_CAPACITY: %w", err)
	}

	drainSeconds := getEnvWithDefault("TRACKING_DRAIN_INTERVAL_SECONDS", "5")
	seconds, err := strconv.Atoi(drainSeconds)
	if err != nil {
		return nil, fmt.Errorf("failed to parse TRACKING_DRAIN_INTERVAL_SECONDS: %w", err)
	}
	cfg.Tracking.DrainInterval = time.Duration(seconds) * time.Second

	maxAttempts := getEnvWithDefault("TRACKING_MAX_ATTEMPTS", "3")
	cfg.Tracking.MaxAttempts, err = strconv.Atoi(maxAttempts)
	if err != nil {
		return nil, fmt.Errorf("failed to parse TRACKING_MAX_ATTEMPTS: %w", err)
	}

	// Server configuration
	serverPort, err := requireEnv("SERVER_PORT")
	if err != nil {
		return nil, err
	}
	cfg.Server.Port, err = strconv.Atoi(serverPort)
	if err != nil {
		return nil, fmt.Errorf("failed to parse SERVER_PORT: %w", err)
	}

	return cfg, nil
}

// ConnectionString returns a PostgreSQL connection string
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s/%s",
		c.Username, c.Password, c.Host, c.Name)
}

// requireEnv retrieves an environment variable or returns an error if empty
func requireEnv(key string) (string, error) {
	value := os.Getenv(key)
	if value == "" {
		return "", fmt.Errorf("%s is not set: %w", key, ErrEmptyEnvironmentVariable)
	}
	return value, nil
}

// getEnvWithDefault retrieves an environment variable or returns a default value
func getEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
