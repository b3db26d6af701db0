package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	JWT          JWTConfig
	Redis        RedisConfig
	Kafka        KafkaConfig
	Payment      PaymentConfig
	SMS          SMSConfig
	Notification NotificationConfig
	Booking      BookingConfig
	Promo        PromoConfig
	Invoice      InvoiceConfig
	Scheduler    SchedulerConfig
	CORS         CORSConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port          string
	Environment   string // development, staging, production
	LogLevel      string // debug, info, warn, error
	PublicBaseURL string // used to build invoice document links
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	URL                string
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
}

// JWTConfig holds the access token secret shared with the identity provider
type JWTConfig struct {
	Secret            string
	AccessTokenExpiry time.Duration
	Issuer            string
}

// RedisConfig holds cache configuration
type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	CalendarTTL time.Duration
	CatalogTTL  time.Duration
	PlanTTL     time.Duration
}

// KafkaConfig holds messaging configuration
type KafkaConfig struct {
	Brokers            []string
	NotificationsTopic string
	BookingEventsTopic string
	ConsumerGroup      string
}

// PaymentConfig holds PAYable IPG configuration
type PaymentConfig struct {
	Gateway       string // "payable" or "placeholder"
	Environment   string // "sandbox" or "production"
	MerchantKey   string
	MerchantToken string // SECRET - only used for checkValue calculation
	LogoURL       string
	ReturnURL     string
	WebhookURL    string
	Currency      string
}

// SMSConfig holds Dialog SMS gateway configuration used for operations alerts
type SMSConfig struct {
	Mode      string // "dev" logs only, "production" sends
	APIURL    string
	Username  string
	Password  string
	Mask      string
	OpsPhones []string
}

// NotificationConfig holds the operations messaging destination
type NotificationConfig struct {
	OpsWhatsAppNumber string
	DeepLinkBase      string
	DispatchTimeout   time.Duration
}

// BookingConfig holds checkout policy
type BookingConfig struct {
	MaxTravelers int
	PaymentTTL   time.Duration
	Currency     string
	SubmitLimit  int // submissions per user per SubmitWindow, 0 disables
	SubmitWindow time.Duration
}

// PromoConfig holds promo validation limits
type PromoConfig struct {
	MaxAttempts int
	Window      time.Duration
}

// InvoiceConfig holds invoice numbering and document settings
type InvoiceConfig struct {
	NumberPrefix string
	CompanyName  string
}

// SchedulerConfig holds cron specs for background jobs
type SchedulerConfig struct {
	ReconcileSpec      string
	DocumentRetrySpec  string
	ExpirationInterval time.Duration
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Server: ServerConfig{
			Port:          getEnv("PORT", "8080"),
			Environment:   getEnv("ENVIRONMENT", "development"),
			LogLevel:      getEnv("LOG_LEVEL", "info"),
			PublicBaseURL: strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
		},
		Database: DatabaseConfig{
			URL:                getEnv("DATABASE_URL", ""),
			MaxConnections:     getEnvAsInt("DATABASE_MAX_CONNECTIONS", 10),
			MaxIdleConnections: getEnvAsInt("DATABASE_MAX_IDLE_CONNECTIONS", 5),
			ConnMaxLifetime:    time.Duration(getEnvAsInt("DATABASE_CONN_MAX_LIFETIME", 300)) * time.Second,
		},
		JWT: JWTConfig{
			Secret:            getEnv("JWT_SECRET", ""),
			AccessTokenExpiry: time.Duration(getEnvAsInt("JWT_ACCESS_TOKEN_EXPIRY", 3600)) * time.Second,
			Issuer:            getEnv("JWT_ISSUER", "travelcraft-identity"),
		},
		Redis: RedisConfig{
			Addr:        getEnv("REDIS_ADDR", "localhost:6379"),
			Password:    getEnv("REDIS_PASSWORD", ""),
			DB:          getEnvAsInt("REDIS_DB", 0),
			CalendarTTL: time.Duration(getEnvAsInt("REDIS_CALENDAR_TTL_SECONDS", 60)) * time.Second,
			CatalogTTL:  time.Duration(getEnvAsInt("REDIS_CATALOG_TTL_SECONDS", 300)) * time.Second,
			PlanTTL:     time.Duration(getEnvAsInt("REDIS_PLAN_TTL_HOURS", 72)) * time.Hour,
		},
		Kafka: KafkaConfig{
			Brokers:            getEnvAsSlice("KAFKA_BROKERS", nil),
			NotificationsTopic: getEnv("KAFKA_NOTIFICATIONS_TOPIC", "booking-notifications"),
			BookingEventsTopic: getEnv("KAFKA_BOOKING_EVENTS_TOPIC", "booking-events"),
			ConsumerGroup:      getEnv("KAFKA_CONSUMER_GROUP", "ops-notifier"),
		},
		Payment: PaymentConfig{
			Gateway:       getEnv("PAYMENT_GATEWAY", "payable"),
			Environment:   getEnv("PAYABLE_ENVIRONMENT", "sandbox"),
			MerchantKey:   getEnv("PAYABLE_MERCHANT_KEY", ""),
			MerchantToken: getEnv("PAYABLE_MERCHANT_TOKEN", ""),
			LogoURL:       getEnv("PAYABLE_LOGO_URL", ""),
			ReturnURL:     getEnv("PAYABLE_RETURN_URL", ""),
			WebhookURL:    getEnv("PAYABLE_WEBHOOK_URL", ""),
			Currency:      getEnv("PAYMENT_CURRENCY", "USD"),
		},
		SMS: SMSConfig{
			Mode:      getEnv("SMS_MODE", "dev"),
			APIURL:    getEnv("DIALOG_SMS_API_URL", "https://e-sms.dialog.lk/api/v2"),
			Username:  getEnv("DIALOG_SMS_USERNAME", ""),
			Password:  getEnv("DIALOG_SMS_PASSWORD", ""),
			Mask:      getEnv("DIALOG_SMS_MASK", ""),
			OpsPhones: getEnvAsSlice("OPS_ALERT_PHONES", nil),
		},
		Notification: NotificationConfig{
			OpsWhatsAppNumber: getEnv("OPS_WHATSAPP_NUMBER", ""),
			DeepLinkBase:      getEnv("NOTIFICATION_DEEP_LINK_BASE", "https://wa.me"),
			DispatchTimeout:   time.Duration(getEnvAsInt("NOTIFICATION_TIMEOUT_SECONDS", 10)) * time.Second,
		},
		Booking: BookingConfig{
			MaxTravelers: getEnvAsInt("BOOKING_MAX_TRAVELERS", 20),
			PaymentTTL:   time.Duration(getEnvAsInt("BOOKING_PAYMENT_TTL_MINUTES", 30)) * time.Minute,
			Currency:     getEnv("PAYMENT_CURRENCY", "USD"),
			SubmitLimit:  getEnvAsInt("BOOKING_SUBMIT_LIMIT", 5),
			SubmitWindow: time.Duration(getEnvAsInt("BOOKING_SUBMIT_WINDOW_MINUTES", 10)) * time.Minute,
		},
		Promo: PromoConfig{
			MaxAttempts: getEnvAsInt("PROMO_MAX_ATTEMPTS", 10),
			Window:      time.Duration(getEnvAsInt("PROMO_WINDOW_MINUTES", 15)) * time.Minute,
		},
		Invoice: InvoiceConfig{
			NumberPrefix: getEnv("INVOICE_NUMBER_PREFIX", "INV"),
			CompanyName:  getEnv("INVOICE_COMPANY_NAME", "TravelCraft Tours"),
		},
		Scheduler: SchedulerConfig{
			ReconcileSpec:      getEnv("RECONCILE_CRON", "0 */5 * * * *"),
			DocumentRetrySpec:  getEnv("DOCUMENT_RETRY_CRON", "30 */10 * * * *"),
			ExpirationInterval: time.Duration(getEnvAsInt("EXPIRATION_INTERVAL_SECONDS", 60)) * time.Second,
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvAsSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}),
			AllowedHeaders: getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization", "Idempotency-Key"}),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.Booking.MaxTravelers < 1 {
		return fmt.Errorf("BOOKING_MAX_TRAVELERS must be at least 1")
	}

	switch c.Payment.Gateway {
	case "payable":
		if c.Server.Environment == "production" && (c.Payment.MerchantKey == "" || c.Payment.MerchantToken == "") {
			return fmt.Errorf("PAYABLE_MERCHANT_KEY and PAYABLE_MERCHANT_TOKEN are required in production")
		}
	case "placeholder":
		// The placeholder gateway verifies every claim; never allow it where money moves
		if c.Server.Environment == "production" {
			return fmt.Errorf("PAYMENT_GATEWAY=placeholder is not allowed in production")
		}
	default:
		return fmt.Errorf("invalid PAYMENT_GATEWAY: %s (must be 'payable' or 'placeholder')", c.Payment.Gateway)
	}

	if c.SMS.Mode == "production" {
		if c.SMS.Username == "" || c.SMS.Password == "" {
			return fmt.Errorf("DIALOG_SMS_USERNAME and DIALOG_SMS_PASSWORD are required in production mode")
		}
	}

	return nil
}

// Helper functions to get environment variables

func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid integer value for %s, using default: %d", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var result []string
	for _, v := range strings.Split(valueStr, ",") {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
