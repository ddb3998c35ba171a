package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"medicare-scheduler/internal/models"
)

// Config holds all configuration for our application
type Config struct {
	Port         string
	Origin       string
	Environment  string
	LogLevel     string
	JWTSecret    string
	Database     DatabaseConfig
	Redis        RedisConfig
	RabbitMQ     RabbitMQConfig
	Twilio       TwilioConfig
	Reminders    ReminderConfig
	Dispatch     DispatchConfig
	Channels     ChannelConfig
	OTLPEndpoint string
}

// DatabaseConfig holds database connection details
type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     string
	Username string
	Password string
	Name     string
	DSN      string
}

// RedisConfig holds the optional distributed run lock connection.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RabbitMQConfig holds the email job queue settings.
type RabbitMQConfig struct {
	URL        string
	Exchange   string
	EmailQueue string
	EmailFrom  string
}

// TwilioConfig holds SMS and WhatsApp credentials.
type TwilioConfig struct {
	AccountSID     string
	AuthToken      string
	PhoneNumber    string
	WhatsAppNumber string
}

// ReminderConfig controls the evaluator and the retention sweep.
type ReminderConfig struct {
	PollInterval    time.Duration
	Offsets         []models.Offset
	Retention       time.Duration
	CleanupInterval time.Duration
}

// DispatchConfig controls fan-out and retry of deliveries.
type DispatchConfig struct {
	Workers          int
	TransportTimeout time.Duration
	MaxRetries       int
	RetryEnabled     bool
	RetryBackoff     time.Duration
}

// ChannelConfig holds the deployment-wide channel defaults used when a clinic
// has no setting for a channel.
type ChannelConfig struct {
	SMS      bool
	WhatsApp bool
	Email    bool
}

// Enabled returns the default for ch. Push is always on.
func (c ChannelConfig) Enabled(ch models.Channel) bool {
	switch ch {
	case models.ChannelSMS:
		return c.SMS
	case models.ChannelWhatsApp:
		return c.WhatsApp
	case models.ChannelEmail:
		return c.Email
	case models.ChannelPush:
		return true
	}
	return false
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "3001")
	v.SetDefault("ORIGIN", "http://localhost:4200")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("JWT_SECRET", "default_jwt_secret")

	v.SetDefault("DB_DRIVER", "mysql")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_USERNAME", "root")
	v.SetDefault("DB_PASSWORD", "")
	v.SetDefault("DB_NAME", "medi")

	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("MAIL_EXCHANGE", "notifications.direct")
	v.SetDefault("EMAIL_QUEUE", "email.queue")
	v.SetDefault("EMAIL_FROM", "no-reply@medicare.local")

	v.SetDefault("REMINDER_POLL_INTERVAL", "15m")
	v.SetDefault("REMINDER_OFFSETS", "24h,2h,30m")
	v.SetDefault("NOTIFICATION_RETENTION", "720h")
	v.SetDefault("CLEANUP_INTERVAL", "24h")

	v.SetDefault("DISPATCH_WORKERS", 8)
	v.SetDefault("TRANSPORT_TIMEOUT", "10s")
	v.SetDefault("NOTIFY_MAX_RETRIES", models.DefaultMaxRetries)
	v.SetDefault("NOTIFY_RETRY_ENABLED", false)
	v.SetDefault("NOTIFY_RETRY_BACKOFF", "2s")

	v.SetDefault("CHANNEL_SMS_ENABLED", true)
	v.SetDefault("CHANNEL_WHATSAPP_ENABLED", true)
	v.SetDefault("CHANNEL_EMAIL_ENABLED", true)
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	dbConfig := DatabaseConfig{
		Driver:   strings.ToLower(v.GetString("DB_DRIVER")),
		Host:     v.GetString("DB_HOST"),
		Port:     v.GetString("DB_PORT"),
		Username: v.GetString("DB_USERNAME"),
		Password: v.GetString("DB_PASSWORD"),
		Name:     v.GetString("DB_NAME"),
		DSN:      v.GetString("DATABASE_DSN"),
	}
	if dbConfig.DSN == "" {
		dbConfig.DSN = buildDSN(dbConfig)
	}

	offsets, err := models.ParseOffsets(v.GetString("REMINDER_OFFSETS"))
	if err != nil {
		return nil, fmt.Errorf("invalid REMINDER_OFFSETS: %w", err)
	}

	cfg := &Config{
		Port:        v.GetString("PORT"),
		Origin:      v.GetString("ORIGIN"),
		Environment: v.GetString("ENV"),
		LogLevel:    v.GetString("LOG_LEVEL"),
		JWTSecret:   v.GetString("JWT_SECRET"),
		Database:    dbConfig,
		Redis: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		RabbitMQ: RabbitMQConfig{
			URL:        v.GetString("RABBITMQ_URL"),
			Exchange:   v.GetString("MAIL_EXCHANGE"),
			EmailQueue: v.GetString("EMAIL_QUEUE"),
			EmailFrom:  v.GetString("EMAIL_FROM"),
		},
		Twilio: TwilioConfig{
			AccountSID:     v.GetString("TWILIO_ACCOUNT_SID"),
			AuthToken:      v.GetString("TWILIO_AUTH_TOKEN"),
			PhoneNumber:    v.GetString("TWILIO_PHONE_NUMBER"),
			WhatsAppNumber: v.GetString("TWILIO_WHATSAPP_NUMBER"),
		},
		Reminders: ReminderConfig{
			PollInterval:    v.GetDuration("REMINDER_POLL_INTERVAL"),
			Offsets:         offsets,
			Retention:       v.GetDuration("NOTIFICATION_RETENTION"),
			CleanupInterval: v.GetDuration("CLEANUP_INTERVAL"),
		},
		Dispatch: DispatchConfig{
			Workers:          v.GetInt("DISPATCH_WORKERS"),
			TransportTimeout: v.GetDuration("TRANSPORT_TIMEOUT"),
			MaxRetries:       v.GetInt("NOTIFY_MAX_RETRIES"),
			RetryEnabled:     v.GetBool("NOTIFY_RETRY_ENABLED"),
			RetryBackoff:     v.GetDuration("NOTIFY_RETRY_BACKOFF"),
		},
		Channels: ChannelConfig{
			SMS:      v.GetBool("CHANNEL_SMS_ENABLED"),
			WhatsApp: v.GetBool("CHANNEL_WHATSAPP_ENABLED"),
			Email:    v.GetBool("CHANNEL_EMAIL_ENABLED"),
		},
		OTLPEndpoint: v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func buildDSN(db DatabaseConfig) string {
	switch db.Driver {
	case "postgres":
		port := db.Port
		if port == "" {
			port = "5432"
		}
		return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
			db.Host, db.Username, db.Password, db.Name, port)
	default:
		port := db.Port
		if port == "" {
			port = "3306"
		}
		return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			db.Username, db.Password, db.Host, port, db.Name)
	}
}

// Validate rejects settings the scheduler cannot run with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "mysql", "postgres":
	default:
		return fmt.Errorf("DB_DRIVER must be \"mysql\" or \"postgres\", got %q", c.Database.Driver)
	}
	if c.Reminders.PollInterval <= 0 {
		return fmt.Errorf("REMINDER_POLL_INTERVAL must be positive")
	}
	if c.Reminders.Retention <= 0 {
		return fmt.Errorf("NOTIFICATION_RETENTION must be positive")
	}
	if c.Reminders.CleanupInterval <= 0 {
		return fmt.Errorf("CLEANUP_INTERVAL must be positive")
	}
	if c.Dispatch.Workers < 1 {
		return fmt.Errorf("DISPATCH_WORKERS must be at least 1, got %d", c.Dispatch.Workers)
	}
	if c.Dispatch.TransportTimeout <= 0 {
		return fmt.Errorf("TRANSPORT_TIMEOUT must be positive")
	}
	if c.Dispatch.MaxRetries < 1 {
		return fmt.Errorf("NOTIFY_MAX_RETRIES must be at least 1, got %d", c.Dispatch.MaxRetries)
	}
	if !c.IsDev() && c.JWTSecret == "default_jwt_secret" {
		return fmt.Errorf("JWT_SECRET must be set outside development")
	}
	return nil
}

// IsDev reports whether the service runs in development mode.
func (c *Config) IsDev() bool {
	return c.Environment == "development"
}

// IsProduction reports whether the service runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
