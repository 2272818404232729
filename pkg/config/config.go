package config

import (
	"errors"
	"fmt"
	"io/fs"
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
	Pricing       PricingConfig
	Stripe        StripeConfig
	Email         EmailConfig
	SMS           SMSConfig
	Notifications NotificationConfig
	Approval      ApprovalConfig
	Tracing       TracingConfig
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

// RedisConfig is optional; an empty host disables the distributed approval lock.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
	Issuer string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// PricingConfig holds the sibling discount policy. Amounts are in minor currency units.
type PricingConfig struct {
	Currency               string
	SiblingThreshold       int
	DiscountAmountOff      int64
	DiscountDurationMonths int
}

// StripeConfig configures the payment provider and the per-track price catalogue.
type StripeConfig struct {
	SecretKey  string
	SuccessURL string
	CancelURL  string
	SessionTTL time.Duration
	Timeout    time.Duration
	Prices     map[string]TrackPrices
}

// TrackPrices are the provider price ids billed for one program track.
type TrackPrices struct {
	AdmissionPriceID string
	MonthlyPriceID   string
}

// EmailConfig configures transactional email delivery.
type EmailConfig struct {
	Enabled     bool
	Region      string
	FromAddress string
	ReplyTo     string
	SchoolName  string
	Timeout     time.Duration
}

// SMSConfig configures the optional payment-link text message.
type SMSConfig struct {
	Enabled  bool
	Region   string
	SenderID string
}

// NotificationConfig sizes the fire-and-forget notification queue.
type NotificationConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
}

// Tracing exporters.
const (
	TracingExporterNone   = "none"
	TracingExporterStdout = "stdout"
)

// TracingConfig selects where spans go. With the none exporter spans are
// still created and sampled but never leave the process.
type TracingConfig struct {
	Exporter    string
	ServiceName string
	SampleRatio float64
}

// ApprovalConfig tunes the per-record approval guard.
type ApprovalConfig struct {
	LockTTL    time.Duration
	LockPrefix string
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
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
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
		Secret: v.GetString("JWT_SECRET"),
		Issuer: v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Pricing = PricingConfig{
		Currency:               strings.ToLower(v.GetString("PRICING_CURRENCY")),
		SiblingThreshold:       v.GetInt("DISCOUNT_SIBLING_THRESHOLD"),
		DiscountAmountOff:      v.GetInt64("DISCOUNT_AMOUNT_OFF"),
		DiscountDurationMonths: v.GetInt("DISCOUNT_DURATION_MONTHS"),
	}

	cfg.Stripe = StripeConfig{
		SecretKey:  v.GetString("STRIPE_SECRET_KEY"),
		SuccessURL: v.GetString("STRIPE_SUCCESS_URL"),
		CancelURL:  v.GetString("STRIPE_CANCEL_URL"),
		SessionTTL: parseDuration(v.GetString("PAYMENT_SESSION_TTL"), 24*time.Hour),
		Timeout:    parseDuration(v.GetString("PAYMENT_TIMEOUT"), 10*time.Second),
		Prices: map[string]TrackPrices{
			"maktab": {
				AdmissionPriceID: v.GetString("STRIPE_PRICE_MAKTAB_ADMISSION"),
				MonthlyPriceID:   v.GetString("STRIPE_PRICE_MAKTAB_MONTHLY"),
			},
			"hifz": {
				AdmissionPriceID: v.GetString("STRIPE_PRICE_HIFZ_ADMISSION"),
				MonthlyPriceID:   v.GetString("STRIPE_PRICE_HIFZ_MONTHLY"),
			},
		},
	}

	cfg.Email = EmailConfig{
		Enabled:     v.GetBool("ENABLE_EMAIL"),
		Region:      v.GetString("AWS_REGION"),
		FromAddress: v.GetString("EMAIL_FROM_ADDRESS"),
		ReplyTo:     v.GetString("EMAIL_REPLY_TO"),
		SchoolName:  v.GetString("SCHOOL_NAME"),
		Timeout:     parseDuration(v.GetString("EMAIL_TIMEOUT"), 10*time.Second),
	}

	cfg.SMS = SMSConfig{
		Enabled:  v.GetBool("ENABLE_SMS"),
		Region:   v.GetString("AWS_REGION"),
		SenderID: v.GetString("SMS_SENDER_ID"),
	}

	cfg.Notifications = NotificationConfig{
		Workers:    v.GetInt("NOTIFICATION_WORKERS"),
		BufferSize: v.GetInt("NOTIFICATION_BUFFER_SIZE"),
		MaxRetries: v.GetInt("NOTIFICATION_MAX_RETRIES"),
	}

	cfg.Approval = ApprovalConfig{
		LockTTL:    parseDuration(v.GetString("APPROVAL_LOCK_TTL"), 30*time.Second),
		LockPrefix: v.GetString("APPROVAL_LOCK_PREFIX"),
	}

	cfg.Tracing = TracingConfig{
		Exporter:    strings.ToLower(v.GetString("TRACING_EXPORTER")),
		ServiceName: v.GetString("TRACING_SERVICE_NAME"),
		SampleRatio: v.GetFloat64("TRACING_SAMPLE_RATIO"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

const devJWTSecret = "dev_secret"

func (c *Config) validate() error {
	var errs []error
	if c.Pricing.SiblingThreshold < 2 {
		errs = append(errs, fmt.Errorf("DISCOUNT_SIBLING_THRESHOLD must be at least 2, got %d", c.Pricing.SiblingThreshold))
	}
	if c.Pricing.DiscountAmountOff < 0 || c.Pricing.DiscountDurationMonths < 1 {
		errs = append(errs, errors.New("DISCOUNT_AMOUNT_OFF must not be negative and DISCOUNT_DURATION_MONTHS must be positive"))
	}
	if c.Approval.LockTTL <= 0 {
		errs = append(errs, errors.New("APPROVAL_LOCK_TTL must be positive"))
	}
	switch c.Tracing.Exporter {
	case TracingExporterNone, TracingExporterStdout:
	default:
		errs = append(errs, fmt.Errorf("TRACING_EXPORTER must be %q or %q, got %q", TracingExporterNone, TracingExporterStdout, c.Tracing.Exporter))
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("TRACING_SAMPLE_RATIO must be between 0 and 1, got %v", c.Tracing.SampleRatio))
	}
	if c.Env == EnvProduction {
		if c.JWT.Secret == "" || c.JWT.Secret == devJWTSecret {
			errs = append(errs, errors.New("JWT_SECRET must be set in production"))
		}
		if c.Stripe.SecretKey == "" {
			errs = append(errs, errors.New("STRIPE_SECRET_KEY must be set in production"))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "madrasah_registration")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", devJWTSecret)
	v.SetDefault("JWT_ISSUER", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("PRICING_CURRENCY", "gbp")
	v.SetDefault("DISCOUNT_SIBLING_THRESHOLD", 3)
	v.SetDefault("DISCOUNT_AMOUNT_OFF", 1000)
	v.SetDefault("DISCOUNT_DURATION_MONTHS", 12)

	v.SetDefault("STRIPE_SECRET_KEY", "")
	v.SetDefault("STRIPE_SUCCESS_URL", "http://localhost:3000/registration/success")
	v.SetDefault("STRIPE_CANCEL_URL", "http://localhost:3000/registration/cancelled")
	v.SetDefault("PAYMENT_SESSION_TTL", "24h")
	v.SetDefault("PAYMENT_TIMEOUT", "10s")

	v.SetDefault("ENABLE_EMAIL", false)
	v.SetDefault("AWS_REGION", "eu-west-2")
	v.SetDefault("EMAIL_FROM_ADDRESS", "admissions@example.org")
	v.SetDefault("EMAIL_REPLY_TO", "")
	v.SetDefault("SCHOOL_NAME", "Madrasah")
	v.SetDefault("EMAIL_TIMEOUT", "10s")

	v.SetDefault("ENABLE_SMS", false)
	v.SetDefault("SMS_SENDER_ID", "")

	v.SetDefault("NOTIFICATION_WORKERS", 2)
	v.SetDefault("NOTIFICATION_BUFFER_SIZE", 64)
	v.SetDefault("NOTIFICATION_MAX_RETRIES", 0)

	v.SetDefault("APPROVAL_LOCK_TTL", "30s")
	v.SetDefault("APPROVAL_LOCK_PREFIX", "approval:lock")

	v.SetDefault("TRACING_EXPORTER", TracingExporterNone)
	v.SetDefault("TRACING_SERVICE_NAME", "registration-api")
	v.SetDefault("TRACING_SAMPLE_RATIO", 1.0)
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
