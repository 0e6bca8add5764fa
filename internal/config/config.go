package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Auth     AuthConfig
	Stripe   StripeConfig
	PayPal   PayPalConfig
	NETS     NETSConfig
	Otel     OtelConfig
	Policy   PolicyConfig
}

type ServerConfig struct {
	Port      string
	PublicURL string
	// Timezone decides what "today" means for slots and revenue days.
	Timezone       string
	AllowedOrigins []string
	ReadTimeout    time.Duration
	IdleTimeout    time.Duration
}

type DatabaseConfig struct {
	Host         string
	Port         string
	Username     string
	Password     string
	Database     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
	AutoMigrate  bool
	Migrations   string
}

// DSN returns a lib/pq connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		d.Username, d.Password, d.Host, d.Port, d.Database, d.SSLMode)
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	CartTTL  time.Duration
}

type KafkaConfig struct {
	Brokers []string
	GroupID string
	Enabled bool
	Topics  TopicConfig
}

type TopicConfig struct {
	BookingCreated string
	BookingSettled string
	RefundApproved string
	PayoutUpdated  string
	AmlAlerts      string
}

// All lists every topic so they can be created at startup.
func (t TopicConfig) All() []string {
	return []string{t.BookingCreated, t.BookingSettled, t.RefundApproved, t.PayoutUpdated, t.AmlAlerts}
}

type AuthConfig struct {
	OIDCIssuer   string
	OIDCClientID string
	JWTSecret    string
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	Currency      string
}

type PayPalConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	Currency     string
}

type NETSConfig struct {
	BaseURL   string
	APIKey    string
	ProjectID string
}

type OtelConfig struct {
	Endpoint    string
	ServiceName string
}

// PolicyConfig holds money limits. Amounts are in major currency units.
type PolicyConfig struct {
	NewAccountDays         int     `envconfig:"AML_NEW_ACCOUNT_DAYS" default:"30"`
	NewAccountPayoutCap    float64 `envconfig:"AML_NEW_ACCOUNT_PAYOUT_CAP" default:"500"`
	NewAccountTopUpCap     float64 `envconfig:"AML_NEW_ACCOUNT_TOPUP_CAP" default:"300"`
	NewAccountTopUpMonthly float64 `envconfig:"AML_NEW_ACCOUNT_TOPUP_MONTHLY_CAP" default:"1000"`
	TopUpWeeklyCap         float64 `envconfig:"AML_TOPUP_WEEKLY_CAP" default:"2000"`
	HighValueThreshold     float64 `envconfig:"AML_HIGH_VALUE_THRESHOLD" default:"1000"`
	HighValueCooldown      int     `envconfig:"AML_HIGH_VALUE_COOLDOWN_SECONDS" default:"60"`
	SharedCooldown         bool    `envconfig:"AML_SHARED_COOLDOWN" default:"false"`
	PaymentStateTTLMinutes int     `envconfig:"PAYMENT_STATE_TTL_MINUTES" default:"30"`
}

func Load() (*Config, error) {
	var policy PolicyConfig
	if err := envconfig.Process("", &policy); err != nil {
		return nil, fmt.Errorf("load policy config: %w", err)
	}

	return &Config{
		Server: ServerConfig{
			Port:           getEnv("PORT", ":8080"),
			PublicURL:      getEnv("PUBLIC_URL", "http://localhost:8080"),
			Timezone:       getEnv("APP_TIMEZONE", "Asia/Singapore"),
			AllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000")),
			ReadTimeout:    15 * time.Second,
			IdleTimeout:    60 * time.Second,
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			Username:     getEnv("DB_USERNAME", "coaching"),
			Password:     getEnv("DB_PASSWORD", "coaching"),
			Database:     getEnv("DB_NAME", "coaching"),
			SSLMode:      getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  time.Duration(getEnvInt("DB_MAX_LIFETIME_MINUTES", 5)) * time.Minute,
			AutoMigrate:  getEnvBool("DB_AUTO_MIGRATE", true),
			Migrations:   getEnv("DB_MIGRATIONS_DIR", "migrations"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			CartTTL:  time.Duration(getEnvInt("CART_SESSION_TTL_MINUTES", 60)) * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers: splitList(getEnv("KAFKA_BROKERS", "localhost:9092")),
			GroupID: getEnv("KAFKA_GROUP_ID", "coaching-service"),
			Enabled: getEnvBool("KAFKA_ENABLED", false),
			Topics: TopicConfig{
				BookingCreated: getEnv("KAFKA_TOPIC_BOOKING_CREATED", "coaching.booking.created"),
				BookingSettled: getEnv("KAFKA_TOPIC_BOOKING_SETTLED", "coaching.booking.settled"),
				RefundApproved: getEnv("KAFKA_TOPIC_REFUND_APPROVED", "coaching.refund.approved"),
				PayoutUpdated:  getEnv("KAFKA_TOPIC_PAYOUT_UPDATED", "coaching.payout.updated"),
				AmlAlerts:      getEnv("KAFKA_TOPIC_AML_ALERTS", "coaching.aml.alerts"),
			},
		},
		Auth: AuthConfig{
			OIDCIssuer:   getEnv("OIDC_ISSUER", ""),
			OIDCClientID: getEnv("OIDC_CLIENT_ID", ""),
			JWTSecret:    getEnv("JWT_SECRET", ""),
		},
		Stripe: StripeConfig{
			SecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
			WebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
			Currency:      getEnv("STRIPE_CURRENCY", "sgd"),
		},
		PayPal: PayPalConfig{
			BaseURL:      getEnv("PAYPAL_BASE_URL", "https://api-m.sandbox.paypal.com"),
			ClientID:     getEnv("PAYPAL_CLIENT_ID", ""),
			ClientSecret: getEnv("PAYPAL_CLIENT_SECRET", ""),
			Currency:     getEnv("PAYPAL_CURRENCY", "SGD"),
		},
		NETS: NETSConfig{
			BaseURL:   getEnv("NETS_BASE_URL", "https://sandbox.nets.openapipaas.com"),
			APIKey:    getEnv("NETS_API_KEY", ""),
			ProjectID: getEnv("NETS_PROJECT_ID", ""),
		},
		Otel: OtelConfig{
			Endpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			ServiceName: getEnv("OTEL_SERVICE_NAME", "coaching-service"),
		},
		Policy: policy,
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
