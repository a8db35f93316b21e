package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Configはアプリ全体の設定
type Config struct {
	Port  string // サーバーポート（8080）
	GoEnv string // dev/prod
	FEURL string // フロントURL（CORSなどで使う）
	// 決済後の戻り先などに使う公開URL
	SiteURL string

	DatabaseURL      string // あればPOSTGRES_*より優先
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresHost     string
	PostgresPort     int
	PostgresSSLMode  string

	JWTSecret string

	Logger   LoggerConfig
	Redis    RedisConfig
	Stripe   StripeConfig
	Shipping ShippingConfig
	Mail     MailConfig
	Kafka    KafkaConfig

	// カート追加の1分あたり上限（IPごと）
	AddToCartRatePerMin int
}

type LoggerConfig struct {
	Level             string
	Encoding          string
	DisableCaller     bool
	DisableStacktrace bool
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// 最終アクセスからの保持時間
	CartTTLHours int
}

type StripeConfig struct {
	SecretKey        string
	WebhookSecret    string
	Currency         string
	AllowedCountries []string
}

type ShippingConfig struct {
	Standard decimal.Decimal
	Elevated decimal.Decimal
}

type MailConfig struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	From         string
	AdminEmail   string
}

type KafkaConfig struct {
	// 空ならイベントは送らない
	Brokers []string
	Topic   string
}

func (c Config) IsProd() bool {
	return c.GoEnv == "prod"
}

// Loadは環境変数
func Load() (Config, error) {
	cfg := Config{
		Port:    os.Getenv("PORT"),
		GoEnv:   os.Getenv("GO_ENV"),
		FEURL:   os.Getenv("FE_URL"),
		SiteURL: getEnv("SITE_URL", "http://localhost:8080"),

		JWTSecret: os.Getenv("JWT_SECRET"),

		Logger: LoggerConfig{
			Level:             getEnv("LOGGER_LEVEL", "info"),
			Encoding:          getEnv("LOGGER_ENCODING", "json"),
			DisableCaller:     getEnvBool("LOGGER_DISABLE_CALLER", false),
			DisableStacktrace: getEnvBool("LOGGER_DISABLE_STACKTRACE", true),
		},
		Redis: RedisConfig{
			Addr:         getEnv("REDIS_ADDR", "localhost:6379"),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getEnvInt("REDIS_DB", 0),
			CartTTLHours: getEnvInt("CART_TTL_HOURS", 168),
		},
		Stripe: StripeConfig{
			SecretKey:        os.Getenv("STRIPE_SECRET_KEY"),
			WebhookSecret:    os.Getenv("STRIPE_WEBHOOK_SECRET"),
			Currency:         strings.ToLower(getEnv("STRIPE_CURRENCY", "gbp")),
			AllowedCountries: getEnvSlice("STRIPE_ALLOWED_COUNTRIES", []string{"GB"}),
		},
		Mail: MailConfig{
			SMTPHost:     getEnv("SMTP_HOST", "localhost"),
			SMTPPort:     getEnvInt("SMTP_PORT", 587),
			SMTPUsername: getEnv("SMTP_USERNAME", ""),
			SMTPPassword: getEnv("SMTP_PASSWORD", ""),
			From:         getEnv("MAIL_FROM", "orders@somersetshrimpshack.uk"),
			AdminEmail:   getEnv("ADMIN_EMAIL", "admin@somersetshrimpshack.uk"),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvSlice("KAFKA_BROKERS", nil),
			Topic:   getEnv("KAFKA_TOPIC_ORDERS", "orders.events"),
		},
		AddToCartRatePerMin: getEnvInt("ADD_TO_CART_RATE_PER_MIN", 10),
	}

	var err error
	if cfg.Shipping.Standard, err = getEnvDecimal("SHIPPING_STANDARD", "6.00"); err != nil {
		return Config{}, err
	}
	if cfg.Shipping.Elevated, err = getEnvDecimal("SHIPPING_ELEVATED", "12.00"); err != nil {
		return Config{}, err
	}

	//必須チェック
	if cfg.Port == "" {
		return Config{}, fmt.Errorf("PORT is required")
	}
	if cfg.GoEnv == "" {
		return Config{}, fmt.Errorf("GO_ENV is required")
	}
	if cfg.FEURL == "" {
		return Config{}, fmt.Errorf("FE_URL is required")
	}
	if err := cfg.loadDatabase(); err != nil {
		return Config{}, err
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.Stripe.SecretKey == "" {
		return Config{}, fmt.Errorf("STRIPE_SECRET_KEY is required")
	}
	// 署名を検証できないWebhookは受け付けない
	if cfg.Stripe.WebhookSecret == "" {
		return Config{}, fmt.Errorf("STRIPE_WEBHOOK_SECRET is required")
	}
	if cfg.Redis.CartTTLHours <= 0 {
		return Config{}, fmt.Errorf("CART_TTL_HOURS must be positive")
	}
	if cfg.Shipping.Standard.IsNegative() || cfg.Shipping.Elevated.LessThan(cfg.Shipping.Standard) {
		return Config{}, fmt.Errorf("SHIPPING_ELEVATED must be >= SHIPPING_STANDARD >= 0")
	}

	return cfg, nil
}

// LoadDatabaseはDB接続に必要な項目だけ読む（seedなど）
func LoadDatabase() (Config, error) {
	var cfg Config
	if err := cfg.loadDatabase(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg *Config) loadDatabase() error {
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.PostgresUser = os.Getenv("POSTGRES_USER")
	cfg.PostgresPassword = os.Getenv("POSTGRES_PASSWORD")
	cfg.PostgresDB = os.Getenv("POSTGRES_DB")
	cfg.PostgresHost = os.Getenv("POSTGRES_HOST")
	cfg.PostgresSSLMode = getEnv("POSTGRES_SSLMODE", "disable")

	if cfg.DatabaseURL != "" {
		return nil
	}
	pgPort, err := mustAtoi("POSTGRES_PORT")
	if err != nil {
		return err
	}
	cfg.PostgresPort = pgPort
	if cfg.PostgresUser == "" {
		return fmt.Errorf("POSTGRES_USER is required")
	}
	if cfg.PostgresPassword == "" {
		return fmt.Errorf("POSTGRES_PASSWORD is required")
	}
	if cfg.PostgresDB == "" {
		return fmt.Errorf("POSTGRES_DB is required")
	}
	if cfg.PostgresHost == "" {
		return fmt.Errorf("POSTGRES_HOST is required")
	}
	return nil
}

func mustAtoi(key string) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be number: %w", key, err)
	}
	return i, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvSlice(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(value) == "" {
		return fallback
	}
	var out []string
	for _, v := range strings.Split(value, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getEnvDecimal(key, fallback string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(getEnv(key, fallback))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s must be a decimal: %w", key, err)
	}
	return d, nil
}
