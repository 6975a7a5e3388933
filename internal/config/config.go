package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const (
	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"
)

type AppConfig struct {
	Name     string `yaml:"name"`
	Port     string `yaml:"port"`
	Env      string `yaml:"env"`
	LogLevel string `yaml:"log_level"`
}

type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	DBName          string        `yaml:"dbname"`
	SSLMode         string        `yaml:"sslmode"`
	MaxConns        int32         `yaml:"max_conns"`
	MinConns        int32         `yaml:"min_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MigrationsPath  string        `yaml:"migrations_path"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type SessionConfig struct {
	CookieName string        `yaml:"cookie_name"`
	TTL        time.Duration `yaml:"ttl"`
	Secure     bool          `yaml:"secure"`
}

// PricingConfig holds decimal strings; both default to zero.
type PricingConfig struct {
	TaxRate     string `yaml:"tax_rate"`
	ShippingFee string `yaml:"shipping_fee"`
}

type CheckoutConfig struct {
	StockPolicy         string        `yaml:"stock_policy"`
	OrderNumberAttempts int           `yaml:"order_number_attempts"`
	ResubmitWindow      time.Duration `yaml:"resubmit_window"`
}

// SeedProduct is loaded into the catalog when the memory driver is used.
type SeedProduct struct {
	Name          string `yaml:"name"`
	Slug          string `yaml:"slug"`
	SKU           string `yaml:"sku"`
	Category      string `yaml:"category"`
	Price         string `yaml:"price"`
	StockQuantity int    `yaml:"stock_quantity"`
}

type Config struct {
	App      AppConfig      `yaml:"app"`
	Storage  string         `yaml:"storage"`
	Postgres PostgresConfig `yaml:"postgres"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Session  SessionConfig  `yaml:"session"`
	Pricing  PricingConfig  `yaml:"pricing"`
	Checkout CheckoutConfig `yaml:"checkout"`
	Seed     []SeedProduct  `yaml:"seed"`
}

func defaults() *Config {
	return &Config{
		App: AppConfig{
			Name:     "marketplace-service",
			Port:     "8080",
			Env:      "development",
			LogLevel: "debug",
		},
		Storage: StorageDriverPostgres,
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            "5432",
			SSLMode:         "disable",
			MaxConns:        10,
			MinConns:        2,
			MaxConnLifetime: 30 * time.Minute,
			MigrationsPath:  "migrations",
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Kafka: KafkaConfig{
			Topic: "marketplace.orders",
		},
		Session: SessionConfig{
			CookieName: "agrifarma_session",
			TTL:        7 * 24 * time.Hour,
		},
		Pricing: PricingConfig{
			TaxRate:     "0",
			ShippingFee: "0",
		},
		Checkout: CheckoutConfig{
			StockPolicy:         "strict",
			OrderNumberAttempts: 5,
			ResubmitWindow:      2 * time.Minute,
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file at
// configPath and the environment. Variables from envPath (a .env file) are
// loaded first and never override variables already set in the process.
func Load(configPath, envPath string) (*Config, error) {
	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load .env: %w", err)
		}
	}

	cfg := defaults()

	if configPath != "" {
		file, err := os.Open(configPath)
		switch {
		case err == nil:
			defer file.Close()
			if err := yaml.NewDecoder(file).Decode(cfg); err != nil {
				return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
			}
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, fmt.Errorf("failed to open config file %s: %w", configPath, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.App.Port, "APP_PORT")
	setString(&cfg.App.Env, "APP_ENV")
	setString(&cfg.App.LogLevel, "LOG_LEVEL")
	setString(&cfg.Storage, "STORAGE_DRIVER")

	setString(&cfg.Postgres.Host, "DB_HOST")
	setString(&cfg.Postgres.Port, "DB_PORT")
	setString(&cfg.Postgres.User, "DB_USER")
	setString(&cfg.Postgres.Password, "DB_PASSWORD")
	setString(&cfg.Postgres.DBName, "DB_NAME")
	setString(&cfg.Postgres.SSLMode, "DB_SSLMODE")
	setString(&cfg.Postgres.MigrationsPath, "DB_MIGRATIONS_PATH")

	setString(&cfg.Redis.Addr, "REDIS_ADDR")
	setString(&cfg.Redis.Password, "REDIS_PASSWORD")
	if err := setInt(&cfg.Redis.DB, "REDIS_DB"); err != nil {
		return err
	}

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = splitCSV(v)
		cfg.Kafka.Enabled = len(cfg.Kafka.Brokers) > 0
	}
	setString(&cfg.Kafka.Topic, "KAFKA_TOPIC")

	if v := os.Getenv("SESSION_TTL"); v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid SESSION_TTL %q: %w", v, err)
		}
		cfg.Session.TTL = ttl
	}
	if v := os.Getenv("SESSION_SECURE"); v != "" {
		secure, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid SESSION_SECURE %q: %w", v, err)
		}
		cfg.Session.Secure = secure
	}

	setString(&cfg.Pricing.TaxRate, "PRICING_TAX_RATE")
	setString(&cfg.Pricing.ShippingFee, "PRICING_SHIPPING_FEE")
	setString(&cfg.Checkout.StockPolicy, "CHECKOUT_STOCK_POLICY")

	return nil
}

func (c *Config) Validate() error {
	switch c.Storage {
	case StorageDriverPostgres:
		if c.Postgres.User == "" {
			return errors.New("DB_USER is required")
		}
		if c.Postgres.DBName == "" {
			return errors.New("DB_NAME is required")
		}
	case StorageDriverMemory:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage)
	}

	switch c.Checkout.StockPolicy {
	case "strict", "lenient":
	default:
		return fmt.Errorf("unknown checkout stock policy %q", c.Checkout.StockPolicy)
	}

	for name, v := range map[string]string{"tax_rate": c.Pricing.TaxRate, "shipping_fee": c.Pricing.ShippingFee} {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return fmt.Errorf("invalid pricing %s %q: %w", name, v, err)
		}
		if d.IsNegative() {
			return fmt.Errorf("pricing %s must not be negative", name)
		}
	}

	for i, p := range c.Seed {
		if _, err := decimal.NewFromString(p.Price); err != nil {
			return fmt.Errorf("invalid price %q for seed product %d: %w", p.Price, i, err)
		}
	}

	if c.Checkout.OrderNumberAttempts < 1 {
		return errors.New("checkout order_number_attempts must be at least 1")
	}
	if c.Checkout.ResubmitWindow < 0 {
		return errors.New("checkout resubmit_window must not be negative")
	}

	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return errors.New("kafka is enabled but no brokers are configured")
	}

	return nil
}

// ConnString returns the pgx keyword/value connection string.
func (p PostgresConfig) ConnString() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.DBName, p.SSLMode)
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	*dst = n
	return nil
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
