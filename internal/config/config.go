package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Marketplace MarketplaceConfig `mapstructure:"marketplace"`
	Supplier    SupplierConfig    `mapstructure:"supplier"`
	Payments    PaymentsConfig    `mapstructure:"payments"`
	Breakers    BreakersConfig    `mapstructure:"breakers"`
	Sourcing    SourcingConfig    `mapstructure:"sourcing"`
	Alerts      AlertsConfig      `mapstructure:"alerts"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port"`
	Mode string     `mapstructure:"mode"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Path            string        `mapstructure:"path"`
	DSN             string        `mapstructure:"dsn"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

type MarketplaceConfig struct {
	BaseURL          string  `mapstructure:"base_url"`
	APIKey           string  `mapstructure:"api_key"`
	BuyerPremiumRate float64 `mapstructure:"buyer_premium_rate"`
}

type SupplierConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	Email       string        `mapstructure:"email"`
	APIKey      string        `mapstructure:"api_key"`
	TokenPath   string        `mapstructure:"token_path"`
	RequestRate float64       `mapstructure:"request_rate"`
	CallDelay   time.Duration `mapstructure:"call_delay"`
}

type PaymentsConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	SecretKey string `mapstructure:"secret_key"`
}

// BreakersConfig holds the numeric threshold for every circuit breaker. The
// margin floor is a percentage and may be negative. ShadowMode is the global
// kill-switch default applied at startup.
type BreakersConfig struct {
	DailySpendCapCents     int64   `mapstructure:"daily_spend_cap_cents"`
	DailyLotCreationCap    int64   `mapstructure:"daily_lot_creation_cap"`
	MarginFloorPct         float64 `mapstructure:"margin_floor_pct"`
	MaxConsecutiveFailures int64   `mapstructure:"max_consecutive_failures"`
	MaxOrdersPerHour       int64   `mapstructure:"max_orders_per_hour"`
	MaxRefundsPerDay       int64   `mapstructure:"max_refunds_per_day"`
	ShadowMode             bool    `mapstructure:"shadow_mode"`
}

type SourcingConfig struct {
	Auctions        int           `mapstructure:"auctions"`
	ItemsPerAuction int           `mapstructure:"items_per_auction"`
	TopCandidates   int           `mapstructure:"top_candidates"`
	KeywordBatch    int           `mapstructure:"keyword_batch"`
	PagesPerSearch  int           `mapstructure:"pages_per_search"`
	CallDelay       time.Duration `mapstructure:"call_delay"`
	BackoffAfter    int           `mapstructure:"backoff_after"`
}

type AlertsConfig struct {
	WebhookURL string `mapstructure:"webhook_url"`
	Enabled    bool   `mapstructure:"enabled"`
}

func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	// Set config file path
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Enable environment variable override
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/lotline.db")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("marketplace.base_url", "https://api.auction.example.com")
	v.SetDefault("marketplace.buyer_premium_rate", 0.10)
	v.SetDefault("supplier.base_url", "https://developers.cjdropshipping.com/api2.0/v1")
	v.SetDefault("supplier.token_path", "./data/supplier_token.json")
	v.SetDefault("supplier.request_rate", 1.0)
	v.SetDefault("supplier.call_delay", time.Second)
	v.SetDefault("payments.base_url", "https://api.stripe.com/v1")
	v.SetDefault("breakers.daily_spend_cap_cents", 50000)
	v.SetDefault("breakers.daily_lot_creation_cap", 500)
	v.SetDefault("breakers.margin_floor_pct", -10.0)
	v.SetDefault("breakers.max_consecutive_failures", 5)
	v.SetDefault("breakers.max_orders_per_hour", 20)
	v.SetDefault("breakers.max_refunds_per_day", 10)
	v.SetDefault("breakers.shadow_mode", false)
	v.SetDefault("sourcing.auctions", 3)
	v.SetDefault("sourcing.items_per_auction", 10)
	v.SetDefault("sourcing.top_candidates", 60)
	v.SetDefault("sourcing.keyword_batch", 10)
	v.SetDefault("sourcing.pages_per_search", 3)
	v.SetDefault("sourcing.call_delay", time.Second)
	v.SetDefault("sourcing.backoff_after", 3)
	v.SetDefault("alerts.enabled", false)

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables explicitly for sensitive data
	v.BindEnv("database.dsn", "DATABASE_DSN")
	v.BindEnv("marketplace.api_key", "MARKETPLACE_API_KEY")
	v.BindEnv("supplier.email", "SUPPLIER_EMAIL")
	v.BindEnv("supplier.api_key", "SUPPLIER_API_KEY")
	v.BindEnv("payments.secret_key", "STRIPE_SECRET_KEY")
	v.BindEnv("alerts.webhook_url", "ALERT_WEBHOOK_URL")
	v.BindEnv("breakers.shadow_mode", "SHADOW_MODE")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
