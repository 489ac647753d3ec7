package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-promotions/internal/domain/discount"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (PROMO_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (PROMO_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	RedisURL     string `usage:"Redis URL for the rule cache; empty disables caching (PROMO_REDIS_URL or REDIS_URL)" flag:"redis-url"`
	APIKeyPepper string `usage:"HMAC pepper for API key hashing (PROMO_API_KEY_PEPPER)" flag:"api-key-pepper"`
	// ShippingAmount is charged when a cart request does not state one.
	ShippingAmount string `default:"0" usage:"Default shipping charge" flag:"shipping-amount"`
	RuleCache      RuleCacheConfig
	Engine         EngineConfig
	RateLimit      RateLimitConfig
	CORS           CORSConfig
	Graceful       GracefulConfig
}

// RuleCacheConfig controls caching of automatic rules in Redis.
type RuleCacheConfig struct {
	TTL time.Duration `default:"30s" usage:"Lifetime of a cached rule list; 0 disables caching"`
}

// EngineConfig tunes the discount engine.
type EngineConfig struct {
	MinQuantityBasis string `default:"matching" usage:"Units counted for minimum quantity: matching or all"`
	MaxGiftUnits     int    `default:"0" usage:"Cap on gift units per cart, 0 is unlimited"`
}

// RateLimitConfig controls the per-client rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from flags, environment variables and YAML
// config files, then applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	return loadConfig(aconfig.Config{
		EnvPrefix: "PROMO",
		Files:     []string{"config.yaml", "/etc/promo/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
}

func loadConfig(ac aconfig.Config) (*Config, error) {
	var cfg Config
	if err := aconfig.LoaderFor(&cfg, ac).Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables that
// use standard names like DATABASE_URL and PORT.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if c.RedisURL == "" {
		c.RedisURL = os.Getenv("REDIS_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database URL is required: set PROMO_DATABASE_URL or DATABASE_URL")
	}
	if !discount.MinQuantityBasis(c.Engine.MinQuantityBasis).Valid() {
		return errors.Errorf("engine.min_quantity_basis: unknown basis %q", c.Engine.MinQuantityBasis)
	}
	if c.Engine.MaxGiftUnits < 0 {
		return errors.New("engine.max_gift_units must not be negative")
	}
	shipping, err := decimal.NewFromString(c.ShippingAmount)
	if err != nil {
		return errors.Wrap(err, "shipping amount")
	}
	if shipping.IsNegative() {
		return errors.New("shipping amount must not be negative")
	}
	return nil
}

// DefaultShipping returns the parsed default shipping charge.
func (c *Config) DefaultShipping() decimal.Decimal {
	d, _ := decimal.NewFromString(c.ShippingAmount)
	return d
}

// EngineConfig returns the discount engine settings.
func (c *Config) EngineConfig() discount.Config {
	return discount.Config{
		MinQuantityBasis: discount.MinQuantityBasis(c.Engine.MinQuantityBasis),
		MaxGiftUnits:     c.Engine.MaxGiftUnits,
	}
}
