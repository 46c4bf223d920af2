package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config holds the complete application configuration, loadable from
// environment variables (EKOE_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (EKOE_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	APIKeyPepper string `usage:"HMAC pepper for API key hashing (EKOE_API_KEY_PEPPER)" flag:"api-key-pepper"`
	Redis        RedisConfig
	Pricing      PricingConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// RedisConfig controls the optional promotion cache. An empty Addr disables
// caching entirely.
type RedisConfig struct {
	Addr     string        `default:"" usage:"Redis address for the promotion cache (empty disables caching)" flag:"redis-addr"`
	Password string        `default:"" usage:"Redis password" flag:"redis-password"`
	DB       int           `default:"0" usage:"Redis database index" flag:"redis-db"`
	TTL      time.Duration `default:"30s" usage:"Active promotion cache TTL" flag:"redis-ttl"`
}

// PricingConfig controls the non-promotional parts of the cart total: tax
// and flat shipping rates in minor currency units (satang).
type PricingConfig struct {
	TaxBasisPoints   int   `default:"700"   usage:"Tax rate in basis points applied to the discounted subtotal" flag:"tax-bps"`
	ShippingStandard int64 `default:"5000"  usage:"Standard shipping rate in minor units" flag:"shipping-standard"`
	ShippingExpress  int64 `default:"12000" usage:"Express shipping rate in minor units" flag:"shipping-express"`
	ShippingPickup   int64 `default:"0"     usage:"Pickup shipping rate in minor units" flag:"shipping-pickup"`
}

// RateLimitConfig sizes the per-client sliding window limiter in front of
// the evaluation endpoints.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig lists the storefront origins allowed to call the API from a
// browser.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig times the shutdown sequence: readiness goes false, the load
// balancer drains for ReadinessDelay, then in-flight requests get
// ShutdownTimeout to finish.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config
// files, and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "EKOE",
		Files:     []string{"config.yaml", "/etc/ekoe/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set EKOE_DATABASE_URL or DATABASE_URL")
	}

	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables
// (Railway, Render, etc.) that use standard names like DATABASE_URL and PORT
// to the application's EKOE_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if v := os.Getenv("DATABASE_URL"); c.DatabaseURL == "" && v != "" {
		c.DatabaseURL = v
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
