package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config holds the complete application configuration, loadable from
// environment variables (CHECKOUT_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (CHECKOUT_DATABASE_URL or DATABASE_URL)" flag:"database-url"`

	// Currency and MerchantIdentity are deployment constants bound into every
	// order digest. Changing MerchantIdentity invalidates reconciliation of
	// orders quoted before the change.
	Currency         string `default:"usd" usage:"ISO currency code for all orders"`
	MerchantIdentity string `usage:"Merchant identity string bound into order digests" flag:"merchant-identity"`

	ImageBaseURL string `default:"" usage:"Base URL for product images" flag:"image-base-url"`

	Stripe    StripeConfig
	Checkout  CheckoutConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
	Graceful  GracefulConfig
}

// StripeConfig holds the payment provider credentials.
type StripeConfig struct {
	SecretKey     string `usage:"Stripe API secret key (CHECKOUT_STRIPE_SECRET_KEY)" flag:"stripe-secret-key"`
	WebhookSecret string `usage:"Stripe webhook signing secret (CHECKOUT_STRIPE_WEBHOOK_SECRET)" flag:"stripe-webhook-secret"`
}

// CheckoutConfig holds the redirect URLs for provider checkout sessions.
type CheckoutConfig struct {
	SuccessURL string `usage:"Redirect URL after successful payment" flag:"success-url"`
	CancelURL  string `usage:"Redirect URL after cancelled payment" flag:"cancel-url"`
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

// LoadConfig loads configuration from environment variables, YAML config
// files, and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "CHECKOUT",
		Files:     []string{"config.yaml", "/etc/checkout/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	switch {
	case cfg.DatabaseURL == "":
		return nil, errors.New("database URL is required: set CHECKOUT_DATABASE_URL or DATABASE_URL")
	case cfg.MerchantIdentity == "":
		return nil, errors.New("merchant identity is required: set CHECKOUT_MERCHANT_IDENTITY")
	case cfg.Stripe.SecretKey == "":
		return nil, errors.New("Stripe secret key is required: set CHECKOUT_STRIPE_SECRET_KEY")
	case cfg.Stripe.WebhookSecret == "":
		return nil, errors.New("Stripe webhook secret is required: set CHECKOUT_STRIPE_WEBHOOK_SECRET")
	case cfg.Checkout.SuccessURL == "" || cfg.Checkout.CancelURL == "":
		return nil, errors.New("checkout redirect URLs are required: set CHECKOUT_CHECKOUT_SUCCESS_URL and CHECKOUT_CHECKOUT_CANCEL_URL")
	}

	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables
// (Railway, Render, etc.) that use standard names like DATABASE_URL and PORT
// to the application's CHECKOUT_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
