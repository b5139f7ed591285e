package config

import (
	"time"
)

const (
	defaultPort             = "8080"
	defaultRateLimitRPS     = 25.0
	defaultRateLimitBurst   = 50
	defaultInvoiceFromEmail = "billing@example.com"
	defaultWebhookURL       = `^webhook/$`
	defaultPasswordMinLen   = 6
)

// Config aggregates runtime configuration resolved from multiple sources.
// Precedence: CLI flags > YAML config > Environment variables > Defaults
type Config struct {
	Port                 string        `envconfig:"PORT" default:"8080" validate:"required"`
	LogLevel             string        `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	ShutdownGracePeriod  time.Duration `envconfig:"SHUTDOWN_GRACE_PERIOD" default:"10s"`
	ReadHeaderTimeout    time.Duration `envconfig:"READ_HEADER_TIMEOUT" default:"5s"`
	WriteTimeout         time.Duration `envconfig:"WRITE_TIMEOUT" default:"15s"`
	IdleTimeout          time.Duration `envconfig:"IDLE_TIMEOUT" default:"60s"`
	EnableRequestLogging bool          `envconfig:"ENABLE_REQUEST_LOGGING" default:"true"`
	RateLimitRPS         float64       `envconfig:"RATE_LIMIT_RPS" default:"25" validate:"gte=0"`
	RateLimitBurst       int           `envconfig:"RATE_LIMIT_BURST" default:"50" validate:"gte=0"`

	Billing BillingConfig
}

// BillingConfig enumerates every recognised billing setting.
//
// Environment keys are read as BILLING_<NAME>, falling back to the bare
// <NAME> (for example BILLING_STRIPE_PUBLIC_KEY, then STRIPE_PUBLIC_KEY).
// Callback settings hold dotted paths into the host registry.
type BillingConfig struct {
	SubscriberModel                string `envconfig:"SUBSCRIBER_MODEL"`
	SubscriberModelRequestCallback string `envconfig:"SUBSCRIBER_MODEL_REQUEST_CALLBACK"`

	StripePublicKey string       `envconfig:"STRIPE_PUBLIC_KEY" validate:"required"`
	StripeSecretKey SecretString `envconfig:"STRIPE_SECRET_KEY"`

	InvoiceFromEmail string          `envconfig:"INVOICE_FROM_EMAIL" default:"billing@example.com" validate:"required,email"`
	Plans            PlanDefinitions `envconfig:"PLANS"`

	PasswordInputRenderValue bool `envconfig:"PASSWORD_INPUT_RENDER_VALUE" default:"false"`
	PasswordMinLength        int  `envconfig:"PASSWORD_MIN_LENGTH" default:"6" validate:"min=1"`

	ProrationPolicy            bool `envconfig:"PRORATION_POLICY" default:"false"`
	ProrationPolicyForUpgrades bool `envconfig:"PRORATION_POLICY_FOR_UPGRADES" default:"false"`
	SendInvoiceReceiptEmails   bool `envconfig:"SEND_INVOICE_RECEIPT_EMAILS" default:"true"`

	Currencies  Currencies `envconfig:"CURRENCIES" default:"usd:U.S. Dollars,gbp:Pounds (GBP),eur:Euros" validate:"min=1,dive"`
	DefaultPlan string     `envconfig:"DEFAULT_PLAN"`

	TrialPeriodForSubscriberCallback string `envconfig:"TRIAL_PERIOD_FOR_SUBSCRIBER_CALLBACK"`
	// Deprecated: use TrialPeriodForSubscriberCallback.
	TrialPeriodForUserCallback string `envconfig:"TRIAL_PERIOD_FOR_USER_CALLBACK"`

	WebhookURL string `envconfig:"WEBHOOK_URL" default:"^webhook/$" validate:"required"`
}

// DefaultCurrencies returns a copy of the built-in currency choices.
func DefaultCurrencies() Currencies {
	return Currencies{
		{Code: "usd", Label: "U.S. Dollars"},
		{Code: "gbp", Label: "Pounds (GBP)"},
		{Code: "eur", Label: "Euros"},
	}
}

// defaultConfig returns a Config with default values. It must agree with the
// envconfig default tags above.
func defaultConfig() Config {
	return Config{
		Port:                 defaultPort,
		LogLevel:             "info",
		ShutdownGracePeriod:  10 * time.Second,
		ReadHeaderTimeout:    5 * time.Second,
		WriteTimeout:         15 * time.Second,
		IdleTimeout:          60 * time.Second,
		EnableRequestLogging: true,
		RateLimitRPS:         defaultRateLimitRPS,
		RateLimitBurst:       defaultRateLimitBurst,
		Billing: BillingConfig{
			InvoiceFromEmail:         defaultInvoiceFromEmail,
			PasswordMinLength:        defaultPasswordMinLen,
			SendInvoiceReceiptEmails: true,
			Currencies:               DefaultCurrencies(),
			WebhookURL:               defaultWebhookURL,
		},
	}
}

// Default returns the default configuration. StripePublicKey is left empty and
// must be supplied before the result passes validation.
func Default() Config {
	return defaultConfig()
}
