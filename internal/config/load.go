package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// ConfigErrorType categorizes configuration loading failures.
type ConfigErrorType string

const (
	// ErrParsing indicates environment values could not be parsed into their
	// target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
	// ErrFile indicates the YAML or dotenv file could not be read or parsed.
	ErrFile ConfigErrorType = "FILE_FAILED"
	// ErrOverride indicates an invalid command-line override.
	ErrOverride ConfigErrorType = "OVERRIDE_FAILED"
	// ErrValidation indicates the merged configuration failed validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
)

// ConfigError is returned by Load and wraps the underlying cause.
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// yamlConfig represents the YAML configuration file structure. Pointer fields
// distinguish "absent" from the zero value so only keys present in the file
// override lower-precedence sources.
type yamlConfig struct {
	Port                 *string       `yaml:"port"`
	LogLevel             *string       `yaml:"log_level"`
	ShutdownGracePeriod  string        `yaml:"shutdown_grace_period"`
	ReadHeaderTimeout    string        `yaml:"read_header_timeout"`
	WriteTimeout         string        `yaml:"write_timeout"`
	IdleTimeout          string        `yaml:"idle_timeout"`
	EnableRequestLogging *bool         `yaml:"enable_request_logging"`
	RateLimit            yamlRateLimit `yaml:"rate_limit"`
	Billing              yamlBilling   `yaml:"billing"`
}

// yamlRateLimit represents the rate limit section in YAML.
type yamlRateLimit struct {
	RPS   *float64 `yaml:"rps"`
	Burst *int     `yaml:"burst"`
}

// yamlBilling represents the billing section in YAML.
type yamlBilling struct {
	SubscriberModel                  *string          `yaml:"subscriber_model"`
	SubscriberModelRequestCallback   *string          `yaml:"subscriber_model_request_callback"`
	StripePublicKey                  *string          `yaml:"stripe_public_key"`
	StripeSecretKey                  *string          `yaml:"stripe_secret_key"`
	InvoiceFromEmail                 *string          `yaml:"invoice_from_email"`
	Plans                            *PlanDefinitions `yaml:"plans"`
	PasswordInputRenderValue         *bool            `yaml:"password_input_render_value"`
	PasswordMinLength                *int             `yaml:"password_min_length"`
	ProrationPolicy                  *bool            `yaml:"proration_policy"`
	ProrationPolicyForUpgrades       *bool            `yaml:"proration_policy_for_upgrades"`
	SendInvoiceReceiptEmails         *bool            `yaml:"send_invoice_receipt_emails"`
	Currencies                       Currencies       `yaml:"currencies"`
	DefaultPlan                      *string          `yaml:"default_plan"`
	TrialPeriodForSubscriberCallback *string          `yaml:"trial_period_for_subscriber_callback"`
	TrialPeriodForUserCallback       *string          `yaml:"trial_period_for_user_callback"`
	WebhookURL                       *string          `yaml:"webhook_url"`
}

// CLIOverrides holds command-line flag overrides.
type CLIOverrides struct {
	ConfigFile     string
	EnvFile        string
	Port           *string
	LogLevel       *string
	RateLimitRPS   *float64
	RateLimitBurst *int
}

// Load extracts configuration from multiple sources with precedence:
// CLI flags > YAML config > Environment variables > Defaults
func Load(overrides *CLIOverrides) (Config, error) {
	// Load .env before reading the environment. godotenv never overrides
	// variables that are already set.
	if overrides != nil && overrides.EnvFile != "" {
		if err := godotenv.Load(overrides.EnvFile); err != nil {
			return Config{}, &ConfigError{Type: ErrFile, Message: "load env file", Err: err}
		}
	} else {
		_ = godotenv.Load()
	}

	// Defaults and environment variables
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, &ConfigError{Type: ErrParsing, Message: "process environment configuration", Err: err}
	}

	// Load from YAML file if specified (overrides env)
	if overrides != nil && overrides.ConfigFile != "" {
		yamlCfg, err := loadFromFile(overrides.ConfigFile)
		if err != nil {
			return Config{}, &ConfigError{Type: ErrFile, Message: "load YAML config", Err: err}
		}
		if err := applyYAMLConfig(&cfg, yamlCfg); err != nil {
			return Config{}, &ConfigError{Type: ErrFile, Message: "apply YAML config", Err: err}
		}
	}

	// Apply CLI overrides (highest precedence)
	if overrides != nil {
		if err := applyCLIOverrides(&cfg, overrides); err != nil {
			return Config{}, &ConfigError{Type: ErrOverride, Message: "apply CLI overrides", Err: err}
		}
	}

	// Validate final configuration
	if err := validateConfig(cfg); err != nil {
		return Config{}, &ConfigError{Type: ErrValidation, Message: "configuration validation failed", Err: err}
	}

	return cfg, nil
}

// loadFromFile loads configuration from a YAML file.
func loadFromFile(path string) (*yamlConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var yamlCfg yamlConfig
	if err := yaml.Unmarshal(data, &yamlCfg); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}

	return &yamlCfg, nil
}

// applyYAMLConfig applies YAML configuration to the Config struct.
func applyYAMLConfig(cfg *Config, yamlCfg *yamlConfig) error {
	if yamlCfg.Port != nil && *yamlCfg.Port != "" {
		cfg.Port = *yamlCfg.Port
	}
	if yamlCfg.LogLevel != nil && *yamlCfg.LogLevel != "" {
		cfg.LogLevel = strings.ToLower(*yamlCfg.LogLevel)
	}

	durations := []struct {
		name  string
		raw   string
		value *time.Duration
	}{
		{"shutdown_grace_period", yamlCfg.ShutdownGracePeriod, &cfg.ShutdownGracePeriod},
		{"read_header_timeout", yamlCfg.ReadHeaderTimeout, &cfg.ReadHeaderTimeout},
		{"write_timeout", yamlCfg.WriteTimeout, &cfg.WriteTimeout},
		{"idle_timeout", yamlCfg.IdleTimeout, &cfg.IdleTimeout},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("%s: %w", d.name, err)
		}
		*d.value = parsed
	}

	if yamlCfg.EnableRequestLogging != nil {
		cfg.EnableRequestLogging = *yamlCfg.EnableRequestLogging
	}
	if yamlCfg.RateLimit.RPS != nil && *yamlCfg.RateLimit.RPS >= 0 {
		cfg.RateLimitRPS = *yamlCfg.RateLimit.RPS
	}
	if yamlCfg.RateLimit.Burst != nil && *yamlCfg.RateLimit.Burst >= 0 {
		cfg.RateLimitBurst = *yamlCfg.RateLimit.Burst
	}

	applyYAMLBilling(&cfg.Billing, &yamlCfg.Billing)
	return nil
}

func applyYAMLBilling(b *BillingConfig, y *yamlBilling) {
	setString(&b.SubscriberModel, y.SubscriberModel)
	setString(&b.SubscriberModelRequestCallback, y.SubscriberModelRequestCallback)
	setString(&b.StripePublicKey, y.StripePublicKey)
	if y.StripeSecretKey != nil {
		b.StripeSecretKey = SecretString(*y.StripeSecretKey)
	}
	setString(&b.InvoiceFromEmail, y.InvoiceFromEmail)
	if y.Plans != nil {
		b.Plans = *y.Plans
	}
	setBool(&b.PasswordInputRenderValue, y.PasswordInputRenderValue)
	if y.PasswordMinLength != nil {
		b.PasswordMinLength = *y.PasswordMinLength
	}
	setBool(&b.ProrationPolicy, y.ProrationPolicy)
	setBool(&b.ProrationPolicyForUpgrades, y.ProrationPolicyForUpgrades)
	setBool(&b.SendInvoiceReceiptEmails, y.SendInvoiceReceiptEmails)
	if len(y.Currencies) > 0 {
		b.Currencies = y.Currencies
	}
	setString(&b.DefaultPlan, y.DefaultPlan)
	setString(&b.TrialPeriodForSubscriberCallback, y.TrialPeriodForSubscriberCallback)
	setString(&b.TrialPeriodForUserCallback, y.TrialPeriodForUserCallback)
	setString(&b.WebhookURL, y.WebhookURL)
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}

// applyCLIOverrides applies command-line flag overrides.
func applyCLIOverrides(cfg *Config, overrides *CLIOverrides) error {
	if overrides.Port != nil && *overrides.Port != "" {
		cfg.Port = *overrides.Port
	}

	if overrides.LogLevel != nil && *overrides.LogLevel != "" {
		cfg.LogLevel = strings.ToLower(*overrides.LogLevel)
	}

	if overrides.RateLimitRPS != nil {
		if *overrides.RateLimitRPS < 0 {
			return fmt.Errorf("rate limit rps must be >= 0, got %v", *overrides.RateLimitRPS)
		}
		cfg.RateLimitRPS = *overrides.RateLimitRPS
	}

	if overrides.RateLimitBurst != nil {
		if *overrides.RateLimitBurst < 0 {
			return fmt.Errorf("rate limit burst must be >= 0, got %d", *overrides.RateLimitBurst)
		}
		cfg.RateLimitBurst = *overrides.RateLimitBurst
	}

	return nil
}

var validate = validator.New()

// validateConfig validates the final configuration.
func validateConfig(cfg Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%s: %w", strings.Join(msgs, "; "), err)
		}
		return err
	}
	return nil
}
