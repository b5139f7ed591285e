package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"go.uber.org/zap"

	"github.com/eugenenazirov/billing-settings/internal/application"
	"github.com/eugenenazirov/billing-settings/internal/config"
	"github.com/eugenenazirov/billing-settings/internal/logging"
	"github.com/eugenenazirov/billing-settings/internal/stripecheck"
)

const (
	commandServe = "serve"
	commandCheck = "check"
)

var signalNotify = signal.Notify

type cliOptions struct {
	command       string
	overrides     *config.CLIOverrides
	verifyStripe  bool
	verifyTimeout time.Duration
}

func main() {
	opts, err := parseArgs(os.Args[1:])
	kingpin.FatalIfError(err, "parse arguments")

	cfg, err := config.Load(opts.overrides)
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() {
		_ = logger.Sync()
	}()

	switch opts.command {
	case commandCheck:
		if err := runCheck(cfg, opts, logger); err != nil {
			logger.Fatal("configuration check failed", zap.Error(err))
		}
		logger.Info("configuration check passed")
	default:
		runServe(cfg, logger)
	}
}

func parseArgs(args []string) (cliOptions, error) {
	kingpinApp := kingpin.New("billing-settings", "Billing settings resolver - validates and serves the Stripe billing configuration")
	configFile := kingpinApp.Flag("config", "Path to YAML configuration file").String()
	envFile := kingpinApp.Flag("env-file", "Path to a .env file loaded before reading the environment").String()
	port := kingpinApp.Flag("port", "HTTP port exposed by the service").String()
	logLevel := kingpinApp.Flag("log-level", "Log level (debug, info, warn, error)").Enum("debug", "info", "warn", "error")
	rateLimitRPSFlag := kingpinApp.Flag("rate-limit-rps", "Requests per second allowed (set 0 to disable)").Default("-1").Float64()
	rateLimitBurstFlag := kingpinApp.Flag("rate-limit-burst", "Burst capacity for rate limiter (set 0 to disable)").Default("-1").Int()

	kingpinApp.Command(commandServe, "Resolve the billing settings and serve them over HTTP").Default()
	check := kingpinApp.Command(commandCheck, "Resolve the billing settings and exit")
	verifyStripe := check.Flag("verify-stripe", "Compare plans carrying a stripe_plan_id with the Stripe account").Bool()
	verifyTimeout := check.Flag("verify-timeout", "Timeout for the Stripe verification").Default("30s").Duration()

	command, err := kingpinApp.Parse(args)
	if err != nil {
		return cliOptions{}, err
	}

	overrides := &config.CLIOverrides{
		ConfigFile: *configFile,
		EnvFile:    *envFile,
	}

	if *port != "" {
		overrides.Port = port
	}

	if *logLevel != "" {
		overrides.LogLevel = logLevel
	}

	if *rateLimitRPSFlag >= 0 {
		overrides.RateLimitRPS = rateLimitRPSFlag
	}

	if *rateLimitBurstFlag >= 0 {
		overrides.RateLimitBurst = rateLimitBurstFlag
	}

	return cliOptions{
		command:       command,
		overrides:     overrides,
		verifyStripe:  *verifyStripe,
		verifyTimeout: *verifyTimeout,
	}, nil
}

func runServe(cfg config.Config, logger *zap.Logger) {
	app, err := application.New(cfg, application.DefaultRegistry(), logger)
	if err != nil {
		logger.Fatal("failed to initialize application", zap.Error(err))
	}

	if err := app.Start(); err != nil {
		logger.Fatal("failed to start server", zap.Error(err))
	}

	shutdown(app.Server(), cfg.ShutdownGracePeriod, logger)
}

func runCheck(cfg config.Config, opts cliOptions, logger *zap.Logger) error {
	resolved, err := application.ResolveSettings(cfg.Billing, application.DefaultRegistry(), logger)
	if err != nil {
		return err
	}
	if !opts.verifyStripe {
		return nil
	}

	secret := cfg.Billing.StripeSecretKey.Unmask()
	if secret == "" {
		return errors.New("--verify-stripe requires STRIPE_SECRET_KEY")
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.verifyTimeout)
	defer cancel()

	return application.VerifyPlans(ctx, resolved, stripecheck.NewStripeFetcher(secret), logger)
}

func shutdown(server *http.Server, timeout time.Duration, logger *zap.Logger) {
	quit := make(chan os.Signal, 1)
	signalNotify(quit, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	<-quit
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
		if closeErr := server.Close(); closeErr != nil {
			logger.Error("forced close failed", zap.Error(closeErr))
		}
	}
}
