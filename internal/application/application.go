package application

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/eugenenazirov/billing-settings/internal/api"
	"github.com/eugenenazirov/billing-settings/internal/config"
	"github.com/eugenenazirov/billing-settings/internal/metrics"
	"github.com/eugenenazirov/billing-settings/internal/settings"
	"github.com/eugenenazirov/billing-settings/internal/stripecheck"
)

// SubscriberFromContextPath is the registry path of the stock request hook
// reading the subscriber placed on the request context.
const SubscriberFromContextPath = "billing.hooks.subscriber_from_context"

// App encapsulates the application dependencies and HTTP server.
type App struct {
	settings *settings.Settings
	metrics  *metrics.Collector
	handler  *api.Handler
	router   http.Handler
	logger   *zap.Logger
	server   *http.Server
}

// DefaultRegistry returns a registry holding the stock user model and the
// stock hooks shipped with the service.
func DefaultRegistry() *settings.Registry {
	reg := settings.NewRegistry(settings.DefaultUserModel())
	reg.MustRegister(SubscriberFromContextPath, settings.SubscriberRequestFunc(settings.DefaultSubscriberRequest))
	return reg
}

// New initializes the application with all dependencies from the provided
// configuration. It fails when the billing settings do not resolve.
func New(cfg config.Config, reg *settings.Registry, logger *zap.Logger, opts ...settings.Option) (*App, error) {
	resolved, err := ResolveSettings(cfg.Billing, reg, logger, opts...)
	if err != nil {
		return nil, err
	}

	collector := metrics.New()
	collector.RecordSettings(len(resolved.Plans()), len(resolved.PlanList()), len(resolved.Currencies()), time.Now())

	handler := api.NewHandler(resolved)
	apiRouter := api.NewRouter(handler, logger,
		api.WithLogging(cfg.EnableRequestLogging),
		api.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
		api.WithObserver(collector),
	)

	return &App{
		settings: resolved,
		metrics:  collector,
		handler:  handler,
		router:   apiRouter,
		logger:   logger,
		server:   NewServer(cfg, BuildRootHandler(apiRouter, collector.Handler())),
	}, nil
}

// ResolveSettings resolves the billing section and logs a summary of the
// result.
func ResolveSettings(cfg config.BillingConfig, reg *settings.Registry, logger *zap.Logger, opts ...settings.Option) (*settings.Settings, error) {
	resolved, err := settings.Resolve(cfg, reg, opts...)
	if err != nil {
		return nil, fmt.Errorf("resolve billing settings: %w", err)
	}

	if cfg.TrialPeriodForUserCallback != "" && cfg.TrialPeriodForSubscriberCallback == "" {
		logger.Warn("TRIAL_PERIOD_FOR_USER_CALLBACK is deprecated, use TRIAL_PERIOD_FOR_SUBSCRIBER_CALLBACK")
	}

	logger.Info("billing settings resolved",
		zap.String("subscriber_model", resolved.SubscriberModel().Label()),
		zap.Int("plans", len(resolved.Plans())),
		zap.Int("stripe_plans", len(resolved.PlanList())),
		zap.Int("currencies", len(resolved.Currencies())),
		zap.String("default_plan", resolved.DefaultPlan()),
		zap.Bool("trial_period_hook", resolved.TrialPeriodCallback() != nil),
		zap.Bool("cancellation_at_period_end", resolved.CancellationAtPeriodEnd()),
		zap.String("webhook_url", resolved.WebhookURL()),
		zap.Stringer("stripe_secret_key", cfg.StripeSecretKey),
	)
	return resolved, nil
}

// VerifyPlans checks every plan with a Stripe identifier against Stripe and
// returns an error when any plan is missing or differs.
func VerifyPlans(ctx context.Context, resolved *settings.Settings, fetcher stripecheck.PlanFetcher, logger *zap.Logger) error {
	verifier := stripecheck.NewVerifier(fetcher, logger)
	mismatches, err := verifier.Verify(ctx, resolved.PlanList())
	if err != nil {
		return fmt.Errorf("verify plans: %w", err)
	}
	if len(mismatches) > 0 {
		details := make([]string, 0, len(mismatches))
		for _, m := range mismatches {
			details = append(details, m.String())
		}
		return fmt.Errorf("%d plan mismatch(es) with stripe: %s", len(mismatches), strings.Join(details, "; "))
	}

	logger.Info("plans verified against stripe", zap.Int("plans", len(resolved.PlanList())))
	return nil
}

// BuildRootHandler constructs the root HTTP handler that routes API requests
// and serves metrics.
func BuildRootHandler(apiHandler, metricsHandler http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/api/", apiHandler)
	if metricsHandler != nil {
		mux.Handle("GET /metrics", metricsHandler)
	}
	return mux
}

// NewServer creates and configures an HTTP server from the provided configuration.
func NewServer(cfg config.Config, handler http.Handler) *http.Server {
	addr := cfg.Port
	if !strings.Contains(addr, ":") {
		addr = ":" + addr
	}

	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
}

// Start starts the HTTP server in a goroutine and logs the listening address.
func (a *App) Start() error {
	go func() {
		a.logger.Info("server listening", zap.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Fatal("server error", zap.Error(err))
		}
	}()
	return nil
}

// Server returns the HTTP server instance for shutdown handling.
func (a *App) Server() *http.Server {
	return a.server
}

// Settings returns the resolved billing settings.
func (a *App) Settings() *settings.Settings {
	return a.settings
}
