package settings

import (
	"context"
	"fmt"
	"net/http"

	"github.com/eugenenazirov/billing-settings/internal/config"
)

// Setting identifiers used in error messages.
const (
	settingSubscriberModel       = "SUBSCRIBER_MODEL"
	settingSubscriberRequest     = "SUBSCRIBER_MODEL_REQUEST_CALLBACK"
	settingTrialPeriodSubscriber = "TRIAL_PERIOD_FOR_SUBSCRIBER_CALLBACK"
	settingTrialPeriodUser       = "TRIAL_PERIOD_FOR_USER_CALLBACK"
	settingPlans                 = "PLANS"
	settingDefaultPlan           = "DEFAULT_PLAN"
	settingWebhookURL            = "WEBHOOK_URL"
)

// Subscriber is the entity billed by the integration.
type Subscriber interface {
	Email() string
}

// SubscriberRequestFunc returns the subscriber making an HTTP request.
type SubscriberRequestFunc func(r *http.Request) (Subscriber, error)

// TrialPeriodFunc returns the trial length in days granted to a subscriber.
type TrialPeriodFunc func(s Subscriber) int

type subscriberContextKey struct{}

// ContextWithSubscriber returns a copy of ctx carrying s. Authentication
// middleware in the host application uses it so DefaultSubscriberRequest can
// find the current subscriber.
func ContextWithSubscriber(ctx context.Context, s Subscriber) context.Context {
	return context.WithValue(ctx, subscriberContextKey{}, s)
}

// SubscriberFromContext returns the subscriber stored by ContextWithSubscriber.
func SubscriberFromContext(ctx context.Context) (Subscriber, bool) {
	s, ok := ctx.Value(subscriberContextKey{}).(Subscriber)
	return s, ok && s != nil
}

// DefaultSubscriberRequest is the request hook used when none is configured:
// the subscriber is the authenticated user on the request context.
func DefaultSubscriberRequest(r *http.Request) (Subscriber, error) {
	s, ok := SubscriberFromContext(r.Context())
	if !ok {
		return nil, ErrNoSubscriber
	}
	return s, nil
}

// Option supplies hooks directly instead of through registry paths.
type Option func(*options)

type options struct {
	subscriberRequest SubscriberRequestFunc
	trialPeriod       TrialPeriodFunc
}

// WithSubscriberRequestCallback sets the subscriber request hook. It takes
// precedence over SubscriberModelRequestCallback.
func WithSubscriberRequestCallback(fn SubscriberRequestFunc) Option {
	return func(o *options) {
		o.subscriberRequest = fn
	}
}

// WithTrialPeriodCallback sets the trial period hook. It takes precedence over
// both trial period path settings.
func WithTrialPeriodCallback(fn TrialPeriodFunc) Option {
	return func(o *options) {
		o.trialPeriod = fn
	}
}

func newOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// LoadPathAttr resolves a dotted "module.attr" path against the registry. The
// returned value is not checked for callability.
func LoadPathAttr(reg *Registry, path string) (any, error) {
	module, attr, ok := splitPath(path)
	if !ok {
		return nil, improperlyConfigured("", nil, "%q is not a dotted path of the form 'module.attr'", path)
	}
	if !reg.hasModule(module) {
		return nil, improperlyConfigured("", fmt.Errorf("%w: %q", ErrModuleNotRegistered, module), "Error importing %s", module)
	}
	value, ok := reg.lookupAttr(module, attr)
	if !ok {
		return nil, improperlyConfigured("", nil, "Module '%s' does not define a '%s'", module, attr)
	}
	return value, nil
}

// ResolveTrialPeriodCallback returns the trial period hook, or nil when none is
// configured. The current setting is preferred over the deprecated
// TrialPeriodForUserCallback.
func ResolveTrialPeriodCallback(cfg config.BillingConfig, reg *Registry, opts ...Option) (TrialPeriodFunc, error) {
	o := newOptions(opts)
	if o.trialPeriod != nil {
		return o.trialPeriod, nil
	}

	setting, path := settingTrialPeriodSubscriber, cfg.TrialPeriodForSubscriberCallback
	if path == "" {
		setting, path = settingTrialPeriodUser, cfg.TrialPeriodForUserCallback
	}
	if path == "" {
		return nil, nil
	}

	value, err := LoadPathAttr(reg, path)
	if err != nil {
		return nil, withSetting(err, setting)
	}
	fn, ok := asTrialPeriodFunc(value)
	if !ok {
		return nil, improperlyConfigured(setting, nil, "%s must be callable.", setting)
	}
	return fn, nil
}

// resolveSubscriberRequest returns the configured request hook. configured is
// false when the default hook is returned.
func resolveSubscriberRequest(cfg config.BillingConfig, reg *Registry, o options) (fn SubscriberRequestFunc, configured bool, err error) {
	if o.subscriberRequest != nil {
		return o.subscriberRequest, true, nil
	}
	if cfg.SubscriberModelRequestCallback == "" {
		return DefaultSubscriberRequest, false, nil
	}

	value, err := LoadPathAttr(reg, cfg.SubscriberModelRequestCallback)
	if err != nil {
		return nil, true, withSetting(err, settingSubscriberRequest)
	}
	fn, ok := asSubscriberRequestFunc(value)
	if !ok {
		return nil, true, improperlyConfigured(settingSubscriberRequest, nil, "%s must be callable.", settingSubscriberRequest)
	}
	return fn, true, nil
}

func asSubscriberRequestFunc(v any) (SubscriberRequestFunc, bool) {
	switch fn := v.(type) {
	case SubscriberRequestFunc:
		return fn, fn != nil
	case func(*http.Request) (Subscriber, error):
		return fn, fn != nil
	default:
		return nil, false
	}
}

func asTrialPeriodFunc(v any) (TrialPeriodFunc, bool) {
	switch fn := v.(type) {
	case TrialPeriodFunc:
		return fn, fn != nil
	case func(Subscriber) int:
		return fn, fn != nil
	default:
		return nil, false
	}
}

func withSetting(err error, setting string) error {
	if ic, ok := err.(*ImproperlyConfiguredError); ok && ic.Setting == "" {
		ic.Setting = setting
	}
	return err
}
