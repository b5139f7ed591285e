package settings

import (
	"regexp"
	"slices"
	"strings"

	"github.com/eugenenazirov/billing-settings/internal/config"
)

// Settings holds the resolved billing configuration. It is immutable once
// Resolve returns and safe for concurrent use; accessors return copies.
type Settings struct {
	subscriberModel   Model
	subscriberRequest SubscriberRequestFunc
	trialPeriod       TrialPeriodFunc

	stripePublicKey  string
	invoiceFromEmail string

	plans       []Plan
	planChoices []PlanChoice
	planList    []Plan
	defaultPlan string

	passwordInputRenderValue   bool
	passwordMinLength          int
	prorationPolicy            bool
	prorationPolicyForUpgrades bool
	cancellationAtPeriodEnd    bool
	sendInvoiceReceiptEmails   bool

	currencies []config.Currency

	webhookURL     string
	webhookPattern *regexp.Regexp
}

// Resolve validates cfg against the registry and derives the process-wide
// billing settings. The first misconfiguration found is returned as an
// *ImproperlyConfiguredError.
func Resolve(cfg config.BillingConfig, reg *Registry, opts ...Option) (*Settings, error) {
	o := newOptions(opts)

	model, err := ResolveSubscriberModel(cfg, reg, opts...)
	if err != nil {
		return nil, err
	}

	request, _, err := resolveSubscriberRequest(cfg, reg, o)
	if err != nil {
		return nil, err
	}

	all, err := resolvePlanDefinitions(cfg.Plans)
	if err != nil {
		return nil, err
	}
	choices, list := derivePlans(all)

	if cfg.DefaultPlan != "" && !slices.ContainsFunc(all, func(p Plan) bool { return p.Key == cfg.DefaultPlan }) {
		return nil, improperlyConfigured(settingDefaultPlan, nil,
			"%s refers to plan '%s' that is not defined in %s.", settingDefaultPlan, cfg.DefaultPlan, settingPlans)
	}

	trial, err := ResolveTrialPeriodCallback(cfg, reg, opts...)
	if err != nil {
		return nil, err
	}

	pattern, err := regexp.Compile(cfg.WebhookURL)
	if err != nil {
		return nil, improperlyConfigured(settingWebhookURL, err, "%s must be a valid regular expression", settingWebhookURL)
	}

	return &Settings{
		subscriberModel:            model,
		subscriberRequest:          request,
		trialPeriod:                trial,
		stripePublicKey:            cfg.StripePublicKey,
		invoiceFromEmail:           cfg.InvoiceFromEmail,
		plans:                      all,
		planChoices:                choices,
		planList:                   list,
		defaultPlan:                cfg.DefaultPlan,
		passwordInputRenderValue:   cfg.PasswordInputRenderValue,
		passwordMinLength:          cfg.PasswordMinLength,
		prorationPolicy:            cfg.ProrationPolicy,
		prorationPolicyForUpgrades: cfg.ProrationPolicyForUpgrades,
		cancellationAtPeriodEnd:    !cfg.ProrationPolicy,
		sendInvoiceReceiptEmails:   cfg.SendInvoiceReceiptEmails,
		currencies:                 slices.Clone(cfg.Currencies),
		webhookURL:                 cfg.WebhookURL,
		webhookPattern:             pattern,
	}, nil
}

// SubscriberModel returns the model billed as the subscriber.
func (s *Settings) SubscriberModel() Model { return s.subscriberModel }

// SubscriberRequest returns the hook mapping a request to its subscriber.
func (s *Settings) SubscriberRequest() SubscriberRequestFunc { return s.subscriberRequest }

// TrialPeriodCallback returns the trial period hook, or nil when unset.
func (s *Settings) TrialPeriodCallback() TrialPeriodFunc { return s.trialPeriod }

// TrialPeriodDays returns the trial granted to sub and whether a hook is set.
func (s *Settings) TrialPeriodDays(sub Subscriber) (int, bool) {
	if s.trialPeriod == nil {
		return 0, false
	}
	return s.trialPeriod(sub), true
}

func (s *Settings) StripePublicKey() string { return s.stripePublicKey }
func (s *Settings) InvoiceFromEmail() string { return s.invoiceFromEmail }
func (s *Settings) DefaultPlan() string { return s.defaultPlan }

// Plans returns every configured plan in configured order.
func (s *Settings) Plans() []Plan { return slices.Clone(s.plans) }

// PlanChoices returns the (key, display name) pairs in configured order.
func (s *Settings) PlanChoices() []PlanChoice { return slices.Clone(s.planChoices) }

// PlanList returns the plans that carry a Stripe plan identifier.
func (s *Settings) PlanList() []Plan { return slices.Clone(s.planList) }

// Plan returns the plan configured under key.
func (s *Settings) Plan(key string) (Plan, bool) {
	for _, p := range s.plans {
		if p.Key == key {
			return p, true
		}
	}
	return Plan{}, false
}

// PlanFromStripeID returns the key of the first configured plan whose Stripe
// plan identifier equals stripeID.
func (s *Settings) PlanFromStripeID(stripeID string) (string, bool) {
	return planFromStripeID(s.plans, stripeID)
}

func (s *Settings) PasswordInputRenderValue() bool { return s.passwordInputRenderValue }
func (s *Settings) PasswordMinLength() int { return s.passwordMinLength }
func (s *Settings) ProrationPolicy() bool { return s.prorationPolicy }
func (s *Settings) ProrationPolicyForUpgrades() bool { return s.prorationPolicyForUpgrades }
func (s *Settings) SendInvoiceReceiptEmails() bool { return s.sendInvoiceReceiptEmails }

// CancellationAtPeriodEnd reports whether cancelled subscriptions run to the
// end of the billing period. It is the inverse of ProrationPolicy.
func (s *Settings) CancellationAtPeriodEnd() bool { return s.cancellationAtPeriodEnd }

// Currencies returns the currency choices in configured order.
func (s *Settings) Currencies() []config.Currency { return slices.Clone(s.currencies) }

// WebhookURL returns the webhook URL pattern as configured.
func (s *Settings) WebhookURL() string { return s.webhookURL }

// MatchWebhookPath reports whether a request path matches the webhook URL
// pattern. Patterns are written without the leading slash.
func (s *Settings) MatchWebhookPath(path string) bool {
	return s.webhookPattern.MatchString(strings.TrimPrefix(path, "/"))
}
