package settings

import (
	"github.com/go-playground/validator/v10"

	"github.com/eugenenazirov/billing-settings/internal/config"
)

var planValidator = validator.New()

// Plan is a resolved plan definition. Key is the local configuration key,
// StripePlanID the payment provider's identifier.
type Plan struct {
	Key             string `json:"plan"`
	Name            string `json:"name"`
	Description     string `json:"description,omitempty"`
	Price           int64  `json:"price"`
	Currency        string `json:"currency,omitempty"`
	Interval        string `json:"interval,omitempty"`
	IntervalCount   int64  `json:"interval_count,omitempty"`
	TrialPeriodDays int64  `json:"trial_period_days,omitempty"`
	StripePlanID    string `json:"stripe_plan_id,omitempty"`
}

// DisplayName returns the plan name, falling back to its key.
func (p Plan) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.Key
}

// PlanChoice is a (key, display name) pair for presenting plans.
type PlanChoice struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

// ResolvePlans validates the configured plans and derives, in configured
// order, the display choices and the list of plans that carry a Stripe plan
// identifier.
func ResolvePlans(defs config.PlanDefinitions) ([]PlanChoice, []Plan, error) {
	all, err := resolvePlanDefinitions(defs)
	if err != nil {
		return nil, nil, err
	}
	choices, list := derivePlans(all)
	return choices, list, nil
}

func resolvePlanDefinitions(defs config.PlanDefinitions) ([]Plan, error) {
	items := defs.All()
	plans := make([]Plan, 0, len(items))
	for _, def := range items {
		if err := planValidator.Struct(def); err != nil {
			return nil, improperlyConfigured(settingPlans, err, "%s entry %q is invalid", settingPlans, def.Key)
		}
		plans = append(plans, Plan{
			Key:             def.Key,
			Name:            def.Name,
			Description:     def.Description,
			Price:           def.Price,
			Currency:        def.Currency,
			Interval:        def.Interval,
			IntervalCount:   def.IntervalCount,
			TrialPeriodDays: def.TrialPeriodDays,
			StripePlanID:    def.StripePlanID,
		})
	}
	return plans, nil
}

func derivePlans(all []Plan) ([]PlanChoice, []Plan) {
	choices := make([]PlanChoice, 0, len(all))
	list := make([]Plan, 0, len(all))
	for _, p := range all {
		choices = append(choices, PlanChoice{Key: p.Key, Name: p.DisplayName()})
		if p.StripePlanID != "" {
			list = append(list, p)
		}
	}
	return choices, list
}

// planFromStripeID scans plans in order and returns the key of the first plan
// whose Stripe identifier equals stripeID. An empty stripeID never matches.
func planFromStripeID(plans []Plan, stripeID string) (string, bool) {
	if stripeID == "" {
		return "", false
	}
	for _, p := range plans {
		if p.StripePlanID == stripeID {
			return p.Key, true
		}
	}
	return "", false
}
