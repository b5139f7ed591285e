package settings

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eugenenazirov/billing-settings/internal/config"
)

type customer struct {
	email string
}

func (c customer) Email() string { return c.email }

func baseConfig() config.BillingConfig {
	cfg := config.Default().Billing
	cfg.StripePublicKey = "pk_test_123"
	return cfg
}

func goldSilverPlans() config.PlanDefinitions {
	return config.NewPlanDefinitions(
		config.PlanDefinition{Key: "gold", Price: 10, StripePlanID: "plan_gold"},
		config.PlanDefinition{Key: "silver", Price: 5},
	)
}

func customerModel() Model {
	return Model{AppLabel: "shop", Name: "Customer", Fields: []string{"id", "email"}}
}

func requestHook(r *http.Request) (Subscriber, error) {
	return customer{email: r.Header.Get("X-Email")}, nil
}

func assertImproperlyConfigured(t *testing.T, err error, setting string) *ImproperlyConfiguredError {
	t.Helper()
	require.Error(t, err)
	require.ErrorIs(t, err, ErrImproperlyConfigured)

	var ic *ImproperlyConfiguredError
	require.ErrorAs(t, err, &ic)
	if setting != "" {
		assert.Equal(t, setting, ic.Setting)
	}
	return ic
}

func TestResolveSubscriberModelFallsBackToUserModel(t *testing.T) {
	reg := NewRegistry(DefaultUserModel())

	model, err := ResolveSubscriberModel(baseConfig(), reg)
	require.NoError(t, err)
	assert.Equal(t, "auth.User", model.Label())
}

func TestResolveSubscriberModelUserModelWithoutEmail(t *testing.T) {
	reg := NewRegistry(Model{AppLabel: "accounts", Name: "Member", Fields: []string{"id", "username"}})

	_, err := ResolveSubscriberModel(baseConfig(), reg)
	ic := assertImproperlyConfigured(t, err, settingSubscriberModel)
	assert.Equal(t, "The customer user model must have an email attribute.", ic.Message)
}

func TestResolveSubscriberModelEmailProperty(t *testing.T) {
	reg := NewRegistry(Model{AppLabel: "accounts", Name: "Member", Properties: []string{"email"}})

	_, err := ResolveSubscriberModel(baseConfig(), reg)
	require.NoError(t, err)
}

func TestResolveSubscriberModelMalformedLabel(t *testing.T) {
	for _, label := range []string{"shop", "shop.models.Customer", ".Customer", "shop."} {
		t.Run(label, func(t *testing.T) {
			reg := NewRegistry(DefaultUserModel())
			require.NoError(t, reg.RegisterModel(customerModel()))

			cfg := baseConfig()
			cfg.SubscriberModel = label

			_, err := ResolveSubscriberModel(cfg, reg, WithSubscriberRequestCallback(requestHook))
			ic := assertImproperlyConfigured(t, err, settingSubscriberModel)
			assert.ErrorIs(t, err, ErrInvalidModelLabel)
			assert.Contains(t, ic.Message, "must be of the form 'app_label.model_name'")
		})
	}
}

func TestResolveSubscriberModelNotInstalled(t *testing.T) {
	reg := NewRegistry(DefaultUserModel())
	cfg := baseConfig()
	cfg.SubscriberModel = "shop.Customer"

	_, err := ResolveSubscriberModel(cfg, reg, WithSubscriberRequestCallback(requestHook))
	ic := assertImproperlyConfigured(t, err, settingSubscriberModel)
	assert.ErrorIs(t, err, ErrModelNotRegistered)
	assert.Equal(t, "SUBSCRIBER_MODEL refers to model 'shop.Customer' that has not been installed.", ic.Message)
}

func TestResolveSubscriberModelCustomWithoutEmail(t *testing.T) {
	reg := NewRegistry(DefaultUserModel())
	require.NoError(t, reg.RegisterModel(Model{AppLabel: "shop", Name: "Customer", Fields: []string{"id"}}))
	cfg := baseConfig()
	cfg.SubscriberModel = "shop.Customer"

	_, err := ResolveSubscriberModel(cfg, reg, WithSubscriberRequestCallback(requestHook))
	ic := assertImproperlyConfigured(t, err, settingSubscriberModel)
	assert.Equal(t, "SUBSCRIBER_MODEL must have an email attribute.", ic.Message)
}

func TestResolveSubscriberModelCustomRequiresRequestCallback(t *testing.T) {
	newRegistry := func(t *testing.T) *Registry {
		reg := NewRegistry(DefaultUserModel())
		require.NoError(t, reg.RegisterModel(customerModel()))
		return reg
	}

	t.Run("missing", func(t *testing.T) {
		cfg := baseConfig()
		cfg.SubscriberModel = "shop.Customer"

		_, err := ResolveSubscriberModel(cfg, newRegistry(t))
		ic := assertImproperlyConfigured(t, err, settingSubscriberRequest)
		assert.Equal(t, "SUBSCRIBER_MODEL_REQUEST_CALLBACK must be implemented if a SUBSCRIBER_MODEL is defined.", ic.Message)
	})

	t.Run("not callable", func(t *testing.T) {
		reg := newRegistry(t)
		reg.MustRegister("shop.hooks.current_customer", "not a function")
		cfg := baseConfig()
		cfg.SubscriberModel = "shop.Customer"
		cfg.SubscriberModelRequestCallback = "shop.hooks.current_customer"

		_, err := ResolveSubscriberModel(cfg, reg)
		ic := assertImproperlyConfigured(t, err, settingSubscriberRequest)
		assert.Equal(t, "SUBSCRIBER_MODEL_REQUEST_CALLBACK must be callable.", ic.Message)
	})

	t.Run("unknown path", func(t *testing.T) {
		cfg := baseConfig()
		cfg.SubscriberModel = "shop.Customer"
		cfg.SubscriberModelRequestCallback = "shop.hooks.current_customer"

		_, err := ResolveSubscriberModel(cfg, newRegistry(t))
		assertImproperlyConfigured(t, err, settingSubscriberRequest)
		assert.ErrorIs(t, err, ErrModuleNotRegistered)
	})

	t.Run("registered path", func(t *testing.T) {
		reg := newRegistry(t)
		reg.MustRegister("shop.hooks.current_customer", requestHook)
		cfg := baseConfig()
		cfg.SubscriberModel = "shop.customer"
		cfg.SubscriberModelRequestCallback = "shop.hooks.current_customer"

		model, err := ResolveSubscriberModel(cfg, reg)
		require.NoError(t, err)
		assert.Equal(t, customerModel().Label(), model.Label())
	})

	t.Run("option", func(t *testing.T) {
		cfg := baseConfig()
		cfg.SubscriberModel = "shop.Customer"

		_, err := ResolveSubscriberModel(cfg, newRegistry(t), WithSubscriberRequestCallback(requestHook))
		require.NoError(t, err)
	})
}

func TestLoadPathAttr(t *testing.T) {
	reg := NewRegistry(DefaultUserModel())
	trial := TrialPeriodFunc(func(Subscriber) int { return 14 })
	reg.MustRegister("pkg.mod.fn", trial)
	reg.MustRegister("pkg.mod.value", 42)

	t.Run("callable attribute", func(t *testing.T) {
		v, err := LoadPathAttr(reg, "pkg.mod.fn")
		require.NoError(t, err)
		fn, ok := v.(TrialPeriodFunc)
		require.True(t, ok)
		assert.Equal(t, 14, fn(customer{}))
	})

	t.Run("non-callable attribute is returned as is", func(t *testing.T) {
		v, err := LoadPathAttr(reg, "pkg.mod.value")
		require.NoError(t, err)
		assert.Equal(t, 42, v)
	})

	t.Run("missing attribute", func(t *testing.T) {
		_, err := LoadPathAttr(reg, "pkg.mod.missing")
		ic := assertImproperlyConfigured(t, err, "")
		assert.Equal(t, "Module 'pkg.mod' does not define a 'missing'", ic.Message)
	})

	t.Run("missing module", func(t *testing.T) {
		_, err := LoadPathAttr(reg, "pkg.other.fn")
		ic := assertImproperlyConfigured(t, err, "")
		assert.ErrorIs(t, err, ErrModuleNotRegistered)
		assert.Equal(t, "Error importing pkg.other", ic.Message)
	})

	t.Run("no separator", func(t *testing.T) {
		_, err := LoadPathAttr(reg, "fn")
		assertImproperlyConfigured(t, err, "")
	})
}

func TestResolvePlans(t *testing.T) {
	choices, list, err := ResolvePlans(goldSilverPlans())
	require.NoError(t, err)

	assert.Equal(t, []PlanChoice{{Key: "gold", Name: "gold"}, {Key: "silver", Name: "silver"}}, choices)
	require.Len(t, list, 1)
	assert.Equal(t, Plan{Key: "gold", Price: 10, StripePlanID: "plan_gold"}, list[0])
}

func TestResolvePlansUsesNameWhenPresent(t *testing.T) {
	defs := config.NewPlanDefinitions(
		config.PlanDefinition{Key: "pro", Name: "Professional", Price: 2500, StripePlanID: "plan_pro"},
		config.PlanDefinition{Key: "basic", Price: 900},
	)

	choices, _, err := ResolvePlans(defs)
	require.NoError(t, err)
	assert.Equal(t, []PlanChoice{{Key: "pro", Name: "Professional"}, {Key: "basic", Name: "basic"}}, choices)
}

func TestResolvePlansEmpty(t *testing.T) {
	choices, list, err := ResolvePlans(config.PlanDefinitions{})
	require.NoError(t, err)
	assert.Empty(t, choices)
	assert.Empty(t, list)
}

func TestResolvePlansRejectsInvalidDefinitions(t *testing.T) {
	tests := []struct {
		name string
		def  config.PlanDefinition
	}{
		{"negative price", config.PlanDefinition{Key: "a", Price: -1}},
		{"bad currency", config.PlanDefinition{Key: "a", Currency: "dollars"}},
		{"upper-case currency", config.PlanDefinition{Key: "a", Currency: "USD"}},
		{"bad interval", config.PlanDefinition{Key: "a", Interval: "fortnight"}},
		{"negative trial", config.PlanDefinition{Key: "a", TrialPeriodDays: -7}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ResolvePlans(config.NewPlanDefinitions(tt.def))
			assertImproperlyConfigured(t, err, settingPlans)
		})
	}
}

func TestPlanFromStripeID(t *testing.T) {
	s, err := Resolve(withPlans(baseConfig(), goldSilverPlans()), NewRegistry(DefaultUserModel()))
	require.NoError(t, err)

	key, ok := s.PlanFromStripeID("plan_gold")
	assert.True(t, ok)
	assert.Equal(t, "gold", key)

	_, ok = s.PlanFromStripeID("nonexistent")
	assert.False(t, ok)

	_, ok = s.PlanFromStripeID("")
	assert.False(t, ok, "plans without an identifier never match")
}

func TestPlanFromStripeIDFirstMatchWins(t *testing.T) {
	plans := []Plan{
		{Key: "monthly", StripePlanID: "plan_x"},
		{Key: "legacy", StripePlanID: "plan_x"},
	}
	key, ok := planFromStripeID(plans, "plan_x")
	assert.True(t, ok)
	assert.Equal(t, "monthly", key)
}

func TestResolveTrialPeriodCallback(t *testing.T) {
	reg := NewRegistry(DefaultUserModel())
	reg.MustRegister("billing.trials.for_subscriber", func(Subscriber) int { return 30 })
	reg.MustRegister("billing.trials.for_user", TrialPeriodFunc(func(Subscriber) int { return 7 }))
	reg.MustRegister("billing.trials.constant", 14)

	t.Run("unset", func(t *testing.T) {
		fn, err := ResolveTrialPeriodCallback(baseConfig(), reg)
		require.NoError(t, err)
		assert.Nil(t, fn)
	})

	t.Run("current name preferred over deprecated", func(t *testing.T) {
		cfg := baseConfig()
		cfg.TrialPeriodForSubscriberCallback = "billing.trials.for_subscriber"
		cfg.TrialPeriodForUserCallback = "billing.trials.for_user"

		fn, err := ResolveTrialPeriodCallback(cfg, reg)
		require.NoError(t, err)
		require.NotNil(t, fn)
		assert.Equal(t, 30, fn(customer{}))
	})

	t.Run("deprecated name as fallback", func(t *testing.T) {
		cfg := baseConfig()
		cfg.TrialPeriodForUserCallback = "billing.trials.for_user"

		fn, err := ResolveTrialPeriodCallback(cfg, reg)
		require.NoError(t, err)
		require.NotNil(t, fn)
		assert.Equal(t, 7, fn(customer{}))
	})

	t.Run("option wins", func(t *testing.T) {
		cfg := baseConfig()
		cfg.TrialPeriodForSubscriberCallback = "billing.trials.for_subscriber"

		fn, err := ResolveTrialPeriodCallback(cfg, reg, WithTrialPeriodCallback(func(Subscriber) int { return 1 }))
		require.NoError(t, err)
		assert.Equal(t, 1, fn(customer{}))
	})

	t.Run("not callable", func(t *testing.T) {
		cfg := baseConfig()
		cfg.TrialPeriodForUserCallback = "billing.trials.constant"

		_, err := ResolveTrialPeriodCallback(cfg, reg)
		assertImproperlyConfigured(t, err, settingTrialPeriodUser)
	})

	t.Run("missing attribute names the setting", func(t *testing.T) {
		cfg := baseConfig()
		cfg.TrialPeriodForSubscriberCallback = "billing.trials.missing"

		_, err := ResolveTrialPeriodCallback(cfg, reg)
		assertImproperlyConfigured(t, err, settingTrialPeriodSubscriber)
	})
}

func TestResolveDerivesSettings(t *testing.T) {
	cfg := withPlans(baseConfig(), goldSilverPlans())
	cfg.ProrationPolicy = true
	cfg.DefaultPlan = "silver"
	cfg.PasswordMinLength = 12

	s, err := Resolve(cfg, NewRegistry(DefaultUserModel()))
	require.NoError(t, err)

	assert.Equal(t, "pk_test_123", s.StripePublicKey())
	assert.Equal(t, "billing@example.com", s.InvoiceFromEmail())
	assert.Equal(t, 12, s.PasswordMinLength())
	assert.False(t, s.PasswordInputRenderValue())
	assert.True(t, s.ProrationPolicy())
	assert.False(t, s.CancellationAtPeriodEnd())
	assert.False(t, s.ProrationPolicyForUpgrades())
	assert.True(t, s.SendInvoiceReceiptEmails())
	assert.Equal(t, "silver", s.DefaultPlan())
	assert.Equal(t, []config.Currency(config.DefaultCurrencies()), s.Currencies())
	assert.Equal(t, "auth.User", s.SubscriberModel().Label())
	assert.Len(t, s.Plans(), 2)
	assert.Len(t, s.PlanChoices(), 2)
	assert.Len(t, s.PlanList(), 1)

	silver, ok := s.Plan("silver")
	assert.True(t, ok)
	assert.Equal(t, int64(5), silver.Price)

	_, hasTrial := s.TrialPeriodDays(customer{})
	assert.False(t, hasTrial)
}

func TestResolveCancellationAtPeriodEndDefault(t *testing.T) {
	s, err := Resolve(baseConfig(), NewRegistry(DefaultUserModel()))
	require.NoError(t, err)
	assert.True(t, s.CancellationAtPeriodEnd())
}

func TestResolveAccessorsReturnCopies(t *testing.T) {
	s, err := Resolve(withPlans(baseConfig(), goldSilverPlans()), NewRegistry(DefaultUserModel()))
	require.NoError(t, err)

	list := s.PlanList()
	list[0].Key = "mutated"
	choices := s.PlanChoices()
	choices[0].Name = "mutated"
	currencies := s.Currencies()
	currencies[0].Code = "xxx"

	assert.Equal(t, "gold", s.PlanList()[0].Key)
	assert.Equal(t, "gold", s.PlanChoices()[0].Name)
	assert.Equal(t, "usd", s.Currencies()[0].Code)
}

func TestResolveRejectsUnknownDefaultPlan(t *testing.T) {
	cfg := withPlans(baseConfig(), goldSilverPlans())
	cfg.DefaultPlan = "platinum"

	_, err := Resolve(cfg, NewRegistry(DefaultUserModel()))
	assertImproperlyConfigured(t, err, settingDefaultPlan)
}

func TestResolveWebhookURL(t *testing.T) {
	s, err := Resolve(baseConfig(), NewRegistry(DefaultUserModel()))
	require.NoError(t, err)

	assert.Equal(t, `^webhook/$`, s.WebhookURL())
	assert.True(t, s.MatchWebhookPath("/webhook/"))
	assert.True(t, s.MatchWebhookPath("webhook/"))
	assert.False(t, s.MatchWebhookPath("/webhook"))
	assert.False(t, s.MatchWebhookPath("/api/webhook/"))

	cfg := baseConfig()
	cfg.WebhookURL = `^webhook/(`
	_, err = Resolve(cfg, NewRegistry(DefaultUserModel()))
	assertImproperlyConfigured(t, err, settingWebhookURL)
}

func TestResolveSubscriberRequestHook(t *testing.T) {
	t.Run("default reads the request context", func(t *testing.T) {
		s, err := Resolve(baseConfig(), NewRegistry(DefaultUserModel()))
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		_, err = s.SubscriberRequest()(req)
		assert.ErrorIs(t, err, ErrNoSubscriber)

		req = req.WithContext(ContextWithSubscriber(context.Background(), customer{email: "ada@example.com"}))
		sub, err := s.SubscriberRequest()(req)
		require.NoError(t, err)
		assert.Equal(t, "ada@example.com", sub.Email())
	})

	t.Run("configured path is used without a custom model", func(t *testing.T) {
		reg := NewRegistry(DefaultUserModel())
		reg.MustRegister("shop.hooks.current_customer", SubscriberRequestFunc(requestHook))
		cfg := baseConfig()
		cfg.SubscriberModelRequestCallback = "shop.hooks.current_customer"

		s, err := Resolve(cfg, reg)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Email", "grace@example.com")
		sub, err := s.SubscriberRequest()(req)
		require.NoError(t, err)
		assert.Equal(t, "grace@example.com", sub.Email())
	})
}

func TestResolveWithTrialPeriod(t *testing.T) {
	reg := NewRegistry(DefaultUserModel())
	reg.MustRegister("billing.trials.default", func(s Subscriber) int {
		if s.Email() == "vip@example.com" {
			return 60
		}
		return 14
	})
	cfg := baseConfig()
	cfg.TrialPeriodForSubscriberCallback = "billing.trials.default"

	s, err := Resolve(cfg, reg)
	require.NoError(t, err)

	days, ok := s.TrialPeriodDays(customer{email: "vip@example.com"})
	assert.True(t, ok)
	assert.Equal(t, 60, days)
}

func TestImproperlyConfiguredError(t *testing.T) {
	cause := errors.New("boom")
	err := improperlyConfigured("X", cause, "X is %s", "broken")

	assert.Equal(t, "X is broken: boom", err.Error())
	assert.ErrorIs(t, err, ErrImproperlyConfigured)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "X is broken", improperlyConfigured("X", nil, "X is broken").Error())
}

func withPlans(cfg config.BillingConfig, plans config.PlanDefinitions) config.BillingConfig {
	cfg.Plans = plans
	return cfg
}

func TestRegistryModels(t *testing.T) {
	reg := NewRegistry(DefaultUserModel())

	user, err := reg.GetModel("auth.user")
	require.NoError(t, err)
	assert.Equal(t, "auth.User", user.Label())

	require.NoError(t, reg.RegisterModel(customerModel()))
	assert.Error(t, reg.RegisterModel(customerModel()), "duplicate registration")
	assert.ErrorIs(t, reg.RegisterModel(Model{AppLabel: "shop.v2", Name: "Customer"}), ErrInvalidModelLabel)
	assert.ErrorIs(t, reg.RegisterModel(Model{Name: "Customer"}), ErrInvalidModelLabel)

	_, err = reg.GetModel("shop.Order")
	assert.ErrorIs(t, err, ErrModelNotRegistered)
}

func TestRegistryRegisterPaths(t *testing.T) {
	reg := NewRegistry(Model{})
	assert.True(t, reg.UserModel().IsZero())

	require.NoError(t, reg.Register("a.b.c", 1))
	assert.Error(t, reg.Register("a.b.c", 2), "duplicate path")
	assert.Error(t, reg.Register("nodot", 1))
	assert.Error(t, reg.Register("trailing.", 1))
	assert.Error(t, reg.Register(".leading", 1))
	assert.Panics(t, func() { reg.MustRegister("a.b.c", 3) })

	v, err := LoadPathAttr(reg, "a.b.c")
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}
