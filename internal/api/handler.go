package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/eugenenazirov/billing-settings/internal/config"
	"github.com/eugenenazirov/billing-settings/internal/settings"
)

type contextKey string

const requestIDContextKey contextKey = "requestID"

// SettingsReader is the read-only view of the resolved billing settings served
// over HTTP. *settings.Settings implements it.
type SettingsReader interface {
	SubscriberModel() settings.Model
	TrialPeriodCallback() settings.TrialPeriodFunc
	StripePublicKey() string
	InvoiceFromEmail() string
	DefaultPlan() string
	PlanChoices() []settings.PlanChoice
	PlanList() []settings.Plan
	Plan(key string) (settings.Plan, bool)
	PlanFromStripeID(stripeID string) (string, bool)
	PasswordInputRenderValue() bool
	PasswordMinLength() int
	ProrationPolicy() bool
	ProrationPolicyForUpgrades() bool
	CancellationAtPeriodEnd() bool
	SendInvoiceReceiptEmails() bool
	Currencies() []config.Currency
	WebhookURL() string
}

// Handler serves the resolved settings as JSON.
type Handler struct {
	settings SettingsReader

	clock      func() time.Time
	resolvedAt time.Time
}

// HandlerOption configures Handler behaviour.
type HandlerOption func(*Handler)

// WithClock overrides the time source, primarily for tests.
func WithClock(clock func() time.Time) HandlerOption {
	return func(h *Handler) {
		h.clock = clock
	}
}

// NewHandler constructs a Handler over the resolved settings.
func NewHandler(s SettingsReader, opts ...HandlerOption) *Handler {
	h := &Handler{
		settings: s,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	h.resolvedAt = h.clock()
	return h
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{
		Status:    "ok",
		Timestamp: h.clock(),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGetPlans(w http.ResponseWriter, _ *http.Request) {
	resp := plansResponse{
		Choices:     h.settings.PlanChoices(),
		Plans:       h.settings.PlanList(),
		DefaultPlan: h.settings.DefaultPlan(),
		ResolvedAt:  h.resolvedAt,
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGetPlanByStripeID(w http.ResponseWriter, r *http.Request) {
	stripeID := strings.TrimSpace(r.PathValue("stripePlanID"))
	if stripeID == "" {
		writeError(w, http.StatusBadRequest, "Invalid request", "stripe plan id must not be empty")
		return
	}

	key, ok := h.settings.PlanFromStripeID(stripeID)
	if !ok {
		writeError(w, http.StatusNotFound, "Plan not found",
			"no configured plan has stripe plan id "+stripeID,
			"check the stripe_plan_id values in the PLANS setting")
		return
	}

	plan, _ := h.settings.Plan(key)
	writeJSON(w, http.StatusOK, planResponse{Plan: key, Details: plan})
}

func (h *Handler) handleGetCurrencies(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, currenciesResponse{Currencies: h.settings.Currencies()})
}

func (h *Handler) handleGetSettings(w http.ResponseWriter, _ *http.Request) {
	s := h.settings
	resp := settingsResponse{
		SubscriberModel:            s.SubscriberModel().Label(),
		StripePublicKey:            s.StripePublicKey(),
		InvoiceFromEmail:           s.InvoiceFromEmail(),
		DefaultPlan:                s.DefaultPlan(),
		PasswordInputRenderValue:   s.PasswordInputRenderValue(),
		PasswordMinLength:          s.PasswordMinLength(),
		ProrationPolicy:            s.ProrationPolicy(),
		ProrationPolicyForUpgrades: s.ProrationPolicyForUpgrades(),
		CancellationAtPeriodEnd:    s.CancellationAtPeriodEnd(),
		SendInvoiceReceiptEmails:   s.SendInvoiceReceiptEmails(),
		TrialPeriodConfigured:      s.TrialPeriodCallback() != nil,
		WebhookURL:                 s.WebhookURL(),
		ResolvedAt:                 h.resolvedAt,
	}
	writeJSON(w, http.StatusOK, resp)
}

func requestIDFromContext(ctx context.Context) string {
	if v := ctx.Value(requestIDContextKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

type plansResponse struct {
	Choices     []settings.PlanChoice `json:"choices"`
	Plans       []settings.Plan       `json:"plans"`
	DefaultPlan string                `json:"defaultPlan,omitempty"`
	ResolvedAt  time.Time             `json:"resolvedAt"`
}

type planResponse struct {
	Plan    string        `json:"plan"`
	Details settings.Plan `json:"details"`
}

type currenciesResponse struct {
	Currencies []config.Currency `json:"currencies"`
}

type settingsResponse struct {
	SubscriberModel            string    `json:"subscriberModel"`
	StripePublicKey            string    `json:"stripePublicKey"`
	InvoiceFromEmail           string    `json:"invoiceFromEmail"`
	DefaultPlan                string    `json:"defaultPlan,omitempty"`
	PasswordInputRenderValue   bool      `json:"passwordInputRenderValue"`
	PasswordMinLength          int       `json:"passwordMinLength"`
	ProrationPolicy            bool      `json:"prorationPolicy"`
	ProrationPolicyForUpgrades bool      `json:"prorationPolicyForUpgrades"`
	CancellationAtPeriodEnd    bool      `json:"cancellationAtPeriodEnd"`
	SendInvoiceReceiptEmails   bool      `json:"sendInvoiceReceiptEmails"`
	TrialPeriodConfigured      bool      `json:"trialPeriodConfigured"`
	WebhookURL                 string    `json:"webhookUrl"`
	ResolvedAt                 time.Time `json:"resolvedAt"`
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type errorResponse struct {
	Error      string `json:"error"`
	Details    string `json:"details,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if status != 0 {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message, details string, suggestion ...string) {
	resp := errorResponse{
		Error:   message,
		Details: details,
	}
	if len(suggestion) > 0 {
		resp.Suggestion = suggestion[0]
	}
	writeJSON(w, status, resp)
}
