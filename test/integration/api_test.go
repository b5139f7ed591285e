package integration

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/eugenenazirov/billing-settings/internal/application"
	"github.com/eugenenazirov/billing-settings/internal/config"
	"github.com/eugenenazirov/billing-settings/internal/settings"
)

const settingsFile = `
port: "0"
enable_request_logging: false
rate_limit:
  rps: 0
billing:
  stripe_public_key: pk_test_integration
  stripe_secret_key: sk_test_integration
  default_plan: silver
  proration_policy: true
  currencies:
    - code: usd
      label: U.S. Dollars
    - code: chf
      label: Swiss Francs
  plans:
    silver:
      price: 500
      currency: usd
      interval: month
    gold:
      name: Gold
      price: 1000
      currency: usd
      interval: month
      stripe_plan_id: plan_gold
    platinum:
      price: 5000
      stripe_plan_id: plan_platinum
`

func newServer(t *testing.T) *httptest.Server {
	t.Helper()

	path := filepath.Join(t.TempDir(), "billing.yaml")
	if err := os.WriteFile(path, []byte(settingsFile), 0o600); err != nil {
		t.Fatalf("write settings file: %v", err)
	}

	cfg, err := config.Load(&config.CLIOverrides{ConfigFile: path})
	if err != nil {
		t.Fatalf("load configuration: %v", err)
	}

	reg := application.DefaultRegistry()
	trial := settings.TrialPeriodFunc(func(settings.Subscriber) int { return 14 })
	app, err := application.New(cfg, reg, zaptest.NewLogger(t), settings.WithTrialPeriodCallback(trial))
	if err != nil {
		t.Fatalf("initialize application: %v", err)
	}

	srv := httptest.NewServer(app.Server().Handler)
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, srv *httptest.Server, path string, want int, v any) {
	t.Helper()

	resp, err := srv.Client().Get(srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("GET %s: expected %d, got %d: %s", path, want, resp.StatusCode, body)
	}
	if v == nil {
		return
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("GET %s: decode response: %v", path, err)
	}
}

func TestIntegrationFlow(t *testing.T) {
	srv := newServer(t)

	getJSON(t, srv, "/api/health", http.StatusOK, nil)

	var plans struct {
		Choices []struct {
			Key  string `json:"key"`
			Name string `json:"name"`
		} `json:"choices"`
		Plans []struct {
			Plan string `json:"plan"`
		} `json:"plans"`
	}
	getJSON(t, srv, "/api/plans", http.StatusOK, &plans)

	gotChoices := make([]string, 0, len(plans.Choices))
	for _, c := range plans.Choices {
		gotChoices = append(gotChoices, c.Key+"="+c.Name)
	}
	if got, want := strings.Join(gotChoices, ","), "silver=silver,gold=Gold,platinum=platinum"; got != want {
		t.Fatalf("expected choices in file order %q, got %q", want, got)
	}
	if len(plans.Plans) != 2 || plans.Plans[0].Plan != "gold" || plans.Plans[1].Plan != "platinum" {
		t.Fatalf("expected plan list [gold platinum], got %+v", plans.Plans)
	}

	var lookup struct {
		Plan string `json:"plan"`
	}
	getJSON(t, srv, "/api/plans/plan_platinum", http.StatusOK, &lookup)
	if lookup.Plan != "platinum" {
		t.Fatalf("expected platinum, got %s", lookup.Plan)
	}
	getJSON(t, srv, "/api/plans/nonexistent", http.StatusNotFound, nil)

	var currencies struct {
		Currencies []config.Currency `json:"currencies"`
	}
	getJSON(t, srv, "/api/currencies", http.StatusOK, &currencies)
	if len(currencies.Currencies) != 2 || currencies.Currencies[1].Code != "chf" {
		t.Fatalf("expected currencies from file, got %+v", currencies.Currencies)
	}

	var public map[string]any
	getJSON(t, srv, "/api/settings", http.StatusOK, &public)
	if public["cancellationAtPeriodEnd"] != false || public["prorationPolicy"] != true {
		t.Fatalf("expected proration without cancellation at period end, got %v", public)
	}
	if public["trialPeriodConfigured"] != true {
		t.Fatalf("expected trial period hook to be configured")
	}
	for _, v := range public {
		if s, ok := v.(string); ok && strings.Contains(s, "sk_test") {
			t.Fatalf("secret key exposed: %v", public)
		}
	}

	resp, err := srv.Client().Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `route="GET /api/plans/{stripePlanID}",status="404"`) {
		t.Fatalf("expected not-found lookup to be counted, got:\n%s", body)
	}
}
