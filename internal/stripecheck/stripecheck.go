// Package stripecheck compares the configured plans with the plans defined
// in the Stripe account.
package stripecheck

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/sony/gobreaker/v2"
	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/plan"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/eugenenazirov/billing-settings/internal/settings"
)

// Fields reported in a Mismatch.
const (
	FieldExists          = "exists"
	FieldAmount          = "amount"
	FieldCurrency        = "currency"
	FieldInterval        = "interval"
	FieldIntervalCount   = "interval_count"
	FieldTrialPeriodDays = "trial_period_days"
)

// ErrPlanNotFound is returned by a PlanFetcher when Stripe has no plan with
// the requested identifier.
var ErrPlanNotFound = errors.New("stripe plan not found")

// RemotePlan is the subset of a Stripe plan compared against configuration.
type RemotePlan struct {
	ID              string
	Amount          int64
	Currency        string
	Interval        string
	IntervalCount   int64
	TrialPeriodDays int64
}

// PlanFetcher retrieves a plan from Stripe by identifier.
type PlanFetcher interface {
	FetchPlan(ctx context.Context, id string) (RemotePlan, error)
}

// Mismatch describes one difference between a configured plan and Stripe.
type Mismatch struct {
	PlanKey      string `json:"plan"`
	StripePlanID string `json:"stripe_plan_id"`
	Field        string `json:"field"`
	Want         string `json:"want"`
	Got          string `json:"got"`
}

func (m Mismatch) String() string {
	return fmt.Sprintf("plan %q (%s): %s want %q, got %q", m.PlanKey, m.StripePlanID, m.Field, m.Want, m.Got)
}

// defaultConcurrency bounds the number of plans fetched at once.
const defaultConcurrency = 4

// StripeFetcher fetches plans through stripe-go's plan client. Calls go
// through a circuit breaker so an unreachable API fails fast.
type StripeFetcher struct {
	client  plan.Client
	breaker *gobreaker.CircuitBreaker[*stripe.Plan]
}

// NewStripeFetcher creates a fetcher authenticated with secretKey.
func NewStripeFetcher(secretKey string) *StripeFetcher {
	return NewStripeFetcherWithBackend(secretKey, stripe.GetBackend(stripe.APIBackend))
}

// NewStripeFetcherWithBackend creates a fetcher using backend, for tests and
// for pointing at a Stripe mock server.
func NewStripeFetcherWithBackend(secretKey string, backend stripe.Backend) *StripeFetcher {
	breaker := gobreaker.NewCircuitBreaker[*stripe.Plan](gobreaker.Settings{
		Name:        "stripe-plans",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		IsSuccessful: func(err error) bool {
			return err == nil || isResourceMissing(err)
		},
	})
	return &StripeFetcher{client: plan.Client{B: backend, Key: secretKey}, breaker: breaker}
}

// FetchPlan implements PlanFetcher.
func (f *StripeFetcher) FetchPlan(ctx context.Context, id string) (RemotePlan, error) {
	params := &stripe.PlanParams{}
	params.Context = ctx

	p, err := f.breaker.Execute(func() (*stripe.Plan, error) {
		return f.client.Get(id, params)
	})
	if err != nil {
		if isResourceMissing(err) {
			return RemotePlan{}, fmt.Errorf("%w: %s", ErrPlanNotFound, id)
		}
		return RemotePlan{}, fmt.Errorf("get stripe plan %s: %w", id, err)
	}

	return RemotePlan{
		ID:              p.ID,
		Amount:          p.Amount,
		Currency:        string(p.Currency),
		Interval:        string(p.Interval),
		IntervalCount:   p.IntervalCount,
		TrialPeriodDays: p.TrialPeriodDays,
	}, nil
}

func isResourceMissing(err error) bool {
	var stripeErr *stripe.Error
	return errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodeResourceMissing
}

// Verifier checks configured plans against Stripe.
type Verifier struct {
	fetcher     PlanFetcher
	logger      *zap.Logger
	concurrency int
}

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier)

// WithConcurrency sets how many plans are fetched at once.
func WithConcurrency(n int) VerifierOption {
	return func(v *Verifier) {
		if n > 0 {
			v.concurrency = n
		}
	}
}

// NewVerifier creates a Verifier. A nil logger disables logging.
func NewVerifier(fetcher PlanFetcher, logger *zap.Logger, opts ...VerifierOption) *Verifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	v := &Verifier{fetcher: fetcher, logger: logger, concurrency: defaultConcurrency}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify fetches every plan carrying a Stripe identifier and reports the
// differences in configured order. Plans without an identifier are skipped.
// A Stripe error other than a missing plan aborts verification.
func (v *Verifier) Verify(ctx context.Context, plans []settings.Plan) ([]Mismatch, error) {
	results := make([][]Mismatch, len(plans))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(v.concurrency)
	for i, p := range plans {
		if p.StripePlanID == "" {
			continue
		}
		g.Go(func() error {
			found, err := v.verifyPlan(gCtx, p)
			if err != nil {
				return err
			}
			results[i] = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var mismatches []Mismatch
	for _, found := range results {
		mismatches = append(mismatches, found...)
	}
	return mismatches, nil
}

func (v *Verifier) verifyPlan(ctx context.Context, p settings.Plan) ([]Mismatch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	remote, err := v.fetcher.FetchPlan(ctx, p.StripePlanID)
	if errors.Is(err, ErrPlanNotFound) {
		v.logger.Warn("plan missing at stripe",
			zap.String("plan", p.Key),
			zap.String("stripe_plan_id", p.StripePlanID),
		)
		return []Mismatch{{
			PlanKey:      p.Key,
			StripePlanID: p.StripePlanID,
			Field:        FieldExists,
			Want:         "true",
			Got:          "false",
		}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("verify plan %q: %w", p.Key, err)
	}

	found := compare(p, remote)
	for _, m := range found {
		v.logger.Warn("plan differs from stripe",
			zap.String("plan", m.PlanKey),
			zap.String("stripe_plan_id", m.StripePlanID),
			zap.String("field", m.Field),
			zap.String("want", m.Want),
			zap.String("got", m.Got),
		)
	}
	if len(found) == 0 {
		v.logger.Debug("plan matches stripe", zap.String("plan", p.Key))
	}
	return found, nil
}

// compare reports differing fields. Optional fields left empty in the
// configuration are not compared.
func compare(p settings.Plan, remote RemotePlan) []Mismatch {
	var out []Mismatch
	add := func(field, want, got string) {
		if want != got {
			out = append(out, Mismatch{
				PlanKey:      p.Key,
				StripePlanID: p.StripePlanID,
				Field:        field,
				Want:         want,
				Got:          got,
			})
		}
	}

	add(FieldAmount, strconv.FormatInt(p.Price, 10), strconv.FormatInt(remote.Amount, 10))
	if p.Currency != "" {
		add(FieldCurrency, p.Currency, remote.Currency)
	}
	if p.Interval != "" {
		add(FieldInterval, p.Interval, remote.Interval)
	}
	if p.IntervalCount != 0 {
		add(FieldIntervalCount, strconv.FormatInt(p.IntervalCount, 10), strconv.FormatInt(remote.IntervalCount, 10))
	}
	if p.TrialPeriodDays != 0 {
		add(FieldTrialPeriodDays, strconv.FormatInt(p.TrialPeriodDays, 10), strconv.FormatInt(remote.TrialPeriodDays, 10))
	}
	return out
}
