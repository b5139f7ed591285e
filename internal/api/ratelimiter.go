package api

import (
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

type rateLimiter interface {
	Allow() bool
}

type limiterAdapter struct {
	limiter *rate.Limiter
}

func newTokenBucketLimiter(ratePerSecond float64, burst int) rateLimiter {
	if ratePerSecond <= 0 {
		ratePerSecond = 1
	}
	if burst <= 0 {
		burst = 1
	}

	return &limiterAdapter{
		limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst),
	}
}

func (l *limiterAdapter) Allow() bool {
	if l == nil || l.limiter == nil {
		return true
	}
	return l.limiter.Allow()
}

// retryAfter is the wait in whole seconds until the next token, at least one.
func (l *limiterAdapter) retryAfter() int {
	if l == nil || l.limiter == nil || l.limiter.Limit() <= 0 {
		return 1
	}
	wait := time.Duration(float64(time.Second) / float64(l.limiter.Limit()))
	if secs := int((wait + time.Second - 1) / time.Second); secs > 1 {
		return secs
	}
	return 1
}

func rateLimitMiddleware(limiter rateLimiter, observer RequestObserver, next http.Handler) http.Handler {
	if limiter == nil {
		return next
	}
	retry := 1
	if adapter, ok := limiter.(*limiterAdapter); ok {
		retry = adapter.retryAfter()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if limiter.Allow() {
			next.ServeHTTP(w, r)
			return
		}
		if observer != nil {
			observer.ObserveRateLimited(r.Method)
		}
		w.Header().Set("Retry-After", strconv.Itoa(retry))
		writeError(w, http.StatusTooManyRequests, "Too many requests", "rate limit exceeded, please retry shortly")
	})
}
