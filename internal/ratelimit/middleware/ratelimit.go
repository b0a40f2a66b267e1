// Package middleware throttles compliance API callers with per-user sliding
// windows. A shared Redis store is preferred; when it fails repeatedly a
// circuit breaker moves checks to a process-local store.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"truconn/internal/ratelimit/metrics"
	"truconn/internal/ratelimit/models"
	"truconn/pkg/platform/circuit"
	"truconn/pkg/platform/httputil"
	"truconn/pkg/requestcontext"
)

// BucketStore is a sliding-window counter.
type BucketStore interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.RateLimitResult, error)
}

// DefaultLimits are per-user budgets for each endpoint class.
var DefaultLimits = map[models.EndpointClass]models.Limit{
	models.ClassScan:  {RequestsPerWindow: 10, Window: time.Minute},
	models.ClassWrite: {RequestsPerWindow: 60, Window: time.Minute},
	models.ClassRead:  {RequestsPerWindow: 300, Window: time.Minute},
}

// Limiter enforces the per-class limits.
type Limiter struct {
	primary  BucketStore
	fallback BucketStore
	breaker  *circuit.Breaker
	limits   map[models.EndpointClass]models.Limit
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// Option configures a Limiter.
type Option func(*Limiter)

func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) { l.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Limiter) { l.metrics = m }
}

// WithLimit overrides the budget for one class. Non-positive values are ignored.
func WithLimit(class models.EndpointClass, limit models.Limit) Option {
	return func(l *Limiter) {
		if limit.RequestsPerWindow > 0 && limit.Window > 0 {
			l.limits[class] = limit
		}
	}
}

// WithBreaker replaces the default breaker guarding the primary store.
func WithBreaker(b *circuit.Breaker) Option {
	return func(l *Limiter) {
		if b != nil {
			l.breaker = b
		}
	}
}

// New builds a Limiter. primary may be nil, in which case every check runs
// against fallback.
func New(primary, fallback BucketStore, opts ...Option) *Limiter {
	l := &Limiter{
		primary:  primary,
		fallback: fallback,
		breaker:  circuit.New("ratelimit-store"),
		limits:   make(map[models.EndpointClass]models.Limit, len(DefaultLimits)),
		logger:   slog.Default(),
	}
	for class, limit := range DefaultLimits {
		l.limits[class] = limit
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Classify maps a request to its endpoint class.
func Classify(r *http.Request) models.EndpointClass {
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/compliance/scan":
		return models.ClassScan
	case r.Method == http.MethodGet || r.Method == http.MethodHead:
		return models.ClassRead
	default:
		return models.ClassWrite
	}
}

// Middleware rejects callers that exhausted their class budget with 429. It
// must run after authentication so the caller's user ID is in the context.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		class := Classify(r)
		limit := l.limits[class]

		subject := "ip:" + requestcontext.ClientIP(ctx)
		if userID := requestcontext.UserID(ctx); !userID.IsNil() {
			subject = userID.String()
		}

		result, degraded, err := l.check(ctx, models.UserKey(class, subject), limit)
		if err != nil {
			// Both stores failed; let the request through rather than fail closed.
			l.logger.ErrorContext(ctx, "rate limit check failed", "error", err, "class", class)
			next.ServeHTTP(w, r)
			return
		}
		if degraded {
			w.Header().Set("X-RateLimit-Status", "degraded")
		}
		addRateLimitHeaders(w, result)
		l.metrics.RecordDecision(string(class), result.Allowed)

		if !result.Allowed {
			l.logger.WarnContext(ctx, "rate limit exceeded",
				"class", class,
				"subject", subject,
				"request_id", requestcontext.RequestID(ctx),
			)
			writeRateLimitExceeded(w, result)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (l *Limiter) check(ctx context.Context, key string, limit models.Limit) (*models.RateLimitResult, bool, error) {
	if l.primary != nil && l.breaker.Allow() {
		result, err := l.primary.Allow(ctx, key, limit.RequestsPerWindow, limit.Window)
		if err == nil {
			_, change := l.breaker.RecordSuccess()
			l.report(ctx, change)
			return result, false, nil
		}
		l.metrics.IncrementStoreErrors()
		_, change := l.breaker.RecordFailure()
		l.report(ctx, change)
		l.logger.WarnContext(ctx, "primary rate limit store failed, using fallback", "error", err)
	}
	l.metrics.IncrementFallback()
	result, err := l.fallback.Allow(ctx, key, limit.RequestsPerWindow, limit.Window)
	return result, l.primary != nil, err
}

func (l *Limiter) report(ctx context.Context, change circuit.StateChange) {
	switch {
	case change.Opened:
		l.metrics.SetCircuitOpen(true)
		l.logger.WarnContext(ctx, "rate limit store circuit opened", "breaker", l.breaker.Name())
	case change.Closed:
		l.metrics.SetCircuitOpen(false)
		l.logger.InfoContext(ctx, "rate limit store circuit closed", "breaker", l.breaker.Name())
	}
}

func addRateLimitHeaders(w http.ResponseWriter, result *models.RateLimitResult) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}

func writeRateLimitExceeded(w http.ResponseWriter, result *models.RateLimitResult) {
	w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter))
	httputil.WriteJSON(w, http.StatusTooManyRequests, &models.RateLimitExceededResponse{
		Error:      "rate_limit_exceeded",
		Message:    "Too many requests. Please try again later.",
		QuotaLimit: result.Limit,
		QuotaReset: result.ResetAt,
		RetryAfter: result.RetryAfter,
	})
}
