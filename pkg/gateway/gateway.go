// Package gateway runs the admission pipeline wrapped around every inference
// call: token validation, prompt cache, rate limiting, the backend call and
// metrics bookkeeping.
package gateway

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/pario-ai/llmgate/pkg/auth"
	"github.com/pario-ai/llmgate/pkg/cache"
	"github.com/pario-ai/llmgate/pkg/logging"
	"github.com/pario-ai/llmgate/pkg/metrics"
	"github.com/pario-ai/llmgate/pkg/models"
	"github.com/pario-ai/llmgate/pkg/ratelimit"
)

// DefaultTimeout bounds a backend call when Deps.Timeout is zero.
const DefaultTimeout = 60 * time.Second

var (
	// ErrInvalidCredentials is returned by Login for any failed sign-in.
	ErrInvalidCredentials = errors.New("incorrect username or password")
	// ErrBackend is returned for every failed backend call. The underlying
	// error is logged, never returned.
	ErrBackend = errors.New("inference failed")
)

// Generator produces a completion for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Recorder persists completed attempts.
type Recorder interface {
	Record(ctx context.Context, r models.AttemptRecord) error
}

// Deps wires a Gateway. Cache and Recorder may be nil.
type Deps struct {
	Store    *auth.Store
	Issuer   *auth.Issuer
	Limiter  *ratelimit.Limiter
	Cache    *cache.Cache
	Metrics  *metrics.Aggregator
	Backend  Generator
	Recorder Recorder
	Logger   *zap.Logger
	Timeout  time.Duration
}

// Gateway is safe for concurrent use. No lock is held during the backend call.
type Gateway struct {
	store    *auth.Store
	issuer   *auth.Issuer
	limiter  *ratelimit.Limiter
	cache    *cache.Cache
	metrics  *metrics.Aggregator
	backend  Generator
	recorder Recorder
	logger   *zap.Logger
	timeout  time.Duration
}

// Result is a completed inference.
type Result struct {
	Text    string
	Cached  bool
	Latency time.Duration
}

// New creates a Gateway from d.
func New(d Deps) *Gateway {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Gateway{
		store:    d.Store,
		issuer:   d.Issuer,
		limiter:  d.Limiter,
		cache:    d.Cache,
		metrics:  d.Metrics,
		backend:  d.Backend,
		recorder: d.Recorder,
		logger:   logger,
		timeout:  timeout,
	}
}

// Login verifies credentials and issues a bearer token.
func (g *Gateway) Login(username, password string) (models.Token, error) {
	user, ok := g.store.Verify(username, password)
	if !ok {
		g.logger.Warn("login rejected", zap.String("user_id", username))
		return models.Token{}, ErrInvalidCredentials
	}

	ttl := g.issuer.DefaultTTL()
	token, _, err := g.issuer.Issue(user.Username, ttl)
	if err != nil {
		return models.Token{}, err
	}
	g.logger.Info("token issued", zap.String("user_id", user.Username))
	return models.Token{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int64(ttl / time.Second),
	}, nil
}

// Authorize validates a bearer token and returns the identity it names.
func (g *Gateway) Authorize(token string) (string, error) {
	identity, err := g.issuer.Validate(token)
	if err != nil {
		var ae *auth.AuthError
		if errors.As(err, &ae) {
			g.logger.Debug("token rejected", zap.NamedError("reason", ae.Reason))
		}
		return "", err
	}
	return identity, nil
}

// Infer answers prompt for identity. Cache hits skip the rate limiter and are
// counted as successful attempts. Errors are *models.ValidationError,
// *ratelimit.LimitError, ErrBackend or the context's error when the caller
// went away; the last produces no metrics.
func (g *Gateway) Infer(ctx context.Context, identity, prompt string) (Result, error) {
	start := time.Now()
	rec := logging.Inference{
		RequestID:    middleware.GetReqID(ctx),
		User:         identity,
		PromptLength: utf8.RuneCountInString(prompt),
	}

	if err := models.ValidatePrompt(prompt); err != nil {
		return Result{}, err
	}

	if g.cache != nil {
		if text, ok := g.cache.Get(prompt); ok {
			latency := time.Since(start)
			g.complete(ctx, rec, text, latency, models.OutcomeCacheHit)
			return Result{Text: text, Cached: true, Latency: latency}, nil
		}
	}

	if err := g.limiter.Allow(identity); err != nil {
		g.logger.Warn("rate limit exceeded", rec.Fields()...)
		return Result{}, err
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	text, err := g.backend.Generate(callCtx, prompt)
	cancel()
	latency := time.Since(start)

	if err != nil {
		if ctx.Err() != nil {
			rec.Latency = latency
			rec.Status = "cancelled"
			g.logger.Info("inference cancelled by caller", rec.Fields()...)
			return Result{}, ctx.Err()
		}
		rec.Latency = latency
		rec.Status = string(models.OutcomeFailure)
		g.logger.Error("inference failed", append(rec.Fields(), zap.Error(err))...)
		g.metrics.Record(latency, false)
		g.persist(ctx, rec, 0, models.OutcomeFailure)
		return Result{}, ErrBackend
	}

	if g.cache != nil {
		g.cache.Put(prompt, text)
	}
	g.complete(ctx, rec, text, latency, models.OutcomeSuccess)
	return Result{Text: text, Latency: latency}, nil
}

// Snapshot returns the current metrics summary.
func (g *Gateway) Snapshot() models.MetricsSummary {
	return g.metrics.Snapshot()
}

// CacheStats returns prompt cache counters, or zero values when caching is off.
func (g *Gateway) CacheStats() models.CacheStats {
	if g.cache == nil {
		return models.CacheStats{}
	}
	return g.cache.Stats()
}

func (g *Gateway) complete(ctx context.Context, rec logging.Inference, text string, latency time.Duration, outcome models.Outcome) {
	n := utf8.RuneCountInString(text)
	rec.ResponseLength = &n
	rec.Latency = latency
	rec.Status = string(models.OutcomeSuccess)
	if outcome == models.OutcomeCacheHit {
		rec.Cache = "hit"
	} else {
		rec.Cache = "miss"
	}
	g.logger.Info("inference completed", rec.Fields()...)
	g.metrics.Record(latency, true)
	g.persist(ctx, rec, n, outcome)
}

// persist writes the attempt to the history recorder, detached from the
// request's cancellation.
func (g *Gateway) persist(ctx context.Context, rec logging.Inference, responseLength int, outcome models.Outcome) {
	if g.recorder == nil {
		return
	}
	err := g.recorder.Record(context.WithoutCancel(ctx), models.AttemptRecord{
		RequestID:      rec.RequestID,
		Username:       rec.User,
		PromptLength:   rec.PromptLength,
		ResponseLength: responseLength,
		LatencyMs:      logging.Millis(rec.Latency),
		Outcome:        outcome,
		CreatedAt:      time.Now().UTC(),
	})
	if err != nil {
		g.logger.Warn("failed to record attempt", zap.String("request_id", rec.RequestID), zap.Error(err))
	}
}
