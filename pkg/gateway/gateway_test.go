package gateway

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/crypto/bcrypt"

	"github.com/pario-ai/llmgate/pkg/auth"
	"github.com/pario-ai/llmgate/pkg/cache"
	"github.com/pario-ai/llmgate/pkg/metrics"
	"github.com/pario-ai/llmgate/pkg/models"
	"github.com/pario-ai/llmgate/pkg/ratelimit"
)

type fakeBackend struct {
	mu    sync.Mutex
	calls int
	fn    func(ctx context.Context, prompt string) (string, error)
}

func (f *fakeBackend) Generate(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.fn(ctx, prompt)
}

func (f *fakeBackend) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type memRecorder struct {
	mu      sync.Mutex
	records []models.AttemptRecord
}

func (m *memRecorder) Record(_ context.Context, r models.AttemptRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, r)
	return nil
}

func (m *memRecorder) All() []models.AttemptRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.AttemptRecord(nil), m.records...)
}

type harness struct {
	gw       *Gateway
	backend  *fakeBackend
	recorder *memRecorder
	logs     *observer.ObservedLogs
}

func echo(_ context.Context, prompt string) (string, error) {
	return "echo: " + prompt, nil
}

func newHarness(t *testing.T, quota int, fn func(context.Context, string) (string, error)) *harness {
	t.Helper()
	hash, err := auth.HashPassword("demo1234", bcrypt.MinCost)
	require.NoError(t, err)
	issuer, err := auth.NewIssuer("secret", "HS256", 30*time.Minute)
	require.NoError(t, err)

	core, logs := observer.New(zapcore.DebugLevel)
	h := &harness{
		backend:  &fakeBackend{fn: fn},
		recorder: &memRecorder{},
		logs:     logs,
	}
	h.gw = New(Deps{
		Store:    auth.NewStore([]models.User{{Username: "demo", PasswordHash: hash}}),
		Issuer:   issuer,
		Limiter:  ratelimit.New(quota, time.Minute),
		Cache:    cache.New(8),
		Metrics:  metrics.NewAggregator(),
		Backend:  h.backend,
		Recorder: h.recorder,
		Logger:   zap.New(core),
		Timeout:  time.Second,
	})
	return h
}

func TestLoginAndAuthorize(t *testing.T) {
	h := newHarness(t, 10, echo)

	tok, err := h.gw.Login("demo", "demo1234")
	require.NoError(t, err)
	require.Equal(t, "bearer", tok.TokenType)
	require.EqualValues(t, 1800, tok.ExpiresIn)

	identity, err := h.gw.Authorize(tok.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "demo", identity)

	_, err = h.gw.Login("demo", "wrong")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = h.gw.Login("ghost", "demo1234")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = h.gw.Authorize("garbage")
	require.ErrorIs(t, err, auth.ErrUnauthorized)
}

func TestInferSuccess(t *testing.T) {
	h := newHarness(t, 10, echo)

	res, err := h.gw.Infer(context.Background(), "demo", "hello")
	require.NoError(t, err)
	require.Equal(t, "echo: hello", res.Text)
	require.False(t, res.Cached)

	s := h.gw.Snapshot()
	require.EqualValues(t, 1, s.TotalRequests)
	require.EqualValues(t, 1, s.SuccessfulRequests)

	recs := h.recorder.All()
	require.Len(t, recs, 1)
	require.Equal(t, models.OutcomeSuccess, recs[0].Outcome)
	require.Equal(t, "demo", recs[0].Username)
	require.Equal(t, 5, recs[0].PromptLength)
	require.Equal(t, len("echo: hello"), recs[0].ResponseLength)

	entries := h.logs.FilterMessage("inference completed").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	require.Equal(t, "demo", fields["user_id"])
	require.Equal(t, "miss", fields["cache"])
}

func TestCacheHitBypassesLimiterAndCountsAsSuccess(t *testing.T) {
	h := newHarness(t, 1, echo)

	_, err := h.gw.Infer(context.Background(), "demo", "hello")
	require.NoError(t, err)

	// Quota is exhausted, but the cached prompt is still served.
	res, err := h.gw.Infer(context.Background(), "demo", "hello")
	require.NoError(t, err)
	require.True(t, res.Cached)
	require.Equal(t, "echo: hello", res.Text)
	require.Equal(t, 1, h.backend.Calls())

	s := h.gw.Snapshot()
	require.EqualValues(t, 2, s.TotalRequests)
	require.EqualValues(t, 2, s.SuccessfulRequests)

	recs := h.recorder.All()
	require.Len(t, recs, 2)
	require.Equal(t, models.OutcomeCacheHit, recs[1].Outcome)

	_, err = h.gw.Infer(context.Background(), "demo", "something new")
	var le *ratelimit.LimitError
	require.ErrorAs(t, err, &le)
	require.Equal(t, 1, le.Quota)
}

func TestRateLimitedAttemptNotRecorded(t *testing.T) {
	h := newHarness(t, 2, echo)

	for _, p := range []string{"a", "b"} {
		_, err := h.gw.Infer(context.Background(), "demo", p)
		require.NoError(t, err)
	}
	_, err := h.gw.Infer(context.Background(), "demo", "c")
	require.ErrorIs(t, err, ratelimit.ErrLimited)

	require.EqualValues(t, 2, h.gw.Snapshot().TotalRequests)
	require.Len(t, h.recorder.All(), 2)
	require.Equal(t, 2, h.backend.Calls())
}

func TestValidationRejectsBeforeBackend(t *testing.T) {
	h := newHarness(t, 10, echo)

	for _, p := range []string{"", strings.Repeat("x", models.MaxPromptLength+1)} {
		_, err := h.gw.Infer(context.Background(), "demo", p)
		var ve *models.ValidationError
		require.ErrorAs(t, err, &ve)
	}
	require.Equal(t, 0, h.backend.Calls())
	require.EqualValues(t, 0, h.gw.Snapshot().TotalRequests)

	_, err := h.gw.Infer(context.Background(), "demo", strings.Repeat("é", models.MaxPromptLength))
	require.NoError(t, err)
}

func TestBackendFailureIsGeneric(t *testing.T) {
	h := newHarness(t, 10, func(context.Context, string) (string, error) {
		return "", errors.New("connection refused: 10.0.0.5:11434")
	})

	_, err := h.gw.Infer(context.Background(), "demo", "hello")
	require.ErrorIs(t, err, ErrBackend)
	require.NotContains(t, err.Error(), "10.0.0.5")

	s := h.gw.Snapshot()
	require.EqualValues(t, 1, s.TotalRequests)
	require.EqualValues(t, 1, s.FailedRequests)

	entries := h.logs.FilterMessage("inference failed").All()
	require.Len(t, entries, 1)
	require.Contains(t, entries[0].ContextMap()["error"], "connection refused")

	recs := h.recorder.All()
	require.Len(t, recs, 1)
	require.Equal(t, models.OutcomeFailure, recs[0].Outcome)

	// Failures are not cached.
	require.Equal(t, 0, h.gw.CacheStats().Entries)
}

func TestBackendTimeoutCountsAsFailure(t *testing.T) {
	h := newHarness(t, 10, func(ctx context.Context, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	h.gw.timeout = 10 * time.Millisecond

	_, err := h.gw.Infer(context.Background(), "demo", "hello")
	require.ErrorIs(t, err, ErrBackend)
	require.EqualValues(t, 1, h.gw.Snapshot().FailedRequests)
}

func TestCallerCancelProducesNoMetrics(t *testing.T) {
	started := make(chan struct{})
	h := newHarness(t, 10, func(ctx context.Context, _ string) (string, error) {
		close(started)
		<-ctx.Done()
		return "", ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	_, err := h.gw.Infer(ctx, "demo", "hello")
	require.ErrorIs(t, err, context.Canceled)

	s := h.gw.Snapshot()
	require.EqualValues(t, 0, s.TotalRequests)
	require.Empty(t, h.recorder.All())
}

func TestConcurrentInferKeepsCountsConsistent(t *testing.T) {
	h := newHarness(t, 1000, func(_ context.Context, p string) (string, error) {
		if strings.HasSuffix(p, "7") {
			return "", errors.New("boom")
		}
		return p, nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = h.gw.Infer(context.Background(), "demo", "prompt-"+string(rune('0'+i%10)))
		}(i)
	}
	wg.Wait()

	s := h.gw.Snapshot()
	require.EqualValues(t, 50, s.TotalRequests)
	require.Equal(t, s.TotalRequests, s.SuccessfulRequests+s.FailedRequests)
	require.EqualValues(t, 5, s.FailedRequests)
}
