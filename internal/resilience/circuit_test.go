package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clockBreaker returns a breaker whose clock the test controls.
func clockBreaker(cfg CircuitBreakerConfig) (*CircuitBreaker, *time.Time) {
	cb := NewCircuitBreaker(cfg)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cb.now = func() time.Time { return now }
	return cb, &now
}

func failCall(context.Context) (int, error) {
	return 0, eris.New("census: connection refused")
}

func okCall(context.Context) (int, error) {
	return 7, nil
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	cb, _ := clockBreaker(CircuitBreakerConfig{FailureThreshold: 3, ResetTimeout: time.Minute})

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err := ExecuteVal(ctx, cb, failCall)
		require.Error(t, err)
		assert.Equal(t, CircuitClosed, cb.State())
	}

	_, err := ExecuteVal(ctx, cb, failCall)
	require.Error(t, err)
	assert.Equal(t, CircuitOpen, cb.State())
}

func TestBreakerRejectsWhileOpen(t *testing.T) {
	cb, _ := clockBreaker(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Minute})

	ctx := context.Background()
	_, err := ExecuteVal(ctx, cb, failCall)
	require.Error(t, err)

	calls := 0
	_, err = ExecuteVal(ctx, cb, func(context.Context) (int, error) {
		calls++
		return 0, nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 0, calls, "an open breaker must not reach the provider")
}

func TestBreakerSuccessClearsFailureRun(t *testing.T) {
	cb, _ := clockBreaker(CircuitBreakerConfig{FailureThreshold: 2, ResetTimeout: time.Minute})

	ctx := context.Background()
	_, err := ExecuteVal(ctx, cb, failCall)
	require.Error(t, err)

	val, err := ExecuteVal(ctx, cb, okCall)
	require.NoError(t, err)
	assert.Equal(t, 7, val)

	// The earlier failure no longer counts toward the threshold.
	_, err = ExecuteVal(ctx, cb, failCall)
	require.Error(t, err)
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestBreakerProbeAfterResetTimeout(t *testing.T) {
	cb, now := clockBreaker(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Minute})

	ctx := context.Background()
	_, err := ExecuteVal(ctx, cb, failCall)
	require.Error(t, err)
	assert.Equal(t, CircuitOpen, cb.State())

	*now = now.Add(2 * time.Minute)
	assert.Equal(t, CircuitHalfOpen, cb.State())

	val, err := ExecuteVal(ctx, cb, okCall)
	require.NoError(t, err)
	assert.Equal(t, 7, val)
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestBreakerFailedProbeReopens(t *testing.T) {
	cb, now := clockBreaker(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Minute})

	ctx := context.Background()
	_, err := ExecuteVal(ctx, cb, failCall)
	require.Error(t, err)

	*now = now.Add(2 * time.Minute)
	_, err = ExecuteVal(ctx, cb, failCall)
	require.Error(t, err)
	assert.Equal(t, CircuitOpen, cb.State())

	// The failed probe restarts the cooldown from its own timestamp.
	_, err = ExecuteVal(ctx, cb, okCall)
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestServiceBreakersIsolateProviders(t *testing.T) {
	sb := NewServiceBreakers(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Hour})

	ctx := context.Background()
	_, err := ExecuteVal(ctx, sb.Get("census"), failCall)
	require.Error(t, err)

	assert.Equal(t, CircuitOpen, sb.Get("census").State())
	assert.Equal(t, CircuitClosed, sb.Get("google").State())
}

func TestServiceBreakersGetReturnsSameBreaker(t *testing.T) {
	sb := NewServiceBreakers(DefaultCircuitBreakerConfig())
	assert.Same(t, sb.Get("census"), sb.Get("census"))
}

func TestFromCircuitConfig(t *testing.T) {
	cfg := FromCircuitConfig(10, 120)
	assert.Equal(t, 10, cfg.FailureThreshold)
	assert.Equal(t, 2*time.Minute, cfg.ResetTimeout)

	assert.Equal(t, DefaultCircuitBreakerConfig(), FromCircuitConfig(0, 0))
}

func TestCircuitStateString(t *testing.T) {
	assert.Equal(t, "closed", CircuitClosed.String())
	assert.Equal(t, "open", CircuitOpen.String())
	assert.Equal(t, "half-open", CircuitHalfOpen.String())
	assert.Equal(t, "unknown", CircuitState(99).String())
}
