package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func TestExecutePassesThroughWhenClosed(t *testing.T) {
	cb := NewCircuitBreaker(DefaultConfig())

	err := cb.Execute(func() error { return nil })
	require.NoError(t, err)
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FailureThreshold = 3
	cb := NewCircuitBreaker(cfg)

	for i := 0; i < 3; i++ {
		err := cb.Execute(func() error { return errBoom })
		require.ErrorIs(t, err, errBoom)
	}

	err := cb.Execute(func() error {
		t.Fatal("fn must not run while the breaker is open")
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitBreakerOpen)
	assert.Equal(t, StateOpen, cb.GetState())
}

func TestSuccessResetsFailureCount(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FailureThreshold = 3
	cb := NewCircuitBreaker(cfg)

	cb.Execute(func() error { return errBoom })
	cb.Execute(func() error { return errBoom })
	cb.Execute(func() error { return nil })
	cb.Execute(func() error { return errBoom })
	cb.Execute(func() error { return errBoom })

	// never three consecutive failures, so still closed
	err := cb.Execute(func() error { return nil })
	assert.NoError(t, err)
}

func TestBreakerRecoversThroughHalfOpen(t *testing.T) {
	cfg := Config{
		FailureThreshold:    1,
		SuccessThreshold:    2,
		Timeout:             10 * time.Millisecond,
		HalfOpenMaxRequests: 3,
	}
	cb := NewCircuitBreaker(cfg)

	require.Error(t, cb.Execute(func() error { return errBoom }))
	require.ErrorIs(t, cb.Execute(func() error { return nil }), ErrCircuitBreakerOpen)

	time.Sleep(20 * time.Millisecond)

	require.NoError(t, cb.Execute(func() error { return nil }))
	require.NoError(t, cb.Execute(func() error { return nil }))
	require.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestReset(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FailureThreshold = 1
	cb := NewCircuitBreaker(cfg)

	cb.Execute(func() error { return errBoom })
	cb.Execute(func() error { return nil }) // trips the transition to open
	cb.Reset()

	assert.Equal(t, StateClosed, cb.GetState())
	assert.NoError(t, cb.Execute(func() error { return nil }))
}
