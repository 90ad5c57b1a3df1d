package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func failing() error { return errBoom }
func succeeding() error { return nil }

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	b := NewBreaker("test", 3, time.Minute)
	for i := 0; i < 3; i++ {
		require.ErrorIs(t, b.Do(failing), errBoom)
	}
	require.Equal(t, Open, b.CurrentState())
	require.ErrorIs(t, b.Do(succeeding), ErrOpen)
}

func TestBreakerSuccessResetsFailureRun(t *testing.T) {
	b := NewBreaker("test", 3, time.Minute)
	require.ErrorIs(t, b.Do(failing), errBoom)
	require.ErrorIs(t, b.Do(failing), errBoom)
	require.NoError(t, b.Do(succeeding))
	require.ErrorIs(t, b.Do(failing), errBoom)
	require.Equal(t, Closed, b.CurrentState())
}

func TestBreakerRecoversThroughHalfOpen(t *testing.T) {
	now := time.Now()
	b := NewBreaker("test", 1, 10*time.Second)
	b.Now = func() time.Time { return now }

	require.ErrorIs(t, b.Do(failing), errBoom)
	require.Equal(t, Open, b.CurrentState())

	// Still inside the cool-off window.
	require.ErrorIs(t, b.Do(succeeding), ErrOpen)

	now = now.Add(11 * time.Second)
	require.NoError(t, b.Do(succeeding))
	require.Equal(t, Closed, b.CurrentState())
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	now := time.Now()
	b := NewBreaker("test", 1, 10*time.Second)
	b.Now = func() time.Time { return now }

	require.ErrorIs(t, b.Do(failing), errBoom)
	now = now.Add(11 * time.Second)
	require.ErrorIs(t, b.Do(failing), errBoom)
	require.Equal(t, Open, b.CurrentState())
	require.ErrorIs(t, b.Do(succeeding), ErrOpen)
}
