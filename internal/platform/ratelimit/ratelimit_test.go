package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLimiter_AllowRespectsBurst(t *testing.T) {
	l := New(Config{RequestsPerSecond: 1, Burst: 2})
	require.True(t, l.Allow())
	require.True(t, l.Allow())
	require.False(t, l.Allow())
}

func TestLimiter_WaitUnblocksWithinDeadline(t *testing.T) {
	l := New(Config{RequestsPerSecond: 1000, Burst: 5})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, l.Wait(ctx))
}

func TestLimiter_NilLimiterIsPermissive(t *testing.T) {
	var l *Limiter
	require.True(t, l.Allow())
	require.NoError(t, l.Wait(context.Background()))
}

func TestDefaultConfig_FillsBurstFromRate(t *testing.T) {
	l := New(Config{})
	require.NotNil(t, l)
	require.Equal(t, 100, l.limiter.Burst())
}
