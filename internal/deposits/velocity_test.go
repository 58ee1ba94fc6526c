package deposits

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return client, mr
}

func TestVelocityChecker_CheckDepositVelocity(t *testing.T) {
	client, _ := setupTestRedis(t)
	checker := NewVelocityChecker(client, VelocityConfig{MaxPerWindow: 3, Window: time.Hour}, nil)
	ctx := context.Background()

	tests := []struct {
		name        string
		providerID  string
		attempts    int
		wantAllowed bool
	}{
		{"first attempt allowed", "prov-1", 1, true},
		{"at limit allowed", "prov-2", 3, true},
		{"over limit blocked", "prov-3", 4, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var result *VelocityResult
			var err error
			for i := 0; i < tt.attempts; i++ {
				result, err = checker.CheckDepositVelocity(ctx, tt.providerID)
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantAllowed, result.Allowed)
			assert.Equal(t, tt.attempts, result.CurrentCount)
			assert.Equal(t, 3, result.MaxAllowed)
			if !tt.wantAllowed {
				assert.Contains(t, result.Message, "exceeded")
			}
		})
	}
}

func TestVelocityChecker_WindowExpires(t *testing.T) {
	client, mr := setupTestRedis(t)
	checker := NewVelocityChecker(client, VelocityConfig{MaxPerWindow: 1, Window: time.Hour}, nil)
	ctx := context.Background()

	_, _ = checker.CheckDepositVelocity(ctx, "prov-1")
	result, _ := checker.CheckDepositVelocity(ctx, "prov-1")
	assert.False(t, result.Allowed)

	mr.FastForward(2 * time.Hour)

	result, err := checker.CheckDepositVelocity(ctx, "prov-1")
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, 1, result.CurrentCount)
}

func TestVelocityChecker_Reset(t *testing.T) {
	client, _ := setupTestRedis(t)
	checker := NewVelocityChecker(client, VelocityConfig{MaxPerWindow: 1, Window: time.Hour}, nil)
	ctx := context.Background()

	_, _ = checker.CheckDepositVelocity(ctx, "prov-1")
	require.NoError(t, checker.Reset(ctx, "prov-1"))

	result, err := checker.CheckDepositVelocity(ctx, "prov-1")
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestVelocityChecker_FailsOpen(t *testing.T) {
	client, mr := setupTestRedis(t)
	checker := NewVelocityChecker(client, VelocityConfig{MaxPerWindow: 1, Window: time.Hour}, nil)
	mr.Close()

	result, err := checker.CheckDepositVelocity(context.Background(), "prov-1")
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, "velocity check unavailable", result.Message)
}

func TestVelocityChecker_NilClient(t *testing.T) {
	checker := NewVelocityChecker(nil, VelocityConfig{}, nil)
	result, err := checker.CheckDepositVelocity(context.Background(), "prov-1")
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}
