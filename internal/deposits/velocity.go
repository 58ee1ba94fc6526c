package deposits

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/paasforest/proconnect-access/pkg/logging"
)

var tracer = otel.Tracer("proconnect.deposits")

// VelocityConfig bounds how many deposit requests one provider may open.
type VelocityConfig struct {
	MaxPerWindow int
	Window       time.Duration
}

// DefaultVelocityConfig allows five requests per provider per day.
func DefaultVelocityConfig() VelocityConfig {
	return VelocityConfig{MaxPerWindow: 5, Window: 24 * time.Hour}
}

// VelocityResult contains the result of a velocity check.
type VelocityResult struct {
	Allowed      bool
	CurrentCount int
	MaxAllowed   int
	WindowExpiry time.Time
	Message      string
}

// VelocityChecker counts deposit requests per provider in Redis.
type VelocityChecker struct {
	redis  *redis.Client
	logger *logging.Logger
	config VelocityConfig
}

func NewVelocityChecker(redisClient *redis.Client, config VelocityConfig, logger *logging.Logger) *VelocityChecker {
	if logger == nil {
		logger = logging.Default()
	}
	if config.MaxPerWindow <= 0 || config.Window <= 0 {
		config = DefaultVelocityConfig()
	}
	return &VelocityChecker{redis: redisClient, logger: logger, config: config}
}

func velocityKey(providerID string) string {
	return fmt.Sprintf("velocity:deposit:%s", providerID)
}

// CheckDepositVelocity counts this attempt. Redis errors fail open.
func (v *VelocityChecker) CheckDepositVelocity(ctx context.Context, providerID string) (*VelocityResult, error) {
	ctx, span := tracer.Start(ctx, "velocity.check_deposit")
	defer span.End()
	span.SetAttributes(attribute.String("proconnect.provider_id", providerID))

	if v.redis == nil {
		return &VelocityResult{Allowed: true, Message: "velocity check disabled"}, nil
	}

	key := velocityKey(providerID)
	count, expiry, err := v.incrementAndGet(ctx, key, v.config.Window)
	if err != nil {
		v.logger.Error("velocity check failed", "error", err, "key", key)
		return &VelocityResult{Allowed: true, Message: "velocity check unavailable"}, nil
	}

	result := &VelocityResult{
		Allowed:      count <= v.config.MaxPerWindow,
		CurrentCount: count,
		MaxAllowed:   v.config.MaxPerWindow,
		WindowExpiry: expiry,
	}
	if !result.Allowed {
		result.Message = fmt.Sprintf("exceeded %d deposit requests in %s", v.config.MaxPerWindow, v.config.Window)
		v.logger.Warn("deposit velocity exceeded",
			"provider_id", providerID,
			"count", count,
			"max", v.config.MaxPerWindow,
		)
		span.SetAttributes(attribute.Bool("velocity.exceeded", true))
	}
	return result, nil
}

func (v *VelocityChecker) incrementAndGet(ctx context.Context, key string, window time.Duration) (int, time.Time, error) {
	count, err := v.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, time.Time{}, err
	}
	if count == 1 {
		v.redis.Expire(ctx, key, window)
	}
	ttl, err := v.redis.TTL(ctx, key).Result()
	if err != nil || ttl < 0 {
		ttl = window
	}
	return int(count), time.Now().Add(ttl), nil
}

// Reset clears the counter for a provider (admin use).
func (v *VelocityChecker) Reset(ctx context.Context, providerID string) error {
	if v.redis == nil {
		return nil
	}
	return v.redis.Del(ctx, velocityKey(providerID)).Err()
}
