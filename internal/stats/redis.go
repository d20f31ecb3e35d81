// Package stats keeps best-effort per-trigger firing counters in Redis so
// configuration screens can show how often each trigger fires. Counters are
// bucketed per day and expire after a retention window; losing them never
// affects trigger evaluation.
package stats

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/jemiko1/crm-triggers/internal/domain"
)

// DefaultRetention is how long daily counters are kept.
const DefaultRetention = 30 * 24 * time.Hour

// RedisSink increments a daily counter per trigger. All errors are logged
// and swallowed; recording is fire-and-forget.
type RedisSink struct {
	client    *redis.Client
	retention time.Duration
	logger    *zap.Logger
	clock     func() time.Time
}

// NewRedisSink creates a RedisSink. A retention of 0 uses DefaultRetention.
func NewRedisSink(client *redis.Client, retention time.Duration, logger *zap.Logger) *RedisSink {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &RedisSink{
		client:    client,
		retention: retention,
		logger:    logger,
		clock:     time.Now,
	}
}

// FiringRecorded increments today's counter for the trigger.
func (s *RedisSink) FiringRecorded(ctx context.Context, triggerID uuid.UUID, triggerType domain.TriggerType) {
	key := firingKey(triggerID, triggerType, s.clock())

	pipe := s.client.Pipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, s.retention)

	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Warn("stats: firing counter update failed",
			zap.String("trigger_id", triggerID.String()), zap.Error(err))
	}
}

// FiringsOn returns the counter value for the trigger on the given day.
func (s *RedisSink) FiringsOn(ctx context.Context, triggerID uuid.UUID, triggerType domain.TriggerType, day time.Time) (int64, error) {
	n, err := s.client.Get(ctx, firingKey(triggerID, triggerType, day)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("stats: read counter: %w", err)
	}
	return n, nil
}

func firingKey(triggerID uuid.UUID, triggerType domain.TriggerType, t time.Time) string {
	return fmt.Sprintf("trg:%s:%s:%s", triggerID, triggerType, t.UTC().Format("20060102"))
}
