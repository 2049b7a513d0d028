package automation

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisGuard is a FiredGuard backed by Redis SET NX. Entries expire after ttl,
// after which a replayed event may fire again.
type RedisGuard struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisGuard creates a guard. A non-positive ttl defaults to seven days.
func NewRedisGuard(client *redis.Client, ttl time.Duration) *RedisGuard {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &RedisGuard{client: client, ttl: ttl}
}

func firedKey(ruleID, leadID, eventID string) string {
	return fmt.Sprintf("fired:%s:%s:%s", ruleID, leadID, eventID)
}

// FirstFire records the (rule, lead, event) triple and reports whether it was
// new.
func (g *RedisGuard) FirstFire(ctx context.Context, ruleID, leadID, eventID string) (bool, error) {
	ok, err := g.client.SetNX(ctx, firedKey(ruleID, leadID, eventID), time.Now().Unix(), g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("record fire %s: %w", ruleID, err)
	}
	return ok, nil
}

// Forget removes a recorded fire so the rule may fire again for the event.
func (g *RedisGuard) Forget(ctx context.Context, ruleID, leadID, eventID string) error {
	return g.client.Del(ctx, firedKey(ruleID, leadID, eventID)).Err()
}
