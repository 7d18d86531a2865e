package dedupe

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduper persists idempotency markers for processed sent-message events.
type Deduper struct {
	rdb *redis.Client
}

func NewDeduper(rdb *redis.Client) *Deduper {
	return &Deduper{rdb: rdb}
}

// AcquireOnce tries to set the marker for one (provider, user, message)
// event. Returns true if this is the FIRST time processing, false on a
// duplicate. When redis is unavailable we let the event through rather than
// drop it.
func (d *Deduper) AcquireOnce(ctx context.Context, provider string, userID int, messageID string, ttl time.Duration) bool {
	key := fmt.Sprintf("sentdedup:%s:%d:%s", provider, userID, messageID)

	ok, err := d.rdb.SetNX(ctx, key, 1, ttl).Result()
	if err != nil {
		return true
	}
	return ok
}
