package admission

import (
	"context"
	"time"

	pkgredis "github.com/Adithya-Monish-Kumar-K/linematch/pkg/redis"
)

// RedisLimiter is a fixed-window counter shared by every server instance
// pointing at the same Redis.
type RedisLimiter struct {
	client *pkgredis.Client
	prefix string
	limit  int
	window time.Duration
}

func NewRedisLimiter(client *pkgredis.Client, prefix string, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		prefix: prefix,
		limit:  limit,
		window: window,
	}
}

// Allow counts the connection in the client's current window. On Redis
// errors the connection is admitted and the error returned for logging.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	n, err := l.client.IncrWindow(ctx, l.prefix+key, l.window)
	if err != nil {
		return true, err
	}
	return n <= int64(l.limit), nil
}
