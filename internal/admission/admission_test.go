package admission

import (
	"context"
	"fmt"
	"net"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/linematch/pkg/config"
	pkgredis "github.com/Adithya-Monish-Kumar-K/linematch/pkg/redis"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func TestMemoryLimiterTokenBucket(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	l := NewMemoryLimiter(3, time.Second)
	l.now = clock.now
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := l.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, ok, "request %d within budget", i)
	}
	ok, _ := l.Allow(ctx, "10.0.0.1")
	assert.False(t, ok, "fourth request exceeds budget")

	ok, _ = l.Allow(ctx, "10.0.0.2")
	assert.True(t, ok, "clients have independent budgets")

	clock.t = clock.t.Add(400 * time.Millisecond)
	ok, _ = l.Allow(ctx, "10.0.0.1")
	assert.True(t, ok, "one token refilled after a third of the window")
	ok, _ = l.Allow(ctx, "10.0.0.1")
	assert.False(t, ok)
}

func TestMemoryLimiterSweepsIdleClients(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	l := NewMemoryLimiter(1, time.Second)
	l.now = clock.now
	l.lastSweep = clock.t

	for i := 0; i < 5; i++ {
		_, _ = l.Allow(context.Background(), fmt.Sprintf("10.0.0.%d", i))
	}
	assert.Equal(t, 5, l.Len())

	clock.t = clock.t.Add(3 * time.Second)
	_, _ = l.Allow(context.Background(), "10.0.0.99")
	assert.Equal(t, 1, l.Len())
}

func TestClientKey(t *testing.T) {
	assert.Equal(t, "127.0.0.1", ClientKey(&net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 5555}))
	assert.Equal(t, "::1", ClientKey(&net.TCPAddr{IP: net.IPv6loopback, Port: 80}))
	assert.Equal(t, "unknown", ClientKey(nil))
}

func TestNewSelectsBackend(t *testing.T) {
	l, err := New(config.AdmissionConfig{Backend: "memory", Limit: 1, Window: time.Second}, nil, "")
	require.NoError(t, err)
	assert.IsType(t, &MemoryLimiter{}, l)

	_, err = New(config.AdmissionConfig{Backend: "redis", Limit: 1, Window: time.Second}, nil, "")
	assert.Error(t, err)

	_, err = New(config.AdmissionConfig{Backend: "etcd"}, nil, "")
	assert.Error(t, err)
}

// skipIfNoRedis skips the test when Redis is unavailable.
func skipIfNoRedis(t *testing.T) *pkgredis.Client {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client, err := pkgredis.NewClient(config.RedisConfig{Addr: addr, PoolSize: 2})
	if err != nil {
		t.Skipf("skipping redis test: redis unavailable: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRedisLimiterFixedWindow(t *testing.T) {
	client := skipIfNoRedis(t)
	prefix := fmt.Sprintf("linematch:test:%d:", time.Now().UnixNano())
	l := NewRedisLimiter(client, prefix, 2, 500*time.Millisecond)
	ctx := context.Background()
	t.Cleanup(func() { client.Del(context.Background(), prefix+"10.1.1.1") })

	for i := 0; i < 2; i++ {
		ok, err := l.Allow(ctx, "10.1.1.1")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := l.Allow(ctx, "10.1.1.1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.Eventually(t, func() bool {
		ok, err := l.Allow(ctx, "10.1.1.1")
		return err == nil && ok
	}, 3*time.Second, 100*time.Millisecond, "window expires")
}
