// Package admission decides whether a newly accepted connection may be
// served, based on how many connections its client opened recently.
package admission

import (
	"context"
	"fmt"
	"net"

	"github.com/Adithya-Monish-Kumar-K/linematch/pkg/config"
	pkgredis "github.com/Adithya-Monish-Kumar-K/linematch/pkg/redis"
)

// Limiter admits or rejects a connection from the client identified by key.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// ClientKey reduces a remote address to the client host, so that every
// connection from one host shares a budget.
func ClientKey(addr net.Addr) string {
	if addr == nil {
		return "unknown"
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}

// New builds the limiter selected by cfg.Backend. redisClient is only used
// by the redis backend and may be nil otherwise.
func New(cfg config.AdmissionConfig, redisClient *pkgredis.Client, keyPrefix string) (Limiter, error) {
	switch cfg.Backend {
	case "memory":
		return NewMemoryLimiter(cfg.Limit, cfg.Window), nil
	case "redis":
		if redisClient == nil {
			return nil, fmt.Errorf("admission backend redis requires a redis client")
		}
		return NewRedisLimiter(redisClient, keyPrefix, cfg.Limit, cfg.Window), nil
	default:
		return nil, fmt.Errorf("unknown admission backend %q", cfg.Backend)
	}
}
