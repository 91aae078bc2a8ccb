package lock

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only if it still holds our token.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker holds leases as SET NX PX keys, for deployments running
// several sitesync processes against one knowledge base.
type RedisLocker struct {
	rdb    goredis.UniversalClient
	prefix string
}

// NewRedis returns a locker using keys "<prefix><companyID>". An empty
// prefix defaults to "sitesync:lock:".
func NewRedis(rdb goredis.UniversalClient, prefix string) *RedisLocker {
	if prefix == "" {
		prefix = "sitesync:lock:"
	}
	return &RedisLocker{rdb: rdb, prefix: prefix}
}

// Acquire takes the company's lock for ttl or returns ErrHeld.
func (l *RedisLocker) Acquire(ctx context.Context, companyID string, ttl time.Duration) (Lease, error) {
	token := newToken()
	key := l.prefix + companyID
	ok, err := l.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("lock: redis setnx %s: %w", key, err)
	}
	if !ok {
		return nil, ErrHeld
	}
	return &redisLease{rdb: l.rdb, key: key, token: token}, nil
}

type redisLease struct {
	rdb   goredis.UniversalClient
	key   string
	token string
}

func (r *redisLease) Token() string { return r.token }

func (r *redisLease) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, r.rdb, []string{r.key}, r.token).Err(); err != nil {
		return fmt.Errorf("lock: redis release %s: %w", r.key, err)
	}
	return nil
}

// DialRedis connects to addr and pings it.
func DialRedis(ctx context.Context, addr string) (*goredis.Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}
