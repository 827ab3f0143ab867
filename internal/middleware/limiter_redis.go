package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// INCR и PEXPIRE в одном скрипте, чтобы окно не осталось без TTL
var fixedWindowScript = redis.NewScript(`
local current = redis.call('INCR', KEYS[1])
if current == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
return {current, ttl}
`)

// RedisLimiter - фиксированное окно в Redis, общее для всех экземпляров сервиса
type RedisLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	prefix string
}

func NewRedisLimiter(client *redis.Client, rpm int, prefix string) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		limit:  rpm,
		window: time.Minute,
		prefix: prefix,
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	now := time.Now()

	res, err := fixedWindowScript.Run(ctx, l.client, []string{l.prefix + key}, l.window.Milliseconds()).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("скрипт лимита запросов: %w", err)
	}
	if len(res) != 2 {
		return Decision{}, fmt.Errorf("неожиданный ответ скрипта: %v", res)
	}

	current, ttl := res[0], res[1]
	if ttl < 0 {
		ttl = l.window.Milliseconds()
	}

	return Decision{
		Allowed:   current <= int64(l.limit),
		Limit:     l.limit,
		Remaining: max(l.limit-int(current), 0),
		ResetAt:   now.Add(time.Duration(ttl) * time.Millisecond),
	}, nil
}
