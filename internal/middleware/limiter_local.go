package middleware

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const idleClientTTL = 10 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// LocalLimiter - token bucket на клиента в памяти процесса: rpm токенов, пополнение равномерно за минуту
type LocalLimiter struct {
	rpm       int
	mtx       sync.Mutex
	clients   map[string]*visitor
	now       func() time.Time
	lastSweep time.Time
}

func NewLocalLimiter(rpm int) *LocalLimiter {
	if rpm < 1 {
		rpm = 1
	}
	return &LocalLimiter{
		rpm:     rpm,
		clients: make(map[string]*visitor),
		now:     time.Now,
	}
}

func (l *LocalLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}

	now := l.now()

	l.mtx.Lock()
	defer l.mtx.Unlock()

	l.sweep(now)

	v, ok := l.clients[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(l.rpm)), l.rpm)}
		l.clients[key] = v
	}
	v.lastSeen = now

	allowed := v.limiter.AllowN(now, 1)
	tokens := v.limiter.TokensAt(now)

	decision := Decision{
		Allowed:   allowed,
		Limit:     l.rpm,
		Remaining: int(tokens),
		ResetAt:   now,
	}
	if tokens < 1 {
		wait := time.Duration((1 - tokens) * float64(time.Minute/time.Duration(l.rpm)))
		decision.ResetAt = now.Add(wait)
	}
	return decision, nil
}

// sweep выбрасывает клиентов, которых не было дольше idleClientTTL. Вызывается под мьютексом.
func (l *LocalLimiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < idleClientTTL {
		return
	}
	l.lastSweep = now
	for key, v := range l.clients {
		if now.Sub(v.lastSeen) > idleClientTTL {
			delete(l.clients, key)
		}
	}
}
