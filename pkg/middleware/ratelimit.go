package middleware

import (
	"context"
	"log"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis_rate/v10"
	"golang.org/x/time/rate"

	"github.com/ngoyal88/auditrelay/pkg/cache"
	"github.com/ngoyal88/auditrelay/pkg/config"
)

// NewRateLimiter creates a middleware that limits requests per client IP.
// With a Redis client the budget is shared by every replica through
// redis_rate; otherwise each process keeps its own token buckets. The
// limits are read from config on every request, so a reload applies at once.
func NewRateLimiter(rdb *cache.Client, cfgs config.Source) func(http.Handler) http.Handler {
	var allow func(ctx context.Context, key string, rl config.RateLimitConfig) (bool, time.Duration)
	if rdb != nil {
		allow = redisAllower(redis_rate.NewLimiter(rdb.Redis()))
	} else {
		allow = newLocalLimiters().allow
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rl := cfgs.Get().RateLimit
			if !rl.Enabled || rl.RPS <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			ok, retryAfter := allow(r.Context(), clientKey(r), rl)
			if !ok {
				rateLimited.Inc()
				if retryAfter > 0 {
					w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
				}
				SetCORS(w.Header())
				RespondError(w, http.StatusTooManyRequests, "rate_limited")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func redisAllower(limiter *redis_rate.Limiter) func(context.Context, string, config.RateLimitConfig) (bool, time.Duration) {
	return func(ctx context.Context, key string, rl config.RateLimitConfig) (bool, time.Duration) {
		limit := redis_rate.Limit{
			Rate:   max(int(math.Ceil(rl.RPS)), 1),
			Burst:  max(rl.Burst, 1),
			Period: time.Second,
		}
		res, err := limiter.Allow(ctx, "ratelimit:"+key, limit)
		if err != nil {
			// Fail open: limiting is a courtesy, the proxy keeps working.
			log.Printf("[PROXY] rate limiter unavailable: %v", err)
			return true, 0
		}
		return res.Allowed > 0, res.RetryAfter
	}
}

// Idle clients are forgotten after limiterIdleTTL; the sweep runs at most
// once per limiterSweepEvery, on the request path.
const (
	limiterIdleTTL    = 10 * time.Minute
	limiterSweepEvery = time.Minute
)

type localLimiters struct {
	mu        sync.Mutex
	limiters  map[string]*clientLimiter
	now       func() time.Time
	lastSweep time.Time
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newLocalLimiters() *localLimiters {
	return &localLimiters{limiters: make(map[string]*clientLimiter), now: time.Now}
}

func (l *localLimiters) allow(_ context.Context, key string, rl config.RateLimitConfig) (bool, time.Duration) {
	burst := max(rl.Burst, 1)

	l.mu.Lock()
	now := l.now()
	l.sweep(now)
	c, ok := l.limiters[key]
	if !ok {
		c = &clientLimiter{limiter: rate.NewLimiter(rate.Limit(rl.RPS), burst)}
		l.limiters[key] = c
	} else if c.limiter.Limit() != rate.Limit(rl.RPS) || c.limiter.Burst() != burst {
		c.limiter.SetLimitAt(now, rate.Limit(rl.RPS))
		c.limiter.SetBurstAt(now, burst)
	}
	c.lastSeen = now
	l.mu.Unlock()

	res := c.limiter.ReserveN(now, 1)
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// sweep drops limiters idle for longer than limiterIdleTTL. Callers hold mu.
func (l *localLimiters) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < limiterSweepEvery {
		return
	}
	l.lastSweep = now
	for key, c := range l.limiters {
		if now.Sub(c.lastSeen) > limiterIdleTTL {
			delete(l.limiters, key)
		}
	}
}

func (l *localLimiters) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
