package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64
}

// RateLimiter limita requisições por IP de origem. Excesso recebe 429.
type RateLimiter struct {
	rps      rate.Limit
	burst    int
	idleTTL  time.Duration
	limiters sync.Map // map[string]*ipLimiter
	Now      func() time.Time
}

func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return &RateLimiter{
		rps:     rate.Limit(rps),
		burst:   burst,
		idleTTL: 30 * time.Minute,
		Now:     time.Now,
	}
}

func (l *RateLimiter) limiterFor(ip string) *ipLimiter {
	if v, ok := l.limiters.Load(ip); ok {
		return v.(*ipLimiter)
	}
	v, _ := l.limiters.LoadOrStore(ip, &ipLimiter{limiter: rate.NewLimiter(l.rps, l.burst)})
	return v.(*ipLimiter)
}

func (l *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := remoteIP(r)
		lim := l.limiterFor(ip)
		lim.lastSeen.Store(l.Now().UnixNano())

		if !lim.limiter.Allow() {
			log.Warn().Str("ip", ip).Msg("Limite de requisições excedido")
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded", "")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RunCleanup descarta limitadores de IPs sem tráfego recente.
func (l *RateLimiter) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.cleanup()
		}
	}
}

func (l *RateLimiter) cleanup() int {
	cutoff := l.Now().Add(-l.idleTTL).UnixNano()
	removed := 0
	l.limiters.Range(func(key, val any) bool {
		if val.(*ipLimiter).lastSeen.Load() < cutoff {
			l.limiters.Delete(key)
			removed++
		}
		return true
	})
	return removed
}

func remoteIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
