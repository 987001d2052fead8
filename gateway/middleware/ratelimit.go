package middleware

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"shardgate/observability"
)

const visitorTTL = 5 * time.Minute

// RateLimit bounds one caller. RatePerSecond wins over RequestsPerMinute when both are set.
// An empty Paths list applies the limit to every path.
type RateLimit struct {
	ID                string
	RatePerSecond     float64
	RequestsPerMinute float64
	Burst             int
	Paths             []string
}

func (l RateLimit) perSecond() float64 {
	if l.RatePerSecond > 0 {
		return l.RatePerSecond
	}
	if l.RequestsPerMinute > 0 {
		return l.RequestsPerMinute / 60.0
	}
	return 1
}

func (l RateLimit) matches(path string) bool {
	if len(l.Paths) == 0 {
		return true
	}
	for _, prefix := range l.Paths {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

type rateEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type RateLimiter struct {
	logger   *slog.Logger
	limits   []RateLimit
	mu       sync.Mutex
	visitors map[string]*rateEntry
	lastGC   time.Time
	clockNow func() time.Time
}

func NewRateLimiter(limits []RateLimit, logger *slog.Logger) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &RateLimiter{
		logger:   logger,
		limits:   limits,
		visitors: make(map[string]*rateEntry),
		clockNow: time.Now,
	}
}

// Middleware applies every limit whose paths match the request, per caller.
func (r *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		identifier := clientID(req)
		for _, limit := range r.limits {
			if !limit.matches(req.URL.Path) {
				continue
			}
			limiter := r.obtainLimiter(limit.ID+"|"+identifier, limit)
			reservation := limiter.ReserveN(r.clockNow(), 1)
			if !reservation.OK() {
				r.reject(w, req, limit, time.Second)
				return
			}
			if delay := reservation.DelayFrom(r.clockNow()); delay > 0 {
				reservation.CancelAt(r.clockNow())
				r.reject(w, req, limit, delay)
				return
			}
		}
		next.ServeHTTP(w, req)
	})
}

func (r *RateLimiter) reject(w http.ResponseWriter, req *http.Request, limit RateLimit, retry time.Duration) {
	observability.RPC().RecordThrottle("rate_limit")
	r.logger.Debug("request rate limited", "limit", limit.ID, "path", req.URL.Path)
	w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retry.Seconds()))))
	http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
}

func (r *RateLimiter) obtainLimiter(id string, cfg RateLimit) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.clockNow()
	r.sweep(now)
	entry, ok := r.visitors[id]
	if ok {
		entry.lastSeen = now
		return entry.limiter
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(cfg.perSecond()), burst)
	r.visitors[id] = &rateEntry{limiter: limiter, lastSeen: now}
	return limiter
}

// sweep drops idle visitors at most once per TTL. Callers hold r.mu.
func (r *RateLimiter) sweep(now time.Time) {
	if now.Sub(r.lastGC) < visitorTTL {
		return
	}
	r.lastGC = now
	for id, entry := range r.visitors {
		if now.Sub(entry.lastSeen) > visitorTTL {
			delete(r.visitors, id)
		}
	}
}

func clientID(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return "key:" + key
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first := strings.TrimSpace(strings.Split(forwarded, ",")[0])
		if parsed := net.ParseIP(first); parsed != nil {
			return parsed.String()
		}
		return first
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
