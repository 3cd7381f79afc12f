package middleware

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/iudanet/finauth/internal/server/handlers"
)

// RateLimiter считает запросы клиента в фиксированном окне.
// Окно открывается первым запросом клиента и длится window.
type RateLimiter struct {
	logger  *slog.Logger
	clients map[string]*window
	done    chan struct{}
	now     func() time.Time
	trusted []netip.Prefix
	limit   int
	period  time.Duration
	mu      sync.Mutex
	once    sync.Once
}

// LimiterOption configures RateLimiter.
type LimiterOption func(*RateLimiter)

// WithTrustedProxies enables X-Forwarded-For and X-Real-IP for peers inside
// the given prefixes. Without it the limiter keys on the TCP peer only.
func WithTrustedProxies(prefixes []netip.Prefix) LimiterOption {
	return func(rl *RateLimiter) {
		rl.trusted = prefixes
	}
}

type window struct {
	start time.Time
	count int
}

// Decision is the outcome of a single Take.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// NewRateLimiter allows up to limit requests per client within each period.
func NewRateLimiter(limit int, period time.Duration, logger *slog.Logger, opts ...LimiterOption) *RateLimiter {
	rl := &RateLimiter{
		logger:  logger,
		clients: make(map[string]*window),
		done:    make(chan struct{}),
		now:     time.Now,
		limit:   limit,
		period:  period,
	}
	for _, opt := range opts {
		opt(rl)
	}
	go rl.sweepLoop()
	return rl
}

func (rl *RateLimiter) sweepLoop() {
	ticker := time.NewTicker(rl.period)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.sweep()
		case <-rl.done:
			return
		}
	}
}

// sweep забывает клиентов, чье окно уже закрылось
func (rl *RateLimiter) sweep() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for key, w := range rl.clients {
		if now.Sub(w.start) >= rl.period {
			delete(rl.clients, key)
		}
	}
}

// Stop terminates the background sweep. Safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.once.Do(func() { close(rl.done) })
}

// Take records one request for key and reports whether it fits the limit.
func (rl *RateLimiter) Take(key string) Decision {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	w, ok := rl.clients[key]
	if !ok || now.Sub(w.start) >= rl.period {
		w = &window{start: now}
		rl.clients[key] = w
	}

	if w.count >= rl.limit {
		return Decision{RetryAfter: w.start.Add(rl.period).Sub(now)}
	}

	w.count++
	return Decision{Allowed: true, Remaining: rl.limit - w.count}
}

// Allow is Take without the details.
func (rl *RateLimiter) Allow(key string) bool {
	return rl.Take(key).Allowed
}

// RateLimitMiddleware ограничивает частоту запросов по IP клиента.
// Один limiter может обслуживать несколько маршрутов, тогда лимит общий.
func RateLimitMiddleware(limiter *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := limiter.clientIP(r)
			d := limiter.Take(ip)

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limiter.limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))

			if !d.Allowed {
				limiter.logger.WarnContext(r.Context(), "rate limit exceeded",
					slog.String("ip", ip),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
				)
				w.Header().Set("Retry-After", retryAfterSeconds(d.RetryAfter))
				handlers.WriteError(w, limiter.logger, "rate limit exceeded, please try again later", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// retryAfterSeconds округляет вверх, минимум одна секунда
func retryAfterSeconds(d time.Duration) string {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

func (rl *RateLimiter) isTrusted(addr netip.Addr) bool {
	for _, p := range rl.trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// clientIP возвращает адрес TCP-пира. Заголовки прокси учитываются, только
// если пир из доверенной сети: X-Forwarded-For читается справа налево до
// первого недоверенного адреса, затем X-Real-IP.
func (rl *RateLimiter) clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	peer, err := netip.ParseAddr(host)
	if err != nil || !rl.isTrusted(peer.Unmap()) {
		return host
	}

	if xff := r.Header.Values("X-Forwarded-For"); len(xff) > 0 {
		hops := strings.Split(strings.Join(xff, ","), ",")
		client := peer.Unmap()
		for i := len(hops) - 1; i >= 0; i-- {
			addr, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
			if err != nil {
				break
			}
			client = addr.Unmap()
			if !rl.isTrusted(client) {
				break
			}
		}
		return client.String()
	}

	if xri, err := netip.ParseAddr(strings.TrimSpace(r.Header.Get("X-Real-IP"))); err == nil {
		return xri.Unmap().String()
	}
	return host
}
