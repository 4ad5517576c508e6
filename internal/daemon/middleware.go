package daemon

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"dealflow/internal/logging"
)

const (
	requestIDHeader = "X-Request-ID"
	botContextKey   = "is_bot"
	limiterIdleTTL  = 10 * time.Minute
)

// botPatterns are known crawler and link-preview User-Agent substrings (lowercase).
var botPatterns = []string{
	"bot", "crawler", "spider", "slurp",
	"facebookexternalhit", "embedly", "quora link preview",
	"outbrain", "pinterest", "whatsapp", "telegrambot",
	"discordbot", "preview", "curl", "wget", "python-requests",
}

// IsBot reports whether a User-Agent belongs to a crawler or link unfurler.
// An empty User-Agent counts as a bot.
func IsBot(userAgent string) bool {
	ua := strings.ToLower(strings.TrimSpace(userAgent))
	if ua == "" {
		return true
	}
	for _, pattern := range botPatterns {
		if strings.Contains(ua, pattern) {
			return true
		}
	}
	return false
}

// requestID tags every request with an id, reusing a caller-supplied header.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(requestIDHeader, id)
		c.Request = c.Request.WithContext(logging.WithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

func accessLog(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		logging.WithContext(c.Request.Context(), logger).Debug("http request",
			logging.String("method", c.Request.Method),
			logging.String("path", c.FullPath()),
			logging.Int("status", c.Writer.Status()),
			logging.Duration("elapsed", time.Since(started)),
		)
	}
}

// bearerAuth validates bearer tokens. If token is empty, every request passes.
func bearerAuth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}
		auth := c.GetHeader("Authorization")
		presented, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

// botFilter flags crawler traffic so the redirect still happens but the
// click is not counted.
func botFilter() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsBot(c.Request.UserAgent()) {
			c.Set(botContextKey, true)
		}
		c.Next()
	}
}

type visitorLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ipLimiter hands out one token bucket per client IP.
type ipLimiter struct {
	mu        sync.Mutex
	visitors  map[string]*visitorLimiter
	limit     rate.Limit
	burst     int
	lastSweep time.Time
}

func newIPLimiter(perMinute int) *ipLimiter {
	if perMinute <= 0 {
		return nil
	}
	return &ipLimiter{
		visitors: make(map[string]*visitorLimiter),
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    perMinute,
	}
}

func (l *ipLimiter) allow(ip string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if now.Sub(l.lastSweep) > limiterIdleTTL {
		for key, v := range l.visitors {
			if now.Sub(v.lastSeen) > limiterIdleTTL {
				delete(l.visitors, key)
			}
		}
		l.lastSweep = now
	}
	v, ok := l.visitors[ip]
	if !ok {
		v = &visitorLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// rateLimit caps redirects per client IP. A non-positive limit disables it.
func rateLimit(perMinute int) gin.HandlerFunc {
	limiter := newIPLimiter(perMinute)
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}
		if !limiter.allow(c.ClientIP(), time.Now()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
