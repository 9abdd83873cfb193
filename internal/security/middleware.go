// Package security holds the gin middleware applied in front of the API.
package security

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"ossim/backend/pkg/config"
)

const limiterIdleTTL = 10 * time.Minute

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type SecurityMiddleware struct {
	rateLimiters map[string]*clientLimiter
	mu           sync.Mutex
	config       config.SecurityConfig
	now          func() time.Time
}

func NewSecurityMiddleware(cfg config.SecurityConfig) *SecurityMiddleware {
	return &SecurityMiddleware{
		rateLimiters: make(map[string]*clientLimiter),
		config:       cfg,
		now:          time.Now,
	}
}

// RateLimitMiddleware keeps one token bucket per client IP. A zero rate
// disables limiting.
func (sm *SecurityMiddleware) RateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if sm.config.RateLimit <= 0 {
			c.Next()
			return
		}

		limiter := sm.limiterFor(c.ClientIP())
		if !limiter.Allow() {
			retry := time.Duration(float64(time.Second) / sm.config.RateLimit)
			c.Header("Retry-After", strconv.Itoa(int(retry.Seconds())+1))
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"retry_after": retry.Seconds(),
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

func (sm *SecurityMiddleware) limiterFor(ip string) *rate.Limiter {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	now := sm.now()
	entry, exists := sm.rateLimiters[ip]
	if !exists {
		burst := sm.config.RateBurst
		if burst <= 0 {
			burst = 1
		}
		entry = &clientLimiter{limiter: rate.NewLimiter(rate.Limit(sm.config.RateLimit), burst)}
		sm.rateLimiters[ip] = entry
		sm.pruneLocked(now)
	}
	entry.lastSeen = now
	return entry.limiter
}

// pruneLocked drops limiters of clients idle for limiterIdleTTL.
func (sm *SecurityMiddleware) pruneLocked(now time.Time) {
	for ip, entry := range sm.rateLimiters {
		if now.Sub(entry.lastSeen) > limiterIdleTTL && !entry.lastSeen.IsZero() {
			delete(sm.rateLimiters, ip)
		}
	}
}

func (sm *SecurityMiddleware) SecurityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Content-Security-Policy", "default-src 'self'")
		c.Next()
	}
}

func (sm *SecurityMiddleware) CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" && sm.isAllowedOrigin(origin) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
			c.Header("Access-Control-Allow-Credentials", "true")
		}
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func (sm *SecurityMiddleware) isAllowedOrigin(origin string) bool {
	for _, allowed := range sm.config.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// BodyLimitMiddleware rejects declared oversize bodies and caps the rest.
func (sm *SecurityMiddleware) BodyLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := sm.config.MaxBodyBytes
		if limit <= 0 {
			c.Next()
			return
		}
		if c.Request.ContentLength > limit {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Request body too large"})
			c.Abort()
			return
		}
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}

		if c.Request.Method == http.MethodPost || c.Request.Method == http.MethodPut {
			contentType := c.GetHeader("Content-Type")
			if c.Request.ContentLength > 0 && !strings.HasPrefix(contentType, "application/json") {
				c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "Unsupported content type"})
				c.Abort()
				return
			}
		}

		c.Next()
	}
}

// Clients reports how many per-IP limiters are held.
func (sm *SecurityMiddleware) Clients() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return len(sm.rateLimiters)
}
