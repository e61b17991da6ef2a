// Package middleware provides HTTP middleware for samlgate services
package middleware

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/openidx/samlgate/internal/common/logger"
)

// CORS returns a middleware that handles CORS headers
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization, X-Request-ID")
		c.Header("Access-Control-Expose-Headers", "X-Request-ID, X-Total-Count")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// RequestID adds a unique request ID to each request
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

// AdminTokenAuth guards the tenant administration API with a static bearer
// token. An empty configured token rejects every request rather than failing
// open. Rejections land in the audit trail; a nil audit logger skips that.
func AdminTokenAuth(token string, audit *logger.AuditLogger) gin.HandlerFunc {
	deny := func(c *gin.Context, reason, message string) {
		if audit != nil {
			audit.LogAccessDenied(c.ClientIP(), c.Request.Method, "admin-api", c.FullPath(), reason)
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": message,
		})
	}

	return func(c *gin.Context) {
		if token == "" {
			deny(c, "admin token not configured", "admin API is not configured")
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			deny(c, "missing authorization header", "missing authorization header")
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			deny(c, "malformed authorization header", "invalid authorization header format")
			return
		}

		if subtle.ConstantTimeCompare([]byte(parts[1]), []byte(token)) != 1 {
			deny(c, "token mismatch", "invalid token")
			return
		}

		c.Next()
	}
}

// RateLimit implements a simple rate limiter
func RateLimit(requests int, window time.Duration) gin.HandlerFunc {
	// In production, use Redis for distributed rate limiting
	// This is a simple in-memory implementation for development
	type clientInfo struct {
		count     int
		resetTime time.Time
	}
	var mu sync.RWMutex
	clients := make(map[string]*clientInfo)

	return func(c *gin.Context) {
		clientIP := c.ClientIP()
		now := time.Now()

		mu.RLock()
		info, exists := clients[clientIP]
		mu.RUnlock()

		if !exists || now.After(info.resetTime) {
			mu.Lock()
			clients[clientIP] = &clientInfo{
				count:     1,
				resetTime: now.Add(window),
			}
			mu.Unlock()
			c.Next()
			return
		}

		mu.RLock()
		if info.count >= requests {
			retryAfter := int(info.resetTime.Sub(now).Seconds())
			mu.RUnlock()
			c.Header("Retry-After", fmt.Sprintf("%d", retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		mu.RUnlock()

		mu.Lock()
		info.count++
		mu.Unlock()
		c.Next()
	}
}

// Timeout adds a timeout to the request context
func Timeout(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()

		c.Request = c.Request.WithContext(ctx)

		done := make(chan struct{})
		go func() {
			c.Next()
			close(done)
		}()

		select {
		case <-done:
			return
		case <-ctx.Done():
			c.AbortWithStatusJSON(http.StatusGatewayTimeout, gin.H{
				"error": "request timeout",
			})
		}
	}
}

// Recovery returns a middleware that recovers from panics
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": "internal server error",
				})
			}
		}()
		c.Next()
	}
}
