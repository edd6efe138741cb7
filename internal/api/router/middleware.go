package router

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/chat-relay/internal/api/handler"
)

// APIKeyHeader carries the caller's API key.
const APIKeyHeader = "X-API-Key"

// LoggerMiddleware logs HTTP requests with slog
func LoggerMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)

		logger.Info("HTTP Request",
			slog.Int("status", c.Writer.Status()),
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.String("query", query),
			slog.String("ip", c.ClientIP()),
			slog.String("caller", c.GetString(handler.CallerKey)),
			slog.Duration("latency", latency),
			slog.Int("body_size", c.Writer.Size()),
		)

		for _, e := range c.Errors {
			logger.Error("Request error",
				slog.String("error", e.Error()),
				slog.Uint64("type", uint64(e.Type)),
			)
		}
	}
}

// CORSMiddleware handles Cross-Origin Resource Sharing. No origins means any
// origin is allowed, without credentials.
func CORSMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", APIKeyHeader},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	return cors.New(cfg)
}

// APIKeyAuth rejects requests whose X-API-Key matches none of keys and stores
// the matching key name under handler.CallerKey. An empty map disables it.
func APIKeyAuth(keys map[string]string, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if len(keys) == 0 {
			c.Next()
			return
		}

		presented := c.GetHeader(APIKeyHeader)
		if presented == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "API key required",
			})
			return
		}

		caller := ""
		for name, key := range keys {
			// compare every key so timing does not reveal which one matched
			if subtle.ConstantTimeCompare([]byte(presented), []byte(key)) == 1 {
				caller = name
			}
		}

		if caller == "" {
			logger.Warn("Rejected request with invalid API key",
				slog.String("path", c.Request.URL.Path),
				slog.String("ip", c.ClientIP()),
			)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "Invalid API key",
			})
			return
		}

		c.Set(handler.CallerKey, caller)
		c.Next()
	}
}
