package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// WindowCounter counts hits in a fixed window keyed by caller
type WindowCounter interface {
	IncrementWindow(ctx context.Context, key string, window time.Duration) (int64, error)
}

// RateLimit rejects a caller once it exceeds limit requests in window.
// Authenticated callers are keyed by user ID, anonymous ones by client IP.
// Counter failures let the request through.
func RateLimit(counter WindowCounter, scope string, limit int, window time.Duration, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limit <= 0 || counter == nil {
			c.Next()
			return
		}

		subject := "ip:" + c.ClientIP()
		if userCtx, ok := GetUserContext(c); ok {
			subject = "user:" + userCtx.UserID.String()
		}

		count, err := counter.IncrementWindow(c.Request.Context(), scope+":"+subject, window)
		if err != nil {
			logger.WithError(err).WithField("scope", scope).Warn("Rate counter unavailable, allowing request")
			c.Next()
			return
		}

		if count > int64(limit) {
			logger.WithFields(logrus.Fields{
				"scope":   scope,
				"subject": subject,
				"count":   count,
			}).Warn("Rate limit exceeded")

			c.Header("Retry-After", strconv.Itoa(int(window.Seconds())))
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":   "rate_limited",
				"message": "Too many requests. Please try again later.",
				"code":    "RATE_LIMITED",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
