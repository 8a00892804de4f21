package server

import (
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/bizledger/internal/auditcontext"
	"github.com/smallbiznis/bizledger/internal/observability/logger"
	"go.uber.org/zap"
)

// WriteRateLimit throttles mutating requests per actor, or per client IP for
// anonymous callers. Reads are never limited. Limiter failures let the
// request through.
func (s *Server) WriteRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.writeLimiter.Enabled() || !isWriteMethod(c.Request.Method) {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		subject := auditcontext.ActorIDFromContext(ctx)
		if subject == "" {
			subject = "ip:" + c.ClientIP()
		}

		result, err := s.writeLimiter.Allow(ctx, subject)
		if err != nil {
			logger.FromContext(ctx).Warn("write rate limit check failed", zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		if !result.Allowed {
			retryAfter := int(math.Ceil(result.RetryAfter.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			AbortWithError(c, ErrRateLimited)
			return
		}
		c.Next()
	}
}

func isWriteMethod(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}
