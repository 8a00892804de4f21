package logger

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/smallbiznis/bizledger/internal/auditcontext"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ActorHeader carries the caller supplied actor id used for audit attribution.
const ActorHeader = "X-Actor-Id"

const requestIDHeader = "X-Request-Id"

// MiddlewareConfig controls request logging behavior.
type MiddlewareConfig struct {
	Debug           bool
	ErrorClassifier func(err error) (string, string)
}

// GinMiddleware attaches request id, client and actor to the request context
// and writes one http.request entry when the handler returns.
func GinMiddleware(cfg MiddlewareConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		requestID := requestIDFor(c)
		c.Set("request_id", requestID)
		c.Header(requestIDHeader, requestID)

		ctx := auditcontext.WithRequestID(c.Request.Context(), requestID)
		ctx = auditcontext.WithClient(ctx, c.ClientIP(), c.Request.UserAgent())
		if actorID := strings.TrimSpace(c.GetHeader(ActorHeader)); actorID != "" {
			ctx = auditcontext.WithActor(ctx, "user", actorID)
		}
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		status := c.Writer.Status()

		fields := make([]zap.Field, 0, 12)
		fields = append(fields,
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Bool("write", isWrite(c.Request.Method)),
			zap.Duration("latency", time.Since(started)),
			zap.Int64("bytes_in", max(c.Request.ContentLength, 0)),
			zap.Int("bytes_out", max(c.Writer.Size(), 0)),
		)
		fields = append(fields, resourceFields(c, route)...)

		errorType := ""
		if last := c.Errors.Last(); last != nil {
			errorCode := ""
			if cfg.ErrorClassifier != nil {
				errorType, errorCode = cfg.ErrorClassifier(last.Err)
			}
			fields = append(fields, zap.String("error_type", errorType), zap.String("error_code", errorCode))
			if cfg.Debug {
				fields = append(fields, zap.Stack("stack"))
			}
		}

		log := FromContext(c.Request.Context())
		if entry := log.Check(requestLevel(route, status, errorType), "http.request"); entry != nil {
			entry.Write(fields...)
		}
	}
}

func requestIDFor(c *gin.Context) string {
	// Header lookup is case-insensitive, so X-Request-ID is covered too.
	if id := strings.TrimSpace(c.GetHeader(requestIDHeader)); id != "" {
		return id
	}
	if id := strings.TrimSpace(c.GetString("request_id")); id != "" {
		return id
	}
	return uuid.NewString()
}

// requestLevel keeps health checks and caller mistakes out of the info stream.
// Guard rejections stay at info since they explain why a ledger write did
// not happen.
func requestLevel(route string, status int, errorType string) zapcore.Level {
	switch {
	case route == "/health" || route == "/metrics":
		return zapcore.DebugLevel
	case status >= http.StatusInternalServerError:
		return zapcore.ErrorLevel
	case status == http.StatusTooManyRequests:
		return zapcore.WarnLevel
	case errorType == "validation_error":
		return zapcore.DebugLevel
	default:
		return zapcore.InfoLevel
	}
}

func isWrite(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// resourceFields names the ledger record a route addresses. Payment routes
// carry the payment id in :id, every other :id is an invoice.
func resourceFields(c *gin.Context, route string) []zap.Field {
	var fields []zap.Field
	if id := strings.TrimSpace(c.Param("id")); id != "" {
		key := "invoice_id"
		switch {
		case strings.HasPrefix(route, "/api/payments/"):
			key = "payment_id"
		case strings.HasPrefix(route, "/api/customers/"):
			key = "customer_id"
		case strings.HasPrefix(route, "/api/products/"):
			key = "product_id"
		}
		fields = append(fields, zap.String(key, id))
	}
	if itemID := strings.TrimSpace(c.Param("itemId")); itemID != "" {
		fields = append(fields, zap.String("item_id", itemID))
	}
	return fields
}
