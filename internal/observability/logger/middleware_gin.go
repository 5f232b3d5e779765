package logger

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	obscontext "github.com/smallbiznis/donara/internal/observability/context"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const requestIDHeader = "X-Request-Id"

// MiddlewareConfig controls request logging behavior.
type MiddlewareConfig struct {
	Debug           bool
	// ErrorClassifier maps the last handler error to (type, code).
	ErrorClassifier func(err error) (string, string)
	// Probes are routes logged at debug level. Defaults to /health and /metrics.
	Probes          []string
}

// GinMiddleware logs one line per request, tagged with the donation and the
// provider when a handler recorded them.
func GinMiddleware(cfg MiddlewareConfig) gin.HandlerFunc {
	probes := probeSet(cfg.Probes)
	return func(c *gin.Context) {
		start := time.Now()
		requestID := requestIDFor(c)
		c.Request = c.Request.WithContext(obscontext.WithRequestID(c.Request.Context(), requestID))

		c.Next()

		route := routeOf(c)
		status := c.Writer.Status()
		fields := append(make([]zap.Field, 0, 12),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			zap.Int64("bytes_in", nonNegative(c.Request.ContentLength)),
			zap.Int64("bytes_out", nonNegative(int64(c.Writer.Size()))),
		)
		fields = append(fields, tagged(c)...)

		if lastErr := c.Errors.Last(); lastErr != nil {
			errorType, errorCode := "unknown", ""
			if cfg.ErrorClassifier != nil {
				errorType, errorCode = cfg.ErrorClassifier(lastErr.Err)
			}
			fields = append(fields, zap.String("error_type", errorType), zap.String("error_code", errorCode))
			if cfg.Debug {
				fields = append(fields, zap.Stack("stack"))
			}
		}

		log := FromContext(c.Request.Context())
		if ce := log.Check(requestLevel(route, status, probes), "http_request"); ce != nil {
			ce.Write(fields...)
		}
	}
}

// requestIDFor honors an inbound X-Request-Id and echoes the id back.
func requestIDFor(c *gin.Context) string {
	id := strings.TrimSpace(c.GetHeader(requestIDHeader))
	if id == "" {
		id = strings.TrimSpace(c.GetString(obscontext.RequestIDKey))
	}
	if id == "" {
		id = uuid.NewString()
	}
	c.Set(obscontext.RequestIDKey, id)
	c.Header(requestIDHeader, id)
	return id
}

func tagged(c *gin.Context) []zap.Field {
	var fields []zap.Field
	if v := strings.TrimSpace(c.GetString(obscontext.DonationIDKey)); v != "" {
		fields = append(fields, zap.String("donation_id", v))
	}
	if v := strings.TrimSpace(c.GetString(obscontext.ProviderKey)); v != "" {
		fields = append(fields, zap.String("provider", v))
	}
	return fields
}

func requestLevel(route string, status int, probes map[string]struct{}) zapcore.Level {
	if _, ok := probes[strings.ToLower(route)]; ok {
		return zap.DebugLevel
	}
	if status >= http.StatusInternalServerError {
		return zap.ErrorLevel
	}
	return zap.InfoLevel
}

func probeSet(routes []string) map[string]struct{} {
	if len(routes) == 0 {
		routes = []string{"/health", "/metrics"}
	}
	set := make(map[string]struct{}, len(routes))
	for _, r := range routes {
		set[strings.ToLower(strings.TrimSpace(r))] = struct{}{}
	}
	return set
}

func routeOf(c *gin.Context) string {
	if route := strings.TrimSpace(c.FullPath()); route != "" {
		return route
	}
	return "unknown"
}

func nonNegative(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}
