package middleware

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fatflowers/casperflow/pkg/logctx"
)

// RequestLoggerMiddleware scopes a logger to the request. Every line it
// writes carries trace_id and the matched route, so service logs for one
// payment or webhook delivery can be pulled out together.
func RequestLoggerMiddleware(base *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetString(logctx.TraceIDKey)
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}

		lg := base.With("trace_id", traceID, "route", c.Request.Method+" "+route)
		c.Set(logctx.LoggerKey, lg)
		c.Request = c.Request.WithContext(logctx.WithLogger(c.Request.Context(), lg))
		if traceID != "" {
			c.Writer.Header().Set(RequestIDHeader, traceID)
		}
		c.Next()
	}
}
