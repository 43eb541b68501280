package logging

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// GinLogger はリクエストごとに1行のアクセスログを出力するミドルウェアです。
// 5xx は error、4xx は warn、ヘルスチェックは debug で記録します。
func GinLogger(l *zap.Logger, name string) gin.HandlerFunc {
	logger := OrNop(l).WithOptions(zap.AddCallerSkip(1)).Named(name)

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		path := c.Request.URL.Path
		fields := []zap.Field{
			zap.String("type", "http_request"),
			zap.String("http_method", c.Request.Method),
			zap.String("http_path", path),
			zap.String("remote_addr", c.ClientIP()),
			zap.Int("http_status_code", status),
			zap.Int("response_bytes", c.Writer.Size()),
			zap.Duration("latency", time.Since(start)),
			zap.String("user_agent", c.Request.UserAgent()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		msg := fmt.Sprintf("HTTP request completed: %s", path)
		switch {
		case status >= 500:
			logger.Error(msg, fields...)
		case status >= 400:
			logger.Warn(msg, fields...)
		case isHealthCheck(c.Request.Method, path):
			logger.Debug(msg, fields...)
		default:
			logger.Info(msg, fields...)
		}
	}
}

func isHealthCheck(method string, path string) bool {
	return method == http.MethodGet && path == "/health"
}
