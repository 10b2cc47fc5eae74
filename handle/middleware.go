package handle

import (
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
)

var reqID atomic.Uint64

// requestLog tags each request with an ID and logs it once served.
func requestLog(lg *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := strconv.FormatUint(reqID.Add(1), 10)
		c.Header("X-Request-Id", requestID)

		start := time.Now()
		c.Next()

		lg.Info("request",
			slog.String("request_id", requestID),
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.Int("bytes", c.Writer.Size()),
			slog.Duration("duration", time.Since(start)),
		)
	}
}

// allowCORS lets browser-based test harnesses call the provider from any origin.
func allowCORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET,HEAD,PUT,PATCH,POST,DELETE")
		c.Header("Access-Control-Allow-Headers", "Content-Type")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
