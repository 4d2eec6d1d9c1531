package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// RequestLogger writes one structured line per request. Handler errors are
// rendered here through the echo error handler so the logged status is the
// one the client received.
func RequestLogger(log *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			res := c.Response()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			fields := []zap.Field{
				zap.String("request_id", res.Header().Get(echo.HeaderXRequestID)),
				zap.String("method", req.Method),
				zap.String("path", req.URL.Path),
				zap.Int("status", res.Status),
				zap.Duration("latency", time.Since(start)),
				zap.String("remote_ip", c.RealIP()),
			}
			if uid, ok := c.Get(ContextUserID).(uint64); ok {
				fields = append(fields, zap.Uint64("user_id", uid))
			}

			switch {
			case res.Status >= 500:
				log.Error("server error", append(fields, zap.Error(err))...)
			case res.Status >= 400:
				log.Warn("client error", append(fields, zap.Error(err))...)
			default:
				log.Info("request completed", fields...)
			}
			return nil
		}
	}
}
