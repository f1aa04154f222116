package web

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func GinLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		t := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		if path == "/healthz" || path == "/ping" || path == "/metrics" {
			return
		}

		if raw != "" {
			path = path + "?" + raw
		}
		msg := c.Errors.String()
		if msg == "" {
			msg = "Request"
		}

		statusCode := c.Writer.Status()
		var event *zerolog.Event
		switch {
		case statusCode >= 500:
			event = log.Error()
		case statusCode >= 400:
			event = log.Warn()
		default:
			event = log.Info()
		}
		if user, ok := CurrentUser(c); ok {
			event = event.Str("user", user.ID)
		}

		event.Str("logger", "access").Str("method", c.Request.Method).
			Str("path", path).Dur("resp_time", time.Since(t)).Int("status", statusCode).
			Str("client_ip", c.ClientIP()).Str("user_agent", c.Request.Header.Get("User-Agent")).Msg(msg)
	}
}
