package web

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// XForwardedProto records the scheme the client used, taking the first value
// when a chain of proxies appended theirs.
func XForwardedProto(defaultScheme string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.URL.Scheme = defaultScheme
		if hdr := c.GetHeader("X-Forwarded-Proto"); hdr != "" {
			c.Request.URL.Scheme = strings.TrimSpace(strings.Split(hdr, ",")[0])
		}

		c.Next()
	}
}
