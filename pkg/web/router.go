package web

import (
	"github.com/gin-gonic/gin"
	"github.com/terrycain/backblaze-b2-storage/pkg/metrics"
	"github.com/terrycain/backblaze-b2-storage/pkg/storage"
)

// GetRouter mounts the proxy views. Public files need no session, logged in
// files need one and staff files need a staff session.
func GetRouter(webHandler *Handlers, withMetrics bool) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), GinLogger())
	if withMetrics {
		router.Use(metrics.PromReqMiddleware())
	}
	router.Use(XForwardedProto("http"))
	if webHandler.Auth != nil {
		router.Use(webHandler.Auth.Middleware())
	}

	router.GET("/healthz", webHandler.HealthCheck)
	router.GET("/ping", PingEndpoint)

	for _, tier := range storage.Tiers {
		group := router.Group("/" + tier.Prefix())
		switch tier {
		case storage.TierLoggedIn:
			group.Use(LoginRequired(false, webHandler.LoginURL))
		case storage.TierStaff:
			group.Use(LoginRequired(true, webHandler.LoginURL))
		}
		group.GET("/*filename", webHandler.Download(tier))
		group.HEAD("/*filename", webHandler.Download(tier))
	}

	return router
}
