package handlers

import (
	"net/http"

	"jwt-cookie-ws/internal/auth"
	"jwt-cookie-ws/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes wires every endpoint onto r.
func RegisterRoutes(r *gin.Engine, d Deps) {
	r.GET("/", IndexHandler())
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Metrics.Registry, promhttp.HandlerOpts{})))

	if d.Config.IsDev() {
		r.GET("/get-cookie", GetCookieHandler(d))
	}

	RegisterWebSocketRoutes(r, d)

	api := r.Group("/api")
	RegisterAuthRoutes(api, d)
	RegisterAccountRoutes(api, d)
}

// RegisterWebSocketRoutes exposes one socket endpoint per token requirement.
func RegisterWebSocketRoutes(r *gin.Engine, d Deps) {
	limit := middleware.RateLimitByIP(d.Config.WSRatePerMinute)
	r.GET("/ws", limit, WebSocketHandler(d, WSOptions{}))
	r.GET("/ws/fresh", limit, WebSocketHandler(d, WSOptions{RequireFresh: true}))
	r.GET("/ws/refresh", limit, WebSocketHandler(d, WSOptions{Required: auth.TypeRefresh}))
	r.GET("/ws/optional", limit, WebSocketHandler(d, WSOptions{Optional: true}))
}

func RegisterAuthRoutes(rg *gin.RouterGroup, d Deps) {
	login := middleware.RateLimitByIP(d.Config.LoginRatePerMinute)
	rg.POST("/auth/register", login, RegisterHandler(d))
	rg.POST("/auth/login", login, LoginHandler(d))
	rg.POST("/auth/refresh", middleware.RequireRefresh(d.Authorizer, d.Metrics), RefreshHandler(d))
	rg.POST("/auth/logout", middleware.RequireAuth(d.Authorizer, d.Metrics, middleware.AuthOptions{}), LogoutHandler(d))
}

func RegisterAccountRoutes(rg *gin.RouterGroup, d Deps) {
	rg.GET("/me", middleware.RequireAuth(d.Authorizer, d.Metrics, middleware.AuthOptions{}), MeHandler(d))
	rg.POST("/account/password", middleware.RequireFresh(d.Authorizer, d.Metrics), ChangePasswordHandler(d))
}
