// Package router wires HTTP routes to their handlers and middleware.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/vault-blog/internal/config"
	"github.com/iliyamo/vault-blog/internal/handler"
	"github.com/iliyamo/vault-blog/internal/middleware"
)

// Register sets up every route. Reads on the public post listing go
// through the Redis response cache; the auth endpoints sit behind the
// rate limiter; everything that writes requires a valid access token.
func Register(e *echo.Echo, cfg config.Config, a *handler.AuthHandler, b *handler.BlogHandler, rdb *redis.Client) {
	e.GET("/healthz", handler.Health)

	limiter := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)
	cache := middleware.NewRedisCache(config.LoadCacheConfig(), rdb)

	auth := e.Group("/v1/auth", limiter)
	auth.POST("/register", a.Register)
	auth.POST("/login", a.Login)

	e.GET("/v1/posts", b.List, cache)
	e.GET("/v1/posts/:id", b.Get)
	e.GET("/v1/posts/:id/history", b.History)

	protected := e.Group("/v1", middleware.JWTAuth(cfg.JWTSecret))
	protected.GET("/me", a.Me)
	protected.POST("/auth/password", a.ChangePassword)
	protected.POST("/posts", b.Create)
	protected.PUT("/posts/:id", b.Update)
	protected.DELETE("/posts/:id", b.Delete)
}
