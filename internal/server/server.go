// Package server assembles the HTTP router from the domain packages.
package server

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"songshare/internal/blob"
	"songshare/internal/config"
	"songshare/internal/domain/analytics"
	"songshare/internal/domain/song"
	"songshare/internal/domain/token"
	"songshare/internal/middleware"
	"songshare/internal/pkg/response"
)

const healthTimeout = 2 * time.Second

// NewRouter wires repositories, services and handlers under /api.
func NewRouter(cfg *config.Config, db *gorm.DB, store blob.Store) *gin.Engine {
	songRepo := song.NewRepository(db)

	songService := song.NewService(songRepo, store, token.NewGenerator(), song.Options{
		MaxUploadSize: cfg.MaxUploadSize,
		MaxAttempts:   cfg.UploadMaxAttempts,
		CacheSize:     cfg.ResolveCacheSize,
		CacheTTL:      cfg.ResolveCacheTTL,
	})
	songHandler := song.NewHandler(songService, song.HandlerConfig{
		PublicBaseURL: cfg.PublicBaseURL,
		ListLimit:     cfg.ListLimit,
		MaxListLimit:  cfg.MaxListLimit,
		IOTimeout:     cfg.IOTimeout,
	})

	analyticsHandler := analytics.NewHandler(analytics.NewService(songRepo, cfg.AnalyticsTopN))

	r := gin.New()
	// X-Forwarded-For is honoured only from configured proxies; otherwise the
	// peer address keys the rate limiter.
	if err := r.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		log.Printf("ignoring TRUSTED_PROXIES: %v", err)
		_ = r.SetTrustedProxies(nil)
	}
	r.Use(middleware.AccessLogger(gin.DefaultWriter))
	r.Use(middleware.ErrorLogger())
	r.Use(middleware.CORS())
	// multipart parts above this spill to temp files instead of memory
	r.MaxMultipartMemory = 8 << 20

	r.GET("/healthz", health(db))

	api := r.Group("/api")
	api.Use(middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
	{
		song.RegisterRoutes(api, songHandler)
		analytics.RegisterRoutes(api, analyticsHandler)
	}

	r.NoRoute(func(c *gin.Context) {
		response.Error(c, http.StatusNotFound, "NOT_FOUND", "route not found")
	})

	return r
}

func health(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
		defer cancel()

		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(ctx)
		}
		if err != nil {
			_ = c.Error(err)
			response.Error(c, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "database unreachable")
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
