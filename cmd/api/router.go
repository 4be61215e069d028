package main

import (
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/spf13/afero"
	"gorm.io/gorm"

	"ecoportal/internal/config"
	"ecoportal/internal/domain/projectmedia"
	"ecoportal/internal/domain/upload"
	"ecoportal/internal/middleware"
	"ecoportal/internal/pkg/jwt"
	"ecoportal/internal/pkg/metrics"
)

type routerDeps struct {
	Config   *config.Config
	Logger   *log.Logger
	DB       *gorm.DB
	JWT      *jwt.Service
	Storage  afero.Fs
	Pipeline *upload.Pipeline
}

func newRouter(d routerDeps) *gin.Engine {
	r := gin.New()
	if err := r.SetTrustedProxies(d.Config.TrustedProxies); err != nil {
		d.Logger.Error("invalid trusted proxies, ignoring forwarded headers", "proxies", d.Config.TrustedProxies, "err", err)
		_ = r.SetTrustedProxies(nil)
	}
	r.Use(middleware.RequestLogger(d.Logger))
	r.Use(metrics.Middleware())
	r.Use(middleware.CORS(d.Config.CORSOrigins))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	r.StaticFS(d.Pipeline.Policy().PublicPrefix, upload.PublicFS(d.Storage))

	uploadLimiter := middleware.RateLimit("upload",
		middleware.NewFixedWindowLimiter(d.Config.UploadRateLimit, d.Config.UploadRateWindow),
		d.Config.RateLimitMessage,
	)

	uploadHandler := upload.NewHandler(d.Pipeline)
	mediaService := projectmedia.NewService(projectmedia.NewRepository(d.DB), d.Pipeline, d.Logger)
	mediaHandler := projectmedia.NewHandler(mediaService, d.Pipeline)

	v1 := r.Group("/api/v1")
	{
		// public
		projectmedia.RegisterPublicRoutes(v1, mediaHandler)

		admin := v1.Group("/admin")
		admin.Use(middleware.JWTAuth(d.JWT), middleware.AdminOnly())
		{
			upload.RegisterRoutes(admin, uploadHandler, uploadLimiter)
			projectmedia.RegisterAdminRoutes(admin, mediaHandler, uploadLimiter)
		}
	}
	return r
}
