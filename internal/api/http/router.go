package http

import (
	"path/filepath"

	"github.com/barley-project/barley/internal/api/http/handler"
	"github.com/barley-project/barley/internal/api/http/middleware"
	"github.com/barley-project/barley/internal/observability"
	"github.com/barley-project/barley/internal/seed"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Services struct {
	Registry *seed.Registry
	// BootDir holds the kernel and initrd handed to booting Seeds.
	BootDir string
}

func SetupRoute(engine *gin.Engine, srvs *Services) {
	observability.RegisterMetrics()
	engine.Use(middleware.RequestLogger())
	engine.Use(middleware.RequestMetrics())

	healthHandler := handler.NewHealthHandler()
	engine.GET("/health", healthHandler.Check)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if srvs.BootDir != "" {
		engine.StaticFile("/"+seed.KernelArtifact, filepath.Join(srvs.BootDir, seed.KernelArtifact))
		engine.StaticFile("/"+seed.InitrdArtifact, filepath.Join(srvs.BootDir, seed.InitrdArtifact))
	}

	if srvs.Registry != nil {
		seedHandler := handler.NewSeedHandler(srvs.Registry)
		engine.GET("/seed.ipxe", seedHandler.Boot)
		engine.GET("/init/:name", seedHandler.Init)
		engine.POST("/register/:name", seedHandler.Register)
	}
}
