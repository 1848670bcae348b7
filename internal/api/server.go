package api

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"recon-flyover/internal/observability"
)

// RouterConfig controls the middleware stack
type RouterConfig struct {
	RPS        float64
	Burst      int
	OutputRoot string
	Metrics    *observability.Collector
}

// NewRouter builds the gin engine with CORS, rate limiting, metrics, the
// mission routes and the static output tree
func NewRouter(h *Handler, cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length", "Location"},
		AllowCredentials: false,
	}))
	if cfg.Metrics != nil {
		router.Use(MetricsMiddleware(cfg.Metrics))
		router.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}
	if cfg.RPS > 0 {
		router.Use(RateLimitMiddleware(cfg.RPS, cfg.Burst))
	}

	h.RegisterRoutes(router)

	if cfg.OutputRoot != "" {
		router.StaticFS("/output", http.Dir(cfg.OutputRoot))
	}
	return router
}
