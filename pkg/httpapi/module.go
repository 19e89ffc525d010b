package httpapi

import (
	"net/http"

	"smallbiznis-rewards/pkg/config"
	"smallbiznis-rewards/pkg/health"
	"smallbiznis-rewards/pkg/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

var Module = fx.Module("httpapi",
	fx.Provide(NewEngine, asHandler),
	fx.Invoke(registerHealthEndpoint),
)

// NewEngine builds the gin engine shared by every route module.
func NewEngine(cfg *config.Config) *gin.Engine {
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery(), middleware.Error())
	return r
}

func asHandler(r *gin.Engine) http.Handler {
	return r
}

func registerHealthEndpoint(r *gin.Engine, h health.HealthService) {
	r.GET("/healthz", h.Liveness)
	r.GET("/readyz", h.Readiness)
}
