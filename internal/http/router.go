package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/fredpottier/factgov/internal/http/handlers"
	httpMW "github.com/fredpottier/factgov/internal/http/middleware"
	"github.com/fredpottier/factgov/internal/platform/logger"
)

type RouterConfig struct {
	Log *logger.Logger

	AuthMiddleware *httpMW.AuthMiddleware
	CORSOrigins    []string
	ServiceName    string

	HealthHandler *httpH.HealthHandler
	FactHandler   *httpH.FactHandler
	QueryHandler  *httpH.QueryHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(cfg.ServiceName))
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	api := r.Group("/")
	if cfg.AuthMiddleware != nil {
		api.Use(cfg.AuthMiddleware.RequireTenant())
	}

	if cfg.FactHandler != nil {
		api.POST("/facts", cfg.FactHandler.CreateFact)
		api.POST("/facts/:uuid/approve", cfg.FactHandler.Approve)
		api.POST("/facts/:uuid/reject", cfg.FactHandler.Reject)
		api.POST("/facts/:uuid/override", cfg.FactHandler.Override)
		api.GET("/facts/:uuid", cfg.FactHandler.GetFact)
	}

	if cfg.QueryHandler != nil {
		api.GET("/facts/current", cfg.QueryHandler.CurrentTruth)
		api.GET("/facts/timeline", cfg.QueryHandler.Timeline)
		api.GET("/conflicts", cfg.QueryHandler.OpenConflicts)
	}

	return r
}
