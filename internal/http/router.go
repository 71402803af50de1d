package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/bulkflow/internal/http/handlers"
	httpMW "github.com/yungbote/bulkflow/internal/http/middleware"
	"github.com/yungbote/bulkflow/internal/observability"
	"github.com/yungbote/bulkflow/internal/platform/logger"
)

type RouterConfig struct {
	Log         *logger.Logger
	ServiceName string
	Metrics     *observability.Metrics

	CORSOrigins     []string
	MaxRequestBytes int64
	RateLimitRPS    float64
	RateLimitBurst  int

	// AuthMiddleware guards the bulk transaction API when set.
	AuthMiddleware *httpMW.AuthMiddleware

	BulkHandler     *httpH.BulkTransactionHandler
	CallbackHandler *httpH.CallbackHandler
	HealthHandler   *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(cfg.ServiceName))
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.CORSOrigins))
	r.Use(httpMW.BodyLimit(cfg.MaxRequestBytes))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/health", cfg.HealthHandler.HealthCheck)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	// Bulk transaction API
	if cfg.BulkHandler != nil {
		api := r.Group("/bulkTransactions")
		api.Use(httpMW.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
		if cfg.AuthMiddleware != nil {
			api.Use(cfg.AuthMiddleware.RequireAuth())
		}
		api.POST("", cfg.BulkHandler.Create)
		api.GET("/:id", cfg.BulkHandler.Get)
		api.PUT("/:id", cfg.BulkHandler.Continue)
	}

	// FSPIOP callbacks
	if cfg.CallbackHandler != nil {
		r.PUT("/parties/:type/:id", cfg.CallbackHandler.Parties)
		r.PUT("/parties/:type/:id/error", cfg.CallbackHandler.Parties)
		r.PUT("/parties/:type/:id/:subId", cfg.CallbackHandler.Parties)
		r.PUT("/parties/:type/:id/:subId/error", cfg.CallbackHandler.Parties)
		r.PUT("/bulkQuotes/:id", cfg.CallbackHandler.BulkQuotes)
		r.PUT("/bulkQuotes/:id/error", cfg.CallbackHandler.BulkQuotes)
		r.PUT("/bulkTransfers/:id", cfg.CallbackHandler.BulkTransfers)
		r.PUT("/bulkTransfers/:id/error", cfg.CallbackHandler.BulkTransfers)
	}

	return r
}
