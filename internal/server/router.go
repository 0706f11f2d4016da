package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-chi/cors"
	"github.com/loangraph/reconciler/internal/auth"
	"github.com/loangraph/reconciler/internal/config"
	"github.com/loangraph/reconciler/internal/http/handlers"
	"github.com/loangraph/reconciler/internal/http/middleware"
	"github.com/loangraph/reconciler/internal/version"
	"github.com/loangraph/reconciler/internal/ws"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
)

const serviceName = "loangraph-reconciler"

type Dependencies struct {
	Pinger           handlers.Pinger
	ReconcileHandler *handlers.ReconcileHandler
	WSHandler        *ws.Handler
	JWTManager       *auth.JWTManager
}

func NewRouter(cfg config.Config, logger *slog.Logger, deps Dependencies) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(serviceName))
	r.Use(middleware.Metrics(otel.Meter(serviceName)))
	r.Use(middleware.RequestID())
	r.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", c.GetString("request_id"),
		)
	})

	health := handlers.NewHealthHandler(deps.Pinger, cfg.MirrorBackend)
	meta := handlers.NewMetaHandler(cfg.Env, version.Version, cfg.Locale, cfg.CurrencySymbol)

	r.GET("/health", health.Health)
	r.GET("/ready", health.Ready)
	r.GET("/v1/meta", meta.GetMeta)

	if deps.JWTManager != nil {
		requireLender := []gin.HandlerFunc{
			middleware.RequireAuth(deps.JWTManager, cfg.AuthEnableBearer),
			middleware.RequireRole(auth.RoleLender, auth.RoleAdmin),
		}

		if deps.ReconcileHandler != nil {
			h := deps.ReconcileHandler
			g := r.Group("/v1/reconciliation")
			g.Use(requireLender...)
			g.Use(middleware.RequestBodyLimit(cfg.MaxRequestBodyBytes))
			g.POST("/session", h.OpenSession)
			g.DELETE("/session", h.CloseSession)
			g.GET("/pending", h.Pending)
			g.POST("/refresh", h.Refresh)
			g.POST("/confirm", h.Confirm)
			g.POST("/reject", h.Reject)
			g.GET("/snapshot", h.Snapshot)
		}

		if deps.WSHandler != nil {
			wsGroup := r.Group("/v1")
			wsGroup.Use(requireLender...)
			wsGroup.GET("/ws", deps.WSHandler.HandleWebSocket)
		}
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	})

	return r
}

// WithCORS lets browser dashboards on the listed origins call the API with
// credentials. No origins means no CORS headers at all.
func WithCORS(h http.Handler, origins []string) http.Handler {
	if len(origins) == 0 {
		return h
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	})(h)
}
