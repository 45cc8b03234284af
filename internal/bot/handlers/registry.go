package handlers

import (
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/edgard/civicbot/internal/logger"
	"github.com/edgard/civicbot/internal/metrics"
)

// RegisteredHandler represents a route with its handler and middleware.
type RegisteredHandler struct {
	Method     string
	Path       string
	Handler    gin.HandlerFunc
	Middleware []gin.HandlerFunc
}

// RegisterAllRoutes initializes and returns a map of all API routes keyed by
// "METHOD path".
func RegisterAllRoutes(deps HandlerDeps) map[string]RegisteredHandler {
	handlers := make(map[string]RegisteredHandler)
	add := func(h RegisteredHandler) {
		handlers[h.Method+" "+h.Path] = h
	}

	add(RegisteredHandler{Method: http.MethodPost, Path: "/api/reports", Handler: NewCreateReportHandler(deps)})
	add(RegisteredHandler{Method: http.MethodGet, Path: "/api/reports", Handler: NewListReportsHandler(deps)})
	add(RegisteredHandler{Method: http.MethodGet, Path: "/api/reports.geojson", Handler: NewReportsGeoJSONHandler(deps)})
	add(RegisteredHandler{Method: http.MethodGet, Path: "/api/reports/:id", Handler: NewGetReportHandler(deps)})
	add(RegisteredHandler{Method: http.MethodGet, Path: "/api/reports/:id/photo", Handler: NewPhotoHandler(deps)})

	add(RegisteredHandler{Method: http.MethodPost, Path: "/api/reports/:id/classify", Handler: NewClassifyHandler(deps)})
	add(RegisteredHandler{Method: http.MethodPost, Path: "/api/reports/:id/notify", Handler: NewNotifyHandler(deps)})
	add(RegisteredHandler{Method: http.MethodPost, Path: "/api/reports/:id/tweet", Handler: NewTweetHandler(deps)})

	add(RegisteredHandler{Method: http.MethodGet, Path: "/api/ai-usage", Handler: NewUsageHandler(deps)})
	add(RegisteredHandler{Method: http.MethodGet, Path: "/api/rate-limits", Handler: NewRateLimitsHandler(deps)})
	add(RegisteredHandler{Method: http.MethodGet, Path: "/api/transparency/budgets", Handler: NewBudgetsHandler(deps)})
	add(RegisteredHandler{Method: http.MethodGet, Path: "/api/health", Handler: NewHealthHandler(deps)})

	monitorHandler := NewMonitorHandler(deps)
	add(RegisteredHandler{Method: http.MethodGet, Path: "/api/cron/monitor-twitter", Handler: monitorHandler})
	add(RegisteredHandler{Method: http.MethodPost, Path: "/api/cron/monitor-twitter", Handler: monitorHandler})

	adminMiddleware := []gin.HandlerFunc{AdminOnly(deps)}

	add(RegisteredHandler{
		Method:     http.MethodPost,
		Path:       "/api/ai-usage/reset",
		Handler:    NewUsageResetHandler(deps),
		Middleware: adminMiddleware,
	})
	add(RegisteredHandler{
		Method:     http.MethodPost,
		Path:       "/api/ai-usage/limit",
		Handler:    NewUsageLimitHandler(deps),
		Middleware: adminMiddleware,
	})

	return handlers
}

// Mount registers routes on r in a stable order.
func Mount(r gin.IRoutes, routes map[string]RegisteredHandler) {
	keys := make([]string, 0, len(routes))
	for k := range routes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		h := routes[k]
		chain := append(append([]gin.HandlerFunc{}, h.Middleware...), h.Handler)
		r.Handle(h.Method, h.Path, chain...)
	}
}

// NewRouter builds the gin engine serving the API and /metrics.
func NewRouter(deps HandlerDeps) *gin.Engine {
	r := gin.New()
	r.Use(logger.Recovery(deps.Logger), logger.Middleware(deps.Logger), metrics.Middleware())
	r.MaxMultipartMemory = deps.Config.Server.MaxUploadBytes

	Mount(r, RegisterAllRoutes(deps))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	})

	return r
}
