// routes.go - Route registration helpers
// This file provides a clean way to register all API routes
package api

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gpu-log-summary/backend/internal/observability"
	"github.com/gpu-log-summary/backend/internal/storage"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Store   storage.Store
	Jobs    SummaryManager
	Metrics *observability.Metrics
	Version string
}

// Handlers holds all handler instances
type Handlers struct {
	Health  HealthHandler
	Batch   BatchHandler
	Summary SummaryHandler
	metrics *observability.Metrics
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	return &Handlers{
		Health:  NewHealthHandler(deps.Version),
		Batch:   NewBatchHandler(deps.Store, deps.Jobs),
		Summary: NewSummaryHandler(deps.Store, deps.Jobs),
		metrics: deps.Metrics,
	}
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	e.GET("/api/health", handlers.Health.HandleHealth)

	// Upload batch routes
	batchGroup := e.Group("/api/batches")
	batchGroup.POST("", handlers.Batch.HandleCreateBatch)
	batchGroup.GET("", handlers.Batch.HandleListBatches)
	batchGroup.GET("/:batchId", handlers.Batch.HandleGetBatch)
	batchGroup.DELETE("/:batchId", handlers.Batch.HandleDeleteBatch)
	batchGroup.GET("/:batchId/files", handlers.Batch.HandleListBatchFiles)
	batchGroup.POST("/:batchId/files", handlers.Batch.HandleUploadBatchFile)
	batchGroup.POST("/:batchId/summaries", handlers.Summary.HandleStartSummary)

	// Summary job routes
	summaryGroup := e.Group("/api/summaries")
	summaryGroup.GET("", handlers.Summary.HandleListSummaries)
	summaryGroup.GET("/:jobId/status", handlers.Summary.HandleSummaryStatus)
	summaryGroup.GET("/:jobId", handlers.Summary.HandleGetSummary)
	summaryGroup.GET("/:jobId/readings", handlers.Summary.HandleGetReadings)
	summaryGroup.GET("/:jobId/stats", handlers.Summary.HandleGetStats)

	if handlers.metrics != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(handlers.metrics.Registry, promhttp.HandlerOpts{})))
	}
}

// SetupMiddleware configures common middleware
func SetupMiddleware(e *echo.Echo) {
	e.HTTPErrorHandler = ErrorHandler
}
