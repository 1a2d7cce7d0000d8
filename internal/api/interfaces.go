// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/gpu-log-summary/backend/internal/models"
	"github.com/gpu-log-summary/backend/internal/parser"
)

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// BatchHandler handles upload batch operations
type BatchHandler interface {
	HandleCreateBatch(c echo.Context) error
	HandleListBatches(c echo.Context) error
	HandleGetBatch(c echo.Context) error
	HandleDeleteBatch(c echo.Context) error
	HandleListBatchFiles(c echo.Context) error
	HandleUploadBatchFile(c echo.Context) error
}

// SummaryHandler handles summary job operations
type SummaryHandler interface {
	HandleStartSummary(c echo.Context) error
	HandleListSummaries(c echo.Context) error
	HandleSummaryStatus(c echo.Context) error
	HandleGetSummary(c echo.Context) error
	HandleGetReadings(c echo.Context) error
	HandleGetStats(c echo.Context) error
}

// SummaryManager defines the interface for summary job management
// This allows mocking in tests
type SummaryManager interface {
	StartJob(batchID, logDir string) (*models.SummaryJob, error)
	GetJob(id string) (*models.SummaryJob, bool)
	ListJobs() []*models.SummaryJob
	HasActiveJob(batchID string) bool
	GetReport(id string) (*models.Report, error)
	QueryReadings(ctx context.Context, id string, q parser.ReadingQuery) ([]models.Reading, error)
	QueryStats(ctx context.Context, id, node string) (map[string]map[models.MetricKey]models.Stat, error)
}
