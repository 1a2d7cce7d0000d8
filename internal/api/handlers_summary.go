// handlers_summary.go - Summary job handlers
package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/gpu-log-summary/backend/internal/parser"
	"github.com/gpu-log-summary/backend/internal/session"
	"github.com/gpu-log-summary/backend/internal/storage"
)

// MIMEApplicationMsgpack is the negotiated binary report encoding.
const MIMEApplicationMsgpack = "application/msgpack"

// maxReadingsLimit caps a single readings response.
const maxReadingsLimit = 100000

// SummaryHandlerImpl implements the SummaryHandler interface
type SummaryHandlerImpl struct {
	store storage.Store
	jobs  SummaryManager
}

// NewSummaryHandler creates a new summary handler instance
func NewSummaryHandler(store storage.Store, jobs SummaryManager) SummaryHandler {
	return &SummaryHandlerImpl{store: store, jobs: jobs}
}

// HandleStartSummary starts an asynchronous summary of a batch
func (h *SummaryHandlerImpl) HandleStartSummary(c echo.Context) error {
	batchID := c.Param("batchId")

	dir, err := h.store.BatchDir(batchID)
	if err != nil {
		return storeError("batch", batchID, err)
	}

	job, err := h.jobs.StartJob(batchID, dir)
	if err != nil {
		return NewInternalError("failed to start summary", err)
	}

	return c.JSON(http.StatusAccepted, job)
}

// HandleListSummaries returns all known jobs, newest first
func (h *SummaryHandlerImpl) HandleListSummaries(c echo.Context) error {
	return c.JSON(http.StatusOK, h.jobs.ListJobs())
}

// HandleSummaryStatus returns the current job state
func (h *SummaryHandlerImpl) HandleSummaryStatus(c echo.Context) error {
	jobID := c.Param("jobId")
	job, ok := h.jobs.GetJob(jobID)
	if !ok {
		return NewNotFoundError("summary", jobID)
	}
	return c.JSON(http.StatusOK, job)
}

// HandleGetSummary returns the report of a completed job as JSON, or as
// msgpack when the client accepts it.
func (h *SummaryHandlerImpl) HandleGetSummary(c echo.Context) error {
	jobID := c.Param("jobId")
	report, err := h.jobs.GetReport(jobID)
	if err != nil {
		return jobError(jobID, err)
	}

	if acceptsMsgpack(c.Request().Header.Get(echo.HeaderAccept)) {
		data, err := msgpack.Marshal(report)
		if err != nil {
			return NewInternalError("failed to encode msgpack", err)
		}
		return c.Blob(http.StatusOK, MIMEApplicationMsgpack, data)
	}

	return c.JSON(http.StatusOK, report)
}

// HandleGetReadings returns persisted raw readings filtered by node, gpu and metric
func (h *SummaryHandlerImpl) HandleGetReadings(c echo.Context) error {
	jobID := c.Param("jobId")

	q := parser.ReadingQuery{
		Node:   c.QueryParam("node"),
		Device: c.QueryParam("gpu"),
		Metric: c.QueryParam("metric"),
		Limit:  maxReadingsLimit,
	}
	if raw := c.QueryParam("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return NewValidationError("limit")
		}
		if limit < q.Limit {
			q.Limit = limit
		}
	}

	readings, err := h.jobs.QueryReadings(c.Request().Context(), jobID, q)
	if err != nil {
		return jobError(jobID, err)
	}
	return c.JSON(http.StatusOK, readings)
}

// HandleGetStats recomputes one node's statistics in SQL from the persisted
// readings, per gpu and metric
func (h *SummaryHandlerImpl) HandleGetStats(c echo.Context) error {
	jobID := c.Param("jobId")
	node := c.QueryParam("node")
	if node == "" {
		return NewValidationError("node")
	}

	stats, err := h.jobs.QueryStats(c.Request().Context(), jobID, node)
	if err != nil {
		return jobError(jobID, err)
	}
	if len(stats) == 0 {
		return NewNotFoundError("node", node)
	}
	return c.JSON(http.StatusOK, stats)
}

func jobError(jobID string, err error) error {
	switch {
	case errors.Is(err, session.ErrJobNotFound):
		return NewNotFoundError("summary", jobID)
	case errors.Is(err, session.ErrJobNotComplete):
		return NewConflictError(err.Error())
	case errors.Is(err, session.ErrNoReadings):
		return NewNotFoundError("readings", jobID)
	}
	return NewInternalError("summary lookup failed", err)
}

func acceptsMsgpack(accept string) bool {
	for _, part := range strings.Split(accept, ",") {
		mediaType, _, _ := strings.Cut(strings.TrimSpace(part), ";")
		switch strings.ToLower(strings.TrimSpace(mediaType)) {
		case MIMEApplicationMsgpack, "application/x-msgpack":
			return true
		}
	}
	return false
}
