// handlers_batch.go - Upload batch handlers
package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/gpu-log-summary/backend/internal/storage"
)

// BatchHandlerImpl implements the BatchHandler interface
type BatchHandlerImpl struct {
	store storage.Store
	jobs  SummaryManager
}

// NewBatchHandler creates a new batch handler instance
func NewBatchHandler(store storage.Store, jobs SummaryManager) BatchHandler {
	return &BatchHandlerImpl{store: store, jobs: jobs}
}

// HandleCreateBatch allocates an empty batch to upload log files into
func (h *BatchHandlerImpl) HandleCreateBatch(c echo.Context) error {
	batch, err := h.store.CreateBatch()
	if err != nil {
		return NewInternalError("failed to create batch", err)
	}
	return c.JSON(http.StatusCreated, batch)
}

// HandleListBatches returns all batches, newest first
func (h *BatchHandlerImpl) HandleListBatches(c echo.Context) error {
	return c.JSON(http.StatusOK, h.store.ListBatches())
}

// HandleGetBatch returns batch metadata
func (h *BatchHandlerImpl) HandleGetBatch(c echo.Context) error {
	batchID := c.Param("batchId")
	batch, err := h.store.GetBatch(batchID)
	if err != nil {
		return storeError("batch", batchID, err)
	}
	return c.JSON(http.StatusOK, batch)
}

// HandleDeleteBatch removes a batch and its files. Batches still read by a
// pending or running summary are kept.
func (h *BatchHandlerImpl) HandleDeleteBatch(c echo.Context) error {
	batchID := c.Param("batchId")
	if h.jobs != nil && h.jobs.HasActiveJob(batchID) {
		return NewConflictError("batch is being summarized: " + batchID)
	}
	if err := h.store.DeleteBatch(batchID); err != nil {
		return storeError("batch", batchID, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleListBatchFiles returns the files uploaded to a batch
func (h *BatchHandlerImpl) HandleListBatchFiles(c echo.Context) error {
	batchID := c.Param("batchId")
	files, err := h.store.ListFiles(batchID)
	if err != nil {
		return storeError("batch", batchID, err)
	}
	return c.JSON(http.StatusOK, files)
}

// HandleUploadBatchFile accepts one log file as multipart form field "file"
func (h *BatchHandlerImpl) HandleUploadBatchFile(c echo.Context) error {
	batchID := c.Param("batchId")

	fh, err := c.FormFile("file")
	if err != nil {
		return NewValidationError("file")
	}

	src, err := fh.Open()
	if err != nil {
		return NewBadRequestError("failed to read upload", err)
	}
	defer src.Close()

	info, err := h.store.SaveToBatch(batchID, fh.Filename, src)
	if err != nil {
		if errors.Is(err, storage.ErrInvalidName) {
			return NewUnsupportedFileError(fh.Filename, err)
		}
		return storeError("batch", batchID, err)
	}

	return c.JSON(http.StatusCreated, info)
}

// storeError maps storage sentinels to API errors.
func storeError(resource, id string, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return NewNotFoundError(resource, id)
	}
	return NewInternalError("storage failure", err)
}
