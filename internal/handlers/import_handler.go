package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	apierrors "github.com/stwalsh4118/schoolmap/api/internal/errors"
	"github.com/stwalsh4118/schoolmap/api/internal/middleware"
	"github.com/stwalsh4118/schoolmap/api/internal/models"
	"github.com/stwalsh4118/schoolmap/api/internal/services"
)

// maxUploadBytes caps how much CSV a single request may carry.
const maxUploadBytes = 100 << 20

// ImportHandler handles import pipeline HTTP requests.
type ImportHandler struct {
	service services.ImportService
}

// NewImportHandler creates a new ImportHandler instance.
func NewImportHandler(service services.ImportService) *ImportHandler {
	return &ImportHandler{
		service: service,
	}
}

// ParseResponse represents the response of the parse endpoint.
type ParseResponse struct {
	Format    string                `json:"format"`
	TotalRows int                   `json:"total_rows"`
	Rows      []models.SchoolRow    `json:"rows"`
	Districts []models.DistrictData `json:"districts"`
}

// BatchRequestBody represents one chunk submitted by an external
// orchestrator. Districts may be omitted; the coordinator derives them
// from the chunk's schools in that case.
type BatchRequestBody struct {
	Schools      []models.SchoolRow    `json:"schools"`
	Districts    []models.DistrictData `json:"districts"`
	BatchIndex   int                   `json:"batch_index" binding:"min=0"`
	TotalBatches int                   `json:"total_batches" binding:"required,min=1"`
	IsLastBatch  bool                  `json:"is_last_batch"`
}

// Create handles POST /api/v1/imports.
// It creates a new pending import run ledger.
func (h *ImportHandler) Create(c *gin.Context) {
	run, err := h.service.CreateRun(c.Request.Context())
	if err != nil {
		apierrors.InternalServerError(c, "Failed to create import run", err)
		return
	}

	c.JSON(http.StatusCreated, run)
}

// Parse handles POST /api/v1/imports/parse.
// It accepts CSV text (raw body or multipart "file") and returns the
// typed rows plus the de-duplicated districts they reference. No writes.
func (h *ImportHandler) Parse(c *gin.Context) {
	text, ok := h.readCSV(c)
	if !ok {
		return
	}

	result, err := h.service.Parse(text)
	if err != nil {
		apierrors.BadRequest(c, err.Error(), nil)
		return
	}

	c.JSON(http.StatusOK, ParseResponse{
		Format:    result.Format,
		TotalRows: len(result.Rows),
		Rows:      result.Rows,
		Districts: result.Districts,
	})
}

// Get handles GET /api/v1/imports/:id.
// It returns the run's ledger for progress polling.
func (h *ImportHandler) Get(c *gin.Context) {
	runID, ok := h.runID(c)
	if !ok {
		return
	}

	run, err := h.service.GetRun(c.Request.Context(), runID)
	if err != nil {
		if errors.Is(err, services.ErrRunNotFound) {
			apierrors.NotFound(c, "Import run not found")
			return
		}
		apierrors.InternalServerError(c, "Failed to query import run", err)
		return
	}

	c.JSON(http.StatusOK, run)
}

// Cancel handles POST /api/v1/imports/:id/cancel.
// The coordinator observes the cancellation at the next chunk boundary;
// chunks already committed stay committed.
func (h *ImportHandler) Cancel(c *gin.Context) {
	runID, ok := h.runID(c)
	if !ok {
		return
	}

	run, err := h.service.CancelRun(c.Request.Context(), runID)
	if err != nil {
		if errors.Is(err, services.ErrRunNotFound) {
			apierrors.NotFound(c, "Import run not found")
			return
		}
		if errors.Is(err, services.ErrRunTerminal) {
			apierrors.Conflict(c, "Import run already finished")
			return
		}
		apierrors.InternalServerError(c, "Failed to cancel import run", err)
		return
	}

	c.JSON(http.StatusOK, run)
}

// ProcessBatch handles POST /api/v1/imports/:id/batches.
// One call processes one chunk in dependency order: districts first,
// then schools, then the ledger merge.
func (h *ImportHandler) ProcessBatch(c *gin.Context) {
	runID, ok := h.runID(c)
	if !ok {
		return
	}

	var body BatchRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			apierrors.ValidationError(c, validationErrors)
			return
		}
		apierrors.BadRequest(c, "Invalid batch request body", nil)
		return
	}

	if log := middleware.GetLogger(c); log != nil {
		log.Info("Processing import batch", map[string]interface{}{
			"run_id":        runID.String(),
			"batch_index":   body.BatchIndex,
			"total_batches": body.TotalBatches,
			"schools":       len(body.Schools),
			"districts":     len(body.Districts),
		})
	}

	result, err := h.service.ProcessBatch(c.Request.Context(), services.BatchRequest{
		RunID:        runID,
		Schools:      body.Schools,
		Districts:    body.Districts,
		BatchIndex:   body.BatchIndex,
		TotalBatches: body.TotalBatches,
		IsLastBatch:  body.IsLastBatch,
	})
	if err != nil {
		if errors.Is(err, services.ErrRunNotFound) {
			apierrors.NotFound(c, "Import run not found")
			return
		}
		if errors.Is(err, services.ErrRunTerminal) {
			apierrors.Conflict(c, "Import run already finished")
			return
		}
		apierrors.InternalServerError(c, "Failed to process batch", err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// RunFile handles POST /api/v1/imports/:id/file.
// It runs the whole pipeline server-side for an uploaded CSV: parse,
// chunk, process to completion or cancellation, and returns the
// terminal ledger.
func (h *ImportHandler) RunFile(c *gin.Context) {
	runID, ok := h.runID(c)
	if !ok {
		return
	}

	text, readOK := h.readCSV(c)
	if !readOK {
		return
	}

	run, err := h.service.RunFile(c.Request.Context(), runID, text)
	if err != nil {
		if errors.Is(err, services.ErrRunNotFound) {
			apierrors.NotFound(c, "Import run not found")
			return
		}
		if errors.Is(err, services.ErrRunTerminal) {
			apierrors.Conflict(c, "Import run already finished")
			return
		}
		if errors.Is(err, services.ErrEmptyFile) {
			apierrors.BadRequest(c, "No importable rows in file", nil)
			return
		}
		apierrors.InternalServerError(c, "Import failed", err)
		return
	}

	c.JSON(http.StatusOK, run)
}

// runID parses the :id path parameter. On failure it writes the error
// response and returns false.
func (h *ImportHandler) runID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		apierrors.BadRequest(c, "Invalid run id", map[string]interface{}{
			"id": c.Param("id"),
		})
		return uuid.Nil, false
	}
	return id, true
}

// readCSV extracts CSV text from a multipart "file" field when present,
// otherwise from the raw request body. On failure it writes the error
// response and returns false.
func (h *ImportHandler) readCSV(c *gin.Context) (string, bool) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)

	if file, err := c.FormFile("file"); err == nil {
		f, openErr := file.Open()
		if openErr != nil {
			apierrors.BadRequest(c, "Could not open uploaded file", nil)
			return "", false
		}
		defer f.Close()

		data, readErr := io.ReadAll(f)
		if readErr != nil {
			apierrors.BadRequest(c, "Could not read uploaded file", nil)
			return "", false
		}
		return string(data), true
	}

	data, err := io.ReadAll(c.Request.Body)
	if err != nil {
		apierrors.BadRequest(c, "Could not read request body", nil)
		return "", false
	}
	if len(data) == 0 {
		apierrors.BadRequest(c, "Empty CSV payload", nil)
		return "", false
	}
	return string(data), true
}
