package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"fileupload/internal/service"
	"fileupload/internal/upload"

	"github.com/labstack/echo/v4"
)

// HealthChecker reports whether a backing dependency is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Handler contains the HTTP handlers for the upload API.
type Handler struct {
	svc *service.UploadService
	db  HealthChecker
}

// NewHandler creates a new handler. db may be nil when the server runs
// without persistence.
func NewHandler(svc *service.UploadService, db HealthChecker) *Handler {
	return &Handler{svc: svc, db: db}
}

// HandleUpload handles POST /api/upload.
// Accepts a multipart form; field names decide the upload shape and every
// other field is passed along as record data.
func (h *Handler) HandleUpload(c echo.Context) error {
	form, err := c.MultipartForm()
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "multipart/form-data body is required",
		})
	}
	defer form.RemoveAll()

	result, err := h.svc.ProcessUpload(c.Request().Context(), form)
	if err != nil {
		return mapServiceError(c, err)
	}

	status := http.StatusOK
	switch {
	case len(result.StoredFiles) > 0:
		status = http.StatusCreated
	case len(result.Errors) > 0:
		status = http.StatusUnprocessableEntity
	}
	return c.JSON(status, result)
}

// HandleInfo handles GET /api/uploads/:id.
// Returns the persisted record of an upload.
func (h *Handler) HandleInfo(c echo.Context) error {
	rec, err := h.svc.GetInfo(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, rec)
}

// HandleGroup handles GET /api/groups/:id.
// Returns every record of a mass-saved batch.
func (h *Handler) HandleGroup(c echo.Context) error {
	recs, err := h.svc.GetGroup(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"group_id": c.Param("id"),
		"uploads":  recs,
	})
}

// HandleDelete handles DELETE /api/uploads/:id/:token.
// Deletes an upload using the deletion token provided at upload time.
func (h *Handler) HandleDelete(c echo.Context) error {
	id := c.Param("id")
	token := c.Param("token")

	if err := h.svc.DeleteUpload(c.Request().Context(), id, token); err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"message": "upload deleted successfully",
	})
}

// HandleRemoveFile handles DELETE /api/files/:name.
// Removes a stored file without touching any record.
func (h *Handler) HandleRemoveFile(c echo.Context) error {
	if err := h.svc.RemoveFile(c.Request().Context(), c.Param("name")); err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"message": "file removed successfully",
	})
}

// HandleHealth handles GET /health.
// Returns the health status of the server, including database connectivity.
func (h *Handler) HandleHealth(c echo.Context) error {
	status := "healthy"
	dbStatus := "disabled"

	if h.db != nil {
		dbStatus = "connected"
		if err := h.db.HealthCheck(c.Request().Context()); err != nil {
			status = "degraded"
			dbStatus = fmt.Sprintf("error: %v", err)
		}
	}

	return c.JSON(http.StatusOK, echo.Map{
		"status":   status,
		"database": dbStatus,
	})
}

// HandleStats handles GET /api/stats.
// Returns aggregate statistics for the configured model.
func (h *Handler) HandleStats(c echo.Context) error {
	stats, err := h.svc.GetStats(c.Request().Context())
	if err != nil {
		if errors.Is(err, service.ErrNoPersistence) {
			return mapServiceError(c, err)
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"error": "failed to retrieve stats",
		})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"total_uploads":      stats.TotalUploads,
		"storage_used_bytes": stats.StorageUsed,
		"storage_used_human": humanizeBytes(stats.StorageUsed),
	})
}

// mapServiceError translates service-layer errors into appropriate HTTP responses.
func mapServiceError(c echo.Context, err error) error {
	var cfgErr *upload.ConfigurationError
	switch {
	case errors.Is(err, service.ErrNoUpload):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "no uploaded file in request"})
	case errors.Is(err, service.ErrMalformedInput), errors.Is(err, service.ErrUnresolved):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case errors.Is(err, service.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "upload not found"})
	case errors.Is(err, service.ErrInvalidToken):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "invalid deletion token"})
	case errors.Is(err, service.ErrInvalidName):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid file name"})
	case errors.Is(err, service.ErrRemoveFailed):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "file not found"})
	case errors.Is(err, service.ErrNoPersistence):
		return c.JSON(http.StatusNotImplemented, echo.Map{"error": "persistence is not configured"})
	case errors.As(err, &cfgErr):
		slog.Error("upload configuration error", "op", cfgErr.Op, "error", cfgErr.Err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "upload is misconfigured on the server"})
	default:
		slog.Error("request failed", "path", c.Request().URL.Path, "error", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
	}
}

// humanizeBytes formats a byte count into a human-readable string.
func humanizeBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}
