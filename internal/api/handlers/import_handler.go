package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"cobrapyme/morosidad/internal/config"
	"cobrapyme/morosidad/internal/importer"
	"cobrapyme/morosidad/internal/services"
)

// ImportHandler drives the two-phase reconciliation import over HTTP.
type ImportHandler struct {
	cfg           *config.Config
	importService services.IImportService
}

// NewImportHandler creates a new ImportHandler.
func NewImportHandler(cfg *config.Config, importService services.IImportService) *ImportHandler {
	return &ImportHandler{cfg: cfg, importService: importService}
}

// Preview handles POST /v1/import/preview (multipart form, field "file").
func (h *ImportHandler) Preview(c *gin.Context) {
	ownerID, err := currentUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart field 'file' is required"})
		return
	}
	if max := int64(h.cfg.ImportMaxFileMB) * 1024 * 1024; max > 0 && fileHeader.Size > max {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to open uploaded file"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read uploaded file"})
		return
	}

	preview, err := h.importService.Preview(c.Request.Context(), ownerID, fileHeader.Filename, data)
	if err != nil {
		var fe *importer.FormatError
		if errors.As(err, &fe) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": fe.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to parse import file"})
		return
	}
	c.JSON(http.StatusOK, preview)
}

type commitRequest struct {
	PreviewID string         `json:"preview_id"`
	Rows      []importer.Row `json:"rows"`
}

// Commit handles POST /v1/import/commit. Accepts either a preview_id from a
// prior preview or the rows themselves.
func (h *ImportHandler) Commit(c *gin.Context) {
	ownerID, err := currentUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	var req commitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var summary *services.CommitSummary
	switch {
	case req.PreviewID != "":
		summary, err = h.importService.Commit(c.Request.Context(), ownerID, req.PreviewID, requestToday())
	case len(req.Rows) > 0:
		summary, err = h.importService.CommitRows(c.Request.Context(), ownerID, req.Rows, requestToday())
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "either preview_id or rows is required"})
		return
	}
	if err != nil {
		if errors.Is(err, services.ErrPreviewNotFound) {
			c.JSON(http.StatusGone, gin.H{"error": "import preview not found or expired"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "import commit failed"})
		return
	}
	c.JSON(http.StatusOK, summary)
}
