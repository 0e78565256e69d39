package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campusworks/registry-api/internal/service"
	appErrors "github.com/campusworks/registry-api/pkg/errors"
	"github.com/campusworks/registry-api/pkg/response"
)

// ExportHandler exposes background roster export endpoints.
type ExportHandler struct {
	exports *service.ExportJobService
}

// NewExportHandler constructs ExportHandler.
func NewExportHandler(exports *service.ExportJobService) *ExportHandler {
	return &ExportHandler{exports: exports}
}

type exportJobRequest struct {
	Format string `json:"format"`
}

// CreateJob godoc
// @Summary Queue a background roster export
// @Tags Students
// @Accept json
// @Produce json
// @Param payload body exportJobRequest true "Export payload"
// @Success 202 {object} response.Envelope
// @Router /export-jobs [post]
func (h *ExportHandler) CreateJob(c *gin.Context) {
	var req exportJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	job, err := h.exports.Enqueue(req.Format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, job, nil)
}

// GetJob godoc
// @Summary Get the status of a roster export job
// @Tags Students
// @Produce json
// @Param jobId path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Router /export-jobs/{jobId} [get]
func (h *ExportHandler) GetJob(c *gin.Context) {
	job, err := h.exports.Get(c.Param("jobId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, job, nil)
}

// Download serves a completed export referenced by a signed token.
func (h *ExportHandler) Download(c *gin.Context) {
	path, contentType, err := h.exports.Resolve(c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Type", contentType)
	c.File(path)
}
