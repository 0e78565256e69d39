package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campusworks/registry-api/internal/service"
	"github.com/campusworks/registry-api/pkg/response"
)

// CatalogHandler exposes the aggregated course catalog.
type CatalogHandler struct {
	catalog *service.CatalogService
}

// NewCatalogHandler constructs CatalogHandler.
func NewCatalogHandler(catalog *service.CatalogService) *CatalogHandler {
	return &CatalogHandler{catalog: catalog}
}

// Get godoc
// @Summary Get the department/course/semester catalog tree
// @Tags Catalog
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /catalog [get]
func (h *CatalogHandler) Get(c *gin.Context) {
	catalog, err := h.catalog.Get(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, catalog, nil)
}
