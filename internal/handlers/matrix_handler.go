package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"compensation-service/pkg/common"
)

// GetMatrix returns per-level occupancy of a member's matrix. depth defaults
// to the configured maximum.
func (h *Handler) GetMatrix(c *gin.Context) {
	levels, err := h.Matrix.Occupancy(c.Request.Context(), c.Param("memberId"), intQuery(c, "depth", 0))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, common.NewSuccessResponse(levels, "Matrix occupancy"))
}
