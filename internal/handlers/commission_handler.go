package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"compensation-service/pkg/common"
)

// GetCommissions returns the commissions of an investment with their net
// amounts after any clawback.
func (h *Handler) GetCommissions(c *gin.Context) {
	lines, err := h.Commissions.Statement(c.Request.Context(), c.Param("investmentId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, common.NewSuccessResponse(lines, "Commissions"))
}
