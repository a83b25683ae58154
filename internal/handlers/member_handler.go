package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"compensation-service/pkg/common"
)

const maxDownlineDepth = 10

func (h *Handler) GetDownline(c *gin.Context) {
	page := intQuery(c, "page", 1)
	limit := intQuery(c, "limit", 50)
	depth := intQuery(c, "depth", maxDownlineDepth)
	if depth > maxDownlineDepth {
		depth = maxDownlineDepth
	}

	entries, err := h.Graph.Downline(c.Request.Context(), c.Param("memberId"), depth)
	if err != nil {
		h.fail(c, err)
		return
	}
	start, end := common.PageBounds(len(entries), page, limit)
	c.JSON(http.StatusOK, common.PaginateResponse(entries[start:end], int64(len(entries)), page, limit, ""))
}

func (h *Handler) GetTierHistory(c *gin.Context) {
	history, err := h.Tiers.History(c.Request.Context(), c.Param("memberId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, common.NewSuccessResponse(history, "Tier history"))
}
