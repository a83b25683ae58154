package handlers

import (
	"net/http"
	"strconv"

	gerrors "github.com/go-faster/errors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"compensation-service/internal/models"
	"compensation-service/internal/services"
	"compensation-service/pkg/common"
)

// Handler serves the read models consumed by the dashboard and payout sides.
type Handler struct {
	Graph       *services.ReferralGraph
	Matrix      *services.MatrixService
	Commissions *services.CommissionService
	Tiers       *services.TierUpgradeService
	Log         *logrus.Logger
}

// Register mounts the read-model routes on r.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/matrix/:memberId", h.GetMatrix)
	r.GET("/members/:memberId/downline", h.GetDownline)
	r.GET("/members/:memberId/tiers", h.GetTierHistory)
	r.GET("/commissions/:investmentId", h.GetCommissions)
}

func (h *Handler) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	message := "Internal error"
	switch {
	case gerrors.Is(err, models.ErrNotFound):
		status, message = http.StatusNotFound, "Not found"
	case gerrors.Is(err, models.ErrValidation):
		status, message = http.StatusBadRequest, err.Error()
	default:
		h.Log.WithError(err).WithField("path", c.FullPath()).Error("read model request failed")
	}
	c.JSON(status, common.NewErrorResponse(message, nil, status))
}

func intQuery(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil || v < 1 {
		return def
	}
	return v
}
