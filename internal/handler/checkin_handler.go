package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/messhall-api/internal/service"
	appErrors "github.com/noah-isme/messhall-api/pkg/errors"
	"github.com/noah-isme/messhall-api/pkg/response"
)

// CheckInHandler exposes the student-facing QR scan endpoint.
type CheckInHandler struct {
	checkin *service.CheckInService
}

// NewCheckInHandler constructs CheckInHandler.
func NewCheckInHandler(checkin *service.CheckInService) *CheckInHandler {
	return &CheckInHandler{checkin: checkin}
}

// CheckInRequest carries the scanned QR payload.
type CheckInRequest struct {
	QRData string `json:"qr_data" binding:"required"`
}

// CheckIn godoc
// @Summary Check in via QR scan
// @Tags CheckIn
// @Accept json
// @Produce json
// @Param X-User-ID header string true "App user id"
// @Param payload body CheckInRequest true "Scanned payload"
// @Success 200 {object} response.Envelope
// @Router /checkin [post]
func (h *CheckInHandler) CheckIn(c *gin.Context) {
	userID := userIDFromRequest(c)
	if userID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "missing user identity"))
		return
	}
	var req CheckInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	result, err := h.checkin.CheckIn(c.Request.Context(), req.QRData, userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
