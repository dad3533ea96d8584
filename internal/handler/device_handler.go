package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/chorusfm/chorus/internal/model"
	"github.com/chorusfm/chorus/internal/playback"
	"github.com/chorusfm/chorus/internal/repository"
)

// DeviceHandler exposes the REST view of the device group: listing, push
// token registration and a transfer mirror for clients without a live socket.
type DeviceHandler struct {
	coordinator   *playback.Coordinator
	pushTokenRepo *repository.PushTokenRepository
}

func NewDeviceHandler(coordinator *playback.Coordinator, pushTokenRepo *repository.PushTokenRepository) *DeviceHandler {
	return &DeviceHandler{
		coordinator:   coordinator,
		pushTokenRepo: pushTokenRepo,
	}
}

// ListDevices godoc
// @Summary List the user's connected devices
// @Tags Devices
// @Produce json
// @Security BearerAuth
// @Success 200 {array} model.DeviceSummary
// @Router /devices [get]
func (h *DeviceHandler) ListDevices(c *gin.Context) {
	userID := c.MustGet("user_id").(uuid.UUID)
	c.JSON(http.StatusOK, h.coordinator.DeviceList(userID))
}

// RegisterPushToken godoc
// @Summary Register a device's FCM token for wake-up pushes
// @Tags Devices
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body model.RegisterPushTokenRequest true "Push token"
// @Success 200 {object} model.SuccessResponse
// @Failure 400 {object} model.ErrorResponse
// @Router /devices/push-token [post]
func (h *DeviceHandler) RegisterPushToken(c *gin.Context) {
	userID := c.MustGet("user_id").(uuid.UUID)

	var req model.RegisterPushTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}

	err := h.pushTokenRepo.Upsert(&model.PushToken{
		UserID:   userID,
		DeviceID: req.DeviceID,
		Token:    req.Token,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{Error: "Failed to store push token"})
		return
	}

	c.JSON(http.StatusOK, model.SuccessResponse{Message: "Push token registered"})
}

// TransferPlayback godoc
// @Summary Transfer playback authority between two of the user's devices
// @Tags Playback
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body model.TransferRequest true "Transfer request"
// @Success 200 {object} model.SuccessResponse
// @Failure 400 {object} model.ErrorResponse
// @Router /playback/transfer [post]
func (h *DeviceHandler) TransferPlayback(c *gin.Context) {
	userID := c.MustGet("user_id").(uuid.UUID)

	var req model.TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}

	h.coordinator.Transfer(userID, req.FromDeviceID, req.ToDeviceID, req.WithState)
	c.JSON(http.StatusOK, model.SuccessResponse{Message: "Playback transferred"})
}
