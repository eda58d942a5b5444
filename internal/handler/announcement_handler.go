package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/messhall-api/internal/models"
	"github.com/noah-isme/messhall-api/internal/service"
	appErrors "github.com/noah-isme/messhall-api/pkg/errors"
	"github.com/noah-isme/messhall-api/pkg/response"
)

// AnnouncementHandler exposes mess notice endpoints.
type AnnouncementHandler struct {
	announcements *service.AnnouncementService
}

// NewAnnouncementHandler constructs AnnouncementHandler.
func NewAnnouncementHandler(announcements *service.AnnouncementService) *AnnouncementHandler {
	return &AnnouncementHandler{announcements: announcements}
}

// List godoc
// @Summary List recent announcements
// @Tags Announcements
// @Produce json
// @Param limit query int false "Max rows"
// @Success 200 {object} response.Envelope
// @Router /announcements [get]
func (h *AnnouncementHandler) List(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}
	list, err := h.announcements.List(c.Request.Context(), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, list, nil)
}

// Get godoc
// @Summary Get one announcement
// @Tags Announcements
// @Produce json
// @Param id path string true "Announcement ID"
// @Success 200 {object} response.Envelope
// @Router /announcements/{id} [get]
func (h *AnnouncementHandler) Get(c *gin.Context) {
	a, err := h.announcements.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, a, nil)
}

// AnnouncementRequest is the create/update payload for a notice.
type AnnouncementRequest struct {
	Title string `json:"title" binding:"required"`
	Body  string `json:"body" binding:"required"`
}

// Create godoc
// @Summary Publish an announcement
// @Tags Announcements
// @Accept json
// @Produce json
// @Param payload body AnnouncementRequest true "Notice payload"
// @Success 201 {object} response.Envelope
// @Router /announcements [post]
func (h *AnnouncementHandler) Create(c *gin.Context) {
	var req AnnouncementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	a := &models.Announcement{Title: req.Title, Body: req.Body, PostedBy: userIDFromRequest(c)}
	if err := h.announcements.Publish(c.Request.Context(), a); err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, a)
}

// Update godoc
// @Summary Edit an announcement
// @Tags Announcements
// @Accept json
// @Produce json
// @Param id path string true "Announcement ID"
// @Param payload body AnnouncementRequest true "Notice payload"
// @Success 200 {object} response.Envelope
// @Router /announcements/{id} [put]
func (h *AnnouncementHandler) Update(c *gin.Context) {
	var req AnnouncementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	a := &models.Announcement{ID: c.Param("id"), Title: req.Title, Body: req.Body}
	if err := h.announcements.Update(c.Request.Context(), a); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, a, nil)
}

// Delete godoc
// @Summary Delete an announcement
// @Tags Announcements
// @Param id path string true "Announcement ID"
// @Success 204
// @Router /announcements/{id} [delete]
func (h *AnnouncementHandler) Delete(c *gin.Context) {
	if err := h.announcements.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
