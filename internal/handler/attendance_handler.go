package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/messhall-api/internal/models"
	"github.com/noah-isme/messhall-api/internal/service"
	appErrors "github.com/noah-isme/messhall-api/pkg/errors"
	"github.com/noah-isme/messhall-api/pkg/response"
)

// AttendanceHandler exposes the mark/patch/delete/stats endpoints used by the
// admin console.
type AttendanceHandler struct {
	attendance *service.AttendanceService
}

// NewAttendanceHandler constructs AttendanceHandler.
func NewAttendanceHandler(attendance *service.AttendanceService) *AttendanceHandler {
	return &AttendanceHandler{attendance: attendance}
}

// MarkRequest is the payload for a single manual mark.
type MarkRequest struct {
	StudentID string `json:"student_id" binding:"required"`
	Date      string `json:"date"`
	Meal      string `json:"meal" binding:"required"`
	Present   *bool  `json:"present" binding:"required"`
}

// Mark godoc
// @Summary Mark one meal for a student
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body MarkRequest true "Mark payload"
// @Success 200 {object} response.Envelope
// @Router /attendance/mark [post]
func (h *AttendanceHandler) Mark(c *gin.Context) {
	var req MarkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		response.Error(c, err)
		return
	}
	meal, ok := models.ParseMeal(req.Meal)
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "meal must be breakfast, lunch or dinner"))
		return
	}

	record, created, err := h.attendance.MarkMeal(c.Request.Context(), req.StudentID, date, meal, *req.Present, models.SourceManual)
	if err != nil {
		response.Error(c, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	response.JSON(c, status, record, nil)
}

// GetRecord godoc
// @Summary Get one attendance record
// @Tags Attendance
// @Produce json
// @Param id path string true "Record ID"
// @Success 200 {object} response.Envelope
// @Router /attendance/records/{id} [get]
func (h *AttendanceHandler) GetRecord(c *gin.Context) {
	record, err := h.attendance.Record(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// UpdateRecord godoc
// @Summary Patch meal flags on a record
// @Tags Attendance
// @Accept json
// @Produce json
// @Param id path string true "Record ID"
// @Param payload body models.FlagPatch true "Flags to change"
// @Success 200 {object} response.Envelope
// @Router /attendance/records/{id} [patch]
func (h *AttendanceHandler) UpdateRecord(c *gin.Context) {
	var patch models.FlagPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	record, err := h.attendance.UpdateRecord(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// DeleteRecord godoc
// @Summary Delete an attendance record
// @Tags Attendance
// @Param id path string true "Record ID"
// @Success 204
// @Router /attendance/records/{id} [delete]
func (h *AttendanceHandler) DeleteRecord(c *gin.Context) {
	if err := h.attendance.DeleteRecord(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// BulkRequest marks one meal for many students at once.
type BulkRequest struct {
	StudentIDs []string `json:"student_ids" binding:"required,min=1"`
	Date       string   `json:"date"`
	Meal       string   `json:"meal" binding:"required"`
	Present    *bool    `json:"present" binding:"required"`
}

// Bulk godoc
// @Summary Mark one meal for many students
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body BulkRequest true "Bulk payload"
// @Success 200 {object} response.Envelope
// @Router /attendance/bulk [post]
func (h *AttendanceHandler) Bulk(c *gin.Context) {
	var req BulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		response.Error(c, err)
		return
	}
	meal, ok := models.ParseMeal(req.Meal)
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "meal must be breakfast, lunch or dinner"))
		return
	}

	result, err := h.attendance.MarkBulk(c.Request.Context(), req.StudentIDs, date, meal, *req.Present)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Stats godoc
// @Summary Per-meal turnout for a date
// @Tags Attendance
// @Produce json
// @Param date query string false "Date (YYYY-MM-DD), defaults to today"
// @Success 200 {object} response.Envelope
// @Router /attendance/stats [get]
func (h *AttendanceHandler) Stats(c *gin.Context) {
	date, err := parseDate(c.Query("date"))
	if err != nil {
		response.Error(c, err)
		return
	}
	stats, err := h.attendance.Stats(c.Request.Context(), date)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil, map[string]interface{}{
		"date": models.CalendarDate(date).Format("2006-01-02"),
	})
}
