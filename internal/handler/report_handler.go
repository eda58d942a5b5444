package handler

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/messhall-api/internal/models"
	"github.com/noah-isme/messhall-api/internal/service"
	appErrors "github.com/noah-isme/messhall-api/pkg/errors"
	"github.com/noah-isme/messhall-api/pkg/response"
)

// ReportHandler exposes daily attendance export endpoints.
type ReportHandler struct {
	reports *service.ReportService
}

// NewReportHandler constructs ReportHandler.
func NewReportHandler(reports *service.ReportService) *ReportHandler {
	return &ReportHandler{reports: reports}
}

// ReportRequest queues a new export.
type ReportRequest struct {
	Date   string `json:"date"`
	Format string `json:"format" binding:"required,oneof=csv pdf"`
}

// Create godoc
// @Summary Queue a daily attendance report
// @Tags Reports
// @Accept json
// @Produce json
// @Param payload body ReportRequest true "Report payload"
// @Success 202 {object} response.Envelope
// @Router /reports [post]
func (h *ReportHandler) Create(c *gin.Context) {
	var req ReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		response.Error(c, err)
		return
	}
	job, err := h.reports.Request(c.Request.Context(), date, models.ReportFormat(req.Format))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, job, nil)
}

// Status godoc
// @Summary Get report job status
// @Tags Reports
// @Produce json
// @Param id path string true "Report job ID"
// @Success 200 {object} response.Envelope
// @Router /reports/{id} [get]
func (h *ReportHandler) Status(c *gin.Context) {
	job, err := h.reports.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, job, nil)
}

// Link godoc
// @Summary Issue a signed download link for a finished report
// @Tags Reports
// @Produce json
// @Param id path string true "Report job ID"
// @Success 200 {object} response.Envelope
// @Router /reports/{id}/link [get]
func (h *ReportHandler) Link(c *gin.Context) {
	token, expiresAt, err := h.reports.DownloadToken(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{
		"url":        "/reports/download?token=" + token,
		"expires_at": expiresAt,
	}, nil)
}

// Download godoc
// @Summary Download a report by signed token
// @Tags Reports
// @Param token query string true "Signed token"
// @Success 200
// @Router /reports/download [get]
func (h *ReportHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "missing token"))
		return
	}
	file, job, err := h.reports.OpenDownload(token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close()

	filename := fmt.Sprintf("attendance-%s.%s", job.Date.Format("2006-01-02"), job.Format)
	contentType := "text/csv"
	if job.Format == models.ReportFormatPDF {
		contentType = "application/pdf"
	}
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Header("Content-Type", contentType)
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, file)
}
