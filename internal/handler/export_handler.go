package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/uniplan/timetable-api/internal/dto"
	"github.com/uniplan/timetable-api/pkg/response"
)

type exportService interface {
	ExportCSV(ctx context.Context, semesterID string) ([]byte, string, error)
	ExportPDF(ctx context.Context, semesterID string) ([]byte, string, error)
	CreateDownloadLink(ctx context.Context, semesterID, format string) (*dto.ExportLinkResult, error)
	ReadDownload(token string) ([]byte, string, error)
}

// ExportHandler streams timetable grids as CSV or PDF downloads.
type ExportHandler struct {
	service exportService
}

// NewExportHandler constructs the handler.
func NewExportHandler(service exportService) *ExportHandler {
	return &ExportHandler{service: service}
}

// CSV godoc
// @Summary Export a semester grid as CSV
// @Tags Exports
// @Produce text/csv
// @Param semester_id path string true "Semester ID"
// @Success 200 {file} file
// @Router /timetable/{semester_id}/export/csv [get]
func (h *ExportHandler) CSV(c *gin.Context) {
	payload, filename, err := h.service.ExportCSV(c.Request.Context(), c.Param("semester_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "text/csv", payload)
}

// PDF godoc
// @Summary Export a semester grid as PDF
// @Tags Exports
// @Produce application/pdf
// @Param semester_id path string true "Semester ID"
// @Success 200 {file} file
// @Router /timetable/{semester_id}/export/pdf [get]
func (h *ExportHandler) PDF(c *gin.Context) {
	payload, filename, err := h.service.ExportPDF(c.Request.Context(), c.Param("semester_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/pdf", payload)
}

// Link godoc
// @Summary Create a signed download link for a semester export
// @Tags Exports
// @Produce json
// @Param semester_id path string true "Semester ID"
// @Param format query string true "csv or pdf"
// @Success 200 {object} response.Envelope
// @Router /timetable/{semester_id}/export/link [get]
func (h *ExportHandler) Link(c *gin.Context) {
	link, err := h.service.CreateDownloadLink(c.Request.Context(), c.Param("semester_id"), c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, link, nil)
}

// Download godoc
// @Summary Fetch an archived export with a signed token
// @Tags Exports
// @Param token query string true "Signed download token"
// @Success 200 {file} file
// @Router /exports/download [get]
func (h *ExportHandler) Download(c *gin.Context) {
	payload, filename, err := h.service.ReadDownload(c.Query("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	contentType := "text/csv"
	if strings.HasSuffix(filename, ".pdf") {
		contentType = "application/pdf"
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, contentType, payload)
}
