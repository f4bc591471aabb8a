package handlers

import (
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tanvi-vanity/vanity-agent/internal/core/domain"
	"github.com/tanvi-vanity/vanity-agent/internal/infra/logger"
	"github.com/tanvi-vanity/vanity-agent/internal/transport/http/middleware"
	"github.com/tanvi-vanity/vanity-agent/internal/usecase"
)

var exportContentTypes = map[domain.ExportFormat]string{
	domain.ExportFormatJSON: "application/json",
	domain.ExportFormatCSV:  "text/csv",
}

// ExportHandler accepts export requests and serves downloads.
type ExportHandler struct {
	exports *usecase.ExportService
}

// NewExportHandler constructs an ExportHandler.
func NewExportHandler(exports *usecase.ExportService) *ExportHandler {
	return &ExportHandler{exports: exports}
}

// RegisterRoutes binds the authenticated export routes.
func (h *ExportHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/export-data", h.RequestExport)
	r.GET("/export-data/:id", h.GetExport)
}

// RegisterDownload binds the download route. The token is the credential, so
// it does not require a bearer token.
func (h *ExportHandler) RegisterDownload(r gin.IRoutes) {
	r.GET("/download-data/:token", h.Download)
}

// RequestExport queues a new export; only one may be open per user.
func (h *ExportHandler) RequestExport(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req ExportRequestPayload
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
	}
	created, err := h.exports.RequestExport(c.Request.Context(), userID, usecase.ExportInput{
		DataTypes: req.DataTypes,
		Format:    req.Format,
	}, middleware.AuditContext(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	resp := newExportResponse(*created)
	resp.Message = "data export requested"
	c.JSON(http.StatusCreated, resp)
}

// GetExport reports the status of one export request.
func (h *ExportHandler) GetExport(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	req, err := h.exports.GetExport(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	resp := newExportResponse(*req)
	resp.Message = "export status retrieved"
	c.JSON(http.StatusOK, resp)
}

// Download streams the export file as an attachment.
func (h *ExportHandler) Download(c *gin.Context) {
	dl, err := h.exports.Download(c.Request.Context(), c.Param("token"), middleware.AuditContext(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	defer dl.Body.Close()

	contentType, ok := exportContentTypes[dl.Request.Format]
	if !ok {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": dl.Request.FileName()}))
	c.Header("Content-Type", contentType)
	if dl.Request.FileSizeBytes > 0 {
		c.Header("Content-Length", strconv.FormatInt(dl.Request.FileSizeBytes, 10))
	}
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, dl.Body); err != nil {
		logger.WithContext(c.Request.Context()).Warn("export download interrupted",
			zap.String("export_id", dl.Request.ID),
			zap.Error(err),
		)
	}
}
