package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"catalog-service/internal/importer"
	"catalog-service/internal/middleware"
	"catalog-service/internal/models"
	"catalog-service/internal/report"
	"catalog-service/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// RunStore is the import run persistence used by the HTTP API
type RunStore interface {
	CreateRun(ctx context.Context, run *models.ImportRun) error
	GetRun(ctx context.Context, sellerID int64, id uuid.UUID) (*models.ImportRun, error)
	RequestCancel(ctx context.Context, sellerID int64, id uuid.UUID) (*models.ImportRun, error)
	ListResults(ctx context.Context, importID uuid.UUID, status models.ResultStatus, page, limit int) ([]models.ImportResult, int64, error)
}

// RunQueue hands a created run to the import worker
type RunQueue interface {
	Enqueue(ctx context.Context, importID uuid.UUID) error
}

// SchemaLookup resolves the attribute schema used to build templates
type SchemaLookup interface {
	Resolve(ctx context.Context, sellerID int64, attributeSetID uint) (*importer.Schema, error)
}

// ImportHandlerOptions bounds uploads and result pages
type ImportHandlerOptions struct {
	MaxUploadBytes  int64
	DefaultPageSize int
	MaxPageSize     int
}

type ImportHandler struct {
	runs    RunStore
	files   storage.FileStore
	queue   RunQueue
	schemas SchemaLookup
	opts    ImportHandlerOptions
	logger  *logrus.Logger
}

func NewImportHandler(runs RunStore, files storage.FileStore, queue RunQueue, schemas SchemaLookup, opts ImportHandlerOptions, logger *logrus.Logger) *ImportHandler {
	if opts.DefaultPageSize <= 0 {
		opts.DefaultPageSize = 20
	}
	if opts.MaxPageSize <= 0 {
		opts.MaxPageSize = 100
	}
	return &ImportHandler{
		runs:    runs,
		files:   files,
		queue:   queue,
		schemas: schemas,
		opts:    opts,
		logger:  logger,
	}
}

// GetImportTemplate returns the import template definition or file
// @Summary Get import template
// @Description Column contract of an import kind, extended with the attribute set's columns
// @Tags Imports
// @Produce json
// @Param kind query string true "Import kind" Enums(create-full, create-basic, create-quick, update-basic)
// @Param attributeSetId query int true "Attribute set"
// @Param format query string false "json, csv or xlsx" default(json)
// @Success 200 {object} models.ImportTemplate
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /imports/template [get]
func (h *ImportHandler) GetImportTemplate(c *gin.Context) {
	sellerID, ok := h.seller(c)
	if !ok {
		return
	}

	kind := models.ImportKind(c.Query("kind"))
	if !kind.Valid() {
		h.badRequest(c, "INVALID_KIND", fmt.Sprintf("kind must be one of %v", models.ImportKinds()), "kind")
		return
	}

	attributeSetID, err := strconv.ParseUint(c.Query("attributeSetId"), 10, 64)
	if err != nil || attributeSetID == 0 {
		h.badRequest(c, "INVALID_ATTRIBUTE_SET", "attributeSetId must be a positive integer", "attributeSetId")
		return
	}
	schema, err := h.schemas.Resolve(c.Request.Context(), sellerID, uint(attributeSetID))
	if err != nil {
		var schemaErr *importer.SchemaNotFoundError
		if errors.As(err, &schemaErr) {
			h.notFound(c, "ATTRIBUTE_SET_NOT_FOUND", err.Error())
			return
		}
		h.internalError(c, "Failed to resolve attribute set", err)
		return
	}

	template := report.BuildTemplate(kind, schema)

	switch c.DefaultQuery("format", "json") {
	case "csv":
		c.Header("Content-Type", "text/csv")
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s_import_template.csv", kind))
		if err := report.WriteTemplateCSV(c.Writer, template); err != nil {
			h.logger.WithError(err).Error("Failed to write CSV template")
		}
	case "xlsx":
		c.Header("Content-Type", report.ContentTypeXLSX)
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s_import_template.xlsx", kind))
		if err := report.WriteTemplateXLSX(c.Writer, template); err != nil {
			h.logger.WithError(err).Error("Failed to write XLSX template")
		}
	default:
		c.JSON(http.StatusOK, gin.H{
			"success":  true,
			"template": template,
		})
	}
}

// CreateImport stores an uploaded file and queues a new run
// @Summary Submit import file
// @Tags Imports
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "CSV or XLSX file"
// @Param kind formData string true "Import kind"
// @Param attributeSetId formData int true "Attribute set"
// @Success 202 {object} models.SuccessResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 413 {object} models.ErrorResponse
// @Router /imports [post]
func (h *ImportHandler) CreateImport(c *gin.Context) {
	sellerID, ok := h.seller(c)
	if !ok {
		return
	}

	kind := models.ImportKind(c.PostForm("kind"))
	if !kind.Valid() {
		h.badRequest(c, "INVALID_KIND", fmt.Sprintf("kind must be one of %v", models.ImportKinds()), "kind")
		return
	}

	attributeSetID, err := strconv.ParseUint(c.PostForm("attributeSetId"), 10, 64)
	if err != nil || attributeSetID == 0 {
		h.badRequest(c, "INVALID_ATTRIBUTE_SET", "attributeSetId must be a positive integer", "attributeSetId")
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		h.badRequest(c, "FILE_REQUIRED", "No file uploaded", "file")
		return
	}
	if h.opts.MaxUploadBytes > 0 && fileHeader.Size > h.opts.MaxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, models.ErrorResponse{
			Success: false,
			Error: models.Error{
				Code:    "FILE_TOO_LARGE",
				Message: fmt.Sprintf("File exceeds %d MB", h.opts.MaxUploadBytes>>20),
				Field:   "file",
			},
		})
		return
	}

	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	var format models.ImportFormat
	switch ext {
	case ".csv":
		format = models.ImportFormatCSV
	case ".xlsx":
		format = models.ImportFormatXLSX
	default:
		h.badRequest(c, "INVALID_FORMAT", "Unsupported file format. Use .csv or .xlsx", "file")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		h.badRequest(c, "FILE_READ_ERROR", "Failed to read uploaded file", "file")
		return
	}
	defer file.Close()

	ctx := c.Request.Context()
	run := &models.ImportRun{
		ID:             uuid.New(),
		SellerID:       sellerID,
		Type:           kind,
		AttributeSetID: uint(attributeSetID),
		FileFormat:     format,
		Status:         models.ImportStatusNew,
		CreatedBy:      middleware.GetActorID(c),
	}
	run.FilePath = storage.UploadKey(sellerID, run.ID, ext)

	contentType := "text/csv"
	if format == models.ImportFormatXLSX {
		contentType = report.ContentTypeXLSX
	}
	if err := h.files.Save(ctx, run.FilePath, file, contentType); err != nil {
		h.internalError(c, "Failed to store uploaded file", err)
		return
	}

	if err := h.runs.CreateRun(ctx, run); err != nil {
		h.internalError(c, "Failed to create import run", err)
		return
	}

	log := h.logger.WithFields(logrus.Fields{
		"import_id": run.ID,
		"seller_id": sellerID,
		"kind":      kind,
	})

	if err := h.queue.Enqueue(ctx, run.ID); err != nil {
		log.WithError(err).Error("Failed to queue import run")
		c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{
			Success: false,
			Error: models.Error{
				Code:    "QUEUE_UNAVAILABLE",
				Message: "Import run was created but could not be queued",
				Details: &models.JSON{"importId": run.ID.String()},
			},
		})
		return
	}

	log.Info("Import run queued")
	c.JSON(http.StatusAccepted, models.SuccessResponse{
		Success: true,
		Data:    run,
	})
}

// GetImport returns one run of the calling seller
// @Summary Get import run
// @Tags Imports
// @Produce json
// @Param id path string true "Import run ID"
// @Success 200 {object} models.SuccessResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /imports/{id} [get]
func (h *ImportHandler) GetImport(c *gin.Context) {
	run, ok := h.loadRun(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, models.SuccessResponse{
		Success: true,
		Data:    run,
	})
}

// ListImportResults returns the per-row results of a run
// @Summary List import results
// @Tags Imports
// @Produce json
// @Param id path string true "Import run ID"
// @Param status query string false "success, failure or fatal"
// @Param page query int false "Page number" default(1)
// @Param limit query int false "Items per page" default(20)
// @Success 200 {object} models.SuccessResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /imports/{id}/results [get]
func (h *ImportHandler) ListImportResults(c *gin.Context) {
	run, ok := h.loadRun(c)
	if !ok {
		return
	}

	status := models.ResultStatus(c.Query("status"))
	switch status {
	case "", models.ResultStatusSuccess, models.ResultStatusFailure, models.ResultStatusFatal:
	default:
		h.badRequest(c, "INVALID_STATUS", "status must be success, failure or fatal", "status")
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(h.opts.DefaultPageSize)))
	if limit < 1 {
		limit = h.opts.DefaultPageSize
	}
	if limit > h.opts.MaxPageSize {
		limit = h.opts.MaxPageSize
	}

	results, total, err := h.runs.ListResults(c.Request.Context(), run.ID, status, page, limit)
	if err != nil {
		h.internalError(c, "Failed to list import results", err)
		return
	}

	totalPages := int((total + int64(limit) - 1) / int64(limit))
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    results,
		"pagination": models.PaginationInfo{
			Page:        page,
			Limit:       limit,
			Total:       total,
			TotalPages:  totalPages,
			HasNext:     page < totalPages,
			HasPrevious: page > 1,
		},
	})
}

// CancelImport flags a pending or running import for cancellation
// @Summary Cancel import run
// @Tags Imports
// @Produce json
// @Param id path string true "Import run ID"
// @Success 202 {object} models.SuccessResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /imports/{id}/cancel [post]
func (h *ImportHandler) CancelImport(c *gin.Context) {
	sellerID, ok := h.seller(c)
	if !ok {
		return
	}
	id, ok := h.runID(c)
	if !ok {
		return
	}

	run, err := h.runs.RequestCancel(c.Request.Context(), sellerID, id)
	switch {
	case errors.Is(err, importer.ErrNotFound):
		h.notFound(c, "IMPORT_NOT_FOUND", "Import run not found")
		return
	case errors.Is(err, importer.ErrRunNotClaimable):
		c.JSON(http.StatusConflict, models.ErrorResponse{
			Success: false,
			Error: models.Error{
				Code:    "IMPORT_FINISHED",
				Message: "Import run has already finished",
			},
		})
		return
	case err != nil:
		h.internalError(c, "Failed to cancel import run", err)
		return
	}

	h.logger.WithFields(logrus.Fields{"import_id": id, "seller_id": sellerID}).Info("Import cancellation requested")
	c.JSON(http.StatusAccepted, models.SuccessResponse{
		Success: true,
		Data:    run,
	})
}

// DownloadReport streams the rendered report of a finished run
// @Summary Download import report
// @Tags Imports
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param id path string true "Import run ID"
// @Success 200 {file} file
// @Failure 404 {object} models.ErrorResponse
// @Router /imports/{id}/report [get]
func (h *ImportHandler) DownloadReport(c *gin.Context) {
	run, ok := h.loadRun(c)
	if !ok {
		return
	}
	if run.ReportPath == nil || *run.ReportPath == "" {
		h.notFound(c, "REPORT_NOT_READY", "Report is not available yet")
		return
	}

	body, err := h.files.Open(c.Request.Context(), *run.ReportPath)
	if err != nil {
		if errors.Is(err, importer.ErrNotFound) {
			h.notFound(c, "REPORT_NOT_FOUND", "Report file is missing")
			return
		}
		h.internalError(c, "Failed to open report", err)
		return
	}
	defer body.Close()

	c.DataFromReader(http.StatusOK, -1, report.ContentTypeXLSX, body, map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=import_%s_report.xlsx", run.ID),
	})
}

func (h *ImportHandler) loadRun(c *gin.Context) (*models.ImportRun, bool) {
	sellerID, ok := h.seller(c)
	if !ok {
		return nil, false
	}
	id, ok := h.runID(c)
	if !ok {
		return nil, false
	}

	run, err := h.runs.GetRun(c.Request.Context(), sellerID, id)
	if err != nil {
		if errors.Is(err, importer.ErrNotFound) {
			h.notFound(c, "IMPORT_NOT_FOUND", "Import run not found")
			return nil, false
		}
		h.internalError(c, "Failed to load import run", err)
		return nil, false
	}
	return run, true
}

func (h *ImportHandler) seller(c *gin.Context) (int64, bool) {
	sellerID, ok := middleware.GetSellerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{
			Success: false,
			Error: models.Error{
				Code:    "SELLER_REQUIRED",
				Message: "Seller context is required",
			},
		})
		return 0, false
	}
	return sellerID, true
}

func (h *ImportHandler) runID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.badRequest(c, "INVALID_ID", "Invalid import run ID", "id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *ImportHandler) badRequest(c *gin.Context, code, message, field string) {
	c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Success: false,
		Error: models.Error{
			Code:    code,
			Message: message,
			Field:   field,
		},
	})
}

func (h *ImportHandler) notFound(c *gin.Context, code, message string) {
	c.JSON(http.StatusNotFound, models.ErrorResponse{
		Success: false,
		Error: models.Error{
			Code:    code,
			Message: message,
		},
	})
}

func (h *ImportHandler) internalError(c *gin.Context, message string, err error) {
	h.logger.WithError(err).Error(message)
	c.JSON(http.StatusInternalServerError, models.ErrorResponse{
		Success: false,
		Error: models.Error{
			Code:    "INTERNAL_ERROR",
			Message: message,
		},
	})
}
