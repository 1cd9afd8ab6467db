package backend

import (
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/jo-hoe/imageintake/internal/backend/database"
	"github.com/jo-hoe/imageintake/internal/core"
	"github.com/jo-hoe/imageintake/internal/intake"
	"github.com/jo-hoe/imageintake/internal/thumbnail"
	"github.com/labstack/echo/v4"
)

const mimePNG = "image/png"

type APIService struct {
	coreService *core.CoreService
	config      *core.ServiceConfig
}

type ValidateRequest struct {
	CurrentCount int `form:"currentCount" validate:"gte=0"`
	// UpdateIndex is empty for a plain add.
	UpdateIndex string `form:"updateIndex" validate:"omitempty,numeric"`
}

type ValidationResponse struct {
	Accepted bool                   `json:"accepted"`
	Failures []intake.FailureReason `json:"failures,omitempty"`
}

type UploadsResponse struct {
	IDs []string `json:"ids"`
}

// OptionsResponse describes the picker configuration clients should use.
type OptionsResponse struct {
	Accept      string `json:"accept"`
	Multiple    bool   `json:"multiple"`
	MaxNumber   int    `json:"maxNumber"`
	MaxFileSize int64  `json:"maxFileSize,omitempty"`
	FieldName   string `json:"fieldName"`
	DataURLKey  string `json:"dataURLKey"`
}

func NewAPIService(config *core.ServiceConfig, coreService *core.CoreService) *APIService {
	return &APIService{
		coreService: coreService,
		config:      config,
	}
}

func (s *APIService) SetRoutes(e *echo.Echo) {
	e.GET("/probe", func(ctx echo.Context) error {
		return ctx.String(http.StatusOK, "API Service is running")
	})

	e.GET("/api/intake/options", s.optionsHandler)
	e.POST("/api/intake/validate", s.validateHandler)

	e.POST("/api/uploads", s.createUploadsHandler)
	e.GET("/api/uploads", s.listUploadsHandler)
	e.GET("/api/uploads/:id", s.getUploadHandler)
	e.PUT("/api/uploads/:id", s.replaceUploadHandler)
	e.DELETE("/api/uploads/:id", s.deleteUploadHandler)
	e.GET("/api/uploads/:id/thumbnail", s.thumbnailHandler)
}

func (s *APIService) optionsHandler(ctx echo.Context) error {
	u := s.config.Uploader
	return ctx.JSON(http.StatusOK, OptionsResponse{
		Accept:      intake.AcceptString(u.AcceptType),
		Multiple:    u.AllowMultiple(),
		MaxNumber:   u.MaxNumber,
		MaxFileSize: u.MaxFileSize,
		FieldName:   u.FieldName,
		DataURLKey:  u.DataURLKey,
	})
}

func (s *APIService) validateHandler(ctx echo.Context) error {
	var request ValidateRequest
	if err := ctx.Bind(&request); err != nil {
		slog.Warn("validateHandler: failed to bind request", "status", http.StatusBadRequest, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request")
	}
	if err := ctx.Validate(&request); err != nil {
		return err
	}

	var updateIndex *int
	if request.UpdateIndex != "" {
		index, err := strconv.Atoi(request.UpdateIndex)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid updateIndex")
		}
		updateIndex = &index
	}

	files, err := s.formFiles(ctx)
	if err != nil {
		return err
	}

	result, err := s.coreService.ValidateBatch(ctx.Request().Context(), intake.MultipartFiles(files), request.CurrentCount, updateIndex)
	if err != nil {
		return s.intakeError("validateHandler", err)
	}
	if !result.Accepted() {
		slog.Info("validateHandler: batch rejected", "files", len(files), "reasons", result.Summary())
		return ctx.JSON(http.StatusUnprocessableEntity, ValidationResponse{Failures: result.Failures})
	}
	return ctx.JSON(http.StatusOK, ValidationResponse{Accepted: true})
}

func (s *APIService) createUploadsHandler(ctx echo.Context) error {
	files, err := s.formFiles(ctx)
	if err != nil {
		return err
	}

	uploads, err := s.coreService.StoreUploads(ctx.Request().Context(), intake.MultipartFiles(files))
	if err != nil {
		var rejection *intake.RejectionError
		if errors.As(err, &rejection) {
			slog.Warn("createUploadsHandler: upload rejected",
				"status", http.StatusUnprocessableEntity, "reasons", rejection.Result.Summary())
			return ctx.JSON(http.StatusUnprocessableEntity, ValidationResponse{Failures: rejection.Result.Failures})
		}
		return s.intakeError("createUploadsHandler", err)
	}

	response := UploadsResponse{IDs: make([]string, 0, len(uploads))}
	for _, upload := range uploads {
		response.IDs = append(response.IDs, upload.ID)
	}
	return ctx.JSON(http.StatusCreated, response)
}

func (s *APIService) replaceUploadHandler(ctx echo.Context) error {
	id := ctx.Param("id")
	files, err := s.formFiles(ctx)
	if err != nil {
		return err
	}
	if len(files) != 1 {
		return echo.NewHTTPError(http.StatusBadRequest, "exactly one file is required")
	}

	upload, err := s.coreService.ReplaceUpload(ctx.Request().Context(), id, intake.NewMultipartFile(files[0]))
	if err != nil {
		var rejection *intake.RejectionError
		if errors.As(err, &rejection) {
			return ctx.JSON(http.StatusUnprocessableEntity, ValidationResponse{Failures: rejection.Result.Failures})
		}
		return s.intakeError("replaceUploadHandler", err)
	}
	return ctx.JSON(http.StatusOK, upload)
}

func (s *APIService) listUploadsHandler(ctx echo.Context) error {
	uploads, err := s.coreService.ListUploads()
	if err != nil {
		slog.Error("listUploadsHandler: failed to list uploads",
			"status", http.StatusInternalServerError, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list uploads")
	}
	setNoCache(ctx)
	return ctx.JSON(http.StatusOK, uploads)
}

func (s *APIService) getUploadHandler(ctx echo.Context) error {
	id := ctx.Param("id")
	upload, err := s.coreService.GetUpload(id)
	if err != nil {
		return s.intakeError("getUploadHandler", err)
	}
	contentType := upload.ContentType
	if contentType == "" {
		contentType = echo.MIMEOctetStream
	}
	return ctx.Blob(http.StatusOK, contentType, upload.Data)
}

func (s *APIService) thumbnailHandler(ctx echo.Context) error {
	id := ctx.Param("id")
	data, err := s.coreService.Thumbnail(id)
	if errors.Is(err, thumbnail.ErrUnsupported) {
		slog.Warn("thumbnailHandler: thumbnail not available",
			"status", http.StatusNotFound, "upload_id", id, "error", err)
		return echo.NewHTTPError(http.StatusNotFound, "thumbnail not available")
	}
	if err != nil {
		return s.intakeError("thumbnailHandler", err)
	}
	setNoCache(ctx)
	return ctx.Blob(http.StatusOK, mimePNG, data)
}

func (s *APIService) deleteUploadHandler(ctx echo.Context) error {
	id := ctx.Param("id")
	if err := s.coreService.DeleteUpload(id); err != nil {
		return s.intakeError("deleteUploadHandler", err)
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (s *APIService) formFiles(ctx echo.Context) ([]*multipart.FileHeader, error) {
	form, err := ctx.MultipartForm()
	if err != nil {
		slog.Warn("formFiles: failed to parse multipart form", "status", http.StatusBadRequest, "error", err)
		return nil, echo.NewHTTPError(http.StatusBadRequest, "expected a multipart form")
	}
	files := form.File[s.config.Uploader.FieldName]
	if len(files) == 0 {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "no files in field "+s.config.Uploader.FieldName)
	}
	return files, nil
}

// intakeError maps service errors to HTTP errors.
func (s *APIService) intakeError(handler string, err error) error {
	switch {
	case errors.Is(err, database.ErrNotFound):
		slog.Warn(handler+": upload not found", "status", http.StatusNotFound, "error", err)
		return echo.NewHTTPError(http.StatusNotFound, "upload not found")
	case errors.Is(err, intake.ErrRead),
		errors.Is(err, intake.ErrEmptyBatch),
		errors.Is(err, intake.ErrInvalidUpdateTarget):
		slog.Warn(handler+": invalid intake", "status", http.StatusBadRequest, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		slog.Error(handler+": request failed", "status", http.StatusInternalServerError, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}

func setNoCache(ctx echo.Context) {
	ctx.Response().Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
	ctx.Response().Header().Set("Pragma", "no-cache")
	ctx.Response().Header().Set("Expires", "0")
}
