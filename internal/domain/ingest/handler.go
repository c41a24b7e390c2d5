package ingest

import (
	"errors"
	"mime"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/beanphv/QBR-Dashboard/internal/platform/auth"
	"github.com/beanphv/QBR-Dashboard/pkg/pagination"
)

type Handler struct {
	svc    *Service
	logger zerolog.Logger
}

func NewHandler(svc *Service, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// RegisterRoutes mounts the upload endpoints. All of them are admin only;
// Upload performs its own check to answer with the upload error messages.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/upload", h.Upload)
	admin := api.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.GET("/uploads", h.ListUploads)
	admin.GET("/uploads/:id", h.GetUpload)
	admin.GET("/uploads/:id/file", h.DownloadUpload)
	admin.POST("/uploads/:id/reject", h.RejectUpload)
}

// Upload accepts multipart form fields file, quarter, year and the
// optional sheet for CSV files.
func (h *Handler) Upload(c echo.Context) error {
	ctx := c.Request().Context()
	if auth.UserIDFromContext(ctx) == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
	}
	if !auth.HasRole(ctx, auth.RoleAdmin) {
		return echo.NewHTTPError(http.StatusForbidden, "Admin access required")
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Missing required fields")
	}
	f, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unable to read uploaded file")
	}
	defer f.Close()

	res, err := h.svc.Ingest(ctx, UploadRequest{
		UploaderID: auth.UserIDFromContext(ctx),
		Quarter:    c.FormValue("quarter"),
		Year:       c.FormValue("year"),
		Filename:   fh.Filename,
		Sheet:      strings.TrimSpace(c.FormValue("sheet")),
		File:       f,
	})
	if errors.Is(err, ErrInvalidRequest) {
		return echo.NewHTTPError(http.StatusBadRequest, strings.TrimPrefix(err.Error(), ErrInvalidRequest.Error()+": "))
	}
	if err != nil {
		rid, _ := c.Get("request_id").(string)
		h.logger.Error().Err(err).Str("request_id", rid).Msg("upload failed")
		return echo.NewHTTPError(http.StatusInternalServerError, "Upload failed")
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) ListUploads(c echo.Context) error {
	p := pagination.FromContext(c)
	uploads, total, err := h.svc.ListUploads(c.Request().Context(), p.Limit, p.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if uploads == nil {
		uploads = []*UploadRecord{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(uploads, total, p))
}

func (h *Handler) GetUpload(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	u, err := h.svc.GetUpload(c.Request().Context(), id)
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "upload not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, u)
}

// DownloadUpload returns the archived workbook of an upload.
func (h *Handler) DownloadUpload(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	rc, meta, err := h.svc.UploadFile(c.Request().Context(), id)
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "upload file not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	defer rc.Close()

	c.Response().Header().Set(echo.HeaderContentDisposition, attachment(meta.FileName))
	return c.Stream(http.StatusOK, meta.ContentType, rc)
}

// attachment quotes or RFC 2231-encodes name as needed. Names that cannot be
// encoded fall back to a bare attachment.
func attachment(name string) string {
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": name}); v != "" {
		return v
	}
	return "attachment"
}

func (h *Handler) RejectUpload(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	u, err := h.svc.Reject(c.Request().Context(), id)
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "upload not found")
	case errors.Is(err, ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusConflict, "only approved uploads can be rejected")
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, u)
}
