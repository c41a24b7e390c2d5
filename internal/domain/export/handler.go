package export

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/beanphv/QBR-Dashboard/internal/platform/auth"
)

type Handler struct {
	svc    *Service
	logger zerolog.Logger
}

func NewHandler(svc *Service, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/export", h.Export, auth.RequireRole(auth.RoleAdmin, auth.RoleAnalyst))
}

// Export streams the requested table as an attachment.
func (h *Handler) Export(c echo.Context) error {
	var req Request
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Missing required parameters")
	}

	table, err := h.svc.Build(c.Request().Context(), req)
	switch {
	case errors.Is(err, ErrInvalidType):
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid export type")
	case errors.Is(err, ErrNoData):
		return echo.NewHTTPError(http.StatusNotFound, "No data found for export")
	case err != nil:
		h.logger.Error().Err(err).Str("type", string(req.Type)).Msg("export failed")
		return echo.NewHTTPError(http.StatusInternalServerError, "Internal server error")
	}

	format := ParseFormat(req.Format)
	var buf bytes.Buffer
	if err := Write(&buf, format, table, time.Now()); err != nil {
		h.logger.Error().Err(err).Str("format", string(format)).Msg("export encoding failed")
		return echo.NewHTTPError(http.StatusInternalServerError, "Internal server error")
	}

	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, req.Filename()))
	return c.Blob(http.StatusOK, format.ContentType(), buf.Bytes())
}
