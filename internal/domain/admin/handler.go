package admin

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/beanphv/QBR-Dashboard/internal/platform/auth"
	"github.com/beanphv/QBR-Dashboard/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	admin := api.Group("/users", auth.RequireRole(auth.RoleAdmin))
	admin.GET("", h.ListUsers)
	admin.GET("/:id", h.GetUser)
	admin.PUT("/:id", h.UpdateUser)
}

func (h *Handler) ListUsers(c echo.Context) error {
	p := pagination.FromContext(c)
	users, total, err := h.svc.ListUsers(c.Request().Context(), p.Limit, p.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if users == nil {
		users = []*User{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(users, total, p))
}

func (h *Handler) GetUser(c echo.Context) error {
	u, err := h.svc.GetUser(c.Request().Context(), c.Param("id"))
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "user not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) UpdateUser(c echo.Context) error {
	var upd Update
	if err := c.Bind(&upd); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&upd); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "role must be admin or analyst and status active or inactive")
	}

	ctx := c.Request().Context()
	u, err := h.svc.UpdateUser(ctx, auth.UserIDFromContext(ctx), c.Param("id"), upd)
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "user not found")
	case errors.Is(err, ErrEmptyUpdate), errors.Is(err, ErrInvalidUser):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrSelfLockout):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, u)
}
