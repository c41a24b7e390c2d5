package program

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

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
	read := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleAnalyst))
	read.GET("/periods", h.ListPeriods)
	read.GET("/hospitals", h.ListHospitals)
	read.GET("/hospitals/:id", h.GetHospital)
	read.GET("/pharmacies", h.ListPharmacies)
	read.GET("/pharmacies/:id", h.GetPharmacy)
}

func (h *Handler) ListPeriods(c echo.Context) error {
	periods, err := h.svc.ListPeriods(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"periods": nonNil(periods)})
}

func (h *Handler) ListHospitals(c echo.Context) error {
	f, err := hospitalFilterFromQuery(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p := pagination.FromContext(c)
	hospitals, total, err := h.svc.ListHospitals(c.Request().Context(), f, p.Limit, p.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(hospitals, total, p))
}

func hospitalFilterFromQuery(c echo.Context) (HospitalFilter, error) {
	f := HospitalFilter{Search: strings.TrimSpace(c.QueryParam("search"))}

	if q := c.QueryParam("quarter"); q != "" {
		quarter, err := ParseQuarter(q)
		if err != nil {
			return f, errors.New("invalid quarter")
		}
		f.Quarter = quarter
	}
	if y := c.QueryParam("year"); y != "" {
		year, err := strconv.Atoi(y)
		if err != nil || year <= 0 {
			return f, errors.New("invalid year")
		}
		f.Year = year
	}
	for param, dst := range map[string]**decimal.Decimal{
		"minSavings": &f.MinSavingsPct,
		"maxSavings": &f.MaxSavingsPct,
	} {
		v := c.QueryParam(param)
		if v == "" {
			continue
		}
		d, err := decimal.NewFromString(v)
		if err != nil {
			return f, errors.New("invalid " + param)
		}
		*dst = &d
	}
	return f, nil
}

func (h *Handler) GetHospital(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	detail, err := h.svc.GetHospital(c.Request().Context(), id)
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "hospital not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, detail)
}

func (h *Handler) ListPharmacies(c echo.Context) error {
	var hospitalID *uuid.UUID
	if v := c.QueryParam("hospital_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid hospital_id")
		}
		hospitalID = &id
	}
	p := pagination.FromContext(c)
	pharmacies, total, err := h.svc.ListPharmacies(c.Request().Context(), hospitalID, p.Limit, p.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(pharmacies, total, p))
}

func (h *Handler) GetPharmacy(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	detail, err := h.svc.GetPharmacy(c.Request().Context(), id)
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "pharmacy not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, detail)
}
