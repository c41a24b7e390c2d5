package program

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func newTestHandler() (*Handler, *Service, *echo.Echo) {
	svc, _ := newTestService()
	return NewHandler(svc), svc, echo.New()
}

func TestHandler_ListHospitals(t *testing.T) {
	h, svc, e := newTestHandler()
	svc.UpsertHospital(context.Background(), "P100", "GenHosp")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/hospitals?quarter=q1&year=2024&search=gen", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.ListHospitals(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	var body struct {
		Data  []HospitalSummary `json:"data"`
		Total int               `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	// GenHosp has no Q1 2024 metrics, so the period filter excludes it.
	if body.Total != 0 {
		t.Errorf("expected 0 hospitals, got %d", body.Total)
	}
}

func TestHandler_ListHospitals_BadFilters(t *testing.T) {
	h, _, e := newTestHandler()

	for _, query := range []string{"?quarter=Q7", "?year=abc", "?minSavings=lots", "?maxSavings=%25"} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/hospitals"+query, nil)
		c := e.NewContext(req, httptest.NewRecorder())

		err := h.ListHospitals(c)
		httpErr, ok := err.(*echo.HTTPError)
		if !ok || httpErr.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %v", query, err)
		}
	}
}

func TestHandler_GetHospital_NotFound(t *testing.T) {
	h, _, e := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())

	err := h.GetHospital(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %v", err)
	}
}

func TestHandler_GetHospital_InvalidID(t *testing.T) {
	h, _, e := newTestHandler()

	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")

	err := h.GetHospital(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}

func TestHandler_GetPharmacy(t *testing.T) {
	h, svc, e := newTestHandler()
	ctx := context.Background()
	hosp, _ := svc.UpsertHospital(ctx, "P100", "GenHosp")
	p, _ := svc.UpsertPharmacy(ctx, "RX1", "GenHosp Pharmacy", hosp.ID)

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues(p.ID.String())

	if err := h.GetPharmacy(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var detail PharmacyDetail
	json.Unmarshal(rec.Body.Bytes(), &detail)
	if detail.PID != "RX1" || detail.HospitalID != hosp.ID {
		t.Errorf("unexpected pharmacy: %+v", detail.Pharmacy)
	}
}

func TestHandler_ListPeriods(t *testing.T) {
	h, svc, e := newTestHandler()
	svc.RegisterPeriod(context.Background(), &Period{Quarter: "Q1", Year: 2024})

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	if err := h.ListPeriods(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body struct {
		Periods []Period `json:"periods"`
	}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if len(body.Periods) != 1 || body.Periods[0].Label() != "Q1 2024" {
		t.Errorf("unexpected periods: %+v", body.Periods)
	}
}
