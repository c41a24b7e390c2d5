package export

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/beanphv/QBR-Dashboard/internal/platform/middleware"
)

func newTestHandler() (*Handler, *fixture, *echo.Echo) {
	fx := newFixture()
	e := echo.New()
	e.Validator = middleware.NewValidator()
	return NewHandler(NewService(fx.src), zerolog.Nop()), fx, e
}

func jsonRequest(t *testing.T, body interface{}) *http.Request {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/export", strings.NewReader(string(b)))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func expectStatus(t *testing.T, err error, code int, msg string) {
	t.Helper()
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected *echo.HTTPError, got %v", err)
	}
	if httpErr.Code != code || httpErr.Message != msg {
		t.Errorf("expected %d %q, got %d %v", code, msg, httpErr.Code, httpErr.Message)
	}
}

func TestHandler_ExportCSV(t *testing.T) {
	h, fx, e := newTestHandler()
	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(t, map[string]interface{}{
		"type":    "hospital_data",
		"periods": []uuid.UUID{fx.q1.ID},
		"format":  "csv",
	}), rec)

	if err := h.Export(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get(echo.HeaderContentType); ct != "text/csv" {
		t.Errorf("expected text/csv, got %q", ct)
	}
	if cd := rec.Header().Get(echo.HeaderContentDisposition); cd != `attachment; filename="hospital_data_export.csv"` {
		t.Errorf("unexpected disposition %q", cd)
	}
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	if len(lines) != 3 {
		t.Errorf("expected header and 2 rows, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[1], "GenHosp,P100,Q1 2024,1000000,4000000,25") {
		t.Errorf("unexpected first row: %s", lines[1])
	}
}

func TestHandler_ExportXLSXByDefault(t *testing.T) {
	h, fx, e := newTestHandler()
	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(t, map[string]interface{}{
		"type":    "summary_report",
		"periods": []uuid.UUID{fx.q1.ID},
	}), rec)

	if err := h.Export(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ct := rec.Header().Get(echo.HeaderContentType); ct != FormatXLSX.ContentType() {
		t.Errorf("unexpected content type %q", ct)
	}
	if !strings.HasPrefix(rec.Body.String(), "PK") {
		t.Error("expected a zip container")
	}
}

func TestHandler_ExportErrors(t *testing.T) {
	h, fx, e := newTestHandler()
	tests := []struct {
		name string
		body map[string]interface{}
		code int
		msg  string
	}{
		{"missing type", map[string]interface{}{"periods": []uuid.UUID{fx.q1.ID}}, http.StatusBadRequest, "Missing required parameters"},
		{"missing periods", map[string]interface{}{"type": "hospital_data"}, http.StatusBadRequest, "Missing required parameters"},
		{"empty periods", map[string]interface{}{"type": "hospital_data", "periods": []uuid.UUID{}}, http.StatusBadRequest, "Missing required parameters"},
		{"bad type", map[string]interface{}{"type": "hospitals", "periods": []uuid.UUID{fx.q1.ID}}, http.StatusBadRequest, "Invalid export type"},
		{"no rows", map[string]interface{}{"type": "pharmacy_data", "periods": []uuid.UUID{fx.q2.ID}}, http.StatusNotFound, "No data found for export"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := e.NewContext(jsonRequest(t, tt.body), httptest.NewRecorder())
			expectStatus(t, h.Export(c), tt.code, tt.msg)
		})
	}
}

func TestHandler_ExportMalformedBody(t *testing.T) {
	h, _, e := newTestHandler()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/export", strings.NewReader("{not json"))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c := e.NewContext(req, httptest.NewRecorder())

	expectStatus(t, h.Export(c), http.StatusBadRequest, "invalid request body")
}
