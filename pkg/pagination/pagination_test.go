package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func contextWithQuery(query string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/"+query, nil)
	return e.NewContext(req, httptest.NewRecorder())
}

func TestFromContext_Defaults(t *testing.T) {
	p := FromContext(contextWithQuery(""))

	if p.Limit != DefaultLimit {
		t.Errorf("expected default limit %d, got %d", DefaultLimit, p.Limit)
	}
	if p.Offset != 0 {
		t.Errorf("expected default offset 0, got %d", p.Offset)
	}
}

func TestFromContext_CustomValues(t *testing.T) {
	p := FromContext(contextWithQuery("?limit=50&offset=10"))

	if p.Limit != 50 {
		t.Errorf("expected limit 50, got %d", p.Limit)
	}
	if p.Offset != 10 {
		t.Errorf("expected offset 10, got %d", p.Offset)
	}
}

func TestFromContext_MaxLimit(t *testing.T) {
	p := FromContext(contextWithQuery("?limit=500"))
	if p.Limit != MaxLimit {
		t.Errorf("expected max limit %d, got %d", MaxLimit, p.Limit)
	}
}

func TestFromContext_InvalidValues(t *testing.T) {
	p := FromContext(contextWithQuery("?limit=abc&offset=-5"))
	if p.Limit != DefaultLimit {
		t.Errorf("expected default limit for garbage input, got %d", p.Limit)
	}
	if p.Offset != 0 {
		t.Errorf("expected negative offset clamped to 0, got %d", p.Offset)
	}
}

func TestNewResponse(t *testing.T) {
	resp := NewResponse([]string{"a", "b"}, 5, Params{Limit: 2, Offset: 0})

	if resp.Total != 5 || resp.Limit != 2 || resp.Offset != 0 {
		t.Errorf("unexpected envelope: %+v", resp)
	}
	if !resp.HasMore {
		t.Error("expected HasMore to be true")
	}
	if resp.NextOffset == nil || *resp.NextOffset != 2 {
		t.Errorf("expected next offset 2, got %v", resp.NextOffset)
	}
}

func TestNewResponse_LastPage(t *testing.T) {
	resp := NewResponse([]string{"e"}, 5, Params{Limit: 2, Offset: 4})
	if resp.HasMore {
		t.Error("expected HasMore false on the last page")
	}
	if resp.NextOffset != nil {
		t.Errorf("expected no next offset, got %d", *resp.NextOffset)
	}
}

func TestParams_HasNext(t *testing.T) {
	tests := []struct {
		p     Params
		total int
		want  bool
	}{
		{Params{Limit: 10, Offset: 0}, 25, true},
		{Params{Limit: 10, Offset: 20}, 25, false},
		{Params{Limit: 10, Offset: 10}, 20, false},
		{Params{Limit: 10, Offset: 0}, 0, false},
	}
	for _, tt := range tests {
		if got := tt.p.HasNext(tt.total); got != tt.want {
			t.Errorf("%+v.HasNext(%d) = %v, want %v", tt.p, tt.total, got, tt.want)
		}
	}
}
