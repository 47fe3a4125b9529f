package pagination

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func paramsFor(target string) Params {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	return FromContext(e.NewContext(req, httptest.NewRecorder()))
}

func TestFromContext(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		wantLimit  int
		wantOffset int
	}{
		{"defaults", "/", DefaultLimit, 0},
		{"custom", "/?limit=50&offset=10", 50, 10},
		{"capped", "/?limit=500", MaxLimit, 0},
		{"zero limit", "/?limit=0", DefaultLimit, 0},
		{"negative offset", "/?offset=-5", DefaultLimit, 0},
		{"garbage", "/?limit=ten&offset=x", DefaultLimit, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := paramsFor(tt.target)
			if p.Limit != tt.wantLimit || p.Offset != tt.wantOffset {
				t.Errorf("got limit=%d offset=%d, want %d/%d", p.Limit, p.Offset, tt.wantLimit, tt.wantOffset)
			}
		})
	}
}

func TestNewResponse(t *testing.T) {
	r := NewResponse([]string{"a", "b", "c"}, 10, 3, 0)
	if !r.Success || r.Total != 10 || !r.HasMore {
		t.Errorf("unexpected response: %+v", r)
	}
	if NewResponse(nil, 3, 3, 0).HasMore {
		t.Error("expected has_more false on the last page")
	}

	b, _ := json.Marshal(r)
	var m map[string]interface{}
	json.Unmarshal(b, &m)
	for _, key := range []string{"success", "data", "total", "limit", "offset", "has_more"} {
		if _, ok := m[key]; !ok {
			t.Errorf("expected JSON key %q", key)
		}
	}
}
