package pipeline

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		forwarded  string
		want       string
	}{
		{"remote addr only", "203.0.113.7:51234", "", "203.0.113.7"},
		{"forwarded single", "10.0.0.1:80", "198.51.100.9", "198.51.100.9"},
		{"forwarded chain takes first", "10.0.0.1:80", "198.51.100.9, 10.0.0.2, 10.0.0.3", "198.51.100.9"},
		{"forwarded with spaces", "10.0.0.1:80", "  198.51.100.9  ", "198.51.100.9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.forwarded != "" {
				r.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			if got := ClientIP(r); got != tt.want {
				t.Errorf("ClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestContextParam(t *testing.T) {
	c := &Context{Params: map[string]string{"id": "lead-1"}}
	if got := c.Param("id"); got != "lead-1" {
		t.Errorf("Param(id) = %q, want %q", got, "lead-1")
	}
	if got := c.Param("missing"); got != "" {
		t.Errorf("Param(missing) = %q, want empty", got)
	}
}
