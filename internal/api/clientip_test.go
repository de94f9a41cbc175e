package api

import (
	"net/http"
	"testing"
)

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{
			"forwarded-for wins",
			map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1", "X-Real-IP": "198.51.100.2"},
			"203.0.113.7",
		},
		{
			"forwarded-for single entry trimmed",
			map[string]string{"X-Forwarded-For": " 203.0.113.7 "},
			"203.0.113.7",
		},
		{
			"real-ip fallback",
			map[string]string{"X-Real-IP": "198.51.100.2"},
			"198.51.100.2",
		},
		{
			"cloudflare fallback",
			map[string]string{"CF-Connecting-IP": "192.0.2.9"},
			"192.0.2.9",
		},
		{
			"no headers",
			nil,
			"unknown",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			for k, v := range tt.headers {
				h.Set(k, v)
			}
			if got := ClientIP(h); got != tt.want {
				t.Errorf("ClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
