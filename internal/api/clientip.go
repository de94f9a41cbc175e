package api

import (
	"net/http"
	"strings"
)

// ClientIP resolves the caller's IP from proxy headers in priority
// order: X-Forwarded-For (first entry of the comma list), X-Real-IP,
// CF-Connecting-IP, then "unknown". Values are always trimmed.
func ClientIP(h http.Header) string {
	if fwd := h.Get("X-Forwarded-For"); fwd != "" {
		first := fwd
		if idx := strings.Index(fwd, ","); idx >= 0 {
			first = fwd[:idx]
		}
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(h.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if ip := strings.TrimSpace(h.Get("CF-Connecting-IP")); ip != "" {
		return ip
	}
	return "unknown"
}
