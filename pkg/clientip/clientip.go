// Package clientip extracts the real client IP from proxied HTTP requests.
package clientip

import (
	"net"
	"net/http"
	"strings"
)

// GetIP returns the client's IP address from the request, checking the
// common proxy headers before falling back to RemoteAddr:
// CF-Connecting-IP, X-Forwarded-For (first valid entry), X-Real-IP.
func GetIP(r *http.Request) string {
	if ip := parseIP(r.Header.Get("CF-Connecting-IP")); ip != "" {
		return ip
	}

	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		for part := range strings.SplitSeq(forwarded, ",") {
			if ip := parseIP(part); ip != "" {
				return ip
			}
		}
	}

	if ip := parseIP(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return parseIP(r.RemoteAddr)
	}
	return parseIP(host)
}

func parseIP(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	ip := net.ParseIP(raw)
	if ip == nil {
		return ""
	}
	return ip.String()
}
