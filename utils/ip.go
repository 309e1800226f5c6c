package utils

import (
	"net"
	"net/http"
	"strings"
)

// RealClientIP resolves the originating address of a request. Widget and
// console traffic usually arrives through the storefront proxy, so the first
// hop of X-Forwarded-For wins over the socket peer.
func RealClientIP(r *http.Request) string {
	if xfwd := r.Header.Get("X-Forwarded-For"); xfwd != "" {
		if i := strings.IndexByte(xfwd, ','); i >= 0 {
			return strings.TrimSpace(xfwd[:i])
		}
		return strings.TrimSpace(xfwd)
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
