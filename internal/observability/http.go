package observability

import (
	"net"
	"net/http"
	"strings"
)

// RequestMeta is what a request tells about the client behind it.
type RequestMeta struct {
	DeviceID  string
	IP        string
	RequestID string
}

func MetaFromRequest(r *http.Request) RequestMeta {
	requestID := RequestIDFromContext(r.Context())
	if requestID == "" {
		requestID = r.Header.Get(requestIDHeader)
	}
	return RequestMeta{
		DeviceID:  r.Header.Get("X-Device-Id"),
		IP:        clientIP(r),
		RequestID: requestID,
	}
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the
// socket address.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
