package auth

import (
	"net/http"
	"strings"
)

const AccessCookieName = "lg_access"

// AccessToken reads the caller's token from the session cookie and, when
// allowBearer is set, from the Authorization header.
func AccessToken(r *http.Request, allowBearer bool) string {
	if cookie, err := r.Cookie(AccessCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	if !allowBearer {
		return ""
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}
