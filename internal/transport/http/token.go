package http

import (
	stdhttp "net/http"
	"strings"
)

const tokenCookieName = "bonfire_token"

// tokenFromRequest extracts the identity token from the query string, the
// Authorization header, or a cookie, in that order. First match wins, which
// keeps the handshake usable from both browser and non-browser clients.
func tokenFromRequest(r *stdhttp.Request) string {
	if tok := r.URL.Query().Get("token"); tok != "" {
		return tok
	}
	if h := r.Header.Get("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1]
		}
	}
	if c, err := r.Cookie(tokenCookieName); err == nil {
		return c.Value
	}
	return ""
}
