package guardloop

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
)

// SessionHeader names the HTTP header carrying the agent session ID.
const SessionHeader = "X-Guardloop-Session"

// Middleware returns an http.Handler that gates each request through
// the pre-action hook before passing to next. Each request is one
// agent turn; blocked requests receive a 403 with a JSON body. The
// session ID comes from the X-Guardloop-Session header, falling back
// to the client address.
func (c *Client) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.Header.Get(SessionHeader)
		if sessionID == "" {
			sessionID = r.RemoteAddr
		}

		// Evaluate the decoded form so phrasing cannot hide behind
		// percent-encoding.
		text := strings.ToLower(r.Method) + " " + r.URL.Path
		if q, err := url.QueryUnescape(r.URL.RawQuery); err == nil && q != "" {
			text += " " + q
		}
		v, err := c.PreAction(r.Context(), sessionID, text, []string{"http"})
		if err != nil || !v.Proceed {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			body := map[string]any{"blocked": true}
			if err != nil {
				body["reason"] = err.Error()
			} else {
				body["level"] = string(v.Level)
				body["signal"] = v.Signal
				body["reason"] = v.Reason
			}
			json.NewEncoder(w).Encode(body)
			return
		}

		next.ServeHTTP(w, r)
	})
}
