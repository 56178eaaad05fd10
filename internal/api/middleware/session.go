package middleware

import "net/http"

// SessionCookie is the cookie carrying the form session ID.
const SessionCookie = "sensorsim_session"

// SessionID returns the form session ID presented by the client, or "".
func SessionID(r *http.Request) string {
	c, err := r.Cookie(SessionCookie)
	if err != nil {
		return ""
	}
	return c.Value
}
