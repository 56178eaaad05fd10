package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/sensorsim/sensorsim/internal/api/middleware"
	"github.com/sensorsim/sensorsim/internal/api/response"
	"github.com/sensorsim/sensorsim/internal/form"
)

type formKey struct{}

// FormSession resolves the caller's form session from the session cookie,
// mounting a new session and setting the cookie when there is none.
// Requests that mount a session pass through createLimit first (optional).
func FormSession(sessions *form.Sessions, secureCookie bool, createLimit func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		var open http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			f, err := sessions.Open()
			if err != nil {
				if errors.Is(err, form.ErrTooManySessions) {
					response.ServiceUnavailable(w, r, "too many open form sessions, try again later")
					return
				}
				response.InternalError(w, r, "could not open form session")
				return
			}
			http.SetCookie(w, &http.Cookie{
				Name:     middleware.SessionCookie,
				Value:    f.ID(),
				Path:     "/",
				HttpOnly: true,
				Secure:   secureCookie,
				SameSite: http.SameSiteLaxMode,
			})
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), formKey{}, f)))
		})
		if createLimit != nil {
			open = createLimit(open)
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			f, ok := sessions.Get(middleware.SessionID(r))
			if !ok {
				open.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), formKey{}, f)))
		})
	}
}

// FormFromContext returns the form session resolved by FormSession.
func FormFromContext(ctx context.Context) *form.Form {
	f, _ := ctx.Value(formKey{}).(*form.Form)
	return f
}

func expireSessionCookie(w http.ResponseWriter, secureCookie bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}
