// Package identity resolves the funnel session id that ties quiz artifacts,
// the interview and the checkout together.
package identity

import (
	"context"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"
)

const (
	SessionCookieName = "funnel_session_id"
	SessionHeaderName = "X-Funnel-Session-ID"
	SessionQueryParam = "session_id"
	sessionCookieTTL  = 24 * time.Hour
)

type contextKey int

const sessionIDKey contextKey = iota

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

// SessionIDFromContext extracts the funnel session id from the request context.
// It returns "" when the request carried no valid id.
func SessionIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(sessionIDKey).(string); ok {
		return v
	}
	return ""
}

// WithSessionID returns a copy of ctx carrying id.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey, id)
}

// Sanitize returns id when it is a well-formed session id, "" otherwise.
func Sanitize(id string) string {
	id = strings.TrimSpace(id)
	if id == "" || !sessionIDPattern.MatchString(id) {
		return ""
	}
	return id
}

// SessionIDFromRequest resolves the id from the query parameter, then the
// header, then the persisted cookie.
func SessionIDFromRequest(r *http.Request) string {
	if sid := Sanitize(r.URL.Query().Get(SessionQueryParam)); sid != "" {
		return sid
	}
	if sid := Sanitize(r.Header.Get(SessionHeaderName)); sid != "" {
		return sid
	}
	if c, err := r.Cookie(SessionCookieName); err == nil {
		return Sanitize(c.Value)
	}
	return ""
}

func refreshCookie(w http.ResponseWriter, id string, isDev bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(sessionCookieTTL.Seconds()),
		Expires:  time.Now().Add(sessionCookieTTL),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   !isDev,
	})
}

// Middleware injects the funnel session id into the request context and
// refreshes it into the cookie so later requests can fall back to it.
func Middleware(isDev bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sid := SessionIDFromRequest(r)
			if sid != "" {
				refreshCookie(w, sid, isDev)
			}
			next.ServeHTTP(w, r.WithContext(WithSessionID(r.Context(), sid)))
		})
	}
}

// IPFromRequest returns a normalized remote IP for request logging.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
