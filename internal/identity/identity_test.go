package identity

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

func TestSessionIDFromRequestPrecedence(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		query  string
		header string
		cookie string
		want   string
	}{
		{name: "query wins", query: "q-1", header: "h-1", cookie: "c-1", want: "q-1"},
		{name: "header before cookie", header: "h-1", cookie: "c-1", want: "h-1"},
		{name: "cookie fallback", cookie: "c-1", want: "c-1"},
		{name: "invalid query falls through", query: "bad id!", header: "h-1", want: "h-1"},
		{name: "nothing", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			target := "/api/interview"
			if tt.query != "" {
				target += "?session_id=" + url.QueryEscape(tt.query)
			}
			req := httptest.NewRequest(http.MethodGet, target, nil)
			if tt.header != "" {
				req.Header.Set(SessionHeaderName, tt.header)
			}
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: tt.cookie})
			}
			if got := SessionIDFromRequest(req); got != tt.want {
				t.Fatalf("SessionIDFromRequest() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMiddlewareRefreshesCookie(t *testing.T) {
	t.Parallel()

	var seen string
	h := Middleware(true)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = SessionIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/interview?session_id=sess-42", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if seen != "sess-42" {
		t.Fatalf("expected session id in context, got %q", seen)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != SessionCookieName || cookies[0].Value != "sess-42" {
		t.Fatalf("expected refreshed session cookie, got %+v", cookies)
	}
}

func TestMiddlewareWithoutSession(t *testing.T) {
	t.Parallel()

	h := Middleware(true)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		if sid := SessionIDFromContext(r.Context()); sid != "" {
			t.Errorf("expected empty session id, got %q", sid)
		}
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if len(rec.Result().Cookies()) != 0 {
		t.Fatal("no cookie should be set without a session id")
	}
}
