package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/fazaproducts/storefront/internal/platform/requestctx"
)

func TestSessionMiddleware(t *testing.T) {
	var seen string
	handler := SessionMiddleware(true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = requestctx.Session(r.Context())
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	cookies := rr.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != sessionCookieName {
		t.Fatalf("expected session cookie, got %v", cookies)
	}
	if !cookies[0].HttpOnly || !cookies[0].Secure {
		t.Fatalf("expected HttpOnly and Secure cookie")
	}
	if seen != cookies[0].Value {
		t.Fatalf("context session %q does not match cookie %q", seen, cookies[0].Value)
	}

	existing := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: existing})
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if seen != existing {
		t.Fatalf("expected existing session %q, got %q", existing, seen)
	}
	if len(rr.Result().Cookies()) != 0 {
		t.Fatalf("valid session must not be reissued")
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "../../etc/passwd"})
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if seen == "../../etc/passwd" || len(rr.Result().Cookies()) != 1 {
		t.Fatalf("malformed session must be replaced")
	}
}
