package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mmynk/settleup/internal/auth"
)

type staticAuthenticator struct {
	userID string
	err    error
}

func (a staticAuthenticator) Authenticate(http.Header) (string, error) {
	return a.userID, a.err
}

func TestGetUserID(t *testing.T) {
	if got := GetUserID(context.Background()); got != "" {
		t.Errorf("expected empty user ID, got %q", got)
	}
	if got := GetUserID(WithUserID(context.Background(), "alice")); got != "alice" {
		t.Errorf("expected alice, got %q", got)
	}
}

func TestAuthenticate(t *testing.T) {
	var seen string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetUserID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	onError := func(w http.ResponseWriter, r *http.Request, err error) {
		http.Error(w, err.Error(), http.StatusUnauthorized)
	}

	t.Run("authenticated", func(t *testing.T) {
		rec := httptest.NewRecorder()
		Authenticate(staticAuthenticator{userID: "alice"}, onError)(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		if rec.Code != http.StatusNoContent {
			t.Errorf("expected 204, got %d", rec.Code)
		}
		if seen != "alice" {
			t.Errorf("expected alice in context, got %q", seen)
		}
	})

	t.Run("rejected", func(t *testing.T) {
		seen = ""
		rec := httptest.NewRecorder()
		Authenticate(staticAuthenticator{err: auth.ErrMissingToken}, onError)(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
		if seen != "" {
			t.Error("next handler must not run")
		}
	})
}

func TestRequestLogger_PassesThrough(t *testing.T) {
	rec := httptest.NewRecorder()
	RequestLogger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	if rec.Code != http.StatusTeapot {
		t.Errorf("expected 418, got %d", rec.Code)
	}
}
