package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/starford/onyx/internal/apperr"
	"github.com/starford/onyx/internal/localcache"
	"github.com/starford/onyx/internal/testutil"
)

func fakeHub(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	handle := func(w http.ResponseWriter, r *http.Request) {
		var c Credentials
		if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch {
		case c.Email == "down@example.com":
			w.WriteHeader(http.StatusInternalServerError)
		case c.Password != "secret1":
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(ErrorBody{Code: apperr.AuthInvalidCredential, Error: "bad"})
		default:
			_ = json.NewEncoder(w).Encode(Session{UserID: "u1", Email: c.Email, Token: "tok"})
		}
	}
	mux.HandleFunc("POST /v1/auth/signin", handle)
	mux.HandleFunc("POST /v1/auth/signup", handle)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestHubProvider_SignInPersistsAndNotifies(t *testing.T) {
	srv := fakeHub(t)
	store, err := localcache.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	p := NewHubProvider(srv.URL, store, testutil.Logger(t))

	var seen []string
	p.OnChange(func(s *Session) { seen = append(seen, UserID(s)) })

	s, err := p.SignIn(context.Background(), " a@example.com ", "secret1")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if s.UserID != "u1" || s.Email != "a@example.com" {
		t.Fatalf("unexpected session %+v", s)
	}
	if got := TokenSource(p)(); got != "tok" {
		t.Fatalf("token = %q", got)
	}

	// A fresh provider over the same store restores the session.
	again := NewHubProvider(srv.URL, store, testutil.Logger(t))
	if UserID(again.Current()) != "u1" {
		t.Fatalf("session not restored: %+v", again.Current())
	}

	if err := p.SignOut(context.Background()); err != nil {
		t.Fatal(err)
	}
	if p.Current() != nil {
		t.Fatal("still signed in")
	}
	if len(seen) != 2 || seen[0] != "u1" || seen[1] != "" {
		t.Fatalf("listener saw %v", seen)
	}

	after := NewHubProvider(srv.URL, store, testutil.Logger(t))
	if after.Current() != nil {
		t.Fatal("signed-out session restored")
	}
}

func TestHubProvider_ErrorCodes(t *testing.T) {
	srv := fakeHub(t)
	p := NewHubProvider(srv.URL, nil, testutil.Logger(t))

	_, err := p.SignIn(context.Background(), "a@example.com", "wrong")
	ae, ok := apperr.AsAuth(err)
	if !ok || ae.Code != apperr.AuthInvalidCredential {
		t.Fatalf("expected invalid credential, got %v", err)
	}

	_, err = p.SignUp(context.Background(), "down@example.com", "secret1")
	ae, ok = apperr.AsAuth(err)
	if !ok || ae.Code != apperr.AuthUnknown {
		t.Fatalf("expected unknown, got %v", err)
	}
	if p.Current() != nil {
		t.Fatal("failed sign-in must not set a session")
	}
}

func TestHubProvider_NetworkFailure(t *testing.T) {
	srv := fakeHub(t)
	url := srv.URL
	srv.Close()

	p := NewHubProvider(url, nil, testutil.Logger(t))
	_, err := p.SignIn(context.Background(), "a@example.com", "secret1")
	ae, ok := apperr.AsAuth(err)
	if !ok || ae.Code != apperr.AuthNetwork {
		t.Fatalf("expected network error, got %v", err)
	}
}

func TestStatic(t *testing.T) {
	if NewStatic("").Current() != nil {
		t.Fatal("empty static provider should be signed out")
	}
	p := NewStatic("u9")
	if UserID(p.Current()) != "u9" {
		t.Fatalf("unexpected session %+v", p.Current())
	}
	if _, err := p.SignIn(context.Background(), "a@example.com", "x"); err == nil {
		t.Fatal("static sign in should fail")
	}
}
