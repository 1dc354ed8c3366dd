package auth

import (
	"context"

	"github.com/starford/onyx/internal/apperr"
)

// Static reports a fixed session and refuses sign-in flows. It serves
// headless agents bound to one user and fully offline agents (nil session).
type Static struct {
	session *Session
	subs    listeners
}

// NewStatic returns a provider reporting userID; "" means signed out.
func NewStatic(userID string) *Static {
	if userID == "" {
		return &Static{}
	}
	return &Static{session: &Session{UserID: userID}}
}

// SignIn is not supported.
func (s *Static) SignIn(context.Context, string, string) (*Session, error) {
	return nil, apperr.NewAuthError(apperr.AuthUnknown, true)
}

// SignUp is not supported.
func (s *Static) SignUp(context.Context, string, string) (*Session, error) {
	return nil, apperr.NewAuthError(apperr.AuthUnknown, false)
}

// SignOut is a no-op.
func (s *Static) SignOut(context.Context) error { return nil }

// Current returns the fixed session.
func (s *Static) Current() *Session {
	if s.session == nil {
		return nil
	}
	c := *s.session
	return &c
}

// OnChange registers fn; a static session never changes.
func (s *Static) OnChange(fn func(*Session)) func() {
	return s.subs.add(fn)
}
