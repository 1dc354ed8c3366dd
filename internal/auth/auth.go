// Package auth resolves who the current user is. The orchestrator only needs
// the stream of user changes; sign-in flows live behind Provider.
package auth

import (
	"context"
	"sync"
)

// Session is a signed-in user.
type Session struct {
	UserID string `json:"uid"`
	Email  string `json:"email"`
	Token  string `json:"token"`
}

// Provider is the auth collaborator.
type Provider interface {
	SignIn(ctx context.Context, email, password string) (*Session, error)
	SignUp(ctx context.Context, email, password string) (*Session, error)
	SignOut(ctx context.Context) error
	// Current returns the signed-in session or nil.
	Current() *Session
	// OnChange registers fn for every change of the current session and
	// returns a func that removes it.
	OnChange(fn func(*Session)) func()
}

// UserID returns the id of s, or "" for no session.
func UserID(s *Session) string {
	if s == nil {
		return ""
	}
	return s.UserID
}

// TokenSource returns a func reading the current bearer token of p.
func TokenSource(p Provider) func() string {
	return func() string {
		if s := p.Current(); s != nil {
			return s.Token
		}
		return ""
	}
}

// listeners is a registry of change callbacks.
type listeners struct {
	mu   sync.Mutex
	next int
	fns  map[int]func(*Session)
}

func (l *listeners) add(fn func(*Session)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fns == nil {
		l.fns = make(map[int]func(*Session))
	}
	id := l.next
	l.next++
	l.fns[id] = fn
	return func() {
		l.mu.Lock()
		delete(l.fns, id)
		l.mu.Unlock()
	}
}

// emit calls every listener outside the lock.
func (l *listeners) emit(s *Session) {
	l.mu.Lock()
	fns := make([]func(*Session), 0, len(l.fns))
	for _, fn := range l.fns {
		fns = append(fns, fn)
	}
	l.mu.Unlock()
	for _, fn := range fns {
		fn(s)
	}
}
