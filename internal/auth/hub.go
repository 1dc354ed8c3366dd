package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/starford/onyx/internal/apperr"
)

// SessionKey is the store key of the persisted session.
const SessionKey = "ONYX_SESSION_V1"

// Store persists the session between runs.
type Store interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
}

// Credentials is the body of the hub's sign-in and sign-up endpoints.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ErrorBody is the hub's auth error response.
type ErrorBody struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

// HubProvider signs in against the onyx hub.
type HubProvider struct {
	base   string
	client *http.Client
	store  Store
	logger *slog.Logger

	mu      sync.Mutex
	current *Session
	subs    listeners
}

// NewHubProvider restores a persisted session from store, if any.
func NewHubProvider(baseURL string, store Store, logger *slog.Logger) *HubProvider {
	p := &HubProvider{
		base:   strings.TrimRight(baseURL, "/"),
		client: &http.Client{Timeout: 15 * time.Second},
		store:  store,
		logger: logger,
	}
	if store == nil {
		return p
	}
	data, err := store.Get(SessionKey)
	if err != nil {
		if !errors.Is(err, apperr.ErrNotFound) {
			logger.Warn("auth: load session failed", slog.String("error", err.Error()))
		}
		return p
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil || s.UserID == "" {
		return p
	}
	p.current = &s
	return p
}

// SignIn authenticates an existing account.
func (p *HubProvider) SignIn(ctx context.Context, email, password string) (*Session, error) {
	return p.authenticate(ctx, "/v1/auth/signin", email, password, true)
}

// SignUp creates an account and signs in.
func (p *HubProvider) SignUp(ctx context.Context, email, password string) (*Session, error) {
	return p.authenticate(ctx, "/v1/auth/signup", email, password, false)
}

func (p *HubProvider) authenticate(ctx context.Context, path, email, password string, signIn bool) (*Session, error) {
	body, err := json.Marshal(Credentials{Email: strings.TrimSpace(email), Password: password})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.base+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Warn("auth: request failed", slog.String("error", err.Error()))
		return nil, apperr.NewAuthError(apperr.AuthNetwork, signIn)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var eb ErrorBody
		_ = json.NewDecoder(resp.Body).Decode(&eb)
		return nil, apperr.NewAuthError(eb.Code, signIn)
	}
	var s Session
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil || s.UserID == "" {
		return nil, apperr.NewAuthError(apperr.AuthUnknown, signIn)
	}
	p.set(&s)
	return &s, nil
}

// SignOut forgets the session.
func (p *HubProvider) SignOut(context.Context) error {
	p.set(nil)
	return nil
}

// Current returns the signed-in session or nil.
func (p *HubProvider) Current() *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return nil
	}
	s := *p.current
	return &s
}

// OnChange registers fn.
func (p *HubProvider) OnChange(fn func(*Session)) func() {
	return p.subs.add(fn)
}

func (p *HubProvider) set(s *Session) {
	p.mu.Lock()
	p.current = s
	p.mu.Unlock()
	p.persist(s)
	p.subs.emit(p.Current())
}

func (p *HubProvider) persist(s *Session) {
	if p.store == nil {
		return
	}
	data := []byte("{}")
	if s != nil {
		var err error
		if data, err = json.Marshal(s); err != nil {
			return
		}
	}
	if err := p.store.Set(SessionKey, data); err != nil {
		p.logger.Warn("auth: persist session failed", slog.String("error", fmt.Sprint(err)))
	}
}
