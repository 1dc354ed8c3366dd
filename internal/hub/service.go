package hub

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/starford/onyx/internal/apperr"
	"github.com/starford/onyx/internal/models"
	"github.com/starford/onyx/internal/sse"
)

// MinPasswordLen is the shortest accepted password.
const MinPasswordLen = 6

// Stream event types.
const (
	EventState  = "state"
	EventAbsent = "absent"
	EventError  = "error"
)

// Session is returned by sign-in and sign-up.
type Session struct {
	UserID string `json:"uid"`
	Email  string `json:"email"`
	Token  string `json:"token"`
}

// Service implements accounts and documents.
type Service struct {
	db     *DB
	tokens *Tokens
	broker *sse.Broker
	logger *slog.Logger
	now    func() time.Time
}

// NewService wires the hub's collaborators.
func NewService(db *DB, tokens *Tokens, broker *sse.Broker, logger *slog.Logger) *Service {
	return &Service{db: db, tokens: tokens, broker: broker, logger: logger, now: time.Now}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SignUp creates an account. Failures are *apperr.AuthError.
func (s *Service) SignUp(email, password string) (*Session, error) {
	email = normalizeEmail(email)
	if err := validation.Validate(email, validation.Required, is.EmailFormat); err != nil {
		return nil, apperr.NewAuthError(apperr.AuthInvalidEmail, false)
	}
	if len(password) < MinPasswordLen {
		return nil, apperr.NewAuthError(apperr.AuthWeakPassword, false)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := User{ID: uuid.NewString(), Email: email, PasswordHash: string(hash), CreatedAt: s.now()}
	if err := s.db.CreateUser(u); err != nil {
		if errors.Is(err, apperr.ErrAlreadyExists) {
			return nil, apperr.NewAuthError(apperr.AuthEmailInUse, false)
		}
		return nil, err
	}
	s.logger.Info("user registered", slog.String("user", u.ID))
	return s.session(u.ID, u.Email)
}

// SignIn authenticates an account. Unknown emails and wrong passwords are
// indistinguishable.
func (s *Service) SignIn(email, password string) (*Session, error) {
	email = normalizeEmail(email)
	u, err := s.db.UserByEmail(email)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.NewAuthError(apperr.AuthInvalidCredential, true)
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		s.logger.Warn("sign-in with invalid password", slog.String("user", u.ID))
		return nil, apperr.NewAuthError(apperr.AuthInvalidCredential, true)
	}
	return s.session(u.ID, u.Email)
}

func (s *Service) session(userID, email string) (*Session, error) {
	tok, err := s.tokens.Issue(userID, email)
	if err != nil {
		return nil, err
	}
	return &Session{UserID: userID, Email: email, Token: tok}, nil
}

// Document returns the user's document, or apperr.ErrNotFound.
func (s *Service) Document(userID string) (json.RawMessage, error) {
	body, err := s.db.Document(userID)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(body), nil
}

// PutDocument overwrites the user's document and notifies the user's
// subscribers. body must decode as an AppState object.
func (s *Service) PutDocument(userID string, body []byte) error {
	if trimmed := bytes.TrimSpace(body); len(trimmed) == 0 || trimmed[0] != '{' {
		return fmt.Errorf("document must be a JSON object: %w", apperr.ErrInvalid)
	}
	var doc models.AppState
	if err := json.Unmarshal(body, &doc); err != nil {
		return fmt.Errorf("document is not an app state: %v: %w", err, apperr.ErrInvalid)
	}
	if err := s.db.PutDocument(userID, body, s.now()); err != nil {
		return err
	}
	s.broker.Publish(sse.Event{Topic: userID, Type: EventState, Data: json.RawMessage(body)})
	return nil
}

// Initial returns the event that opens a stream of userID. A document that
// cannot be read opens the stream with an error rather than "absent", so the
// client does not mistake the user for a new one.
func (s *Service) Initial(userID string) []sse.Event {
	doc, err := s.Document(userID)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return []sse.Event{{Topic: userID, Type: EventAbsent, Data: struct{}{}}}
	case err != nil:
		s.logger.Error("load document failed", slog.String("user", userID), slog.String("error", err.Error()))
		return []sse.Event{{Topic: userID, Type: EventError, Data: errResponse{Code: "unavailable", Error: "document unavailable"}}}
	}
	return []sse.Event{{Topic: userID, Type: EventState, Data: doc}}
}
