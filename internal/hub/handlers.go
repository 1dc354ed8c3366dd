package hub

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/onyx/internal/apperr"
	"github.com/starford/onyx/internal/sse"
)

// maxDocument bounds a PUT body.
const maxDocument = 8 << 20

type ctxKey struct{}

// Handler holds the hub's route handlers.
type Handler struct {
	svc    *Service
	tokens *Tokens
	broker *sse.Broker
	logger *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(svc *Service, tokens *Tokens, broker *sse.Broker, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, tokens: tokens, broker: broker, logger: logger}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Code  string `json:"code,omitempty"`
	Error string `json:"error"`
}

func (h *Handler) writeAuthError(w http.ResponseWriter, err error) {
	ae, ok := apperr.AsAuth(err)
	if !ok {
		h.logger.Error("auth failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errResponse{Code: apperr.AuthUnknown, Error: "internal error"})
		return
	}
	status := http.StatusBadRequest
	switch ae.Code {
	case apperr.AuthInvalidCredential:
		status = http.StatusUnauthorized
	case apperr.AuthEmailInUse:
		status = http.StatusConflict
	}
	writeJSON(w, status, errResponse{Code: ae.Code, Error: ae.Message})
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func decodeCredentials(r *http.Request) (credentials, bool) {
	var c credentials
	err := json.NewDecoder(io.LimitReader(r.Body, 64<<10)).Decode(&c)
	return c, err == nil
}

// SignUp handles POST /v1/auth/signup.
func (h *Handler) SignUp(w http.ResponseWriter, r *http.Request) {
	c, ok := decodeCredentials(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errResponse{Error: "invalid JSON"})
		return
	}
	s, err := h.svc.SignUp(c.Email, c.Password)
	if err != nil {
		h.writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// SignIn handles POST /v1/auth/signin.
func (h *Handler) SignIn(w http.ResponseWriter, r *http.Request) {
	c, ok := decodeCredentials(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errResponse{Error: "invalid JSON"})
		return
	}
	s, err := h.svc.SignIn(c.Email, c.Password)
	if err != nil {
		h.writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// RequireUser verifies the bearer token and that it belongs to the {uid}
// of the route.
func (h *Handler) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			writeJSON(w, http.StatusUnauthorized, errResponse{Error: "unauthorized"})
			return
		}
		uid, err := h.tokens.Verify(strings.TrimPrefix(auth, "Bearer "))
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, errResponse{Error: "unauthorized"})
			return
		}
		if uid != chi.URLParam(r, "uid") {
			writeJSON(w, http.StatusForbidden, errResponse{Error: "forbidden"})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, uid)))
	})
}

func userID(r *http.Request) string {
	uid, _ := r.Context().Value(ctxKey{}).(string)
	return uid
}

// GetState handles GET /v1/users/{uid}/state.
func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	doc, err := h.svc.Document(userID(r))
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errResponse{Error: "no document"})
			return
		}
		h.logger.Error("get document failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errResponse{Error: "internal error"})
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc)
}

// PutState handles PUT /v1/users/{uid}/state.
func (h *Handler) PutState(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxDocument+1))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errResponse{Error: "read body"})
		return
	}
	if len(body) > maxDocument {
		writeJSON(w, http.StatusRequestEntityTooLarge, errResponse{Error: "document too large"})
		return
	}
	if err := h.svc.PutDocument(userID(r), body); err != nil {
		switch {
		case errors.Is(err, apperr.ErrInvalid):
			writeJSON(w, http.StatusBadRequest, errResponse{Error: err.Error()})
		case errors.Is(err, apperr.ErrNotFound):
			writeJSON(w, http.StatusNotFound, errResponse{Error: "unknown user"})
		default:
			h.logger.Error("put document failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errResponse{Error: "internal error"})
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Events handles GET /v1/users/{uid}/events.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	h.broker.Stream(w, r, uid, func() []sse.Event { return h.svc.Initial(uid) })
}
