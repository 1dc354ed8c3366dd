package replica

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/starford/onyx/internal/apperr"
	"github.com/starford/onyx/internal/models"
)

const maxFrame = 16 << 20

// Hub is the HTTP client of the onyx hub service.
type Hub struct {
	base   string
	token  func() string
	client *http.Client // requests with a deadline
	stream *http.Client // long-lived event streams
	logger *slog.Logger
}

// NewHub returns a client of the hub at baseURL. token supplies the bearer
// token of the signed-in user; it may return "".
func NewHub(baseURL string, token func() string, logger *slog.Logger) *Hub {
	if token == nil {
		token = func() string { return "" }
	}
	return &Hub{
		base:   strings.TrimRight(baseURL, "/"),
		token:  token,
		client: &http.Client{Timeout: 15 * time.Second},
		stream: &http.Client{},
		logger: logger,
	}
}

func (h *Hub) userURL(userID, leaf string) string {
	return h.base + "/v1/users/" + url.PathEscape(userID) + "/" + leaf
}

func (h *Hub) newRequest(ctx context.Context, method, target string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("replica: build request: %w", err)
	}
	if tok := h.token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	return req, nil
}

// Push overwrites the user's document.
func (h *Hub) Push(ctx context.Context, userID string, s *models.AppState) error {
	data, err := encode(s)
	if err != nil {
		return err
	}
	req, err := h.newRequest(ctx, http.MethodPut, h.userURL(userID, "state"), bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("replica: push: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return statusErr("push", resp.StatusCode)
}

// Fetch reads the user's document once. A missing document is (nil, nil).
func (h *Hub) Fetch(ctx context.Context, userID string) (*models.AppState, error) {
	req, err := h.newRequest(ctx, http.MethodGet, h.userURL(userID, "state"), nil)
	if err != nil {
		return nil, err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("replica: fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if err := statusErr("fetch", resp.StatusCode); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("replica: fetch: %w", err)
	}
	return decode(data)
}

// Subscribe follows the user's event stream. The hub opens every stream
// with a "state" or "absent" event, which becomes the first callback. An
// "error" event, or a first document that does not decode, ends the feed.
func (h *Hub) Subscribe(ctx context.Context, userID string, onChange OnChange) (Unsubscribe, error) {
	if userID == "" {
		return nil, fmt.Errorf("replica: empty user id: %w", apperr.ErrInvalid)
	}
	stop := startFeed(ctx, func(ctx context.Context) {
		err := h.follow(ctx, userID, onChange)
		if ctx.Err() != nil {
			return
		}
		h.logger.Warn("replica: hub stream ended", slog.String("user", userID), slog.Any("error", err))
		onChange(nil, err)
	}, nil)
	return stop, nil
}

func (h *Hub) follow(ctx context.Context, userID string, onChange OnChange) error {
	req, err := h.newRequest(ctx, http.MethodGet, h.userURL(userID, "events"), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := h.stream.Do(req)
	if err != nil {
		return fmt.Errorf("replica: connect: %w", err)
	}
	defer resp.Body.Close()
	if err := statusErr("subscribe", resp.StatusCode); err != nil {
		return err
	}

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 64*1024), maxFrame)

	var event string
	var data strings.Builder
	first := true
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if event != "" || data.Len() > 0 {
				if err := h.dispatch(event, data.String(), first, onChange); err != nil {
					return err
				}
				first = false
			}
			event = ""
			data.Reset()
		case strings.HasPrefix(line, ":"):
			// heartbeat
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("replica: read stream: %w", err)
	}
	return io.ErrUnexpectedEOF
}

func (h *Hub) dispatch(event, data string, first bool, onChange OnChange) error {
	switch event {
	case "absent":
		onChange(nil, nil)
	case "state":
		s, err := decode([]byte(data))
		if err != nil {
			if first {
				return err
			}
			h.logger.Warn("replica: bad document on stream", slog.String("error", err.Error()))
			return nil
		}
		onChange(s, nil)
	case "error":
		return fmt.Errorf("replica: hub stream error: %s", data)
	}
	return nil
}

func statusErr(op string, code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusUnauthorized:
		return fmt.Errorf("replica: %s: %w", op, apperr.ErrUnauthorized)
	case code == http.StatusForbidden:
		return fmt.Errorf("replica: %s: %w", op, apperr.ErrForbidden)
	case code == http.StatusNotFound:
		return fmt.Errorf("replica: %s: %w", op, apperr.ErrNotFound)
	default:
		return fmt.Errorf("replica: %s: unexpected status %d", op, code)
	}
}
