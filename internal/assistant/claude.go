package assistant

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/starford/onyx/internal/models"
	"github.com/starford/onyx/internal/state"
)

// Completer produces a reply to message given the conversation so far and
// the user's state. It never fails: errors become fallback replies.
type Completer interface {
	Complete(ctx context.Context, history []Turn, message string, s *models.AppState) string
}

// DefaultModel is used when no model is configured.
const DefaultModel = "claude-sonnet-4-5"

// Config configures the Claude adapter.
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	MaxTokens  int64
	MaxRetries int
	Now        func() time.Time
	Location   *time.Location
}

type sendFunc func(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error)

// Claude completes through the Anthropic Messages API.
type Claude struct {
	send      sendFunc // nil without an API key
	model     string
	maxTokens int64
	now       func() time.Time
	loc       *time.Location
	logger    *slog.Logger
}

// NewClaude builds the adapter. Without an API key every reply is
// ReplyMissingKey.
func NewClaude(cfg Config, logger *slog.Logger) *Claude {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	c := &Claude{
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		now:       cfg.Now,
		loc:       cfg.Location,
		logger:    logger,
	}
	if cfg.APIKey == "" {
		logger.Warn("assistant: API key not configured")
		return c
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := anthropic.NewClient(opts...)
	c.send = func(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error) {
		return client.Messages.New(ctx, params)
	}
	return c
}

// Complete implements Completer.
func (c *Claude) Complete(ctx context.Context, history []Turn, message string, s *models.AppState) string {
	if c.send == nil {
		return ReplyMissingKey
	}
	if s == nil {
		s = models.NewAppState("")
	}
	date := state.Today(c.now().In(c.loc))

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		System:    []anthropic.TextBlockParam{{Text: SystemPrompt(s, date)}},
		Messages:  conversation(history, message),
	}
	msg, err := c.send(ctx, params)
	if err != nil {
		c.logger.Error("assistant: request failed", slog.String("error", err.Error()))
		return ReplyNetwork
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if strings.TrimSpace(b.String()) == "" {
		return ReplyEmpty
	}
	return b.String()
}

// conversation turns the history plus the new message into alternating
// user/assistant messages starting with the user. Consecutive turns of the
// same role are merged.
func conversation(history []Turn, message string) []anthropic.MessageParam {
	turns := append(append([]Turn(nil), history...), Turn{Role: RoleUser, Text: message})

	var merged []Turn
	for _, t := range turns {
		if strings.TrimSpace(t.Text) == "" {
			continue
		}
		role := RoleUser
		if t.Role != RoleUser {
			role = RoleModel
		}
		if len(merged) == 0 && role != RoleUser {
			continue
		}
		if n := len(merged); n > 0 && merged[n-1].Role == role {
			merged[n-1].Text += "\n\n" + t.Text
			continue
		}
		merged = append(merged, Turn{Role: role, Text: t.Text})
	}

	out := make([]anthropic.MessageParam, 0, len(merged))
	for _, t := range merged {
		if t.Role == RoleUser {
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(t.Text)))
		} else {
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(t.Text)))
		}
	}
	return out
}
