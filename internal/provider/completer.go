package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/studyrag-go/internal/rag"
)

// ChatCompleter adapts an eino chat model to Completer. Failures are
// reported as rag.ErrCompletionUnavailable, or rag.ErrTimeout when a deadline
// expired.
type ChatCompleter struct {
	model   model.BaseChatModel
	timeout time.Duration
}

// NewChatCompleter wraps cm. A positive timeout bounds each call in addition
// to the caller's context.
func NewChatCompleter(cm model.BaseChatModel, timeout time.Duration) *ChatCompleter {
	return &ChatCompleter{model: cm, timeout: timeout}
}

// Complete implements Completer.
func (c *ChatCompleter) Complete(ctx context.Context, msgs []*schema.Message) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	resp, err := c.model.Generate(ctx, msgs)
	if err != nil {
		return "", rag.Classify("provider: complete", rag.ErrCompletionUnavailable, err)
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return "", fmt.Errorf("provider: complete: %w: %w", rag.ErrCompletionUnavailable, errors.New("empty answer"))
	}
	return resp.Content, nil
}

// Ping sends a one-word prompt and reports whether the model answered.
func (c *ChatCompleter) Ping(ctx context.Context) error {
	if _, err := c.Complete(ctx, []*schema.Message{schema.UserMessage("ping")}); err != nil {
		return err
	}
	return nil
}
