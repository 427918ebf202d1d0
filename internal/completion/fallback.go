package completion

import (
	"context"
	"errors"

	"github.com/myralabs/pura-chat-platform/pkg/logging"
)

// FallbackCompleter wraps a primary Completer with a fallback provider. If
// the primary fails for any reason other than misconfiguration having already
// been ruled out upstream, the fallback is tried once.
type FallbackCompleter struct {
	primary  Completer
	fallback Completer
	logger   *logging.Logger
}

// NewFallbackCompleter builds a fallback chain. fallback may be nil, in which
// case only the primary is used.
func NewFallbackCompleter(primary, fallback Completer, logger *logging.Logger) *FallbackCompleter {
	if primary == nil {
		panic("completion: primary completer required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &FallbackCompleter{primary: primary, fallback: fallback, logger: logger}
}

// Complete tries the primary provider, then the fallback.
func (c *FallbackCompleter) Complete(ctx context.Context, messages []Message) (string, error) {
	text, err := c.primary.Complete(ctx, messages)
	if err == nil {
		return text, nil
	}
	if c.fallback == nil || errors.Is(err, context.Canceled) {
		return "", err
	}

	c.logger.Warn("primary completion provider failed, trying fallback", "error", err)
	text, fallbackErr := c.fallback.Complete(ctx, messages)
	if fallbackErr != nil {
		c.logger.Error("fallback completion provider also failed",
			"primary_error", err.Error(),
			"fallback_error", fallbackErr.Error(),
		)
		return "", fallbackErr
	}
	c.logger.Info("fallback completion provider succeeded after primary failure")
	return text, nil
}
