package inference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/coachvault/coachd/internal/prompt"
)

// Config is the gateway's policy surface. Retries and backoff are
// configuration, not call-site logic.
type Config struct {
	Timeout    time.Duration // per-attempt deadline
	MaxRetries int           // additional attempts after the first
	Backoff    time.Duration // delay between attempts
	MaxTokens  int           // completion size cap
}

// Gateway wraps the wire client with timeout, bounded retries and error
// classification.
type Gateway struct {
	client *Client
	cfg    Config
	logger *slog.Logger
}

func NewGateway(client *Client, cfg Config, logger *slog.Logger) *Gateway {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	return &Gateway{client: client, cfg: cfg, logger: logger}
}

// Infer sends the assembled prompt to the endpoint. Transport errors,
// timeouts, 429 and 5xx responses are retried up to MaxRetries with
// Backoff between attempts; once exhausted the result is ErrUnavailable.
// A malformed response or a non-retryable API rejection returns
// immediately.
func (g *Gateway) Infer(ctx context.Context, p prompt.Prompt) (string, error) {
	messages := make([]Message, len(p.Messages))
	for i, m := range p.Messages {
		messages[i] = Message{Role: string(m.Role), Content: m.Content}
	}

	var lastErr error
	attempts := g.cfg.MaxRetries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			g.logger.Warn("retrying inference call",
				"attempt", attempt,
				"backoff", g.cfg.Backoff,
				"error", lastErr,
			)
			select {
			case <-time.After(g.cfg.Backoff):
			case <-ctx.Done():
				return "", fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
			}
		}

		callCtx := ctx
		cancel := context.CancelFunc(func() {})
		if g.cfg.Timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, g.cfg.Timeout)
		}
		text, err := g.client.Complete(callCtx, p.System, messages, g.cfg.MaxTokens)
		cancel()

		if err == nil {
			return text, nil
		}
		if errors.Is(err, ErrMalformedResponse) {
			return "", err
		}
		if !retryable(err) {
			return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		lastErr = err
	}

	return "", fmt.Errorf("%w: retries exhausted: %v", ErrUnavailable, lastErr)
}

// retryable reports whether another attempt could plausibly succeed:
// transport failures and timeouts, plus 429 and server-side statuses.
// Other API rejections (bad request, auth) will fail identically again.
func retryable(err error) bool {
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		return apiErr.status == http.StatusTooManyRequests || apiErr.status >= 500
	}
	return true
}
