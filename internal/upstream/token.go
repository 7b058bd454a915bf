package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/sb2gs-service/internal/scratch"
)

// TokenAttempt is the outcome of asking one source for a project token.
// Payload is the raw response (or error text) kept for diagnostics.
type TokenAttempt struct {
	Source  string
	Token   scratch.Token
	Payload string
}

// OK reports whether the attempt produced a token.
func (a TokenAttempt) OK() bool {
	return a.Token != ""
}

type projectMeta struct {
	ProjectToken any `json:"project_token"`
}

// ResolveToken asks each configured source in order and returns the first
// token found. When none answers with a token the error is
// KindTokenUnavailable carrying the last payload.
func (c *Client) ResolveToken(ctx context.Context, id scratch.ProjectID) (scratch.Token, error) {
	var last TokenAttempt
	for _, base := range c.cfg.TokenSources {
		last = c.tryTokenSource(ctx, base, id)
		if last.OK() {
			c.logger.Debug("project token resolved",
				zap.Stringer("project_id", id),
				zap.String("source", base),
			)
			return last.Token, nil
		}
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("resolve token: %w", err)
		}
		c.logger.Info("token source returned no token",
			zap.Stringer("project_id", id),
			zap.String("source", base),
		)
	}
	return "", scratch.NewError(scratch.KindTokenUnavailable, last.Payload, nil)
}

func (c *Client) tryTokenSource(ctx context.Context, base string, id scratch.ProjectID) TokenAttempt {
	attempt := TokenAttempt{Source: base}
	resp, err := c.fetcher.Fetch(ctx, scratch.FetchRequest{
		URL:     fmt.Sprintf("%s/projects/%s", base, id),
		Headers: c.headers.Clone(),
	})
	if err != nil {
		var statusErr *scratch.StatusError
		if errors.As(err, &statusErr) && len(statusErr.Body) > 0 {
			attempt.Payload = string(statusErr.Body)
		} else {
			attempt.Payload = err.Error()
		}
		return attempt
	}
	attempt.Payload = string(resp.Body)

	var meta projectMeta
	if err := json.Unmarshal(resp.Body, &meta); err != nil {
		return attempt
	}
	if token, ok := meta.ProjectToken.(string); ok {
		attempt.Token = scratch.Token(token)
	}
	return attempt
}
