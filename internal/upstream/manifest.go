package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"go.uber.org/zap"

	"github.com/JakeFAU/sb2gs-service/internal/scratch"
)

// FetchManifest downloads the raw project manifest. Transport failures, bad
// statuses and bodies that are not JSON are KindManifestFetch; the shape is
// checked later by scratch.ParseManifest.
func (c *Client) FetchManifest(ctx context.Context, id scratch.ProjectID, token scratch.Token) ([]byte, error) {
	manifestURL := fmt.Sprintf("%s/%s?%s", c.cfg.ProjectsBase, id, url.Values{"token": {string(token)}}.Encode())
	resp, err := c.fetcher.Fetch(ctx, scratch.FetchRequest{
		URL:     manifestURL,
		Headers: c.headers.Clone(),
	})
	if err != nil {
		return nil, scratch.NewError(scratch.KindManifestFetch, "", fmt.Errorf("fetch manifest %s: %w", id, err))
	}

	if !json.Valid(resp.Body) {
		return nil, scratch.NewError(scratch.KindManifestFetch, "", fmt.Errorf("manifest %s is not valid JSON", id))
	}
	c.logger.Debug("manifest fetched",
		zap.Stringer("project_id", id),
		zap.Int("bytes", len(resp.Body)),
	)
	return resp.Body, nil
}
