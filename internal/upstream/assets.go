package upstream

import (
	"context"
	"fmt"
	"iter"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/sb2gs-service/internal/metrics"
	"github.com/JakeFAU/sb2gs-service/internal/scratch"
)

// FetchAssets downloads every key concurrently, at most MaxConcurrency at a
// time. The first failure cancels the remaining fetches; the call returns only
// after every started fetch has finished, so a nil error means the map is
// complete.
func (c *Client) FetchAssets(ctx context.Context, keys iter.Seq[scratch.AssetKey]) (map[scratch.AssetKey][]byte, error) {
	var (
		mu    sync.Mutex
		blobs = make(map[scratch.AssetKey][]byte)
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.MaxConcurrency)

	for key := range keys {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			body, err := c.fetchAsset(gctx, key)
			if err != nil {
				return err
			}
			mu.Lock()
			blobs[key] = body
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("fetch assets: %w", err)
	}
	return blobs, nil
}

func (c *Client) fetchAsset(ctx context.Context, key scratch.AssetKey) ([]byte, error) {
	resp, err := c.fetcher.Fetch(ctx, scratch.FetchRequest{
		URL:     fmt.Sprintf("%s/%s/get/", c.cfg.AssetsBase, key),
		Headers: c.headers.Clone(),
	})
	if err != nil {
		metrics.ObserveAssetFetch("error", 0)
		c.logger.Warn("asset fetch failed", zap.String("asset", string(key)), zap.Error(err))
		return nil, scratch.NewError(scratch.KindAssetFetch, string(key), err)
	}
	metrics.ObserveAssetFetch("ok", len(resp.Body))
	return resp.Body, nil
}
