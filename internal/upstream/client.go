// Package upstream talks to the Scratch platform: token issuers, the project
// manifest host and the asset CDN.
package upstream

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/sb2gs-service/internal/scratch"
)

// Default upstream endpoints.
const (
	DefaultAPIBase       = "https://api.scratch.mit.edu"
	DefaultMirrorBase    = "https://trampoline.turbowarp.org/api"
	DefaultProjectsBase  = "https://projects.scratch.mit.edu"
	DefaultAssetsBase    = "https://assets.scratch.mit.edu/internalapi/asset"
	DefaultUserAgent     = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/75.0.3770.142 Safari/537.36"
	defaultMaxConcurrent = 64
)

// Config controls where the client sends requests.
type Config struct {
	// TokenSources are tried in order; each is queried as {base}/projects/{id}.
	TokenSources   []string
	ProjectsBase   string
	AssetsBase     string
	UserAgent      string
	MaxConcurrency int
}

// Client resolves tokens, manifests and assets through a scratch.Fetcher.
type Client struct {
	fetcher scratch.Fetcher
	cfg     Config
	headers http.Header
	logger  *zap.Logger
}

// New builds a Client, filling unset endpoints with the public defaults.
func New(fetcher scratch.Fetcher, cfg Config, logger *zap.Logger) (*Client, error) {
	if fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	sources := make([]string, 0, len(cfg.TokenSources))
	for _, base := range cfg.TokenSources {
		if strings.TrimSpace(base) != "" {
			sources = append(sources, strings.TrimRight(base, "/"))
		}
	}
	if len(sources) == 0 {
		sources = []string{DefaultAPIBase, DefaultMirrorBase}
	}
	cfg.TokenSources = sources
	cfg.ProjectsBase = strings.TrimRight(valueOr(cfg.ProjectsBase, DefaultProjectsBase), "/")
	cfg.AssetsBase = strings.TrimRight(valueOr(cfg.AssetsBase, DefaultAssetsBase), "/")
	cfg.UserAgent = valueOr(cfg.UserAgent, DefaultUserAgent)
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = defaultMaxConcurrent
	}
	return &Client{
		fetcher: fetcher,
		cfg:     cfg,
		headers: browserHeaders(cfg.UserAgent),
		logger:  logger,
	}, nil
}

// browserHeaders is the header set the Scratch API requires before it will
// answer project requests.
func browserHeaders(userAgent string) http.Header {
	h := http.Header{}
	h.Set("User-Agent", userAgent)
	h.Set("X-CSRFToken", "a")
	h.Set("X-Requested-With", "XMLHttpRequest")
	h.Set("Referer", "https://scratch.mit.edu")
	return h
}

func valueOr(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
