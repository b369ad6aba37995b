// Package storage resolves template attachment references into raw bytes
// before delivery. References carry either a direct URL or a file storage id
// resolved against the file storage service.
package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/kursadbilgin/notification-hub/internal/clientcache"
	"github.com/kursadbilgin/notification-hub/internal/domain"
	"go.uber.org/zap"
)

const defaultTimeout = 20 * time.Second

// Downloader fetches the content behind one attachment reference. The config
// supplies per-client storage settings overriding the instance defaults.
type Downloader interface {
	Download(ctx context.Context, cfg domain.ProviderConfig, ref domain.FileRef) ([]byte, error)
}

// HTTPDownloader resolves attachment references over HTTP. Direct URLs are
// fetched as-is; storage ids are resolved against the file storage service.
// Storage clients are cached per config and dropped on eviction events.
type HTTPDownloader struct {
	baseURL string
	clients *clientcache.Cache[*resty.Client]
	logger  *zap.Logger
}

func NewHTTPDownloader(baseURL string, logger *zap.Logger) (*HTTPDownloader, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	clients, err := clientcache.New("file-storage", func(cfg domain.ProviderConfig) (*resty.Client, error) {
		timeout := defaultTimeout
		if secs := cfg.IntProperty("fileStorageTimeoutSeconds", 0); secs > 0 {
			timeout = time.Duration(secs) * time.Second
		}
		return resty.New().SetTimeout(timeout), nil
	}, logger)
	if err != nil {
		return nil, err
	}

	return &HTTPDownloader{
		baseURL: baseURL,
		clients: clients,
		logger:  logger,
	}, nil
}

func (d *HTTPDownloader) Download(ctx context.Context, cfg domain.ProviderConfig, ref domain.FileRef) ([]byte, error) {
	target := ref.FileURL
	if target == "" {
		if ref.FileStorageID == "" {
			return nil, fmt.Errorf("attachment reference has neither url nor storage id")
		}
		base := strings.TrimRight(cfg.StringProperty("fileStorageBaseUrl"), "/")
		if base == "" {
			base = d.baseURL
		}
		if base == "" {
			return nil, fmt.Errorf("attachment %q needs the file storage service but no base url is configured", ref.FileName)
		}
		target = base + "/files/" + ref.FileStorageID
	}

	client, err := d.clients.GetClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build file storage client: %w", err)
	}

	resp, err := client.R().SetContext(ctx).Get(target)
	if err != nil {
		return nil, fmt.Errorf("failed to download attachment %q: %w", ref.FileName, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("attachment %q download returned status %d", ref.FileName, resp.StatusCode())
	}
	return resp.Body(), nil
}

// Evict drops the cached storage client for a config. Wired to the
// file-storage eviction topic.
func (d *HTTPDownloader) Evict(configID string) {
	d.clients.Evict(configID)
}

func (d *HTTPDownloader) Close() {
	d.clients.Close()
}
