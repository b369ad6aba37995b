// Package cdn talks to the content host where oversized notification bodies
// and hosted templates live. Bodies are uploaded as files, referenced by URL
// in the outgoing payload and fetched back (then removed) at delivery time.
package cdn

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const defaultTimeout = 15 * time.Second

// Client is the HTTP client for the content host.
type Client struct {
	baseURL string
	http    *resty.Client
	logger  *zap.Logger
}

func NewClient(baseURL string, logger *zap.Logger) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("content host base url is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    resty.New().SetTimeout(defaultTimeout),
		logger:  logger,
	}, nil
}

type uploadResponse struct {
	URLs []string `json:"urls"`
}

// Upload stores content under the given file name and returns the public URL
// it is served from.
func (c *Client) Upload(ctx context.Context, fileName string, content []byte) (string, error) {
	var result uploadResponse

	resp, err := c.http.R().
		SetContext(ctx).
		SetFileReader("files", fileName, strings.NewReader(string(content))).
		SetResult(&result).
		Post(c.baseURL + "/upload")
	if err != nil {
		return "", fmt.Errorf("failed to upload content: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("content host upload returned status %d", resp.StatusCode())
	}
	if len(result.URLs) == 0 {
		return "", fmt.Errorf("content host upload returned no url")
	}

	c.logger.Debug("uploaded hosted content",
		zap.String("file_name", fileName),
		zap.String("url", result.URLs[0]))

	return result.URLs[0], nil
}

// Fetch downloads hosted content by its URL.
func (c *Client) Fetch(ctx context.Context, contentURL string) ([]byte, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetDoNotParseResponse(false).
		Get(contentURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch hosted content: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("content host fetch returned status %d", resp.StatusCode())
	}
	return resp.Body(), nil
}

// Delete removes hosted content once it has been delivered. Failures are
// logged by callers and never fail the send.
func (c *Client) Delete(ctx context.Context, contentURL string) error {
	fileName, err := fileNameFromURL(contentURL)
	if err != nil {
		return err
	}

	resp, err := c.http.R().
		SetContext(ctx).
		Delete(c.baseURL + "/delete/" + fileName)
	if err != nil {
		return fmt.Errorf("failed to delete hosted content: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("content host delete returned status %d", resp.StatusCode())
	}
	return nil
}

func fileNameFromURL(contentURL string) (string, error) {
	parsed, err := url.Parse(contentURL)
	if err != nil {
		return "", fmt.Errorf("invalid hosted content url %q: %w", contentURL, err)
	}
	name := path.Base(parsed.Path)
	if name == "" || name == "." || name == "/" {
		return "", fmt.Errorf("hosted content url %q has no file name", contentURL)
	}
	return name, nil
}
