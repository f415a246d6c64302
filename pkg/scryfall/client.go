package scryfall

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Gobusters/ectologger"
)

const (
	// DefaultTimeout is the default timeout for discovery requests
	DefaultTimeout = 30 * time.Second

	// MaxDiscoveryResponseSize caps the bulk-data listing response (1MB)
	MaxDiscoveryResponseSize = 1 * 1024 * 1024
)

// BulkData describes one published bulk dataset. The download URI changes on
// every publication, so it is discovered per run rather than configured.
type BulkData struct {
	Type        string    `json:"type"`
	UpdatedAt   time.Time `json:"updated_at"`
	DownloadURI string    `json:"download_uri"`
	Size        int64     `json:"size"`
	ContentType string    `json:"content_type"`
}

// Config holds Scryfall client configuration
type Config struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
}

// Client talks to the Scryfall bulk-data API.
type Client struct {
	baseURL   string
	userAgent string

	// discovery requests are bounded by a timeout; downloads are streamed
	// and bounded only by the caller's context
	client         *http.Client
	downloadClient *http.Client
	logger         ectologger.Logger
}

// NewClient creates a new Scryfall client
func NewClient(cfg Config, logger ectologger.Logger) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		baseURL:        cfg.BaseURL,
		userAgent:      cfg.UserAgent,
		client:         &http.Client{Timeout: timeout},
		downloadClient: &http.Client{},
		logger:         logger,
	}
}

// GetBulkData fetches the bulk-data descriptor for the given dataset type
// (e.g. "default_cards").
func (c *Client) GetBulkData(ctx context.Context, dataType string) (*BulkData, error) {
	url := fmt.Sprintf("%s/bulk-data/%s", c.baseURL, dataType)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.WithContext(ctx).WithError(err).Errorf("Bulk data discovery failed: %s", url)
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bulk data discovery returned status %d", resp.StatusCode)
	}

	var bulk BulkData
	limitedReader := io.LimitReader(resp.Body, MaxDiscoveryResponseSize)
	if err := json.NewDecoder(limitedReader).Decode(&bulk); err != nil {
		return nil, fmt.Errorf("failed to decode bulk data descriptor: %w", err)
	}

	if bulk.DownloadURI == "" {
		return nil, fmt.Errorf("bulk data descriptor for %q has no download uri", dataType)
	}

	c.logger.WithContext(ctx).Debugf("HTTP GET %s -> %d (%s)", url, resp.StatusCode, time.Since(start))

	return &bulk, nil
}

// Download opens the dataset at the given URI and returns a stream positioned
// at the first card. The caller owns the stream and must Close it.
func (c *Client) Download(ctx context.Context, uri string) (*CardStream, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.downloadClient.Do(req)
	if err != nil {
		c.logger.WithContext(ctx).WithError(err).Errorf("Bulk data download failed: %s", uri)
		return nil, fmt.Errorf("download failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("bulk data download returned status %d", resp.StatusCode)
	}

	stream, err := NewCardStream(resp.Body)
	if err != nil {
		resp.Body.Close()
		return nil, err
	}

	c.logger.WithContext(ctx).Infof("Streaming bulk dataset from %s (%d bytes)", uri, resp.ContentLength)

	return stream, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
}
