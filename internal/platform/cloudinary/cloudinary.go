package cloudinary

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound means the document key does not exist in storage.
var ErrNotFound = errors.New("document not found in storage")

var validResourceTypes = map[string]bool{
	"image": true,
	"raw":   true,
	"video": true,
	"auto":  true,
}

// Client downloads uploaded documents from a Cloudinary account.
type Client struct {
	baseURL    string
	cloudName  string
	tempDir    string
	httpClient *http.Client
}

type Option func(*Client)

// WithBaseURL overrides the Cloudinary delivery host, for tests.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func New(cloudName, tempDir string, opts ...Option) *Client {
	c := &Client{
		baseURL:    "https://res.cloudinary.com",
		cloudName:  cloudName,
		tempDir:    tempDir,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	if c.tempDir == "" {
		c.tempDir = filepath.Join(os.TempDir(), "chatpdf")
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// URL builds the public delivery URL for a file key. Keys that are already
// full URLs are returned as-is (some upload widgets store the URL directly).
func (c *Client) URL(fileKey, resourceType string) string {
	if strings.HasPrefix(fileKey, "http") {
		return fileKey
	}
	if !validResourceTypes[resourceType] {
		resourceType = "image"
	}
	return fmt.Sprintf("%s/%s/%s/upload/%s", c.baseURL, c.cloudName, resourceType, fileKey)
}

// Fetch downloads the document behind fileKey into a temporary file and
// returns its path. The caller owns the file and must remove it when done.
func (c *Client) Fetch(ctx context.Context, fileKey, resourceType string) (string, error) {
	if err := os.MkdirAll(c.tempDir, 0o755); err != nil {
		return "", fmt.Errorf("create temp dir failed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL(fileKey, resourceType), nil)
	if err != nil {
		return "", fmt.Errorf("build download request failed: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("download document failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", ErrNotFound
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("download document status %d", resp.StatusCode)
	}

	path := filepath.Join(c.tempDir, fmt.Sprintf("pdf-%s.pdf", uuid.NewString()))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create temp file failed: %w", err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("write temp file failed: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("close temp file failed: %w", err)
	}
	return path, nil
}
