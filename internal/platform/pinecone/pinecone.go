package pinecone

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Record is one indexed chunk. ID is the md5 of the chunk text, so
// re-upserting identical content overwrites instead of duplicating.
type Record struct {
	ID       string    `json:"id"`
	Values   []float32 `json:"values"`
	Metadata Metadata  `json:"metadata"`
}

type Metadata struct {
	Text       string `json:"text"`
	PageNumber int    `json:"pageNumber"`
}

// Match is a similarity-search hit, highest score first.
type Match struct {
	ID       string   `json:"id"`
	Score    float32  `json:"score"`
	Metadata Metadata `json:"metadata"`
}

// Client is a minimal REST gateway to one Pinecone index. Namespaces are
// derived from document keys via Namespace, one per document.
type Client struct {
	host       string
	apiKey     string
	httpClient *http.Client
}

func New(host, apiKey string) *Client {
	return &Client{
		host:       strings.TrimRight(host, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Namespace maps a document key to an index-safe namespace name by
// stripping every non-ASCII code point. Deterministic and idempotent.
func Namespace(fileKey string) string {
	var b strings.Builder
	b.Grow(len(fileKey))
	for _, r := range fileKey {
		if r < 128 {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Upsert writes records into the namespace for fileKey. The batch either
// fully succeeds or the caller treats the whole ingestion as failed.
func (c *Client) Upsert(ctx context.Context, fileKey string, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	body := map[string]any{
		"vectors":   records,
		"namespace": Namespace(fileKey),
	}
	if err := c.postJSON(ctx, "/vectors/upsert", body, nil); err != nil {
		return fmt.Errorf("pinecone upsert failed: %w", err)
	}
	return nil
}

// Query returns up to topK matches from the namespace for fileKey, ordered
// by descending score. An empty namespace yields an empty slice, not an error.
func (c *Client) Query(ctx context.Context, fileKey string, vector []float32, topK int) ([]Match, error) {
	if topK <= 0 {
		topK = 5
	}
	body := map[string]any{
		"namespace":       Namespace(fileKey),
		"vector":          vector,
		"topK":            topK,
		"includeMetadata": true,
	}
	var parsed struct {
		Matches []Match `json:"matches"`
	}
	if err := c.postJSON(ctx, "/query", body, &parsed); err != nil {
		return nil, fmt.Errorf("pinecone query failed: %w", err)
	}
	return parsed.Matches, nil
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request failed: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(raw))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response failed: %w", err)
		}
	}
	return nil
}
