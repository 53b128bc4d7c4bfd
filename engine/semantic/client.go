package semantic

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultTimeout applies to every REST call that does not carry its own.
const DefaultTimeout = 5 * time.Second

// Options configures a REST Client.
type Options struct {
	URL                string
	APIKey             string
	Timeout            time.Duration
	InsecureSkipVerify bool
	// HTTPClient replaces the default transport, mainly for tests.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client talks to Qdrant's REST API. It is safe for concurrent use.
type Client struct {
	baseURL string
	apiKey  string
	timeout time.Duration
	http    *http.Client
	logger  *slog.Logger
}

var _ Store = (*Client)(nil)

// NewClient creates a REST client. The URL is required.
func NewClient(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.URL) == "" {
		return nil, errors.New("semantic: qdrant URL must not be empty")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
		if opts.InsecureSkipVerify {
			hc.Transport = &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			}
		}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(opts.URL, "/"),
		apiKey:  opts.APIKey,
		timeout: opts.Timeout,
		http:    hc,
		logger:  opts.Logger,
	}, nil
}

// GetCollections lists collection names.
func (c *Client) GetCollections(ctx context.Context) ([]string, error) {
	var out struct {
		Result struct {
			Collections []struct {
				Name string `json:"name"`
			} `json:"collections"`
		} `json:"result"`
	}
	if err := c.call(ctx, http.MethodGet, "/collections", nil, 0, &out); err != nil {
		return nil, err
	}
	names := make([]string, len(out.Result.Collections))
	for i, col := range out.Result.Collections {
		names[i] = col.Name
	}
	return names, nil
}

// GetCollection returns collection metadata, or an error matching ErrNotFound.
func (c *Client) GetCollection(ctx context.Context, name string) (CollectionInfo, error) {
	var out struct {
		Result struct {
			Status      string `json:"status"`
			PointsCount int64  `json:"points_count"`
			Config      struct {
				Params struct {
					Vectors struct {
						Size int `json:"size"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	if err := c.call(ctx, http.MethodGet, collectionPath(name), nil, 0, &out); err != nil {
		return CollectionInfo{}, err
	}
	return CollectionInfo{
		Name:        name,
		Status:      out.Result.Status,
		PointsCount: out.Result.PointsCount,
		VectorSize:  out.Result.Config.Params.Vectors.Size,
	}, nil
}

// CreateCollection creates a collection with a single unnamed vector.
func (c *Client) CreateCollection(ctx context.Context, name string, size int, distance Distance) error {
	body := map[string]any{
		"vectors": map[string]any{
			"size":     size,
			"distance": distance.wire(),
		},
	}
	return c.call(ctx, http.MethodPut, collectionPath(name), body, 0, nil)
}

// DeleteCollection drops a collection. A missing collection is not an error.
func (c *Client) DeleteCollection(ctx context.Context, name string) error {
	err := c.call(ctx, http.MethodDelete, collectionPath(name), nil, 0, nil)
	if errors.Is(err, ErrNotFound) {
		c.logger.Debug("semantic: delete of missing collection", "collection", name)
		return nil
	}
	return err
}

// RecreateCollection deletes then creates. Calling it repeatedly is safe.
func (c *Client) RecreateCollection(ctx context.Context, name string, size int, distance Distance) error {
	if err := c.DeleteCollection(ctx, name); err != nil {
		return err
	}
	return c.CreateCollection(ctx, name, size, distance)
}

// EnsureCollection creates the collection only if it does not exist.
func (c *Client) EnsureCollection(ctx context.Context, name string, size int, distance Distance) error {
	_, err := c.GetCollection(ctx, name)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrNotFound) {
		return err
	}
	c.logger.Info("semantic: creating collection", "collection", name, "size", size)
	return c.CreateCollection(ctx, name, size, distance)
}

// Upsert writes points to a collection.
func (c *Client) Upsert(ctx context.Context, collection string, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	body := map[string]any{"points": points}
	if err := c.call(ctx, http.MethodPut, collectionPath(collection)+"/points", body, 0, nil); err != nil {
		return fmt.Errorf("semantic: upsert %d points: %w", len(points), err)
	}
	return nil
}

// Search runs a nearest-neighbour query and normalizes whichever response
// envelope the server uses.
func (c *Client) Search(ctx context.Context, p SearchParams) ([]Record, error) {
	body := map[string]any{
		"vector":       p.Vector,
		"limit":        p.Limit,
		"with_payload": p.WithPayload,
	}
	raw, err := c.send(ctx, http.MethodPost, collectionPath(p.Collection)+"/points/search", body, p.Timeout)
	if err != nil {
		return nil, err
	}
	recs, kind, err := Normalize(raw, p.Limit)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("semantic: search", "collection", p.Collection, "envelope", kind.String(), "hits", len(recs))
	return recs, nil
}

// call sends a request and decodes a 2xx JSON body into out (when non-nil).
func (c *Client) call(ctx context.Context, method, path string, body any, timeout time.Duration, out any) error {
	raw, err := c.send(ctx, method, path, body, timeout)
	if err != nil {
		return err
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("semantic: decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, body any, timeout time.Duration) ([]byte, error) {
	if timeout <= 0 {
		timeout = c.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("semantic: encode %s %s: %w", method, path, err)
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("api-key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("semantic: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("semantic: read %s %s: %w", method, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	return raw, nil
}

func collectionPath(name string) string {
	return "/collections/" + url.PathEscape(name)
}
