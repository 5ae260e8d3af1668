// Package sidecar talks to the semantic sample search sidecar over HTTP.
package sidecar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/noamisr/maestro/internal/remote"
	"github.com/noamisr/maestro/schema"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"pkt.systems/pslog"
)

// DefaultURL is where the sidecar listens unless configured otherwise.
const DefaultURL = "http://127.0.0.1:9400"

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithRequestTimeout bounds search and health requests. Directory indexing
// is never bounded by it.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// WithLogger sets the client logger.
func WithLogger(logger pslog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Client is an HTTP client for the sidecar API. It implements remote.Invoker
// for the search operations.
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	logger  pslog.Logger
}

// New constructs a Client for baseURL.
func New(baseURL string, opts ...Option) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultURL
	}
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		timeout: 30 * time.Second,
		logger:  pslog.Ctx(context.Background()),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Health is the /health response.
type Health struct {
	Status      string         `json:"status"`
	Collections map[string]int `json:"collections,omitempty"`
}

type wireItem struct {
	ID              string         `json:"id"`
	FilePath        string         `json:"file_path"`
	FileName        string         `json:"file_name"`
	Distance        float64        `json:"distance"`
	DurationSeconds float64        `json:"duration_seconds"`
	Metadata        map[string]any `json:"metadata"`
}

type searchResponse struct {
	Results []wireItem `json:"results"`
	Query   string     `json:"query"`
	Total   int        `json:"total"`
}

type indexResponse struct {
	Total   int `json:"total"`
	New     int `json:"new"`
	Indexed int `json:"indexed"`
}

type errorResponse struct {
	Detail any `json:"detail"`
}

// Health checks the sidecar.
func (c *Client) Health(ctx context.Context) (Health, error) {
	var out Health
	err := c.do(ctx, http.MethodGet, "/health", nil, &out, true)
	return out, err
}

// SearchText runs a free-text query.
func (c *Client) SearchText(ctx context.Context, query string, nResults int) ([]schema.SearchResultItem, error) {
	var resp searchResponse
	body := map[string]any{"query": query, "n_results": nResults}
	if err := c.do(ctx, http.MethodPost, "/search/text", body, &resp, true); err != nil {
		return nil, err
	}
	return convertItems(resp.Results), nil
}

// SearchSimilar finds samples similar to a reference file.
func (c *Client) SearchSimilar(ctx context.Context, filePath string, nResults int) ([]schema.SearchResultItem, error) {
	var resp searchResponse
	body := map[string]any{"reference_file_path": filePath, "n_results": nResults}
	if err := c.do(ctx, http.MethodPost, "/search/similar", body, &resp, true); err != nil {
		return nil, err
	}
	return convertItems(resp.Results), nil
}

// IndexDirectory indexes every audio file under directory. It blocks until
// the sidecar finishes or ctx ends.
func (c *Client) IndexDirectory(ctx context.Context, directory string) (schema.IndexResult, error) {
	var resp indexResponse
	if err := c.do(ctx, http.MethodPost, "/index/directory", map[string]any{"directory": directory}, &resp, false); err != nil {
		return schema.IndexResult{}, err
	}
	return schema.IndexResult{Total: resp.Total, Indexed: resp.Indexed, New: resp.New}, nil
}

// IndexFiles indexes an explicit list of files.
func (c *Client) IndexFiles(ctx context.Context, paths []string) (schema.IndexResult, error) {
	if paths == nil {
		paths = []string{}
	}
	var resp indexResponse
	if err := c.do(ctx, http.MethodPost, "/index", map[string]any{"file_paths": paths}, &resp, false); err != nil {
		return schema.IndexResult{}, err
	}
	return schema.IndexResult{Total: resp.Total, Indexed: resp.Indexed, New: resp.New}, nil
}

// Invoke serves the search operations.
func (c *Client) Invoke(ctx context.Context, op string, args map[string]any, result any) error {
	a := remote.ReadArgs(op, args)
	var reply any
	switch op {
	case remote.OpSearchByText:
		query, err := a.String(remote.ArgQuery)
		if err != nil {
			return err
		}
		n, err := a.Int(remote.ArgNResults)
		if err != nil {
			return err
		}
		items, err := c.SearchText(ctx, query, n)
		if err != nil {
			return withOp(op, err)
		}
		reply = items
	case remote.OpSearchBySimilarity:
		path, err := a.String(remote.ArgFilePath)
		if err != nil {
			return err
		}
		n, err := a.Int(remote.ArgNResults)
		if err != nil {
			return err
		}
		items, err := c.SearchSimilar(ctx, path, n)
		if err != nil {
			return withOp(op, err)
		}
		reply = items
	case remote.OpIndexDirectory:
		dir, err := a.String(remote.ArgDirectory)
		if err != nil {
			return err
		}
		res, err := c.IndexDirectory(ctx, dir)
		if err != nil {
			return withOp(op, err)
		}
		reply = res
	default:
		return remote.NewError(remote.ErrorRejected, op, schema.ErrUnsupportedOperation.Error())
	}
	return remote.DecodeResult(op, reply, result)
}

func withOp(op string, err error) error {
	if remoteErr, ok := remote.AsError(err); ok {
		copied := *remoteErr
		copied.Op = op
		return &copied
	}
	return remote.Wrap(op, err)
}

func convertItems(items []wireItem) []schema.SearchResultItem {
	out := make([]schema.SearchResultItem, 0, len(items))
	for _, item := range items {
		out = append(out, schema.SearchResultItem{
			ID:              item.ID,
			FilePath:        item.FilePath,
			FileName:        item.FileName,
			Distance:        item.Distance,
			DurationSeconds: item.DurationSeconds,
			Metadata:        item.Metadata,
		})
	}
	return out
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any, bounded bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if bounded && c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("sidecar: encode %s: %w", path, err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("sidecar: build %s: %w", path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	log := c.logger.With("method", method, "path", path)
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		log.Debug("sidecar request failed", "err", err)
		return transportError(err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return transportError(err)
	}
	log.Trace("sidecar request done", "status", resp.StatusCode, "elapsed", time.Since(start))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &remote.Error{Kind: remote.ErrorRejected, Message: errorMessage(resp.StatusCode, data)}
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &remote.Error{Kind: remote.ErrorUnknown, Message: fmt.Sprintf("decode %s response: %v", path, err)}
	}
	return nil
}

func transportError(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &remote.Error{Kind: remote.ErrorTimeout, Message: "search sidecar timed out", Err: err}
	case errors.Is(err, context.Canceled):
		return &remote.Error{Kind: remote.ErrorCanceled, Message: "search sidecar request canceled", Err: err}
	}
	return &remote.Error{Kind: remote.ErrorUnavailable, Message: schema.ErrSidecarUnavailable.Error(), Err: err}
}

func errorMessage(status int, data []byte) string {
	var payload errorResponse
	if err := json.Unmarshal(data, &payload); err == nil && payload.Detail != nil {
		switch v := payload.Detail.(type) {
		case string:
			if v != "" {
				return v
			}
		default:
			if encoded, err := json.Marshal(v); err == nil {
				return string(encoded)
			}
		}
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		text = http.StatusText(status)
	}
	return fmt.Sprintf("sidecar returned %d: %s", status, text)
}
