// Package elastic queries the transaction log index of an Elasticsearch
// compatible backend.
package elastic

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

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/vietddude/logwatcher/internal/core/domain"
	"github.com/vietddude/logwatcher/internal/indexing/metrics"
)

// ErrEmptyURL is returned when the client is created without a base URL.
var ErrEmptyURL = errors.New("elastic url is empty")

const searchPath = "/logs/_search"

// DefaultTimeout bounds one search request when no timeout is configured.
const DefaultTimeout = 30 * time.Second

// Client runs range queries against <baseURL>/logs/_search.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client with a pooled, traced HTTP transport.
func NewClient(baseURL string, timeout time.Duration) (*Client, error) {
	if baseURL == "" {
		return nil, ErrEmptyURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: otelhttp.NewTransport(&http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			}),
		},
	}, nil
}

// NewClientWithHTTP creates a client using the given http.Client as is.
func NewClientWithHTTP(baseURL string, httpClient *http.Client) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

type rangeQuery struct {
	Query struct {
		Bool struct {
			Filter struct {
				Range struct {
					Timestamp struct {
						Gte int64 `json:"gte"`
						Lte int64 `json:"lte"`
					} `json:"timestamp"`
				} `json:"range"`
			} `json:"filter"`
		} `json:"bool"`
	} `json:"query"`
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Source *domain.TransactionLog `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// Search returns every log whose timestamp is within [start, end], in backend
// order. Hits without a _source are dropped. No pagination is requested.
func (c *Client) Search(ctx context.Context, start, end int64) ([]domain.TransactionLog, error) {
	begin := time.Now()
	defer func() {
		metrics.FetchLatency.Observe(time.Since(begin).Seconds())
	}()

	var q rangeQuery
	q.Query.Bool.Filter.Range.Timestamp.Gte = start
	q.Query.Bool.Filter.Range.Timestamp.Lte = end

	jsonData, err := json.Marshal(q)
	if err != nil {
		return nil, fmt.Errorf("marshal query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+searchPath, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search call: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, truncate(string(body), 512))
	}

	var sr searchResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	logs := make([]domain.TransactionLog, 0, len(sr.Hits.Hits))
	for _, hit := range sr.Hits.Hits {
		if hit.Source == nil {
			continue
		}
		logs = append(logs, *hit.Source)
	}

	return logs, nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
